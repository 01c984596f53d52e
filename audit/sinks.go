package audit

import (
	"context"
	"time"

	core "github.com/DomeLiquid/paycore"
	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

const DefaultLogPath = "logs/payment_audit.log"

// FileSink appends one JSON line per event to a size-rotated file.
type FileSink struct {
	writer *lumberjack.Logger
	logger zerolog.Logger
}

func NewFileSink(path string) *FileSink {
	if path == "" {
		path = DefaultLogPath
	}
	w := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    100,
		MaxBackups: 10,
		MaxAge:     90,
		Compress:   true,
	}
	return &FileSink{
		writer: w,
		logger: zerolog.New(w).With().Timestamp().Logger(),
	}
}

func (s *FileSink) Name() string { return "file" }

func (s *FileSink) Deliver(_ context.Context, event core.AuditEvent) error {
	s.logger.Log().
		Str("attempt_id", event.AttemptId).
		Str("request_id", event.RequestId).
		Str("owner", event.Owner).
		Str("source", event.Source).
		Str("outcome", event.Outcome).
		Str("tx_hash", event.TxHash).
		Float64("confidence", event.Confidence).
		Strs("flags", event.Flags).
		Str("reason", event.Reason).
		Int64("latency_ms", event.LatencyMs).
		Int64("attempted_at", event.AttemptedAt).
		Send()
	return nil
}

func (s *FileSink) Close() error {
	return s.writer.Close()
}

// WebhookSink posts each event as JSON to an external endpoint.
type WebhookSink struct {
	client *resty.Client
	url    string
}

func NewWebhookSink(url string, timeout time.Duration) *WebhookSink {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookSink{
		client: resty.New().SetTimeout(timeout).SetHeader("Content-Type", "application/json"),
		url:    url,
	}
}

func (s *WebhookSink) Name() string { return "webhook" }

func (s *WebhookSink) Deliver(ctx context.Context, event core.AuditEvent) error {
	resp, err := s.client.R().SetContext(ctx).SetBody(event).Post(s.url)
	if err != nil {
		return errors.Wrap(err, "post audit event")
	}
	if resp.IsError() {
		return errors.Errorf("post audit event: status %d", resp.StatusCode())
	}
	return nil
}
