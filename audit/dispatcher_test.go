package audit

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	core "github.com/DomeLiquid/paycore"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memorySink struct {
	mu     sync.Mutex
	events []core.AuditEvent
	block  chan struct{}
	err    error
}

func (s *memorySink) Name() string { return "memory" }

func (s *memorySink) Deliver(_ context.Context, event core.AuditEvent) error {
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return s.err
}

func (s *memorySink) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func TestDispatcherDelivers(t *testing.T) {
	sink := &memorySink{}
	d := NewDispatcher(8, nil, nil, sink)

	for i := 0; i < 5; i++ {
		d.Publish(context.Background(), core.AuditEvent{AttemptId: string(rune('a' + i))})
	}
	require.NoError(t, d.Close(context.Background()))
	assert.Equal(t, 5, sink.len())
	assert.Equal(t, "a", sink.events[0].AttemptId)
	assert.Zero(t, d.Dropped())
}

func TestDispatcherDropsWhenFull(t *testing.T) {
	sink := &memorySink{block: make(chan struct{})}
	d := NewDispatcher(1, nil, nil, sink)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 10; i++ {
			d.Publish(context.Background(), core.AuditEvent{AttemptId: "x"})
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a stalled sink")
	}
	// at most one in the sink goroutine and one queued
	assert.GreaterOrEqual(t, d.Dropped(), int64(8))

	close(sink.block)
	require.NoError(t, d.Close(context.Background()))
	assert.Equal(t, int64(10), d.Dropped()+int64(sink.len()))
}

func TestDispatcherSinkFailureDoesNotStop(t *testing.T) {
	failing := &memorySink{err: errors.New("boom")}
	ok := &memorySink{}
	d := NewDispatcher(4, nil, nil, failing, ok)

	d.Publish(context.Background(), core.AuditEvent{AttemptId: "1"})
	d.Publish(context.Background(), core.AuditEvent{AttemptId: "2"})
	require.NoError(t, d.Close(context.Background()))
	assert.Equal(t, 2, ok.len())
}

func TestDispatcherPublishAfterClose(t *testing.T) {
	d := NewDispatcher(4, nil, nil)
	require.NoError(t, d.Close(context.Background()))
	require.NoError(t, d.Close(context.Background()))

	d.Publish(context.Background(), core.AuditEvent{AttemptId: "late"})
	assert.Equal(t, int64(1), d.Dropped())
}

func TestFileSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit", "payment_audit.log")
	sink := NewFileSink(path)

	require.NoError(t, sink.Deliver(context.Background(), core.AuditEvent{
		AttemptId: "att-1",
		RequestId: "req-1",
		Outcome:   "fraud_detected",
		Flags:     []string{"wrong_recipient"},
	}))
	require.NoError(t, sink.Close())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	require.Len(t, lines, 1)

	var line map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &line))
	assert.Equal(t, "att-1", line["attempt_id"])
	assert.Equal(t, "fraud_detected", line["outcome"])
	assert.Equal(t, []any{"wrong_recipient"}, line["flags"])
}

func TestWebhookSink(t *testing.T) {
	var got core.AuditEvent
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		if got.AttemptId == "reject" {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	sink := NewWebhookSink(srv.URL, time.Second)
	require.NoError(t, sink.Deliver(context.Background(), core.AuditEvent{AttemptId: "att-1", Outcome: "success"}))
	assert.Equal(t, "att-1", got.AttemptId)

	assert.Error(t, sink.Deliver(context.Background(), core.AuditEvent{AttemptId: "reject"}))
}
