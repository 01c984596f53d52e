package activation

import (
	"context"
	"time"

	core "github.com/DomeLiquid/paycore"
	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
)

const IdempotencyHeader = "Idempotency-Key"

type Config struct {
	Endpoint string
	ApiKey   string
	Timeout  time.Duration
}

// Client activates subscriptions on the plan service over HTTP.
type Client struct {
	client *resty.Client
}

var _ core.Activator = (*Client)(nil)

type activateRequest struct {
	Owner  string `json:"owner"`
	PlanId string `json:"planId"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	c := resty.New().
		SetBaseURL(cfg.Endpoint).
		SetTimeout(cfg.Timeout).
		SetHeader("Content-Type", "application/json")
	if cfg.ApiKey != "" {
		c.SetAuthToken(cfg.ApiKey)
	}
	return &Client{client: c}
}

// ActivateSubscription posts the activation. 409 means the key was already applied.
func (c *Client) ActivateSubscription(ctx context.Context, owner, planId, idempotencyKey string) error {
	var failure errorResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetHeader(IdempotencyHeader, idempotencyKey).
		SetBody(activateRequest{Owner: owner, PlanId: planId}).
		SetError(&failure).
		Post("/subscriptions/activate")
	if err != nil {
		return errors.Wrap(err, "activate subscription")
	}
	switch {
	case resp.IsSuccess():
		return nil
	case resp.StatusCode() == 409:
		return nil
	default:
		return errors.Errorf("activate subscription: status %d: %s", resp.StatusCode(), failure.Error)
	}
}

// Noop accepts every activation. Used when no plan service is configured.
type Noop struct {
	log core.Log
}

var _ core.Activator = Noop{}

func NewNoop(log core.Log) Noop {
	return Noop{log: log}
}

func (n Noop) ActivateSubscription(_ context.Context, owner, planId, idempotencyKey string) error {
	n.log.Info().Str("owner", owner).Str("plan", planId).Str("key", idempotencyKey).Msg("activation skipped, no endpoint configured")
	return nil
}
