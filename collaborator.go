package core

import (
	"context"
)

type (
	// Activator is the subscription-activation collaborator. Implementations must
	// tolerate repeated calls carrying the same idempotency key.
	Activator interface {
		ActivateSubscription(ctx context.Context, owner, planId, idempotencyKey string) error
	}

	// Notifier delivers owner-facing messages.
	Notifier interface {
		NotifyOwner(ctx context.Context, owner string, messageId string, text string) error
	}

	// AuditSink receives one event per verification attempt. Publish must not block.
	AuditSink interface {
		Publish(ctx context.Context, event AuditEvent)
	}

	AuditEvent struct {
		AttemptId   string   `json:"attemptId"`
		RequestId   string   `json:"requestId"`
		Owner       string   `json:"owner"`
		Source      string   `json:"source"`
		Outcome     string   `json:"outcome"`
		TxHash      string   `json:"txHash,omitempty"`
		Confidence  float64  `json:"confidence"`
		Flags       []string `json:"flags"`
		Reason      string   `json:"reason,omitempty"`
		LatencyMs   int64    `json:"latencyMs"`
		AttemptedAt int64    `json:"attemptedAt"`
	}
)

func NewAuditEvent(attempt *VerificationAttempt) AuditEvent {
	event := AuditEvent{
		AttemptId:   attempt.Id,
		RequestId:   attempt.RequestId,
		Owner:       attempt.Owner,
		Source:      attempt.Source.String(),
		Outcome:     attempt.Outcome.String(),
		Confidence:  attempt.ConfidenceScore,
		Flags:       attempt.FraudFlags.Strings(),
		Reason:      attempt.Reason,
		LatencyMs:   attempt.LatencyMs,
		AttemptedAt: attempt.AttemptedAt,
	}
	if attempt.TxHash != nil {
		event.TxHash = *attempt.TxHash
	}
	return event
}
