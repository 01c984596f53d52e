package core

import (
	"context"
	"time"

	"github.com/facebookgo/clock"
	"github.com/gofrs/uuid"
)

type (
	VerificationAttemptStore interface {
		CreateVerificationAttempt(ctx context.Context, attempt *VerificationAttempt) error
		CountOwnerAttempts(ctx context.Context, owner string, source AttemptSource, since int64) (int64, error)
		ListVerificationAttempts(ctx context.Context, requestId string) ([]*VerificationAttempt, error)
	}

	// VerificationAttempt is an append-only log row, one per attempt.
	VerificationAttempt struct {
		Id              string        `json:"id" gorm:"primaryKey;size:36"`
		RequestId       string        `json:"requestId" gorm:"size:36;index"`
		Owner           string        `json:"owner" gorm:"size:64;index:idx_attempt_owner_day"`
		Source          AttemptSource `json:"source" gorm:"size:16;index:idx_attempt_owner_day"`
		AttemptedAt     int64         `json:"attemptedAt" gorm:"index:idx_attempt_owner_day"`
		Outcome         Outcome       `json:"outcome" gorm:"size:32"`
		TxHash          *string       `json:"txHash,omitempty" gorm:"size:80"`
		ConfidenceScore float64       `json:"confidenceScore"`
		FraudFlags      FraudFlags    `json:"fraudFlags" gorm:"type:text"`
		LatencyMs       int64         `json:"latencyMs"`
		Reason          string        `json:"-" gorm:"type:text"`
	}
)

func (VerificationAttempt) TableName() string {
	return "verification_attempts"
}

type AttemptSource string

const (
	AttemptSourceUser      AttemptSource = "user"
	AttemptSourceScheduler AttemptSource = "scheduler"
)

func (s AttemptSource) String() string {
	switch s {
	case AttemptSourceUser:
		return "user"
	case AttemptSourceScheduler:
		return "scheduler"
	default:
		return "unknown"
	}
}

func NewVerificationAttempt(clk clock.Clock, request *PaymentRequest, source AttemptSource, verdict Verdict, latency time.Duration) *VerificationAttempt {
	attempt := &VerificationAttempt{
		Id:              uuid.Must(uuid.NewV4()).String(),
		RequestId:       request.Id,
		Owner:           request.Owner,
		Source:          source,
		AttemptedAt:     clk.Now().Unix(),
		Outcome:         verdict.Outcome,
		ConfidenceScore: verdict.Confidence,
		FraudFlags:      verdict.Flags,
		LatencyMs:       latency.Milliseconds(),
		Reason:          verdict.Reason,
	}
	if verdict.TxHash != "" {
		txHash := verdict.TxHash
		attempt.TxHash = &txHash
	}
	return attempt
}

// StartOfDay returns the unix second at which the UTC day containing t began.
func StartOfDay(t time.Time) int64 {
	unix := t.Unix()
	return unix - unix%SECONDS_PER_DAY
}
