package core

import (
	"context"
	"strings"
	"time"

	"github.com/facebookgo/clock"
	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
)

type (
	PaymentRequestStore interface {
		CreatePaymentRequest(ctx context.Context, request *PaymentRequest) error
		GetPaymentRequest(ctx context.Context, id string) (*PaymentRequest, error)
		ListPendingPaymentRequests(ctx context.Context, limit int) ([]*PaymentRequest, error)
		// IsTxHashClaimed reports whether a request other than excludingId is verified with txHash.
		IsTxHashClaimed(ctx context.Context, txHash string, excludingId string) (bool, error)
		// ResolvePaymentRequest moves a pending request to a terminal status. It returns
		// ErrAlreadyResolved when the request is no longer pending and ErrTxHashClaimed when
		// a verified resolution collides with another verified request.
		ResolvePaymentRequest(ctx context.Context, id string, resolution Resolution) error
	}

	PaymentRequest struct {
		Id                 string               `json:"id" gorm:"primaryKey;size:36"`
		Owner              string               `json:"owner" gorm:"size:64;index"`
		PlanId             string               `json:"planId" gorm:"size:64"`
		RequestedAmount    decimal.Decimal      `json:"requestedAmount" gorm:"type:varchar(78)"`
		DestinationAddress string               `json:"destinationAddress" gorm:"size:128"`
		Status             PaymentRequestStatus `json:"status" gorm:"size:32;index"`
		ResolvedTxHash     *string              `json:"resolvedTxHash,omitempty" gorm:"size:80;index"`
		ResolvedAmount     decimal.NullDecimal  `json:"resolvedAmount,omitempty" gorm:"type:varchar(78)"`
		FraudFlags         FraudFlags           `json:"-" gorm:"type:text"`

		CreatedAt  int64 `json:"createdAt" gorm:"autoCreateTime:false"`
		ExpiresAt  int64 `json:"expiresAt" gorm:"index"`
		ResolvedAt int64 `json:"resolvedAt,omitempty"`
		UpdatedAt  int64 `json:"updatedAt" gorm:"autoUpdateTime:false"`
	}

	// Resolution is the one-way transition applied to a pending request.
	Resolution struct {
		Status     PaymentRequestStatus
		TxHash     string
		Amount     decimal.NullDecimal
		FraudFlags FraudFlags
		ResolvedAt int64
	}
)

func (PaymentRequest) TableName() string {
	return "payment_requests"
}

func NewPaymentRequest(clk clock.Clock, owner, planId string, amount decimal.Decimal, destination string, ttl time.Duration) (*PaymentRequest, error) {
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	destination = strings.TrimSpace(destination)
	if destination == "" {
		return nil, ErrInvalidAddress
	}
	if ttl <= 0 {
		ttl = DEFAULT_PAYMENT_TIMEOUT
	}

	now := clk.Now()
	return &PaymentRequest{
		Id:                 uuid.Must(uuid.NewV4()).String(),
		Owner:              owner,
		PlanId:             planId,
		RequestedAmount:    amount,
		DestinationAddress: destination,
		Status:             PaymentRequestStatusPending,
		CreatedAt:          now.Unix(),
		ExpiresAt:          now.Add(ttl).Unix(),
		UpdatedAt:          now.Unix(),
	}, nil
}

func (p *PaymentRequest) IsPending() bool {
	return p.Status == PaymentRequestStatusPending
}

func (p *PaymentRequest) IsExpired(now time.Time) bool {
	return p.ExpiresAt > 0 && now.Unix() > p.ExpiresAt
}

func (p *PaymentRequest) CreatedTime() time.Time {
	return time.Unix(p.CreatedAt, 0)
}

type PaymentRequestStatus string

const (
	PaymentRequestStatusPending       PaymentRequestStatus = "pending"
	PaymentRequestStatusVerified      PaymentRequestStatus = "verified"
	PaymentRequestStatusFraudDetected PaymentRequestStatus = "fraud_detected"
	PaymentRequestStatusDuplicate     PaymentRequestStatus = "duplicate"
	PaymentRequestStatusExpired       PaymentRequestStatus = "expired"
)

func (s PaymentRequestStatus) String() string {
	switch s {
	case PaymentRequestStatusPending:
		return "pending"
	case PaymentRequestStatusVerified:
		return "verified"
	case PaymentRequestStatusFraudDetected:
		return "fraud_detected"
	case PaymentRequestStatusDuplicate:
		return "duplicate"
	case PaymentRequestStatusExpired:
		return "expired"
	default:
		return "unknown"
	}
}

func (s PaymentRequestStatus) IsTerminal() bool {
	switch s {
	case PaymentRequestStatusVerified,
		PaymentRequestStatusFraudDetected,
		PaymentRequestStatusDuplicate,
		PaymentRequestStatusExpired:
		return true
	default:
		return false
	}
}
