package core

import (
	"github.com/shopspring/decimal"
)

type Outcome string

const (
	OutcomeSuccess             Outcome = "success"
	OutcomeNotFound            Outcome = "not_found"
	OutcomeInvalidFormat       Outcome = "invalid_format"
	OutcomeUpstreamUnavailable Outcome = "upstream_unavailable"
	OutcomeAmountMismatch      Outcome = "amount_mismatch"
	OutcomeDuplicate           Outcome = "duplicate"
	OutcomeFraudDetected       Outcome = "fraud_detected"
	OutcomeExpired             Outcome = "expired"
	OutcomeRateLimited         Outcome = "rate_limited"
)

// AllOutcomes lists every outcome variant.
var AllOutcomes = []Outcome{
	OutcomeSuccess,
	OutcomeNotFound,
	OutcomeInvalidFormat,
	OutcomeUpstreamUnavailable,
	OutcomeAmountMismatch,
	OutcomeDuplicate,
	OutcomeFraudDetected,
	OutcomeExpired,
	OutcomeRateLimited,
}

func (o Outcome) String() string {
	return string(o)
}

func (o Outcome) Valid() bool {
	for _, v := range AllOutcomes {
		if v == o {
			return true
		}
	}
	return false
}

// TargetStatus maps an outcome to the terminal status it moves a pending request to.
// ok is false when the request stays pending.
func (o Outcome) TargetStatus() (status PaymentRequestStatus, ok bool) {
	switch o {
	case OutcomeSuccess:
		return PaymentRequestStatusVerified, true
	case OutcomeFraudDetected:
		return PaymentRequestStatusFraudDetected, true
	case OutcomeDuplicate:
		return PaymentRequestStatusDuplicate, true
	case OutcomeExpired:
		return PaymentRequestStatusExpired, true
	case OutcomeNotFound,
		OutcomeInvalidFormat,
		OutcomeUpstreamUnavailable,
		OutcomeAmountMismatch,
		OutcomeRateLimited:
		return PaymentRequestStatusPending, false
	default:
		return PaymentRequestStatusPending, false
	}
}

// Retryable reports whether a later attempt may still succeed.
func (o Outcome) Retryable() bool {
	_, terminal := o.TargetStatus()
	return !terminal
}

// Verdict is the result of one verification attempt. Only the fields relevant to the
// outcome are populated: TxHash/Amount/Confidence for success, Flags for fraud, TxHash
// for duplicate and amount mismatch.
type Verdict struct {
	Outcome       Outcome         `json:"outcome"`
	TxHash        string          `json:"txHash,omitempty"`
	Amount        decimal.Decimal `json:"amount"`
	Confidence    float64         `json:"confidence"`
	Confirmations int64           `json:"confirmations"`
	Flags         FraudFlags      `json:"flags,omitempty"`
	Reason        string          `json:"reason,omitempty"`
}

func NewVerdict(outcome Outcome, reason string) Verdict {
	return Verdict{Outcome: outcome, Reason: reason}
}
