package outcome

import core "github.com/DomeLiquid/paycore"

// OwnerMessage is the text shown to the request owner. Fraud messages never say which
// rule fired.
func OwnerMessage(o core.Outcome) string {
	switch o {
	case core.OutcomeSuccess:
		return "Payment confirmed. Your subscription is now active."
	case core.OutcomeFraudDetected:
		return "We could not verify this payment. Please contact support."
	case core.OutcomeDuplicate:
		return "This transaction hash has already been used."
	case core.OutcomeExpired:
		return "This payment request has expired. Please create a new one."
	case core.OutcomeAmountMismatch:
		return "The transferred amount does not match the requested amount."
	case core.OutcomeNotFound:
		return "Transaction not found yet. Please try again in a few minutes."
	case core.OutcomeInvalidFormat:
		return "The transaction hash is not valid. Please check it and send it again."
	case core.OutcomeUpstreamUnavailable:
		return "Verification is temporarily unavailable. Please try again later."
	case core.OutcomeRateLimited:
		return "Too many verification attempts today. Please try again tomorrow."
	default:
		return "Payment verification failed."
	}
}

func StatusMessage(s core.PaymentRequestStatus) string {
	switch s {
	case core.PaymentRequestStatusVerified:
		return OwnerMessage(core.OutcomeSuccess)
	case core.PaymentRequestStatusFraudDetected:
		return OwnerMessage(core.OutcomeFraudDetected)
	case core.PaymentRequestStatusDuplicate:
		return OwnerMessage(core.OutcomeDuplicate)
	case core.PaymentRequestStatusExpired:
		return OwnerMessage(core.OutcomeExpired)
	default:
		return "Payment is awaiting confirmation."
	}
}
