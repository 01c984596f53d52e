package security

import (
	"strings"
	"time"

	core "github.com/DomeLiquid/paycore"
	"github.com/shopspring/decimal"
)

// Analysis is the verdict of the rule set for one transaction. Confidence and the
// component adjustments are only populated when Fraud is false.
type Analysis struct {
	Fraud        bool
	Flags        core.FraudFlags
	AmountMatch  bool
	ActualAmount decimal.Decimal
	Deviation    decimal.Decimal
	Age          time.Duration

	ConfirmationsAdjustment decimal.Decimal
	AmountAdjustment        decimal.Decimal
	FreshAdjustment         decimal.Decimal
	SuspiciousAdjustment    decimal.Decimal

	// RawConfidence is the sum before clamping.
	RawConfidence decimal.Decimal
	Confidence    float64
}

// Analyze applies the fraud rules in order and stops at the first hard violation, then
// scores the transaction. It has no side effects and never fails.
func Analyze(tx *core.TransactionRecord, expectedAmount decimal.Decimal, expectedRecipient string, now time.Time, settings core.Settings) Analysis {
	a := Analysis{
		ActualAmount:  tx.Amount,
		Age:           now.Sub(tx.BlockTime),
		RawConfidence: decimal.Zero,
	}

	if !tx.Success {
		return a.fraud(core.FraudFlagTransactionFailed)
	}
	if !strings.EqualFold(strings.TrimSpace(tx.ToAddress), strings.TrimSpace(expectedRecipient)) {
		return a.fraud(core.FraudFlagWrongRecipient)
	}
	if a.Age > settings.MaxTxAge {
		return a.fraud(core.FraudFlagTransactionTooOld)
	}

	deviation, err := core.DeviationPercent(tx.Amount, expectedAmount)
	if err == nil {
		a.Deviation = deviation
		a.AmountMatch = deviation.LessThanOrEqual(settings.AmountTolerancePercent)
	}

	w := settings.Confidence
	if tx.Confirmations >= settings.MinConfirmations {
		a.ConfirmationsAdjustment = w.ConfirmationsBonus
	} else {
		a.ConfirmationsAdjustment = w.ConfirmationsPenalty.Neg()
	}
	if a.AmountMatch {
		a.AmountAdjustment = w.AmountMatchBonus
	} else {
		a.AmountAdjustment = w.AmountMismatchPenalty.Neg()
	}
	if a.Age < w.FreshHorizon {
		a.FreshAdjustment = w.FreshBonus
	}
	if settings.IsSuspiciousAmount(tx.Amount) {
		a.SuspiciousAdjustment = w.SuspiciousAmountPenalty.Neg()
		a.Flags = a.Flags.Add(core.FraudFlagSuspiciousAmount)
	}

	a.RawConfidence = w.Base.
		Add(a.ConfirmationsAdjustment).
		Add(a.AmountAdjustment).
		Add(a.FreshAdjustment).
		Add(a.SuspiciousAdjustment)
	a.Confidence = core.Clamp(a.RawConfidence, decimal.Zero, core.ONE).InexactFloat64()
	return a
}

func (a Analysis) fraud(flag core.FraudFlag) Analysis {
	a.Fraud = true
	a.Flags = a.Flags.Add(flag)
	a.Confidence = 0
	return a
}
