package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// DeviationPercent returns |actual-expected| / expected * 100.
func DeviationPercent(actual, expected decimal.Decimal) (decimal.Decimal, error) {
	if !expected.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}
	return actual.Sub(expected).Abs().Div(expected).Mul(HUNDRED), nil
}

func WithinTolerance(actual, expected, tolerancePercent decimal.Decimal) bool {
	deviation, err := DeviationPercent(actual, expected)
	if err != nil {
		return false
	}
	return deviation.LessThanOrEqual(tolerancePercent)
}

// AmountCloseness returns max(0, 1 - |actual-expected|/expected).
func AmountCloseness(actual, expected decimal.Decimal) decimal.Decimal {
	if !expected.IsPositive() {
		return decimal.Zero
	}
	closeness := ONE.Sub(actual.Sub(expected).Abs().Div(expected))
	return decimal.Max(closeness, decimal.Zero)
}

// RecencyScore returns max(0, 1 - age/horizon).
func RecencyScore(age, horizon time.Duration) decimal.Decimal {
	if horizon <= 0 {
		return decimal.Zero
	}
	if age < 0 {
		age = -age
	}
	ratio := decimal.NewFromInt(int64(age)).Div(decimal.NewFromInt(int64(horizon)))
	return decimal.Max(ONE.Sub(ratio), decimal.Zero)
}

func Clamp(value, low, high decimal.Decimal) decimal.Decimal {
	return decimal.Min(decimal.Max(value, low), high)
}
