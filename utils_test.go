package core

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestWithinTolerance(t *testing.T) {
	tolerance := decimal.RequireFromString("0.5")
	tests := []struct {
		name     string
		actual   decimal.Decimal
		expected decimal.Decimal
		want     bool
	}{
		{
			name:     "exact",
			actual:   decimal.RequireFromString("100"),
			expected: decimal.RequireFromString("100"),
			want:     true,
		},
		{
			name:     "upper boundary",
			actual:   decimal.RequireFromString("100.5"),
			expected: decimal.RequireFromString("100"),
			want:     true,
		},
		{
			name:     "lower boundary",
			actual:   decimal.RequireFromString("99.5"),
			expected: decimal.RequireFromString("100"),
			want:     true,
		},
		{
			name:     "over",
			actual:   decimal.RequireFromString("100.6"),
			expected: decimal.RequireFromString("100"),
			want:     false,
		},
		{
			name:     "zero expected",
			actual:   decimal.RequireFromString("1"),
			expected: decimal.Zero,
			want:     false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, WithinTolerance(tt.actual, tt.expected, tolerance))
		})
	}
}

func TestAmountCloseness(t *testing.T) {
	expected := decimal.RequireFromString("25.00")

	got := AmountCloseness(decimal.RequireFromString("25.10"), expected)
	assert.True(t, got.Equal(decimal.RequireFromString("0.996")), "expected 0.996, got %s", got)

	got = AmountCloseness(decimal.RequireFromString("25.50"), expected)
	assert.True(t, got.Equal(decimal.RequireFromString("0.98")), "expected 0.98, got %s", got)

	got = AmountCloseness(decimal.RequireFromString("80"), expected)
	assert.True(t, got.IsZero(), "expected 0, got %s", got)
}

func TestRecencyScore(t *testing.T) {
	assert.True(t, RecencyScore(0, time.Hour).Equal(ONE))
	assert.True(t, RecencyScore(30*time.Minute, time.Hour).Equal(decimal.RequireFromString("0.5")))
	assert.True(t, RecencyScore(2*time.Hour, time.Hour).IsZero())
	assert.True(t, RecencyScore(time.Minute, 0).IsZero())
}

func TestClamp(t *testing.T) {
	assert.True(t, Clamp(decimal.RequireFromString("1.6"), decimal.Zero, ONE).Equal(ONE))
	assert.True(t, Clamp(decimal.RequireFromString("-0.2"), decimal.Zero, ONE).IsZero())
	assert.True(t, Clamp(decimal.RequireFromString("0.4"), decimal.Zero, ONE).Equal(decimal.RequireFromString("0.4")))
}
