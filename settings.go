package core

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type (
	// SettingsProvider returns the currently active settings. Implementations may swap
	// values at any time; callers read once per attempt or cycle.
	SettingsProvider interface {
		Settings() Settings
	}

	Settings struct {
		MaxTxAge               time.Duration
		AmountTolerancePercent decimal.Decimal
		MinConfirmations       int64
		RateLimitPerUserPerDay int64
		SchedulerInterval      time.Duration
		SchedulerBackoff       time.Duration
		SchedulerRequestDelay  time.Duration
		VerificationTimeout    time.Duration
		LookbackSkew           time.Duration
		SearchPageSize         int
		PaymentTimeout         time.Duration
		SuspiciousAmounts      []decimal.Decimal
		BlacklistedHashes      []string

		Confidence ConfidenceWeights
		Window     WindowScoring
	}

	ConfidenceWeights struct {
		Base                    decimal.Decimal
		ConfirmationsBonus      decimal.Decimal
		ConfirmationsPenalty    decimal.Decimal
		AmountMatchBonus        decimal.Decimal
		AmountMismatchPenalty   decimal.Decimal
		FreshBonus              decimal.Decimal
		FreshHorizon            time.Duration
		SuspiciousAmountPenalty decimal.Decimal
	}

	WindowScoring struct {
		AmountWeight    decimal.Decimal
		RecencyWeight   decimal.Decimal
		MinCloseness    decimal.Decimal
		AcceptanceFloor decimal.Decimal
		RecencyHorizon  time.Duration
	}
)

func DefaultSettings() Settings {
	return Settings{
		MaxTxAge:               DEFAULT_MAX_TX_AGE,
		AmountTolerancePercent: DEFAULT_AMOUNT_TOLERANCE_PERCENT,
		MinConfirmations:       DEFAULT_MIN_CONFIRMATIONS,
		RateLimitPerUserPerDay: DEFAULT_RATE_LIMIT_PER_DAY,
		SchedulerInterval:      DEFAULT_SCHEDULER_INTERVAL,
		SchedulerBackoff:       DEFAULT_SCHEDULER_BACKOFF,
		SchedulerRequestDelay:  DEFAULT_SCHEDULER_DELAY,
		VerificationTimeout:    DEFAULT_VERIFICATION_TIMEOUT,
		LookbackSkew:           DEFAULT_LOOKBACK_SKEW,
		SearchPageSize:         DEFAULT_SEARCH_PAGE_SIZE,
		PaymentTimeout:         DEFAULT_PAYMENT_TIMEOUT,
		SuspiciousAmounts:      append([]decimal.Decimal(nil), DEFAULT_SUSPICIOUS_AMOUNTS...),
		Confidence: ConfidenceWeights{
			Base:                    ONE,
			ConfirmationsBonus:      decimal.RequireFromString("0.2"),
			ConfirmationsPenalty:    decimal.RequireFromString("0.3"),
			AmountMatchBonus:        decimal.RequireFromString("0.3"),
			AmountMismatchPenalty:   decimal.RequireFromString("0.4"),
			FreshBonus:              decimal.RequireFromString("0.1"),
			FreshHorizon:            DEFAULT_FRESH_HORIZON,
			SuspiciousAmountPenalty: decimal.RequireFromString("0.2"),
		},
		Window: WindowScoring{
			AmountWeight:    decimal.RequireFromString("0.7"),
			RecencyWeight:   decimal.RequireFromString("0.3"),
			MinCloseness:    decimal.RequireFromString("0.95"),
			AcceptanceFloor: decimal.Zero,
			RecencyHorizon:  DEFAULT_RECENCY_HORIZON,
		},
	}
}

// IsBlacklisted compares txHash with every entry after normalizing the entry to format, so
// entries may be written with or without the chain prefix.
func (s Settings) IsBlacklisted(format TxHashFormat, txHash string) bool {
	for _, h := range s.BlacklistedHashes {
		entry, err := format.Normalize(h)
		if err != nil {
			entry = strings.TrimSpace(h)
		}
		if strings.EqualFold(entry, txHash) {
			return true
		}
	}
	return false
}

func (s Settings) IsSuspiciousAmount(amount decimal.Decimal) bool {
	for _, a := range s.SuspiciousAmounts {
		if a.Equal(amount) {
			return true
		}
	}
	return false
}

type staticSettings struct {
	settings Settings
}

func (s staticSettings) Settings() Settings {
	return s.settings
}

// StaticSettings wraps a fixed Settings value.
func StaticSettings(settings Settings) SettingsProvider {
	return staticSettings{settings: settings}
}
