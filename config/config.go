package config

import (
	"time"

	core "github.com/DomeLiquid/paycore"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

const (
	ChainTron = "tron"
	ChainEVM  = "evm"
)

type (
	Config struct {
		Server       Server       `mapstructure:"server"`
		Database     Database     `mapstructure:"database"`
		Log          Log          `mapstructure:"log"`
		Chain        Chain        `mapstructure:"chain"`
		Activation   Activation   `mapstructure:"activation"`
		Audit        Audit        `mapstructure:"audit"`
		Mixin        Mixin        `mapstructure:"mixin"`
		Verification Verification `mapstructure:"verification"`
	}

	Server struct {
		Addr              string  `mapstructure:"addr" validate:"required"`
		SubmitRatePerSec  float64 `mapstructure:"submit_rate_per_sec" validate:"gt=0"`
		SubmitBurst       int     `mapstructure:"submit_burst" validate:"gt=0"`
		ShutdownTimeoutMs int     `mapstructure:"shutdown_timeout_ms" validate:"gt=0"`
	}

	Database struct {
		DSN string `mapstructure:"dsn" validate:"required"`
	}

	Log struct {
		Level string `mapstructure:"level" validate:"oneof=trace debug info warn error"`
	}

	Chain struct {
		Kind     string   `mapstructure:"kind" validate:"oneof=tron evm"`
		Wallet   string   `mapstructure:"wallet" validate:"required"`
		TronScan TronScan `mapstructure:"tronscan"`
		EVM      EVM      `mapstructure:"evm"`
	}

	TronScan struct {
		Endpoint       string `mapstructure:"endpoint" validate:"omitempty,url"`
		ApiKey         string `mapstructure:"api_key"`
		Contract       string `mapstructure:"contract"`
		Decimals       int32  `mapstructure:"decimals" validate:"gte=0,lte=36"`
		TimeoutSeconds int    `mapstructure:"timeout_seconds" validate:"gte=0"`
	}

	EVM struct {
		RPCURL           string `mapstructure:"rpc_url"`
		Token            string `mapstructure:"token"`
		Decimals         int32  `mapstructure:"decimals" validate:"gte=0,lte=36"`
		BlockTimeSeconds int    `mapstructure:"block_time_seconds" validate:"gte=0"`
	}

	Activation struct {
		Endpoint       string `mapstructure:"endpoint" validate:"omitempty,url"`
		ApiKey         string `mapstructure:"api_key"`
		TimeoutSeconds int    `mapstructure:"timeout_seconds" validate:"gte=0"`
	}

	Audit struct {
		LogPath    string `mapstructure:"log_path"`
		WebhookURL string `mapstructure:"webhook_url" validate:"omitempty,url"`
		QueueSize  int    `mapstructure:"queue_size" validate:"gt=0"`
	}

	Mixin struct {
		KeystorePath string `mapstructure:"keystore_path"`
	}

	// Verification holds the hot-reloadable keys.
	Verification struct {
		MaxTxAgeHours                        float64  `mapstructure:"max_tx_age_hours" validate:"gt=0"`
		AmountTolerancePercent               float64  `mapstructure:"amount_tolerance_percent" validate:"gte=0,lte=100"`
		MinConfirmations                     int64    `mapstructure:"min_confirmations" validate:"gte=0"`
		RateLimitPerUserPerDay               int64    `mapstructure:"rate_limit_per_user_per_day" validate:"gte=0"`
		SchedulerIntervalSeconds             int      `mapstructure:"scheduler_interval_seconds" validate:"gt=0"`
		PerRequestVerificationTimeoutSeconds int      `mapstructure:"per_request_verification_timeout_seconds" validate:"gt=0"`
		SchedulerBackoffSeconds              int      `mapstructure:"scheduler_backoff_seconds" validate:"gte=0"`
		SchedulerRequestDelaySeconds         int      `mapstructure:"scheduler_request_delay_seconds" validate:"gte=0"`
		SearchLookbackSkewMinutes            int      `mapstructure:"search_lookback_skew_minutes" validate:"gte=0"`
		SearchPageSize                       int      `mapstructure:"search_page_size" validate:"gt=0,lte=200"`
		PaymentTimeoutMinutes                int      `mapstructure:"payment_timeout_minutes" validate:"gt=0"`
		SuspiciousAmounts                    []string `mapstructure:"suspicious_amounts" validate:"dive,numeric"`
		BlacklistedHashes                    []string `mapstructure:"blacklisted_hashes"`

		Confidence Confidence `mapstructure:"confidence"`
		Window     Window     `mapstructure:"window"`
	}

	Confidence struct {
		Base                    float64 `mapstructure:"base" validate:"gte=0"`
		ConfirmationsBonus      float64 `mapstructure:"confirmations_bonus" validate:"gte=0"`
		ConfirmationsPenalty    float64 `mapstructure:"confirmations_penalty" validate:"gte=0"`
		AmountMatchBonus        float64 `mapstructure:"amount_match_bonus" validate:"gte=0"`
		AmountMismatchPenalty   float64 `mapstructure:"amount_mismatch_penalty" validate:"gte=0"`
		FreshBonus              float64 `mapstructure:"fresh_bonus" validate:"gte=0"`
		FreshHorizonMinutes     int     `mapstructure:"fresh_horizon_minutes" validate:"gte=0"`
		SuspiciousAmountPenalty float64 `mapstructure:"suspicious_amount_penalty" validate:"gte=0"`
	}

	Window struct {
		AmountWeight          float64 `mapstructure:"amount_weight" validate:"gte=0"`
		RecencyWeight         float64 `mapstructure:"recency_weight" validate:"gte=0"`
		MinCloseness          float64 `mapstructure:"min_closeness" validate:"gte=0,lte=1"`
		AcceptanceFloor       float64 `mapstructure:"acceptance_floor" validate:"gte=0"`
		RecencyHorizonMinutes int     `mapstructure:"recency_horizon_minutes" validate:"gt=0"`
	}
)

// Settings converts the reloadable keys into the values components read.
func (v Verification) Settings() (core.Settings, error) {
	suspicious := make([]decimal.Decimal, 0, len(v.SuspiciousAmounts))
	for _, s := range v.SuspiciousAmounts {
		d, err := decimal.NewFromString(s)
		if err != nil {
			return core.Settings{}, errors.Wrapf(err, "suspicious amount %q", s)
		}
		suspicious = append(suspicious, d)
	}

	return core.Settings{
		MaxTxAge:               time.Duration(v.MaxTxAgeHours * float64(time.Hour)),
		AmountTolerancePercent: decimal.NewFromFloat(v.AmountTolerancePercent),
		MinConfirmations:       v.MinConfirmations,
		RateLimitPerUserPerDay: v.RateLimitPerUserPerDay,
		SchedulerInterval:      time.Duration(v.SchedulerIntervalSeconds) * time.Second,
		SchedulerBackoff:       time.Duration(v.SchedulerBackoffSeconds) * time.Second,
		SchedulerRequestDelay:  time.Duration(v.SchedulerRequestDelaySeconds) * time.Second,
		VerificationTimeout:    time.Duration(v.PerRequestVerificationTimeoutSeconds) * time.Second,
		LookbackSkew:           time.Duration(v.SearchLookbackSkewMinutes) * time.Minute,
		SearchPageSize:         v.SearchPageSize,
		PaymentTimeout:         time.Duration(v.PaymentTimeoutMinutes) * time.Minute,
		SuspiciousAmounts:      suspicious,
		BlacklistedHashes:      append([]string(nil), v.BlacklistedHashes...),
		Confidence: core.ConfidenceWeights{
			Base:                    decimal.NewFromFloat(v.Confidence.Base),
			ConfirmationsBonus:      decimal.NewFromFloat(v.Confidence.ConfirmationsBonus),
			ConfirmationsPenalty:    decimal.NewFromFloat(v.Confidence.ConfirmationsPenalty),
			AmountMatchBonus:        decimal.NewFromFloat(v.Confidence.AmountMatchBonus),
			AmountMismatchPenalty:   decimal.NewFromFloat(v.Confidence.AmountMismatchPenalty),
			FreshBonus:              decimal.NewFromFloat(v.Confidence.FreshBonus),
			FreshHorizon:            time.Duration(v.Confidence.FreshHorizonMinutes) * time.Minute,
			SuspiciousAmountPenalty: decimal.NewFromFloat(v.Confidence.SuspiciousAmountPenalty),
		},
		Window: core.WindowScoring{
			AmountWeight:    decimal.NewFromFloat(v.Window.AmountWeight),
			RecencyWeight:   decimal.NewFromFloat(v.Window.RecencyWeight),
			MinCloseness:    decimal.NewFromFloat(v.Window.MinCloseness),
			AcceptanceFloor: decimal.NewFromFloat(v.Window.AcceptanceFloor),
			RecencyHorizon:  time.Duration(v.Window.RecencyHorizonMinutes) * time.Minute,
		},
	}, nil
}
