package core

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	DEFAULT_MAX_TX_AGE             = time.Hour
	DEFAULT_MIN_CONFIRMATIONS      = 1
	DEFAULT_RATE_LIMIT_PER_DAY     = 5
	DEFAULT_SCHEDULER_INTERVAL     = 60 * time.Second
	DEFAULT_SCHEDULER_BACKOFF      = 5 * time.Second
	DEFAULT_SCHEDULER_DELAY        = 3 * time.Second
	DEFAULT_VERIFICATION_TIMEOUT   = 30 * time.Second
	DEFAULT_LOOKBACK_SKEW          = 10 * time.Minute
	DEFAULT_SEARCH_PAGE_SIZE       = 50
	DEFAULT_PAYMENT_TIMEOUT        = 180 * time.Minute
	DEFAULT_FRESH_HORIZON          = time.Hour
	DEFAULT_RECENCY_HORIZON        = time.Hour
	DEFAULT_PENDING_SCAN_LIMIT     = 500
	SECONDS_PER_DAY                = 86_400
	USDT_DECIMALS            int32 = 6
)

var (
	ONE     = decimal.NewFromInt(1)
	HUNDRED = decimal.NewFromInt(100)

	DEFAULT_AMOUNT_TOLERANCE_PERCENT = decimal.NewFromFloat(0.5)

	DEFAULT_SUSPICIOUS_AMOUNTS = []decimal.Decimal{
		decimal.RequireFromString("0.001"),
		decimal.RequireFromString("0.01"),
		decimal.RequireFromString("0.1"),
	}
)
