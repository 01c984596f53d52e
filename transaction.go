package core

import (
	"context"
	"math/big"
	"strings"
	"time"

	"github.com/DomeLiquid/paycore/utils"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

type (
	// LedgerClient queries an external block explorer. Implementations never write and
	// return ErrUpstreamUnavailable (wrapped) for network, timeout and non-2xx failures.
	LedgerClient interface {
		GetTransaction(ctx context.Context, txHash string) (*TransactionRecord, error)
		SearchInbound(ctx context.Context, address string, window TimeWindow, limit int) ([]*TransactionRecord, error)
		HashFormat() TxHashFormat
	}

	// TransactionRecord is produced fresh per query and never cached across attempts.
	TransactionRecord struct {
		TxHash        string          `json:"txHash"`
		Success       bool            `json:"success"`
		BlockTime     time.Time       `json:"blockTime"`
		Confirmations int64           `json:"confirmations"`
		FromAddress   string          `json:"fromAddress"`
		ToAddress     string          `json:"toAddress"`
		RawAmount     string          `json:"rawAmount"`
		Amount        decimal.Decimal `json:"amount"`
	}

	TimeWindow struct {
		Start time.Time
		End   time.Time
	}

	TxHashFormat struct {
		Prefix    string
		HexLength int
	}
)

func (w TimeWindow) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}

func (w TimeWindow) Valid() bool {
	return !w.Start.IsZero() && !w.End.Before(w.Start)
}

// Normalize trims raw and returns the canonical lower-case hash, or ErrInvalidTxHash.
func (f TxHashFormat) Normalize(raw string) (string, error) {
	h := strings.TrimSpace(raw)
	if f.Prefix != "" && len(h) >= len(f.Prefix) && strings.EqualFold(h[:len(f.Prefix)], f.Prefix) {
		h = h[len(f.Prefix):]
	}
	if len(h) != f.HexLength || !utils.IsHex(h) {
		return "", errors.Wrapf(ErrInvalidTxHash, "want %d hex characters", f.HexLength)
	}
	return f.Prefix + strings.ToLower(h), nil
}

// NormalizeRawAmount divides an integer token amount by 10^decimals.
func NormalizeRawAmount(raw string, decimals int32) (decimal.Decimal, error) {
	bi, ok := new(big.Int).SetString(strings.TrimSpace(raw), 10)
	if !ok || bi.Sign() < 0 {
		return decimal.Zero, errors.Wrapf(ErrInvalidAmount, "raw amount %q", raw)
	}
	return decimal.NewFromBigInt(bi, -decimals), nil
}
