package core

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTxHashFormat_Normalize(t *testing.T) {
	tron := TxHashFormat{HexLength: 64}
	evm := TxHashFormat{Prefix: "0x", HexLength: 64}
	hex64 := "ABCDEF0123456789abcdef0123456789abcdef0123456789abcdef0123456789"

	tests := []struct {
		name    string
		format  TxHashFormat
		raw     string
		want    string
		wantErr bool
	}{
		{name: "tron plain", format: tron, raw: "  " + hex64 + "\n", want: "abcdef0123456789abcdef0123456789abcdef0123456789abcdef0123456789"},
		{name: "tron short", format: tron, raw: hex64[:30], wantErr: true},
		{name: "tron non hex", format: tron, raw: "zz" + hex64[2:], wantErr: true},
		{name: "evm prefixed", format: evm, raw: "0X" + hex64, want: "0xabcdef0123456789abcdef0123456789abcdef0123456789abcdef0123456789"},
		{name: "evm bare", format: evm, raw: hex64, want: "0xabcdef0123456789abcdef0123456789abcdef0123456789abcdef0123456789"},
		{name: "empty", format: evm, raw: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.format.Normalize(tt.raw)
			if tt.wantErr {
				assert.True(t, errors.Is(err, ErrInvalidTxHash))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeRawAmount(t *testing.T) {
	got, err := NormalizeRawAmount("25100000", USDT_DECIMALS)
	require.NoError(t, err)
	assert.True(t, got.Equal(decimal.RequireFromString("25.1")))

	got, err = NormalizeRawAmount("1", 18)
	require.NoError(t, err)
	assert.True(t, got.Equal(decimal.RequireFromString("0.000000000000000001")))

	_, err = NormalizeRawAmount("-5", USDT_DECIMALS)
	assert.True(t, errors.Is(err, ErrInvalidAmount))

	_, err = NormalizeRawAmount("1.5", USDT_DECIMALS)
	assert.Error(t, err)
}
