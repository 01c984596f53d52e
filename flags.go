package core

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"sort"
)

type FraudFlag uint8

const (
	FraudFlagTransactionFailed FraudFlag = iota + 1
	FraudFlagWrongRecipient
	FraudFlagTransactionTooOld
	FraudFlagSuspiciousAmount
	FraudFlagBlacklistedHash
	FraudFlagDuplicateTx
	FraudFlagInvalidFormat
	FraudFlagRateLimitExceeded
)

// AllFraudFlags lists every flag variant.
var AllFraudFlags = []FraudFlag{
	FraudFlagTransactionFailed,
	FraudFlagWrongRecipient,
	FraudFlagTransactionTooOld,
	FraudFlagSuspiciousAmount,
	FraudFlagBlacklistedHash,
	FraudFlagDuplicateTx,
	FraudFlagInvalidFormat,
	FraudFlagRateLimitExceeded,
}

func (f FraudFlag) String() string {
	switch f {
	case FraudFlagTransactionFailed:
		return "transaction_failed"
	case FraudFlagWrongRecipient:
		return "wrong_recipient"
	case FraudFlagTransactionTooOld:
		return "transaction_too_old"
	case FraudFlagSuspiciousAmount:
		return "suspicious_amount"
	case FraudFlagBlacklistedHash:
		return "blacklisted_hash"
	case FraudFlagDuplicateTx:
		return "duplicate_tx"
	case FraudFlagInvalidFormat:
		return "invalid_format"
	case FraudFlagRateLimitExceeded:
		return "rate_limit_exceeded"
	default:
		return "unknown"
	}
}

// IsFraud reports whether the flag is a hard rule violation. The remaining flags are
// informational and never quarantine a request on their own.
func (f FraudFlag) IsFraud() bool {
	switch f {
	case FraudFlagTransactionFailed,
		FraudFlagWrongRecipient,
		FraudFlagTransactionTooOld,
		FraudFlagBlacklistedHash:
		return true
	default:
		return false
	}
}

func ParseFraudFlag(s string) (FraudFlag, bool) {
	for _, f := range AllFraudFlags {
		if f.String() == s {
			return f, true
		}
	}
	return 0, false
}

func (f FraudFlag) MarshalText() ([]byte, error) {
	if _, ok := ParseFraudFlag(f.String()); !ok {
		return nil, fmt.Errorf("invalid fraud flag %d", f)
	}
	return []byte(f.String()), nil
}

func (f *FraudFlag) UnmarshalText(text []byte) error {
	parsed, ok := ParseFraudFlag(string(text))
	if !ok {
		return fmt.Errorf("invalid fraud flag %q", string(text))
	}
	*f = parsed
	return nil
}

// FraudFlags is an ordered set of flags.
type FraudFlags []FraudFlag

func (fs FraudFlags) Has(flag FraudFlag) bool {
	for _, f := range fs {
		if f == flag {
			return true
		}
	}
	return false
}

func (fs FraudFlags) Add(flags ...FraudFlag) FraudFlags {
	for _, f := range flags {
		if !fs.Has(f) {
			fs = append(fs, f)
		}
	}
	return fs
}

func (fs FraudFlags) HasFraud() bool {
	for _, f := range fs {
		if f.IsFraud() {
			return true
		}
	}
	return false
}

func (fs FraudFlags) Strings() []string {
	out := make([]string, 0, len(fs))
	for _, f := range fs {
		out = append(out, f.String())
	}
	sort.Strings(out)
	return out
}

func (fs FraudFlags) Value() (driver.Value, error) {
	if fs == nil {
		fs = FraudFlags{}
	}
	valueString, err := json.Marshal(fs)
	return string(valueString), err
}

func (fs *FraudFlags) Scan(value any) error {
	var raw []byte
	switch v := value.(type) {
	case nil:
		*fs = nil
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported fraud flags column type %T", value)
	}
	if len(raw) == 0 {
		*fs = nil
		return nil
	}
	var decoded FraudFlags
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return err
	}
	if len(decoded) == 0 {
		decoded = nil
	}
	*fs = decoded
	return nil
}
