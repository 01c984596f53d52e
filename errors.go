package core

import "github.com/pkg/errors"

var (
	ErrTxNotFound          = errors.New("transaction not found")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	ErrInvalidTxHash       = errors.New("invalid transaction hash")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrInvalidAddress      = errors.New("invalid address")
	ErrRequestNotFound     = errors.New("payment request not found")
	ErrAlreadyResolved     = errors.New("payment request already resolved")
	ErrTxHashClaimed       = errors.New("transaction hash already claimed")
)
