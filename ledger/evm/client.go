package evm

import (
	"context"
	"math/big"
	"sort"
	"strings"
	"time"

	core "github.com/DomeLiquid/paycore"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	gethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/pkg/errors"
)

var transferEventSignature = gethcrypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))

// Backend is the subset of the Ethereum RPC used by the adapter. *ethclient.Client implements it.
type Backend interface {
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*gethtypes.Receipt, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*gethtypes.Header, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]gethtypes.Log, error)
}

type Config struct {
	Token     string
	Decimals  int32
	BlockTime time.Duration
	// MaxBlockSpan bounds a single log query.
	MaxBlockSpan uint64
}

type Client struct {
	backend      Backend
	token        common.Address
	decimals     int32
	blockTime    time.Duration
	maxBlockSpan uint64
}

var _ core.LedgerClient = (*Client)(nil)

func Dial(endpoint string) (*ethclient.Client, error) {
	trimmed := strings.TrimSpace(endpoint)
	if trimmed == "" {
		return nil, errors.New("evm endpoint required")
	}
	return ethclient.Dial(trimmed)
}

func New(backend Backend, cfg Config) (*Client, error) {
	if !common.IsHexAddress(cfg.Token) {
		return nil, errors.Wrapf(core.ErrInvalidAddress, "token %q", cfg.Token)
	}
	if cfg.Decimals == 0 {
		cfg.Decimals = core.USDT_DECIMALS
	}
	if cfg.BlockTime <= 0 {
		cfg.BlockTime = 12 * time.Second
	}
	if cfg.MaxBlockSpan == 0 {
		cfg.MaxBlockSpan = 5_000
	}
	return &Client{
		backend:      backend,
		token:        common.HexToAddress(cfg.Token),
		decimals:     cfg.Decimals,
		blockTime:    cfg.BlockTime,
		maxBlockSpan: cfg.MaxBlockSpan,
	}, nil
}

func (c *Client) HashFormat() core.TxHashFormat {
	return core.TxHashFormat{Prefix: "0x", HexLength: 64}
}

func (c *Client) GetTransaction(ctx context.Context, txHash string) (*core.TransactionRecord, error) {
	hash := common.HexToHash(txHash)
	receipt, err := c.backend.TransactionReceipt(ctx, hash)
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return nil, errors.Wrapf(core.ErrTxNotFound, "tx %s", hash.Hex())
		}
		return nil, errors.Wrapf(core.ErrUpstreamUnavailable, "fetch receipt: %v", err)
	}
	if receipt == nil || receipt.BlockNumber == nil {
		return nil, errors.Wrapf(core.ErrTxNotFound, "tx %s pending", hash.Hex())
	}

	head, err := c.backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, errors.Wrapf(core.ErrUpstreamUnavailable, "fetch head: %v", err)
	}
	block, err := c.backend.HeaderByNumber(ctx, receipt.BlockNumber)
	if err != nil {
		return nil, errors.Wrapf(core.ErrUpstreamUnavailable, "fetch block %s: %v", receipt.BlockNumber, err)
	}

	record := &core.TransactionRecord{
		TxHash:        strings.ToLower(hash.Hex()),
		Success:       receipt.Status == gethtypes.ReceiptStatusSuccessful,
		BlockTime:     time.Unix(int64(block.Time), 0),
		Confirmations: confirmations(head, receipt.BlockNumber),
	}
	// A reverted transaction emits no logs; report it so the analyzer can flag it.
	if !record.Success {
		return record, nil
	}

	for _, log := range receipt.Logs {
		if log == nil || !c.isTransfer(log) {
			continue
		}
		if err := c.fill(record, log); err != nil {
			return nil, err
		}
		return record, nil
	}
	return nil, errors.Wrapf(core.ErrTxNotFound, "tx %s has no transfer for %s", hash.Hex(), c.token.Hex())
}

func (c *Client) SearchInbound(ctx context.Context, address string, window core.TimeWindow, limit int) ([]*core.TransactionRecord, error) {
	if !common.IsHexAddress(address) {
		return nil, errors.Wrapf(core.ErrInvalidAddress, "address %q", address)
	}
	if limit <= 0 {
		limit = core.DEFAULT_SEARCH_PAGE_SIZE
	}

	head, err := c.backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, errors.Wrapf(core.ErrUpstreamUnavailable, "fetch head: %v", err)
	}
	toBlock := new(big.Int).Set(head.Number)
	fromBlock := c.estimateBlock(head, window.Start)

	recipient := common.BytesToHash(common.HexToAddress(address).Bytes())
	logs, err := c.backend.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: fromBlock,
		ToBlock:   toBlock,
		Addresses: []common.Address{c.token},
		Topics:    [][]common.Hash{{transferEventSignature}, nil, {recipient}},
	})
	if err != nil {
		return nil, errors.Wrapf(core.ErrUpstreamUnavailable, "filter logs: %v", err)
	}

	blockTimes := make(map[uint64]time.Time)
	records := make([]*core.TransactionRecord, 0, len(logs))
	for i := range logs {
		log := &logs[i]
		if log.Removed || !c.isTransfer(log) {
			continue
		}

		blockTime, ok := blockTimes[log.BlockNumber]
		if !ok {
			header, err := c.backend.HeaderByNumber(ctx, new(big.Int).SetUint64(log.BlockNumber))
			if err != nil {
				return nil, errors.Wrapf(core.ErrUpstreamUnavailable, "fetch block %d: %v", log.BlockNumber, err)
			}
			blockTime = time.Unix(int64(header.Time), 0)
			blockTimes[log.BlockNumber] = blockTime
		}
		if !window.Contains(blockTime) {
			continue
		}

		record := &core.TransactionRecord{
			TxHash:        strings.ToLower(log.TxHash.Hex()),
			Success:       true,
			BlockTime:     blockTime,
			Confirmations: confirmations(head, new(big.Int).SetUint64(log.BlockNumber)),
		}
		if err := c.fill(record, log); err != nil {
			return nil, err
		}
		records = append(records, record)
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].BlockTime.After(records[j].BlockTime)
	})
	if len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

func (c *Client) isTransfer(log *gethtypes.Log) bool {
	return log.Address == c.token && len(log.Topics) >= 3 && log.Topics[0] == transferEventSignature
}

func (c *Client) fill(record *core.TransactionRecord, log *gethtypes.Log) error {
	raw := new(big.Int).SetBytes(log.Data).String()
	amount, err := core.NormalizeRawAmount(raw, c.decimals)
	if err != nil {
		return errors.Wrapf(core.ErrUpstreamUnavailable, "decode amount: %v", err)
	}
	record.FromAddress = common.BytesToAddress(log.Topics[1].Bytes()).Hex()
	record.ToAddress = common.BytesToAddress(log.Topics[2].Bytes()).Hex()
	record.RawAmount = raw
	record.Amount = amount
	return nil
}

// estimateBlock walks back from head using the configured block time.
func (c *Client) estimateBlock(head *gethtypes.Header, at time.Time) *big.Int {
	headTime := time.Unix(int64(head.Time), 0)
	back := uint64(0)
	if headTime.After(at) {
		back = uint64(headTime.Sub(at)/c.blockTime) + 1
	}
	if back > c.maxBlockSpan {
		back = c.maxBlockSpan
	}
	number := head.Number.Uint64()
	if back > number {
		return big.NewInt(0)
	}
	return new(big.Int).SetUint64(number - back)
}

func confirmations(head *gethtypes.Header, block *big.Int) int64 {
	if head == nil || head.Number == nil || block == nil || head.Number.Cmp(block) < 0 {
		return 0
	}
	confirmed := new(big.Int).Sub(head.Number, block)
	return confirmed.Add(confirmed, big.NewInt(1)).Int64()
}
