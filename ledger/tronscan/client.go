package tronscan

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"time"

	core "github.com/DomeLiquid/paycore"
	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
)

const (
	DefaultEndpoint = "https://apilist.tronscanapi.com"
	// USDT TRC-20
	DefaultContract = "TR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj6t"

	apiKeyHeader       = "TRON-PRO-API-KEY"
	contractRetSuccess = "SUCCESS"
)

type Config struct {
	Endpoint string
	ApiKey   string
	Contract string
	Decimals int32
	Timeout  time.Duration
}

type Client struct {
	client   *resty.Client
	contract string
	decimals int32
	log      core.Log
}

var _ core.LedgerClient = (*Client)(nil)

func New(cfg Config, log core.Log) *Client {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.Contract == "" {
		cfg.Contract = DefaultContract
	}
	if cfg.Decimals == 0 {
		cfg.Decimals = core.USDT_DECIMALS
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}

	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.Endpoint, "/")).
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "application/json")
	if cfg.ApiKey != "" {
		client.SetHeader(apiKeyHeader, cfg.ApiKey)
	}

	return &Client{
		client:   client,
		contract: cfg.Contract,
		decimals: cfg.Decimals,
		log:      log,
	}
}

func (c *Client) HashFormat() core.TxHashFormat {
	return core.TxHashFormat{HexLength: 64}
}

type (
	transactionInfo struct {
		Hash          string          `json:"hash"`
		ContractRet   string          `json:"contractRet"`
		Revert        bool            `json:"revert"`
		Confirmed     bool            `json:"confirmed"`
		Confirmations *int64          `json:"confirmations"`
		Timestamp     int64           `json:"timestamp"`
		Transfers     []trc20Transfer `json:"trc20TransferInfo"`
	}

	trc20Transfer struct {
		ContractAddress string `json:"contract_address"`
		FromAddress     string `json:"from_address"`
		ToAddress       string `json:"to_address"`
		AmountStr       string `json:"amount_str"`
	}

	transfersPage struct {
		Total     int64           `json:"total"`
		Transfers []tokenTransfer `json:"token_transfers"`
	}

	tokenTransfer struct {
		TransactionId string `json:"transaction_id"`
		BlockTs       int64  `json:"block_ts"`
		FromAddress   string `json:"from_address"`
		ToAddress     string `json:"to_address"`
		Quant         string `json:"quant"`
		Confirmed     bool   `json:"confirmed"`
		ContractRet   string `json:"contractRet"`
		FinalResult   string `json:"finalResult"`
		Revert        bool   `json:"revert"`
	}
)

func (c *Client) GetTransaction(ctx context.Context, txHash string) (*core.TransactionRecord, error) {
	var info transactionInfo
	if err := c.get(ctx, "/api/transaction-info", map[string]string{"hash": txHash}, &info); err != nil {
		return nil, err
	}
	if info.Hash == "" && info.ContractRet == "" {
		return nil, errors.Wrapf(core.ErrTxNotFound, "tx %s", txHash)
	}

	var transfer *trc20Transfer
	for i := range info.Transfers {
		if strings.EqualFold(info.Transfers[i].ContractAddress, c.contract) {
			transfer = &info.Transfers[i]
			break
		}
	}
	if transfer == nil {
		return nil, errors.Wrapf(core.ErrTxNotFound, "tx %s has no transfer for %s", txHash, c.contract)
	}

	amount, err := core.NormalizeRawAmount(transfer.AmountStr, c.decimals)
	if err != nil {
		return nil, errors.Wrapf(core.ErrUpstreamUnavailable, "tx %s: %v", txHash, err)
	}

	confirmations := int64(0)
	if info.Confirmations != nil {
		confirmations = *info.Confirmations
	} else if info.Confirmed {
		confirmations = 1
	}

	hash := info.Hash
	if hash == "" {
		hash = txHash
	}
	return &core.TransactionRecord{
		TxHash:        strings.ToLower(hash),
		Success:       info.ContractRet == contractRetSuccess && !info.Revert,
		BlockTime:     time.UnixMilli(info.Timestamp),
		Confirmations: confirmations,
		FromAddress:   transfer.FromAddress,
		ToAddress:     transfer.ToAddress,
		RawAmount:     transfer.AmountStr,
		Amount:        amount,
	}, nil
}

func (c *Client) SearchInbound(ctx context.Context, address string, window core.TimeWindow, limit int) ([]*core.TransactionRecord, error) {
	if limit <= 0 {
		limit = core.DEFAULT_SEARCH_PAGE_SIZE
	}
	params := map[string]string{
		"toAddress":        address,
		"contract_address": c.contract,
		"start_timestamp":  strconv.FormatInt(window.Start.UnixMilli(), 10),
		"end_timestamp":    strconv.FormatInt(window.End.UnixMilli(), 10),
		"limit":            strconv.Itoa(limit),
		"start":            "0",
		"sort":             "-timestamp",
		"filterTokenValue": "0",
	}

	var page transfersPage
	if err := c.get(ctx, "/api/token_trc20/transfers", params, &page); err != nil {
		return nil, err
	}

	records := make([]*core.TransactionRecord, 0, len(page.Transfers))
	for _, t := range page.Transfers {
		if t.TransactionId == "" || !strings.EqualFold(t.ToAddress, address) {
			continue
		}
		blockTime := time.UnixMilli(t.BlockTs)
		if !window.Contains(blockTime) {
			continue
		}
		amount, err := core.NormalizeRawAmount(t.Quant, c.decimals)
		if err != nil {
			c.log.Warn().Err(err).Str("tx_hash", t.TransactionId).Msg("skip transfer with unparsable amount")
			continue
		}

		confirmations := int64(0)
		if t.Confirmed {
			confirmations = 1
		}
		ret := t.ContractRet
		if ret == "" {
			ret = t.FinalResult
		}
		records = append(records, &core.TransactionRecord{
			TxHash:        strings.ToLower(t.TransactionId),
			Success:       ret == contractRetSuccess && !t.Revert,
			BlockTime:     blockTime,
			Confirmations: confirmations,
			FromAddress:   t.FromAddress,
			ToAddress:     t.ToAddress,
			RawAmount:     t.Quant,
			Amount:        amount,
		})
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].BlockTime.After(records[j].BlockTime)
	})
	if len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

func (c *Client) get(ctx context.Context, path string, params map[string]string, out any) error {
	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParams(params).
		ForceContentType("application/json").
		SetResult(out).
		Get(path)
	if err != nil {
		return errors.Wrapf(core.ErrUpstreamUnavailable, "GET %s: %v", path, err)
	}
	if !resp.IsSuccess() {
		return errors.Wrapf(core.ErrUpstreamUnavailable, "GET %s: status %d", path, resp.StatusCode())
	}
	return nil
}
