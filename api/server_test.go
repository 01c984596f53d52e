package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	core "github.com/DomeLiquid/paycore"
	"github.com/DomeLiquid/paycore/guard"
	"github.com/DomeLiquid/paycore/outcome"
	"github.com/DomeLiquid/paycore/store"
	"github.com/DomeLiquid/paycore/verify"
	"github.com/facebookgo/clock"
	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const wallet = "TWalletAddress00000000000000000001"

var (
	baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	goodHash = strings.Repeat("ab", 32)
)

type stubLedger struct {
	txs map[string]*core.TransactionRecord
}

func (l *stubLedger) GetTransaction(_ context.Context, txHash string) (*core.TransactionRecord, error) {
	tx, ok := l.txs[txHash]
	if !ok {
		return nil, core.ErrTxNotFound
	}
	return tx, nil
}

func (l *stubLedger) SearchInbound(context.Context, string, core.TimeWindow, int) ([]*core.TransactionRecord, error) {
	return nil, nil
}

func (l *stubLedger) HashFormat() core.TxHashFormat {
	return core.TxHashFormat{HexLength: 64}
}

type recordingActivator struct {
	mu   sync.Mutex
	keys []string
}

func (a *recordingActivator) ActivateSubscription(_ context.Context, _, _, key string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.keys = append(a.keys, key)
	return nil
}

type silentNotifier struct{}

func (silentNotifier) NotifyOwner(context.Context, string, string, string) error { return nil }

type testServer struct {
	server    *Server
	store     *store.Store
	ledger    *stubLedger
	activator *recordingActivator
	clk       *clock.Mock
}

func newTestServer(t *testing.T, limit RateLimit) *testServer {
	t.Helper()
	s, err := store.Open("file:" + uuid.Must(uuid.NewV4()).String() + "?mode=memory&cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	clk := clock.NewMock()
	clk.Add(baseTime.Sub(clk.Now()))
	settings := core.StaticSettings(core.DefaultSettings())

	ts := &testServer{
		store:     s,
		ledger:    &stubLedger{txs: map[string]*core.TransactionRecord{}},
		activator: &recordingActivator{},
		clk:       clk,
	}
	orch := verify.New(verify.Config{
		Ledger:   ts.ledger,
		Guard:    guard.New(s, s, settings, clk),
		Attempts: s,
		Settings: settings,
		Clock:    clk,
	})
	applier := outcome.New(outcome.Config{
		Requests:  s,
		Activator: ts.activator,
		Notifier:  silentNotifier{},
		Clock:     clk,
	})
	ts.server = New(Config{
		Requests:       s,
		Attempts:       s,
		Verifier:       orch,
		Applier:        applier,
		Health:         s,
		Settings:       settings,
		Wallet:         wallet,
		SubmitLimit:    limit,
		MetricsHandler: http.NotFoundHandler(),
		Clock:          clk,
	})
	return ts
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	ts.server.Handler().ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) create(t *testing.T, amount string) *core.PaymentRequest {
	t.Helper()
	rec := ts.do(t, http.MethodPost, "/v1/payment-requests", map[string]any{
		"owner":   "owner-1",
		"plan_id": "pro",
		"amount":  amount,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var request core.PaymentRequest
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &request))
	return &request
}

func decodeSubmission(t *testing.T, rec *httptest.ResponseRecorder) submissionResponse {
	t.Helper()
	var resp submissionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestCreatePaymentRequest(t *testing.T) {
	ts := newTestServer(t, RateLimit{})
	request := ts.create(t, "25.00")

	assert.Equal(t, wallet, request.DestinationAddress)
	assert.Equal(t, core.PaymentRequestStatusPending, request.Status)
	assert.Equal(t, baseTime.Add(core.DEFAULT_PAYMENT_TIMEOUT).Unix(), request.ExpiresAt)

	rec := ts.do(t, http.MethodGet, "/v1/payment-requests/"+request.Id, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var loaded core.PaymentRequest
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &loaded))
	assert.Equal(t, request.Id, loaded.Id)
	assert.True(t, loaded.RequestedAmount.Equal(decimal.RequireFromString("25")))
}

func TestCreatePaymentRequestInvalid(t *testing.T) {
	ts := newTestServer(t, RateLimit{})
	tests := []struct {
		name string
		body map[string]any
	}{
		{"missing owner", map[string]any{"plan_id": "pro", "amount": "1"}},
		{"missing plan", map[string]any{"owner": "o", "amount": "1"}},
		{"non numeric amount", map[string]any{"owner": "o", "plan_id": "pro", "amount": "abc"}},
		{"negative amount", map[string]any{"owner": "o", "plan_id": "pro", "amount": "-1"}},
		{"zero amount", map[string]any{"owner": "o", "plan_id": "pro", "amount": "0"}},
		{"negative ttl", map[string]any{"owner": "o", "plan_id": "pro", "amount": "1", "ttl_seconds": -5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(t, http.MethodPost, "/v1/payment-requests", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestGetPaymentRequestNotFound(t *testing.T) {
	ts := newTestServer(t, RateLimit{})
	rec := ts.do(t, http.MethodGet, "/v1/payment-requests/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSubmitTransaction(t *testing.T) {
	ts := newTestServer(t, RateLimit{})
	request := ts.create(t, "25.00")
	ts.ledger.txs[goodHash] = &core.TransactionRecord{
		TxHash:        goodHash,
		Success:       true,
		BlockTime:     baseTime.Add(-5 * time.Minute),
		Confirmations: 3,
		ToAddress:     wallet,
		Amount:        decimal.RequireFromString("25.00"),
	}

	rec := ts.do(t, http.MethodPost, "/v1/payment-requests/"+request.Id+"/transactions", map[string]string{
		"tx_hash": "  " + strings.ToUpper(goodHash) + "\n",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decodeSubmission(t, rec)
	assert.Equal(t, "success", resp.Outcome)
	assert.Equal(t, "verified", resp.Status)
	assert.Equal(t, outcome.OwnerMessage(core.OutcomeSuccess), resp.Message)
	assert.Equal(t, []string{request.Id}, ts.activator.keys)

	// resubmission of a resolved request
	rec = ts.do(t, http.MethodPost, "/v1/payment-requests/"+request.Id+"/transactions", map[string]string{"tx_hash": goodHash})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "verified", decodeSubmission(t, rec).Status)
	assert.Len(t, ts.activator.keys, 1)

	rec = ts.do(t, http.MethodGet, "/v1/payment-requests/"+request.Id+"/attempts", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var attempts []core.VerificationAttempt
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &attempts))
	require.Len(t, attempts, 1)
	assert.Equal(t, core.OutcomeSuccess, attempts[0].Outcome)
	assert.Equal(t, core.AttemptSourceUser, attempts[0].Source)
}

func TestSubmitTransactionOutcomes(t *testing.T) {
	ts := newTestServer(t, RateLimit{})
	ts.ledger.txs[goodHash] = &core.TransactionRecord{
		TxHash:        goodHash,
		Success:       true,
		BlockTime:     baseTime.Add(-5 * time.Minute),
		Confirmations: 3,
		ToAddress:     "TSomeoneElse",
		Amount:        decimal.RequireFromString("25.00"),
	}

	tests := []struct {
		name    string
		hash    string
		outcome core.Outcome
		status  core.PaymentRequestStatus
	}{
		{"invalid format", "not-a-hash", core.OutcomeInvalidFormat, core.PaymentRequestStatusPending},
		{"not found", strings.Repeat("cd", 32), core.OutcomeNotFound, core.PaymentRequestStatusPending},
		{"wrong recipient", goodHash, core.OutcomeFraudDetected, core.PaymentRequestStatusFraudDetected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			request := ts.create(t, "25.00")
			rec := ts.do(t, http.MethodPost, "/v1/payment-requests/"+request.Id+"/transactions", map[string]string{"tx_hash": tt.hash})
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			resp := decodeSubmission(t, rec)
			assert.Equal(t, tt.outcome.String(), resp.Outcome)
			assert.Equal(t, tt.status.String(), resp.Status)
			assert.NotContains(t, resp.Message, "recipient")
		})
	}
	assert.Empty(t, ts.activator.keys)
}

func TestSubmitTransactionValidation(t *testing.T) {
	ts := newTestServer(t, RateLimit{})
	request := ts.create(t, "25.00")

	rec := ts.do(t, http.MethodPost, "/v1/payment-requests/"+request.Id+"/transactions", map[string]string{"tx_hash": "   "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPost, "/v1/payment-requests/missing/transactions", map[string]string{"tx_hash": goodHash})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSubmitTransactionDailyLimit(t *testing.T) {
	ts := newTestServer(t, RateLimit{})
	request := ts.create(t, "25.00")

	path := "/v1/payment-requests/" + request.Id + "/transactions"
	for i := 0; i < core.DEFAULT_RATE_LIMIT_PER_DAY; i++ {
		rec := ts.do(t, http.MethodPost, path, map[string]string{"tx_hash": "bad"})
		require.Equal(t, http.StatusOK, rec.Code)
	}
	rec := ts.do(t, http.MethodPost, path, map[string]string{"tx_hash": "bad"})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, core.OutcomeRateLimited.String(), decodeSubmission(t, rec).Outcome)
}

func TestSubmitThrottle(t *testing.T) {
	ts := newTestServer(t, RateLimit{PerSecond: 0.001, Burst: 1})
	request := ts.create(t, "25.00")

	path := "/v1/payment-requests/" + request.Id + "/transactions"
	rec := ts.do(t, http.MethodPost, path, map[string]string{"tx_hash": "bad"})
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = ts.do(t, http.MethodPost, path, map[string]string{"tx_hash": "bad"})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	// other routes are not throttled
	rec = ts.do(t, http.MethodGet, "/v1/payment-requests/"+request.Id, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t, RateLimit{})
	rec := ts.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	require.NoError(t, ts.store.Close())
	rec = ts.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
