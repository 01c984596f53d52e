package outcome

import (
	"context"
	"strings"
	"sync"
	"testing"

	core "github.com/DomeLiquid/paycore"
	"github.com/DomeLiquid/paycore/store"
	"github.com/DomeLiquid/paycore/utils"
	"github.com/facebookgo/clock"
	"github.com/gofrs/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type activation struct {
	owner, planId, key string
}

type fakeActivator struct {
	mu    sync.Mutex
	calls []activation
	err   error
}

func (f *fakeActivator) ActivateSubscription(_ context.Context, owner, planId, idempotencyKey string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, activation{owner, planId, idempotencyKey})
	return f.err
}

type notification struct {
	owner, messageId, text string
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []notification
}

func (f *fakeNotifier) NotifyOwner(_ context.Context, owner, messageId, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, notification{owner, messageId, text})
	return nil
}

type harness struct {
	applier   *Applier
	store     *store.Store
	activator *fakeActivator
	notifier  *fakeNotifier
	clk       *clock.Mock
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	s, err := store.Open("file:" + uuid.Must(uuid.NewV4()).String() + "?mode=memory&cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	h := &harness{
		store:     s,
		activator: &fakeActivator{},
		notifier:  &fakeNotifier{},
		clk:       clock.NewMock(),
	}
	h.applier = New(Config{
		Requests:  s,
		Activator: h.activator,
		Notifier:  h.notifier,
		Clock:     h.clk,
	})
	return h
}

func (h *harness) request(t *testing.T, owner string) *core.PaymentRequest {
	t.Helper()
	req, err := core.NewPaymentRequest(h.clk, owner, "pro-30d", decimal.RequireFromString("25"), "TWallet", 0)
	require.NoError(t, err)
	require.NoError(t, h.store.CreatePaymentRequest(context.Background(), req))
	return req
}

func success(hash string) core.Verdict {
	return core.Verdict{
		Outcome:    core.OutcomeSuccess,
		TxHash:     hash,
		Amount:     decimal.RequireFromString("25.1"),
		Confidence: 0.98,
	}
}

func TestApply_SuccessIsIdempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	req := h.request(t, "alice")

	res, err := h.applier.Apply(ctx, req, success("hash-1"))
	require.NoError(t, err)
	assert.True(t, res.Applied)
	assert.Equal(t, core.PaymentRequestStatusVerified, res.Status)

	res, err = h.applier.Apply(ctx, req, success("hash-1"))
	require.NoError(t, err)
	assert.False(t, res.Applied)
	assert.Equal(t, core.PaymentRequestStatusVerified, res.Status)

	require.Len(t, h.activator.calls, 1)
	assert.Equal(t, activation{"alice", "pro-30d", req.Id}, h.activator.calls[0])
	require.Len(t, h.notifier.sent, 1)
	assert.Equal(t, utils.GenUuidFromStrings(req.Id, "verified"), h.notifier.sent[0].messageId)

	got, err := h.store.GetPaymentRequest(ctx, req.Id)
	require.NoError(t, err)
	assert.Equal(t, core.PaymentRequestStatusVerified, got.Status)
	require.NotNil(t, got.ResolvedTxHash)
	assert.Equal(t, "hash-1", *got.ResolvedTxHash)
	assert.True(t, got.ResolvedAmount.Decimal.Equal(decimal.RequireFromString("25.1")))
}

func TestApply_ConcurrentSuccessActivatesOnce(t *testing.T) {
	h := newHarness(t)
	req := h.request(t, "alice")

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			copied := *req
			_, err := h.applier.Apply(context.Background(), &copied, success("hash-1"))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Len(t, h.activator.calls, 1)
}

func TestApply_ActivationFailureKeepsVerified(t *testing.T) {
	h := newHarness(t)
	h.activator.err = errors.New("activation service down")
	req := h.request(t, "alice")

	res, err := h.applier.Apply(context.Background(), req, success("hash-1"))
	require.NoError(t, err)
	assert.Equal(t, core.PaymentRequestStatusVerified, res.Status)

	got, err := h.store.GetPaymentRequest(context.Background(), req.Id)
	require.NoError(t, err)
	assert.Equal(t, core.PaymentRequestStatusVerified, got.Status)
}

func TestApply_ClaimedHashBecomesDuplicate(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	winner := h.request(t, "alice")
	loser := h.request(t, "bob")

	_, err := h.applier.Apply(ctx, winner, success("hash-1"))
	require.NoError(t, err)

	res, err := h.applier.Apply(ctx, loser, success("hash-1"))
	require.NoError(t, err)
	assert.Equal(t, core.PaymentRequestStatusDuplicate, res.Status)
	assert.Equal(t, OwnerMessage(core.OutcomeDuplicate), res.Message)
	assert.Len(t, h.activator.calls, 1)

	got, err := h.store.GetPaymentRequest(ctx, loser.Id)
	require.NoError(t, err)
	assert.Equal(t, core.PaymentRequestStatusDuplicate, got.Status)
	assert.True(t, got.FraudFlags.Has(core.FraudFlagDuplicateTx))
}

func TestApply_Terminal(t *testing.T) {
	tests := []struct {
		name       string
		verdict    core.Verdict
		wantStatus core.PaymentRequestStatus
	}{
		{
			name: "fraud",
			verdict: core.Verdict{
				Outcome: core.OutcomeFraudDetected,
				TxHash:  "hash-9",
				Flags:   core.FraudFlags{core.FraudFlagWrongRecipient},
				Reason:  "rule violated: wrong_recipient",
			},
			wantStatus: core.PaymentRequestStatusFraudDetected,
		},
		{
			name:       "duplicate",
			verdict:    core.Verdict{Outcome: core.OutcomeDuplicate, TxHash: "hash-9", Flags: core.FraudFlags{core.FraudFlagDuplicateTx}},
			wantStatus: core.PaymentRequestStatusDuplicate,
		},
		{
			name:       "expired",
			verdict:    core.NewVerdict(core.OutcomeExpired, ""),
			wantStatus: core.PaymentRequestStatusExpired,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			req := h.request(t, "alice")

			res, err := h.applier.Apply(context.Background(), req, tt.verdict)
			require.NoError(t, err)
			assert.True(t, res.Applied)
			assert.Equal(t, tt.wantStatus, res.Status)
			assert.Empty(t, h.activator.calls)

			got, err := h.store.GetPaymentRequest(context.Background(), req.Id)
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, got.Status)
			assert.Equal(t, tt.verdict.Flags, got.FraudFlags)

			require.Len(t, h.notifier.sent, 1)
			for _, flag := range tt.verdict.Flags {
				assert.False(t, strings.Contains(h.notifier.sent[0].text, flag.String()))
			}
		})
	}
}

func TestApply_NonTerminalLeavesPending(t *testing.T) {
	outcomes := []core.Outcome{
		core.OutcomeAmountMismatch,
		core.OutcomeNotFound,
		core.OutcomeInvalidFormat,
		core.OutcomeUpstreamUnavailable,
		core.OutcomeRateLimited,
	}
	h := newHarness(t)
	req := h.request(t, "alice")

	for _, o := range outcomes {
		res, err := h.applier.Apply(context.Background(), req, core.NewVerdict(o, ""))
		require.NoError(t, err)
		assert.False(t, res.Applied)
		assert.Equal(t, core.PaymentRequestStatusPending, res.Status)
		assert.Equal(t, OwnerMessage(o), res.Message)
	}

	got, err := h.store.GetPaymentRequest(context.Background(), req.Id)
	require.NoError(t, err)
	assert.Equal(t, core.PaymentRequestStatusPending, got.Status)
	assert.Empty(t, h.notifier.sent)
	assert.Empty(t, h.activator.calls)
}

func TestOwnerMessage_CoversEveryOutcome(t *testing.T) {
	seen := map[string]bool{}
	for _, o := range core.AllOutcomes {
		msg := OwnerMessage(o)
		assert.NotEqual(t, "Payment verification failed.", msg, o.String())
		assert.False(t, seen[msg], "message reused for %s", o)
		seen[msg] = true
	}
}
