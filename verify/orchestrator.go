package verify

import (
	"context"
	"strings"
	"time"

	core "github.com/DomeLiquid/paycore"
	"github.com/DomeLiquid/paycore/metrics"
	"github.com/DomeLiquid/paycore/security"
	"github.com/facebookgo/clock"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// Guard is the duplicate and rate check used before touching the ledger.
type Guard interface {
	IsDuplicate(ctx context.Context, txHash string, excludingId string) (bool, error)
	CheckRateLimit(ctx context.Context, owner string) (bool, error)
	LockOwner(ctx context.Context, owner string) (unlock func(), err error)
}

type Config struct {
	Ledger   core.LedgerClient
	Guard    Guard
	Attempts core.VerificationAttemptStore
	Audit    core.AuditSink
	Settings core.SettingsProvider
	Metrics  metrics.Recorder
	Clock    clock.Clock
	Log      core.Log
}

// Orchestrator runs single verification attempts. It never changes request status; the
// returned verdict is handed to the outcome applier.
type Orchestrator struct {
	ledger   core.LedgerClient
	guard    Guard
	attempts core.VerificationAttemptStore
	audit    core.AuditSink
	settings core.SettingsProvider
	metrics  metrics.Recorder
	clk      clock.Clock
	log      core.Log
}

func New(cfg Config) *Orchestrator {
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NewNoopRecorder()
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.Log == nil {
		cfg.Log = core.NopLog()
	}
	return &Orchestrator{
		ledger:   cfg.Ledger,
		guard:    cfg.Guard,
		attempts: cfg.Attempts,
		audit:    cfg.Audit,
		settings: cfg.Settings,
		metrics:  cfg.Metrics,
		clk:      cfg.Clock,
		log:      cfg.Log,
	}
}

// VerifyHash checks a caller supplied transaction hash against the request. The returned
// error is set only when the attempt could not be evaluated or recorded.
func (o *Orchestrator) VerifyHash(ctx context.Context, request *core.PaymentRequest, rawHash string, source core.AttemptSource) (core.Verdict, error) {
	if !request.IsPending() {
		return core.Verdict{}, core.ErrAlreadyResolved
	}
	if source == core.AttemptSourceUser {
		unlock, err := o.guard.LockOwner(ctx, request.Owner)
		if err != nil {
			return core.Verdict{}, err
		}
		defer unlock()
	}
	settings := o.settings.Settings()
	start := o.clk.Now()

	ctx, cancel := context.WithTimeout(ctx, settings.VerificationTimeout)
	defer cancel()

	verdict, err := o.verifyHash(ctx, request, rawHash, source, settings)
	if err != nil {
		o.recordFailure(ctx, request, source, err, start)
		return core.Verdict{}, err
	}
	return verdict, o.record(ctx, request, source, verdict, start)
}

func (o *Orchestrator) verifyHash(ctx context.Context, request *core.PaymentRequest, rawHash string, source core.AttemptSource, settings core.Settings) (core.Verdict, error) {
	now := o.clk.Now()
	if request.IsExpired(now) {
		return core.NewVerdict(core.OutcomeExpired, "payment window elapsed"), nil
	}

	if source == core.AttemptSourceUser {
		allowed, err := o.guard.CheckRateLimit(ctx, request.Owner)
		if err != nil {
			return core.Verdict{}, err
		}
		if !allowed {
			verdict := core.NewVerdict(core.OutcomeRateLimited, "daily attempt ceiling reached")
			verdict.Flags = verdict.Flags.Add(core.FraudFlagRateLimitExceeded)
			return verdict, nil
		}
	}

	txHash, err := o.ledger.HashFormat().Normalize(rawHash)
	if err != nil {
		verdict := core.NewVerdict(core.OutcomeInvalidFormat, err.Error())
		verdict.Flags = verdict.Flags.Add(core.FraudFlagInvalidFormat)
		return verdict, nil
	}

	if settings.IsBlacklisted(o.ledger.HashFormat(), txHash) {
		verdict := core.NewVerdict(core.OutcomeFraudDetected, "hash is blacklisted")
		verdict.TxHash = txHash
		verdict.Flags = verdict.Flags.Add(core.FraudFlagBlacklistedHash)
		return verdict, nil
	}

	dup, err := o.guard.IsDuplicate(ctx, txHash, request.Id)
	if err != nil {
		return core.Verdict{}, err
	}
	if dup {
		return duplicateVerdict(txHash), nil
	}

	tx, err := o.ledger.GetTransaction(ctx, txHash)
	if err != nil {
		return o.ledgerFailure(txHash, err), nil
	}

	analysis := security.Analyze(tx, request.RequestedAmount, request.DestinationAddress, o.clk.Now(), settings)
	verdict := core.Verdict{
		TxHash:        txHash,
		Amount:        analysis.ActualAmount,
		Confirmations: tx.Confirmations,
		Flags:         analysis.Flags,
	}
	switch {
	case analysis.Fraud:
		verdict.Outcome = core.OutcomeFraudDetected
		verdict.Reason = "rule violated: " + strings.Join(analysis.Flags.Strings(), ",")
	case !analysis.AmountMatch:
		verdict.Outcome = core.OutcomeAmountMismatch
		verdict.Confidence = analysis.Confidence
		verdict.Reason = "amount deviates " + analysis.Deviation.StringFixed(4) + "%"
	default:
		verdict.Outcome = core.OutcomeSuccess
		verdict.Confidence = analysis.Confidence
	}
	return verdict, nil
}

// SearchWindow looks for an inbound transfer that plausibly pays the request.
func (o *Orchestrator) SearchWindow(ctx context.Context, request *core.PaymentRequest) (core.Verdict, error) {
	if !request.IsPending() {
		return core.Verdict{}, core.ErrAlreadyResolved
	}
	settings := o.settings.Settings()
	start := o.clk.Now()

	ctx, cancel := context.WithTimeout(ctx, settings.VerificationTimeout)
	defer cancel()

	verdict, err := o.searchWindow(ctx, request, settings)
	if err != nil {
		o.recordFailure(ctx, request, core.AttemptSourceScheduler, err, start)
		return core.Verdict{}, err
	}
	return verdict, o.record(ctx, request, core.AttemptSourceScheduler, verdict, start)
}

// Expire records the expiry of a request whose payment window has elapsed. It makes no
// ledger call.
func (o *Orchestrator) Expire(ctx context.Context, request *core.PaymentRequest) (core.Verdict, error) {
	if !request.IsPending() {
		return core.Verdict{}, core.ErrAlreadyResolved
	}
	start := o.clk.Now()
	if !request.IsExpired(start) {
		return core.Verdict{}, errors.Errorf("payment request %s has not expired", request.Id)
	}
	verdict := core.NewVerdict(core.OutcomeExpired, "payment window elapsed")
	return verdict, o.record(ctx, request, core.AttemptSourceScheduler, verdict, start)
}

func (o *Orchestrator) searchWindow(ctx context.Context, request *core.PaymentRequest, settings core.Settings) (core.Verdict, error) {
	now := o.clk.Now()
	if request.IsExpired(now) {
		return core.NewVerdict(core.OutcomeExpired, "payment window elapsed"), nil
	}

	window := SearchWindowFor(request, now, settings)
	if !window.Valid() {
		return core.NewVerdict(core.OutcomeNotFound, "empty search window"), nil
	}

	candidates, err := o.ledger.SearchInbound(ctx, request.DestinationAddress, window, settings.SearchPageSize)
	if err != nil {
		return o.ledgerFailure("", err), nil
	}

	format := o.ledger.HashFormat()
	var (
		best      *core.TransactionRecord
		bestScore decimal.Decimal
		bestFlags core.FraudFlags
	)
	for _, tx := range candidates {
		if settings.IsBlacklisted(format, tx.TxHash) {
			continue
		}
		dup, err := o.guard.IsDuplicate(ctx, tx.TxHash, request.Id)
		if err != nil {
			return core.Verdict{}, err
		}
		if dup {
			continue
		}

		analysis := security.Analyze(tx, request.RequestedAmount, request.DestinationAddress, now, settings)
		if analysis.Fraud || !analysis.AmountMatch {
			continue
		}
		closeness := core.AmountCloseness(tx.Amount, request.RequestedAmount)
		if closeness.LessThan(settings.Window.MinCloseness) {
			continue
		}

		score := ScoreCandidate(closeness, analysis.Age, settings.Window)
		if !score.GreaterThan(settings.Window.AcceptanceFloor) {
			continue
		}
		if best == nil || score.GreaterThan(bestScore) {
			best, bestScore, bestFlags = tx, score, analysis.Flags
		}
	}

	if best == nil {
		verdict := core.NewVerdict(core.OutcomeNotFound, "no qualifying transfer in window")
		return verdict, nil
	}
	return core.Verdict{
		Outcome:       core.OutcomeSuccess,
		TxHash:        best.TxHash,
		Amount:        best.Amount,
		Confidence:    bestScore.InexactFloat64(),
		Confirmations: best.Confirmations,
		Flags:         bestFlags,
	}, nil
}

// SearchWindowFor spans from shortly before creation up to the max-age horizon, never past now.
func SearchWindowFor(request *core.PaymentRequest, now time.Time, settings core.Settings) core.TimeWindow {
	created := request.CreatedTime()
	end := created.Add(settings.MaxTxAge)
	if now.Before(end) {
		end = now
	}
	return core.TimeWindow{
		Start: created.Add(-settings.LookbackSkew),
		End:   end,
	}
}

// ScoreCandidate weighs amount closeness against recency.
func ScoreCandidate(closeness decimal.Decimal, age time.Duration, w core.WindowScoring) decimal.Decimal {
	recency := core.RecencyScore(age, w.RecencyHorizon)
	return closeness.Mul(w.AmountWeight).Add(recency.Mul(w.RecencyWeight))
}

func (o *Orchestrator) ledgerFailure(txHash string, err error) core.Verdict {
	outcome := core.OutcomeUpstreamUnavailable
	if errors.Is(err, core.ErrTxNotFound) {
		outcome = core.OutcomeNotFound
	} else {
		o.metrics.IncCounter(metrics.UpstreamErrors, nil)
		if !errors.Is(err, core.ErrUpstreamUnavailable) {
			o.log.Warn().Err(err).Msg("unexpected ledger error")
		}
	}
	verdict := core.NewVerdict(outcome, err.Error())
	verdict.TxHash = txHash
	return verdict
}

func (o *Orchestrator) record(ctx context.Context, request *core.PaymentRequest, source core.AttemptSource, verdict core.Verdict, start time.Time) error {
	latency := o.clk.Now().Sub(start)
	attempt := core.NewVerificationAttempt(o.clk, request, source, verdict, latency)

	labels := map[string]string{"outcome": verdict.Outcome.String(), "source": source.String()}
	o.metrics.IncCounter(metrics.Attempts, labels)
	o.metrics.ObserveLatency(metrics.AttemptLatency, latency, labels)

	o.log.Info().
		Str("request_id", request.Id).
		Str("owner", request.Owner).
		Str("source", source.String()).
		Str("outcome", verdict.Outcome.String()).
		Str("tx_hash", verdict.TxHash).
		Float64("confidence", verdict.Confidence).
		Strs("flags", verdict.Flags.Strings()).
		Str("reason", verdict.Reason).
		Int64("latency_ms", attempt.LatencyMs).
		Msg("verification attempt")

	// Recording must survive an attempt that ran out of time.
	recordCtx := context.WithoutCancel(ctx)
	if err := o.attempts.CreateVerificationAttempt(recordCtx, attempt); err != nil {
		return errors.Wrap(err, "record verification attempt")
	}
	if o.audit != nil {
		o.audit.Publish(recordCtx, core.NewAuditEvent(attempt))
	}
	return nil
}

// recordFailure logs an attempt that could not be evaluated. The original error is what the
// caller sees, so a failure to record is only logged.
func (o *Orchestrator) recordFailure(ctx context.Context, request *core.PaymentRequest, source core.AttemptSource, cause error, start time.Time) {
	verdict := core.NewVerdict(core.OutcomeUpstreamUnavailable, cause.Error())
	if err := o.record(ctx, request, source, verdict, start); err != nil {
		o.log.Warn().Err(err).Str("request_id", request.Id).Msg("record failed attempt")
	}
}

func duplicateVerdict(txHash string) core.Verdict {
	verdict := core.NewVerdict(core.OutcomeDuplicate, "hash already bound to another request")
	verdict.TxHash = txHash
	verdict.Flags = verdict.Flags.Add(core.FraudFlagDuplicateTx)
	return verdict
}
