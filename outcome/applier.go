package outcome

import (
	"context"

	core "github.com/DomeLiquid/paycore"
	"github.com/DomeLiquid/paycore/metrics"
	"github.com/DomeLiquid/paycore/utils"
	"github.com/facebookgo/clock"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

type Config struct {
	Requests  core.PaymentRequestStore
	Activator core.Activator
	Notifier  core.Notifier
	Metrics   metrics.Recorder
	Clock     clock.Clock
	Log       core.Log
}

type Applier struct {
	requests  core.PaymentRequestStore
	activator core.Activator
	notifier  core.Notifier
	metrics   metrics.Recorder
	clk       clock.Clock
	log       core.Log
}

// Result describes what applying a verdict did to the request.
type Result struct {
	Status  core.PaymentRequestStatus
	Applied bool
	Message string
}

func New(cfg Config) *Applier {
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NewNoopRecorder()
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.Log == nil {
		cfg.Log = core.NopLog()
	}
	return &Applier{
		requests:  cfg.Requests,
		activator: cfg.Activator,
		notifier:  cfg.Notifier,
		metrics:   cfg.Metrics,
		clk:       cfg.Clock,
		log:       cfg.Log,
	}
}

// Apply moves a pending request to the terminal status the verdict maps to. Non-terminal
// verdicts leave the request pending. Applying to a request that is already terminal is a
// no-op, so a verdict may be applied any number of times.
func (a *Applier) Apply(ctx context.Context, request *core.PaymentRequest, verdict core.Verdict) (Result, error) {
	status, terminal := verdict.Outcome.TargetStatus()
	if !terminal {
		return Result{Status: request.Status, Message: OwnerMessage(verdict.Outcome)}, nil
	}

	resolution := a.resolution(status, verdict)
	err := a.requests.ResolvePaymentRequest(ctx, request.Id, resolution)
	if errors.Is(err, core.ErrTxHashClaimed) {
		// lost the race for this hash to another request
		a.log.Warn().Str("request_id", request.Id).Str("tx_hash", verdict.TxHash).Msg("tx hash claimed concurrently")
		verdict = core.Verdict{Outcome: core.OutcomeDuplicate, TxHash: verdict.TxHash, Flags: core.FraudFlags{core.FraudFlagDuplicateTx}}
		status = core.PaymentRequestStatusDuplicate
		resolution = a.resolution(status, verdict)
		err = a.requests.ResolvePaymentRequest(ctx, request.Id, resolution)
	}
	if errors.Is(err, core.ErrAlreadyResolved) {
		current, getErr := a.requests.GetPaymentRequest(ctx, request.Id)
		if getErr != nil {
			return Result{}, getErr
		}
		return Result{Status: current.Status, Message: StatusMessage(current.Status)}, nil
	}
	if err != nil {
		return Result{}, errors.Wrapf(err, "resolve payment request %s", request.Id)
	}

	request.Status = status
	request.ResolvedAt = resolution.ResolvedAt
	request.FraudFlags = resolution.FraudFlags
	if resolution.TxHash != "" {
		txHash := resolution.TxHash
		request.ResolvedTxHash = &txHash
	}
	request.ResolvedAmount = resolution.Amount

	event := a.log.Info()
	if status == core.PaymentRequestStatusFraudDetected {
		event = a.log.Warn()
	}
	event.Str("request_id", request.Id).
		Str("owner", request.Owner).
		Str("status", status.String()).
		Str("tx_hash", verdict.TxHash).
		Strs("flags", verdict.Flags.Strings()).
		Msg("payment request resolved")

	if status == core.PaymentRequestStatusVerified {
		a.activate(ctx, request)
	}

	message := OwnerMessage(verdict.Outcome)
	a.notify(ctx, request, status, message)
	return Result{Status: status, Applied: true, Message: message}, nil
}

func (a *Applier) resolution(status core.PaymentRequestStatus, verdict core.Verdict) core.Resolution {
	resolution := core.Resolution{
		Status:     status,
		ResolvedAt: a.clk.Now().Unix(),
	}
	switch status {
	case core.PaymentRequestStatusVerified:
		resolution.TxHash = verdict.TxHash
		resolution.Amount = decimal.NewNullDecimal(verdict.Amount)
		resolution.FraudFlags = verdict.Flags
	case core.PaymentRequestStatusFraudDetected, core.PaymentRequestStatusDuplicate:
		resolution.TxHash = verdict.TxHash
		resolution.FraudFlags = verdict.Flags
	}
	return resolution
}

func (a *Applier) activate(ctx context.Context, request *core.PaymentRequest) {
	if a.activator == nil {
		return
	}
	if err := a.activator.ActivateSubscription(ctx, request.Owner, request.PlanId, request.Id); err != nil {
		a.metrics.IncCounter(metrics.ActivationFailures, nil)
		a.log.Error().Err(err).
			Str("request_id", request.Id).
			Str("owner", request.Owner).
			Msg("subscription activation failed")
	}
}

func (a *Applier) notify(ctx context.Context, request *core.PaymentRequest, status core.PaymentRequestStatus, message string) {
	if a.notifier == nil {
		return
	}
	messageId := utils.GenUuidFromStrings(request.Id, status.String())
	if err := a.notifier.NotifyOwner(ctx, request.Owner, messageId, message); err != nil {
		a.log.Warn().Err(err).Str("request_id", request.Id).Msg("notify owner")
	}
}
