package reconcile

import (
	"context"
	"math/rand"
	"sync/atomic"
	"time"

	core "github.com/DomeLiquid/paycore"
	"github.com/DomeLiquid/paycore/metrics"
	"github.com/DomeLiquid/paycore/outcome"
	"github.com/facebookgo/clock"
	"github.com/pkg/errors"
)

type (
	Verifier interface {
		SearchWindow(ctx context.Context, request *core.PaymentRequest) (core.Verdict, error)
		Expire(ctx context.Context, request *core.PaymentRequest) (core.Verdict, error)
	}

	Applier interface {
		Apply(ctx context.Context, request *core.PaymentRequest, verdict core.Verdict) (outcome.Result, error)
	}
)

type Config struct {
	Requests core.PaymentRequestStore
	Verifier Verifier
	Applier  Applier
	Settings core.SettingsProvider
	Metrics  metrics.Recorder
	Clock    clock.Clock
	Log      core.Log
}

type State int32

const (
	StateIdle State = iota
	StateScanning
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateScanning:
		return "scanning"
	default:
		return "unknown"
	}
}

// Scheduler periodically drives window-search verification for every pending request.
type Scheduler struct {
	requests core.PaymentRequestStore
	verifier Verifier
	applier  Applier
	settings core.SettingsProvider
	metrics  metrics.Recorder
	clk      clock.Clock
	log      core.Log

	state atomic.Int32
}

func New(cfg Config) *Scheduler {
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NewNoopRecorder()
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.Log == nil {
		cfg.Log = core.NopLog()
	}
	return &Scheduler{
		requests: cfg.Requests,
		verifier: cfg.Verifier,
		applier:  cfg.Applier,
		settings: cfg.Settings,
		metrics:  cfg.Metrics,
		clk:      cfg.Clock,
		log:      cfg.Log,
	}
}

func (s *Scheduler) State() State {
	return State(s.state.Load())
}

// Run repeats cycles until ctx is cancelled. A failing cycle is retried after a jittered
// back-off instead of the regular interval.
func (s *Scheduler) Run(ctx context.Context) error {
	s.log.Info().Msg("reconciliation scheduler started")
	defer s.log.Info().Msg("reconciliation scheduler stopped")

	for {
		settings := s.settings.Settings()
		wait := settings.SchedulerInterval
		if err := s.RunCycle(ctx); err != nil {
			wait = settings.SchedulerBackoff
			if wait > 0 {
				wait += time.Duration(rand.Int63n(int64(wait)))
			}
			s.log.Error().Err(err).Dur("backoff", wait).Msg("reconciliation cycle failed")
		}
		if !s.sleep(ctx, wait) {
			return ctx.Err()
		}
	}
}

// RunCycle scans the pending requests once. Failures of a single request are logged and
// skipped; the returned error covers only the cycle itself.
func (s *Scheduler) RunCycle(ctx context.Context) (err error) {
	s.state.Store(int32(StateScanning))
	start := s.clk.Now()
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("reconciliation cycle panic: %v", r)
		}
		s.state.Store(int32(StateIdle))
		s.metrics.IncCounter(metrics.SchedulerCycles, nil)
		s.metrics.ObserveLatency(metrics.CycleLatency, s.clk.Now().Sub(start), nil)
	}()

	settings := s.settings.Settings()
	requests, err := s.requests.ListPendingPaymentRequests(ctx, core.DEFAULT_PENDING_SCAN_LIMIT)
	if err != nil {
		return errors.Wrap(err, "list pending payment requests")
	}

	processed := 0
	for _, request := range requests {
		if ctx.Err() != nil {
			break
		}
		if processed > 0 && !s.sleep(ctx, settings.SchedulerRequestDelay) {
			break
		}
		processed++

		if err := s.process(ctx, request); err != nil {
			s.metrics.IncCounter(metrics.SchedulerRequestFailures, nil)
			s.log.Error().Err(err).Str("request_id", request.Id).Msg("reconcile payment request")
		}
	}

	s.log.Debug().Int("pending", len(requests)).Int("processed", processed).Msg("reconciliation cycle done")
	return nil
}

// process lets an in-flight request finish after shutdown starts; the attempt timeout bounds it.
func (s *Scheduler) process(ctx context.Context, request *core.PaymentRequest) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("panic: %v", r)
		}
	}()
	ctx = context.WithoutCancel(ctx)

	var verdict core.Verdict
	if request.IsExpired(s.clk.Now()) {
		verdict, err = s.verifier.Expire(ctx, request)
	} else {
		verdict, err = s.verifier.SearchWindow(ctx, request)
	}
	if err != nil {
		return err
	}

	result, err := s.applier.Apply(ctx, request, verdict)
	if err != nil {
		return err
	}
	if result.Applied {
		s.log.Info().
			Str("request_id", request.Id).
			Str("status", result.Status.String()).
			Msg("payment request reconciled")
	}
	return nil
}

func (s *Scheduler) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	select {
	case <-ctx.Done():
		return false
	case <-s.clk.After(d):
		return true
	}
}
