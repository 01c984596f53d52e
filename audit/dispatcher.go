package audit

import (
	"context"
	"sync"
	"sync/atomic"

	core "github.com/DomeLiquid/paycore"
	"github.com/DomeLiquid/paycore/metrics"
)

// Sink delivers one audit event to a single destination.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, event core.AuditEvent) error
}

// Dispatcher is an asynchronous core.AuditSink. Publish never blocks: when the queue
// is full the event is dropped and counted.
type Dispatcher struct {
	queue   chan core.AuditEvent
	sinks   []Sink
	metrics metrics.Recorder
	log     core.Log

	mu      sync.RWMutex
	closed  bool
	dropped atomic.Int64
	done    chan struct{}
}

var _ core.AuditSink = (*Dispatcher)(nil)

func NewDispatcher(queueSize int, recorder metrics.Recorder, log core.Log, sinks ...Sink) *Dispatcher {
	if queueSize <= 0 {
		queueSize = 1
	}
	if recorder == nil {
		recorder = metrics.NewNoopRecorder()
	}
	if log == nil {
		log = core.NopLog()
	}
	d := &Dispatcher{
		queue:   make(chan core.AuditEvent, queueSize),
		sinks:   sinks,
		metrics: recorder,
		log:     log,
		done:    make(chan struct{}),
	}
	go d.loop()
	return d
}

func (d *Dispatcher) Publish(_ context.Context, event core.AuditEvent) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.drop(event, "closed")
		return
	}
	select {
	case d.queue <- event:
	default:
		d.drop(event, "queue_full")
	}
}

func (d *Dispatcher) drop(event core.AuditEvent, reason string) {
	d.dropped.Add(1)
	d.metrics.IncCounter(metrics.AuditDropped, map[string]string{"outcome": reason})
	d.log.Warn().Str("attempt", event.AttemptId).Str("request", event.RequestId).Str("reason", reason).Msg("audit event dropped")
}

func (d *Dispatcher) Dropped() int64 {
	return d.dropped.Load()
}

func (d *Dispatcher) loop() {
	defer close(d.done)
	for event := range d.queue {
		for _, sink := range d.sinks {
			if err := sink.Deliver(context.Background(), event); err != nil {
				d.metrics.IncCounter(metrics.AuditDeliveryFailures, map[string]string{"source": sink.Name()})
				d.log.Error().Err(err).Str("sink", sink.Name()).Str("attempt", event.AttemptId).Msg("audit delivery failed")
			}
		}
	}
}

// Close stops accepting events and waits until queued events are delivered or ctx ends.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
