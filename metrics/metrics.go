package metrics

import "time"

const (
	Attempts                 = "attempts"
	UpstreamErrors           = "upstream_errors"
	SchedulerCycles          = "scheduler_cycles"
	SchedulerRequestFailures = "scheduler_request_failures"
	AuditDropped             = "audit_dropped"
	AuditDeliveryFailures    = "audit_delivery_failures"
	ActivationFailures       = "activation_failures"

	AttemptLatency = "attempt"
	CycleLatency   = "scheduler_cycle"
)

type Recorder interface {
	IncCounter(name string, labels map[string]string)
	ObserveLatency(name string, duration time.Duration, labels map[string]string)
}
