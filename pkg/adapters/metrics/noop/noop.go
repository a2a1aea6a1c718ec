// Package noop provides a MetricsCollector that discards everything.
package noop

import "time"

// Collector discards all metrics.
type Collector struct{}

// New returns a collector that records nothing.
func New() *Collector {
	return &Collector{}
}

func (*Collector) RecordOrchestration(string, string, time.Duration) {}
func (*Collector) RecordDispatch(string, string, time.Duration)      {}
func (*Collector) RecordValidationFailure(string)                    {}
func (*Collector) RecordWorkerPoolStatus(int, int, int)              {}
func (*Collector) SetQueueDepth(string, int)                         {}
func (*Collector) SetActiveExecutions(int)                           {}
