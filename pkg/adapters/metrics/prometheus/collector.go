package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector implements MetricsCollector using Prometheus
type Collector struct {
	orchestrations      *prometheus.CounterVec
	orchestrationTime   *prometheus.HistogramVec
	dispatches          *prometheus.CounterVec
	dispatchTime        *prometheus.HistogramVec
	validationFailures  *prometheus.CounterVec
	workerPoolIdle      prometheus.Gauge
	workerPoolBusy      prometheus.Gauge
	workerPoolStopped   prometheus.Gauge
	queueDepth          *prometheus.GaugeVec
	activeOrchestration prometheus.Gauge
}

// NewCollector creates a new Prometheus metrics collector registered on reg
func NewCollector(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		orchestrations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "carecoord_orchestrations_total",
				Help: "Total number of orchestration requests",
			},
			[]string{"workflow", "status"},
		),
		orchestrationTime: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "carecoord_orchestration_duration_seconds",
				Help:    "Orchestration duration in seconds",
				Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"workflow"},
		),
		dispatches: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "carecoord_dispatches_total",
				Help: "Total number of tasks dispatched to agents",
			},
			[]string{"agent", "status"},
		),
		dispatchTime: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "carecoord_dispatch_duration_seconds",
				Help:    "Agent call duration in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
			},
			[]string{"agent"},
		),
		validationFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "carecoord_validation_failures_total",
				Help: "Total number of rejected task graphs",
			},
			[]string{"reason"},
		),
		workerPoolIdle: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "carecoord_worker_pool_idle",
				Help: "Number of idle workers",
			},
		),
		workerPoolBusy: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "carecoord_worker_pool_busy",
				Help: "Number of busy workers",
			},
		),
		workerPoolStopped: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "carecoord_worker_pool_stopped",
				Help: "Number of stopped workers",
			},
		),
		queueDepth: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "carecoord_queue_depth",
				Help: "Current depth of job queues",
			},
			[]string{"queue"},
		),
		activeOrchestration: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "carecoord_active_executions",
				Help: "Number of currently running session orchestrations",
			},
		),
	}
}

// RecordOrchestration records one orchestration request
func (c *Collector) RecordOrchestration(workflow, status string, duration time.Duration) {
	c.orchestrations.WithLabelValues(workflow, status).Inc()
	c.orchestrationTime.WithLabelValues(workflow).Observe(duration.Seconds())
}

// RecordDispatch records one agent call
func (c *Collector) RecordDispatch(agent, status string, duration time.Duration) {
	c.dispatches.WithLabelValues(agent, status).Inc()
	c.dispatchTime.WithLabelValues(agent).Observe(duration.Seconds())
}

// RecordValidationFailure records a rejected task graph
func (c *Collector) RecordValidationFailure(reason string) {
	c.validationFailures.WithLabelValues(reason).Inc()
}

// RecordWorkerPoolStatus records worker pool status
func (c *Collector) RecordWorkerPoolStatus(idle, busy, stopped int) {
	c.workerPoolIdle.Set(float64(idle))
	c.workerPoolBusy.Set(float64(busy))
	c.workerPoolStopped.Set(float64(stopped))
}

// SetQueueDepth sets the current depth of a job queue
func (c *Collector) SetQueueDepth(queueName string, depth int) {
	c.queueDepth.WithLabelValues(queueName).Set(float64(depth))
}

// SetActiveExecutions sets the number of currently active executions
func (c *Collector) SetActiveExecutions(count int) {
	c.activeOrchestration.Set(float64(count))
}
