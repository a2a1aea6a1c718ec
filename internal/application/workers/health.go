package workers

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// HealthMonitor monitors worker health
type HealthMonitor struct {
	pool     *Pool
	interval time.Duration
	logger   *zap.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
}

// HealthStatus is the pool snapshot served on /health. Job ids are
// session ids, so RunningSessions names the prompt runs in progress.
type HealthStatus struct {
	TotalWorkers    int        `json:"total_workers"`
	IdleWorkers     int        `json:"idle_workers"`
	BusyWorkers     int        `json:"busy_workers"`
	StoppedWorkers  int        `json:"stopped_workers"`
	QueueDepth      int        `json:"queue_depth"`
	RunningSessions []string   `json:"running_sessions"`
	LastJobAt       *time.Time `json:"last_job_at,omitempty"`
	Healthy         bool       `json:"healthy"`
	Timestamp       time.Time  `json:"timestamp"`
}

// NewHealthMonitor creates a new health monitor
func NewHealthMonitor(pool *Pool, interval time.Duration, logger *zap.Logger) *HealthMonitor {
	return &HealthMonitor{
		pool:     pool,
		interval: interval,
		logger:   logger,
	}
}

// Start starts the health monitor. A non-positive interval disables the
// periodic check.
func (h *HealthMonitor) Start() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.running || h.interval <= 0 {
		return
	}
	h.running = true
	h.stopCh = make(chan struct{})

	go h.run(h.stopCh)
}

// Stop stops the health monitor
func (h *HealthMonitor) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.running {
		return
	}
	h.running = false
	close(h.stopCh)
}

// run is the main health monitoring loop
func (h *HealthMonitor) run(stopCh chan struct{}) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			h.checkHealth()
		}
	}
}

// checkHealth publishes the pool gauges and flags a saturated or broken pool
func (h *HealthMonitor) checkHealth() {
	status := h.GetStatus()

	h.pool.metrics.RecordWorkerPoolStatus(
		status.IdleWorkers,
		status.BusyWorkers,
		status.StoppedWorkers,
	)
	h.pool.metrics.SetQueueDepth(QueueName, status.QueueDepth)

	fields := []zap.Field{
		zap.Int("busy", status.BusyWorkers),
		zap.Int("total", status.TotalWorkers),
		zap.Int("queued_prompts", status.QueueDepth),
		zap.Strings("running_sessions", status.RunningSessions),
	}

	switch {
	case status.StoppedWorkers > 0:
		h.logger.Error("prompt workers stopped unexpectedly",
			append(fields, zap.Int("stopped", status.StoppedWorkers))...)
	case status.TotalWorkers > 0 && status.BusyWorkers == status.TotalWorkers && status.QueueDepth > 0:
		h.logger.Warn("prompt runs are waiting for a free worker", fields...)
	default:
		h.logger.Debug("prompt worker check", fields...)
	}
}

// GetStatus returns the current health status. The pool is healthy while
// every worker is running; a saturated pool is still healthy.
func (h *HealthMonitor) GetStatus() *HealthStatus {
	workerStatuses := h.pool.GetStatus()

	var idle, busy, stopped int
	for _, status := range workerStatuses {
		switch status {
		case WorkerStatusIdle:
			idle++
		case WorkerStatusBusy:
			busy++
		case WorkerStatusStopped:
			stopped++
		}
	}

	total := len(workerStatuses)
	running, last := h.pool.activity()

	status := &HealthStatus{
		TotalWorkers:    total,
		IdleWorkers:     idle,
		BusyWorkers:     busy,
		StoppedWorkers:  stopped,
		QueueDepth:      h.pool.QueueDepth(),
		RunningSessions: running,
		Healthy:         total > 0 && stopped == 0,
		Timestamp:       time.Now(),
	}
	if !last.IsZero() {
		status.LastJobAt = &last
	}
	return status
}

// IsHealthy returns true if the worker pool is healthy
func (h *HealthMonitor) IsHealthy() bool {
	return h.GetStatus().Healthy
}
