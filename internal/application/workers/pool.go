package workers

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/aescanero/carecoord/pkg/ports"
	"go.uber.org/zap"
)

// QueueName labels the pool's queue depth metric.
const QueueName = "orchestration"

var (
	// ErrQueueFull is returned when the job queue has no free slot.
	ErrQueueFull = errors.New("job queue is full")

	// ErrPoolStopped is returned for jobs submitted after Shutdown.
	ErrPoolStopped = errors.New("worker pool is stopped")
)

// Job is one unit of background work.
type Job func(ctx context.Context)

type queuedJob struct {
	id         string
	run        Job
	enqueuedAt time.Time
}

// Pool runs queued jobs on a fixed number of worker goroutines
type Pool struct {
	size    int
	metrics ports.MetricsCollector
	logger  *zap.Logger
	health  *HealthMonitor

	queue   chan queuedJob
	mu      sync.RWMutex
	started bool
	stopped bool

	workers []*worker
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
}

// worker represents a single worker goroutine
type worker struct {
	id      string
	pool    *Pool
	status  WorkerStatus
	mu      sync.RWMutex
	current string // id of the running job
	lastJob time.Time
}

// WorkerStatus represents worker status
type WorkerStatus string

const (
	WorkerStatusIdle    WorkerStatus = "idle"
	WorkerStatusBusy    WorkerStatus = "busy"
	WorkerStatusStopped WorkerStatus = "stopped"
)

// NewPool creates a new worker pool with room for queueSize waiting jobs
func NewPool(
	size, queueSize int,
	metrics ports.MetricsCollector,
	logger *zap.Logger,
	healthCheckInterval time.Duration,
) *Pool {
	ctx, cancel := context.WithCancel(context.Background())

	pool := &Pool{
		size:    size,
		metrics: metrics,
		logger:  logger,
		queue:   make(chan queuedJob, queueSize),
		workers: make([]*worker, size),
		ctx:     ctx,
		cancel:  cancel,
	}

	for i := 0; i < size; i++ {
		pool.workers[i] = &worker{
			id:     fmt.Sprintf("worker-%d", i),
			pool:   pool,
			status: WorkerStatusStopped,
		}
	}

	pool.health = NewHealthMonitor(pool, healthCheckInterval, logger)

	return pool
}

// Start starts the worker pool
func (p *Pool) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		return ErrPoolStopped
	}
	if p.started {
		return nil
	}
	p.started = true

	p.logger.Info("starting worker pool",
		zap.Int("size", p.size),
		zap.Int("queue_size", cap(p.queue)))

	for _, w := range p.workers {
		w.setStatus(WorkerStatusIdle)
		p.wg.Add(1)
		go w.run(p.ctx)
	}

	p.health.Start()

	p.logger.Info("worker pool started", zap.Int("workers", p.size))
	return nil
}

// Submit queues a job without blocking
func (p *Pool) Submit(id string, job func(ctx context.Context)) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.stopped {
		return ErrPoolStopped
	}

	select {
	case p.queue <- queuedJob{id: id, run: job, enqueuedAt: time.Now()}:
		p.metrics.SetQueueDepth(QueueName, len(p.queue))
		return nil
	default:
		p.logger.Warn("job queue full, rejecting job",
			zap.String("job_id", id),
			zap.Int("queue_size", cap(p.queue)))
		return ErrQueueFull
	}
}

// Shutdown stops accepting jobs and waits for queued and running jobs to
// finish. When ctx expires first, running jobs are cancelled.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.logger.Info("shutting down worker pool")

	p.health.Stop()

	p.mu.Lock()
	if !p.stopped {
		p.stopped = true
		close(p.queue)
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		p.logger.Info("worker pool shut down complete")
		return nil
	case <-ctx.Done():
		p.cancel()
		return fmt.Errorf("shutdown timeout: %w", ctx.Err())
	}
}

// QueueDepth returns the number of jobs waiting for a worker
func (p *Pool) QueueDepth() int {
	return len(p.queue)
}

// Health returns the pool's health monitor
func (p *Pool) Health() *HealthMonitor {
	return p.health
}

// GetStatus returns the status of all workers
func (p *Pool) GetStatus() map[string]WorkerStatus {
	status := make(map[string]WorkerStatus)
	for _, w := range p.workers {
		w.mu.RLock()
		status[w.id] = w.status
		w.mu.RUnlock()
	}
	return status
}

// activity returns the ids of running jobs and when the most recent job
// started. The time is zero when no job has run yet.
func (p *Pool) activity() ([]string, time.Time) {
	running := []string{}
	var last time.Time
	for _, w := range p.workers {
		w.mu.RLock()
		if w.status == WorkerStatusBusy && w.current != "" {
			running = append(running, w.current)
		}
		if w.lastJob.After(last) {
			last = w.lastJob
		}
		w.mu.RUnlock()
	}
	sort.Strings(running)
	return running, last
}

// run is the main worker loop
func (w *worker) run(ctx context.Context) {
	defer w.pool.wg.Done()
	defer w.setStatus(WorkerStatusStopped)

	w.pool.logger.Debug("worker started", zap.String("worker_id", w.id))

	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-w.pool.queue:
			if !ok {
				w.pool.logger.Debug("worker stopped", zap.String("worker_id", w.id))
				return
			}
			w.execute(ctx, job)
		}
	}
}

// execute runs one job and recovers from panics
func (w *worker) execute(ctx context.Context, job queuedJob) {
	w.mu.Lock()
	w.status = WorkerStatusBusy
	w.current = job.id
	w.lastJob = time.Now()
	w.mu.Unlock()

	w.pool.metrics.SetQueueDepth(QueueName, len(w.pool.queue))

	defer func() {
		if r := recover(); r != nil {
			w.pool.logger.Error("job panicked",
				zap.String("worker_id", w.id),
				zap.String("job_id", job.id),
				zap.Any("panic", r))
		}
		w.mu.Lock()
		w.status = WorkerStatusIdle
		w.current = ""
		w.mu.Unlock()
	}()

	w.pool.logger.Debug("executing job",
		zap.String("worker_id", w.id),
		zap.String("job_id", job.id),
		zap.Duration("queued_for", time.Since(job.enqueuedAt)))

	start := time.Now()
	job.run(ctx)

	w.pool.logger.Debug("job completed",
		zap.String("worker_id", w.id),
		zap.String("job_id", job.id),
		zap.Duration("duration", time.Since(start)))
}

func (w *worker) setStatus(status WorkerStatus) {
	w.mu.Lock()
	w.status = status
	w.mu.Unlock()
}
