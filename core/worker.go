package core

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"time"

	"cyberres/metrics"
	"cyberres/util/goroutine"

	"go.uber.org/zap"
)

var poolTypePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// WorkerPool runs submitted tasks on a fixed number of goroutines
type WorkerPool struct {
	workers   int
	queueSize int
	taskCh    chan func()
	wg        sync.WaitGroup
	logger    *zap.SugaredLogger
	ctx       context.Context
	cancel    context.CancelFunc
	running   bool
	mu        sync.RWMutex
	poolType  string // For metrics identification
}

// NewWorkerPool creates a new worker pool with a background context
func NewWorkerPool(workers int, queueSize int, logger *zap.SugaredLogger) *WorkerPool {
	return NewWorkerPoolWithContext(context.Background(), workers, queueSize, "default", logger)
}

// NewWorkerPoolWithContext creates a worker pool whose lifetime is bounded by parentCtx.
//
// Lifecycle:
//   - Workers start when Start() is called
//   - Every task accepted by Submit runs, even after parentCtx is cancelled;
//     tasks check Context() to skip their work
//   - Stop() closes the queue, waits for the workers and is safe to call twice
func NewWorkerPoolWithContext(parentCtx context.Context, workers int, queueSize int, poolType string, logger *zap.SugaredLogger) *WorkerPool {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if workers < 1 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	if poolType == "" {
		poolType = "default"
	}
	if !poolTypePattern.MatchString(poolType) {
		logger.Warnw("Invalid poolType, using default", "poolType", poolType)
		poolType = "default"
	}

	ctx, cancel := context.WithCancel(parentCtx)
	return &WorkerPool{
		workers:   workers,
		queueSize: queueSize,
		taskCh:    make(chan func(), queueSize),
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
		poolType:  poolType,
	}
}

// Context is cancelled when the parent context is cancelled or the pool stops
func (wp *WorkerPool) Context() context.Context {
	return wp.ctx
}

// Start begins processing tasks with the worker pool
func (wp *WorkerPool) Start() error {
	wp.mu.Lock()
	defer wp.mu.Unlock()

	if wp.running {
		return nil
	}
	if wp.ctx.Err() != nil {
		return ErrWorkerPoolNotRunning
	}

	wp.running = true
	wp.logger.Debugw("Starting worker pool", "pool_type", wp.poolType, "workers", wp.workers, "queue_size", wp.queueSize)
	metrics.WorkerPoolActiveWorkers.WithLabelValues(wp.poolType).Set(float64(wp.workers))

	for i := 0; i < wp.workers; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}

	return nil
}

// Stop closes the queue and waits for queued tasks to finish
func (wp *WorkerPool) Stop() {
	wp.mu.Lock()
	if !wp.running {
		wp.mu.Unlock()
		wp.cancel()
		return
	}
	wp.running = false
	close(wp.taskCh)
	wp.mu.Unlock()

	done := make(chan struct{})
	go func() {
		wp.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		wp.logger.Debugw("Worker pool stopped", "pool_type", wp.poolType)
	case <-time.After(30 * time.Second):
		wp.logger.Errorw("Worker pool shutdown timed out - goroutines leaked",
			"pool_type", wp.poolType,
			"workers", wp.workers,
			"timeout_seconds", 30)
		metrics.WorkerPoolActiveWorkers.WithLabelValues(wp.poolType).Set(-1)
	}
	wp.cancel()
	metrics.WorkerPoolActiveWorkers.WithLabelValues(wp.poolType).Set(0)
}

// Submit adds a task without blocking. It fails when the queue is full.
func (wp *WorkerPool) Submit(task func()) error {
	wp.mu.RLock()
	defer wp.mu.RUnlock()

	if !wp.running {
		return ErrWorkerPoolNotRunning
	}

	select {
	case wp.taskCh <- task:
		metrics.WorkerPoolQueueSize.WithLabelValues(wp.poolType).Set(float64(len(wp.taskCh)))
		return nil
	default:
		return ErrWorkerPoolQueueFull
	}
}

// SubmitWait blocks until the task is queued or ctx is done
func (wp *WorkerPool) SubmitWait(ctx context.Context, task func()) error {
	wp.mu.RLock()
	defer wp.mu.RUnlock()

	if !wp.running {
		return ErrWorkerPoolNotRunning
	}

	select {
	case wp.taskCh <- task:
		metrics.WorkerPoolQueueSize.WithLabelValues(wp.poolType).Set(float64(len(wp.taskCh)))
		return nil
	case <-ctx.Done():
		return ErrWorkerPoolTimeout
	}
}

// GetStats returns current worker pool statistics
func (wp *WorkerPool) GetStats() WorkerPoolStats {
	wp.mu.RLock()
	defer wp.mu.RUnlock()

	return WorkerPoolStats{
		Workers:     wp.workers,
		QueueSize:   wp.queueSize,
		Running:     wp.running,
		QueuedTasks: len(wp.taskCh),
		Capacity:    cap(wp.taskCh),
	}
}

func (wp *WorkerPool) worker(id int) {
	defer wp.wg.Done()
	defer goroutine.Recover("worker-pool", wp.logger)

	for task := range wp.taskCh {
		func() {
			defer func() {
				if r := recover(); r != nil {
					wp.logger.Errorw("Task panicked in worker",
						"worker_id", id,
						"pool_type", wp.poolType,
						"panic", r)
				}
			}()
			task()
			metrics.WorkerPoolTasksProcessed.WithLabelValues(wp.poolType).Inc()
		}()
	}
}

// WorkerPoolStats contains statistics about the worker pool
type WorkerPoolStats struct {
	Workers     int  `json:"workers"`
	QueueSize   int  `json:"queue_size"`
	Running     bool `json:"running"`
	QueuedTasks int  `json:"queued_tasks"`
	Capacity    int  `json:"capacity"`
}

// Errors
var (
	ErrWorkerPoolNotRunning = errors.New("worker pool is not running")
	ErrWorkerPoolQueueFull  = errors.New("worker pool task queue is full")
	ErrWorkerPoolTimeout    = errors.New("worker pool task submission timed out")
)
