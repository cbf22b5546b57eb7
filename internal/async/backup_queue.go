package async

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/cobrancas/internal/common"
)

// BackupQueue runs backup jobs on a small worker pool. The backup service serializes
// the runs themselves, so more than one worker only helps absorb bursts.
type BackupQueue struct {
	runner  Runner
	logger  *slog.Logger
	workers int
	timeout time.Duration
	done    func(Job, bool)

	ch   chan Job
	wg   sync.WaitGroup
	once sync.Once

	mu     sync.Mutex
	closed bool
}

type Option func(*BackupQueue)

func WithWorkers(n int) Option {
	return func(q *BackupQueue) {
		if n > 0 {
			q.workers = n
		}
	}
}
func WithQueueSize(n int) Option {
	return func(q *BackupQueue) {
		if n > 0 {
			q.ch = make(chan Job, n)
		}
	}
}
func WithJobTimeout(d time.Duration) Option {
	return func(q *BackupQueue) {
		if d > 0 {
			q.timeout = d
		}
	}
}

// WithOnDone registers a callback invoked after each job with the export outcome.
func WithOnDone(fn func(job Job, success bool)) Option {
	return func(q *BackupQueue) {
		q.done = fn
	}
}

func NewBackupQueue(runner Runner, logger *slog.Logger, opts ...Option) *BackupQueue {
	if logger == nil {
		logger = slog.Default()
	}
	q := &BackupQueue{
		runner:  runner,
		logger:  logger,
		workers: 1,
		timeout: 10 * time.Minute,
		ch:      make(chan Job, 16),
	}
	for _, o := range opts {
		o(q)
	}
	q.start()
	return q
}

func (q *BackupQueue) start() {
	q.once.Do(func() {
		for i := 0; i < q.workers; i++ {
			q.wg.Add(1)
			go func(workerID int) {
				defer q.wg.Done()
				q.logger.Info("backup worker started", "worker_id", workerID)

				for job := range q.ch {
					q.run(workerID, job)
				}

				q.logger.Info("backup worker stopped", "worker_id", workerID)
			}(i + 1)
		}
	})
}

func (q *BackupQueue) run(workerID int, job Job) {
	ctx := common.WithTrigger(common.WithRequestID(context.Background(), job.TraceID), job.Trigger)
	ctx, cancel := common.WithTimeout(ctx, q.timeout)
	defer cancel()

	res := q.runner.BackupAndCommit(ctx, job.Mode, job.Message)
	if !res.Success {
		q.logger.Error("backup job failed", "worker_id", workerID, "mode", job.Mode, "trigger", job.Trigger,
			"trace_id", job.TraceID, "error", res.Error)
	} else {
		committed := res.GitResult != nil && res.GitResult.Success
		q.logger.Info("backup job finished", "worker_id", workerID, "mode", job.Mode, "trigger", job.Trigger,
			"trace_id", job.TraceID, "file", res.BackupFile, "committed", committed,
			"queued_for", time.Since(job.SubmittedAt).String())
	}
	if q.done != nil {
		q.done(job, res.Success)
	}
}

// Enqueue buffers job without blocking. A full queue returns ErrQueueFull.
func (q *BackupQueue) Enqueue(_ context.Context, job Job) error {
	if job.SubmittedAt.IsZero() {
		job.SubmittedAt = time.Now()
	}
	if job.TraceID == "" {
		job.TraceID = uuid.NewString()
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		q.logger.Warn("cannot enqueue: queue is shutting down", "mode", job.Mode)
		return ErrQueueClosed
	}
	select {
	case q.ch <- job:
		q.logger.Info("queued backup job", "mode", job.Mode, "trigger", job.Trigger, "trace_id", job.TraceID)
		return nil
	default:
		q.logger.Warn("backup queue full, dropping job", "mode", job.Mode, "trigger", job.Trigger)
		return ErrQueueFull
	}
}

func (q *BackupQueue) Shutdown(ctx context.Context) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.ch)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() { defer close(done); q.wg.Wait() }()

	select {
	case <-ctx.Done():
		q.logger.Warn("shutdown interrupted by context")
	case <-done:
		q.logger.Info("queue drained, shutdown complete")
	}
}
