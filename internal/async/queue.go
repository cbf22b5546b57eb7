package async

import (
	"context"
	"errors"
	"time"

	"github.com/joseph-ayodele/cobrancas/internal/backup"
)

// ErrQueueFull is returned when a job cannot be buffered.
var ErrQueueFull = errors.New("backup queue is full")

// ErrQueueClosed is returned after Shutdown.
var ErrQueueClosed = errors.New("backup queue is shutting down")

// Job asks for one export-and-commit run.
type Job struct {
	Mode        backup.Mode
	Message     string
	Trigger     string // http, grpc, cron, cli
	SubmittedAt time.Time
	TraceID     string
}

type Queue interface {
	Enqueue(ctx context.Context, job Job) error
	Shutdown(ctx context.Context)
}

// Runner executes a job. *backup.Service satisfies it.
type Runner interface {
	BackupAndCommit(ctx context.Context, mode backup.Mode, message string) backup.BackupResult
}
