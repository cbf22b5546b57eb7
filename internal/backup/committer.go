package backup

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/joseph-ayodele/cobrancas/internal/common"
)

const commitTimeLayout = "2006-01-02 15:04:05"

// VCS is the version-control surface the committer needs.
type VCS interface {
	IsRepository(ctx context.Context) bool
	Stage(ctx context.Context, path string) error
	Commit(ctx context.Context, path, message string) error
}

// Initializer is implemented by VCS backends that can create a repository.
type Initializer interface {
	Init(ctx context.Context) error
}

// CommitResult describes the outcome of a commit attempt. It is a value, never an error,
// so callers can report it alongside a successful export.
type CommitResult struct {
	Success       bool   `json:"success"`
	Message       string `json:"message,omitempty"`
	CommitMessage string `json:"commit_message,omitempty"`
	Error         string `json:"error,omitempty"`
	Code          string `json:"code,omitempty"`
}

// Committer stages a snapshot file and records it as a revision.
type Committer struct {
	vcs    VCS
	now    func() time.Time
	logger *slog.Logger
}

func NewCommitter(vcs VCS, logger *slog.Logger) *Committer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Committer{vcs: vcs, now: time.Now, logger: logger}
}

// DefaultCommitMessage is used when the caller supplies none.
func DefaultCommitMessage(now time.Time) string {
	return "Backup automático de cobranças - " + now.Format(commitTimeLayout)
}

// Commit stages path and commits it. An empty message is replaced by DefaultCommitMessage.
func (c *Committer) Commit(ctx context.Context, path, message string) CommitResult {
	if !c.vcs.IsRepository(ctx) {
		err := common.NewAppError(common.CodeNotARepository, "Diretório não é um repositório Git", common.ErrNotARepository)
		c.logger.Warn("skipping commit, not a git repository", "path", path)
		return failedCommit(err)
	}
	if err := c.vcs.Stage(ctx, path); err != nil {
		c.logger.Error("git add failed", "path", path, "error", err)
		return failedCommit(err)
	}
	if message == "" {
		message = DefaultCommitMessage(c.now())
	}
	if err := c.vcs.Commit(ctx, path, message); err != nil {
		c.logger.Error("git commit failed", "path", path, "error", err)
		return failedCommit(err)
	}
	c.logger.Info("backup committed", "path", path, "message", message)
	return CommitResult{
		Success:       true,
		Message:       "Backup commitado com sucesso",
		CommitMessage: message,
	}
}

func failedCommit(err error) CommitResult {
	res := CommitResult{Success: false, Error: err.Error(), Code: common.CodeExternalProcess}
	var appErr *common.AppError
	if errors.As(err, &appErr) {
		res.Code = appErr.Code
		res.Error = appErr.Message
		if appErr.Cause != nil && !errors.Is(appErr.Cause, common.ErrNotARepository) {
			res.Error = appErr.Message + ": " + appErr.Cause.Error()
		}
	}
	return res
}
