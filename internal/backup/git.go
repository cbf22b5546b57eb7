package backup

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"

	"github.com/joseph-ayodele/cobrancas/internal/common"
)

const (
	defaultGitBinary  = "git"
	defaultGitTimeout = 30 * time.Second
)

// Git drives the git command line against a single working tree.
type Git struct {
	binary   string
	root     string
	timeout  time.Duration
	logger   *slog.Logger
	// executor retries commands that lost the race for .git/index.lock.
	executor failsafe.Executor[any]
}

// NewGit creates a git client rooted at root. Empty binary and zero timeout use defaults.
func NewGit(binary, root string, timeout time.Duration, logger *slog.Logger) *Git {
	if binary == "" {
		binary = defaultGitBinary
	}
	if timeout <= 0 {
		timeout = defaultGitTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	retry := retrypolicy.NewBuilder[any]().
		WithBackoff(200*time.Millisecond, 2*time.Second).
		WithMaxRetries(3).
		HandleIf(func(_ any, err error) bool {
			return err != nil && strings.Contains(err.Error(), "index.lock")
		}).
		Build()
	return &Git{binary: binary, root: root, timeout: timeout, logger: logger, executor: failsafe.With[any](retry)}
}

// Root returns the working tree the client operates on.
func (g *Git) Root() string {
	return g.root
}

// IsRepository reports whether root contains a .git entry.
func (g *Git) IsRepository(_ context.Context) bool {
	_, err := os.Stat(filepath.Join(g.root, ".git"))
	return err == nil
}

// Init creates an empty repository at root.
func (g *Git) Init(ctx context.Context) error {
	if err := os.MkdirAll(g.root, 0o755); err != nil {
		return common.Wrapf(common.CodeIO, common.ErrIO, err, "failed to create %s", g.root)
	}
	_, err := g.run(ctx, "init")
	return err
}

// Stage adds path to the index. Relative paths are taken from the process working
// directory, not from root.
func (g *Git) Stage(ctx context.Context, path string) error {
	abs, err := absPath(path)
	if err != nil {
		return err
	}
	_, err = g.run(ctx, "add", "--", abs)
	return err
}

// Commit records a revision containing only path; other staged changes stay in the index.
func (g *Git) Commit(ctx context.Context, path, message string) error {
	abs, err := absPath(path)
	if err != nil {
		return err
	}
	_, err = g.run(ctx, "commit", "-m", message, "--", abs)
	return err
}

func absPath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", common.Wrapf(common.CodeIO, common.ErrIO, err, "failed to resolve %s", path)
	}
	return abs, nil
}

func (g *Git) run(ctx context.Context, args ...string) (string, error) {
	full := append([]string{"-C", g.root}, args...)
	out, err := g.executor.WithContext(ctx).Get(func() (any, error) {
		return g.exec(ctx, full)
	})
	if err != nil {
		var appErr *common.AppError
		if errors.As(err, &appErr) {
			return "", appErr
		}
		return "", common.Wrapf(common.CodeExternalProcess, common.ErrExternalProcess, err, "git %s failed", args[0])
	}
	s, _ := out.(string)
	return s, nil
}

func (g *Git) exec(ctx context.Context, args []string) (string, error) {
	ctx, cancel := common.WithTimeout(ctx, g.timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, g.binary, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	// Keep git from prompting or reading user-level hooks that could block.
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")

	start := time.Now()
	err := cmd.Run()
	g.logger.Debug("git command finished", "args", args, "elapsed", time.Since(start), "error", err)
	if err == nil {
		return stdout.String(), nil
	}

	sub := args[2]
	if ctx.Err() != nil {
		return "", common.Wrapf(common.CodeExternalProcess, common.ErrExternalProcess, ctx.Err(), "git %s timed out after %s", sub, g.timeout)
	}
	detail := strings.TrimSpace(stderr.String())
	if detail == "" {
		detail = strings.TrimSpace(stdout.String())
	}
	if strings.Contains(detail, "index.lock") {
		g.logger.Warn("git index locked", "command", sub)
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return "", common.Wrapf(common.CodeExternalProcess, common.ErrExternalProcess,
			fmt.Errorf("exit status %d: %s", exitErr.ExitCode(), detail), "git %s failed", sub)
	}
	return "", common.Wrapf(common.CodeExternalProcess, common.ErrExternalProcess, err, "failed to run git %s", sub)
}
