package backup

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/joseph-ayodele/cobrancas/internal/common"
	"github.com/joseph-ayodele/cobrancas/internal/repository"
)

// Mode selects which snapshot an export produces.
type Mode string

const (
	ModeFull   Mode = "full"
	ModeLatest Mode = "latest"
)

// ParseMode maps "latest" to ModeLatest and anything else to ModeFull.
func ParseMode(s string) Mode {
	if strings.EqualFold(strings.TrimSpace(s), string(ModeLatest)) {
		return ModeLatest
	}
	return ModeFull
}

// BackupResult is returned by BackupAndCommit. Success reflects the export only;
// a failed commit is reported in GitResult.
type BackupResult struct {
	Success    bool          `json:"success"`
	BackupFile string        `json:"backup_file,omitempty"`
	BackupType Mode          `json:"backup_type,omitempty"`
	GitResult  *CommitResult `json:"git_result,omitempty"`
	Error      string        `json:"error,omitempty"`
	Code       string        `json:"code,omitempty"`
}

// StatusReport describes the backup directory and repository.
type StatusReport struct {
	GitRepository         bool          `json:"git_repository"`
	BackupDirectory       string        `json:"backup_directory"`
	BackupDirectoryExists bool          `json:"backup_directory_exists"`
	TotalBackupFiles      int           `json:"total_backup_files"`
	LatestBackup          *CatalogEntry `json:"latest_backup"`
}

// Options configures a Service.
type Options struct {
	Dir          string
	SystemName   string
	LatestWindow time.Duration
	Metrics      *Metrics
	Logger       *slog.Logger
	// Now overrides the clock used for filenames and commit messages.
	Now func() time.Time
}

// Service exposes the backup operations used by the HTTP, gRPC, CLI and scheduler surfaces.
// Exports, commits and restores are serialized.
type Service struct {
	dir       string
	vcs       VCS
	exporter  *Exporter
	committer *Committer
	restorer  *Restorer
	catalog   *Catalog
	metrics   *Metrics
	logger    *slog.Logger

	mu sync.Mutex
}

// NewService wires the backup components and makes sure the backup directory exists.
func NewService(repo repository.CobrancaRepository, vcs VCS, opts Options) (*Service, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Dir == "" {
		return nil, common.NewAppError(common.CodeConfig, "backup directory is required", common.ErrInvalidInput)
	}
	dir, err := filepath.Abs(opts.Dir)
	if err != nil {
		return nil, common.Wrapf(common.CodeIO, common.ErrIO, err, "failed to resolve backup directory %s", opts.Dir)
	}
	opts.Dir = dir
	if opts.SystemName == "" {
		opts.SystemName = "Sistema de Cobranças"
	}
	if opts.Metrics == nil {
		opts.Metrics = NewMetrics(nil)
	}
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, common.Wrapf(common.CodeIO, common.ErrIO, err, "failed to create backup directory %s", opts.Dir)
	}

	exporter := NewExporter(repo, opts.Dir, opts.SystemName, opts.LatestWindow, logger)
	committer := NewCommitter(vcs, logger)
	if opts.Now != nil {
		exporter.now = opts.Now
		committer.now = opts.Now
	}
	return &Service{
		dir:       opts.Dir,
		vcs:       vcs,
		exporter:  exporter,
		committer: committer,
		restorer:  NewRestorer(repo, logger),
		catalog:   NewCatalog(opts.Dir, logger),
		metrics:   opts.Metrics,
		logger:    logger,
	}, nil
}

// Dir returns the backup directory.
func (s *Service) Dir() string {
	return s.dir
}

// Export writes a snapshot for mode and returns its path.
func (s *Service) Export(ctx context.Context, mode Mode) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.export(ctx, mode)
}

func (s *Service) export(ctx context.Context, mode Mode) (string, error) {
	start := time.Now()
	var (
		path string
		err  error
	)
	if mode == ModeLatest {
		path, err = s.exporter.ExportLatest(ctx)
	} else {
		mode = ModeFull
		path, err = s.exporter.ExportFull(ctx)
	}
	s.metrics.Exports.WithLabelValues(string(mode), resultLabel(err)).Inc()
	s.metrics.ExportDuration.WithLabelValues(string(mode)).Observe(time.Since(start).Seconds())
	if err != nil {
		s.logger.ErrorContext(ctx, "export failed", "mode", mode, "error", err,
			"request_id", common.RequestIDFromContext(ctx), "trigger", common.TriggerFromContext(ctx))
	}
	return path, err
}

// BackupAndCommit exports a snapshot and commits it. The commit message defaults
// to one naming the backup type and time.
func (s *Service) BackupAndCommit(ctx context.Context, mode Mode, message string) BackupResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	if mode != ModeLatest {
		mode = ModeFull
	}
	path, err := s.export(ctx, mode)
	if err != nil {
		return BackupResult{Success: false, Error: err.Error(), Code: common.ErrorCode(err)}
	}

	if message == "" {
		message = modeCommitMessage(mode, s.committer.now())
	}
	git := s.committer.Commit(ctx, path, message)
	s.metrics.Commits.WithLabelValues(resultLabelBool(git.Success)).Inc()

	return BackupResult{
		Success:    true,
		BackupFile: path,
		BackupType: mode,
		GitResult:  &git,
	}
}

func modeCommitMessage(mode Mode, now time.Time) string {
	kind := "completo"
	if mode == ModeLatest {
		kind = "incremental"
	}
	return "Backup " + kind + " - " + now.Format(commitTimeLayout)
}

// Restore merges the named snapshot from the backup directory into the store.
func (s *Service) Restore(ctx context.Context, filename string) (*RestoreResult, error) {
	path, err := s.resolve(filename)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.restorer.RestoreFile(ctx, path)
	s.metrics.Restores.WithLabelValues(resultLabel(err)).Inc()
	if err != nil {
		return nil, err
	}
	s.metrics.RestoreRecords.WithLabelValues("restored").Add(float64(res.RestoredCount))
	s.metrics.RestoreRecords.WithLabelValues("skipped").Add(float64(res.SkippedCount))
	return res, nil
}

// ListBackups returns the snapshot files, newest first.
func (s *Service) ListBackups(_ context.Context) []CatalogEntry {
	return s.catalog.List()
}

// Status reports on the repository and backup directory.
func (s *Service) Status(ctx context.Context) StatusReport {
	files := s.catalog.List()
	_, statErr := os.Stat(s.dir)
	report := StatusReport{
		GitRepository:         s.vcs.IsRepository(ctx),
		BackupDirectory:       s.dir,
		BackupDirectoryExists: statErr == nil,
		TotalBackupFiles:      len(files),
	}
	if len(files) > 0 {
		latest := files[0]
		report.LatestBackup = &latest
	}
	return report
}

// OpenBackup opens the named snapshot for reading. The caller closes the file.
func (s *Service) OpenBackup(filename string) (*os.File, error) {
	path, err := s.resolve(filename)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, common.Wrapf(common.CodeFileNotFound, common.ErrFileNotFound, err, "Arquivo de backup não encontrado: %s", filename)
		}
		return nil, common.Wrapf(common.CodeIO, common.ErrIO, err, "failed to open %s", filename)
	}
	return f, nil
}

// InitRepository creates the git repository when the VCS backend supports it.
func (s *Service) InitRepository(ctx context.Context) error {
	initializer, ok := s.vcs.(Initializer)
	if !ok {
		return common.NewAppError(common.CodeInvalidInput, "version control backend cannot initialize repositories", common.ErrInvalidInput)
	}
	if s.vcs.IsRepository(ctx) {
		return nil
	}
	return initializer.Init(ctx)
}

// resolve maps a bare filename to a path inside the backup directory.
func (s *Service) resolve(filename string) (string, error) {
	name := strings.TrimSpace(filename)
	if name == "" || name == "." || name == ".." || name != filepath.Base(name) || strings.ContainsAny(name, `/\`) {
		return "", common.NewAppError(common.CodeInvalidInput, "invalid backup filename: "+filename, common.ErrInvalidInput)
	}
	return filepath.Join(s.dir, name), nil
}

func resultLabelBool(ok bool) string {
	if ok {
		return resultSuccess
	}
	return resultError
}
