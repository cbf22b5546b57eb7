package backup

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/joseph-ayodele/cobrancas/constants"
	"github.com/joseph-ayodele/cobrancas/internal/common"
	"github.com/joseph-ayodele/cobrancas/internal/repository"
)

// Exporter writes snapshot files of the cobranças store into a backup directory.
type Exporter struct {
	repo       repository.CobrancaRepository
	dir        string
	systemName string
	window     time.Duration
	now        func() time.Time
	logger     *slog.Logger
}

// NewExporter creates an exporter writing into dir. A zero window means 24 hours.
func NewExporter(repo repository.CobrancaRepository, dir, systemName string, window time.Duration, logger *slog.Logger) *Exporter {
	if logger == nil {
		logger = slog.Default()
	}
	if window <= 0 {
		window = 24 * time.Hour
	}
	return &Exporter{
		repo:       repo,
		dir:        dir,
		systemName: systemName,
		window:     window,
		now:        time.Now,
		logger:     logger,
	}
}

// ExportFull snapshots every cobrança into a new timestamped file and returns its path.
func (e *Exporter) ExportFull(ctx context.Context) (string, error) {
	now := e.now()
	recs, err := e.repo.ListAll(ctx)
	if err != nil {
		return "", common.Wrapf(common.CodeExport, common.ErrExport, err, "failed to list cobrancas")
	}
	doc, err := newDocument(recs, now, e.systemName, "", "")
	if err != nil {
		return "", common.Wrapf(common.CodeExport, common.ErrExport, err, "failed to build snapshot")
	}

	path := filepath.Join(e.dir, constants.FullSnapshotName(now.Format(constants.FullSnapshotLayout)))
	if err := writeSnapshot(path, doc); err != nil {
		return "", err
	}
	e.logger.Info("full snapshot written", "path", path, "records", len(doc.Cobrancas))
	return path, nil
}

// ExportLatest snapshots cobranças updated within the window into the fixed latest file.
func (e *Exporter) ExportLatest(ctx context.Context) (string, error) {
	now := e.now()
	since := now.Add(-e.window)
	recs, err := e.repo.ListUpdatedSince(ctx, since)
	if err != nil {
		return "", common.Wrapf(common.CodeExport, common.ErrExport, err, "failed to list cobrancas updated since %s", since.UTC().Format(time.RFC3339))
	}
	doc, err := newDocument(recs, now, e.systemName, constants.LatestSnapshotPeriod, latestFilter)
	if err != nil {
		return "", common.Wrapf(common.CodeExport, common.ErrExport, err, "failed to build snapshot")
	}

	path := filepath.Join(e.dir, constants.LatestSnapshotName)
	if err := writeSnapshot(path, doc); err != nil {
		return "", err
	}
	e.logger.Info("latest snapshot written", "path", path, "records", len(doc.Cobrancas), "since", since.UTC())
	return path, nil
}

// writeSnapshot replaces path atomically so readers never see a partial document.
func writeSnapshot(path string, doc *Document) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return common.Wrapf(common.CodeExport, common.ErrIO, err, "failed to create backup directory %s", dir)
	}
	tmp, err := os.CreateTemp(dir, ".cobrancas-*.tmp")
	if err != nil {
		return common.Wrapf(common.CodeExport, common.ErrIO, err, "failed to create temp file in %s", dir)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	enc := json.NewEncoder(tmp)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return common.Wrapf(common.CodeExport, common.ErrExport, err, "failed to encode snapshot")
	}
	if err := tmp.Sync(); err != nil {
		return common.Wrapf(common.CodeExport, common.ErrIO, err, "failed to sync %s", tmpName)
	}
	if err := tmp.Close(); err != nil {
		return common.Wrapf(common.CodeExport, common.ErrIO, err, "failed to close %s", tmpName)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return common.Wrapf(common.CodeExport, common.ErrIO, err, "failed to chmod %s", tmpName)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return common.Wrapf(common.CodeExport, common.ErrIO, err, "failed to move snapshot into %s", path)
	}
	committed = true
	return nil
}
