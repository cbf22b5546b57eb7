package backup

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/cobrancas/internal/common"
)

func newTestService(t *testing.T, store *memStore, vcs *fakeVCS) (*Service, *Metrics) {
	t.Helper()
	metrics := NewMetrics(prometheus.NewRegistry())
	svc, err := NewService(store, vcs, Options{
		Dir:        filepath.Join(t.TempDir(), "backups"),
		SystemName: "Sistema de Cobranças",
		Metrics:    metrics,
		Now:        fixedClock(time.Date(2024, 3, 5, 14, 30, 0, 0, time.Local)),
	})
	require.NoError(t, err)
	return svc, metrics
}

func TestNewServiceCreatesDirectory(t *testing.T) {
	svc, _ := newTestService(t, newMemStore(), &fakeVCS{})
	info, err := os.Stat(svc.Dir())
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	_, err = NewService(newMemStore(), &fakeVCS{}, Options{})
	assert.Equal(t, common.CodeConfig, common.ErrorCode(err))
}

func TestParseMode(t *testing.T) {
	assert.Equal(t, ModeLatest, ParseMode("latest"))
	assert.Equal(t, ModeLatest, ParseMode(" LATEST "))
	assert.Equal(t, ModeFull, ParseMode("full"))
	assert.Equal(t, ModeFull, ParseMode(""))
	assert.Equal(t, ModeFull, ParseMode("weekly"))
}

func TestBackupAndCommitSuccess(t *testing.T) {
	store := newMemStore()
	store.seed(sampleCobranca("ref-1", time.Now().UTC()))
	vcs := &fakeVCS{repo: true}
	svc, metrics := newTestService(t, store, vcs)

	res := svc.BackupAndCommit(context.Background(), ModeFull, "")
	require.True(t, res.Success)
	assert.Equal(t, ModeFull, res.BackupType)
	assert.Equal(t, filepath.Join(svc.Dir(), "cobrancas_backup_20240305_143000.json"), res.BackupFile)
	require.NotNil(t, res.GitResult)
	assert.True(t, res.GitResult.Success)
	assert.Equal(t, "Backup completo - 2024-03-05 14:30:00", res.GitResult.CommitMessage)
	assert.Equal(t, []string{res.BackupFile}, vcs.staged)

	latest := svc.BackupAndCommit(context.Background(), ModeLatest, "")
	require.True(t, latest.Success)
	assert.Equal(t, "Backup incremental - 2024-03-05 14:30:00", latest.GitResult.CommitMessage)

	custom := svc.BackupAndCommit(context.Background(), ModeLatest, "manual")
	assert.Equal(t, "manual", custom.GitResult.CommitMessage)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Exports.WithLabelValues("full", "success")))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.Exports.WithLabelValues("latest", "success")))
	assert.Equal(t, 3.0, testutil.ToFloat64(metrics.Commits.WithLabelValues("success")))
}

func TestBackupAndCommitReportsExportSuccessWhenCommitFails(t *testing.T) {
	vcs := &fakeVCS{repo: false}
	svc, metrics := newTestService(t, newMemStore(), vcs)

	res := svc.BackupAndCommit(context.Background(), ModeFull, "")
	assert.True(t, res.Success)
	require.NotNil(t, res.GitResult)
	assert.False(t, res.GitResult.Success)
	assert.Equal(t, common.CodeNotARepository, res.GitResult.Code)
	_, err := os.Stat(res.BackupFile)
	assert.NoError(t, err, "snapshot stays on disk")
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Commits.WithLabelValues("error")))
}

func TestBackupAndCommitExportFailure(t *testing.T) {
	store := newMemStore()
	store.listErr = errors.New("db down")
	vcs := &fakeVCS{repo: true}
	svc, metrics := newTestService(t, store, vcs)

	res := svc.BackupAndCommit(context.Background(), ModeFull, "")
	assert.False(t, res.Success)
	assert.Equal(t, common.CodeExport, res.Code)
	assert.Nil(t, res.GitResult)
	assert.Empty(t, vcs.staged)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Exports.WithLabelValues("full", "error")))
}

func TestServiceRestoreByFilename(t *testing.T) {
	store := newMemStore()
	svc, metrics := newTestService(t, store, &fakeVCS{})
	writeFile(t, svc.Dir(), "snap.json", twoRecordSnapshot)

	res, err := svc.Restore(context.Background(), "snap.json")
	require.NoError(t, err)
	assert.Equal(t, 2, res.RestoredCount)
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.RestoreRecords.WithLabelValues("restored")))

	res, err = svc.Restore(context.Background(), "snap.json")
	require.NoError(t, err)
	assert.Equal(t, 2, res.SkippedCount)
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.Restores.WithLabelValues("success")))

	_, err = svc.Restore(context.Background(), "missing.json")
	assert.Equal(t, common.CodeFileNotFound, common.ErrorCode(err))
}

func TestServiceRejectsPathsOutsideBackupDir(t *testing.T) {
	svc, _ := newTestService(t, newMemStore(), &fakeVCS{})
	for _, name := range []string{"", "..", "../etc/passwd", "sub/file.json", "/etc/passwd"} {
		_, err := svc.Restore(context.Background(), name)
		assert.Equal(t, common.CodeInvalidInput, common.ErrorCode(err), name)

		_, err = svc.OpenBackup(name)
		assert.Equal(t, common.CodeInvalidInput, common.ErrorCode(err), name)
	}
}

func TestServiceOpenBackup(t *testing.T) {
	svc, _ := newTestService(t, newMemStore(), &fakeVCS{})
	writeFile(t, svc.Dir(), "snap.json", `{"cobrancas": []}`)

	f, err := svc.OpenBackup("snap.json")
	require.NoError(t, err)
	defer f.Close()
	b, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, `{"cobrancas": []}`, string(b))

	_, err = svc.OpenBackup("other.json")
	assert.ErrorIs(t, err, common.ErrFileNotFound)
}

func TestServiceStatusAndList(t *testing.T) {
	store := newMemStore()
	store.seed(sampleCobranca("ref-1", time.Now().UTC()))
	svc, _ := newTestService(t, store, &fakeVCS{repo: true})

	st := svc.Status(context.Background())
	assert.True(t, st.GitRepository)
	assert.True(t, st.BackupDirectoryExists)
	assert.Equal(t, 0, st.TotalBackupFiles)
	assert.Nil(t, st.LatestBackup)

	path, err := svc.Export(context.Background(), ModeFull)
	require.NoError(t, err)
	old := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(path, old, old))
	_, err = svc.Export(context.Background(), ModeLatest)
	require.NoError(t, err)

	list := svc.ListBackups(context.Background())
	require.Len(t, list, 2)
	assert.Equal(t, "cobrancas_latest.json", list[0].Filename)

	st = svc.Status(context.Background())
	assert.Equal(t, 2, st.TotalBackupFiles)
	require.NotNil(t, st.LatestBackup)
	assert.Equal(t, "cobrancas_latest.json", st.LatestBackup.Filename)
}

func TestServiceInitRepository(t *testing.T) {
	vcs := &fakeVCS{}
	svc, _ := newTestService(t, newMemStore(), vcs)

	require.NoError(t, svc.InitRepository(context.Background()))
	require.NoError(t, svc.InitRepository(context.Background()))
	assert.Equal(t, 1, vcs.inits)
	assert.True(t, svc.Status(context.Background()).GitRepository)
}
