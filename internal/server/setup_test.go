package server

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/cobrancas/internal/backup"
	"github.com/joseph-ayodele/cobrancas/internal/entity"
	"github.com/joseph-ayodele/cobrancas/internal/repository"
)

type stubVCS struct {
	repo     bool
	messages []string
}

func (s *stubVCS) IsRepository(context.Context) bool { return s.repo }
func (s *stubVCS) Stage(context.Context, string) error {
	return nil
}
func (s *stubVCS) Commit(_ context.Context, _, msg string) error {
	s.messages = append(s.messages, msg)
	return nil
}

type fixture struct {
	repo    repository.CobrancaRepository
	backups *backup.Service
	vcs     *stubVCS
	dir     string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()
	db, err := repository.OpenSQLite(filepath.Join(root, "cobrancas.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { repository.Close(db, nil) })
	require.NoError(t, repository.Migrate(context.Background(), db, nil))

	repo := repository.NewCobrancaRepository(db.Driver, nil)
	vcs := &stubVCS{repo: true}
	dir := filepath.Join(root, "backups")
	svc, err := backup.NewService(repo, vcs, backup.Options{Dir: dir})
	require.NoError(t, err)
	return &fixture{repo: repo, backups: svc, vcs: vcs, dir: dir}
}

func (f *fixture) seed(t *testing.T, refs ...string) {
	t.Helper()
	for _, ref := range refs {
		_, err := f.repo.Create(context.Background(), &entity.Cobranca{
			ExternalReference: ref,
			CustomerName:      "Ana Souza",
			CustomerEmail:     "ana@example.com",
			Title:             "Plano mensal",
			Amount:            decimal.RequireFromString("49.90"),
		})
		require.NoError(t, err)
	}
}

func (f *fixture) writeSnapshot(t *testing.T, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(f.dir, name), []byte(content), 0o644))
}

const oneRecordSnapshot = `{"total_cobrancas": 1, "cobrancas": [
	{"external_reference": "restored-1", "cliente_nome": "Bruno", "cliente_email": "bruno@example.com",
	 "titulo": "Plano anual", "valor": 499}
]}`
