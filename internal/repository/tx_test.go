package repository

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/cobrancas/internal/common"
)

func newMockRepo(t *testing.T) (CobrancaRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	drv := entsql.OpenDB(dialect.Postgres, db)
	return NewCobrancaRepository(drv, slog.Default()), mock
}

func TestTxCommitFailureSurfacesStoreError(t *testing.T) {
	repo, mock := newMockRepo(t)
	ctx := context.Background()

	mock.ExpectBegin()
	for i := 0; i < 5; i++ {
		mock.ExpectExec(`INSERT INTO "cobrancas"`).WillReturnResult(sqlmock.NewResult(int64(i+1), 1))
	}
	mock.ExpectCommit().WillReturnError(errors.New(`duplicate key value violates unique constraint "cobrancas_external_reference_key"`))

	tx, err := repo.Begin(ctx)
	require.NoError(t, err)
	for _, ref := range []string{"a", "b", "c", "d", "e"} {
		require.NoError(t, tx.Insert(ctx, sampleCobranca(ref)))
	}

	err = tx.Commit()
	require.Error(t, err)
	assert.Equal(t, common.CodeStore, common.ErrorCode(err))
	assert.True(t, errors.Is(err, common.ErrDatabase))

	// the driver already ended the transaction; rollback must not reach the database
	assert.Error(t, tx.Rollback())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTxInsertFailureRollsBack(t *testing.T) {
	repo, mock := newMockRepo(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO "cobrancas"`).WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	tx, err := repo.Begin(ctx)
	require.NoError(t, err)

	err = tx.Insert(ctx, sampleCobranca("x"))
	require.Error(t, err)
	require.NoError(t, tx.Rollback())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetByExternalReferenceQueriesByKey(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(`FROM "cobrancas" WHERE "external_reference" = \$1`).
		WithArgs("ref-9").
		WillReturnRows(sqlmock.NewRows(cobrancaColumns))

	_, err := repo.GetByExternalReference(context.Background(), "ref-9")
	assert.True(t, errors.Is(err, common.ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}
