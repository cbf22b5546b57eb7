package backup

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/cobrancas/constants"
	"github.com/joseph-ayodele/cobrancas/internal/common"
	"github.com/joseph-ayodele/cobrancas/internal/entity"
)

const twoRecordSnapshot = `{
  "export_date": "2024-03-05T14:30:00",
  "total_cobrancas": 2,
  "cobrancas": [
    {"id": 7, "external_reference": "ref-1", "cliente_nome": "Ana", "cliente_email": "ana@example.com",
     "titulo": "Plano mensal", "valor": 49.9, "status": "approved", "mercadopago_id": "mp-1",
     "data_pagamento": "2024-03-01T10:00:00", "dados_mercadopago": {"id": 1}},
    {"id": 8, "external_reference": "ref-2", "cliente_nome": "Bruno", "cliente_email": "bruno@example.com",
     "titulo": "Plano anual", "valor": "499.00"}
  ],
  "metadata": {"version": "1.0", "system": "Sistema de Cobranças", "format": "JSON"}
}`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestRestoreIntoEmptyStore(t *testing.T) {
	store := newMemStore()
	r := NewRestorer(store, nil)

	res, err := r.Restore(context.Background(), []byte(twoRecordSnapshot))
	require.NoError(t, err)
	assert.Equal(t, 2, res.RestoredCount)
	assert.Equal(t, 0, res.SkippedCount)
	assert.Equal(t, 2, res.TotalInBackup)
	assert.False(t, res.CountMismatch)

	got, err := store.GetByExternalReference(context.Background(), "ref-1")
	require.NoError(t, err)
	assert.Equal(t, constants.StatusApproved, got.Status)
	assert.Equal(t, "mp-1", *got.ProviderPaymentID)
	assert.NotEqual(t, int64(7), got.ID, "ids are assigned by the store")
	require.NotNil(t, got.PaidAt)
	assert.True(t, time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC).Equal(*got.PaidAt))

	second, err := store.GetByExternalReference(context.Background(), "ref-2")
	require.NoError(t, err)
	assert.Equal(t, constants.StatusPending, second.Status)
	assert.True(t, decimal.RequireFromString("499").Equal(second.Amount))
}

func TestRestoreIsIdempotent(t *testing.T) {
	store := newMemStore()
	r := NewRestorer(store, nil)

	_, err := r.Restore(context.Background(), []byte(twoRecordSnapshot))
	require.NoError(t, err)
	res, err := r.Restore(context.Background(), []byte(twoRecordSnapshot))
	require.NoError(t, err)
	assert.Equal(t, 0, res.RestoredCount)
	assert.Equal(t, 2, res.SkippedCount)

	n, _ := store.Count(context.Background())
	assert.Equal(t, 2, n)
}

func TestRestoreNeverUpdatesExistingRows(t *testing.T) {
	store := newMemStore()
	existing := sampleCobranca("ref-1", time.Now().UTC())
	existing.Title = "Título local"
	existing.Status = constants.StatusCancelled
	store.seed(existing)

	res, err := NewRestorer(store, nil).Restore(context.Background(), []byte(twoRecordSnapshot))
	require.NoError(t, err)
	assert.Equal(t, 1, res.RestoredCount)
	assert.Equal(t, 1, res.SkippedCount)

	got, err := store.GetByExternalReference(context.Background(), "ref-1")
	require.NoError(t, err)
	assert.Equal(t, "Título local", got.Title)
	assert.Equal(t, constants.StatusCancelled, got.Status)
}

func TestRestoreDuplicateReferencesInOneSnapshot(t *testing.T) {
	doc := `{"cobrancas": [
		{"external_reference": "dup", "cliente_nome": "A", "cliente_email": "a@x.com", "titulo": "T", "valor": 1},
		{"external_reference": "dup", "cliente_nome": "B", "cliente_email": "b@x.com", "titulo": "T", "valor": 2}
	]}`
	store := newMemStore()
	res, err := NewRestorer(store, nil).Restore(context.Background(), []byte(doc))
	require.NoError(t, err)
	assert.Equal(t, 1, res.RestoredCount)
	assert.Equal(t, 1, res.SkippedCount)
	assert.Nil(t, res.DeclaredTotal)

	got, _ := store.GetByExternalReference(context.Background(), "dup")
	assert.Equal(t, "A", got.CustomerName)
}

func TestRestoreCountMismatchIsReported(t *testing.T) {
	doc := `{"total_cobrancas": 5, "cobrancas": [
		{"external_reference": "r", "cliente_nome": "A", "cliente_email": "a@x.com", "titulo": "T", "valor": 1}
	]}`
	res, err := NewRestorer(newMemStore(), nil).Restore(context.Background(), []byte(doc))
	require.NoError(t, err)
	assert.True(t, res.CountMismatch)
	assert.Equal(t, 1, res.TotalInBackup)
	require.NotNil(t, res.DeclaredTotal)
	assert.Equal(t, 5, *res.DeclaredTotal)
}

func TestRestoreMalformedInput(t *testing.T) {
	cases := map[string]string{
		"not json":          `{"cobrancas": [`,
		"missing cobrancas": `{"total_cobrancas": 0}`,
		"wrong type":        `{"cobrancas": "none"}`,
		"bad timestamp":     `{"cobrancas": [{"external_reference": "r", "data_vencimento": "soon"}]}`,
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			store := newMemStore()
			_, err := NewRestorer(store, nil).Restore(context.Background(), []byte(doc))
			require.Error(t, err)
			assert.Equal(t, common.CodeMalformedSnapshot, common.ErrorCode(err))
			assert.ErrorIs(t, err, common.ErrMalformedSnapshot)
			n, _ := store.Count(context.Background())
			assert.Zero(t, n)
		})
	}
}

func TestRestoreValidationFailsBeforeAnyWrite(t *testing.T) {
	doc := `{"cobrancas": [
		{"external_reference": "ok", "cliente_nome": "A", "cliente_email": "a@x.com", "titulo": "T", "valor": 1},
		{"external_reference": "bad", "cliente_email": "b@x.com", "titulo": "T", "valor": 1, "status": "paid"}
	]}`
	store := newMemStore()
	_, err := NewRestorer(store, nil).Restore(context.Background(), []byte(doc))
	require.Error(t, err)
	assert.Equal(t, common.CodeValidation, common.ErrorCode(err))
	assert.Contains(t, err.Error(), "cobrancas[1].cliente_nome")
	assert.Contains(t, err.Error(), "cobrancas[1].status")

	n, _ := store.Count(context.Background())
	assert.Zero(t, n)
}

func TestRestoreCommitFailureLeavesStoreUnchanged(t *testing.T) {
	store := newMemStore()
	store.seed(sampleCobranca("pre-existing", time.Now().UTC()))
	store.commitErr = common.NewAppError(common.CodeStore, "commit failed", common.ErrDatabase)

	_, err := NewRestorer(store, nil).Restore(context.Background(), []byte(twoRecordSnapshot))
	require.Error(t, err)
	assert.Equal(t, common.CodeStore, common.ErrorCode(err))

	all, _ := store.ListAll(context.Background())
	require.Len(t, all, 1)
	assert.Equal(t, "pre-existing", all[0].ExternalReference)
}

func TestRestoreInsertFailureRollsBack(t *testing.T) {
	store := newMemStore()
	store.failInsertN = 2

	_, err := NewRestorer(store, nil).Restore(context.Background(), []byte(twoRecordSnapshot))
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrDatabase)

	_, err = store.GetByExternalReference(context.Background(), "ref-1")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestRestoreFileNotFound(t *testing.T) {
	_, err := NewRestorer(newMemStore(), nil).RestoreFile(context.Background(), filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
	assert.Equal(t, common.CodeFileNotFound, common.ErrorCode(err))
	assert.ErrorIs(t, err, common.ErrFileNotFound)
}

func TestExportThenRestoreRoundTrip(t *testing.T) {
	updated := time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC)
	full := &entity.Cobranca{
		ProviderPaymentID: strPtr("mp-42"),
		ExternalReference: "ref-full",
		CustomerName:      "Célia Araújo",
		CustomerEmail:     "celia@example.com",
		CustomerPhone:     strPtr("+55 11 99999-0000"),
		CustomerDocument:  strPtr("123.456.789-00"),
		Title:             "Consultoria",
		Description:       strPtr("Sessão de 2h & relatório"),
		Amount:            decimal.RequireFromString("1234.56"),
		Status:            constants.StatusApproved,
		CreatedAt:         updated.Add(-24 * time.Hour),
		UpdatedAt:         updated,
		DueAt:             timePtr(time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)),
		PaidAt:            timePtr(time.Date(2024, 3, 5, 11, 59, 0, 0, time.UTC)),
		PaymentURL:        strPtr("https://pay.example.com/checkout?id=42&x=1"),
		ProviderData:      strPtr(`{"id":42,"payer":{"email":"celia@example.com"}}`),
	}
	source := newMemStore()
	source.seed(full, sampleCobranca("ref-min", updated))

	dir := t.TempDir()
	path, err := NewExporter(source, dir, "Sistema de Cobranças", 0, nil).ExportFull(context.Background())
	require.NoError(t, err)

	target := newMemStore()
	res, err := NewRestorer(target, nil).RestoreFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 2, res.RestoredCount)

	got, err := target.GetByExternalReference(context.Background(), "ref-full")
	require.NoError(t, err)
	assert.Equal(t, full.ProviderPaymentID, got.ProviderPaymentID)
	assert.Equal(t, full.CustomerName, got.CustomerName)
	assert.Equal(t, full.CustomerEmail, got.CustomerEmail)
	assert.Equal(t, full.CustomerPhone, got.CustomerPhone)
	assert.Equal(t, full.CustomerDocument, got.CustomerDocument)
	assert.Equal(t, full.Title, got.Title)
	assert.Equal(t, full.Description, got.Description)
	assert.True(t, full.Amount.Equal(got.Amount))
	assert.Equal(t, full.Status, got.Status)
	assert.True(t, full.DueAt.Equal(*got.DueAt))
	assert.True(t, full.PaidAt.Equal(*got.PaidAt))
	assert.Equal(t, full.PaymentURL, got.PaymentURL)
	require.NotNil(t, got.ProviderData)
	assert.JSONEq(t, *full.ProviderData, *got.ProviderData)
}
