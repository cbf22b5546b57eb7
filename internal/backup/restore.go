package backup

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"

	"github.com/joseph-ayodele/cobrancas/internal/common"
	"github.com/joseph-ayodele/cobrancas/internal/repository"
)

// RestoreResult summarizes a merge of a snapshot into the store.
type RestoreResult struct {
	RestoredCount int  `json:"restored_count"`
	SkippedCount  int  `json:"skipped_count"`
	TotalInBackup int  `json:"total_in_backup"`
	DeclaredTotal *int `json:"declared_total,omitempty"`
	CountMismatch bool `json:"count_mismatch,omitempty"`
}

// Restorer merges snapshot documents into the store without touching existing rows.
type Restorer struct {
	repo   repository.CobrancaRepository
	logger *slog.Logger
}

func NewRestorer(repo repository.CobrancaRepository, logger *slog.Logger) *Restorer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Restorer{repo: repo, logger: logger}
}

// RestoreFile reads path and merges it. See Restore.
func (r *Restorer) RestoreFile(ctx context.Context, path string) (*RestoreResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, common.Wrapf(common.CodeFileNotFound, common.ErrFileNotFound, err, "Arquivo de backup não encontrado: %s", path)
		}
		return nil, common.Wrapf(common.CodeIO, common.ErrIO, err, "failed to read %s", path)
	}
	res, err := r.Restore(ctx, data)
	if err != nil {
		r.logger.Error("restore failed", "path", path, "error", err)
		return nil, err
	}
	r.logger.Info("restore finished", "path", path,
		"restored", res.RestoredCount, "skipped", res.SkippedCount, "total", res.TotalInBackup)
	return res, nil
}

// Restore validates every record of the snapshot in data, then inserts each record whose
// external_reference is not yet stored inside one transaction. Nothing is written unless
// the whole document validates, and any store failure rolls the transaction back.
func (r *Restorer) Restore(ctx context.Context, data []byte) (*RestoreResult, error) {
	doc, err := decodeSnapshot(data)
	if err != nil {
		return nil, err
	}

	v := common.NewValidator()
	for i := range doc.Cobrancas {
		doc.Cobrancas[i].validate(v, i)
	}
	if v.HasErrors() {
		return nil, common.NewAppError(common.CodeValidation,
			"snapshot has invalid records: "+v.ErrorMessage(), common.ErrValidation)
	}

	res := &RestoreResult{
		TotalInBackup: len(doc.Cobrancas),
		DeclaredTotal: doc.TotalCobrancas,
	}
	if doc.TotalCobrancas != nil && *doc.TotalCobrancas != len(doc.Cobrancas) {
		res.CountMismatch = true
		r.logger.Warn("snapshot declared total differs from record count",
			"declared", *doc.TotalCobrancas, "actual", len(doc.Cobrancas))
	}

	tx, err := r.repo.Begin(ctx)
	if err != nil {
		return nil, err
	}
	for i := range doc.Cobrancas {
		rec := &doc.Cobrancas[i]
		_, err := tx.GetByExternalReference(ctx, rec.ExternalReference)
		switch {
		case err == nil:
			res.SkippedCount++
			continue
		case !errors.Is(err, common.ErrNotFound):
			r.rollback(ctx, tx)
			return nil, err
		}
		if err := tx.Insert(ctx, rec.toEntity()); err != nil {
			r.rollback(ctx, tx)
			return nil, err
		}
		res.RestoredCount++
	}
	if err := tx.Commit(); err != nil {
		r.rollback(ctx, tx)
		return nil, err
	}
	return res, nil
}

func (r *Restorer) rollback(ctx context.Context, tx repository.Tx) {
	if err := tx.Rollback(); err != nil {
		r.logger.DebugContext(ctx, "rollback after failed restore", "error", err)
	}
}

// decodeSnapshot parses data into a Document, reporting shape problems as MALFORMED_SNAPSHOT.
func decodeSnapshot(data []byte) (*Document, error) {
	if !json.Valid(data) {
		return nil, common.NewAppError(common.CodeMalformedSnapshot, "Arquivo de backup não é um JSON válido", common.ErrMalformedSnapshot)
	}
	if err := validateShape(data); err != nil {
		return nil, common.Wrapf(common.CodeMalformedSnapshot, common.ErrMalformedSnapshot, err, "Formato de backup inválido")
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, common.Wrapf(common.CodeMalformedSnapshot, common.ErrMalformedSnapshot, err, "Formato de backup inválido")
	}
	return &doc, nil
}
