package repository

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"

	"github.com/joseph-ayodele/cobrancas/constants"
	"github.com/joseph-ayodele/cobrancas/internal/common"
	"github.com/joseph-ayodele/cobrancas/internal/entity"
)

var cobrancaColumns = []string{
	"id",
	"mercadopago_id",
	"external_reference",
	"cliente_nome",
	"cliente_email",
	"cliente_telefone",
	"cliente_documento",
	"titulo",
	"descricao",
	"valor",
	"status",
	"data_criacao",
	"data_atualizacao",
	"data_vencimento",
	"data_pagamento",
	"payment_url",
	"dados_mercadopago",
}

// CobrancaRepository is the record store backing snapshots and restores.
type CobrancaRepository interface {
	ListAll(ctx context.Context) ([]*entity.Cobranca, error)
	ListUpdatedSince(ctx context.Context, since time.Time) ([]*entity.Cobranca, error)
	GetByExternalReference(ctx context.Context, ref string) (*entity.Cobranca, error)
	Count(ctx context.Context) (int, error)
	Create(ctx context.Context, c *entity.Cobranca) (*entity.Cobranca, error)
	Begin(ctx context.Context) (Tx, error)
}

// Tx stages inserts that become visible only after Commit.
type Tx interface {
	GetByExternalReference(ctx context.Context, ref string) (*entity.Cobranca, error)
	Insert(ctx context.Context, c *entity.Cobranca) error
	Commit() error
	Rollback() error
}

type cobrancaRepository struct {
	drv     dialect.Driver
	dialect string
	logger  *slog.Logger
	now     func() time.Time
}

func NewCobrancaRepository(drv dialect.Driver, logger *slog.Logger) CobrancaRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &cobrancaRepository{
		drv:     drv,
		dialect: drv.Dialect(),
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (r *cobrancaRepository) ListAll(ctx context.Context) ([]*entity.Cobranca, error) {
	sel := r.selector().OrderBy("id")
	recs, err := queryCobrancas(ctx, r.drv, sel)
	if err != nil {
		r.logger.Error("failed to list cobrancas", "error", err)
		return nil, storeError("list cobrancas", err)
	}
	return recs, nil
}

func (r *cobrancaRepository) ListUpdatedSince(ctx context.Context, since time.Time) ([]*entity.Cobranca, error) {
	sel := r.selector().
		Where(entsql.GTE("data_atualizacao", since.UTC())).
		OrderBy("id")
	recs, err := queryCobrancas(ctx, r.drv, sel)
	if err != nil {
		r.logger.Error("failed to list recent cobrancas", "since", since, "error", err)
		return nil, storeError("list recent cobrancas", err)
	}
	return recs, nil
}

func (r *cobrancaRepository) GetByExternalReference(ctx context.Context, ref string) (*entity.Cobranca, error) {
	return getByExternalReference(ctx, r.drv, r.selector(), ref)
}

func (r *cobrancaRepository) Count(ctx context.Context) (int, error) {
	query, args := entsql.Dialect(r.dialect).
		Select(entsql.Count("*")).
		From(entsql.Table(cobrancasTable)).
		Query()
	rows := &entsql.Rows{}
	if err := r.drv.Query(ctx, query, args, rows); err != nil {
		return 0, storeError("count cobrancas", err)
	}
	defer rows.Close()

	var n int
	if rows.Next() {
		if err := rows.Scan(&n); err != nil {
			return 0, storeError("count cobrancas", err)
		}
	}
	if err := rows.Err(); err != nil {
		return 0, storeError("count cobrancas", err)
	}
	return n, nil
}

func (r *cobrancaRepository) Create(ctx context.Context, c *entity.Cobranca) (*entity.Cobranca, error) {
	tx, err := r.Begin(ctx)
	if err != nil {
		return nil, err
	}
	if err := tx.Insert(ctx, c); err != nil {
		_ = tx.Rollback()
		r.logger.Error("failed to create cobranca", "external_reference", c.ExternalReference, "error", err)
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		_ = tx.Rollback()
		r.logger.Error("failed to commit cobranca", "external_reference", c.ExternalReference, "error", err)
		return nil, err
	}
	return r.GetByExternalReference(ctx, c.ExternalReference)
}

func (r *cobrancaRepository) Begin(ctx context.Context) (Tx, error) {
	tx, err := r.drv.Tx(ctx)
	if err != nil {
		r.logger.Error("failed to begin transaction", "error", err)
		return nil, storeError("begin transaction", err)
	}
	return &cobrancaTx{tx: tx, repo: r}, nil
}

func (r *cobrancaRepository) selector() *entsql.Selector {
	return entsql.Dialect(r.dialect).
		Select(cobrancaColumns...).
		From(entsql.Table(cobrancasTable))
}

type cobrancaTx struct {
	tx   dialect.Tx
	repo *cobrancaRepository
}

func (t *cobrancaTx) GetByExternalReference(ctx context.Context, ref string) (*entity.Cobranca, error) {
	return getByExternalReference(ctx, t.tx, t.repo.selector(), ref)
}

// Insert stamps created/updated timestamps, defaults the status and stages the row.
func (t *cobrancaTx) Insert(ctx context.Context, c *entity.Cobranca) error {
	now := t.repo.now()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	if c.Status == "" {
		c.Status = constants.StatusPending
	}

	query, args := entsql.Dialect(t.repo.dialect).
		Insert(cobrancasTable).
		Columns(cobrancaColumns[1:]...).
		Values(
			c.ProviderPaymentID,
			c.ExternalReference,
			c.CustomerName,
			c.CustomerEmail,
			c.CustomerPhone,
			c.CustomerDocument,
			c.Title,
			c.Description,
			c.Amount,
			string(c.Status),
			c.CreatedAt.UTC(),
			c.UpdatedAt.UTC(),
			utcPtr(c.DueAt),
			utcPtr(c.PaidAt),
			c.PaymentURL,
			c.ProviderData,
		).
		Query()
	if err := t.tx.Exec(ctx, query, args, nil); err != nil {
		return storeError("insert cobranca "+c.ExternalReference, err)
	}
	return nil
}

func (t *cobrancaTx) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return storeError("commit", err)
	}
	return nil
}

func (t *cobrancaTx) Rollback() error {
	if err := t.tx.Rollback(); err != nil {
		return storeError("rollback", err)
	}
	return nil
}

func getByExternalReference(ctx context.Context, q dialect.ExecQuerier, sel *entsql.Selector, ref string) (*entity.Cobranca, error) {
	sel = sel.Where(entsql.EQ("external_reference", ref)).Limit(1)
	recs, err := queryCobrancas(ctx, q, sel)
	if err != nil {
		return nil, storeError("get cobranca "+ref, err)
	}
	if len(recs) == 0 {
		return nil, common.ErrNotFound
	}
	return recs[0], nil
}

func queryCobrancas(ctx context.Context, q dialect.ExecQuerier, sel *entsql.Selector) ([]*entity.Cobranca, error) {
	query, args := sel.Query()
	rows := &entsql.Rows{}
	if err := q.Query(ctx, query, args, rows); err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]*entity.Cobranca, 0)
	for rows.Next() {
		c, err := scanCobranca(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

func scanCobranca(rows *entsql.Rows) (*entity.Cobranca, error) {
	var (
		c      entity.Cobranca
		status string
	)
	err := rows.Scan(
		&c.ID,
		&c.ProviderPaymentID,
		&c.ExternalReference,
		&c.CustomerName,
		&c.CustomerEmail,
		&c.CustomerPhone,
		&c.CustomerDocument,
		&c.Title,
		&c.Description,
		&c.Amount,
		&status,
		&c.CreatedAt,
		&c.UpdatedAt,
		&c.DueAt,
		&c.PaidAt,
		&c.PaymentURL,
		&c.ProviderData,
	)
	if err != nil {
		return nil, err
	}
	c.Status = constants.CobrancaStatus(status)
	c.CreatedAt = c.CreatedAt.UTC()
	c.UpdatedAt = c.UpdatedAt.UTC()
	c.DueAt = utcPtr(c.DueAt)
	c.PaidAt = utcPtr(c.PaidAt)
	return &c, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

func storeError(op string, err error) error {
	var appErr *common.AppError
	if errors.As(err, &appErr) {
		return err
	}
	return common.Wrapf(common.CodeStore, common.ErrDatabase, err, "%s", op)
}
