package backup

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/joseph-ayodele/cobrancas/constants"
	"github.com/joseph-ayodele/cobrancas/internal/common"
	"github.com/joseph-ayodele/cobrancas/internal/entity"
	"github.com/joseph-ayodele/cobrancas/internal/repository"
)

// memStore is an in-memory CobrancaRepository. Inserts staged in a transaction are
// visible to lookups in that transaction only.
type memStore struct {
	mu     sync.Mutex
	rows   []*entity.Cobranca
	nextID int64
	now    func() time.Time

	listErr     error
	commitErr   error
	failInsertN int // fail the n-th insert of a transaction; 0 disables
}

func newMemStore() *memStore {
	return &memStore{now: func() time.Time { return time.Now().UTC() }}
}

func (m *memStore) seed(cs ...*entity.Cobranca) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range cs {
		m.nextID++
		cp := *c
		cp.ID = m.nextID
		m.rows = append(m.rows, &cp)
	}
}

func (m *memStore) ListAll(_ context.Context) ([]*entity.Cobranca, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	out := make([]*entity.Cobranca, 0, len(m.rows))
	for _, r := range m.rows {
		cp := *r
		out = append(out, &cp)
	}
	return out, nil
}

func (m *memStore) ListUpdatedSince(_ context.Context, since time.Time) ([]*entity.Cobranca, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []*entity.Cobranca
	for _, r := range m.rows {
		if !r.UpdatedAt.Before(since) {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memStore) GetByExternalReference(_ context.Context, ref string) (*entity.Cobranca, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.find(ref)
}

func (m *memStore) find(ref string) (*entity.Cobranca, error) {
	for _, r := range m.rows {
		if r.ExternalReference == ref {
			cp := *r
			return &cp, nil
		}
	}
	return nil, common.ErrNotFound
}

func (m *memStore) Count(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows), nil
}

func (m *memStore) Create(ctx context.Context, c *entity.Cobranca) (*entity.Cobranca, error) {
	tx, _ := m.Begin(ctx)
	if err := tx.Insert(ctx, c); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return m.GetByExternalReference(ctx, c.ExternalReference)
}

func (m *memStore) Begin(_ context.Context) (repository.Tx, error) {
	return &memTx{store: m}, nil
}

type memTx struct {
	store   *memStore
	staged  []*entity.Cobranca
	inserts int
	done    bool
}

func (t *memTx) GetByExternalReference(_ context.Context, ref string) (*entity.Cobranca, error) {
	for _, r := range t.staged {
		if r.ExternalReference == ref {
			cp := *r
			return &cp, nil
		}
	}
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	return t.store.find(ref)
}

func (t *memTx) Insert(_ context.Context, c *entity.Cobranca) error {
	t.inserts++
	if t.store.failInsertN > 0 && t.inserts == t.store.failInsertN {
		return common.NewAppError(common.CodeStore, "insert failed", common.ErrDatabase)
	}
	cp := *c
	now := t.store.now()
	cp.CreatedAt = now
	cp.UpdatedAt = now
	if cp.Status == "" {
		cp.Status = constants.StatusPending
	}
	t.staged = append(t.staged, &cp)
	return nil
}

func (t *memTx) Commit() error {
	if t.done {
		return errors.New("tx done")
	}
	t.done = true
	if t.store.commitErr != nil {
		return t.store.commitErr
	}
	t.store.seed(t.staged...)
	return nil
}

func (t *memTx) Rollback() error {
	if t.done {
		return errors.New("tx done")
	}
	t.done = true
	t.staged = nil
	return nil
}

// fakeVCS records calls and returns the configured errors.
type fakeVCS struct {
	repo      bool
	stageErr  error
	commitErr error
	initErr   error

	staged    []string
	committed []string
	messages  []string
	inits    int
}

func (f *fakeVCS) IsRepository(context.Context) bool { return f.repo }

func (f *fakeVCS) Stage(_ context.Context, path string) error {
	if f.stageErr != nil {
		return f.stageErr
	}
	f.staged = append(f.staged, path)
	return nil
}

func (f *fakeVCS) Commit(_ context.Context, path, message string) error {
	if f.commitErr != nil {
		return f.commitErr
	}
	f.committed = append(f.committed, path)
	f.messages = append(f.messages, message)
	return nil
}

func (f *fakeVCS) Init(context.Context) error {
	if f.initErr != nil {
		return f.initErr
	}
	f.inits++
	f.repo = true
	return nil
}

func strPtr(s string) *string { return &s }

func timePtr(t time.Time) *time.Time { return &t }

func sampleCobranca(ref string, updated time.Time) *entity.Cobranca {
	return &entity.Cobranca{
		ExternalReference: ref,
		CustomerName:      "João da Silva",
		CustomerEmail:     "joao@example.com",
		Title:             "Mensalidade <março>",
		Amount:            decimal.RequireFromString("150.50"),
		Status:            constants.StatusPending,
		CreatedAt:         updated.Add(-time.Hour),
		UpdatedAt:         updated,
	}
}
