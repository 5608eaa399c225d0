package crud

import (
	"context"
	"sync"
	"time"

	"github.com/heartmarshall/classroom-backend/internal/adapter/postgres/repository"
)

// note is a minimal entity for exercising the framework without a schema.
type note struct {
	ID          int64     `db:"id"`
	Title       string    `db:"title"`
	Body        *string   `db:"body"`
	AuthorID    int64     `db:"author_id"`
	UpdatedByID *int64    `db:"updated_by_id"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

func (note) TableName() string { return "notes" }

// ---------------------------------------------------------------------------
// Manual mocks (moq-style with func fields)
// ---------------------------------------------------------------------------

type noteRepoMock struct {
	FetchFunc           func(ctx context.Context, p repository.Params) ([]note, error)
	RetrieveFunc        func(ctx context.Context, filters repository.Filters, join ...string) (*note, error)
	CreateFunc          func(ctx context.Context, attrs map[string]any, join ...string) (*note, error)
	UpdateAndReloadFunc func(ctx context.Context, filters repository.Filters, values map[string]any, join ...string) (*note, error)
	DeleteFunc          func(ctx context.Context, filters repository.Filters) (int64, error)

	mu    sync.Mutex
	calls struct {
		Fetch           []repository.Params
		Retrieve        []repository.Filters
		Create          []map[string]any
		UpdateAndReload []map[string]any
		Delete          []repository.Filters
	}
}

func (m *noteRepoMock) Descriptor() *repository.Descriptor {
	return repository.Describe[note]()
}

func (m *noteRepoMock) Fetch(ctx context.Context, p repository.Params) ([]note, error) {
	m.mu.Lock()
	m.calls.Fetch = append(m.calls.Fetch, p)
	m.mu.Unlock()
	if m.FetchFunc == nil {
		panic("noteRepoMock.FetchFunc: method is nil but Fetch was just called")
	}
	return m.FetchFunc(ctx, p)
}

func (m *noteRepoMock) Retrieve(ctx context.Context, filters repository.Filters, join ...string) (*note, error) {
	m.mu.Lock()
	m.calls.Retrieve = append(m.calls.Retrieve, filters)
	m.mu.Unlock()
	if m.RetrieveFunc == nil {
		panic("noteRepoMock.RetrieveFunc: method is nil but Retrieve was just called")
	}
	return m.RetrieveFunc(ctx, filters, join...)
}

func (m *noteRepoMock) Create(ctx context.Context, attrs map[string]any, join ...string) (*note, error) {
	m.mu.Lock()
	m.calls.Create = append(m.calls.Create, attrs)
	m.mu.Unlock()
	if m.CreateFunc == nil {
		panic("noteRepoMock.CreateFunc: method is nil but Create was just called")
	}
	return m.CreateFunc(ctx, attrs, join...)
}

func (m *noteRepoMock) UpdateAndReload(ctx context.Context, filters repository.Filters, values map[string]any, join ...string) (*note, error) {
	m.mu.Lock()
	m.calls.UpdateAndReload = append(m.calls.UpdateAndReload, values)
	m.mu.Unlock()
	if m.UpdateAndReloadFunc == nil {
		panic("noteRepoMock.UpdateAndReloadFunc: method is nil but UpdateAndReload was just called")
	}
	return m.UpdateAndReloadFunc(ctx, filters, values, join...)
}

func (m *noteRepoMock) Delete(ctx context.Context, filters repository.Filters) (int64, error) {
	m.mu.Lock()
	m.calls.Delete = append(m.calls.Delete, filters)
	m.mu.Unlock()
	if m.DeleteFunc == nil {
		panic("noteRepoMock.DeleteFunc: method is nil but Delete was just called")
	}
	return m.DeleteFunc(ctx, filters)
}

func (m *noteRepoMock) CreateCalls() []map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls.Create
}

func (m *noteRepoMock) UpdateAndReloadCalls() []map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls.UpdateAndReload
}

func (m *noteRepoMock) DeleteCalls() []repository.Filters {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls.Delete
}

func (m *noteRepoMock) FetchCalls() []repository.Params {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls.Fetch
}

func (m *noteRepoMock) RetrieveCalls() []repository.Filters {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls.Retrieve
}

type txManagerMock struct {
	RunInTxFunc func(ctx context.Context, fn func(ctx context.Context) error) error

	mu    sync.Mutex
	calls int
}

func (m *txManagerMock) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.RunInTxFunc != nil {
		return m.RunInTxFunc(ctx, fn)
	}
	return fn(ctx)
}

func (m *txManagerMock) RunInTxCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}
