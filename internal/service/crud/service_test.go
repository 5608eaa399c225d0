package crud

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heartmarshall/classroom-backend/internal/adapter/postgres/repository"
	"github.com/heartmarshall/classroom-backend/internal/config"
	"github.com/heartmarshall/classroom-backend/internal/domain"
	"github.com/heartmarshall/classroom-backend/pkg/ctxutil"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func newTestService(repo *noteRepoMock, tx *txManagerMock, hooks Hooks[note]) *Service[note] {
	if tx == nil {
		tx = &txManagerMock{}
	}
	return NewService(Config[note]{
		Name: "note",
		Repo: repo,
		Tx:   tx,
		Validators: NewValidators().
			Field("title", Text(20)).
			Cross(AuthorStamper{CreatedBy: "author_id", UpdatedBy: "updated_by_id"}.Stamp),
		Hooks: hooks,
		Shapes: Shapes[note]{
			OpRetrieve: func(n *note) any { return map[string]any{"id": n.ID, "title": n.Title} },
		},
		Log:        slog.Default(),
		Pagination: config.PaginationConfig{DefaultLimit: 50, MaxLimit: 200},
	})
}

func userCtx() context.Context {
	return ctxutil.WithUserID(context.Background(), 7)
}

func existing(id int64) func(context.Context, repository.Filters, ...string) (*note, error) {
	return func(_ context.Context, f repository.Filters, _ ...string) (*note, error) {
		if f["id"] != id {
			return nil, fmt.Errorf("notes: %w", domain.ErrNotFound)
		}
		return &note{ID: id, Title: "old", AuthorID: 7}, nil
	}
}

// ---------------------------------------------------------------------------
// Create
// ---------------------------------------------------------------------------

func TestService_Create_Success(t *testing.T) {
	t.Parallel()

	repo := &noteRepoMock{
		CreateFunc: func(_ context.Context, attrs map[string]any, _ ...string) (*note, error) {
			return &note{ID: 1, Title: attrs["title"].(string), AuthorID: attrs["author_id"].(int64)}, nil
		},
	}
	tx := &txManagerMock{}
	svc := newTestService(repo, tx, Hooks[note]{})

	got, err := svc.Create(userCtx(), Attrs{"title": "Hello", "id": 555, "junk": 1})
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.ID)
	assert.Equal(t, int64(7), got.AuthorID)

	require.Len(t, repo.CreateCalls(), 1)
	assert.Equal(t, map[string]any{
		"title":         "Hello",
		"author_id":     int64(7),
		"updated_by_id": int64(7),
	}, repo.CreateCalls()[0])
	assert.Equal(t, 1, tx.RunInTxCalls())
}

func TestService_Create_ValidationNeverTouchesStorage(t *testing.T) {
	t.Parallel()

	repo := &noteRepoMock{}
	tx := &txManagerMock{}
	svc := newTestService(repo, tx, Hooks[note]{})

	_, err := svc.Create(userCtx(), Attrs{"title": ""})
	require.Error(t, err)

	var ve *domain.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, map[string]string{"title": "required"}, ve.Fields())
	assert.Empty(t, repo.CreateCalls())
	assert.Equal(t, 0, tx.RunInTxCalls())
}

func TestService_Create_UniqueViolationBecomesFieldError(t *testing.T) {
	t.Parallel()

	repo := &noteRepoMock{
		CreateFunc: func(context.Context, map[string]any, ...string) (*note, error) {
			return nil, fmt.Errorf("notes: %w", domain.ErrAlreadyExists)
		},
	}
	svc := newTestService(repo, nil, Hooks[note]{})

	_, err := svc.Create(userCtx(), Attrs{"title": "dup"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrValidation))
	assert.True(t, errors.Is(err, domain.ErrAlreadyExists))
	assert.Equal(t, map[string]string{domain.NonFieldKey: "already exists"}, domain.FieldsOf(err))
}

func TestService_Create_ConflictFieldIsConfigurable(t *testing.T) {
	t.Parallel()

	repo := &noteRepoMock{
		CreateFunc: func(context.Context, map[string]any, ...string) (*note, error) {
			return nil, domain.ErrAlreadyExists
		},
	}
	svc := NewService(Config[note]{Name: "note", Repo: repo, ConflictField: "title"})

	_, err := svc.Create(context.Background(), Attrs{"title": "dup"})
	assert.Equal(t, map[string]string{"title": "already exists"}, domain.FieldsOf(err))
}

func TestService_Create_InfrastructureErrorPropagates(t *testing.T) {
	t.Parallel()

	boom := errors.New("connection refused")
	repo := &noteRepoMock{
		CreateFunc: func(context.Context, map[string]any, ...string) (*note, error) {
			return nil, boom
		},
	}
	svc := newTestService(repo, nil, Hooks[note]{})

	_, err := svc.Create(userCtx(), Attrs{"title": "x"})
	assert.ErrorIs(t, err, boom)
	assert.False(t, errors.Is(err, domain.ErrValidation))
}

func TestService_Create_HooksRunInsideTransaction(t *testing.T) {
	t.Parallel()

	type txKey struct{}
	var order []string
	repo := &noteRepoMock{
		CreateFunc: func(ctx context.Context, attrs map[string]any, _ ...string) (*note, error) {
			assert.Equal(t, true, ctx.Value(txKey{}))
			order = append(order, "create")
			return &note{ID: 3}, nil
		},
	}
	tx := &txManagerMock{
		RunInTxFunc: func(ctx context.Context, fn func(context.Context) error) error {
			return fn(context.WithValue(ctx, txKey{}, true))
		},
	}
	svc := newTestService(repo, tx, Hooks[note]{
		BeforeCreate: func(ctx context.Context, attrs Attrs) (Attrs, error) {
			assert.Equal(t, true, ctx.Value(txKey{}))
			order = append(order, "before")
			attrs["body"] = "derived"
			return attrs, nil
		},
		AfterCreate: func(ctx context.Context, created *note) error {
			assert.Equal(t, true, ctx.Value(txKey{}))
			order = append(order, "after")
			return nil
		},
	})

	_, err := svc.Create(userCtx(), Attrs{"title": "x"})
	require.NoError(t, err)
	assert.Equal(t, []string{"before", "create", "after"}, order)
	assert.Equal(t, "derived", repo.CreateCalls()[0]["body"])
}

func TestService_Create_AfterHookFailureRollsBack(t *testing.T) {
	t.Parallel()

	hookErr := errors.New("enrol failed")
	repo := &noteRepoMock{
		CreateFunc: func(context.Context, map[string]any, ...string) (*note, error) {
			return &note{ID: 3}, nil
		},
	}
	svc := newTestService(repo, nil, Hooks[note]{
		AfterCreate: func(context.Context, *note) error { return hookErr },
	})

	got, err := svc.Create(userCtx(), Attrs{"title": "x"})
	assert.Nil(t, got)
	assert.ErrorIs(t, err, hookErr)
}

// ---------------------------------------------------------------------------
// Update
// ---------------------------------------------------------------------------

func TestService_Update_Success(t *testing.T) {
	t.Parallel()

	repo := &noteRepoMock{
		RetrieveFunc: existing(5),
		UpdateAndReloadFunc: func(_ context.Context, f repository.Filters, values map[string]any, _ ...string) (*note, error) {
			assert.Equal(t, repository.Filters{"id": int64(5)}, f)
			return &note{ID: 5, Title: values["title"].(string)}, nil
		},
	}
	svc := newTestService(repo, nil, Hooks[note]{})

	got, err := svc.Update(userCtx(), 5, Attrs{"title": "new", "author_id": 99})
	require.NoError(t, err)
	assert.Equal(t, "new", got.Title)

	// author_id is overwritten only on create; update stamps the updater.
	assert.Equal(t, map[string]any{
		"title":         "new",
		"author_id":     99,
		"updated_by_id": int64(7),
	}, repo.UpdateAndReloadCalls()[0])
}

func TestService_Update_EmptyInput(t *testing.T) {
	t.Parallel()

	repo := &noteRepoMock{}
	svc := newTestService(repo, nil, Hooks[note]{})

	_, err := svc.Update(userCtx(), 5, Attrs{"id": 6, "unknown": "x"})
	require.Error(t, err)
	assert.Equal(t, map[string]string{"input": "at least one field must be provided"}, domain.FieldsOf(err))
	assert.Empty(t, repo.RetrieveCalls())
}

func TestService_Update_NotFound(t *testing.T) {
	t.Parallel()

	repo := &noteRepoMock{RetrieveFunc: existing(5)}
	svc := newTestService(repo, nil, Hooks[note]{})

	_, err := svc.Update(userCtx(), 6, Attrs{"title": "x"})
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Empty(t, repo.UpdateAndReloadCalls())
}

func TestService_Update_HookSeesCurrentEntity(t *testing.T) {
	t.Parallel()

	repo := &noteRepoMock{
		RetrieveFunc: existing(5),
		UpdateAndReloadFunc: func(context.Context, repository.Filters, map[string]any, ...string) (*note, error) {
			return &note{ID: 5, Title: "new"}, nil
		},
	}
	v := NewValidators().
		Field("title", func(ctx context.Context, _ any) (bool, string, error) {
			cur, ok := CurrentOf[note](ctx)
			if !ok || cur.Title != "old" {
				return false, "no current", nil
			}
			return true, "", nil
		})
	svc := NewService(Config[note]{Name: "note", Repo: repo, Validators: v})

	_, err := svc.Update(context.Background(), 5, Attrs{"title": "new"})
	require.NoError(t, err)
}

func TestService_Update_BeforeHookMayConsumeAllValues(t *testing.T) {
	t.Parallel()

	repo := &noteRepoMock{RetrieveFunc: existing(5)}
	svc := NewService(Config[note]{
		Name: "note",
		Repo: repo,
		Hooks: Hooks[note]{
			BeforeUpdate: func(_ context.Context, _ *note, attrs Attrs) (Attrs, error) {
				delete(attrs, "title")
				return attrs, nil
			},
		},
	})

	got, err := svc.Update(context.Background(), 5, Attrs{"title": "handled elsewhere"})
	require.NoError(t, err)
	assert.Equal(t, int64(5), got.ID)
	assert.Empty(t, repo.UpdateAndReloadCalls())
	assert.Len(t, repo.RetrieveCalls(), 2)
}

// ---------------------------------------------------------------------------
// Delete
// ---------------------------------------------------------------------------

func TestService_Delete_Success(t *testing.T) {
	t.Parallel()

	var deleted *note
	repo := &noteRepoMock{
		RetrieveFunc: existing(5),
		DeleteFunc: func(context.Context, repository.Filters) (int64, error) {
			return 1, nil
		},
	}
	svc := newTestService(repo, nil, Hooks[note]{
		AfterDelete: func(_ context.Context, n *note) error {
			deleted = n
			return nil
		},
	})

	require.NoError(t, svc.Delete(userCtx(), 5))
	require.NotNil(t, deleted)
	assert.Equal(t, int64(5), deleted.ID)
	assert.Equal(t, []repository.Filters{{"id": int64(5)}}, repo.DeleteCalls())
}

func TestService_Delete_CrossHookCanForbid(t *testing.T) {
	t.Parallel()

	repo := &noteRepoMock{RetrieveFunc: existing(5)}
	v := NewValidators().Cross(func(ctx context.Context, attrs Attrs) (Attrs, error) {
		if OperationFromCtx(ctx) == OpDelete {
			return nil, domain.NewForbiddenError(domain.NonFieldKey, "not allowed")
		}
		return attrs, nil
	})
	svc := NewService(Config[note]{Name: "note", Repo: repo, Validators: v})

	err := svc.Delete(context.Background(), 5)
	assert.ErrorIs(t, err, domain.ErrForbidden)
	assert.Empty(t, repo.DeleteCalls())
}

func TestService_Delete_RaceLostIsNotFound(t *testing.T) {
	t.Parallel()

	repo := &noteRepoMock{
		RetrieveFunc: existing(5),
		DeleteFunc:   func(context.Context, repository.Filters) (int64, error) { return 0, nil },
	}
	svc := newTestService(repo, nil, Hooks[note]{})

	assert.ErrorIs(t, svc.Delete(userCtx(), 5), domain.ErrNotFound)
}

// ---------------------------------------------------------------------------
// Fetch / Retrieve
// ---------------------------------------------------------------------------

func TestService_Fetch_ClampsLimit(t *testing.T) {
	t.Parallel()

	repo := &noteRepoMock{
		FetchFunc: func(context.Context, repository.Params) ([]note, error) {
			return []note{{ID: 1}}, nil
		},
	}
	svc := newTestService(repo, nil, Hooks[note]{})

	for _, tc := range []struct{ in, want uint64 }{{0, 50}, {10, 10}, {1000, 200}} {
		_, err := svc.Fetch(userCtx(), repository.Params{Limit: tc.in})
		require.NoError(t, err)
	}
	calls := repo.FetchCalls()
	require.Len(t, calls, 3)
	assert.Equal(t, uint64(50), calls[0].Limit)
	assert.Equal(t, uint64(10), calls[1].Limit)
	assert.Equal(t, uint64(200), calls[2].Limit)
}

func TestService_Fetch_BeforeHookScopes(t *testing.T) {
	t.Parallel()

	repo := &noteRepoMock{
		FetchFunc: func(_ context.Context, p repository.Params) ([]note, error) {
			assert.Equal(t, int64(7), p.Filters["author_id"])
			return []note{}, nil
		},
	}
	svc := newTestService(repo, nil, Hooks[note]{
		BeforeFetch: func(ctx context.Context, p repository.Params) (repository.Params, error) {
			uid, _ := ctxutil.UserIDFromCtx(ctx)
			if p.Filters == nil {
				p.Filters = repository.Filters{}
			}
			p.Filters["author_id"] = uid
			return p, nil
		},
	})

	got, err := svc.Fetch(userCtx(), repository.Params{})
	require.NoError(t, err)
	assert.NotNil(t, got)
}

func TestService_Retrieve(t *testing.T) {
	t.Parallel()

	repo := &noteRepoMock{RetrieveFunc: existing(5)}
	svc := newTestService(repo, nil, Hooks[note]{
		AfterRetrieve: func(ctx context.Context, n *note) error {
			if _, ok := ctxutil.UserIDFromCtx(ctx); !ok {
				return domain.ErrUnauthorized
			}
			return nil
		},
	})

	got, err := svc.Retrieve(userCtx(), 5)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"id": int64(5), "title": "old"}, svc.Serialize(OpRetrieve, got))

	_, err = svc.Retrieve(context.Background(), 5)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	_, err = svc.Retrieve(userCtx(), 9)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

// ---------------------------------------------------------------------------
// Serialize
// ---------------------------------------------------------------------------

func TestService_Serialize_MissingShapePanics(t *testing.T) {
	t.Parallel()

	svc := newTestService(&noteRepoMock{}, nil, Hooks[note]{})
	assert.Panics(t, func() { svc.Serialize(OpCreate, &note{}) })
}

func TestService_SerializeAll(t *testing.T) {
	t.Parallel()

	svc := newTestService(&noteRepoMock{}, nil, Hooks[note]{})
	got := svc.SerializeAll(OpRetrieve, []note{{ID: 1, Title: "a"}, {ID: 2, Title: "b"}})
	assert.Equal(t, []any{
		map[string]any{"id": int64(1), "title": "a"},
		map[string]any{"id": int64(2), "title": "b"},
	}, got)
}
