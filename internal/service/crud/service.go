// Package crud is the service layer shared by every entity: an action chain
// carried in the context, a field/cross-field validation pipeline, and a
// Service facade that composes them with a repository.
package crud

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/heartmarshall/classroom-backend/internal/adapter/postgres/repository"
	"github.com/heartmarshall/classroom-backend/internal/config"
	"github.com/heartmarshall/classroom-backend/internal/domain"
	"github.com/heartmarshall/classroom-backend/pkg/ctxutil"
)

// Repository is the storage a Service needs.
// *repository.Repository[T] satisfies it.
type Repository[T any] interface {
	Descriptor() *repository.Descriptor
	Fetch(ctx context.Context, p repository.Params) ([]T, error)
	Retrieve(ctx context.Context, filters repository.Filters, join ...string) (*T, error)
	Create(ctx context.Context, attrs map[string]any, join ...string) (*T, error)
	UpdateAndReload(ctx context.Context, filters repository.Filters, values map[string]any, join ...string) (*T, error)
	Delete(ctx context.Context, filters repository.Filters) (int64, error)
}

type txManager interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Hooks are entity-specific steps around the write path. Before/After
// create, update and delete run inside the transaction when a TxManager is
// configured.
type Hooks[T any] struct {
	BeforeCreate func(ctx context.Context, attrs Attrs) (Attrs, error)
	AfterCreate  func(ctx context.Context, created *T) error
	BeforeUpdate func(ctx context.Context, current *T, attrs Attrs) (Attrs, error)
	AfterUpdate  func(ctx context.Context, before, after *T) error
	AfterDelete  func(ctx context.Context, deleted *T) error
	// BeforeFetch may scope or reject a list query.
	BeforeFetch func(ctx context.Context, p repository.Params) (repository.Params, error)
	// AfterRetrieve may reject access to a single entity.
	AfterRetrieve func(ctx context.Context, entity *T) error
}

// Config assembles a Service.
type Config[T any] struct {
	Name       string
	Repo       Repository[T]
	Tx         txManager
	Validators *Validators
	Hooks      Hooks[T]
	Shapes     Shapes[T]
	Metrics    *Metrics
	Log        *slog.Logger
	Pagination config.PaginationConfig
	// ConflictField is the field a uniqueness violation is reported on.
	// Defaults to domain.NonFieldKey.
	ConflictField string
}

// Service provides create, update, delete, fetch, retrieve and bulk create
// for one entity with a uniform error shape: *domain.ValidationError for
// rejected input (including uniqueness conflicts), domain.ErrNotFound, or an
// infrastructure error.
type Service[T any] struct {
	name          string
	repo          Repository[T]
	desc          *repository.Descriptor
	tx            txManager
	validators    *Validators
	hooks         Hooks[T]
	shapes        Shapes[T]
	metrics       *Metrics
	log           *slog.Logger
	pagination    config.PaginationConfig
	conflictField string
}

// NewService creates a Service from cfg.
func NewService[T any](cfg Config[T]) *Service[T] {
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	validators := cfg.Validators
	if validators == nil {
		validators = NewValidators()
	}
	conflict := cfg.ConflictField
	if conflict == "" {
		conflict = domain.NonFieldKey
	}
	return &Service[T]{
		name:          cfg.Name,
		repo:          cfg.Repo,
		desc:          cfg.Repo.Descriptor(),
		tx:            cfg.Tx,
		validators:    validators,
		hooks:         cfg.Hooks,
		shapes:        cfg.Shapes,
		metrics:       cfg.Metrics,
		log:           log.With("service", cfg.Name),
		pagination:    cfg.Pagination,
		conflictField: conflict,
	}
}

// Name returns the entity name used in logs and metrics.
func (s *Service[T]) Name() string { return s.name }

// Create validates attrs and persists a new entity.
func (s *Service[T]) Create(ctx context.Context, attrs Attrs, join ...string) (*T, error) {
	ctx = WithAction(ctx, Action{Name: OpCreate, Entity: s.name, Attrs: attrs})

	values, err := s.validators.Validate(ctx, s.desc, attrs)
	if err != nil {
		return nil, s.finish(ctx, OpCreate, 0, err)
	}

	var created *T
	err = s.inTx(ctx, func(ctx context.Context) error {
		if s.hooks.BeforeCreate != nil {
			if values, err = s.hooks.BeforeCreate(ctx, values); err != nil {
				return err
			}
		}
		if created, err = s.repo.Create(ctx, values, join...); err != nil {
			return err
		}
		if s.hooks.AfterCreate != nil {
			return s.hooks.AfterCreate(ctx, created)
		}
		return nil
	})
	if err != nil {
		return nil, s.finish(ctx, OpCreate, 0, err)
	}

	id, _ := s.desc.Value(created, s.desc.PK)
	s.finish(ctx, OpCreate, toInt64(id), nil)
	return created, nil
}

// Update validates attrs and applies them to the entity with id.
func (s *Service[T]) Update(ctx context.Context, id int64, attrs Attrs, join ...string) (*T, error) {
	if len(s.validators.whitelist(s.desc, attrs)) == 0 {
		return nil, s.finish(ctx, OpUpdate, id,
			domain.NewValidationError("input", "at least one field must be provided"))
	}

	current, err := s.repo.Retrieve(ctx, repository.Filters{s.desc.PK: id})
	if err != nil {
		return nil, s.finish(ctx, OpUpdate, id, err)
	}
	ctx = WithAction(ctx, Action{Name: OpUpdate, Entity: s.name, ID: id, Attrs: attrs, Current: current})

	values, err := s.validators.Validate(ctx, s.desc, attrs)
	if err != nil {
		return nil, s.finish(ctx, OpUpdate, id, err)
	}

	var updated *T
	err = s.inTx(ctx, func(ctx context.Context) error {
		if s.hooks.BeforeUpdate != nil {
			if values, err = s.hooks.BeforeUpdate(ctx, current, values); err != nil {
				return err
			}
		}
		filters := repository.Filters{s.desc.PK: id}
		if len(values) == 0 {
			updated, err = s.repo.Retrieve(ctx, filters, join...)
		} else {
			updated, err = s.repo.UpdateAndReload(ctx, filters, values, join...)
		}
		if err != nil {
			return err
		}
		if s.hooks.AfterUpdate != nil {
			return s.hooks.AfterUpdate(ctx, current, updated)
		}
		return nil
	})
	if err != nil {
		return nil, s.finish(ctx, OpUpdate, id, err)
	}

	s.finish(ctx, OpUpdate, id, nil)
	return updated, nil
}

// Delete removes the entity with id. Cross-field hooks run with an empty
// attribute set so authorization checks apply to deletes too.
func (s *Service[T]) Delete(ctx context.Context, id int64) error {
	current, err := s.repo.Retrieve(ctx, repository.Filters{s.desc.PK: id})
	if err != nil {
		return s.finish(ctx, OpDelete, id, err)
	}
	ctx = WithAction(ctx, Action{Name: OpDelete, Entity: s.name, ID: id, Attrs: Attrs{}, Current: current})

	if _, err := s.validators.Validate(ctx, s.desc, Attrs{}); err != nil {
		return s.finish(ctx, OpDelete, id, err)
	}

	err = s.inTx(ctx, func(ctx context.Context) error {
		n, err := s.repo.Delete(ctx, repository.Filters{s.desc.PK: id})
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("%s %d: %w", s.name, id, domain.ErrNotFound)
		}
		if s.hooks.AfterDelete != nil {
			return s.hooks.AfterDelete(ctx, current)
		}
		return nil
	})
	return s.finish(ctx, OpDelete, id, err)
}

// Fetch lists entities. The limit is clamped to the configured pagination
// bounds.
func (s *Service[T]) Fetch(ctx context.Context, p repository.Params) ([]T, error) {
	ctx = WithAction(ctx, Action{Name: OpFetch, Entity: s.name, Attrs: Attrs(p.Filters)})

	if s.hooks.BeforeFetch != nil {
		var err error
		if p, err = s.hooks.BeforeFetch(ctx, p); err != nil {
			return nil, s.finish(ctx, OpFetch, 0, err)
		}
	}
	if s.pagination.DefaultLimit > 0 {
		p.Limit = s.pagination.Clamp(p.Limit)
	}

	rows, err := s.repo.Fetch(ctx, p)
	if err != nil {
		return nil, s.finish(ctx, OpFetch, 0, err)
	}
	s.observe(OpFetch, nil)
	return rows, nil
}

// Retrieve returns the entity with id.
func (s *Service[T]) Retrieve(ctx context.Context, id int64, join ...string) (*T, error) {
	ctx = WithAction(ctx, Action{Name: OpRetrieve, Entity: s.name, ID: id})

	entity, err := s.repo.Retrieve(ctx, repository.Filters{s.desc.PK: id}, join...)
	if err == nil && s.hooks.AfterRetrieve != nil {
		err = s.hooks.AfterRetrieve(ctx, entity)
	}
	if err != nil {
		return nil, s.finish(ctx, OpRetrieve, id, err)
	}
	s.observe(OpRetrieve, nil)
	return entity, nil
}

// Serialize maps v through the shape declared for op. A missing shape is a
// programming error and panics.
func (s *Service[T]) Serialize(op string, v *T) any {
	return s.shapes.serialize(s.name, op, v)
}

// SerializeAll maps every element of vs through the shape declared for op.
func (s *Service[T]) SerializeAll(op string, vs []T) []any {
	out := make([]any, len(vs))
	for i := range vs {
		out[i] = s.shapes.serialize(s.name, op, &vs[i])
	}
	return out
}

func (s *Service[T]) inTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.tx == nil {
		return fn(ctx)
	}
	return s.tx.RunInTx(ctx, fn)
}

// finish normalizes err, records the outcome and logs it. It returns the
// normalized error.
func (s *Service[T]) finish(ctx context.Context, op string, id int64, err error) error {
	err = s.normalize(err)
	s.observe(op, err)

	attrs := []any{
		slog.String("operation", op),
		slog.String("outcome", Outcome(err)),
	}
	if id != 0 {
		attrs = append(attrs, slog.Int64("id", id))
	}
	if userID, ok := ctxutil.UserIDFromCtx(ctx); ok {
		attrs = append(attrs, slog.Int64("user_id", userID))
	}
	if reqID := ctxutil.RequestIDFromCtx(ctx); reqID != "" {
		attrs = append(attrs, slog.String("request_id", reqID))
	}

	switch Outcome(err) {
	case OutcomeOK:
		s.log.InfoContext(ctx, s.name+" "+op, attrs...)
	case OutcomeError:
		s.log.ErrorContext(ctx, s.name+" "+op+" failed", append(attrs, slog.String("error", err.Error()))...)
	default:
		s.log.DebugContext(ctx, s.name+" "+op+" rejected", append(attrs, slog.String("error", err.Error()))...)
	}
	return err
}

func (s *Service[T]) observe(op string, err error) {
	s.metrics.observe(s.name, op, err)
}

func (s *Service[T]) normalize(err error) error {
	if err == nil {
		return nil
	}
	var ve *domain.ValidationError
	if errors.As(err, &ve) {
		return ve
	}
	if errors.Is(err, domain.ErrAlreadyExists) {
		return domain.NewConflictError(s.conflictField)
	}
	return err
}

func toInt64(v any) int64 {
	n, _ := Int64(v)
	return n
}
