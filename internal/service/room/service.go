// Package room manages rooms. Creating a room enrols its creator as owner.
package room

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/heartmarshall/classroom-backend/internal/adapter/postgres/repository"
	"github.com/heartmarshall/classroom-backend/internal/config"
	"github.com/heartmarshall/classroom-backend/internal/domain"
	"github.com/heartmarshall/classroom-backend/internal/service/crud"
	"github.com/heartmarshall/classroom-backend/pkg/ctxutil"
)

type participationRepo interface {
	Fetch(ctx context.Context, p repository.Params) ([]domain.Participation, error)
	Create(ctx context.Context, attrs map[string]any, join ...string) (*domain.Participation, error)
}

type accessChecker interface {
	RequireMember(ctx context.Context, roomID int64) error
	RequireModerator(ctx context.Context, roomID int64) error
}

type txManager interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Output is the public shape of a room.
type Output struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Slug        string    `json:"slug"`
	Description *string   `json:"description,omitempty"`
	AuthorID    int64     `json:"author_id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func toOutput(r *domain.Room) any {
	return Output{
		ID:          r.ID,
		Name:        r.Name,
		Slug:        r.Slug,
		Description: r.Description,
		AuthorID:    r.AuthorID,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

// Service provides room operations.
type Service struct {
	*crud.Service[domain.Room]

	participations participationRepo
	access         accessChecker
}

// NewService creates a new Room service.
func NewService(
	log *slog.Logger,
	rooms crud.Repository[domain.Room],
	participations participationRepo,
	tx txManager,
	access accessChecker,
	metrics *crud.Metrics,
	pagination config.PaginationConfig,
) *Service {
	s := &Service{participations: participations, access: access}

	validators := crud.NewValidators().
		Field("name", crud.Text(100)).
		Field("description", crud.OptionalText(2000)).
		Cross(crud.TrimSpace("name", "description")).
		Cross(s.authorize).
		Cross(deriveSlug).
		Cross(crud.AuthorStamper{CreatedBy: "author_id", UpdatedBy: "updated_by_id"}.Stamp)

	shape := crud.Shape[domain.Room](toOutput)
	s.Service = crud.NewService(crud.Config[domain.Room]{
		Name:       "room",
		Repo:       rooms,
		Tx:         tx,
		Validators: validators,
		Hooks: crud.Hooks[domain.Room]{
			AfterCreate:   s.enrolOwner,
			BeforeFetch:   s.scopeToMember,
			AfterRetrieve: s.requireMember,
		},
		Shapes: crud.Shapes[domain.Room]{
			crud.OpCreate:   shape,
			crud.OpUpdate:   shape,
			crud.OpRetrieve: shape,
			crud.OpFetch:    shape,
		},
		Metrics:       metrics,
		Log:           log,
		Pagination:    pagination,
		ConflictField: "slug",
	})
	return s
}

func (s *Service) authorize(ctx context.Context, attrs crud.Attrs) (crud.Attrs, error) {
	switch crud.OperationFromCtx(ctx) {
	case crud.OpCreate:
		if _, ok := attrs["name"]; !ok {
			return nil, domain.NewValidationError("name", "required")
		}
	case crud.OpUpdate, crud.OpDelete:
		cur, ok := crud.CurrentOf[domain.Room](ctx)
		if !ok {
			return nil, fmt.Errorf("room: no current entity in %s", crud.OperationFromCtx(ctx))
		}
		if err := s.access.RequireModerator(ctx, cur.ID); err != nil {
			return nil, err
		}
	}
	return attrs, nil
}

// deriveSlug sets the slug from the name on create. A short random suffix
// keeps slugs of equally named rooms apart. Slugs never change afterwards.
func deriveSlug(ctx context.Context, attrs crud.Attrs) (crud.Attrs, error) {
	delete(attrs, "slug")
	if crud.OperationFromCtx(ctx) != crud.OpCreate {
		return attrs, nil
	}
	name, _ := attrs["name"].(string)
	attrs["slug"] = domain.Slugify(name) + "-" + uuid.NewString()[:8]
	return attrs, nil
}

func (s *Service) enrolOwner(ctx context.Context, created *domain.Room) error {
	_, err := s.participations.Create(ctx, map[string]any{
		"room_id": created.ID,
		"user_id": created.AuthorID,
		"role":    domain.RoleOwner.String(),
	})
	if err != nil {
		return fmt.Errorf("enrol owner: %w", err)
	}
	return nil
}

// scopeToMember limits listing to the rooms the caller participates in.
func (s *Service) scopeToMember(ctx context.Context, p repository.Params) (repository.Params, error) {
	userID, ok := ctxutil.UserIDFromCtx(ctx)
	if !ok {
		return p, domain.ErrUnauthorized
	}
	mine, err := s.participations.Fetch(ctx, repository.Params{
		Filters: repository.Filters{"user_id": userID},
	})
	if err != nil {
		return p, fmt.Errorf("list participations: %w", err)
	}
	ids := make([]int64, len(mine))
	for i, m := range mine {
		ids[i] = m.RoomID
	}

	filters := make(repository.Filters, len(p.Filters)+1)
	for k, v := range p.Filters {
		filters[k] = v
	}
	filters["id__in"] = ids
	p.Filters = filters
	if len(p.Ordering) == 0 {
		p.Ordering = []string{"name"}
	}
	return p, nil
}

func (s *Service) requireMember(ctx context.Context, r *domain.Room) error {
	return s.access.RequireMember(ctx, r.ID)
}
