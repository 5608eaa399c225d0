// Package participation manages room membership.
package participation

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/heartmarshall/classroom-backend/internal/adapter/postgres/repository"
	"github.com/heartmarshall/classroom-backend/internal/config"
	"github.com/heartmarshall/classroom-backend/internal/domain"
	"github.com/heartmarshall/classroom-backend/internal/service/crud"
	"github.com/heartmarshall/classroom-backend/pkg/ctxutil"
)

type accessChecker interface {
	ModeratorOfRoom() crud.FieldValidator
	RequireMember(ctx context.Context, roomID int64) error
	RequireModerator(ctx context.Context, roomID int64) error
}

type txManager interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// assignableRoles excludes OWNER: ownership is granted only by creating a
// room.
var assignableRoles = []string{
	domain.RoleTeacher.String(),
	domain.RoleModerator.String(),
	domain.RoleStudent.String(),
}

// Service provides participation operations.
type Service struct {
	*crud.Service[domain.Participation]

	access accessChecker
}

// NewService creates a new Participation service.
func NewService(
	log *slog.Logger,
	participations crud.Repository[domain.Participation],
	tx txManager,
	access accessChecker,
	metrics *crud.Metrics,
	pagination config.PaginationConfig,
) *Service {
	s := &Service{access: access}

	validators := crud.NewValidators().
		Field("room_id", crud.Immutable()).
		Field("room_id", access.ModeratorOfRoom()).
		Field("user_id", crud.Immutable()).
		Field("user_id", crud.ID()).
		Field("role", crud.OneOf(assignableRoles...)).
		Cross(s.authorize)

	s.Service = crud.NewService(crud.Config[domain.Participation]{
		Name:       "participation",
		Repo:       participations,
		Tx:         tx,
		Validators: validators,
		Hooks: crud.Hooks[domain.Participation]{
			BeforeFetch: s.beforeFetch,
		},
		Shapes: crud.Shapes[domain.Participation]{
			crud.OpCreate:   func(p *domain.Participation) any { return *p },
			crud.OpUpdate:   func(p *domain.Participation) any { return *p },
			crud.OpRetrieve: func(p *domain.Participation) any { return *p },
			crud.OpFetch:    func(p *domain.Participation) any { return *p },
		},
		Metrics:       metrics,
		Log:           log,
		Pagination:    pagination,
		ConflictField: "user_id",
	})
	return s
}

func (s *Service) authorize(ctx context.Context, attrs crud.Attrs) (crud.Attrs, error) {
	op := crud.OperationFromCtx(ctx)
	switch op {
	case crud.OpCreate:
		for _, field := range []string{"room_id", "user_id", "role"} {
			if _, ok := attrs[field]; !ok {
				return nil, domain.NewValidationError(field, "required")
			}
		}
		attrs["role"] = fmt.Sprint(attrs["role"])
	case crud.OpUpdate, crud.OpDelete:
		cur, ok := crud.CurrentOf[domain.Participation](ctx)
		if !ok {
			return nil, fmt.Errorf("participation: no current entity in %s", op)
		}
		if cur.Role == domain.RoleOwner {
			return nil, domain.NewValidationError("role", "the owner's participation cannot be changed")
		}
		// Members may leave on their own.
		if userID, ok := ctxutil.UserIDFromCtx(ctx); ok && op == crud.OpDelete && userID == cur.UserID {
			return attrs, nil
		}
		if err := s.access.RequireModerator(ctx, cur.RoomID); err != nil {
			return nil, err
		}
		if role, ok := attrs["role"]; ok {
			attrs["role"] = fmt.Sprint(role)
		}
	}
	return attrs, nil
}

// beforeFetch restricts listing to one room the caller belongs to.
func (s *Service) beforeFetch(ctx context.Context, p repository.Params) (repository.Params, error) {
	roomID, ok := crud.Int64(p.Filters["room_id"])
	if !ok || roomID <= 0 {
		return p, domain.NewValidationError("room_id", "required")
	}
	if err := s.access.RequireMember(ctx, roomID); err != nil {
		return p, err
	}
	return p, nil
}
