// Package user manages accounts: registration with a hashed password,
// profile edits by the owner, and password authentication.
package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/heartmarshall/classroom-backend/internal/adapter/postgres/repository"
	"github.com/heartmarshall/classroom-backend/internal/config"
	"github.com/heartmarshall/classroom-backend/internal/domain"
	"github.com/heartmarshall/classroom-backend/internal/service/crud"
	"github.com/heartmarshall/classroom-backend/pkg/ctxutil"
)

// MinPasswordLength is the shortest accepted password.
const MinPasswordLength = 8

type userRepo interface {
	crud.Repository[domain.User]
	Exists(ctx context.Context, filters repository.Filters) (bool, error)
}

type txManager interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Output is the public shape of a user. The password hash is never exposed.
type Output struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	FullName  string    `json:"full_name"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

func toOutput(u *domain.User) any {
	return Output{
		ID:        u.ID,
		Email:     u.Email,
		FullName:  u.FullName,
		IsActive:  u.IsActive,
		CreatedAt: u.CreatedAt,
	}
}

// Service provides user operations.
type Service struct {
	*crud.Service[domain.User]

	users userRepo
	cost  int
	log   *slog.Logger
}

// NewService creates a new User service.
func NewService(
	log *slog.Logger,
	users userRepo,
	tx txManager,
	auth config.AuthConfig,
	metrics *crud.Metrics,
	pagination config.PaginationConfig,
) *Service {
	s := &Service{users: users, cost: auth.BcryptCost, log: log.With("service", "user")}
	if s.cost == 0 {
		s.cost = bcrypt.DefaultCost
	}

	validators := crud.NewValidators().
		Field("email", crud.Email()).
		Field("email", s.emailAvailable()).
		Field("full_name", crud.Text(100)).
		Field("password", crud.MinLength(MinPasswordLength)).
		Field("is_active", isBool).
		Cross(crud.TrimSpace("full_name")).
		Cross(s.authorize).
		Cross(s.hashPassword)

	shape := crud.Shape[domain.User](toOutput)
	s.Service = crud.NewService(crud.Config[domain.User]{
		Name:       "user",
		Repo:       users,
		Tx:         tx,
		Validators: validators,
		Hooks: crud.Hooks[domain.User]{
			BeforeFetch: requireUser,
		},
		Shapes: crud.Shapes[domain.User]{
			crud.OpCreate:   shape,
			crud.OpUpdate:   shape,
			crud.OpRetrieve: shape,
			crud.OpFetch:    shape,
		},
		Metrics:       metrics,
		Log:           log,
		Pagination:    pagination,
		ConflictField: "email",
	})
	return s
}

// emailAvailable rejects an address already taken by another account. The
// unique index still guards against a concurrent registration.
func (s *Service) emailAvailable() crud.FieldValidator {
	return func(ctx context.Context, value any) (bool, string, error) {
		email, _ := value.(string)
		filters := repository.Filters{"email": domain.NormalizeEmail(email)}
		if cur, ok := crud.CurrentOf[domain.User](ctx); ok {
			filters["id__ne"] = cur.ID
		}
		taken, err := s.users.Exists(ctx, filters)
		if err != nil {
			return false, "", fmt.Errorf("check email: %w", err)
		}
		if taken {
			return false, "already exists", nil
		}
		return true, "", nil
	}
}

func isBool(_ context.Context, value any) (bool, string, error) {
	if _, ok := value.(bool); !ok {
		return false, "must be a boolean", nil
	}
	return true, "", nil
}

// authorize lets anyone register and only the account owner change or
// delete it.
func (s *Service) authorize(ctx context.Context, attrs crud.Attrs) (crud.Attrs, error) {
	op := crud.OperationFromCtx(ctx)
	switch op {
	case crud.OpCreate:
		if _, ok := attrs["email"]; !ok {
			return nil, domain.NewValidationError("email", "required")
		}
		if _, ok := attrs["password"]; !ok {
			return nil, domain.NewValidationError("password", "required")
		}
		if _, ok := attrs["is_active"]; !ok {
			attrs["is_active"] = true
		}
	case crud.OpUpdate, crud.OpDelete:
		cur, ok := crud.CurrentOf[domain.User](ctx)
		if !ok {
			return nil, fmt.Errorf("user: no current entity in %s", op)
		}
		userID, ok := ctxutil.UserIDFromCtx(ctx)
		if !ok {
			return nil, domain.ErrUnauthorized
		}
		if userID != cur.ID {
			return nil, domain.NewForbiddenError(domain.NonFieldKey, "you can only change your own account")
		}
	}
	if email, ok := attrs["email"].(string); ok {
		attrs["email"] = domain.NormalizeEmail(email)
	}
	return attrs, nil
}

// hashPassword replaces the input-only password with its bcrypt hash. A
// hash supplied by the caller is discarded.
func (s *Service) hashPassword(_ context.Context, attrs crud.Attrs) (crud.Attrs, error) {
	delete(attrs, "password_hash")
	password, ok := attrs["password"].(string)
	if !ok {
		return attrs, nil
	}
	delete(attrs, "password")

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return nil, domain.NewValidationError("password", "max 72 bytes")
		}
		return nil, fmt.Errorf("hash password: %w", err)
	}
	attrs["password_hash"] = string(hash)
	return attrs, nil
}

func requireUser(ctx context.Context, p repository.Params) (repository.Params, error) {
	if _, ok := ctxutil.UserIDFromCtx(ctx); !ok {
		return p, domain.ErrUnauthorized
	}
	return p, nil
}

// Authenticate checks an email and password pair. Unknown emails, wrong
// passwords and deactivated accounts all yield domain.ErrUnauthorized.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*domain.User, error) {
	u, err := s.users.Retrieve(ctx, repository.Filters{"email": domain.NormalizeEmail(email)})
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrUnauthorized
		}
		return nil, fmt.Errorf("user.Authenticate get user: %w", err)
	}
	if !u.IsActive || u.PasswordHash == "" {
		return nil, domain.ErrUnauthorized
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, domain.ErrUnauthorized
	}

	s.log.InfoContext(ctx, "user authenticated", slog.Int64("user_id", u.ID))
	return u, nil
}
