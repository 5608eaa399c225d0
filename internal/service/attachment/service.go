// Package attachment records file metadata attached to posts. File bodies
// live in external storage under a generated key.
package attachment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"github.com/google/uuid"

	"github.com/heartmarshall/classroom-backend/internal/adapter/postgres/repository"
	"github.com/heartmarshall/classroom-backend/internal/config"
	"github.com/heartmarshall/classroom-backend/internal/domain"
	"github.com/heartmarshall/classroom-backend/internal/service/crud"
	"github.com/heartmarshall/classroom-backend/pkg/ctxutil"
)

// MaxSizeBytes is the largest accepted attachment.
const MaxSizeBytes = 50 << 20

const defaultContentType = "application/octet-stream"

type postRepo interface {
	Retrieve(ctx context.Context, filters repository.Filters, join ...string) (*domain.RoomPost, error)
}

type accessChecker interface {
	RequireMember(ctx context.Context, roomID int64) error
	RequireModerator(ctx context.Context, roomID int64) error
}

type txManager interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Service provides attachment operations.
type Service struct {
	*crud.Service[domain.Attachment]

	posts  postRepo
	access accessChecker
}

// NewService creates a new Attachment service.
func NewService(
	log *slog.Logger,
	attachments crud.Repository[domain.Attachment],
	posts postRepo,
	tx txManager,
	access accessChecker,
	metrics *crud.Metrics,
	pagination config.PaginationConfig,
) *Service {
	s := &Service{posts: posts, access: access}

	validators := crud.NewValidators().
		Field("room_post_id", crud.Immutable()).
		Field("room_post_id", crud.ID()).
		Field("file_name", crud.Text(255)).
		Field("content_type", crud.OptionalText(100)).
		Field("size_bytes", crud.IntRange(0, MaxSizeBytes)).
		Cross(crud.TrimSpace("file_name", "content_type")).
		Cross(s.authorize).
		Cross(assignStorageKey).
		Cross(crud.AuthorStamper{CreatedBy: "author_id"}.Stamp)

	s.Service = crud.NewService(crud.Config[domain.Attachment]{
		Name:       "attachment",
		Repo:       attachments,
		Tx:         tx,
		Validators: validators,
		Hooks: crud.Hooks[domain.Attachment]{
			BeforeFetch:   s.beforeFetch,
			AfterRetrieve: s.afterRetrieve,
		},
		Shapes: crud.Shapes[domain.Attachment]{
			crud.OpCreate:   func(a *domain.Attachment) any { return *a },
			crud.OpUpdate:   func(a *domain.Attachment) any { return *a },
			crud.OpRetrieve: func(a *domain.Attachment) any { return *a },
			crud.OpFetch:    func(a *domain.Attachment) any { return *a },
		},
		Metrics:       metrics,
		Log:           log,
		Pagination:    pagination,
		ConflictField: "storage_key",
	})
	return s
}

func (s *Service) roomOf(ctx context.Context, postID int64) (int64, error) {
	p, err := s.posts.Retrieve(ctx, repository.Filters{"id": postID})
	if err != nil {
		return 0, err
	}
	return p.RoomID, nil
}

func (s *Service) authorize(ctx context.Context, attrs crud.Attrs) (crud.Attrs, error) {
	op := crud.OperationFromCtx(ctx)
	switch op {
	case crud.OpCreate:
		postID, ok := crud.Int64(attrs["room_post_id"])
		if !ok {
			return nil, domain.NewValidationError("room_post_id", "required")
		}
		if _, ok := attrs["file_name"]; !ok {
			return nil, domain.NewValidationError("file_name", "required")
		}
		roomID, err := s.roomOf(ctx, postID)
		if err != nil {
			return nil, notFoundAsField(err, "room_post_id", "post not found")
		}
		if err := s.access.RequireMember(ctx, roomID); err != nil {
			return nil, err
		}
	case crud.OpUpdate, crud.OpDelete:
		cur, ok := crud.CurrentOf[domain.Attachment](ctx)
		if !ok {
			return nil, fmt.Errorf("attachment: no current entity in %s", op)
		}
		if userID, ok := ctxutil.UserIDFromCtx(ctx); ok && userID == cur.AuthorID {
			return attrs, nil
		}
		roomID, err := s.roomOf(ctx, cur.RoomPostID)
		if err != nil {
			return nil, err
		}
		if err := s.access.RequireModerator(ctx, roomID); err != nil {
			return nil, err
		}
	}
	return attrs, nil
}

// assignStorageKey generates the storage key on create; it never changes.
// The content type falls back to a generic binary type.
func assignStorageKey(ctx context.Context, attrs crud.Attrs) (crud.Attrs, error) {
	delete(attrs, "storage_key")
	if crud.OperationFromCtx(ctx) != crud.OpCreate {
		return attrs, nil
	}
	name, _ := attrs["file_name"].(string)
	attrs["storage_key"] = StorageKey(uuid.New(), name)
	if ct, ok := attrs["content_type"].(string); !ok || strings.TrimSpace(ct) == "" {
		attrs["content_type"] = defaultContentType
	}
	return attrs, nil
}

// StorageKey builds the object key for a file: a random prefix plus the
// lowercased extension of the original name.
func StorageKey(id uuid.UUID, fileName string) string {
	return "attachments/" + id.String() + strings.ToLower(path.Ext(fileName))
}

func (s *Service) beforeFetch(ctx context.Context, p repository.Params) (repository.Params, error) {
	postID, ok := crud.Int64(p.Filters["room_post_id"])
	if !ok || postID <= 0 {
		return p, domain.NewValidationError("room_post_id", "required")
	}
	roomID, err := s.roomOf(ctx, postID)
	if err != nil {
		return p, err
	}
	if err := s.access.RequireMember(ctx, roomID); err != nil {
		return p, err
	}
	return p, nil
}

func (s *Service) afterRetrieve(ctx context.Context, a *domain.Attachment) error {
	roomID, err := s.roomOf(ctx, a.RoomPostID)
	if err != nil {
		return err
	}
	return s.access.RequireMember(ctx, roomID)
}

func notFoundAsField(err error, field, msg string) error {
	if errors.Is(err, domain.ErrNotFound) {
		return domain.NewValidationError(field, msg)
	}
	return err
}
