// Package post manages room posts.
package post

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/heartmarshall/classroom-backend/internal/adapter/postgres/repository"
	"github.com/heartmarshall/classroom-backend/internal/config"
	"github.com/heartmarshall/classroom-backend/internal/domain"
	"github.com/heartmarshall/classroom-backend/internal/service/crud"
	"github.com/heartmarshall/classroom-backend/pkg/ctxutil"
)

type topicRepo interface {
	Exists(ctx context.Context, filters repository.Filters) (bool, error)
}

type accessChecker interface {
	MemberOfRoom() crud.FieldValidator
	RequireMember(ctx context.Context, roomID int64) error
	RequireModerator(ctx context.Context, roomID int64) error
}

type txManager interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// AttachmentOutput is the public shape of an attachment inside a post.
type AttachmentOutput struct {
	ID          int64  `json:"id"`
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type"`
	SizeBytes   int64  `json:"size_bytes"`
}

// Output is the public shape of a post.
type Output struct {
	ID          int64              `json:"id"`
	RoomID      int64              `json:"room_id"`
	TopicID     *int64             `json:"topic_id,omitempty"`
	Title       string             `json:"title"`
	Body        string             `json:"body"`
	AuthorID    int64              `json:"author_id"`
	Attachments []AttachmentOutput `json:"attachments,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

func toOutput(p *domain.RoomPost) any {
	out := Output{
		ID:        p.ID,
		RoomID:    p.RoomID,
		TopicID:   p.TopicID,
		Title:     p.Title,
		Body:      p.Body,
		AuthorID:  p.AuthorID,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
	for _, a := range p.Attachments {
		out.Attachments = append(out.Attachments, AttachmentOutput{
			ID:          a.ID,
			FileName:    a.FileName,
			ContentType: a.ContentType,
			SizeBytes:   a.SizeBytes,
		})
	}
	return out
}

// Service provides post operations. Any room member may post; the author or
// a moderator may edit and delete.
type Service struct {
	*crud.Service[domain.RoomPost]

	topics topicRepo
	access accessChecker
}

// NewService creates a new Post service.
func NewService(
	log *slog.Logger,
	posts crud.Repository[domain.RoomPost],
	topics topicRepo,
	tx txManager,
	access accessChecker,
	metrics *crud.Metrics,
	pagination config.PaginationConfig,
) *Service {
	s := &Service{topics: topics, access: access}

	validators := crud.NewValidators().
		Field("room_id", crud.Immutable()).
		Field("room_id", access.MemberOfRoom()).
		Field("title", crud.Text(200)).
		Field("body", crud.Text(0)).
		Cross(crud.TrimSpace("title", "body")).
		Cross(s.authorize).
		Cross(s.checkTopic).
		Cross(crud.AuthorStamper{CreatedBy: "author_id", UpdatedBy: "updated_by_id"}.Stamp)

	shape := crud.Shape[domain.RoomPost](toOutput)
	s.Service = crud.NewService(crud.Config[domain.RoomPost]{
		Name:       "post",
		Repo:       posts,
		Tx:         tx,
		Validators: validators,
		Hooks: crud.Hooks[domain.RoomPost]{
			BeforeFetch:   s.beforeFetch,
			AfterRetrieve: s.afterRetrieve,
		},
		Shapes: crud.Shapes[domain.RoomPost]{
			crud.OpCreate:   shape,
			crud.OpUpdate:   shape,
			crud.OpRetrieve: shape,
			crud.OpFetch:    shape,
		},
		Metrics:    metrics,
		Log:        log,
		Pagination: pagination,
	})
	return s
}

func (s *Service) authorize(ctx context.Context, attrs crud.Attrs) (crud.Attrs, error) {
	op := crud.OperationFromCtx(ctx)
	switch op {
	case crud.OpCreate:
		for _, field := range []string{"room_id", "title", "body"} {
			if _, ok := attrs[field]; !ok {
				return nil, domain.NewValidationError(field, "required")
			}
		}
	case crud.OpUpdate, crud.OpDelete:
		cur, ok := crud.CurrentOf[domain.RoomPost](ctx)
		if !ok {
			return nil, fmt.Errorf("post: no current entity in %s", op)
		}
		if userID, ok := ctxutil.UserIDFromCtx(ctx); ok && userID == cur.AuthorID {
			return attrs, nil
		}
		if err := s.access.RequireModerator(ctx, cur.RoomID); err != nil {
			return nil, err
		}
	}
	return attrs, nil
}

// checkTopic requires a referenced topic to belong to the post's room.
func (s *Service) checkTopic(ctx context.Context, attrs crud.Attrs) (crud.Attrs, error) {
	raw, ok := attrs["topic_id"]
	if !ok || raw == nil {
		return attrs, nil
	}
	topicID, ok := crud.Int64(raw)
	if !ok {
		return nil, domain.NewValidationError("topic_id", "must be an integer")
	}

	var roomID int64
	if cur, ok := crud.CurrentOf[domain.RoomPost](ctx); ok {
		roomID = cur.RoomID
	} else {
		roomID, _ = crud.Int64(attrs["room_id"])
	}

	exists, err := s.topics.Exists(ctx, repository.Filters{"id": topicID, "room_id": roomID})
	if err != nil {
		return nil, fmt.Errorf("check topic: %w", err)
	}
	if !exists {
		return nil, domain.NewValidationError("topic_id", "topic not found in this room")
	}
	return attrs, nil
}

// beforeFetch restricts listing to one room the caller belongs to, newest
// first unless asked otherwise.
func (s *Service) beforeFetch(ctx context.Context, p repository.Params) (repository.Params, error) {
	roomID, ok := crud.Int64(p.Filters["room_id"])
	if !ok || roomID <= 0 {
		return p, domain.NewValidationError("room_id", "required")
	}
	if err := s.access.RequireMember(ctx, roomID); err != nil {
		return p, err
	}
	if len(p.Ordering) == 0 {
		p.Ordering = []string{"-created_at"}
	}
	return p, nil
}

func (s *Service) afterRetrieve(ctx context.Context, p *domain.RoomPost) error {
	return s.access.RequireMember(ctx, p.RoomID)
}
