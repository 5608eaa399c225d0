// Package topic manages the ordered topic list of a room on top of the
// generic crud service.
package topic

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/heartmarshall/classroom-backend/internal/adapter/postgres/repository"
	"github.com/heartmarshall/classroom-backend/internal/config"
	"github.com/heartmarshall/classroom-backend/internal/domain"
	"github.com/heartmarshall/classroom-backend/internal/service/crud"
)

// MaxTopicsPerRoom caps the length of one room's topic list.
const MaxTopicsPerRoom = 500

type topicRepo interface {
	crud.Repository[domain.Topic]
	store
}

type accessChecker interface {
	ModeratorOfRoom() crud.FieldValidator
	RequireMember(ctx context.Context, roomID int64) error
	RequireModerator(ctx context.Context, roomID int64) error
}

// Output is the public shape of a topic.
type Output struct {
	ID        int64     `json:"id"`
	RoomID    int64     `json:"room_id"`
	Title     string    `json:"title"`
	Order     int32     `json:"order"`
	AuthorID  int64     `json:"author_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toOutput(t *domain.Topic) any {
	return Output{
		ID:        t.ID,
		RoomID:    t.RoomID,
		Title:     t.Title,
		Order:     t.Order,
		AuthorID:  t.AuthorID,
		CreatedAt: t.CreatedAt,
		UpdatedAt: t.UpdatedAt,
	}
}

// Service provides topic operations. Create appends, an update carrying
// "order" moves the topic, and delete closes the gap.
type Service struct {
	*crud.Service[domain.Topic]

	ranker *Ranker
	access accessChecker
}

// NewService creates a new Topic service.
func NewService(
	log *slog.Logger,
	topics topicRepo,
	tx txManager,
	access accessChecker,
	metrics *crud.Metrics,
	pagination config.PaginationConfig,
) *Service {
	s := &Service{
		ranker: NewRanker(topics, tx),
		access: access,
	}

	validators := crud.NewValidators().
		Field("room_id", crud.Immutable()).
		Field("room_id", access.ModeratorOfRoom()).
		Field("title", crud.Text(200)).
		Field("order", crud.Int(0, math.MaxInt32)).
		Cross(crud.TrimSpace("title")).
		Cross(s.authorize).
		Cross(crud.AuthorStamper{CreatedBy: "author_id", UpdatedBy: "updated_by_id"}.Stamp)

	shape := crud.Shape[domain.Topic](toOutput)
	s.Service = crud.NewService(crud.Config[domain.Topic]{
		Name:       "topic",
		Repo:       topics,
		Tx:         tx,
		Validators: validators,
		Hooks: crud.Hooks[domain.Topic]{
			BeforeCreate:  s.beforeCreate,
			BeforeUpdate:  s.beforeUpdate,
			AfterDelete:   s.afterDelete,
			BeforeFetch:   s.beforeFetch,
			AfterRetrieve: s.afterRetrieve,
		},
		Shapes: crud.Shapes[domain.Topic]{
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

// ListInput selects the topics of one room.
type ListInput struct {
	RoomID int64
	// Title filters by case-insensitive substring when non-empty.
	Title  string
	Offset uint64
	Limit  uint64
}

// List returns the room's topics in order.
func (s *Service) List(ctx context.Context, in ListInput) ([]domain.Topic, error) {
	filters := repository.Filters{"room_id": in.RoomID}
	if in.Title != "" {
		filters["title__icontains"] = in.Title
	}
	return s.Fetch(ctx, repository.Params{
		Filters: filters,
		Offset:  in.Offset,
		Limit:   in.Limit,
	})
}

// authorize checks moderator rights against the stored topic's room on
// update and delete. Create is covered by the room_id field validator.
func (s *Service) authorize(ctx context.Context, attrs crud.Attrs) (crud.Attrs, error) {
	switch crud.OperationFromCtx(ctx) {
	case crud.OpCreate:
		if _, ok := attrs["room_id"]; !ok {
			return nil, domain.NewValidationError("room_id", "required")
		}
		if _, ok := attrs["title"]; !ok {
			return nil, domain.NewValidationError("title", "required")
		}
	case crud.OpUpdate, crud.OpDelete:
		cur, ok := crud.CurrentOf[domain.Topic](ctx)
		if !ok {
			return nil, fmt.Errorf("topic: no current entity in %s", crud.OperationFromCtx(ctx))
		}
		if err := s.access.RequireModerator(ctx, cur.RoomID); err != nil {
			return nil, err
		}
	}
	return attrs, nil
}

func (s *Service) beforeCreate(ctx context.Context, attrs crud.Attrs) (crud.Attrs, error) {
	roomID, _ := crud.Int64(attrs["room_id"])
	next, err := s.ranker.Next(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if next >= MaxTopicsPerRoom {
		return nil, domain.NewValidationError("room_id", fmt.Sprintf("a room holds at most %d topics", MaxTopicsPerRoom))
	}
	attrs["order"] = next
	return attrs, nil
}

func (s *Service) beforeUpdate(ctx context.Context, current *domain.Topic, attrs crud.Attrs) (crud.Attrs, error) {
	raw, ok := attrs["order"]
	if !ok {
		return attrs, nil
	}
	delete(attrs, "order")

	k, ok := crud.Int64(raw)
	if !ok {
		return nil, domain.NewValidationError("order", "must be an integer")
	}
	if _, err := s.ranker.Move(ctx, current.RoomID, current.ID, current.Order, k); err != nil {
		return nil, err
	}
	return attrs, nil
}

func (s *Service) afterDelete(ctx context.Context, deleted *domain.Topic) error {
	return s.ranker.Compact(ctx, deleted.RoomID)
}

// beforeFetch restricts listing to one room the caller belongs to and
// always orders by rank.
func (s *Service) beforeFetch(ctx context.Context, p repository.Params) (repository.Params, error) {
	roomID, ok := crud.Int64(p.Filters["room_id"])
	if !ok || roomID <= 0 {
		return p, domain.NewValidationError("room_id", "required")
	}
	if err := s.access.RequireMember(ctx, roomID); err != nil {
		return p, err
	}
	p.Ordering = []string{"order"}
	return p, nil
}

func (s *Service) afterRetrieve(ctx context.Context, t *domain.Topic) error {
	return s.access.RequireMember(ctx, t.RoomID)
}
