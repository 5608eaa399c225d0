// Package homework manages homework assignments: a moderator assigns a
// post's task to a student, the student submits an answer, and a moderator
// grades it.
package homework

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/heartmarshall/classroom-backend/internal/adapter/postgres/repository"
	"github.com/heartmarshall/classroom-backend/internal/config"
	"github.com/heartmarshall/classroom-backend/internal/domain"
	"github.com/heartmarshall/classroom-backend/internal/service/crud"
	"github.com/heartmarshall/classroom-backend/pkg/ctxutil"
)

// MaxGrade is the top of the grading scale.
const MaxGrade = 100

type postRepo interface {
	Retrieve(ctx context.Context, filters repository.Filters, join ...string) (*domain.RoomPost, error)
}

type accessChecker interface {
	IsMember(ctx context.Context, roomID, userID int64) (bool, error)
	IsModerator(ctx context.Context, roomID, userID int64) (bool, error)
	RequireMember(ctx context.Context, roomID int64) error
	RequireModerator(ctx context.Context, roomID int64) error
}

type txManager interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

var statuses = []string{
	domain.HomeworkAssigned.String(),
	domain.HomeworkSubmitted.String(),
	domain.HomeworkGraded.String(),
	domain.HomeworkReturned.String(),
}

// Service provides homework operations.
type Service struct {
	*crud.Service[domain.HomeworkAssignment]

	posts  postRepo
	access accessChecker
}

// NewService creates a new Homework service.
func NewService(
	log *slog.Logger,
	assignments crud.Repository[domain.HomeworkAssignment],
	posts postRepo,
	tx txManager,
	access accessChecker,
	metrics *crud.Metrics,
	pagination config.PaginationConfig,
) *Service {
	s := &Service{posts: posts, access: access}

	validators := crud.NewValidators().
		Field("assigned_room_post_id", crud.Immutable()).
		Field("assigned_room_post_id", s.postExists()).
		Field("user_id", crud.Immutable()).
		Field("user_id", crud.ID()).
		Field("status", crud.OneOf(statuses...)).
		Field("grade", crud.IntRange(0, MaxGrade)).
		Field("answer", crud.OptionalText(10000)).
		Cross(crud.TrimSpace("answer")).
		Cross(s.authorize).
		Cross(crud.AuthorStamper{CreatedBy: "author_id", UpdatedBy: "updated_by_id"}.Stamp)

	shape := func(h *domain.HomeworkAssignment) any { return *h }
	s.Service = crud.NewService(crud.Config[domain.HomeworkAssignment]{
		Name:       "homework",
		Repo:       assignments,
		Tx:         tx,
		Validators: validators,
		Hooks: crud.Hooks[domain.HomeworkAssignment]{
			BeforeFetch:   s.beforeFetch,
			AfterRetrieve: s.afterRetrieve,
		},
		Shapes: crud.Shapes[domain.HomeworkAssignment]{
			crud.OpCreate:   shape,
			crud.OpUpdate:   shape,
			crud.OpRetrieve: shape,
			crud.OpFetch:    shape,
		},
		Metrics:       metrics,
		Log:           log,
		Pagination:    pagination,
		ConflictField: "user_id",
	})
	return s
}

// postExists is an I/O field validator on assigned_room_post_id.
func (s *Service) postExists() crud.FieldValidator {
	return func(ctx context.Context, value any) (bool, string, error) {
		postID, ok := crud.Int64(value)
		if !ok || postID <= 0 {
			return false, "required", nil
		}
		if _, err := s.posts.Retrieve(ctx, repository.Filters{"id": postID}); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return false, "post not found", nil
			}
			return false, "", err
		}
		return true, "", nil
	}
}

func (s *Service) roomOf(ctx context.Context, postID int64) (int64, error) {
	p, err := s.posts.Retrieve(ctx, repository.Filters{"id": postID})
	if err != nil {
		return 0, err
	}
	return p.RoomID, nil
}

func (s *Service) authorize(ctx context.Context, attrs crud.Attrs) (crud.Attrs, error) {
	switch crud.OperationFromCtx(ctx) {
	case crud.OpCreate:
		return s.authorizeAssign(ctx, attrs)
	case crud.OpUpdate:
		return s.authorizeUpdate(ctx, attrs)
	case crud.OpDelete:
		cur, ok := crud.CurrentOf[domain.HomeworkAssignment](ctx)
		if !ok {
			return nil, errors.New("homework: no current entity in delete")
		}
		roomID, err := s.roomOf(ctx, cur.AssignedRoomPostID)
		if err != nil {
			return nil, err
		}
		if err := s.access.RequireModerator(ctx, roomID); err != nil {
			return nil, err
		}
	}
	return attrs, nil
}

// authorizeAssign lets a moderator assign the post to a member of its room.
// A new assignment always starts in ASSIGNED without grade or answer.
func (s *Service) authorizeAssign(ctx context.Context, attrs crud.Attrs) (crud.Attrs, error) {
	postID, ok := crud.Int64(attrs["assigned_room_post_id"])
	if !ok {
		return nil, domain.NewValidationError("assigned_room_post_id", "required")
	}
	assignee, ok := crud.Int64(attrs["user_id"])
	if !ok {
		return nil, domain.NewValidationError("user_id", "required")
	}
	roomID, err := s.roomOf(ctx, postID)
	if err != nil {
		return nil, err
	}
	if err := s.access.RequireModerator(ctx, roomID); err != nil {
		return nil, err
	}
	member, err := s.access.IsMember(ctx, roomID, assignee)
	if err != nil {
		return nil, err
	}
	if !member {
		return nil, domain.NewValidationError("user_id", "the assignee is not a member of this room")
	}

	attrs["status"] = domain.HomeworkAssigned.String()
	delete(attrs, "grade")
	delete(attrs, "answer")
	return attrs, nil
}

// authorizeUpdate splits the update between the two parties: the assignee
// may submit an answer, moderators may grade or return the work.
func (s *Service) authorizeUpdate(ctx context.Context, attrs crud.Attrs) (crud.Attrs, error) {
	cur, ok := crud.CurrentOf[domain.HomeworkAssignment](ctx)
	if !ok {
		return nil, errors.New("homework: no current entity in update")
	}
	userID, ok := ctxutil.UserIDFromCtx(ctx)
	if !ok {
		return nil, domain.ErrUnauthorized
	}
	roomID, err := s.roomOf(ctx, cur.AssignedRoomPostID)
	if err != nil {
		return nil, err
	}
	moderator, err := s.access.IsModerator(ctx, roomID, userID)
	if err != nil {
		return nil, err
	}

	_, grading := attrs["grade"]
	status, hasStatus := attrs["status"]
	if hasStatus {
		attrs["status"] = fmt.Sprint(status)
	}

	if grading || (hasStatus && attrs["status"] != domain.HomeworkSubmitted.String()) {
		if !moderator {
			return nil, domain.NewForbiddenError("grade", "only moderators may grade")
		}
		if grading && !hasStatus {
			attrs["status"] = domain.HomeworkGraded.String()
		}
	}

	if _, answering := attrs["answer"]; answering {
		if userID != cur.UserID {
			return nil, domain.NewForbiddenError("answer", "only the assignee may answer")
		}
		if cur.Status == domain.HomeworkGraded {
			return nil, domain.NewValidationError("answer", "graded work cannot be changed")
		}
		if !hasStatus {
			attrs["status"] = domain.HomeworkSubmitted.String()
		}
	}

	if !moderator && userID != cur.UserID {
		return nil, domain.NewForbiddenError("room_id", "you cannot change this assignment")
	}
	return attrs, nil
}

// beforeFetch lists one post's assignments: all of them for moderators, the
// caller's own otherwise.
func (s *Service) beforeFetch(ctx context.Context, p repository.Params) (repository.Params, error) {
	postID, ok := crud.Int64(p.Filters["assigned_room_post_id"])
	if !ok || postID <= 0 {
		return p, domain.NewValidationError("assigned_room_post_id", "required")
	}
	userID, ok := ctxutil.UserIDFromCtx(ctx)
	if !ok {
		return p, domain.ErrUnauthorized
	}
	roomID, err := s.roomOf(ctx, postID)
	if err != nil {
		return p, err
	}
	moderator, err := s.access.IsModerator(ctx, roomID, userID)
	if err != nil {
		return p, err
	}
	if !moderator {
		if err := s.access.RequireMember(ctx, roomID); err != nil {
			return p, err
		}
		filters := make(repository.Filters, len(p.Filters)+1)
		for k, v := range p.Filters {
			filters[k] = v
		}
		filters["user_id"] = userID
		p.Filters = filters
	}
	return p, nil
}

func (s *Service) afterRetrieve(ctx context.Context, h *domain.HomeworkAssignment) error {
	if userID, ok := ctxutil.UserIDFromCtx(ctx); ok && userID == h.UserID {
		return nil
	}
	roomID, err := s.roomOf(ctx, h.AssignedRoomPostID)
	if err != nil {
		return err
	}
	return s.access.RequireModerator(ctx, roomID)
}
