// Package access answers room membership questions for the services and
// turns them into validators.
package access

import (
	"context"
	"fmt"

	"github.com/heartmarshall/classroom-backend/internal/adapter/postgres/repository"
	"github.com/heartmarshall/classroom-backend/internal/domain"
	"github.com/heartmarshall/classroom-backend/internal/service/crud"
	"github.com/heartmarshall/classroom-backend/pkg/ctxutil"
)

// Messages reported when a check fails.
const (
	MsgNotMember    = "you are not a member of this room"
	MsgNotModerator = "moderator role required"
)

type participationRepo interface {
	Exists(ctx context.Context, filters repository.Filters) (bool, error)
}

// Checker resolves a user's participation in a room.
type Checker struct {
	participations participationRepo
}

// NewChecker creates a Checker.
func NewChecker(participations participationRepo) *Checker {
	return &Checker{participations: participations}
}

// IsMember reports whether userID participates in roomID in any role.
func (c *Checker) IsMember(ctx context.Context, roomID, userID int64) (bool, error) {
	ok, err := c.participations.Exists(ctx, repository.Filters{
		"room_id": roomID,
		"user_id": userID,
	})
	if err != nil {
		return false, fmt.Errorf("check membership: %w", err)
	}
	return ok, nil
}

// IsModerator reports whether userID is an owner, teacher or moderator of
// roomID.
func (c *Checker) IsModerator(ctx context.Context, roomID, userID int64) (bool, error) {
	ok, err := c.participations.Exists(ctx, repository.Filters{
		"room_id":  roomID,
		"user_id":  userID,
		"role__in": domain.ModeratorRoles(),
	})
	if err != nil {
		return false, fmt.Errorf("check moderator: %w", err)
	}
	return ok, nil
}

// MemberOfRoom is a room_id field validator requiring the acting user to
// participate in the room.
func (c *Checker) MemberOfRoom() crud.FieldValidator {
	return c.roomValidator(c.IsMember, MsgNotMember)
}

// ModeratorOfRoom is a room_id field validator requiring the acting user to
// moderate the room.
func (c *Checker) ModeratorOfRoom() crud.FieldValidator {
	return c.roomValidator(c.IsModerator, MsgNotModerator)
}

func (c *Checker) roomValidator(check func(context.Context, int64, int64) (bool, error), msg string) crud.FieldValidator {
	return func(ctx context.Context, value any) (bool, string, error) {
		roomID, ok := crud.Int64(value)
		if !ok || roomID <= 0 {
			return false, "required", nil
		}
		userID, ok := ctxutil.UserIDFromCtx(ctx)
		if !ok {
			return false, msg, nil
		}
		allowed, err := check(ctx, roomID, userID)
		if err != nil {
			return false, "", err
		}
		if !allowed {
			return false, msg, nil
		}
		return true, "", nil
	}
}

// RequireMember returns domain.ErrUnauthorized for anonymous callers and a
// forbidden error keyed by room_id when the acting user is not a member.
func (c *Checker) RequireMember(ctx context.Context, roomID int64) error {
	return c.require(ctx, roomID, c.IsMember, MsgNotMember)
}

// RequireModerator is RequireMember for moderator-tier roles.
func (c *Checker) RequireModerator(ctx context.Context, roomID int64) error {
	return c.require(ctx, roomID, c.IsModerator, MsgNotModerator)
}

func (c *Checker) require(ctx context.Context, roomID int64, check func(context.Context, int64, int64) (bool, error), msg string) error {
	userID, ok := ctxutil.UserIDFromCtx(ctx)
	if !ok {
		return domain.ErrUnauthorized
	}
	allowed, err := check(ctx, roomID, userID)
	if err != nil {
		return err
	}
	if !allowed {
		return domain.NewForbiddenError("room_id", msg)
	}
	return nil
}
