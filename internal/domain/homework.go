package domain

import "time"

// HomeworkAssignment assigns a post's task to one student.
type HomeworkAssignment struct {
	ID                 int64          `db:"id"`
	AssignedRoomPostID int64          `db:"assigned_room_post_id"`
	UserID             int64          `db:"user_id"`
	Status             HomeworkStatus `db:"status"`
	Grade              *int32         `db:"grade"`
	Answer             *string        `db:"answer"`
	AuthorID           int64          `db:"author_id"`
	UpdatedByID        *int64         `db:"updated_by_id"`
	CreatedAt          time.Time      `db:"created_at"`
	UpdatedAt          time.Time      `db:"updated_at"`

	AssignedRoomPost *RoomPost `db:"-" rel:"assigned_room_post,assigned_room_post_id"`
	User             *User     `db:"-" rel:"user,user_id"`
}

func (HomeworkAssignment) TableName() string { return "homework_assignments" }
