package domain

import "time"

// Topic is a lesson topic inside a room. Order is dense per room: the topics
// of one room always carry exactly the values 0..N-1.
type Topic struct {
	ID          int64     `db:"id"`
	RoomID      int64     `db:"room_id"`
	Title       string    `db:"title"`
	Order       int32     `db:"order"`
	AuthorID    int64     `db:"author_id"`
	UpdatedByID *int64    `db:"updated_by_id"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`

	Room *Room `db:"-" rel:"room,room_id"`
}

func (Topic) TableName() string { return "topics" }
