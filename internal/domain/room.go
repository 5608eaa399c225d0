package domain

import "time"

// Room is a class space that owns posts, topics and participations.
type Room struct {
	ID          int64     `db:"id"`
	Name        string    `db:"name"`
	Slug        string    `db:"slug"`
	Description *string   `db:"description"`
	AuthorID    int64     `db:"author_id"`
	UpdatedByID *int64    `db:"updated_by_id"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`

	Author         *User           `db:"-" rel:"author,author_id"`
	Participations []Participation `db:"-" rel:"participations,room_id"`
	Topics         []Topic         `db:"-" rel:"topics,room_id"`
	Posts          []RoomPost      `db:"-" rel:"posts,room_id"`
}

func (Room) TableName() string { return "rooms" }

// Participation links a user to a room with a role.
type Participation struct {
	ID        int64             `db:"id"`
	RoomID    int64             `db:"room_id"`
	UserID    int64             `db:"user_id"`
	Role      ParticipationRole `db:"role"`
	CreatedAt time.Time         `db:"created_at"`
	UpdatedAt time.Time         `db:"updated_at"`

	Room *Room `db:"-" rel:"room,room_id"`
	User *User `db:"-" rel:"user,user_id"`
}

func (Participation) TableName() string { return "participations" }
