package domain

import "time"

// RoomPost is an announcement or lesson material published in a room.
type RoomPost struct {
	ID          int64     `db:"id"`
	RoomID      int64     `db:"room_id"`
	TopicID     *int64    `db:"topic_id"`
	Title       string    `db:"title"`
	Body        string    `db:"body"`
	AuthorID    int64     `db:"author_id"`
	UpdatedByID *int64    `db:"updated_by_id"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`

	Room        *Room        `db:"-" rel:"room,room_id"`
	Topic       *Topic       `db:"-" rel:"topic,topic_id"`
	Author      *User        `db:"-" rel:"author,author_id"`
	Attachments []Attachment `db:"-" rel:"attachments,room_post_id"`
}

func (RoomPost) TableName() string { return "room_posts" }

// Attachment is file metadata attached to a post. The file body lives in
// external storage under StorageKey.
type Attachment struct {
	ID          int64     `db:"id"`
	RoomPostID  int64     `db:"room_post_id"`
	FileName    string    `db:"file_name"`
	ContentType string    `db:"content_type"`
	SizeBytes   int64     `db:"size_bytes"`
	StorageKey  string    `db:"storage_key"`
	AuthorID    int64     `db:"author_id"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`

	RoomPost *RoomPost `db:"-" rel:"room_post,room_post_id"`
}

func (Attachment) TableName() string { return "attachments" }
