package testhelper

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/heartmarshall/classroom-backend/internal/domain"
)

// uniqueSuffix returns a short unique string for generating non-conflicting test data.
func uniqueSuffix() string {
	return uuid.New().String()[:8]
}

// SeedUser creates an active user with a unique email.
func SeedUser(t *testing.T, pool *pgxpool.Pool) domain.User {
	t.Helper()

	suffix := uniqueSuffix()
	user := domain.User{
		Email:    "testuser-" + suffix + "@example.com",
		FullName: "Test User " + suffix,
		IsActive: true,
	}

	err := pool.QueryRow(context.Background(),
		`INSERT INTO users (email, full_name, is_active)
		 VALUES ($1, $2, $3)
		 RETURNING id, created_at, updated_at`,
		user.Email, user.FullName, user.IsActive,
	).Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		t.Fatalf("testhelper: SeedUser: %v", err)
	}

	return user
}

// SeedRoom creates a room authored by ownerID and enrols the owner.
func SeedRoom(t *testing.T, pool *pgxpool.Pool, ownerID int64) domain.Room {
	t.Helper()

	suffix := uniqueSuffix()
	room := domain.Room{
		Name:     "Room " + suffix,
		Slug:     "room-" + suffix,
		AuthorID: ownerID,
	}

	err := pool.QueryRow(context.Background(),
		`INSERT INTO rooms (name, slug, author_id)
		 VALUES ($1, $2, $3)
		 RETURNING id, created_at, updated_at`,
		room.Name, room.Slug, room.AuthorID,
	).Scan(&room.ID, &room.CreatedAt, &room.UpdatedAt)
	if err != nil {
		t.Fatalf("testhelper: SeedRoom: %v", err)
	}

	SeedParticipation(t, pool, room.ID, ownerID, domain.RoleOwner)
	return room
}

// SeedParticipation enrols userID in roomID with role.
func SeedParticipation(t *testing.T, pool *pgxpool.Pool, roomID, userID int64, role domain.ParticipationRole) domain.Participation {
	t.Helper()

	p := domain.Participation{RoomID: roomID, UserID: userID, Role: role}
	err := pool.QueryRow(context.Background(),
		`INSERT INTO participations (room_id, user_id, role)
		 VALUES ($1, $2, $3)
		 RETURNING id, created_at, updated_at`,
		roomID, userID, string(role),
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		t.Fatalf("testhelper: SeedParticipation: %v", err)
	}
	return p
}

// SeedTopic inserts a topic with an explicit order, bypassing the ranker.
func SeedTopic(t *testing.T, pool *pgxpool.Pool, roomID, authorID int64, title string, order int32) domain.Topic {
	t.Helper()

	topic := domain.Topic{RoomID: roomID, Title: title, Order: order, AuthorID: authorID}
	err := pool.QueryRow(context.Background(),
		`INSERT INTO topics (room_id, title, "order", author_id)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, created_at, updated_at`,
		roomID, title, order, authorID,
	).Scan(&topic.ID, &topic.CreatedAt, &topic.UpdatedAt)
	if err != nil {
		t.Fatalf("testhelper: SeedTopic: %v", err)
	}
	return topic
}

// SeedPost creates a post in roomID.
func SeedPost(t *testing.T, pool *pgxpool.Pool, roomID, authorID int64) domain.RoomPost {
	t.Helper()

	post := domain.RoomPost{
		RoomID:   roomID,
		Title:    "Post " + uniqueSuffix(),
		Body:     "body",
		AuthorID: authorID,
	}
	err := pool.QueryRow(context.Background(),
		`INSERT INTO room_posts (room_id, title, body, author_id)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, created_at, updated_at`,
		post.RoomID, post.Title, post.Body, post.AuthorID,
	).Scan(&post.ID, &post.CreatedAt, &post.UpdatedAt)
	if err != nil {
		t.Fatalf("testhelper: SeedPost: %v", err)
	}
	return post
}

// SeedAttachment attaches a file record to postID.
func SeedAttachment(t *testing.T, pool *pgxpool.Pool, postID, authorID int64, fileName string) domain.Attachment {
	t.Helper()

	a := domain.Attachment{
		RoomPostID:  postID,
		FileName:    fileName,
		ContentType: "application/pdf",
		SizeBytes:   1024,
		StorageKey:  uuid.NewString(),
		AuthorID:    authorID,
	}
	err := pool.QueryRow(context.Background(),
		`INSERT INTO attachments (room_post_id, file_name, content_type, size_bytes, storage_key, author_id)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, created_at, updated_at`,
		a.RoomPostID, a.FileName, a.ContentType, a.SizeBytes, a.StorageKey, a.AuthorID,
	).Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		t.Fatalf("testhelper: SeedAttachment: %v", err)
	}
	return a
}

// TopicOrders returns the room's topic orders keyed by topic id.
func TopicOrders(t *testing.T, pool *pgxpool.Pool, roomID int64) map[int64]int32 {
	t.Helper()

	rows, err := pool.Query(context.Background(),
		`SELECT id, "order" FROM topics WHERE room_id = $1`, roomID)
	if err != nil {
		t.Fatalf("testhelper: TopicOrders: %v", err)
	}
	defer rows.Close()

	out := make(map[int64]int32)
	for rows.Next() {
		var id int64
		var order int32
		if err := rows.Scan(&id, &order); err != nil {
			t.Fatalf("testhelper: TopicOrders scan: %v", err)
		}
		out[id] = order
	}
	if err := rows.Err(); err != nil {
		t.Fatalf("testhelper: TopicOrders rows: %v", err)
	}
	return out
}
