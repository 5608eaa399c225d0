package attachment

import (
	"context"
	"log/slog"
	"regexp"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heartmarshall/classroom-backend/internal/adapter/postgres/repository"
	"github.com/heartmarshall/classroom-backend/internal/config"
	"github.com/heartmarshall/classroom-backend/internal/domain"
	"github.com/heartmarshall/classroom-backend/internal/service/access"
	"github.com/heartmarshall/classroom-backend/internal/service/crud"
	"github.com/heartmarshall/classroom-backend/internal/service/crud/crudtest"
	"github.com/heartmarshall/classroom-backend/pkg/ctxutil"
)

type txManagerMock struct{}

func (txManagerMock) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

const (
	teacher  = int64(10)
	student  = int64(20)
	outsider = int64(30)
)

var keyPattern = regexp.MustCompile(`^attachments/[0-9a-f-]{36}\.pdf$`)

func newFixture(t *testing.T) (*Service, *crudtest.Repo[domain.Attachment], int64) {
	t.Helper()
	participations := crudtest.NewRepo[domain.Participation]()
	participations.Seed(
		map[string]any{"room_id": 1, "user_id": teacher, "role": "TEACHER"},
		map[string]any{"room_id": 1, "user_id": student, "role": "STUDENT"},
	)
	posts := crudtest.NewRepo[domain.RoomPost]()
	post := posts.Seed(map[string]any{"room_id": 1, "title": "Sheet", "body": "see file", "author_id": teacher})[0]
	attachments := crudtest.NewRepo[domain.Attachment]("storage_key")
	svc := NewService(slog.Default(), attachments, posts, txManagerMock{}, access.NewChecker(participations), nil, config.PaginationConfig{})
	return svc, attachments, post.ID
}

func as(userID int64) context.Context {
	return ctxutil.WithUserID(context.Background(), userID)
}

func TestService_Create_GeneratesStorageKey(t *testing.T) {
	t.Parallel()
	svc, _, postID := newFixture(t)

	got, err := svc.Create(as(student), crud.Attrs{
		"room_post_id": postID,
		"file_name":    "Answers.PDF",
		"size_bytes":   2048,
		"storage_key":  "attachments/../../etc/passwd",
	})
	require.NoError(t, err)
	assert.Regexp(t, keyPattern, got.StorageKey)
	assert.Equal(t, "application/octet-stream", got.ContentType)
	assert.Equal(t, student, got.AuthorID)
}

func TestService_Create_Rejections(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		actor int64
		attrs crud.Attrs
		want  map[string]string
	}{
		{"no file name", student, crud.Attrs{"room_post_id": int64(1), "file_name": ""}, map[string]string{"file_name": "required"}},
		{"missing file name", student, crud.Attrs{"room_post_id": int64(1)}, map[string]string{"file_name": "required"}},
		{"too large", student, crud.Attrs{"room_post_id": int64(1), "file_name": "a.bin", "size_bytes": int64(MaxSizeBytes + 1)},
			map[string]string{"size_bytes": "must be between 0 and 52428800"}},
		{"unknown post", student, crud.Attrs{"room_post_id": int64(99), "file_name": "a.pdf"}, map[string]string{"room_post_id": "post not found"}},
		{"outsider", outsider, crud.Attrs{"room_post_id": int64(1), "file_name": "a.pdf"}, map[string]string{"room_id": access.MsgNotMember}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			svc, repo, _ := newFixture(t)
			_, err := svc.Create(as(tt.actor), tt.attrs)
			assert.Equal(t, tt.want, domain.FieldsOf(err))
			assert.Equal(t, 0, repo.Len())
		})
	}
}

func TestService_Update_StorageKeyIsStable(t *testing.T) {
	t.Parallel()
	svc, _, postID := newFixture(t)

	created, err := svc.Create(as(student), crud.Attrs{"room_post_id": postID, "file_name": "a.pdf"})
	require.NoError(t, err)

	updated, err := svc.Update(as(student), created.ID, crud.Attrs{"file_name": "b.pdf", "storage_key": "other"})
	require.NoError(t, err)
	assert.Equal(t, "b.pdf", updated.FileName)
	assert.Equal(t, created.StorageKey, updated.StorageKey)

	_, err = svc.Update(as(student), created.ID, crud.Attrs{"room_post_id": int64(2)})
	assert.Equal(t, map[string]string{"room_post_id": "cannot be changed"}, domain.FieldsOf(err))
}

func TestService_Delete(t *testing.T) {
	t.Parallel()
	svc, repo, postID := newFixture(t)

	created, err := svc.Create(as(student), crud.Attrs{"room_post_id": postID, "file_name": "a.pdf"})
	require.NoError(t, err)

	assert.ErrorIs(t, svc.Delete(as(outsider), created.ID), domain.ErrForbidden)
	require.NoError(t, svc.Delete(as(teacher), created.ID))
	assert.Equal(t, 0, repo.Len())
}

func TestService_Fetch(t *testing.T) {
	t.Parallel()
	svc, _, postID := newFixture(t)

	_, err := svc.Create(as(teacher), crud.Attrs{"room_post_id": postID, "file_name": "a.pdf"})
	require.NoError(t, err)

	got, err := svc.Fetch(as(student), repository.Params{Filters: repository.Filters{"room_post_id": postID}})
	require.NoError(t, err)
	assert.Len(t, got, 1)

	_, err = svc.Fetch(as(student), repository.Params{})
	assert.Equal(t, map[string]string{"room_post_id": "required"}, domain.FieldsOf(err))
}

func TestStorageKey(t *testing.T) {
	t.Parallel()

	id := uuid.MustParse("6f1c2c1e-7d1b-4a63-9a0c-1c7f3d2e9b10")
	assert.Equal(t, "attachments/6f1c2c1e-7d1b-4a63-9a0c-1c7f3d2e9b10.png", StorageKey(id, "Photo.PNG"))
	assert.Equal(t, "attachments/6f1c2c1e-7d1b-4a63-9a0c-1c7f3d2e9b10", StorageKey(id, "README"))
}
