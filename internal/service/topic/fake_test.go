package topic

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/heartmarshall/classroom-backend/internal/adapter/postgres/repository"
	"github.com/heartmarshall/classroom-backend/internal/domain"
	"github.com/heartmarshall/classroom-backend/internal/service/crud"
	"github.com/heartmarshall/classroom-backend/pkg/ctxutil"
)

// memTopics is an in-memory topic table with the same shift, set and
// restamp semantics as the postgres repository.
type memTopics struct {
	mu     sync.Mutex
	rows   map[int64]*domain.Topic
	nextID int64
	writes int
}

func newMemTopics() *memTopics {
	return &memTopics{rows: map[int64]*domain.Topic{}}
}

func (m *memTopics) seed(roomID int64, titles ...string) []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]int64, len(titles))
	base := int32(m.countLocked(roomID))
	for i, title := range titles {
		m.nextID++
		m.rows[m.nextID] = &domain.Topic{ID: m.nextID, RoomID: roomID, Title: title, Order: base + int32(i)}
		ids[i] = m.nextID
	}
	return ids
}

func (m *memTopics) countLocked(roomID int64) int {
	n := 0
	for _, t := range m.rows {
		if t.RoomID == roomID {
			n++
		}
	}
	return n
}

// room returns the room's topics ordered by (order, id).
func (m *memTopics) room(roomID int64) []domain.Topic {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.roomLocked(roomID)
}

func (m *memTopics) roomLocked(roomID int64) []domain.Topic {
	var out []domain.Topic
	for _, t := range m.rows {
		if t.RoomID == roomID {
			out = append(out, *t)
		}
	}
	slices.SortFunc(out, func(a, b domain.Topic) int {
		if a.Order != b.Order {
			return int(a.Order - b.Order)
		}
		return int(a.ID - b.ID)
	})
	return out
}

// titles returns the room's titles in rank order.
func (m *memTopics) titles(roomID int64) string {
	var parts []string
	for _, t := range m.room(roomID) {
		parts = append(parts, fmt.Sprintf("%s%d", t.Title, t.Order))
	}
	return strings.Join(parts, " ")
}

func (m *memTopics) CountInRoom(_ context.Context, roomID int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.countLocked(roomID), nil
}

func (m *memTopics) ShiftFrom(_ context.Context, roomID int64, slot int32, exceptID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.rows {
		if t.RoomID == roomID && t.Order >= slot && t.ID != exceptID {
			t.Order++
			m.writes++
		}
	}
	return nil
}

func (m *memTopics) SetOrder(_ context.Context, topicID int64, order int32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.rows[topicID]
	if !ok {
		return domain.ErrNotFound
	}
	t.Order = order
	m.writes++
	return nil
}

func (m *memTopics) Restamp(_ context.Context, roomID int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var changed int64
	for i, t := range m.roomLocked(roomID) {
		if t.Order != int32(i) {
			m.rows[t.ID].Order = int32(i)
			changed++
		}
	}
	m.writes += int(changed)
	return changed, nil
}

func (m *memTopics) Descriptor() *repository.Descriptor {
	return repository.Describe[domain.Topic]()
}

func (m *memTopics) Fetch(_ context.Context, p repository.Params) ([]domain.Topic, error) {
	roomID, _ := crud.Int64(p.Filters["room_id"])
	q, _ := p.Filters["title__icontains"].(string)

	out := []domain.Topic{}
	for _, t := range m.room(roomID) {
		if q != "" && !strings.Contains(strings.ToLower(t.Title), strings.ToLower(q)) {
			continue
		}
		out = append(out, t)
	}
	if p.Offset >= uint64(len(out)) {
		return []domain.Topic{}, nil
	}
	out = out[p.Offset:]
	if p.Limit > 0 && p.Limit < uint64(len(out)) {
		out = out[:p.Limit]
	}
	return out, nil
}

func (m *memTopics) Retrieve(_ context.Context, filters repository.Filters, _ ...string) (*domain.Topic, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, _ := crud.Int64(filters["id"])
	t, ok := m.rows[id]
	if !ok {
		return nil, fmt.Errorf("topics: %w", domain.ErrNotFound)
	}
	cp := *t
	return &cp, nil
}

func (m *memTopics) Create(_ context.Context, attrs map[string]any, _ ...string) (*domain.Topic, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	t := &domain.Topic{ID: m.nextID, CreatedAt: time.Now(), UpdatedAt: time.Now()}
	t.RoomID, _ = crud.Int64(attrs["room_id"])
	t.Title, _ = attrs["title"].(string)
	t.AuthorID, _ = crud.Int64(attrs["author_id"])
	if o, ok := crud.Int64(attrs["order"]); ok {
		t.Order = int32(o)
	}
	m.rows[t.ID] = t
	cp := *t
	return &cp, nil
}

func (m *memTopics) UpdateAndReload(_ context.Context, filters repository.Filters, values map[string]any, _ ...string) (*domain.Topic, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, _ := crud.Int64(filters["id"])
	t, ok := m.rows[id]
	if !ok {
		return nil, fmt.Errorf("topics: %w", domain.ErrNotFound)
	}
	if title, ok := values["title"].(string); ok {
		t.Title = title
	}
	if by, ok := crud.Int64(values["updated_by_id"]); ok {
		t.UpdatedByID = &by
	}
	t.UpdatedAt = time.Now()
	cp := *t
	return &cp, nil
}

func (m *memTopics) Delete(_ context.Context, filters repository.Filters) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, _ := crud.Int64(filters["id"])
	if _, ok := m.rows[id]; !ok {
		return 0, nil
	}
	delete(m.rows, id)
	return 1, nil
}

type txManagerMock struct {
	mu    sync.Mutex
	calls int
}

func (m *txManagerMock) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	return fn(ctx)
}

// accessMock grants moderator rights to moderators and membership to
// members plus moderators.
type accessMock struct {
	moderators map[int64]bool
	members    map[int64]bool
}

func (a *accessMock) ModeratorOfRoom() crud.FieldValidator {
	return func(ctx context.Context, _ any) (bool, string, error) {
		if a.RequireModerator(ctx, 0) != nil {
			return false, "moderator role required", nil
		}
		return true, "", nil
	}
}

func (a *accessMock) RequireMember(ctx context.Context, _ int64) error {
	uid, ok := ctxutil.UserIDFromCtx(ctx)
	if !ok {
		return domain.ErrUnauthorized
	}
	if !a.members[uid] && !a.moderators[uid] {
		return domain.NewForbiddenError("room_id", "you are not a member of this room")
	}
	return nil
}

func (a *accessMock) RequireModerator(ctx context.Context, _ int64) error {
	uid, ok := ctxutil.UserIDFromCtx(ctx)
	if !ok {
		return domain.ErrUnauthorized
	}
	if !a.moderators[uid] {
		return domain.NewForbiddenError("room_id", "moderator role required")
	}
	return nil
}
