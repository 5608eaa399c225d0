package topic

import (
	"context"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const room = int64(1)

func newRanker() (*Ranker, *memTopics) {
	mem := newMemTopics()
	return NewRanker(mem, &txManagerMock{}), mem
}

func requireDense(t *testing.T, mem *memTopics, roomID int64) {
	t.Helper()
	for i, tp := range mem.room(roomID) {
		require.Equal(t, int32(i), tp.Order, "room %d is not dense: %s", roomID, mem.titles(roomID))
	}
}

func TestRanker_Next(t *testing.T) {
	t.Parallel()

	r, mem := newRanker()
	ctx := context.Background()

	next, err := r.Next(ctx, room)
	require.NoError(t, err)
	assert.Equal(t, int32(0), next)

	mem.seed(room, "A", "B", "C")
	next, err = r.Next(ctx, room)
	require.NoError(t, err)
	assert.Equal(t, int32(3), next)
}

func TestRanker_Move(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		move  int // index of the topic in A..D
		to    int64
		want  string
		order int32
	}{
		{"backward D to 1", 3, 1, "A0 D1 B2 C3", 1},
		{"backward to front", 2, 0, "C0 A1 B2 D3", 0},
		{"forward B to 2", 1, 2, "A0 C1 B2 D3", 2},
		{"forward to end", 0, 3, "B0 C1 D2 A3", 3},
		{"clamped above", 0, 99, "B0 C1 D2 A3", 3},
		{"clamped below", 3, -5, "D0 A1 B2 C3", 0},
		{"same slot", 2, 2, "A0 B1 C2 D3", 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			r, mem := newRanker()
			ids := mem.seed(room, "A", "B", "C", "D")
			mem.seed(2, "X", "Y")

			got, err := r.Move(context.Background(), room, ids[tt.move], int32(tt.move), tt.to)
			require.NoError(t, err)
			assert.Equal(t, tt.order, got)
			assert.Equal(t, tt.want, mem.titles(room))
			assert.Equal(t, "X0 Y1", mem.titles(2), "other rooms untouched")
		})
	}
}

func TestRanker_Move_SameSlotWritesNothing(t *testing.T) {
	t.Parallel()

	r, mem := newRanker()
	ids := mem.seed(room, "A", "B")

	_, err := r.Move(context.Background(), room, ids[1], 1, 1)
	require.NoError(t, err)
	assert.Equal(t, 0, mem.writes)
}

func TestRanker_Compact_AfterMiddleDelete(t *testing.T) {
	t.Parallel()

	r, mem := newRanker()
	ids := mem.seed(room, "A", "B", "C")

	_, err := mem.Delete(context.Background(), map[string]any{"id": ids[1]})
	require.NoError(t, err)
	require.NoError(t, r.Compact(context.Background(), room))

	assert.Equal(t, "A0 C1", mem.titles(room))
}

// Every sequence of appends, moves and deletes leaves the room dense and
// keeps the set of topics intact.
func TestRanker_RandomOperationsStayDense(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewPCG(7, 11))
	r, mem := newRanker()
	ctx := context.Background()

	for step := 0; step < 500; step++ {
		topics := mem.room(room)
		switch op := rng.IntN(10); {
		case op < 4 || len(topics) == 0:
			next, err := r.Next(ctx, room)
			require.NoError(t, err)
			_, err = mem.Create(ctx, map[string]any{"room_id": room, "title": "T", "order": next})
			require.NoError(t, err)
		case op < 8:
			tp := topics[rng.IntN(len(topics))]
			k := int64(rng.IntN(len(topics)+4)) - 2
			got, err := r.Move(ctx, room, tp.ID, tp.Order, k)
			require.NoError(t, err)

			moved, err := mem.Retrieve(ctx, map[string]any{"id": tp.ID})
			require.NoError(t, err)
			assert.Equal(t, got, moved.Order)
			assert.Equal(t, clamp(k, len(topics)), moved.Order)
		default:
			tp := topics[rng.IntN(len(topics))]
			_, err := mem.Delete(ctx, map[string]any{"id": tp.ID})
			require.NoError(t, err)
			require.NoError(t, r.Compact(ctx, room))
		}
		requireDense(t, mem, room)
	}
}

func TestRanker_MovePreservesRelativeOrderOfOthers(t *testing.T) {
	t.Parallel()

	r, mem := newRanker()
	ids := mem.seed(room, "A", "B", "C", "D", "E")

	_, err := r.Move(context.Background(), room, ids[0], 0, 3)
	require.NoError(t, err)

	var others []string
	for _, tp := range mem.room(room) {
		if tp.ID != ids[0] {
			others = append(others, tp.Title)
		}
	}
	assert.Equal(t, []string{"B", "C", "D", "E"}, others)
}

func TestClamp(t *testing.T) {
	t.Parallel()

	assert.Equal(t, int32(0), clamp(5, 0))
	assert.Equal(t, int32(0), clamp(-1, 4))
	assert.Equal(t, int32(3), clamp(3, 4))
	assert.Equal(t, int32(3), clamp(4, 4))
}
