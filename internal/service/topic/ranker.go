package topic

import (
	"context"
	"fmt"
)

// store is the persistence the ranking algorithm needs. It is satisfied by
// the postgres topic repository.
type store interface {
	CountInRoom(ctx context.Context, roomID int64) (int, error)
	ShiftFrom(ctx context.Context, roomID int64, slot int32, exceptID int64) error
	SetOrder(ctx context.Context, topicID int64, order int32) error
	Restamp(ctx context.Context, roomID int64) (int64, error)
}

type txManager interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Ranker keeps topic orders dense within a room: the N topics of a room
// carry exactly 0..N-1. It knows nothing about authorization.
type Ranker struct {
	store store
	tx    txManager
}

// NewRanker creates a Ranker.
func NewRanker(store store, tx txManager) *Ranker {
	return &Ranker{store: store, tx: tx}
}

// Next returns the order a new topic in roomID takes: the end of the list.
func (r *Ranker) Next(ctx context.Context, roomID int64) (int32, error) {
	n, err := r.store.CountInRoom(ctx, roomID)
	if err != nil {
		return 0, fmt.Errorf("count topics: %w", err)
	}
	return int32(n), nil
}

// Move places the topic at position k, clamped to 0..N-1, and returns the
// resulting order. Rows at or after the insertion slot shift up by one, the
// topic is written into the slot, and the room is restamped.
//
// Backward moves shift from k. Forward moves shift from k+1 instead: a plain
// shift at k followed by the restamp would leave the topic at k-1, because
// its old slot closes below it. Shifting past the k-th row makes the topic
// land exactly at k in both directions.
func (r *Ranker) Move(ctx context.Context, roomID, topicID int64, current int32, k int64) (int32, error) {
	var target int32
	err := r.tx.RunInTx(ctx, func(ctx context.Context) error {
		n, err := r.store.CountInRoom(ctx, roomID)
		if err != nil {
			return fmt.Errorf("count topics: %w", err)
		}
		target = clamp(k, n)
		if target == current {
			return nil
		}

		slot := target
		if target > current {
			slot = target + 1
		}
		if err := r.store.ShiftFrom(ctx, roomID, slot, topicID); err != nil {
			return fmt.Errorf("shift topics: %w", err)
		}
		if err := r.store.SetOrder(ctx, topicID, slot); err != nil {
			return fmt.Errorf("set order: %w", err)
		}
		if _, err := r.store.Restamp(ctx, roomID); err != nil {
			return fmt.Errorf("restamp: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return target, nil
}

// Compact restamps roomID to 0..N-1 after a removal.
func (r *Ranker) Compact(ctx context.Context, roomID int64) error {
	if _, err := r.store.Restamp(ctx, roomID); err != nil {
		return fmt.Errorf("restamp: %w", err)
	}
	return nil
}

func clamp(k int64, n int) int32 {
	switch {
	case n <= 0 || k < 0:
		return 0
	case k >= int64(n):
		return int32(n - 1)
	}
	return int32(k)
}
