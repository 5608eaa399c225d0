// Package topic implements Topic persistence on top of the generic
// repository, adding the rank maintenance statements the ordered list needs.
package topic

import (
	"context"
	"fmt"

	"github.com/heartmarshall/classroom-backend/internal/adapter/postgres"
	"github.com/heartmarshall/classroom-backend/internal/adapter/postgres/repository"
	"github.com/heartmarshall/classroom-backend/internal/domain"
)

// Repo provides topic persistence backed by PostgreSQL.
type Repo struct {
	*repository.Repository[domain.Topic]
	db postgres.DB
}

// New creates a new topic repository.
func New(db postgres.DB) *Repo {
	return &Repo{Repository: repository.New[domain.Topic](db), db: db}
}

// restampSQL rewrites the room's orders to 0..N-1 following the current
// (order, id) sequence. Rows already in place are not touched.
const restampSQL = `
UPDATE topics t
SET "order" = r.rn - 1, updated_at = now()
FROM (
    SELECT id, ROW_NUMBER() OVER (ORDER BY "order", id) AS rn
    FROM topics
    WHERE room_id = $1
) r
WHERE t.id = r.id AND t."order" <> r.rn - 1`

// driftedRoomsSQL lists rooms whose orders are not exactly 0..N-1.
const driftedRoomsSQL = `
SELECT room_id
FROM topics
GROUP BY room_id
HAVING MIN("order") <> 0
    OR MAX("order") <> COUNT(*) - 1
    OR COUNT(DISTINCT "order") <> COUNT(*)
ORDER BY room_id`

// CountInRoom returns the number of topics in the room.
func (r *Repo) CountInRoom(ctx context.Context, roomID int64) (int, error) {
	return r.Count(ctx, repository.Filters{"room_id": roomID})
}

// ShiftFrom moves every topic of the room at or after slot one step down the
// list, except the topic being placed.
func (r *Repo) ShiftFrom(ctx context.Context, roomID int64, slot int32, exceptID int64) error {
	_, err := r.Update(ctx,
		repository.Filters{"room_id": roomID, "order__gte": slot, "id__ne": exceptID},
		map[string]any{"order": repository.Increment("order", 1)},
	)
	return err
}

// SetOrder writes a topic's order.
func (r *Repo) SetOrder(ctx context.Context, topicID int64, order int32) error {
	n, err := r.Update(ctx, repository.Filters{"id": topicID}, map[string]any{"order": order})
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("topic %d: %w", topicID, domain.ErrNotFound)
	}
	return nil
}

// Restamp renumbers the room densely and returns the number of rows changed.
func (r *Repo) Restamp(ctx context.Context, roomID int64) (int64, error) {
	tag, err := postgres.QuerierFromCtx(ctx, r.db).Exec(ctx, restampSQL, roomID)
	if err != nil {
		return 0, postgres.MapError(err, "topics")
	}
	return tag.RowsAffected(), nil
}

// DriftedRooms returns the ids of rooms whose topic orders are not dense.
func (r *Repo) DriftedRooms(ctx context.Context) ([]int64, error) {
	rows, err := postgres.QuerierFromCtx(ctx, r.db).Query(ctx, driftedRoomsSQL)
	if err != nil {
		return nil, postgres.MapError(err, "topics")
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, postgres.MapError(err, "topics")
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, postgres.MapError(err, "topics")
	}
	return ids, nil
}
