package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	topicrepo "github.com/heartmarshall/classroom-backend/internal/adapter/postgres/topic"
)

type restamper interface {
	DriftedRooms(ctx context.Context) ([]int64, error)
	Restamp(ctx context.Context, roomID int64) (int64, error)
}

// NewTopicsCmd creates the topics command group.
func NewTopicsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "topics",
		Short: "Topic maintenance",
	}

	var roomID int64
	restamp := &cobra.Command{
		Use:   "restamp",
		Short: "Renumber topic orders densely",
		Long: `Renumber topic orders to 0..N-1 preserving their relative order.
Without --room every room whose orders have gaps or duplicates is repaired.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			pool, logger, err := connect(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			rooms, rows, err := restampRooms(ctx, topicrepo.New(pool), logger, roomID)
			if err != nil {
				return err
			}
			cmd.Printf("restamped %d room(s), %d row(s) changed\n", rooms, rows)
			return nil
		},
	}
	restamp.Flags().Int64Var(&roomID, "room", 0, "restamp only this room")

	cmd.AddCommand(restamp)
	return cmd
}

// restampRooms repairs one room when roomID is set, or every drifted room.
func restampRooms(ctx context.Context, r restamper, log *slog.Logger, roomID int64) (int, int64, error) {
	var rooms []int64
	if roomID > 0 {
		rooms = []int64{roomID}
	} else if roomID < 0 {
		return 0, 0, oops.Code("INVALID_ROOM").Errorf("room id must be positive, got %d", roomID)
	} else {
		drifted, err := r.DriftedRooms(ctx)
		if err != nil {
			return 0, 0, oops.Code("RESTAMP_FAILED").With("operation", "find drifted rooms").Wrap(err)
		}
		rooms = drifted
	}

	var total int64
	for _, id := range rooms {
		n, err := r.Restamp(ctx, id)
		if err != nil {
			return 0, total, oops.Code("RESTAMP_FAILED").With("room_id", id).Wrap(fmt.Errorf("restamp room %d: %w", id, err))
		}
		log.InfoContext(ctx, "room restamped", slog.Int64("room_id", id), slog.Int64("rows", n))
		total += n
	}
	return len(rooms), total, nil
}
