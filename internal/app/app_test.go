package app

import (
	"context"
	"log/slog"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heartmarshall/classroom-backend/internal/adapter/postgres/repository"
	"github.com/heartmarshall/classroom-backend/internal/adapter/postgres/testhelper"
	topicrepo "github.com/heartmarshall/classroom-backend/internal/adapter/postgres/topic"
	"github.com/heartmarshall/classroom-backend/internal/config"
	"github.com/heartmarshall/classroom-backend/internal/domain"
	"github.com/heartmarshall/classroom-backend/internal/service/crud"
	"github.com/heartmarshall/classroom-backend/internal/service/topic"
	"github.com/heartmarshall/classroom-backend/pkg/ctxutil"
)

func TestWire_EndToEnd(t *testing.T) {
	pool := testhelper.SetupTestDB(t)

	registry := prometheus.NewRegistry()
	metrics := crud.NewMetrics(registry)
	cfg := &config.Config{
		Pagination: config.PaginationConfig{DefaultLimit: 50, MaxLimit: 200},
		Auth:       config.AuthConfig{BcryptCost: 4},
	}
	svc := wire(slog.Default(), pool, topicrepo.New(pool), cfg, metrics)

	ctx := context.Background()

	owner, err := svc.Users.Create(ctx, crud.Attrs{
		"email":     "Owner@Example.com",
		"full_name": "Room Owner",
		"password":  "correct horse",
	})
	require.NoError(t, err)
	assert.Equal(t, "owner@example.com", owner.Email)

	authed, err := svc.Users.Authenticate(ctx, "owner@example.com", "correct horse")
	require.NoError(t, err)
	assert.Equal(t, owner.ID, authed.ID)

	ctx = ctxutil.WithUserID(ctx, owner.ID)

	room, err := svc.Rooms.Create(ctx, crud.Attrs{"name": "Algebra I"})
	require.NoError(t, err)
	assert.Contains(t, room.Slug, "algebra-i-")

	for _, title := range []string{"Sets", "Functions", "Limits"} {
		_, err := svc.Topics.Create(ctx, crud.Attrs{"room_id": room.ID, "title": title})
		require.NoError(t, err)
	}

	topics, err := svc.Topics.List(ctx, topic.ListInput{RoomID: room.ID})
	require.NoError(t, err)
	require.Len(t, topics, 3)
	for i, tp := range topics {
		assert.Equal(t, int32(i), tp.Order)
	}

	p, err := svc.Posts.Create(ctx, crud.Attrs{
		"room_id":  room.ID,
		"topic_id": topics[1].ID,
		"title":    "Week 1",
		"body":     "Read chapter one.",
	})
	require.NoError(t, err)
	assert.Equal(t, owner.ID, p.AuthorID)

	// An outsider sees no rooms and cannot post.
	outsider := testhelper.SeedUser(t, pool)
	octx := ctxutil.WithUserID(context.Background(), outsider.ID)

	rooms, err := svc.Rooms.Fetch(octx, repository.Params{})
	require.NoError(t, err)
	assert.Empty(t, rooms)

	_, err = svc.Posts.Create(octx, crud.Attrs{"room_id": room.ID, "title": "x", "body": "y"})
	require.ErrorIs(t, err, domain.ErrValidation)

	assert.Equal(t, 3.0, testutil.ToFloat64(metrics.Operations.WithLabelValues("topic", crud.OpCreate, crud.OutcomeOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Operations.WithLabelValues("room", crud.OpCreate, crud.OutcomeOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Operations.WithLabelValues("post", crud.OpCreate, crud.OutcomeInvalid)))
}

func TestApp_ReadyFollowsPool(t *testing.T) {
	pool := testhelper.SetupTestDB(t)
	a := &App{Pool: pool}

	ctx := context.Background()
	assert.True(t, a.Ready(ctx))

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	assert.False(t, a.Ready(cancelled), "a cancelled ping must report not ready")
}
