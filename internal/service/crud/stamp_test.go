package crud

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heartmarshall/classroom-backend/internal/domain"
	"github.com/heartmarshall/classroom-backend/pkg/ctxutil"
)

func TestAuthorStamper(t *testing.T) {
	t.Parallel()

	s := AuthorStamper{CreatedBy: "author_id", UpdatedBy: "updated_by_id"}
	user := ctxutil.WithUserID(context.Background(), 42)

	t.Run("create stamps both", func(t *testing.T) {
		t.Parallel()
		ctx := WithAction(user, Action{Name: OpCreate})
		got, err := s.Stamp(ctx, Attrs{"title": "x", "author_id": 1})
		require.NoError(t, err)
		assert.Equal(t, Attrs{"title": "x", "author_id": int64(42), "updated_by_id": int64(42)}, got)
	})

	t.Run("update stamps updater only", func(t *testing.T) {
		t.Parallel()
		ctx := WithAction(user, Action{Name: OpUpdate})
		got, err := s.Stamp(ctx, Attrs{"title": "x"})
		require.NoError(t, err)
		assert.Equal(t, Attrs{"title": "x", "updated_by_id": int64(42)}, got)
	})

	t.Run("delete untouched", func(t *testing.T) {
		t.Parallel()
		ctx := WithAction(user, Action{Name: OpDelete})
		got, err := s.Stamp(ctx, Attrs{})
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("anonymous rejected", func(t *testing.T) {
		t.Parallel()
		ctx := WithAction(context.Background(), Action{Name: OpCreate})
		_, err := s.Stamp(ctx, Attrs{"title": "x"})
		assert.True(t, errors.Is(err, domain.ErrUnauthorized))
	})
}
