package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryIdempotencyStore(t *testing.T) {
	ctx := context.Background()

	t.Run("marks a new key once", func(t *testing.T) {
		s := NewMemoryIdempotencyStore()
		defer s.Close()

		first, err := s.MarkProcessed(ctx, "op-1", time.Minute)
		require.NoError(t, err)
		assert.True(t, first)

		second, err := s.MarkProcessed(ctx, "op-1", time.Minute)
		require.NoError(t, err)
		assert.False(t, second)
	})

	t.Run("is processed reflects marking", func(t *testing.T) {
		s := NewMemoryIdempotencyStore()
		defer s.Close()

		processed, err := s.IsProcessed(ctx, "op-2")
		require.NoError(t, err)
		assert.False(t, processed)

		_, err = s.MarkProcessed(ctx, "op-2", time.Minute)
		require.NoError(t, err)

		processed, err = s.IsProcessed(ctx, "op-2")
		require.NoError(t, err)
		assert.True(t, processed)
	})

	t.Run("expired keys can be re-marked", func(t *testing.T) {
		s := NewMemoryIdempotencyStore()
		defer s.Close()

		_, err := s.MarkProcessed(ctx, "op-3", -time.Second)
		require.NoError(t, err)

		processed, err := s.IsProcessed(ctx, "op-3")
		require.NoError(t, err)
		assert.False(t, processed)

		again, err := s.MarkProcessed(ctx, "op-3", time.Minute)
		require.NoError(t, err)
		assert.True(t, again)
	})

	t.Run("close is idempotent", func(t *testing.T) {
		s := NewMemoryIdempotencyStore()
		require.NoError(t, s.Close())
		require.NoError(t, s.Close())
	})
}
