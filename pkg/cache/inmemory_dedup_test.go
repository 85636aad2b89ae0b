package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/illmade-knight/go-message-archive/pkg/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryDeduplicator(t *testing.T) {
	ctx := context.Background()

	t.Run("Claim, duplicate and release cycle", func(t *testing.T) {
		// Arrange
		d := cache.NewInMemoryDeduplicator(time.Minute)

		// Act: first claim
		_, first, err := d.Claim(ctx, "record-1", "body-1")
		require.NoError(t, err)

		// Act: duplicate claim
		_, second, err := d.Claim(ctx, "record-1", "body-2")
		require.NoError(t, err)

		// Assert
		assert.True(t, first)
		assert.False(t, second)

		// Act: release makes the key claimable again
		require.NoError(t, d.Release(ctx, "record-1"))
		stored, third, err := d.Claim(ctx, "record-1", "body-3")
		require.NoError(t, err)
		assert.True(t, third)
		assert.Equal(t, "body-3", stored)
	})

	t.Run("Duplicate claim returns the first value", func(t *testing.T) {
		d := cache.NewInMemoryDeduplicator(time.Minute)
		_, _, err := d.Claim(ctx, "record-1", "queued body")
		require.NoError(t, err)

		stored, first, err := d.Claim(ctx, "record-1", "retried body")

		require.NoError(t, err)
		assert.False(t, first)
		assert.Equal(t, "queued body", stored)
	})

	t.Run("Claims expire after the window", func(t *testing.T) {
		d := cache.NewInMemoryDeduplicator(20 * time.Millisecond)
		_, ok, err := d.Claim(ctx, "record-2", "v")
		require.NoError(t, err)
		require.True(t, ok)

		require.Eventually(t, func() bool {
			_, ok, err := d.Claim(ctx, "record-2", "v")
			return err == nil && ok
		}, time.Second, 10*time.Millisecond)
	})
}
