package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalCache(t *testing.T) {
	c := NewLocal(time.Minute, 10*time.Minute)
	ctx := context.Background()

	t.Run("miss", func(t *testing.T) {
		_, found, err := c.Get(ctx, "absent")
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("json round trip", func(t *testing.T) {
		type stats struct {
			Total int `json:"total"`
		}
		require.NoError(t, SetJSON(ctx, c, "stats", stats{Total: 7}, time.Minute))

		var got stats
		found, err := GetJSON(ctx, c, "stats", &got)
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, 7, got.Total)

		require.NoError(t, c.Delete(ctx, "stats"))
		found, err = GetJSON(ctx, c, "stats", &got)
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("expiry", func(t *testing.T) {
		require.NoError(t, c.Set(ctx, "short", []byte("x"), 10*time.Millisecond))
		time.Sleep(30 * time.Millisecond)
		_, found, err := c.Get(ctx, "short")
		require.NoError(t, err)
		assert.False(t, found)
	})
}
