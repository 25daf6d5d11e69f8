package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/inventory-engine/inventory"
)

func newTestCache(t *testing.T) *RedisHistory {
	t.Helper()
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}

	c, err := NewRedisHistory(context.Background(), Options{
		Addr:   addr,
		TTL:    time.Minute,
		Prefix: "test:" + t.Name() + ":",
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		c.client.Del(context.Background(), c.key, c.versionKey)
		c.Close()
	})
	return c
}

func TestNewRedisHistory_RequiresAddr(t *testing.T) {
	_, err := NewRedisHistory(context.Background(), Options{}, nil)
	assert.Error(t, err)
}

func TestRedisHistory_RoundTrip(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	// GIVEN: Empty cache
	_, ok, err := c.GetHistory(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	// WHEN: Setting a history list
	reverted := time.Date(2025, 3, 2, 10, 0, 0, 0, time.UTC)
	records := []inventory.AdjustmentRecord{{
		ID: 7,
		Rule: inventory.AdjustmentRule{
			Kind:  inventory.RulePercentage,
			Value: decimal.RequireFromString("12.5"),
			Scope: inventory.InCategory(3),
		},
		Note:         "marzo",
		CreatedAt:    time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC),
		Reverted:     true,
		RevertedAt:   &reverted,
		ProductCount: 4,
		CategoryName: "Bebidas",
	}}
	version, err := c.HistoryVersion(ctx)
	require.NoError(t, err)
	require.NoError(t, c.SetHistory(ctx, version, records))

	// THEN: Reads hit with the same content
	got, ok, err := c.GetHistory(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, got, 1)
	assert.Equal(t, inventory.AdjustmentID(7), got[0].ID)
	assert.True(t, got[0].Rule.Value.Equal(decimal.RequireFromString("12.5")))
	assert.Equal(t, inventory.CategoryID(3), *got[0].Rule.Scope.CategoryID)
	assert.True(t, got[0].RevertedAt.Equal(reverted))

	// AND: Invalidation turns reads into misses
	require.NoError(t, c.InvalidateHistory(ctx))
	_, ok, err = c.GetHistory(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisHistory_StaleFillIsDropped(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	// GIVEN: A fill read the version before an invalidation
	before, err := c.HistoryVersion(ctx)
	require.NoError(t, err)
	require.NoError(t, c.InvalidateHistory(ctx))

	after, err := c.HistoryVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, before+1, after)

	// WHEN: The fill writes with the old version
	stale := []inventory.AdjustmentRecord{{ID: 1}}
	require.NoError(t, c.SetHistory(ctx, before, stale))

	// THEN: Nothing was cached
	_, ok, err := c.GetHistory(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	// AND: A fill with the current version is cached
	require.NoError(t, c.SetHistory(ctx, after, stale))
	_, ok, err = c.GetHistory(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}
