package cache

import (
	"context"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type snapshot struct {
	Date  string `json:"date"`
	Sales int    `json:"sales"`
}

func TestNoopSnapshotCacheNeverHits(t *testing.T) {
	var c SnapshotCache = NoopSnapshotCache{}
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", snapshot{Sales: 1}, time.Minute))
	var dest snapshot
	ok, err := c.Get(ctx, "k", &dest)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisSnapshotCacheRoundTrip(t *testing.T) {
	addr := os.Getenv("PHARMASYS_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("PHARMASYS_TEST_REDIS_ADDR is not set")
	}

	ctx := context.Background()
	c := NewRedisSnapshotCache(addr, "", 0)
	defer c.Close()
	require.NoError(t, c.Ping(ctx))

	key := "pharmasys:test:" + strconv.FormatInt(time.Now().UnixNano(), 10)
	var dest snapshot
	ok, err := c.Get(ctx, key, &dest)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, key, snapshot{Date: "2024-07-01", Sales: 3}, time.Minute))
	ok, err = c.Get(ctx, key, &dest)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, snapshot{Date: "2024-07-01", Sales: 3}, dest)
}
