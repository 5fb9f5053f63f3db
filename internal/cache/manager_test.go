package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// =============================================================================
// 🧪 Manager 测试
// =============================================================================

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *Manager) {
	t.Helper()
	mr := miniredis.RunT(t)

	manager, err := NewManager(Config{
		Addr:      mr.Addr(),
		KeyPrefix: "test:",
	}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = manager.Close() })
	return mr, manager
}

func TestNewManager_Unreachable(t *testing.T) {
	_, err := NewManager(Config{Addr: "127.0.0.1:1", MaxRetries: -1}, zap.NewNop())
	assert.Error(t, err)
}

func TestManager_Key(t *testing.T) {
	_, m := setupTestRedis(t)
	assert.Equal(t, "test:report:abc", m.Key("report", "abc"))
	assert.Equal(t, "test:", m.Key())
}

func TestManager_SetAndGet(t *testing.T) {
	_, m := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "k", "v", time.Minute))
	val, err := m.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", val)

	_, err = m.Get(ctx, "missing")
	assert.True(t, IsCacheMiss(err))
}

func TestManager_TTL(t *testing.T) {
	mr, m := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "short", "v", time.Second))
	mr.FastForward(2 * time.Second)

	_, err := m.Get(ctx, "short")
	assert.True(t, IsCacheMiss(err))

	require.NoError(t, m.Set(ctx, "forever", "v", 0))
	assert.Equal(t, time.Duration(0), mr.TTL("forever"))
}

func TestManager_JSON(t *testing.T) {
	mr, m := setupTestRedis(t)
	ctx := context.Background()

	type payload struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}
	require.NoError(t, m.SetJSON(ctx, "json", payload{Name: "a", Count: 2}, 0))

	var got payload
	require.NoError(t, m.GetJSON(ctx, "json", &got))
	assert.Equal(t, payload{Name: "a", Count: 2}, got)

	assert.Error(t, m.SetJSON(ctx, "bad", make(chan int), 0))

	require.NoError(t, mr.Set("garbage", "{not json"))
	assert.Error(t, m.GetJSON(ctx, "garbage", &got))
}

func TestManager_DeleteAndExists(t *testing.T) {
	_, m := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "a", "1", 0))
	require.NoError(t, m.Set(ctx, "b", "2", 0))

	n, err := m.Exists(ctx, "a", "b", "c")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	require.NoError(t, m.Delete(ctx, "a"))
	require.NoError(t, m.Delete(ctx))
	n, err = m.Exists(ctx, "a", "b")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestManager_Index(t *testing.T) {
	_, m := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, m.IndexAdd(ctx, "idx", "old", 1))
	require.NoError(t, m.IndexAdd(ctx, "idx", "mid", 2))
	require.NoError(t, m.IndexAdd(ctx, "idx", "new", 3))

	members, err := m.IndexNewest(ctx, "idx", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"new", "mid"}, members)

	require.NoError(t, m.IndexRemove(ctx, "idx", "mid"))
	members, err = m.IndexNewest(ctx, "idx", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"new", "old"}, members)
}

func TestManager_Ping(t *testing.T) {
	mr, m := setupTestRedis(t)
	ctx := context.Background()

	assert.NoError(t, m.Ping(ctx))
	mr.Close()
	assert.Error(t, m.Ping(ctx))
}

func TestManager_Closed(t *testing.T) {
	_, m := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, m.Close())
	require.NoError(t, m.Close())

	_, err := m.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, m.Set(ctx, "k", "v", 0), ErrClosed)
	assert.ErrorIs(t, m.IndexAdd(ctx, "idx", "m", 1), ErrClosed)
	assert.ErrorIs(t, m.Ping(ctx), ErrClosed)
}

func TestManager_ConcurrentOperations(t *testing.T) {
	_, m := setupTestRedis(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := m.Key("c", string(rune('a'+i)))
			assert.NoError(t, m.Set(ctx, key, "v", 0))
			_, err := m.Get(ctx, key)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()
}
