package xkv

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// 测试辅助
// =============================================================================

// storeFactory 返回待测 Store 以及推进时间的函数。
type storeFactory func(t *testing.T) (Store, func(time.Duration))

func newTestRedisStore(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{
		Addr:         mr.Addr(),
		DialTimeout:  100 * time.Millisecond,
		ReadTimeout:  100 * time.Millisecond,
		WriteTimeout: 100 * time.Millisecond,
		PoolSize:     4,
		MaxRetries:   0,
	})
	store, err := NewRedis(client)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = store.Close()
		_ = client.Close()
		mr.Close()
	})
	return store, mr
}

// fakeClock 可手动推进的时钟。
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func storeFactories() map[string]storeFactory {
	return map[string]storeFactory{
		"redis": func(t *testing.T) (Store, func(time.Duration)) {
			store, mr := newTestRedisStore(t)
			return store, mr.FastForward
		},
		"memory": func(t *testing.T) (Store, func(time.Duration)) {
			clock := newFakeClock()
			store, err := NewMemory(WithClock(clock.Now))
			require.NoError(t, err)
			t.Cleanup(func() { _ = store.Close() })
			return store, clock.Advance
		},
	}
}

// =============================================================================
// 行为一致性测试：两种实现必须表现一致
// =============================================================================

func TestStore_GetSet(t *testing.T) {
	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			store, advance := factory(t)
			ctx := context.Background()

			// Given: 不存在的 key
			_, found, err := store.Get(ctx, "shop:1")
			require.NoError(t, err)
			assert.False(t, found)

			// When: 写入带 TTL 的值
			require.NoError(t, store.Set(ctx, "shop:1", []byte("v1"), time.Minute))

			// Then: 可读取，过期后消失
			val, found, err := store.Get(ctx, "shop:1")
			require.NoError(t, err)
			assert.True(t, found)
			assert.Equal(t, []byte("v1"), val)

			advance(2 * time.Minute)
			_, found, err = store.Get(ctx, "shop:1")
			require.NoError(t, err)
			assert.False(t, found)
		})
	}
}

func TestStore_EmptyValueIsNotAbsent(t *testing.T) {
	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			store, _ := factory(t)
			ctx := context.Background()

			require.NoError(t, store.Set(ctx, "shop:404", []byte{}, time.Minute))

			val, found, err := store.Get(ctx, "shop:404")
			require.NoError(t, err)
			assert.True(t, found, "空值是合法值，不应被当作不存在")
			assert.Empty(t, val)
		})
	}
}

func TestStore_TTL(t *testing.T) {
	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			store, _ := factory(t)
			ctx := context.Background()

			ttl, err := store.TTL(ctx, "missing")
			require.NoError(t, err)
			assert.Equal(t, KeyMissing, ttl)

			require.NoError(t, store.Set(ctx, "forever", []byte("x"), 0))
			ttl, err = store.TTL(ctx, "forever")
			require.NoError(t, err)
			assert.Equal(t, NoExpiry, ttl)

			require.NoError(t, store.Set(ctx, "short", []byte("x"), 2*time.Minute))
			ttl, err = store.TTL(ctx, "short")
			require.NoError(t, err)
			assert.Greater(t, ttl, time.Minute)
			assert.LessOrEqual(t, ttl, 2*time.Minute)
		})
	}
}

func TestStore_DeleteAndExists(t *testing.T) {
	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			store, _ := factory(t)
			ctx := context.Background()

			require.NoError(t, store.Set(ctx, "k", []byte("v"), time.Minute))
			ok, err := store.Exists(ctx, "k")
			require.NoError(t, err)
			assert.True(t, ok)

			deleted, err := store.Delete(ctx, "k")
			require.NoError(t, err)
			assert.True(t, deleted)

			deleted, err = store.Delete(ctx, "k")
			require.NoError(t, err)
			assert.False(t, deleted)

			ok, err = store.Exists(ctx, "k")
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestStore_SetIfAbsent(t *testing.T) {
	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			store, advance := factory(t)
			ctx := context.Background()

			ok, err := store.SetIfAbsent(ctx, "lock:a", []byte("t1"), 10*time.Second)
			require.NoError(t, err)
			assert.True(t, ok)

			ok, err = store.SetIfAbsent(ctx, "lock:a", []byte("t2"), 10*time.Second)
			require.NoError(t, err)
			assert.False(t, ok)

			// 记录创建时即带过期时间
			ttl, err := store.TTL(ctx, "lock:a")
			require.NoError(t, err)
			assert.Greater(t, ttl, time.Duration(0))

			advance(11 * time.Second)
			ok, err = store.SetIfAbsent(ctx, "lock:a", []byte("t2"), 10*time.Second)
			require.NoError(t, err)
			assert.True(t, ok)
		})
	}
}

func TestStore_SetIfAbsent_RequiresTTL(t *testing.T) {
	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			store, _ := factory(t)

			_, err := store.SetIfAbsent(context.Background(), "lock:a", []byte("t"), 0)
			assert.ErrorIs(t, err, ErrInvalidTTL)
		})
	}
}

func TestStore_SetIfAbsent_Concurrent(t *testing.T) {
	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			store, _ := factory(t)
			ctx := context.Background()

			var (
				wg   sync.WaitGroup
				wins atomic.Int32
			)
			for i := 0; i < 20; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					ok, err := store.SetIfAbsent(ctx, "lock:hot", []byte("t"), time.Minute)
					if err == nil && ok {
						wins.Add(1)
					}
				}()
			}
			wg.Wait()
			assert.Equal(t, int32(1), wins.Load())
		})
	}
}

func TestStore_CompareAndDelete(t *testing.T) {
	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			store, _ := factory(t)
			ctx := context.Background()

			require.NoError(t, store.Set(ctx, "lock:a", []byte("mine"), time.Minute))

			// When: 值不匹配
			ok, err := store.CompareAndDelete(ctx, "lock:a", []byte("other"))
			require.NoError(t, err)
			assert.False(t, ok)

			exists, err := store.Exists(ctx, "lock:a")
			require.NoError(t, err)
			assert.True(t, exists, "值不匹配时不能删除")

			// When: 值匹配
			ok, err = store.CompareAndDelete(ctx, "lock:a", []byte("mine"))
			require.NoError(t, err)
			assert.True(t, ok)

			// When: key 不存在
			ok, err = store.CompareAndDelete(ctx, "lock:a", []byte("mine"))
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestStore_CompareAndExpire(t *testing.T) {
	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			store, advance := factory(t)
			ctx := context.Background()

			require.NoError(t, store.Set(ctx, "lock:a", []byte("mine"), 10*time.Second))

			ok, err := store.CompareAndExpire(ctx, "lock:a", []byte("other"), time.Minute)
			require.NoError(t, err)
			assert.False(t, ok)

			ok, err = store.CompareAndExpire(ctx, "lock:a", []byte("mine"), time.Minute)
			require.NoError(t, err)
			assert.True(t, ok)

			// 原 TTL 已过，续期后仍存在
			advance(20 * time.Second)
			exists, err := store.Exists(ctx, "lock:a")
			require.NoError(t, err)
			assert.True(t, exists)
		})
	}
}

func TestStore_EmptyKey(t *testing.T) {
	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			store, _ := factory(t)
			ctx := context.Background()

			_, _, err := store.Get(ctx, "")
			assert.ErrorIs(t, err, ErrEmptyKey)
			assert.ErrorIs(t, store.Set(ctx, "", nil, 0), ErrEmptyKey)
			_, err = store.SetIfAbsent(ctx, "", nil, time.Second)
			assert.ErrorIs(t, err, ErrEmptyKey)
		})
	}
}

func TestStore_Closed(t *testing.T) {
	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			store, _ := factory(t)
			require.NoError(t, store.Close())

			_, _, err := store.Get(context.Background(), "k")
			assert.ErrorIs(t, err, ErrClosed)
		})
	}
}
