package xcache

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// blockingLoader 回源时阻塞直到 release 关闭，started 通知已进入回源。
type blockingLoader struct {
	*countingLoader
	started chan struct{}
	release chan struct{}
}

func newBlockingLoader(shops ...testShop) *blockingLoader {
	return &blockingLoader{
		countingLoader: newCountingLoader(shops...),
		started:        make(chan struct{}, 16),
		release:        make(chan struct{}),
	}
}

func (l *blockingLoader) Load(ctx context.Context, id int64) (testShop, bool, error) {
	l.started <- struct{}{}
	select {
	case <-l.release:
	case <-ctx.Done():
		return testShop{}, false, ctx.Err()
	}
	return l.countingLoader.Load(ctx, id)
}

func newLogicalCache(t *testing.T, opts ...Option) (*Cache[int64, testShop], *Client, *fakeClock, *miniredis.Miniredis) {
	t.Helper()
	clock := newFakeClock()
	opts = append([]Option{WithClock(clock.Now)}, opts...)
	client, mr := newTestClient(t, opts...)
	return newShopCache(t, client), client, clock, mr
}

// =============================================================================
// SaveWithLogicalExpiry
// =============================================================================

func TestSaveWithLogicalExpiry_WritesWrapperWithoutTTL(t *testing.T) {
	// Given
	clock := newFakeClock()
	client, mr := newTestClient(t, WithClock(clock.Now))
	c := newShopCache(t, client)
	loader := newCountingLoader(testShop{ID: 1, Name: "tea"})

	// When
	ok, err := c.SaveWithLogicalExpiry(context.Background(), 1, loader.Load, 20*time.Second)

	// Then
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Zero(t, mr.TTL("cache:shop:1"), "逻辑过期记录没有物理 TTL")

	raw, err := mr.Get("cache:shop:1")
	require.NoError(t, err)
	var entry struct {
		Data            testShop `json:"data"`
		LogicalExpireAt string   `json:"logicalExpireAt"`
	}
	require.NoError(t, json.Unmarshal([]byte(raw), &entry))
	assert.Equal(t, "tea", entry.Data.Name)
	assert.Equal(t, clock.Now().Add(20*time.Second).Format(time.RFC3339Nano), entry.LogicalExpireAt)
}

func TestSaveWithLogicalExpiry_AbsentRecord_ReturnsFalse(t *testing.T) {
	client, mr := newTestClient(t)
	c := newShopCache(t, client)

	ok, err := c.SaveWithLogicalExpiry(context.Background(), 9, newCountingLoader().Load, time.Minute)

	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, mr.Exists("cache:shop:9"))
}

func TestSaveWithLogicalExpiry_StoreUnavailable(t *testing.T) {
	client, mr := newTestClient(t)
	c := newShopCache(t, client)
	mr.SetError("ERR readonly")

	ok, err := c.SaveWithLogicalExpiry(context.Background(), 1,
		newCountingLoader(testShop{ID: 1}).Load, time.Minute)

	assert.ErrorIs(t, err, ErrCacheUnavailable)
	assert.False(t, ok)
}

// =============================================================================
// QueryWithLogicalExpiry
// =============================================================================

func TestQueryWithLogicalExpiry_ColdKey_IsMissWithoutLoad(t *testing.T) {
	// Given
	c, client, _, _ := newLogicalCache(t)
	loader := newCountingLoader(testShop{ID: 1, Name: "tea"})

	// When
	_, found, err := c.QueryWithLogicalExpiry(context.Background(), 1, loader.Load, time.Minute)

	// Then: 未预热的 key 不同步回源
	require.NoError(t, err)
	assert.False(t, found)
	assert.Zero(t, loader.calls.Load())
	assert.Equal(t, uint64(1), client.Stats().Misses)
}

func TestQueryWithLogicalExpiry_Fresh_ReturnsWithoutRebuild(t *testing.T) {
	// Given
	c, client, clock, _ := newLogicalCache(t)
	loader := newCountingLoader(testShop{ID: 1, Name: "tea"})
	ctx := context.Background()
	_, err := c.SaveWithLogicalExpiry(ctx, 1, loader.Load, time.Minute)
	require.NoError(t, err)
	clock.Advance(59 * time.Second)

	// When
	shop, found, err := c.QueryWithLogicalExpiry(ctx, 1, loader.Load, time.Minute)

	// Then
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "tea", shop.Name)
	assert.Equal(t, int64(1), loader.calls.Load(), "只有预热时回源")
	assert.Equal(t, uint64(1), client.Stats().Hits)
}

func TestQueryWithLogicalExpiry_Expired_ServesStaleAndRebuilds(t *testing.T) {
	// Given
	c, client, clock, _ := newLogicalCache(t)
	loader := newCountingLoader(testShop{ID: 1, Name: "old"})
	ctx := context.Background()
	_, err := c.SaveWithLogicalExpiry(ctx, 1, loader.Load, time.Minute)
	require.NoError(t, err)

	loader.put(testShop{ID: 1, Name: "new"})
	clock.Advance(2 * time.Minute)

	// When
	shop, found, err := c.QueryWithLogicalExpiry(ctx, 1, loader.Load, time.Minute)

	// Then: 立即返回旧值，后台完成重建
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "old", shop.Name)
	require.Eventually(t, func() bool {
		return client.Stats().Rebuilds == 1
	}, 2*time.Second, 10*time.Millisecond)

	shop, found, err = c.QueryWithLogicalExpiry(ctx, 1, loader.Load, time.Minute)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "new", shop.Name)
	assert.Equal(t, uint64(1), client.Stats().StaleHits)
}

func TestQueryWithLogicalExpiry_ReaderNeverBlocksOnLoader(t *testing.T) {
	// Given: 回源会一直阻塞
	c, client, clock, _ := newLogicalCache(t)
	ctx := context.Background()
	_, err := c.SaveWithLogicalExpiry(ctx, 1, newCountingLoader(testShop{ID: 1, Name: "old"}).Load, time.Minute)
	require.NoError(t, err)
	clock.Advance(2 * time.Minute)
	loader := newBlockingLoader(testShop{ID: 1, Name: "new"})

	// When: 连续多次读取
	start := time.Now()
	for i := 0; i < 5; i++ {
		shop, found, err := c.QueryWithLogicalExpiry(ctx, 1, loader.Load, time.Minute)
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, "old", shop.Name)
	}

	// Then: 读者都立即返回，且只触发一次重建
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	<-loader.started
	assert.Len(t, loader.started, 0, "重建锁保证只有一个重建任务")

	close(loader.release)
	require.Eventually(t, func() bool {
		return client.Stats().Rebuilds == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestQueryWithLogicalExpiry_QueueFull_ReleasesLockImmediately(t *testing.T) {
	// Given: 1 个 worker、队列容量 1
	c, client, clock, mr := newLogicalCache(t, WithRebuildPool(1, 1))
	ctx := context.Background()
	seed := newCountingLoader(testShop{ID: 1}, testShop{ID: 2}, testShop{ID: 3})
	for id := int64(1); id <= 3; id++ {
		_, err := c.SaveWithLogicalExpiry(ctx, id, seed.Load, time.Minute)
		require.NoError(t, err)
	}
	clock.Advance(2 * time.Minute)
	loader := newBlockingLoader(testShop{ID: 1}, testShop{ID: 2}, testShop{ID: 3})
	defer close(loader.release)

	// When: key1 占住 worker，key2 占满队列，key3 被拒绝
	_, _, err := c.QueryWithLogicalExpiry(ctx, 1, loader.Load, time.Minute)
	require.NoError(t, err)
	<-loader.started
	_, _, err = c.QueryWithLogicalExpiry(ctx, 2, loader.Load, time.Minute)
	require.NoError(t, err)
	_, found, err := c.QueryWithLogicalExpiry(ctx, 3, loader.Load, time.Minute)

	// Then: 读者仍拿到旧值，被拒绝的任务立即释放锁
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, uint64(1), client.Stats().RebuildRejected)
	assert.False(t, mr.Exists("lock:cache:shop:3"))
	assert.True(t, mr.Exists("lock:cache:shop:1"))
	assert.True(t, mr.Exists("lock:cache:shop:2"))
}

func TestQueryWithLogicalExpiry_RecordGone_DeletesKey(t *testing.T) {
	// Given
	c, _, clock, mr := newLogicalCache(t)
	loader := newCountingLoader(testShop{ID: 1, Name: "tea"})
	ctx := context.Background()
	_, err := c.SaveWithLogicalExpiry(ctx, 1, loader.Load, time.Minute)
	require.NoError(t, err)
	loader.remove(1)
	clock.Advance(2 * time.Minute)

	// When
	_, found, err := c.QueryWithLogicalExpiry(ctx, 1, loader.Load, time.Minute)

	// Then: 本次仍返回旧值，重建后 key 被删除
	require.NoError(t, err)
	assert.True(t, found)
	require.Eventually(t, func() bool {
		return !mr.Exists("cache:shop:1")
	}, 2*time.Second, 10*time.Millisecond)

	_, found, err = c.QueryWithLogicalExpiry(ctx, 1, loader.Load, time.Minute)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestQueryWithLogicalExpiry_RebuildFailure_KeepsStale(t *testing.T) {
	// Given
	c, client, clock, mr := newLogicalCache(t)
	loader := newCountingLoader(testShop{ID: 1, Name: "old"})
	ctx := context.Background()
	_, err := c.SaveWithLogicalExpiry(ctx, 1, loader.Load, time.Minute)
	require.NoError(t, err)
	loader.mu.Lock()
	loader.err = errDB
	loader.mu.Unlock()
	clock.Advance(2 * time.Minute)

	// When
	_, _, err = c.QueryWithLogicalExpiry(ctx, 1, loader.Load, time.Minute)
	require.NoError(t, err)

	// Then: 失败只记录，不重试，锁被释放
	require.Eventually(t, func() bool {
		return client.Stats().RebuildFailures == 1
	}, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		return !mr.Exists("lock:cache:shop:1")
	}, time.Second, 10*time.Millisecond)

	shop, found, err := c.QueryWithLogicalExpiry(ctx, 1, loader.Load, time.Minute)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "old", shop.Name)
}

func TestQueryWithLogicalExpiry_CorruptEntry(t *testing.T) {
	c, _, _, mr := newLogicalCache(t)
	require.NoError(t, mr.Set("cache:shop:1", `{"id":1}`))

	_, _, err := c.QueryWithLogicalExpiry(context.Background(), 1, newCountingLoader().Load, time.Minute)

	assert.ErrorIs(t, err, ErrDecode)
}
