package xcache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"golang.org/x/sync/singleflight"

	"github.com/omeyang/xguard/pkg/distributed/xdlock"
	"github.com/omeyang/xguard/pkg/observability/xmetrics"
	"github.com/omeyang/xguard/pkg/resilience/xretry"
	"github.com/omeyang/xguard/pkg/storage/xkv"
	"github.com/omeyang/xguard/pkg/util/xpool"
)

const componentName = "xcache"

// 观测事件名。
const (
	eventHit             = "hit"
	eventMiss            = "miss"
	eventNullHit         = "null_hit"
	eventLocalHit        = "local_hit"
	eventStaleHit        = "stale_hit"
	eventLoad            = "load"
	eventLockWait        = "lock_wait"
	eventRebuild         = "rebuild"
	eventRebuildFailed   = "rebuild_failed"
	eventRebuildRejected = "rebuild_rejected"
)

// localNumCounters ristretto 频率计数器数量。
const localNumCounters = 1e6

// =============================================================================
// Client
// =============================================================================

// Client 缓存引擎的共享基础设施，可被多个 Cache 复用。
//
// Client 并发安全。Close 会等待已排队的重建任务完成，但不关闭底层 Store。
type Client struct {
	store  xkv.Store
	locker xdlock.Locker
	pool   *xpool.Pool[rebuildTask]
	local  *ristretto.Cache[string, []byte]
	group  singleflight.Group
	opts   *options

	stats  counters
	closed atomic.Bool
}

// NewClient 创建 Client。未配置 WithLocker 时使用基于 store 的 xdlock.StoreLocker。
func NewClient(store xkv.Store, opts ...Option) (*Client, error) {
	if store == nil {
		return nil, ErrNilStore
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	if err := o.validate(); err != nil {
		return nil, err
	}

	locker := o.locker
	if locker == nil {
		var err error
		locker, err = xdlock.NewStoreLocker(store, xdlock.WithLogger(o.logger))
		if err != nil {
			return nil, fmt.Errorf("xcache: create locker: %w", err)
		}
	}
	if o.retryer == nil {
		o.retryer = xretry.New(xretry.WithOnRetry(func(attempt uint, err error) {
			o.logger.Debug("xcache: retry invalidate", slog.Uint64("attempt", uint64(attempt)), slog.Any("error", err))
		}))
	}

	c := &Client{
		store:  store,
		locker: locker,
		opts:   o,
	}

	if o.localCache {
		local, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
			NumCounters: localNumCounters,
			MaxCost:     o.localMaxCost,
			BufferItems: 64,
		})
		if err != nil {
			return nil, fmt.Errorf("xcache: create local cache: %w", err)
		}
		c.local = local
	}

	pool, err := xpool.New(o.rebuildWorkers, o.rebuildQueueSize, c.runRebuild,
		xpool.WithLogger(o.logger), xpool.WithName("xcache-rebuild"))
	if err != nil {
		if c.local != nil {
			c.local.Close()
		}
		return nil, fmt.Errorf("xcache: create rebuild pool: %w", err)
	}
	c.pool = pool

	return c, nil
}

// Store 返回底层存储。
func (c *Client) Store() xkv.Store { return c.store }

// Locker 返回重建锁实现。
func (c *Client) Locker() xdlock.Locker { return c.locker }

// Close 停止接收重建任务并等待已排队任务完成。
// ctx 到期时返回 ctx 错误，剩余任务在后台继续执行。
func (c *Client) Close(ctx context.Context) error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	err := c.pool.Shutdown(ctx)
	if c.local != nil {
		c.local.Close()
	}
	return err
}

func (c *Client) checkOpen() error {
	if c.closed.Load() {
		return ErrClosed
	}
	return nil
}

// =============================================================================
// 存储访问
// =============================================================================

// read 读取缓存。存储错误包装为 ErrCacheUnavailable，context 错误原样返回。
func (c *Client) read(ctx context.Context, key string) ([]byte, bool, error) {
	data, ok, err := c.store.Get(ctx, key)
	if err != nil {
		if isContextErr(err) {
			return nil, false, err
		}
		return nil, false, fmt.Errorf("%w: %w", ErrCacheUnavailable, err)
	}
	return data, ok, nil
}

// write 回源后写缓存，失败只记录日志，不影响本次返回。
func (c *Client) write(ctx context.Context, key string, data []byte, ttl time.Duration) {
	if err := c.store.Set(ctx, key, data, ttl); err != nil {
		c.stats.writeErrors.Add(1)
		c.opts.logger.Warn("xcache: cache set failed",
			slog.String("key", key), slog.Any("error", err))
	}
}

func (c *Client) localGet(key string) ([]byte, bool) {
	if c.local == nil {
		return nil, false
	}
	return c.local.Get(key)
}

func (c *Client) localSet(key string, data []byte) {
	if c.local == nil {
		return
	}
	c.local.SetWithTTL(key, data, int64(len(data)), c.opts.localTTL)
}

func (c *Client) localDel(key string) {
	if c.local == nil {
		return
	}
	c.local.Del(key)
}

func (c *Client) event(ctx context.Context, name, key string) {
	c.opts.observer.Event(ctx, componentName, name, xmetrics.String("key", key))
}

func (c *Client) start(ctx context.Context, operation, key string) (context.Context, xmetrics.Span) {
	return xmetrics.Start(ctx, c.opts.observer, xmetrics.SpanOptions{
		Component: componentName,
		Operation: operation,
		Attrs:     []xmetrics.Attr{xmetrics.String("key", key)},
	})
}

func spanResult(err error, attrs ...xmetrics.Attr) xmetrics.Result {
	return xmetrics.Result{Err: err, Attrs: attrs}
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// =============================================================================
// 异步重建
// =============================================================================

// rebuildTask 一次逻辑过期重建。handle 由提交方获取，由执行方释放。
type rebuildTask struct {
	parent context.Context
	key    string
	handle xdlock.LockHandle
	run    func(ctx context.Context) error
}

// runRebuild 在 worker 上执行重建。
// 使用脱离读者取消链的独立超时，保证读者返回后重建仍能完成。
func (c *Client) runRebuild(task rebuildTask) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(task.parent), c.opts.loadTimeout)
	defer cancel()
	defer xdlock.Release(ctx, task.handle, c.opts.logger)

	if err := task.run(ctx); err != nil {
		c.stats.rebuildFailures.Add(1)
		c.event(ctx, eventRebuildFailed, task.key)
		c.opts.logger.Warn("xcache: rebuild failed",
			slog.String("key", task.key), slog.Any("error", err))
		return
	}
	c.stats.rebuilds.Add(1)
	c.event(ctx, eventRebuild, task.key)
}

// submitRebuild 提交重建任务。队列满或已关闭时立即释放锁，读者不受影响。
func (c *Client) submitRebuild(ctx context.Context, task rebuildTask) {
	err := c.pool.Submit(task)
	if err == nil {
		return
	}
	xdlock.Release(ctx, task.handle, c.opts.logger)
	c.stats.rebuildRejected.Add(1)
	c.event(ctx, eventRebuildRejected, task.key)
	c.opts.logger.Warn("xcache: rebuild rejected",
		slog.String("key", task.key), slog.Any("error", err))
}

// =============================================================================
// 统计
// =============================================================================

type counters struct {
	hits               atomic.Uint64
	misses             atomic.Uint64
	nullHits           atomic.Uint64
	localHits          atomic.Uint64
	staleHits          atomic.Uint64
	loads              atomic.Uint64
	loadErrors         atomic.Uint64
	lockWaits          atomic.Uint64
	lockWaitTimeouts   atomic.Uint64
	writeErrors        atomic.Uint64
	rebuilds           atomic.Uint64
	rebuildFailures    atomic.Uint64
	rebuildRejected    atomic.Uint64
	invalidations      atomic.Uint64
	invalidateFailures atomic.Uint64
}

// Stats 引擎计数快照，所有 Cache 共享同一份计数。
type Stats struct {
	Hits               uint64
	Misses             uint64
	NullHits           uint64
	LocalHits          uint64
	StaleHits          uint64
	Loads              uint64
	LoadErrors         uint64
	LockWaits          uint64
	LockWaitTimeouts   uint64
	WriteErrors        uint64
	Rebuilds           uint64
	RebuildFailures    uint64
	RebuildRejected    uint64
	Invalidations      uint64
	InvalidateFailures uint64
	RebuildQueued      int
}

// Stats 返回计数快照。
func (c *Client) Stats() Stats {
	return Stats{
		Hits:               c.stats.hits.Load(),
		Misses:             c.stats.misses.Load(),
		NullHits:           c.stats.nullHits.Load(),
		LocalHits:          c.stats.localHits.Load(),
		StaleHits:          c.stats.staleHits.Load(),
		Loads:              c.stats.loads.Load(),
		LoadErrors:         c.stats.loadErrors.Load(),
		LockWaits:          c.stats.lockWaits.Load(),
		LockWaitTimeouts:   c.stats.lockWaitTimeouts.Load(),
		WriteErrors:        c.stats.writeErrors.Load(),
		Rebuilds:           c.stats.rebuilds.Load(),
		RebuildFailures:    c.stats.rebuildFailures.Load(),
		RebuildRejected:    c.stats.rebuildRejected.Load(),
		Invalidations:      c.stats.invalidations.Load(),
		InvalidateFailures: c.stats.invalidateFailures.Load(),
		RebuildQueued:      c.pool.Stats().Queued,
	}
}
