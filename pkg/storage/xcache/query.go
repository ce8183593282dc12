package xcache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/omeyang/xguard/pkg/distributed/xdlock"
	"github.com/omeyang/xguard/pkg/observability/xmetrics"
)

// =============================================================================
// 缓存穿透：空值缓存
// =============================================================================

// QueryWithPassThrough 查询 id，未命中时直接回源。
//
// 记录不存在时写入空值标记（NullTTL），后续查询在标记过期前不再回源。
// 不做击穿防护，并发未命中会各自回源（启用 WithSingleflight 时进程内合并）。
// ttl <= 0 时使用 DefaultTTL。
func (c *Cache[K, V]) QueryWithPassThrough(ctx context.Context, id K, load LoadFunc[K, V], ttl time.Duration) (V, bool, error) {
	var zero V
	if load == nil {
		return zero, false, ErrNilLoader
	}
	if err := c.client.checkOpen(); err != nil {
		return zero, false, err
	}
	key := c.Key(id)
	ctx, span := c.client.start(ctx, "query_pass_through", key)

	v, found, err := c.queryPassThrough(ctx, key, id, load, ttl)
	span.End(spanResult(err, xmetrics.Bool("found", found)))
	return v, found, err
}

func (c *Cache[K, V]) queryPassThrough(ctx context.Context, key string, id K, load LoadFunc[K, V], ttl time.Duration) (V, bool, error) {
	if v, found, hit, err := c.lookup(ctx, key, true); hit || err != nil {
		return v, found, err
	}
	c.client.stats.misses.Add(1)
	c.client.event(ctx, eventMiss, key)

	return c.coalesce(ctx, "pass:"+key, func(ctx context.Context) (V, bool, error) {
		return c.loadAndPopulate(ctx, key, id, load, ttl)
	})
}

// =============================================================================
// 缓存击穿：互斥重建
// =============================================================================

// QueryWithMutex 查询 id，未命中时只有抢到 lock:{key} 的调用方回源。
//
// 未抢到锁的调用方按 RetryInterval（±30% 抖动）循环等待并重读缓存，
// 总等待超过 MaxRetryWait 返回 ErrLockWaitTimeout，ctx 取消时返回 ctx 错误。
// 抢到锁后先 double-check 缓存，回源结果（含空值标记）写回后释放锁。
func (c *Cache[K, V]) QueryWithMutex(ctx context.Context, id K, load LoadFunc[K, V], ttl time.Duration) (V, bool, error) {
	var zero V
	if load == nil {
		return zero, false, ErrNilLoader
	}
	if err := c.client.checkOpen(); err != nil {
		return zero, false, err
	}
	key := c.Key(id)
	ctx, span := c.client.start(ctx, "query_mutex", key)

	v, found, err := c.queryMutex(ctx, key, id, load, ttl)
	span.End(spanResult(err, xmetrics.Bool("found", found)))
	return v, found, err
}

func (c *Cache[K, V]) queryMutex(ctx context.Context, key string, id K, load LoadFunc[K, V], ttl time.Duration) (V, bool, error) {
	if v, found, hit, err := c.lookup(ctx, key, true); hit || err != nil {
		return v, found, err
	}
	c.client.stats.misses.Add(1)
	c.client.event(ctx, eventMiss, key)

	return c.coalesce(ctx, "mutex:"+key, func(ctx context.Context) (V, bool, error) {
		return c.rebuildWithMutex(ctx, key, id, load, ttl)
	})
}

// rebuildWithMutex 循环抢锁，直到抢到锁、缓存被其他持锁者填充或等待超限。
func (c *Cache[K, V]) rebuildWithMutex(ctx context.Context, key string, id K, load LoadFunc[K, V], ttl time.Duration) (V, bool, error) {
	var zero V
	opts := c.client.opts
	limit := opts.retryWaitLimit()
	start := time.Now()

	timer := time.NewTimer(0)
	defer timer.Stop()
	<-timer.C

	for {
		handle, err := c.client.locker.TryLock(ctx, key, opts.lockLease)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return zero, false, ctxErr
			}
			// 锁状态未知时不回源
			return zero, false, fmt.Errorf("%w: %w", ErrCacheUnavailable, err)
		}
		if handle != nil {
			return c.loadUnderLock(ctx, key, id, load, ttl, handle)
		}

		wait := jitter(opts.retryInterval)
		if time.Since(start)+wait > limit {
			c.client.stats.lockWaitTimeouts.Add(1)
			return zero, false, fmt.Errorf("%w: key=%s waited=%s", ErrLockWaitTimeout, key, time.Since(start).Round(time.Millisecond))
		}
		c.client.stats.lockWaits.Add(1)
		c.client.event(ctx, eventLockWait, key)

		timer.Reset(wait)
		select {
		case <-ctx.Done():
			return zero, false, ctx.Err()
		case <-timer.C:
		}

		// 持锁者可能已完成重建
		if v, found, hit, err := c.lookup(ctx, key, false); hit || err != nil {
			return v, found, err
		}
	}
}

// loadUnderLock 持锁回源。返回前（含 panic）释放锁，释放失败只记日志。
func (c *Cache[K, V]) loadUnderLock(ctx context.Context, key string, id K, load LoadFunc[K, V], ttl time.Duration, handle xdlock.LockHandle) (V, bool, error) {
	defer xdlock.Release(ctx, handle, c.client.opts.logger)

	// double-check：等锁期间其他持锁者可能已写入
	if v, found, hit, err := c.lookup(ctx, key, false); hit || err != nil {
		return v, found, err
	}
	return c.loadAndPopulate(ctx, key, id, load, ttl)
}

// =============================================================================
// 缓存击穿：逻辑过期
// =============================================================================

// QueryWithLogicalExpiry 查询以逻辑过期包装存储的 id。
//
// key 不存在时返回 not found，不同步回源，热点数据需通过 SaveWithLogicalExpiry 预热。
// 未过期直接返回；已过期时抢锁，抢到则提交后台重建，无论如何都立即返回旧值。
// logicalTTL <= 0 时使用 DefaultTTL。
func (c *Cache[K, V]) QueryWithLogicalExpiry(ctx context.Context, id K, load LoadFunc[K, V], logicalTTL time.Duration) (V, bool, error) {
	var zero V
	if load == nil {
		return zero, false, ErrNilLoader
	}
	if err := c.client.checkOpen(); err != nil {
		return zero, false, err
	}
	key := c.Key(id)
	ctx, span := c.client.start(ctx, "query_logical_expiry", key)

	v, found, stale, err := c.queryLogical(ctx, key, id, load, logicalTTL)
	span.End(spanResult(err, xmetrics.Bool("found", found), xmetrics.Bool("stale", stale)))
	return v, found, err
}

func (c *Cache[K, V]) queryLogical(ctx context.Context, key string, id K, load LoadFunc[K, V], logicalTTL time.Duration) (v V, found, stale bool, err error) {
	v, expireAt, ok, err := c.readLogical(ctx, key)
	if err != nil || !ok {
		if err == nil {
			c.client.stats.misses.Add(1)
			c.client.event(ctx, eventMiss, key)
		}
		return v, false, false, err
	}

	if c.client.opts.now().Before(expireAt) {
		c.client.stats.hits.Add(1)
		c.client.event(ctx, eventHit, key)
		return v, true, false, nil
	}

	c.client.stats.staleHits.Add(1)
	c.client.event(ctx, eventStaleHit, key)
	c.triggerRebuild(ctx, key, id, load, logicalTTL)
	return v, true, true, nil
}

// readLogical 读取并解开逻辑过期包装。ok=false 表示 key 不存在。
func (c *Cache[K, V]) readLogical(ctx context.Context, key string) (v V, expireAt time.Time, ok bool, err error) {
	data, exists, err := c.client.read(ctx, key)
	if err != nil || !exists || isNullMarker(data) {
		return v, time.Time{}, false, err
	}
	payload, expireAt, err := decodeLogical(data)
	if err != nil {
		c.client.opts.logger.Warn("xcache: decode logical entry failed",
			slog.String("key", key), slog.Any("error", err))
		return v, time.Time{}, false, fmt.Errorf("%w: key=%s: %w", ErrDecode, key, err)
	}
	v, err = c.decode(key, payload)
	if err != nil {
		return v, time.Time{}, false, err
	}
	return v, expireAt, true, nil
}

// triggerRebuild 抢锁并提交后台重建，不等待结果。
func (c *Cache[K, V]) triggerRebuild(ctx context.Context, key string, id K, load LoadFunc[K, V], logicalTTL time.Duration) {
	handle, err := c.client.locker.TryLock(ctx, key, c.client.opts.lockLease)
	if err != nil {
		c.client.opts.logger.Warn("xcache: acquire rebuild lock failed, serving stale",
			slog.String("key", key), slog.Any("error", err))
		return
	}
	if handle == nil {
		return
	}

	c.client.submitRebuild(ctx, rebuildTask{
		parent: ctx,
		key:    key,
		handle: handle,
		run: func(ctx context.Context) error {
			return c.rebuildLogical(ctx, key, id, load, logicalTTL)
		},
	})
}

// rebuildLogical 后台重建：double-check 后回源并写入新的逻辑过期时间。
// 记录已不存在时删除 key，避免一直返回旧值。
func (c *Cache[K, V]) rebuildLogical(ctx context.Context, key string, id K, load LoadFunc[K, V], logicalTTL time.Duration) error {
	_, expireAt, ok, err := c.readLogical(ctx, key)
	if err == nil && ok && c.client.opts.now().Before(expireAt) {
		return nil
	}

	v, found, err := c.load(ctx, key, id, load)
	if err != nil {
		return err
	}
	if !found {
		if _, err := c.client.store.Delete(ctx, key); err != nil {
			return fmt.Errorf("delete vanished record: %w", err)
		}
		c.client.opts.logger.Info("xcache: record gone, logical entry removed",
			slog.String("key", key))
		return nil
	}
	return c.saveLogical(ctx, key, v, logicalTTL)
}

// SaveWithLogicalExpiry 同步回源并写入逻辑过期包装，用于预热。
// 记录不存在时返回 false，不修改缓存。写入不设置物理 TTL。
func (c *Cache[K, V]) SaveWithLogicalExpiry(ctx context.Context, id K, load LoadFunc[K, V], logicalTTL time.Duration) (bool, error) {
	if load == nil {
		return false, ErrNilLoader
	}
	if err := c.client.checkOpen(); err != nil {
		return false, err
	}
	key := c.Key(id)
	ctx, span := c.client.start(ctx, "save_logical_expiry", key)

	found, err := c.saveWithLogicalExpiry(ctx, key, id, load, logicalTTL)
	span.End(spanResult(err, xmetrics.Bool("found", found)))
	return found, err
}

func (c *Cache[K, V]) saveWithLogicalExpiry(ctx context.Context, key string, id K, load LoadFunc[K, V], logicalTTL time.Duration) (bool, error) {
	v, found, err := c.load(ctx, key, id, load)
	if err != nil || !found {
		return false, err
	}
	if err := c.saveLogical(ctx, key, v, logicalTTL); err != nil {
		return false, err
	}
	return true, nil
}

func (c *Cache[K, V]) saveLogical(ctx context.Context, key string, v V, logicalTTL time.Duration) error {
	payload, err := c.encode(v)
	if err != nil {
		return err
	}
	expireAt := c.client.opts.now().Add(c.ttlOrDefault(logicalTTL))
	data, err := encodeLogical(payload, expireAt, c.embedJSON)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrEncode, err)
	}
	if err := c.client.store.Set(ctx, key, data, 0); err != nil {
		if isContextErr(err) {
			return err
		}
		return fmt.Errorf("%w: %w", ErrCacheUnavailable, err)
	}
	return nil
}
