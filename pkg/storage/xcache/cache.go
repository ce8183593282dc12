package xcache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/omeyang/xguard/pkg/resilience/xbreaker"
)

// LoadFunc 回源函数。
//
// found=false 表示已确认记录不存在，会写入空值标记；
// 返回 err 表示回源失败，不写入任何缓存。
type LoadFunc[K comparable, V any] func(ctx context.Context, id K) (V, bool, error)

// Cache 绑定 key 前缀和值类型的缓存入口。
// 完整 key 为 keyPrefix + fmt.Sprint(id)，如 "cache:shop:" + 1。
type Cache[K comparable, V any] struct {
	client    *Client
	keyPrefix string
	codec     Codec[V]
	embedJSON bool
}

// New 创建 Cache。codec 为 nil 时使用 JSONCodec。
func New[K comparable, V any](client *Client, keyPrefix string, codec Codec[V]) (*Cache[K, V], error) {
	if client == nil {
		return nil, ErrNilClient
	}
	if strings.TrimSpace(keyPrefix) == "" {
		return nil, fmt.Errorf("%w: empty key prefix", ErrInvalidConfig)
	}
	if codec == nil {
		codec = JSONCodec[V]{}
	}
	_, embed := codec.(JSONCodec[V])
	return &Cache[K, V]{
		client:    client,
		keyPrefix: keyPrefix,
		codec:     codec,
		embedJSON: embed,
	}, nil
}

// Key 返回 id 对应的完整缓存 key。
func (c *Cache[K, V]) Key(id K) string {
	return c.keyPrefix + fmt.Sprint(id)
}

// Client 返回共享的 Client。
func (c *Cache[K, V]) Client() *Client { return c.client }

// =============================================================================
// 编解码
// =============================================================================

func (c *Cache[K, V]) encode(v V) ([]byte, error) {
	data, err := c.codec.Encode(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEncode, err)
	}
	if len(data) == 0 {
		// 空输出会与空值标记混淆
		return nil, fmt.Errorf("%w: codec produced empty payload", ErrEncode)
	}
	return data, nil
}

func (c *Cache[K, V]) decode(key string, data []byte) (V, error) {
	v, err := c.codec.Decode(data)
	if err != nil {
		c.client.opts.logger.Warn("xcache: decode failed",
			slog.String("key", key), slog.Any("error", err))
		return v, fmt.Errorf("%w: key=%s: %w", ErrDecode, key, err)
	}
	return v, nil
}

// =============================================================================
// 读取与回源
// =============================================================================

// lookup 读取普通缓存项。
// hit 为 true 表示缓存给出了确定结果（值或空值标记），调用方不应回源。
func (c *Cache[K, V]) lookup(ctx context.Context, key string, useLocal bool) (v V, found, hit bool, err error) {
	if useLocal {
		if data, ok := c.client.localGet(key); ok {
			c.client.stats.localHits.Add(1)
			c.client.event(ctx, eventLocalHit, key)
			v, err = c.decode(key, data)
			return v, err == nil, true, err
		}
	}

	data, ok, err := c.client.read(ctx, key)
	if err != nil {
		return v, false, false, err
	}
	if !ok {
		return v, false, false, nil
	}
	if isNullMarker(data) {
		c.client.stats.nullHits.Add(1)
		c.client.event(ctx, eventNullHit, key)
		return v, false, true, nil
	}

	v, err = c.decode(key, data)
	if err != nil {
		return v, false, true, err
	}
	c.client.stats.hits.Add(1)
	c.client.event(ctx, eventHit, key)
	if useLocal {
		c.client.localSet(key, data)
	}
	return v, true, true, nil
}

type outcome[V any] struct {
	value V
	found bool
}

// load 调用回源函数，依次经过限流与熔断。
func (c *Cache[K, V]) load(ctx context.Context, key string, id K, loadFn LoadFunc[K, V]) (V, bool, error) {
	var zero V
	opts := c.client.opts
	c.client.stats.loads.Add(1)
	c.client.event(ctx, eventLoad, key)

	if opts.limiter != nil {
		if err := opts.limiter.Allow(ctx, key); err != nil {
			c.client.stats.loadErrors.Add(1)
			return zero, false, fmt.Errorf("%w: %w", ErrLoadFailed, err)
		}
	}

	call := func() (outcome[V], error) {
		v, found, err := loadFn(ctx, id)
		return outcome[V]{value: v, found: found}, err
	}
	var (
		res outcome[V]
		err error
	)
	if opts.breaker != nil {
		res, err = xbreaker.Execute(opts.breaker, call)
	} else {
		res, err = call()
	}
	if err != nil {
		c.client.stats.loadErrors.Add(1)
		return zero, false, fmt.Errorf("%w: %w", ErrLoadFailed, err)
	}
	return res.value, res.found, nil
}

// loadAndPopulate 回源并写缓存：存在写值（ttl），不存在写空值标记（NullTTL）。
func (c *Cache[K, V]) loadAndPopulate(ctx context.Context, key string, id K, loadFn LoadFunc[K, V], ttl time.Duration) (V, bool, error) {
	v, found, err := c.load(ctx, key, id, loadFn)
	if err != nil {
		return v, false, err
	}
	if !found {
		c.client.write(ctx, key, nullMarker, c.client.opts.nullTTL)
		var zero V
		return zero, false, nil
	}

	data, err := c.encode(v)
	if err != nil {
		return v, false, err
	}
	c.client.write(ctx, key, data, c.ttlOrDefault(ttl))
	c.client.localSet(key, data)
	return v, true, nil
}

// coalesce 启用 singleflight 时合并同一 key 的并发回源。
// 回源使用脱离首个调用者取消链的独立超时，每个调用者仍可各自取消等待。
func (c *Cache[K, V]) coalesce(ctx context.Context, sfKey string, fn func(ctx context.Context) (V, bool, error)) (V, bool, error) {
	if !c.client.opts.singleflight {
		return fn(ctx)
	}

	ch := c.client.group.DoChan(sfKey, func() (any, error) {
		sfCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.client.opts.loadTimeout)
		defer cancel()
		v, found, err := fn(sfCtx)
		return outcome[V]{value: v, found: found}, err
	})

	var zero V
	select {
	case <-ctx.Done():
		return zero, false, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, false, res.Err
		}
		out, ok := res.Val.(outcome[V])
		if !ok {
			return zero, false, errors.New("xcache: unexpected result type from singleflight")
		}
		return out.value, out.found, nil
	}
}

func (c *Cache[K, V]) ttlOrDefault(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return c.client.opts.defaultTTL
	}
	return ttl
}

// =============================================================================
// 写路径
// =============================================================================

// UpdateThrough 先执行权威写入，成功后删除缓存 key。
//
// write 失败时原样返回，不触碰缓存。删除使用脱离调用方取消的独立超时，
// 失败时返回 ErrInvalidateFailed，此时写入已经生效。
func (c *Cache[K, V]) UpdateThrough(ctx context.Context, id K, write func(ctx context.Context) error) error {
	if write == nil {
		return ErrNilWriter
	}
	if err := c.client.checkOpen(); err != nil {
		return err
	}
	key := c.Key(id)
	ctx, span := c.client.start(ctx, "update_through", key)

	if err := write(ctx); err != nil {
		span.End(spanResult(err))
		return err
	}

	delCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.client.opts.loadTimeout)
	defer cancel()
	err := c.invalidate(delCtx, key)
	span.End(spanResult(err))
	return err
}

// Invalidate 删除 id 对应的缓存 key（含本地近端缓存）。
func (c *Cache[K, V]) Invalidate(ctx context.Context, id K) error {
	if err := c.client.checkOpen(); err != nil {
		return err
	}
	key := c.Key(id)
	ctx, span := c.client.start(ctx, "invalidate", key)
	err := c.invalidate(ctx, key)
	span.End(spanResult(err))
	return err
}

func (c *Cache[K, V]) invalidate(ctx context.Context, key string) error {
	c.client.localDel(key)
	err := c.client.opts.retryer.Do(ctx, func(ctx context.Context) error {
		_, err := c.client.store.Delete(ctx, key)
		return err
	})
	if err != nil {
		c.client.stats.invalidateFailures.Add(1)
		c.client.opts.logger.Warn("xcache: invalidate failed",
			slog.String("key", key), slog.Any("error", err))
		return fmt.Errorf("%w: key=%s: %w", ErrInvalidateFailed, key, err)
	}
	c.client.stats.invalidations.Add(1)
	return nil
}
