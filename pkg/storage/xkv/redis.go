package xkv

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// =============================================================================
// Lua 脚本
// =============================================================================

// compareAndDeleteScript 值匹配才删除，GET 与 DEL 在服务端原子执行。
var compareAndDeleteScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end
`)

// compareAndExpireScript 值匹配才续期。ARGV[2] 为毫秒。
var compareAndExpireScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
else
	return 0
end
`)

// =============================================================================
// Redis 实现
// =============================================================================

// Redis 基于 go-redis 的 Store 实现。
type Redis struct {
	client redis.UniversalClient
	closed atomic.Bool
}

var _ Store = (*Redis)(nil)

// NewRedis 创建 Redis Store。client 的生命周期由调用方管理。
func NewRedis(client redis.UniversalClient) (*Redis, error) {
	if client == nil {
		return nil, ErrNilClient
	}
	return &Redis{client: client}, nil
}

// Client 返回底层 go-redis 客户端。
func (r *Redis) Client() redis.UniversalClient {
	return r.client
}

// Get 读取 key。
func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := r.check(key); err != nil {
		return nil, false, err
	}
	val, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, wrapErr("get", err)
	}
	return val, true, nil
}

// Set 写入 key，ttl <= 0 表示永不过期。
func (r *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := r.check(key); err != nil {
		return err
	}
	if ttl < 0 {
		ttl = 0
	}
	return wrapErr("set", r.client.Set(ctx, key, value, ttl).Err())
}

// Delete 删除 key。
func (r *Redis) Delete(ctx context.Context, key string) (bool, error) {
	if err := r.check(key); err != nil {
		return false, err
	}
	n, err := r.client.Del(ctx, key).Result()
	if err != nil {
		return false, wrapErr("del", err)
	}
	return n > 0, nil
}

// Exists 判断 key 是否存在。
func (r *Redis) Exists(ctx context.Context, key string) (bool, error) {
	if err := r.check(key); err != nil {
		return false, err
	}
	n, err := r.client.Exists(ctx, key).Result()
	if err != nil {
		return false, wrapErr("exists", err)
	}
	return n > 0, nil
}

// TTL 返回剩余过期时间。
func (r *Redis) TTL(ctx context.Context, key string) (time.Duration, error) {
	if err := r.check(key); err != nil {
		return 0, err
	}
	d, err := r.client.PTTL(ctx, key).Result()
	if err != nil {
		return 0, wrapErr("pttl", err)
	}
	return d, nil
}

// SetIfAbsent 使用 SET NX PX，记录与过期时间一次写入。
func (r *Redis) SetIfAbsent(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	if err := r.check(key); err != nil {
		return false, err
	}
	if ttl <= 0 {
		return false, ErrInvalidTTL
	}
	ok, err := r.client.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		return false, wrapErr("setnx", err)
	}
	return ok, nil
}

// CompareAndDelete 通过 Lua 脚本原子地比较并删除。
func (r *Redis) CompareAndDelete(ctx context.Context, key string, expected []byte) (bool, error) {
	if err := r.check(key); err != nil {
		return false, err
	}
	n, err := compareAndDeleteScript.Run(ctx, r.client, []string{key}, expected).Int64()
	if err != nil {
		return false, wrapErr("compare-and-delete", err)
	}
	return n == 1, nil
}

// CompareAndExpire 通过 Lua 脚本原子地比较并续期。
func (r *Redis) CompareAndExpire(ctx context.Context, key string, expected []byte, ttl time.Duration) (bool, error) {
	if err := r.check(key); err != nil {
		return false, err
	}
	if ttl <= 0 {
		return false, ErrInvalidTTL
	}
	n, err := compareAndExpireScript.Run(ctx, r.client, []string{key}, expected, ttl.Milliseconds()).Int64()
	if err != nil {
		return false, wrapErr("compare-and-expire", err)
	}
	return n == 1, nil
}

// Health 对 Redis 执行 PING。
func (r *Redis) Health(ctx context.Context) error {
	if r.closed.Load() {
		return ErrClosed
	}
	return wrapErr("ping", r.client.Ping(ctx).Err())
}

// Close 标记 Store 已关闭，不关闭底层客户端。
func (r *Redis) Close() error {
	r.closed.Store(true)
	return nil
}

func (r *Redis) check(key string) error {
	if r.closed.Load() {
		return ErrClosed
	}
	return validateKey(key)
}
