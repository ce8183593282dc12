package xkv

import (
	"context"
	"time"
)

// TTL 查询的特殊返回值，与 Redis PTTL 语义一致。
const (
	// NoExpiry 表示 key 存在但没有过期时间。
	NoExpiry = time.Duration(-1)

	// KeyMissing 表示 key 不存在。
	KeyMissing = time.Duration(-2)
)

// Store 键值存储接口。
//
// 所有方法并发安全。found=false 与 err != nil 互斥：
// 存储故障时返回包装了 ErrUnavailable 的错误，而不是"不存在"。
type Store interface {
	// Get 读取 key。key 不存在时返回 (nil, false, nil)。
	// 空值（长度为 0）是合法值，found 为 true。
	Get(ctx context.Context, key string) (value []byte, found bool, err error)

	// Set 写入 key。ttl <= 0 表示永不过期。
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete 删除 key，返回是否确实删除了记录。
	Delete(ctx context.Context, key string) (bool, error)

	// Exists 判断 key 是否存在。
	Exists(ctx context.Context, key string) (bool, error)

	// TTL 返回剩余过期时间；NoExpiry 表示永不过期，KeyMissing 表示不存在。
	TTL(ctx context.Context, key string) (time.Duration, error)

	// SetIfAbsent 原子地"不存在才写入"，过期时间在同一操作中设置。
	// ttl 必须为正，返回是否由本次调用创建了记录。
	SetIfAbsent(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)

	// CompareAndDelete 仅当当前值等于 expected 时删除，返回是否删除。
	CompareAndDelete(ctx context.Context, key string, expected []byte) (bool, error)

	// CompareAndExpire 仅当当前值等于 expected 时重设过期时间，返回是否生效。
	CompareAndExpire(ctx context.Context, key string, expected []byte, ttl time.Duration) (bool, error)

	// Close 关闭 Store。不会关闭外部传入的客户端。
	Close() error
}

func validateKey(key string) error {
	if key == "" {
		return ErrEmptyKey
	}
	return nil
}
