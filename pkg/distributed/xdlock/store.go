package xdlock

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/omeyang/xguard/pkg/storage/xkv"
)

// =============================================================================
// 基于 xkv.Store 的实现
// =============================================================================

// StoreLocker 基于 xkv.Store 的锁。
//
// 获取：SetIfAbsent(lock:{name}, token, lease)，记录与过期时间一次写入。
// 释放：CompareAndDelete(lock:{name}, token)，token 不匹配时不做任何修改。
type StoreLocker struct {
	store xkv.Store
	opts  *options
}

var _ Locker = (*StoreLocker)(nil)

// Logger 返回 WithLogger 配置的日志器。
func (l *StoreLocker) Logger() *slog.Logger { return l.opts.logger }

// NewStoreLocker 创建基于 Store 的锁。
func NewStoreLocker(store xkv.Store, opts ...Option) (*StoreLocker, error) {
	if store == nil {
		return nil, ErrNilStore
	}
	return &StoreLocker{store: store, opts: applyOptions(opts)}, nil
}

// TryLock 非阻塞获取锁。
func (l *StoreLocker) TryLock(ctx context.Context, name string, lease time.Duration) (LockHandle, error) {
	if err := validate(name, lease); err != nil {
		return nil, err
	}

	key := l.opts.keyPrefix + name
	token := l.opts.newToken()

	ok, err := l.store.SetIfAbsent(ctx, key, []byte(token), lease)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLockFailed, err)
	}
	if !ok {
		return nil, nil
	}

	return &storeHandle{
		store: l.store,
		key:   key,
		token: token,
		lease: lease,
	}, nil
}

// storeHandle StoreLocker 的 LockHandle。
type storeHandle struct {
	store xkv.Store
	key   string
	token string
	lease time.Duration
}

// Unlock 比较 token 后删除。
func (h *storeHandle) Unlock(ctx context.Context) error {
	ok, err := h.store.CompareAndDelete(ctx, h.key, []byte(h.token))
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotLocked
	}
	return nil
}

// Extend 比较 token 后重设租约。
func (h *storeHandle) Extend(ctx context.Context) error {
	ok, err := h.store.CompareAndExpire(ctx, h.key, []byte(h.token), h.lease)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotLocked
	}
	return nil
}

func (h *storeHandle) Key() string   { return h.key }
func (h *storeHandle) Token() string { return h.token }
