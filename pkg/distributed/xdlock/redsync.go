package xdlock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/go-redsync/redsync/v4"
	rsredis "github.com/go-redsync/redsync/v4/redis"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
)

// =============================================================================
// redsync 实现
// =============================================================================

// RedsyncLocker 基于 go-redsync 的锁。
// 单个客户端为标准 Redis 锁；多个客户端使用 Redlock（需过半节点成功）。
type RedsyncLocker struct {
	rs   *redsync.Redsync
	opts *options
}

var _ Locker = (*RedsyncLocker)(nil)

// Logger 返回 WithLogger 配置的日志器。
func (l *RedsyncLocker) Logger() *slog.Logger { return l.opts.logger }

// NewRedsyncLocker 创建 redsync 锁。
func NewRedsyncLocker(clients []redis.UniversalClient, opts ...Option) (*RedsyncLocker, error) {
	if len(clients) == 0 {
		return nil, ErrNilClient
	}
	pools := make([]rsredis.Pool, len(clients))
	for i, client := range clients {
		if client == nil {
			return nil, errors.Join(ErrNilClient, errors.New("client at index "+strconv.Itoa(i)+" is nil"))
		}
		pools[i] = goredis.NewPool(client)
	}
	return &RedsyncLocker{
		rs:   redsync.New(pools...),
		opts: applyOptions(opts),
	}, nil
}

// TryLock 只尝试一次，不在内部重试。
func (l *RedsyncLocker) TryLock(ctx context.Context, name string, lease time.Duration) (LockHandle, error) {
	if err := validate(name, lease); err != nil {
		return nil, err
	}

	key := l.opts.keyPrefix + name
	mutex := l.rs.NewMutex(key,
		redsync.WithExpiry(lease),
		redsync.WithTries(1),
		redsync.WithGenValueFunc(func() (string, error) {
			return l.opts.newToken(), nil
		}),
	)

	if err := mutex.TryLockContext(ctx); err != nil {
		// redsync 不会传递 context 错误，需要单独检查
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		var errTaken *redsync.ErrTaken
		if errors.As(err, &errTaken) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %w", ErrLockFailed, err)
	}

	return &redsyncHandle{mutex: mutex, key: key}, nil
}

// redsyncHandle RedsyncLocker 的 LockHandle。
type redsyncHandle struct {
	mutex *redsync.Mutex
	key   string
}

// Unlock 释放锁，redsync 内部同样使用比较删除脚本。
func (h *redsyncHandle) Unlock(ctx context.Context) error {
	ok, err := h.mutex.UnlockContext(ctx)
	if err != nil {
		return mapRedsyncLost(err)
	}
	if !ok {
		return ErrNotLocked
	}
	return nil
}

// Extend 按获取时的租约续期。
func (h *redsyncHandle) Extend(ctx context.Context) error {
	ok, err := h.mutex.ExtendContext(ctx)
	if err != nil {
		return mapRedsyncLost(err)
	}
	if !ok {
		return ErrNotLocked
	}
	return nil
}

func (h *redsyncHandle) Key() string   { return h.key }
func (h *redsyncHandle) Token() string { return h.mutex.Value() }

// mapRedsyncLost 将"锁已失去"类错误统一为 ErrNotLocked，其余保持原样。
func mapRedsyncLost(err error) error {
	var errTaken *redsync.ErrTaken
	if errors.As(err, &errTaken) ||
		errors.Is(err, redsync.ErrLockAlreadyExpired) ||
		errors.Is(err, redsync.ErrExtendFailed) {
		return fmt.Errorf("%w: %w", ErrNotLocked, err)
	}
	return err
}
