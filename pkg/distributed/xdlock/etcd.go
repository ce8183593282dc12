package xdlock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync/atomic"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/client/v3/concurrency"
)

// =============================================================================
// etcd 实现
// =============================================================================

// EtcdLocker 基于 etcd concurrency 的锁。
//
// 每次获取创建一个租约为 lease（向上取整到秒）的 Session。
// Session 在持有期间自动续约，进程崩溃后租约到期，锁随之释放。
type EtcdLocker struct {
	client *clientv3.Client
	opts   *options
}

var _ Locker = (*EtcdLocker)(nil)

// Logger 返回 WithLogger 配置的日志器。
func (l *EtcdLocker) Logger() *slog.Logger { return l.opts.logger }

// NewEtcdLocker 创建 etcd 锁。client 的生命周期由调用方管理。
func NewEtcdLocker(client *clientv3.Client, opts ...Option) (*EtcdLocker, error) {
	if client == nil {
		return nil, ErrNilClient
	}
	return &EtcdLocker{client: client, opts: applyOptions(opts)}, nil
}

// TryLock 非阻塞获取锁。
func (l *EtcdLocker) TryLock(ctx context.Context, name string, lease time.Duration) (LockHandle, error) {
	if err := validate(name, lease); err != nil {
		return nil, err
	}

	session, err := concurrency.NewSession(l.client, concurrency.WithTTL(leaseSeconds(lease)))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLockFailed, err)
	}

	key := l.opts.keyPrefix + name
	mutex := concurrency.NewMutex(session, key)
	if err := mutex.TryLock(ctx); err != nil {
		_ = session.Close()
		if errors.Is(err, concurrency.ErrLocked) {
			return nil, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %w", ErrLockFailed, err)
	}

	return &etcdHandle{session: session, mutex: mutex, key: key}, nil
}

// leaseSeconds etcd 租约以秒为单位，最小 1 秒。
func leaseSeconds(lease time.Duration) int {
	return max(int(math.Ceil(lease.Seconds())), 1)
}

// etcdHandle EtcdLocker 的 LockHandle。
type etcdHandle struct {
	session  *concurrency.Session
	mutex    *concurrency.Mutex
	key      string
	released atomic.Bool
}

// Unlock 删除本次持有的 key 并撤销租约。
func (h *etcdHandle) Unlock(ctx context.Context) error {
	if h.released.Swap(true) {
		return ErrNotLocked
	}
	select {
	case <-h.session.Done():
		return ErrNotLocked
	default:
	}
	err := h.mutex.Unlock(ctx)
	closeErr := h.session.Close()
	if err != nil {
		if errors.Is(err, concurrency.ErrLockReleased) {
			return ErrNotLocked
		}
		return err
	}
	return closeErr
}

// Extend Session 自动续约，这里只检查 Session 是否仍然有效。
func (h *etcdHandle) Extend(context.Context) error {
	if h.released.Load() {
		return ErrNotLocked
	}
	select {
	case <-h.session.Done():
		return ErrNotLocked
	default:
		return nil
	}
}

func (h *etcdHandle) Key() string { return h.key }

// Token 返回 etcd 中实际写入的 key，包含租约 ID，每次获取唯一。
func (h *etcdHandle) Token() string { return h.mutex.Key() }
