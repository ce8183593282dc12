package xdlock

import "errors"

// =============================================================================
// 参数错误
// =============================================================================

var (
	// ErrEmptyKey 锁名为空。
	ErrEmptyKey = errors.New("xdlock: key must not be empty")

	// ErrInvalidLease 租约非正。
	ErrInvalidLease = errors.New("xdlock: lease must be positive")

	// ErrNilStore 传入的 Store 为 nil。
	ErrNilStore = errors.New("xdlock: store is nil")

	// ErrNilClient 传入的客户端为 nil。
	ErrNilClient = errors.New("xdlock: client is nil")
)

// =============================================================================
// 运行时错误
// =============================================================================

var (
	// ErrLockHeld 锁被其他持有者占用。
	// TryLock 不返回此错误（以 (nil, nil) 表示），WithLock 在未获取到锁时返回。
	ErrLockHeld = errors.New("xdlock: lock is held by another owner")

	// ErrLockFailed 获取锁时存储出错。
	ErrLockFailed = errors.New("xdlock: failed to acquire lock")

	// ErrNotLocked 锁已不属于当前 handle（已释放、已过期或被他人持有）。
	ErrNotLocked = errors.New("xdlock: not locked")
)
