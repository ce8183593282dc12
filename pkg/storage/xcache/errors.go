package xcache

import "errors"

// =============================================================================
// 参数错误
// =============================================================================

var (
	// ErrNilStore 存储为空。
	ErrNilStore = errors.New("xcache: nil store")

	// ErrNilLocker 锁为空。
	ErrNilLocker = errors.New("xcache: nil locker")

	// ErrNilClient Client 为空。
	ErrNilClient = errors.New("xcache: nil client")

	// ErrNilLoader 回源函数为空。
	ErrNilLoader = errors.New("xcache: nil loader")

	// ErrNilCodec 编解码器为空。
	ErrNilCodec = errors.New("xcache: nil codec")

	// ErrNilWriter 写函数为空。
	ErrNilWriter = errors.New("xcache: nil writer")

	// ErrInvalidConfig 配置无效。
	ErrInvalidConfig = errors.New("xcache: invalid config")
)

// =============================================================================
// 运行时错误
// =============================================================================

var (
	// ErrCacheUnavailable 缓存存储不可用。读路径上不会被当作未命中。
	ErrCacheUnavailable = errors.New("xcache: cache unavailable")

	// ErrLoadFailed 回源失败，包装 loader 返回的原始错误。
	ErrLoadFailed = errors.New("xcache: load failed")

	// ErrLockWaitTimeout 互斥重建时等待其他持锁者超过 MaxRetryWait。
	ErrLockWaitTimeout = errors.New("xcache: lock wait timeout")

	// ErrInvalidateFailed 权威写入已成功，但删除缓存 key 失败。
	ErrInvalidateFailed = errors.New("xcache: invalidate failed")

	// ErrEncode 值编码失败。
	ErrEncode = errors.New("xcache: encode failed")

	// ErrDecode 缓存内容解码失败。
	ErrDecode = errors.New("xcache: decode failed")

	// ErrClosed Client 已关闭。
	ErrClosed = errors.New("xcache: client closed")
)

// IsUnavailable 判断是否为缓存存储不可用。
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrCacheUnavailable)
}
