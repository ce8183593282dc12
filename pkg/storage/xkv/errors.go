package xkv

import (
	"context"
	"errors"
	"fmt"
)

// =============================================================================
// 参数错误
// =============================================================================

var (
	// ErrNilClient 表示传入的客户端为 nil。
	ErrNilClient = errors.New("xkv: nil client")

	// ErrEmptyKey 表示 key 为空。
	ErrEmptyKey = errors.New("xkv: empty key")

	// ErrInvalidTTL 表示需要过期时间的操作收到了非正 TTL。
	ErrInvalidTTL = errors.New("xkv: ttl must be positive")

	// ErrInvalidOption 表示构造选项非法。
	ErrInvalidOption = errors.New("xkv: invalid option")
)

// =============================================================================
// 运行时错误
// =============================================================================

var (
	// ErrUnavailable 表示存储不可达（网络错误、连接关闭等）。
	ErrUnavailable = errors.New("xkv: store unavailable")

	// ErrClosed 表示 Store 已关闭。
	ErrClosed = errors.New("xkv: store closed")
)

// wrapErr 将底层错误包装为 ErrUnavailable，context 错误保持原样。
func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrUnavailable, op, err)
}

// IsUnavailable 判断错误是否为存储不可达。
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}
