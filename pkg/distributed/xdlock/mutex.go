package xdlock

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// releaseTimeout 释放锁使用独立 context 时的超时。
const releaseTimeout = 5 * time.Second

// WithLock 在锁保护下执行 fn。
//
// 未获取到锁时返回 ErrLockHeld，不执行 fn。
// 无论 fn 是否出错都会释放锁；释放使用与调用方取消无关的 context，
// 释放失败只记录日志（使用 locker 的 WithLogger 配置，缺省为 slog.Default），
// 返回值以 fn 的结果为准。
func WithLock(ctx context.Context, locker Locker, name string, lease time.Duration, fn func(ctx context.Context) error) error {
	handle, err := locker.TryLock(ctx, name, lease)
	if err != nil {
		return err
	}
	if handle == nil {
		return ErrLockHeld
	}
	defer Release(ctx, handle, lockerLogger(locker))

	return fn(ctx)
}

// Release 用独立 context 释放锁并记录失败。
// 锁已过期（ErrNotLocked）记为 Info，其他错误记为 Warn。
func Release(ctx context.Context, handle LockHandle, logger *slog.Logger) {
	if handle == nil {
		return
	}
	unlockCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()

	if err := handle.Unlock(unlockCtx); err != nil {
		if logger == nil {
			logger = slog.Default()
		}
		if errors.Is(err, ErrNotLocked) {
			logger.Info("xdlock: lock lost before release",
				slog.String("key", handle.Key()))
			return
		}
		logger.Warn("xdlock: release failed",
			slog.String("key", handle.Key()),
			slog.Any("error", err))
	}
}

func lockerLogger(locker Locker) *slog.Logger {
	if p, ok := locker.(loggerProvider); ok {
		return p.Logger()
	}
	return slog.Default()
}
