package xdlock

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultKeyPrefix 锁 key 的默认前缀。
const DefaultKeyPrefix = "lock:"

// Locker 分布式锁。
type Locker interface {
	// TryLock 非阻塞地获取名为 name 的锁，租约为 lease。
	// 锁被占用时返回 (nil, nil)；存储出错时返回 (nil, err)，绝不返回 handle。
	TryLock(ctx context.Context, name string, lease time.Duration) (LockHandle, error)
}

// LockHandle 一次成功获取锁的凭证。
type LockHandle interface {
	// Unlock 释放锁。只有记录中的 token 仍是本 handle 的 token 时才删除，
	// 否则返回 ErrNotLocked 且不影响当前持有者。
	Unlock(ctx context.Context) error

	// Extend 按获取时的租约续期，锁已失去时返回 ErrNotLocked。
	Extend(ctx context.Context) error

	// Key 返回完整的锁 key（含前缀）。
	Key() string

	// Token 返回本次获取的唯一标识。
	Token() string
}

// =============================================================================
// 选项
// =============================================================================

// Option Locker 配置选项，所有后端共用。
type Option func(*options)

type options struct {
	keyPrefix  string
	instanceID string
	logger     *slog.Logger
}

func defaultOptions() *options {
	return &options{
		keyPrefix:  DefaultKeyPrefix,
		instanceID: InstanceID(),
		logger:     slog.Default(),
	}
}

func applyOptions(opts []Option) *options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithKeyPrefix 设置锁 key 前缀，默认 "lock:"。
func WithKeyPrefix(prefix string) Option {
	return func(o *options) {
		o.keyPrefix = prefix
	}
}

// WithInstanceID 设置进程标识，作为 token 的前缀。
func WithInstanceID(id string) Option {
	return func(o *options) {
		if id != "" {
			o.instanceID = id
		}
	}
}

// WithLogger 设置日志器，WithLock 释放失败时使用。nil 忽略。
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// loggerProvider 由各 Locker 实现，WithLock 借此取得配置的日志器。
type loggerProvider interface {
	Logger() *slog.Logger
}

// =============================================================================
// Token 生成
// =============================================================================

var (
	instanceOnce sync.Once
	instanceID   string
)

// InstanceID 返回当前进程的标识：hostname:pid:随机后缀。
// 随机后缀保证进程重启或容器复用 pid 时标识不重复。
func InstanceID() string {
	instanceOnce.Do(func() {
		hostname, err := os.Hostname()
		if err != nil || hostname == "" {
			hostname = "unknown"
		}
		instanceID = fmt.Sprintf("%s:%d:%s", hostname, os.Getpid(), uuid.NewString()[:8])
	})
	return instanceID
}

// newToken 生成一次获取的 token：{instanceID}-{uuid}。
func (o *options) newToken() string {
	return o.instanceID + "-" + uuid.NewString()
}

func validate(name string, lease time.Duration) error {
	if strings.TrimSpace(name) == "" {
		return ErrEmptyKey
	}
	if lease <= 0 {
		return ErrInvalidLease
	}
	return nil
}
