package xcache

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/omeyang/xguard/pkg/distributed/xdlock"
	"github.com/omeyang/xguard/pkg/observability/xmetrics"
	"github.com/omeyang/xguard/pkg/resilience/xbreaker"
	"github.com/omeyang/xguard/pkg/resilience/xlimit"
	"github.com/omeyang/xguard/pkg/resilience/xretry"
)

// =============================================================================
// 默认值
// =============================================================================

const (
	// DefaultNullTTL 空值标记的过期时间。
	DefaultNullTTL = 2 * time.Minute

	// DefaultTTL 调用方未指定 ttl（<= 0）时的数据过期时间。
	DefaultTTL = 30 * time.Minute

	// DefaultLockLease 重建锁的租约。
	DefaultLockLease = 10 * time.Second

	// DefaultRetryInterval 互斥重建时未抢到锁的基础等待间隔。
	DefaultRetryInterval = 50 * time.Millisecond

	// DefaultLoadTimeout 后台重建及 singleflight 回源的独立超时。
	DefaultLoadTimeout = 30 * time.Second

	// DefaultRebuildWorkers 重建 worker 数。
	DefaultRebuildWorkers = 10

	// DefaultRebuildQueueSize 重建队列容量。
	DefaultRebuildQueueSize = 100

	// DefaultLocalTTL 本地近端缓存的过期时间。
	DefaultLocalTTL = 10 * time.Second

	// DefaultLocalMaxCost 本地近端缓存容量（字节）。
	DefaultLocalMaxCost = 32 << 20

	// retryJitter RetryInterval 的抖动比例（±30%）。
	retryJitter = 0.3

	// maxRetryWaitFactor 未配置 MaxRetryWait 时取 LockLease 的倍数。
	maxRetryWaitFactor = 3
)

// =============================================================================
// 选项
// =============================================================================

// Option Client 配置选项。
type Option func(*options)

type options struct {
	locker   xdlock.Locker
	logger   *slog.Logger
	observer xmetrics.Observer

	nullTTL       time.Duration
	defaultTTL    time.Duration
	lockLease     time.Duration
	retryInterval time.Duration
	maxRetryWait  time.Duration
	loadTimeout   time.Duration

	rebuildWorkers   int
	rebuildQueueSize int

	singleflight bool

	localCache   bool
	localTTL     time.Duration
	localMaxCost int64

	breaker *xbreaker.Breaker
	limiter xlimit.Limiter
	retryer *xretry.Retryer

	now func() time.Time
}

func defaultOptions() *options {
	return &options{
		logger:           slog.Default(),
		observer:         xmetrics.NoopObserver{},
		nullTTL:          DefaultNullTTL,
		defaultTTL:       DefaultTTL,
		lockLease:        DefaultLockLease,
		retryInterval:    DefaultRetryInterval,
		loadTimeout:      DefaultLoadTimeout,
		rebuildWorkers:   DefaultRebuildWorkers,
		rebuildQueueSize: DefaultRebuildQueueSize,
		localTTL:         DefaultLocalTTL,
		localMaxCost:     DefaultLocalMaxCost,
		now:              time.Now,
	}
}

// validate 汇总所有配置错误。
func (o *options) validate() error {
	var errs []error
	if o.nullTTL <= 0 {
		errs = append(errs, fmt.Errorf("null ttl must be positive, got %s", o.nullTTL))
	}
	if o.defaultTTL <= 0 {
		errs = append(errs, fmt.Errorf("default ttl must be positive, got %s", o.defaultTTL))
	}
	if o.lockLease <= 0 {
		errs = append(errs, fmt.Errorf("lock lease must be positive, got %s", o.lockLease))
	}
	if o.retryInterval <= 0 {
		errs = append(errs, fmt.Errorf("retry interval must be positive, got %s", o.retryInterval))
	}
	if o.maxRetryWait < 0 {
		errs = append(errs, fmt.Errorf("max retry wait must not be negative, got %s", o.maxRetryWait))
	}
	if o.rebuildWorkers <= 0 {
		errs = append(errs, fmt.Errorf("rebuild workers must be positive, got %d", o.rebuildWorkers))
	}
	if o.rebuildQueueSize <= 0 {
		errs = append(errs, fmt.Errorf("rebuild queue size must be positive, got %d", o.rebuildQueueSize))
	}
	if o.localCache && (o.localTTL <= 0 || o.localMaxCost <= 0) {
		errs = append(errs, errors.New("local cache ttl and max cost must be positive"))
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
}

// retryWaitLimit 互斥重建的总等待上限。
func (o *options) retryWaitLimit() time.Duration {
	if o.maxRetryWait > 0 {
		return o.maxRetryWait
	}
	return maxRetryWaitFactor * o.lockLease
}

// WithLocker 设置重建锁实现。默认基于同一个 Store 的 xdlock.StoreLocker。
func WithLocker(locker xdlock.Locker) Option {
	return func(o *options) {
		o.locker = locker
	}
}

// WithLogger 设置日志记录器，默认 slog.Default()。
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithObserver 设置观测器，默认 NoopObserver。
func WithObserver(observer xmetrics.Observer) Option {
	return func(o *options) {
		if observer != nil {
			o.observer = observer
		}
	}
}

// WithNullTTL 设置空值标记的过期时间。
func WithNullTTL(ttl time.Duration) Option {
	return func(o *options) {
		o.nullTTL = ttl
	}
}

// WithDefaultTTL 设置调用方 ttl <= 0 时使用的数据过期时间。
func WithDefaultTTL(ttl time.Duration) Option {
	return func(o *options) {
		o.defaultTTL = ttl
	}
}

// WithLockLease 设置重建锁租约。
func WithLockLease(lease time.Duration) Option {
	return func(o *options) {
		o.lockLease = lease
	}
}

// WithRetryInterval 设置互斥重建的基础等待间隔，实际等待带 ±30% 抖动。
func WithRetryInterval(d time.Duration) Option {
	return func(o *options) {
		o.retryInterval = d
	}
}

// WithMaxRetryWait 设置互斥重建的总等待上限，0 表示 3 倍锁租约。
func WithMaxRetryWait(d time.Duration) Option {
	return func(o *options) {
		o.maxRetryWait = d
	}
}

// WithLoadTimeout 设置后台重建与合并回源的独立超时。
func WithLoadTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.loadTimeout = d
		}
	}
}

// WithRebuildPool 设置重建 worker 数与队列容量。
func WithRebuildPool(workers, queueSize int) Option {
	return func(o *options) {
		o.rebuildWorkers = workers
		o.rebuildQueueSize = queueSize
	}
}

// WithSingleflight 启用进程内回源合并，叠加在跨进程锁之上。
func WithSingleflight() Option {
	return func(o *options) {
		o.singleflight = true
	}
}

// WithLocalCache 启用 ristretto 近端缓存，只缓存普通值（不含空值标记和逻辑过期包装）。
// ristretto 写入异步，刚写入的值可能短暂不可见。
//
// 近端缓存只在本进程内失效：Invalidate、UpdateThrough 删除共享 Store 的 key
// 并清掉本进程的近端条目，但其他进程的近端缓存不会收到通知，
// 在 ttl 到期前仍可能返回旧值。需要跨进程写后即读的场景不要启用，
// 或把 ttl 设成可接受的陈旧窗口。
func WithLocalCache(ttl time.Duration, maxCost int64) Option {
	return func(o *options) {
		o.localCache = true
		o.localTTL = ttl
		o.localMaxCost = maxCost
	}
}

// WithLoadBreaker 为回源加熔断器。熔断打开时直接返回 ErrLoadFailed，不写空值标记。
func WithLoadBreaker(b *xbreaker.Breaker) Option {
	return func(o *options) {
		o.breaker = b
	}
}

// WithLoadLimiter 为回源加限流，按缓存 key 计数。
func WithLoadLimiter(l xlimit.Limiter) Option {
	return func(o *options) {
		o.limiter = l
	}
}

// WithInvalidateRetryer 设置写路径删除缓存的重试策略，默认 3 次指数退避。
func WithInvalidateRetryer(r *xretry.Retryer) Option {
	return func(o *options) {
		o.retryer = r
	}
}

// WithClock 设置逻辑过期使用的时钟，主要用于测试。
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}
