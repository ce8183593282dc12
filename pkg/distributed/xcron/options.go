package xcron

import (
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/omeyang/xguard/pkg/observability/xmetrics"
	"github.com/omeyang/xguard/pkg/resilience/xretry"
)

// 默认值
const (
	DefaultLockLease   = 5 * time.Minute
	DefaultLockTimeout = 5 * time.Second
	lockNamePrefix     = "cron:"
)

// =============================================================================
// 调度器选项
// =============================================================================

// Option 调度器选项。
type Option func(*schedulerOptions)

type schedulerOptions struct {
	logger   *slog.Logger
	observer xmetrics.Observer
	location *time.Location
	parser   cron.ScheduleParser
}

func defaultSchedulerOptions() *schedulerOptions {
	return &schedulerOptions{
		logger:   slog.Default(),
		observer: xmetrics.NoopObserver{},
		location: time.Local,
		parser:   cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
	}
}

// WithLogger 设置日志记录器，默认 slog.Default()。
func WithLogger(logger *slog.Logger) Option {
	return func(o *schedulerOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithObserver 设置观测器，每次执行生成一个 "xcron.run" 跨度。
func WithObserver(observer xmetrics.Observer) Option {
	return func(o *schedulerOptions) {
		if observer != nil {
			o.observer = observer
		}
	}
}

// WithLocation 设置时区，默认 time.Local。
func WithLocation(loc *time.Location) Option {
	return func(o *schedulerOptions) {
		if loc != nil {
			o.location = loc
		}
	}
}

// WithSeconds 启用秒级精度，cron 表达式需要 6 个字段。
func WithSeconds() Option {
	return func(o *schedulerOptions) {
		o.parser = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	}
}

// =============================================================================
// 任务选项
// =============================================================================

// JobOption 任务选项。
type JobOption func(*jobOptions)

type jobOptions struct {
	lockLease   time.Duration
	lockTimeout time.Duration
	timeout     time.Duration
	retryer     *xretry.Retryer
}

func defaultJobOptions() *jobOptions {
	return &jobOptions{
		lockLease:   DefaultLockLease,
		lockTimeout: DefaultLockTimeout,
	}
}

// WithLockLease 设置任务锁租约，默认 5 分钟。执行期间自动续期。
func WithLockLease(lease time.Duration) JobOption {
	return func(o *jobOptions) {
		if lease > 0 {
			o.lockLease = lease
		}
	}
}

// WithLockTimeout 设置获取锁的超时，默认 5 秒。
func WithLockTimeout(d time.Duration) JobOption {
	return func(o *jobOptions) {
		if d > 0 {
			o.lockTimeout = d
		}
	}
}

// WithTimeout 设置单次执行超时，默认不限。
func WithTimeout(d time.Duration) JobOption {
	return func(o *jobOptions) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithRetry 任务失败时按 retryer 重试，仍在同一次锁持有期内。
func WithRetry(r *xretry.Retryer) JobOption {
	return func(o *jobOptions) {
		o.retryer = r
	}
}
