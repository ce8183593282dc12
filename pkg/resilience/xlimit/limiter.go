package xlimit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-redis/redis_rate/v10"
	"github.com/redis/go-redis/v9"
)

// Limiter 限流器。
type Limiter interface {
	// Allow 消耗 key 的一个配额。被限流时返回包装了 ErrRateLimited 的错误。
	Allow(ctx context.Context, key string) error
}

// Limit 限流规则：每个 Period 允许 Rate 次，突发上限 Burst。
type Limit struct {
	Rate   int
	Burst  int
	Period time.Duration
}

// PerSecond 每秒 rate 次，突发等于 rate。
func PerSecond(rate int) Limit {
	return Limit{Rate: rate, Burst: rate, Period: time.Second}
}

// PerMinute 每分钟 rate 次，突发等于 rate。
func PerMinute(rate int) Limit {
	return Limit{Rate: rate, Burst: rate, Period: time.Minute}
}

// Option 限流器配置选项。
type Option func(*RedisLimiter)

// WithKeyPrefix 设置限流 key 前缀，默认 "ratelimit:"。
func WithKeyPrefix(prefix string) Option {
	return func(l *RedisLimiter) {
		l.prefix = prefix
	}
}

// WithFailOpen 设置 Redis 出错时是否放行，默认 true。
func WithFailOpen(open bool) Option {
	return func(l *RedisLimiter) {
		l.failOpen = open
	}
}

// WithLogger 设置日志记录器。
func WithLogger(logger *slog.Logger) Option {
	return func(l *RedisLimiter) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// RedisLimiter 基于 redis_rate 的分布式限流器。
type RedisLimiter struct {
	limiter  *redis_rate.Limiter
	limit    redis_rate.Limit
	prefix   string
	failOpen bool
	logger   *slog.Logger
}

var _ Limiter = (*RedisLimiter)(nil)

// NewRedis 创建分布式限流器。
func NewRedis(client redis.UniversalClient, limit Limit, opts ...Option) (*RedisLimiter, error) {
	if client == nil {
		return nil, ErrNilClient
	}
	if limit.Rate <= 0 || limit.Period <= 0 {
		return nil, fmt.Errorf("%w: rate=%d period=%s", ErrInvalidLimit, limit.Rate, limit.Period)
	}
	if limit.Burst <= 0 {
		limit.Burst = limit.Rate
	}

	l := &RedisLimiter{
		limiter:  redis_rate.NewLimiter(client),
		limit:    redis_rate.Limit{Rate: limit.Rate, Burst: limit.Burst, Period: limit.Period},
		prefix:   "ratelimit:",
		failOpen: true,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Allow 消耗一个配额。
func (l *RedisLimiter) Allow(ctx context.Context, key string) error {
	res, err := l.limiter.Allow(ctx, l.prefix+key, l.limit)
	if err != nil {
		if l.failOpen {
			l.logger.Warn("xlimit: backend error, fail open",
				slog.String("key", key),
				slog.Any("error", err))
			return nil
		}
		return fmt.Errorf("%w: %w", ErrBackend, err)
	}
	if res.Allowed == 0 {
		return fmt.Errorf("%w: key=%s retry_after=%s", ErrRateLimited, key, res.RetryAfter)
	}
	return nil
}

// Reset 清除 key 的限流状态。
func (l *RedisLimiter) Reset(ctx context.Context, key string) error {
	return l.limiter.Reset(ctx, l.prefix+key)
}
