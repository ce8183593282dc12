package xbreaker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"
)

// State 熔断器状态。
type State = gobreaker.State

// Counts 熔断器计数。
type Counts = gobreaker.Counts

const (
	StateClosed   = gobreaker.StateClosed
	StateHalfOpen = gobreaker.StateHalfOpen
	StateOpen     = gobreaker.StateOpen
)

// TripPolicy 决定何时从关闭进入打开状态。
type TripPolicy func(counts Counts) bool

// ConsecutiveFailures 连续失败 n 次后熔断。
func ConsecutiveFailures(n uint32) TripPolicy {
	return func(c Counts) bool {
		return c.ConsecutiveFailures >= n
	}
}

// FailureRatio 请求数达到 minRequests 且失败率达到 ratio 后熔断。
func FailureRatio(ratio float64, minRequests uint32) TripPolicy {
	return func(c Counts) bool {
		if c.Requests < minRequests || c.Requests == 0 {
			return false
		}
		return float64(c.TotalFailures)/float64(c.Requests) >= ratio
	}
}

// Breaker 熔断器。
type Breaker struct {
	name        string
	trip        TripPolicy
	timeout     time.Duration
	interval    time.Duration
	maxRequests uint32
	logger      *slog.Logger

	cb *gobreaker.CircuitBreaker[any]
}

// Option 熔断器配置选项。
type Option func(*Breaker)

// WithTripPolicy 设置熔断策略，默认 ConsecutiveFailures(5)。
func WithTripPolicy(p TripPolicy) Option {
	return func(b *Breaker) {
		if p != nil {
			b.trip = p
		}
	}
}

// WithTimeout 设置打开状态持续时间，默认 30 秒。
func WithTimeout(d time.Duration) Option {
	return func(b *Breaker) {
		if d > 0 {
			b.timeout = d
		}
	}
}

// WithInterval 设置关闭状态下计数清零周期，0 表示不清零。
func WithInterval(d time.Duration) Option {
	return func(b *Breaker) {
		b.interval = d
	}
}

// WithMaxRequests 设置半开状态允许的探测请求数，默认 1。
func WithMaxRequests(n uint32) Option {
	return func(b *Breaker) {
		if n > 0 {
			b.maxRequests = n
		}
	}
}

// WithLogger 设置状态变化日志记录器。
func WithLogger(logger *slog.Logger) Option {
	return func(b *Breaker) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// New 创建熔断器。
func New(name string, opts ...Option) *Breaker {
	b := &Breaker{
		name:        name,
		trip:        ConsecutiveFailures(5),
		timeout:     30 * time.Second,
		maxRequests: 1,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}

	b.cb = gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        b.name,
		MaxRequests: b.maxRequests,
		Interval:    b.interval,
		Timeout:     b.timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return b.trip(counts)
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			b.logger.Warn("xbreaker: state changed",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()))
		},
	})
	return b
}

// Name 返回熔断器名称。
func (b *Breaker) Name() string { return b.name }

// State 返回当前状态。
func (b *Breaker) State() State { return b.cb.State() }

// Counts 返回当前计数。
func (b *Breaker) Counts() Counts { return b.cb.Counts() }

// Do 在熔断器保护下执行 fn。
func (b *Breaker) Do(fn func() error) error {
	_, err := b.cb.Execute(func() (any, error) {
		return nil, fn()
	})
	return err
}

// Execute 在熔断器保护下执行带返回值的 fn。
// 熔断器拒绝时返回 ErrOpen 或 ErrTooManyRequests，可用 IsRejected 判断。
func Execute[T any](b *Breaker, fn func() (T, error)) (T, error) {
	var result T
	err := b.Do(func() error {
		v, err := fn()
		result = v
		return err
	})
	return result, err
}
