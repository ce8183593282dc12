package xretry

import (
	"context"
	"errors"
	"time"

	retry "github.com/avast/retry-go/v5"
)

// ErrNilFunc 表示传入的函数为 nil。
var ErrNilFunc = errors.New("xretry: nil func")

// Retryer 重试执行器，构造后只读，可并发使用。
type Retryer struct {
	attempts uint
	delay    time.Duration
	maxDelay time.Duration
	retryIf  func(error) bool
	onRetry  func(attempt uint, err error)
}

// Option Retryer 配置选项。
type Option func(*Retryer)

// WithAttempts 设置最大尝试次数（含首次），默认 3。
func WithAttempts(n uint) Option {
	return func(r *Retryer) {
		if n > 0 {
			r.attempts = n
		}
	}
}

// WithDelay 设置初始退避间隔，默认 20ms。
func WithDelay(d time.Duration) Option {
	return func(r *Retryer) {
		if d > 0 {
			r.delay = d
		}
	}
}

// WithMaxDelay 设置单次退避上限，默认 500ms。
func WithMaxDelay(d time.Duration) Option {
	return func(r *Retryer) {
		if d > 0 {
			r.maxDelay = d
		}
	}
}

// WithRetryIf 设置可重试判断，默认除 context 错误外都重试。
func WithRetryIf(f func(error) bool) Option {
	return func(r *Retryer) {
		if f != nil {
			r.retryIf = f
		}
	}
}

// WithOnRetry 设置每次失败后的回调，attempt 从 0 开始。
func WithOnRetry(f func(attempt uint, err error)) Option {
	return func(r *Retryer) {
		r.onRetry = f
	}
}

// New 创建 Retryer。
func New(opts ...Option) *Retryer {
	r := &Retryer{
		attempts: 3,
		delay:    20 * time.Millisecond,
		maxDelay: 500 * time.Millisecond,
		retryIf: func(err error) bool {
			return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
		},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Attempts 返回最大尝试次数。
func (r *Retryer) Attempts() uint { return r.attempts }

// Do 执行 fn 直到成功、不可重试或次数耗尽，返回最后一次错误。
func (r *Retryer) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if fn == nil {
		return ErrNilFunc
	}
	opts := []retry.Option{
		retry.Context(ctx),
		retry.Attempts(r.attempts),
		retry.Delay(r.delay),
		retry.MaxDelay(r.maxDelay),
		retry.MaxJitter(r.delay),
		retry.DelayType(retry.CombineDelay(retry.BackOffDelay, retry.RandomDelay)),
		retry.RetryIf(r.retryIf),
		retry.LastErrorOnly(true),
	}
	if r.onRetry != nil {
		opts = append(opts, retry.OnRetry(r.onRetry))
	}
	return retry.New(opts...).Do(func() error {
		return fn(ctx)
	})
}

// Unrecoverable 包装不应重试的错误。
func Unrecoverable(err error) error {
	return retry.Unrecoverable(err)
}
