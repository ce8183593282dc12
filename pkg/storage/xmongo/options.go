package xmongo

import (
	"time"

	"github.com/omeyang/xguard/pkg/observability/xmetrics"
)

const (
	defaultHealthTimeout = 5 * time.Second

	defaultBatchSize = 1000

	// maxBatchSize 单批上限，避免单次请求逼近 16MB BSON 限制。
	maxBatchSize = 10000
)

// Option 配置 Client。
type Option func(*options)

type options struct {
	healthTimeout time.Duration
	writeTimeout  time.Duration
	observer      xmetrics.Observer
}

func defaultOptions() options {
	return options{
		healthTimeout: defaultHealthTimeout,
		observer:      xmetrics.NoopObserver{},
	}
}

// WithHealthTimeout 设置 Health 的超时，默认 5s。
func WithHealthTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.healthTimeout = d
		}
	}
}

// WithWriteTimeout 调用方未设置 deadline 时为 BulkInsert 兜底超时，默认不限制。
func WithWriteTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.writeTimeout = d
		}
	}
}

// WithObserver 设置观测接口。
func WithObserver(observer xmetrics.Observer) Option {
	return func(o *options) {
		if observer != nil {
			o.observer = observer
		}
	}
}
