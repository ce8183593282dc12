package xpool

import "log/slog"

// Option Pool 配置选项。
type Option func(*options)

type options struct {
	logger *slog.Logger
	name   string
}

// WithLogger 设置日志记录器，默认 slog.Default()。
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithName 设置 pool 名称，用于区分多个实例的日志。
func WithName(name string) Option {
	return func(o *options) {
		o.name = name
	}
}
