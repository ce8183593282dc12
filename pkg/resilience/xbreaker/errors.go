package xbreaker

import (
	"errors"

	"github.com/sony/gobreaker/v2"
)

// ErrOpen 熔断器处于打开状态，请求被拒绝。
var ErrOpen = gobreaker.ErrOpenState

// ErrTooManyRequests 半开状态下探测请求数超限。
var ErrTooManyRequests = gobreaker.ErrTooManyRequests

// IsRejected 判断错误是否由熔断器拒绝产生（而非业务函数本身的错误）。
func IsRejected(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}
