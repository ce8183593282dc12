package xlimit

import "errors"

var (
	// ErrRateLimited 请求被限流。
	ErrRateLimited = errors.New("xlimit: rate limited")

	// ErrBackend 限流后端出错且配置为 fail closed。
	ErrBackend = errors.New("xlimit: backend error")

	// ErrNilClient 传入的客户端为 nil。
	ErrNilClient = errors.New("xlimit: nil client")

	// ErrInvalidLimit 限流参数非法。
	ErrInvalidLimit = errors.New("xlimit: invalid limit")
)

// IsRateLimited 判断错误是否为限流拒绝。
func IsRateLimited(err error) bool {
	return errors.Is(err, ErrRateLimited)
}
