package xpool

import "errors"

var (
	// ErrNilHandler handler 为 nil。
	ErrNilHandler = errors.New("xpool: handler cannot be nil")

	// ErrInvalidWorkers worker 数必须为正。
	ErrInvalidWorkers = errors.New("xpool: invalid worker count")

	// ErrInvalidQueueSize 队列容量必须为正。
	ErrInvalidQueueSize = errors.New("xpool: invalid queue size")

	// ErrQueueFull 队列已满，任务被拒绝（不阻塞、不丢弃旧任务）。
	ErrQueueFull = errors.New("xpool: queue is full")

	// ErrPoolStopped Shutdown 之后提交的任务。
	ErrPoolStopped = errors.New("xpool: pool is stopped")
)
