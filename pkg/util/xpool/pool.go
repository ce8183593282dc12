package xpool

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
)

const (
	maxWorkers   = 1 << 16
	maxQueueSize = 1 << 24
)

// Pool 有界 worker pool。
type Pool[T any] struct {
	workers int
	handler func(T)
	queue   chan T
	opts    *options

	mu      sync.RWMutex // 保护 stopped 与 queue 的关闭
	stopped bool

	wg       sync.WaitGroup
	done     chan struct{}
	stopOnce sync.Once

	submitted atomic.Uint64
	rejected  atomic.Uint64
	panics    atomic.Uint64
}

var _ io.Closer = (*Pool[int])(nil)

// Stats Pool 运行计数快照。
type Stats struct {
	Workers   int
	QueueSize int
	Queued    int
	Submitted uint64
	Rejected  uint64
	Panics    uint64
}

// New 创建并启动 Pool。
// workers 取值 [1, 65536]，queueSize 取值 [1, 16777216]。
func New[T any](workers, queueSize int, handler func(T), opts ...Option) (*Pool[T], error) {
	if handler == nil {
		return nil, ErrNilHandler
	}
	if workers < 1 || workers > maxWorkers {
		return nil, fmt.Errorf("%w: %d", ErrInvalidWorkers, workers)
	}
	if queueSize < 1 || queueSize > maxQueueSize {
		return nil, fmt.Errorf("%w: %d", ErrInvalidQueueSize, queueSize)
	}

	o := &options{logger: slog.Default()}
	for _, opt := range opts {
		opt(o)
	}

	p := &Pool[T]{
		workers: workers,
		handler: handler,
		queue:   make(chan T, queueSize),
		opts:    o,
		done:    make(chan struct{}),
	}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker()
	}
	go func() {
		p.wg.Wait()
		close(p.done)
	}()
	return p, nil
}

// worker 读取队列直到队列关闭，保证关闭时队列中的任务被处理完。
func (p *Pool[T]) worker() {
	defer p.wg.Done()
	for task := range p.queue {
		p.run(task)
	}
}

func (p *Pool[T]) run(task T) {
	defer func() {
		if r := recover(); r != nil {
			p.panics.Add(1)
			p.opts.logger.Error("xpool: worker panic recovered",
				slog.String("pool", p.opts.name),
				slog.String("task_type", fmt.Sprintf("%T", task)),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())))
		}
	}()
	p.handler(task)
}

// Submit 非阻塞提交任务。
// 队列满返回 ErrQueueFull，已关闭返回 ErrPoolStopped。
func (p *Pool[T]) Submit(task T) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.stopped {
		return ErrPoolStopped
	}
	select {
	case p.queue <- task:
		p.submitted.Add(1)
		return nil
	default:
		p.rejected.Add(1)
		return ErrQueueFull
	}
}

// Shutdown 停止接收新任务并等待已提交任务完成。
// ctx 到期时立即返回 ctx 错误，残留 worker 会在后台处理完剩余任务，可通过 Done 等待。
func (p *Pool[T]) Shutdown(ctx context.Context) error {
	p.stopOnce.Do(func() {
		p.mu.Lock()
		p.stopped = true
		close(p.queue)
		p.mu.Unlock()
	})

	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close 等价于 Shutdown(context.Background())。
func (p *Pool[T]) Close() error {
	return p.Shutdown(context.Background())
}

// Done 返回在所有 worker 退出后关闭的 channel。
func (p *Pool[T]) Done() <-chan struct{} {
	return p.done
}

// Stats 返回运行计数快照。
func (p *Pool[T]) Stats() Stats {
	return Stats{
		Workers:   p.workers,
		QueueSize: cap(p.queue),
		Queued:    len(p.queue),
		Submitted: p.submitted.Load(),
		Rejected:  p.rejected.Load(),
		Panics:    p.panics.Load(),
	}
}
