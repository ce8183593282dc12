package xcron

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/omeyang/xguard/pkg/distributed/xdlock"
	"github.com/omeyang/xguard/pkg/observability/xmetrics"
)

// runner 实现 cron.Job：锁、续期、超时、重试。
type runner struct {
	s    *Scheduler
	name string
	fn   JobFunc
	opts *jobOptions
}

func (s *Scheduler) newRunner(name string, fn JobFunc, opts *jobOptions) *runner {
	return &runner{s: s, name: name, fn: fn, opts: opts}
}

// Run 由 cron 调度调用。
func (r *runner) Run() {
	_, _ = r.run(context.Background())
}

// run 执行一次。未获取到锁时返回 (false, nil)。
func (r *runner) run(parent context.Context) (bool, error) {
	logger := r.s.opts.logger
	handle, err := r.acquire(parent)
	if err != nil {
		r.s.stats.lockErrors.Add(1)
		logger.Warn("xcron: acquire lock failed, skipping",
			slog.String("job", r.name), slog.Any("error", err))
		return false, err
	}
	if handle == nil {
		r.s.stats.skips.Add(1)
		logger.Debug("xcron: lock held elsewhere, skipping", slog.String("job", r.name))
		return false, nil
	}
	defer xdlock.Release(parent, handle, logger)

	ctx, cancel := context.WithCancel(parent)
	defer cancel()
	stopRenew := r.startRenew(ctx, cancel, handle)

	if r.opts.timeout > 0 {
		var timeoutCancel context.CancelFunc
		ctx, timeoutCancel = context.WithTimeout(ctx, r.opts.timeout)
		defer timeoutCancel()
	}

	ctx, span := xmetrics.Start(ctx, r.s.opts.observer, xmetrics.SpanOptions{
		Component: "xcron",
		Operation: "run",
		Attrs:     []xmetrics.Attr{xmetrics.String("job", r.name)},
	})
	start := time.Now()
	err = r.execute(ctx)
	stopRenew()
	span.End(xmetrics.Result{Err: err, Attrs: []xmetrics.Attr{xmetrics.Duration("elapsed", time.Since(start))}})

	r.s.stats.runs.Add(1)
	if err != nil {
		r.s.stats.failures.Add(1)
		logger.Error("xcron: job failed",
			slog.String("job", r.name), slog.Any("error", err))
		return true, err
	}
	logger.Debug("xcron: job completed",
		slog.String("job", r.name), slog.Duration("elapsed", time.Since(start)))
	return true, nil
}

func (r *runner) acquire(ctx context.Context) (xdlock.LockHandle, error) {
	lockCtx, cancel := context.WithTimeout(ctx, r.opts.lockTimeout)
	defer cancel()
	return r.s.locker.TryLock(lockCtx, lockNamePrefix+r.name, r.opts.lockLease)
}

func (r *runner) execute(ctx context.Context) error {
	if r.opts.retryer != nil {
		return r.opts.retryer.Do(ctx, func(ctx context.Context) error { return r.fn(ctx) })
	}
	return r.fn(ctx)
}

// startRenew 每隔租约的 1/3 续期一次，续期失败时取消任务。
// 返回的函数停止续期并等待续期 goroutine 退出。
func (r *runner) startRenew(ctx context.Context, taskCancel context.CancelFunc, handle xdlock.LockHandle) func() {
	renewCtx, stop := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(r.opts.lockLease / 3)
		defer ticker.Stop()
		for {
			select {
			case <-renewCtx.Done():
				return
			case <-ticker.C:
				if err := handle.Extend(renewCtx); err != nil {
					if renewCtx.Err() != nil {
						return
					}
					r.s.stats.lockLost.Add(1)
					r.s.opts.logger.Error("xcron: lock renewal failed, canceling job",
						slog.String("job", r.name), slog.Any("error", err))
					taskCancel()
					return
				}
			}
		}
	}()
	return func() {
		stop()
		wg.Wait()
	}
}
