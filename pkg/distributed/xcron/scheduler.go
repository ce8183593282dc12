package xcron

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/robfig/cron/v3"

	"github.com/omeyang/xguard/pkg/distributed/xdlock"
)

var (
	// ErrNilLocker 未提供锁。
	ErrNilLocker = errors.New("xcron: locker is nil")
	// ErrNilJob 任务函数为 nil。
	ErrNilJob = errors.New("xcron: job func is nil")
	// ErrEmptyName 任务名为空，任务名同时用作锁名。
	ErrEmptyName = errors.New("xcron: job name is empty")
	// ErrDuplicateName 任务名已注册。
	ErrDuplicateName = errors.New("xcron: job name already registered")
)

// JobID 任务标识，复用 cron.EntryID。
type JobID = cron.EntryID

// JobFunc 任务函数，应响应 ctx.Done()。
type JobFunc func(ctx context.Context) error

// Scheduler 带分布式锁的定时任务调度器。
type Scheduler struct {
	cron   *cron.Cron
	locker xdlock.Locker
	opts   *schedulerOptions

	mu    sync.Mutex
	names map[string]JobID

	stats stats
}

// New 创建调度器。
func New(locker xdlock.Locker, opts ...Option) (*Scheduler, error) {
	if locker == nil {
		return nil, ErrNilLocker
	}
	o := defaultSchedulerOptions()
	for _, opt := range opts {
		opt(o)
	}

	c := cron.New(
		cron.WithLocation(o.location),
		cron.WithParser(o.parser),
	)
	return &Scheduler{
		cron:   c,
		locker: locker,
		opts:   o,
		names:  make(map[string]JobID),
	}, nil
}

// AddJob 注册任务。name 用作锁名（lock:cron:{name}），在调度器内必须唯一。
func (s *Scheduler) AddJob(spec, name string, fn JobFunc, opts ...JobOption) (JobID, error) {
	if fn == nil {
		return 0, ErrNilJob
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, ErrEmptyName
	}

	jo := defaultJobOptions()
	for _, opt := range opts {
		opt(jo)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.names[name]; ok {
		return 0, fmt.Errorf("%w: %s", ErrDuplicateName, name)
	}

	id, err := s.cron.AddJob(spec, s.newRunner(name, fn, jo))
	if err != nil {
		return 0, fmt.Errorf("xcron: add job %s: %w", name, err)
	}
	s.names[name] = id
	return id, nil
}

// Remove 按任务名移除，正在执行的那次不受影响。
func (s *Scheduler) Remove(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.names[name]; ok {
		s.cron.Remove(id)
		delete(s.names, name)
	}
}

// RunNow 立即执行一次已注册的任务（同样受锁保护），阻塞到执行结束。
// 返回是否真正执行以及执行结果。
func (s *Scheduler) RunNow(ctx context.Context, name string) (bool, error) {
	s.mu.Lock()
	id, ok := s.names[name]
	s.mu.Unlock()
	if !ok {
		return false, fmt.Errorf("xcron: job %s not registered", name)
	}
	r, ok := s.cron.Entry(id).Job.(*runner)
	if !ok {
		return false, fmt.Errorf("xcron: job %s not registered", name)
	}
	return r.run(ctx)
}

// Start 启动调度（非阻塞），重复调用无效果。
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop 停止调度并等待运行中的任务结束，ctx 到期时提前返回 ctx.Err()。
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Entries 返回所有已注册的任务。
func (s *Scheduler) Entries() []cron.Entry {
	return s.cron.Entries()
}

// =============================================================================
// 统计
// =============================================================================

// Stats 执行统计快照。
type Stats struct {
	Runs       uint64 // 获取到锁并执行
	Failures   uint64 // 执行返回错误
	Skips      uint64 // 锁被其他副本持有
	LockErrors uint64 // 锁后端出错，本次跳过
	LockLost   uint64 // 续期失败，任务被取消
}

type stats struct {
	runs       atomic.Uint64
	failures   atomic.Uint64
	skips      atomic.Uint64
	lockErrors atomic.Uint64
	lockLost   atomic.Uint64
}

// Stats 返回统计快照。
func (s *Scheduler) Stats() Stats {
	return Stats{
		Runs:       s.stats.runs.Load(),
		Failures:   s.stats.failures.Load(),
		Skips:      s.stats.skips.Load(),
		LockErrors: s.stats.lockErrors.Load(),
		LockLost:   s.stats.lockLost.Load(),
	}
}
