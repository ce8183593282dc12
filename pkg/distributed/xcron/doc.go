// Package xcron 提供分布式定时任务调度能力。
//
// xcron 基于 [robfig/cron/v3] 构建，每次触发前通过 xdlock.Locker 非阻塞地
// 获取 "cron:{job}" 锁，多副本部署时同一触发点只有一个副本执行，
// 其余副本直接跳过。
//
// # 快速开始
//
//	locker, _ := xdlock.NewStoreLocker(store)
//	s, _ := xcron.New(locker, xcron.WithLogger(logger))
//	_, err := s.AddJob("@every 1m", "warm-shops", func(ctx context.Context) error {
//		return svc.Warm(ctx, ids)
//	}, xcron.WithTimeout(30*time.Second))
//	s.Start()
//	defer s.Stop(context.Background())
//
// # 锁续期
//
// 任务执行期间每隔租约的 1/3 续期一次。续期失败时取消任务的 ctx，
// 任务函数必须响应 ctx.Done()，否则可能在锁失效后继续执行。
//
// 提供"尽力互斥"语义：锁后端不可用时本次触发跳过，不会退化为无锁执行。
//
// [robfig/cron/v3]: https://github.com/robfig/cron
package xcron
