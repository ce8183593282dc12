// Package xrun 提供基于 errgroup + context 的进程生命周期管理。
//
// 多个长期运行的服务（定时预热、配置监视等）放入同一个 Group：
// 任一服务返回错误或进程收到终止信号时，共享的 context 被取消，
// 其余服务据此优雅退出。
//
//	err := xrun.Run(ctx, []xrun.Option{xrun.WithName("serve-warm")},
//	    schedulerService,
//	    configWatcher,
//	)
//	if errors.Is(err, xrun.ErrSignal) {
//	    // 正常的信号退出
//	}
package xrun
