// Package xpool 提供有界的泛型 worker pool，用作后台任务执行器。
//
// Pool 由固定数量的 worker 和有界队列组成：
//   - Submit 非阻塞，队列满时返回 ErrQueueFull（拒绝策略），由调用方决定如何善后
//   - Shutdown(ctx) 拒绝新任务，等待队列中已有任务处理完毕或 ctx 到期
//   - handler panic 会被恢复并记录日志，不影响其他任务
//
// # 注意事项
//
//   - New 创建后 worker 立即启动
//   - Shutdown 不可在 handler 内调用，否则会死锁
//   - 失败或 panic 的任务不会被重试
package xpool
