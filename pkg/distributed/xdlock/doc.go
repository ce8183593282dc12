// Package xdlock 提供跨进程互斥原语，供缓存重建与业务临界区使用。
//
// # 核心概念
//
//   - Locker：非阻塞获取锁，TryLock(ctx, name, lease)
//   - LockHandle：一次成功获取的凭证，持有唯一 token，负责 Unlock / Extend
//
// TryLock 的返回约定：
//
//	| 返回值 | 含义 |
//	|--------|------|
//	| (handle, nil) | 获取成功 |
//	| (nil, nil) | 锁被其他持有者占用（不是错误） |
//	| (nil, err) | 存储故障，视为获取失败（fail closed） |
//
// # 后端
//
//   - StoreLocker：基于 xkv.Store，SET NX PX 获取，Lua 比较删除释放（参考实现）
//   - RedsyncLocker：基于 go-redsync，支持多节点 Redlock
//   - EtcdLocker：基于 etcd concurrency，会话租约兜底
//
// # 释放的正确性
//
// 锁记录的值是本次获取生成的 token，释放时只有 token 匹配才删除，
// 且比较与删除在存储端原子完成。租约过期后锁被他人获取时，
// 迟到的释放不会删除新持有者的记录。无条件 DEL 的释放方式在这种时序下是错误的。
//
// Key 格式：lock:{name}，前缀可通过 WithKeyPrefix 修改。
package xdlock
