// Package xcache 提供 Cache-Aside 读穿缓存引擎，内置三种防护策略。
//
// # 核心组件
//
//   - Client：共享基础设施（xkv.Store、xdlock.Locker、重建 worker pool、日志、观测）
//   - Cache[K, V]：按 key 前缀和值类型绑定的强类型入口
//   - Codec[V]：值编解码，内置 JSON（默认）、Msgpack、CBOR
//
// # 读策略
//
// QueryWithPassThrough（缓存穿透）：
//   - 命中值直接返回；命中空值标记返回 not found，不回源
//   - 未命中回源；记录不存在时写入空值标记（NullTTL，默认 2 分钟）
//
// QueryWithMutex（缓存击穿，互斥重建）：
//   - 未命中时争抢 lock:{key}，抢到后 double-check 再回源
//   - 未抢到按 RetryInterval 加抖动循环等待，总时长受 MaxRetryWait 与 ctx 约束
//   - 超过 MaxRetryWait 返回 ErrLockWaitTimeout
//
// QueryWithLogicalExpiry（缓存击穿，逻辑过期）：
//   - 记录以 {"data":..., "logicalExpireAt":...} 包装存储，无物理 TTL
//   - key 不存在直接返回 not found，不同步回源，需要预热（SaveWithLogicalExpiry）
//   - 逻辑过期后抢锁，抢到则提交异步重建，读者始终返回旧值
//   - 重建队列满时立即释放锁并计数，不阻塞读者
//
// # 写路径
//
// UpdateThrough 先写权威存储，成功后删除缓存 key（不原地更新）。
// 删除失败返回 ErrInvalidateFailed，此时写入已生效，旧值在 TTL 或下次重建后消失。
//
// # 错误语义
//
// 存储读取失败返回 ErrCacheUnavailable，绝不当作未命中；
// 回源失败返回 ErrLoadFailed，只有确认记录不存在才写入空值标记。
//
// 详细使用示例参考 example_test.go。
package xcache
