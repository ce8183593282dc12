//go:generate mockgen -source=xkv.go -destination=xkvmock/mock_store.go -package=xkvmock

// Package xkv 定义缓存引擎与分布式锁共用的键值存储抽象。
//
// # 设计理念
//
// 上层组件（xdlock、xcache）只依赖 Store 接口所需的最小原子操作集合：
//   - Get / Set / Delete / Exists / TTL：普通读写，Set 的 ttl <= 0 表示永不过期
//   - SetIfAbsent：原子"不存在才写入"，TTL 与写入在同一条命令内完成
//   - CompareAndDelete / CompareAndExpire：值匹配才删除 / 续期，服务端原子执行
//
// # 实现
//
//   - Redis：基于 go-redis UniversalClient，比较类操作通过 Lua 脚本保证原子性
//   - Memory：进程内实现，xxhash 分片 + golang-lru 容量淘汰，适合测试与单进程部署
//
// Store 不可达时返回的错误都包装了 ErrUnavailable，调用方据此区分"不存在"与"存储故障"。
package xkv
