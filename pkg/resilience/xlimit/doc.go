// Package xlimit 基于 go-redis/redis_rate 提供跨进程的 GCRA 限流。
//
// 在缓存场景中用于限制回源速率：即使大量不同 key 同时未命中，
// 对权威数据源的加载请求也不会超过配置的速率。
//
// Redis 不可用时的行为由 WithFailOpen 决定：
//   - fail open（默认）：放行并记录日志，限流失效但业务可用
//   - fail closed：返回 ErrBackend
package xlimit
