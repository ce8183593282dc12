// Package xmetrics 提供缓存与锁组件使用的统一观测接口。
//
// Observer 同时承担两类观测：
//   - Start/End：一次操作的 trace span 与耗时、结果计数
//   - Event：离散的缓存事件计数（hit、miss、null_hit、load、rebuild 等）
//
// NewOTelObserver 基于 OpenTelemetry 实现，指标：
//
//	| 指标 | 类型 | 属性 |
//	|------|------|------|
//	| xguard.operation.total | Counter | component, operation, status |
//	| xguard.operation.duration | Histogram (s) | component, operation, status |
//	| xguard.cache.event.total | Counter | component, event |
//
// 未配置时使用 NoopObserver，零开销。
package xmetrics
