// Package xbreaker 基于 sony/gobreaker 提供熔断器，用于保护权威数据源。
//
// 缓存回源（loader）连续失败时熔断器打开，后续回源直接失败，
// 避免在数据库故障期间把所有未命中请求都压到数据库上。
// 超时（WithTimeout）后进入半开状态，放行少量探测请求。
//
// 调用方取消（context.Canceled）不计为失败。
package xbreaker
