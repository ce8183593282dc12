// Package xretry 基于 avast/retry-go 提供有界重试。
//
// 用于"失败可接受但值得再试几次"的副作用操作，例如写路径上的缓存删除：
// 权威数据已提交，删除失败只会带来有界的不一致窗口，短暂重试可以缩小这个窗口。
//
// 默认 3 次尝试，指数退避叠加随机抖动，ctx 取消立即停止。
// 用 Unrecoverable 包装的错误不再重试。
package xretry
