// Package xlog 提供基于 log/slog 的日志构建器。
//
// # 快速开始
//
//	logger, level, cleanup, err := xlog.New().
//		SetLevelString("info").
//		SetFormat("json").
//		SetRotation("/var/log/shopctl/app.log", xlog.WithMaxSize(100)).
//		Build()
//	if err != nil {
//		return err
//	}
//	defer cleanup()
//
//	level.Set(slog.LevelDebug) // 运行时调整级别
//
// # Context 注入
//
// Build 出的 logger 会从 context 中提取 OpenTelemetry 的 trace_id/span_id，
// 以及通过 ContextWithAttrs 附加的属性，需使用 *Context 系列方法
// （InfoContext、WarnContext 等）传入 ctx。
//
// # 文件轮转
//
// SetRotation 基于 lumberjack 按大小轮转，默认单文件 500MB、保留 7 个备份、
// 30 天、gzip 压缩。MaxBackups 与 MaxAge 不能同时为 0。
package xlog
