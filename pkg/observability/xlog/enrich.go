package xlog

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/trace"
)

type attrsKey struct{}

// ContextWithAttrs 返回携带日志属性的 context，经 enrich handler 输出时自动追加。
// 多次调用会累加属性。
func ContextWithAttrs(ctx context.Context, attrs ...slog.Attr) context.Context {
	if len(attrs) == 0 {
		return ctx
	}
	prev, _ := ctx.Value(attrsKey{}).([]slog.Attr)
	merged := make([]slog.Attr, 0, len(prev)+len(attrs))
	merged = append(merged, prev...)
	merged = append(merged, attrs...)
	return context.WithValue(ctx, attrsKey{}, merged)
}

// enrichHandler 从 context 提取 trace_id/span_id 与 ContextWithAttrs 附加的属性。
// Best-effort：缺失的字段直接跳过。
type enrichHandler struct {
	base slog.Handler
}

func (h *enrichHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.base.Enabled(ctx, level)
}

func (h *enrichHandler) Handle(ctx context.Context, r slog.Record) error {
	if ctx == nil {
		return h.base.Handle(ctx, r)
	}

	var buf [2]slog.Attr
	attrs := buf[:0]
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		attrs = append(attrs,
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	extra, _ := ctx.Value(attrsKey{}).([]slog.Attr)

	if len(attrs) > 0 || len(extra) > 0 {
		// slog 契约：修改前必须 Clone
		r = r.Clone()
		r.AddAttrs(attrs...)
		r.AddAttrs(extra...)
	}
	return h.base.Handle(ctx, r)
}

func (h *enrichHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &enrichHandler{base: h.base.WithAttrs(attrs)}
}

func (h *enrichHandler) WithGroup(name string) slog.Handler {
	return &enrichHandler{base: h.base.WithGroup(name)}
}
