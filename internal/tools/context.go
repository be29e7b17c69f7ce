package tools

import "context"

type traceIDKey struct{}

type paperScopeKey struct{}

// WithTraceID 将 TraceID 注入 context，审计记录以它关联一次会话
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey{}, traceID)
}

// TraceID 从 context 获取 TraceID
func TraceID(ctx context.Context) string {
	if v, ok := ctx.Value(traceIDKey{}).(string); ok {
		return v
	}
	return ""
}

// WithPaperScope 记录本次运行允许检索的论文
func WithPaperScope(ctx context.Context, paperIDs []string) context.Context {
	if len(paperIDs) == 0 {
		return ctx
	}
	scope := append([]string(nil), paperIDs...)
	return context.WithValue(ctx, paperScopeKey{}, scope)
}

func PaperScope(ctx context.Context) []string {
	if v, ok := ctx.Value(paperScopeKey{}).([]string); ok {
		return v
	}
	return nil
}
