package ctxkeys

import "context"

// TraceIDKey 链路追踪ID在 context 中的键
type TraceIDKey struct{}

// WithTraceID 写入追踪ID
func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, TraceIDKey{}, id)
}

// TraceID 读取追踪ID，不存在时返回空串
func TraceID(ctx context.Context) string {
	id, _ := ctx.Value(TraceIDKey{}).(string)
	return id
}
