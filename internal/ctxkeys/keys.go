package ctxkeys

// TraceIDKey 链路追踪 ID 的上下文键
type TraceIDKey struct{}

// RunIDKey 审计运行 ID 的上下文键
type RunIDKey struct{}
