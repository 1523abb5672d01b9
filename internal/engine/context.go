package engine

import "context"

type contextKey string

const ctxKeyRequestID contextKey = "request_id"

// WithRequestID tags a context with the caller's request ID so the
// evaluation's audit record can be correlated with transport logs.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKeyRequestID, id)
}

func requestIDFromCtx(ctx context.Context) string {
	id, _ := ctx.Value(ctxKeyRequestID).(string)
	return id
}
