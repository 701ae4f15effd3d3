package audit

import "context"

// RequestInfo describes the HTTP request an audited action came from.
type RequestInfo struct {
	ID        string
	IP        string
	UserAgent string
}

type ctxKey struct{}

// WithRequest attaches info to ctx.
func WithRequest(ctx context.Context, info RequestInfo) context.Context {
	return context.WithValue(ctx, ctxKey{}, info)
}

// RequestFrom returns the request info attached to ctx, if any.
func RequestFrom(ctx context.Context) (RequestInfo, bool) {
	info, ok := ctx.Value(ctxKey{}).(RequestInfo)
	return info, ok
}

// RequestID returns the id of the request in ctx, or "".
func RequestID(ctx context.Context) string {
	info, _ := RequestFrom(ctx)
	return info.ID
}
