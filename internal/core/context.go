package core

import "context"

type contextKey string

const (
	ctxKeyClientIP      contextKey = "client_ip"
	ctxKeyUserAgent     contextKey = "client_ua"
	ctxKeyCorrelationID contextKey = "correlation_id"
)

// ContextWithClient records the caller's address and user agent for the
// submission audit trail.
func ContextWithClient(ctx context.Context, ip, ua string) context.Context {
	ctx = context.WithValue(ctx, ctxKeyClientIP, ip)
	return context.WithValue(ctx, ctxKeyUserAgent, ua)
}

// ClientFromContext returns the values stored by ContextWithClient.
func ClientFromContext(ctx context.Context) (ip, ua string) {
	ip, _ = ctx.Value(ctxKeyClientIP).(string)
	ua, _ = ctx.Value(ctxKeyUserAgent).(string)
	return ip, ua
}

// ContextWithCorrelationID tags an outbound diagnosis call. The client sends
// it upstream as X-Request-ID.
func ContextWithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKeyCorrelationID, id)
}

// CorrelationIDFromContext returns the id set by ContextWithCorrelationID.
func CorrelationIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyCorrelationID).(string); ok {
		return v
	}
	return ""
}
