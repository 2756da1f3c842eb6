package kit

import "context"

type contextKey string

const (
	TransportKey contextKey = "kit_transport" // "http", "mcp"
	TraceIDKey   contextKey = "kit_trace_id"
	ClientIPKey  contextKey = "kit_client_ip"
)

// ClientIPHeader carries the resolved client IP from the HTTP middleware
// to MCP tool calls. The middleware overwrites any value a client sends.
const ClientIPHeader = "X-Fidelity-Client-IP"

func WithTransport(ctx context.Context, t string) context.Context {
	return context.WithValue(ctx, TransportKey, t)
}
func GetTransport(ctx context.Context) string {
	if v, ok := ctx.Value(TransportKey).(string); ok {
		return v
	}
	return "http"
}

func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, TraceIDKey, id)
}
func GetTraceID(ctx context.Context) string {
	v, _ := ctx.Value(TraceIDKey).(string)
	return v
}

func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, ClientIPKey, ip)
}
func GetClientIP(ctx context.Context) string {
	v, _ := ctx.Value(ClientIPKey).(string)
	return v
}
