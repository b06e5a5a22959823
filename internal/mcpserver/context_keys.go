package mcpserver

import "context"

type contextKey string

const (
	authMethodContextKey contextKey = "auth_method"
	clientIPContextKey   contextKey = "client_ip"
)

func withAuthMethod(ctx context.Context, method string) context.Context {
	return context.WithValue(ctx, authMethodContextKey, method)
}

func withClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPContextKey, ip)
}

func getAuthMethodFromContext(ctx context.Context) string {
	if method, ok := ctx.Value(authMethodContextKey).(string); ok {
		return method
	}
	return ""
}

func getClientIPFromContext(ctx context.Context) string {
	if ip, ok := ctx.Value(clientIPContextKey).(string); ok {
		return ip
	}
	return ""
}
