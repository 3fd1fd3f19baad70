// Package reqmeta carries optional client metadata (IP, user agent) through
// a context so the refresh layer can record it without depending on HTTP.
package reqmeta

import "context"

type ctxKey int

const (
	clientIPKey ctxKey = iota
	userAgentKey
)

func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPKey, ip)
}

func WithUserAgent(ctx context.Context, ua string) context.Context {
	return context.WithValue(ctx, userAgentKey, ua)
}

func ClientIP(ctx context.Context) string {
	v, _ := ctx.Value(clientIPKey).(string)
	return v
}

// UserAgent values longer than 512 bytes are truncated.
func UserAgent(ctx context.Context) string {
	v, _ := ctx.Value(userAgentKey).(string)
	if len(v) > 512 {
		return v[:512]
	}
	return v
}
