package authcore

import (
	"context"

	"github.com/MrEthical07/authcore/internal/reqmeta"
)

// WithClientIP attaches the caller's IP address to ctx. It is stored on
// refresh records issued under ctx and reported in audit events.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return reqmeta.WithClientIP(ctx, ip)
}

// WithUserAgent attaches the HTTP User-Agent string to ctx. Values longer
// than 512 bytes are truncated when read back.
func WithUserAgent(ctx context.Context, userAgent string) context.Context {
	return reqmeta.WithUserAgent(ctx, userAgent)
}

func clientIPFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	return reqmeta.ClientIP(ctx)
}

func userAgentFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	return reqmeta.UserAgent(ctx)
}
