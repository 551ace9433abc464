package authguard

import "context"

type clientIPContextKey struct{}

// WithClientIP attaches the caller's address to ctx. The guard uses it for
// the per-client OTP issuance cap; absent an address that check is skipped.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPContextKey{}, ip)
}

func clientIPFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	ip, _ := ctx.Value(clientIPContextKey{}).(string)
	return ip
}
