package limiters

import (
	"context"
	"time"

	"github.com/evercart/authguard/internal/rate"
)

// Key scopes for OTP issuance throttling.
const (
	scopeOTPGenerate = "otp-gen"
	scopeOTPResend   = "otp-resend"
	scopeOTPClient   = "otp-ip"
)

// OTPGuardConfig holds throttles around OTP issuance.
type OTPGuardConfig struct {
	// GenerateLimit caps codes issued per destination per GenerateWindow.
	GenerateLimit  int
	GenerateWindow time.Duration
	// ResendWindow throttles resends independently of the generation cap:
	// one resend per destination per window.
	ResendWindow time.Duration
	// ClientLimit optionally caps issuance per client address, when the
	// caller supplies one. Zero disables the check.
	ClientLimit  int
	ClientWindow time.Duration
}

// OTPGuard wraps the generic limiter with OTP issuance policy.
type OTPGuard struct {
	limiter *rate.Limiter
	config  OTPGuardConfig
}

// NewOTPGuard creates the guard.
func NewOTPGuard(limiter *rate.Limiter, cfg OTPGuardConfig) *OTPGuard {
	return &OTPGuard{limiter: limiter, config: cfg}
}

// AllowGenerate checks the per-destination generation cap, and the per-client
// cap when clientIP is non-empty.
func (g *OTPGuard) AllowGenerate(ctx context.Context, destination, clientIP string) (rate.Result, error) {
	if g.config.ClientLimit > 0 && clientIP != "" {
		res, err := g.limiter.CheckAndIncrement(ctx, scopeOTPClient, clientIP,
			g.config.ClientLimit, g.config.ClientWindow)
		if err != nil {
			return rate.Result{}, err
		}
		if !res.Allowed {
			return res, nil
		}
	}

	return g.limiter.CheckAndIncrement(ctx, scopeOTPGenerate, destination,
		g.config.GenerateLimit, g.config.GenerateWindow)
}

// AllowResend checks the resend window for the destination.
func (g *OTPGuard) AllowResend(ctx context.Context, destination string) (rate.Result, error) {
	return g.limiter.CheckAndIncrement(ctx, scopeOTPResend, destination,
		1, g.config.ResendWindow)
}
