package authguard

import (
	"context"
	"crypto/subtle"
	"time"

	"go.uber.org/zap"

	"github.com/evercart/authguard/internal"
	"github.com/evercart/authguard/internal/stores"
)

// GenerateOTP issues a fresh one-time code for the destination, replacing
// any unconsumed prior code so at most one is ever active. Issuance is
// capped per destination per window, and per client address when one rides
// the context. The caller delivers the returned code.
func (g *Guard) GenerateOTP(ctx context.Context, destination string) (OTPIssue, error) {
	if err := g.checkOpen(); err != nil {
		return OTPIssue{}, err
	}
	res, err := g.otpGuard.AllowGenerate(ctx, destination, clientIPFromContext(ctx))
	if err != nil {
		return OTPIssue{}, err
	}
	if !res.Allowed {
		return OTPIssue{Status: StatusRateLimited, RetryAfter: res.ResetAfter}, nil
	}

	return g.issueOTP(ctx, destination)
}

// ResendOTP reissues a code for the destination under its own, shorter
// throttle, independent of the generation cap.
func (g *Guard) ResendOTP(ctx context.Context, destination string) (OTPIssue, error) {
	if err := g.checkOpen(); err != nil {
		return OTPIssue{}, err
	}
	res, err := g.otpGuard.AllowResend(ctx, destination)
	if err != nil {
		return OTPIssue{}, err
	}
	if !res.Allowed {
		return OTPIssue{Status: StatusRateLimited, RetryAfter: res.ResetAfter}, nil
	}

	return g.issueOTP(ctx, destination)
}

// VerifyOTP checks a presented code. Wrong codes burn an attempt; the right
// code consumes the record exactly once, and every verification after the
// consumption reports it, correct or not.
func (g *Guard) VerifyOTP(ctx context.Context, destination, code string) (OTPVerification, error) {
	if err := g.checkOpen(); err != nil {
		return OTPVerification{}, err
	}
	record, found, err := g.otps.Get(ctx, destination)
	if err != nil {
		return OTPVerification{}, err
	}
	if !found {
		return OTPVerification{Status: StatusNotFound}, nil
	}

	if g.otps.Consumed(ctx, destination) {
		g.metrics.inc(MetricOTPReplayed)
		return OTPVerification{Status: StatusAlreadyConsumed}, nil
	}

	now := g.now()
	if now.Unix() >= record.ExpiresAt {
		return OTPVerification{Status: StatusExpired}, nil
	}

	max := int64(record.MaxAttempts)
	if g.otps.AttemptsUsed(ctx, destination) >= max {
		return OTPVerification{Status: StatusExhausted}, nil
	}

	counterTTL := time.Unix(record.ExpiresAt, 0).Sub(now)
	if counterTTL < time.Second {
		counterTTL = time.Second
	}

	provided := internal.HashCode(code)
	if subtle.ConstantTimeCompare(provided[:], record.CodeHash[:]) != 1 {
		used, err := g.otps.IncrAttempts(ctx, destination, counterTTL)
		if err != nil {
			return OTPVerification{}, err
		}
		if used >= max {
			g.metrics.inc(MetricOTPExhausted)
			return OTPVerification{Status: StatusExhausted}, nil
		}
		g.metrics.inc(MetricOTPMismatch)
		return OTPVerification{
			Status:            StatusMismatch,
			AttemptsRemaining: int(max - used),
		}, nil
	}

	// One atomic increment decides the winner among concurrent correct
	// verifications.
	claim, err := g.otps.MarkConsumed(ctx, destination, counterTTL)
	if err != nil {
		return OTPVerification{}, err
	}
	if claim > 1 {
		g.metrics.inc(MetricOTPReplayed)
		return OTPVerification{Status: StatusAlreadyConsumed}, nil
	}

	g.metrics.inc(MetricOTPVerified)
	return OTPVerification{Status: StatusOK}, nil
}

func (g *Guard) issueOTP(ctx context.Context, destination string) (OTPIssue, error) {
	code, err := internal.NewOTP(g.config.OTP.Digits)
	if err != nil {
		return OTPIssue{}, err
	}

	now := g.now()
	expires := now.Add(g.config.OTP.TTL)

	record := &stores.OTPRecord{
		Destination: destination,
		CodeHash:    internal.HashCode(code),
		IssuedAt:    now.Unix(),
		ExpiresAt:   expires.Unix(),
		MaxAttempts: uint8(g.config.OTP.MaxAttempts),
	}
	if err := g.otps.Save(ctx, record, g.config.OTP.TTL); err != nil {
		return OTPIssue{}, err
	}

	g.metrics.inc(MetricOTPIssued)
	g.log.Debug("otp issued", zap.String("destination", destination))

	return OTPIssue{
		Status:          StatusOK,
		Code:            code,
		ExpiresAt:       expires,
		AttemptsAllowed: g.config.OTP.MaxAttempts,
	}, nil
}
