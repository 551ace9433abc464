package authguard

import (
	"context"
)

const loginSourceScope = "login-src"

// BeforeAttempt decides whether a login attempt for the account from the
// given source address may proceed. It checks the per-account lockout first
// (targeted brute force), then the coarse per-source budget (distributed
// brute force across many accounts).
func (g *Guard) BeforeAttempt(ctx context.Context, account, source string) (AttemptDecision, error) {
	if err := g.checkOpen(); err != nil {
		return AttemptDecision{}, err
	}
	if until, locked := g.lockouts.LockedUntil(ctx, account, source); locked {
		g.metrics.inc(MetricLoginBlocked)
		return AttemptDecision{
			Status:     StatusLocked,
			RetryAfter: until.Sub(g.now()),
		}, nil
	}

	if g.config.Login.SourceLimit > 0 && source != "" {
		res, err := g.limiter.CheckAndIncrement(ctx, loginSourceScope, source,
			g.config.Login.SourceLimit, g.config.Login.SourceWindow)
		if err != nil {
			return AttemptDecision{}, err
		}
		if !res.Allowed {
			g.metrics.inc(MetricLoginBlocked)
			return AttemptDecision{
				Status:     StatusRateLimited,
				RetryAfter: res.ResetAfter,
			}, nil
		}
	}

	remaining := g.config.Login.FailureThreshold -
		int(g.lockouts.FailureCount(ctx, account, source))
	if remaining < 0 {
		remaining = 0
	}

	g.metrics.inc(MetricLoginAllowed)
	return AttemptDecision{
		Allowed:           true,
		Status:            StatusOK,
		FailuresRemaining: remaining,
	}, nil
}

// OnFailure records one failed authentication for the pair. Crossing the
// failure threshold engages a lockout whose duration doubles with the
// pair's recent lock history, capped by configuration.
func (g *Guard) OnFailure(ctx context.Context, account, source string) (FailureOutcome, error) {
	if err := g.checkOpen(); err != nil {
		return FailureOutcome{}, err
	}
	count, lockedFor, err := g.lockouts.RecordFailure(ctx, account, source)
	if err != nil {
		return FailureOutcome{}, err
	}
	g.metrics.inc(MetricLoginFailures)

	if lockedFor > 0 {
		g.metrics.inc(MetricLoginLockouts)
		return FailureOutcome{
			Locked:       true,
			LockedFor:    lockedFor,
			FailureCount: count,
		}, nil
	}

	remaining := g.config.Login.FailureThreshold - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return FailureOutcome{
		FailureCount:      count,
		FailuresRemaining: remaining,
	}, nil
}

// OnSuccess clears the pair's failure count and any active lock after a
// successful authentication.
func (g *Guard) OnSuccess(ctx context.Context, account, source string) error {
	if err := g.checkOpen(); err != nil {
		return err
	}
	if err := g.lockouts.Reset(ctx, account, source); err != nil {
		return err
	}
	g.metrics.inc(MetricLoginResets)
	return nil
}

// ClearLockout is the hook the password-reset flow calls. Whether it
// actually clears lockout state is a deliberate configuration choice;
// disabled, a reset does not shortcut an active lock.
func (g *Guard) ClearLockout(ctx context.Context, account, source string) (bool, error) {
	if err := g.checkOpen(); err != nil {
		return false, err
	}
	if !g.config.Login.ClearLockoutOnPasswordReset {
		return false, nil
	}
	if err := g.lockouts.Reset(ctx, account, source); err != nil {
		return false, err
	}
	return true, nil
}
