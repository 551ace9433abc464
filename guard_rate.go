package authguard

import (
	"context"
	"time"
)

// CheckAndIncrement counts one action for (scope, subject) in the current
// fixed window and reports whether it stayed within limit. The count always
// advances: a blocked subject stays capped for the rest of the window.
func (g *Guard) CheckAndIncrement(ctx context.Context, scope, subject string, limit int, window time.Duration) (RateResult, error) {
	if err := g.checkOpen(); err != nil {
		return RateResult{}, err
	}
	res, err := g.limiter.CheckAndIncrement(ctx, scope, subject, limit, window)
	if err != nil {
		return RateResult{}, err
	}

	if res.Allowed {
		g.metrics.inc(MetricRateAllowed)
	} else {
		g.metrics.inc(MetricRateBlocked)
	}

	return RateResult{
		Allowed:    res.Allowed,
		Remaining:  res.Remaining,
		ResetAfter: res.ResetAfter,
	}, nil
}
