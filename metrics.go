package authguard

import "sync/atomic"

// MetricID names one guard-level counter.
type MetricID uint16

const (
	// MetricRateAllowed counts rate checks that passed.
	MetricRateAllowed MetricID = iota
	// MetricRateBlocked counts rate checks that were over budget.
	MetricRateBlocked
	// MetricLoginAllowed counts attempts BeforeAttempt let through.
	MetricLoginAllowed
	// MetricLoginBlocked counts attempts rejected for lockout or rate.
	MetricLoginBlocked
	// MetricLoginFailures counts recorded failed logins.
	MetricLoginFailures
	// MetricLoginLockouts counts threshold crossings.
	MetricLoginLockouts
	// MetricLoginResets counts successful-login resets.
	MetricLoginResets
	// MetricSessionCreated counts new sessions.
	MetricSessionCreated
	// MetricSessionValidated counts successful validations.
	MetricSessionValidated
	// MetricSessionRejected counts not-found/expired/revoked validations.
	MetricSessionRejected
	// MetricSessionRevoked counts revocations (single and bulk).
	MetricSessionRevoked
	// MetricOTPIssued counts generated and resent codes.
	MetricOTPIssued
	// MetricOTPVerified counts successful verifications.
	MetricOTPVerified
	// MetricOTPMismatch counts wrong-code attempts.
	MetricOTPMismatch
	// MetricOTPExhausted counts attempt-budget exhaustions.
	MetricOTPExhausted
	// MetricOTPReplayed counts verifications of already-consumed codes.
	MetricOTPReplayed

	metricCount
)

type metricsRegistry struct {
	counters [metricCount]atomic.Uint64
}

func (m *metricsRegistry) inc(id MetricID) {
	if m == nil || id >= metricCount {
		return
	}
	m.counters[id].Add(1)
}

func (m *metricsRegistry) get(id MetricID) uint64 {
	if m == nil || id >= metricCount {
		return 0
	}
	return m.counters[id].Load()
}

// MetricsSnapshot is a point-in-time view of guard activity, combining the
// guard-level counters with facade routing stats.
type MetricsSnapshot struct {
	RateAllowed  uint64
	RateBlocked  uint64
	LoginAllowed uint64
	LoginBlocked uint64

	LoginFailures uint64
	LoginLockouts uint64
	LoginResets   uint64

	SessionCreated   uint64
	SessionValidated uint64
	SessionRejected  uint64
	SessionRevoked   uint64

	OTPIssued    uint64
	OTPVerified  uint64
	OTPMismatch  uint64
	OTPExhausted uint64
	OTPReplayed  uint64

	PrimaryCalls  uint64
	FallbackCalls uint64
	Failovers     uint64
	CircuitState  string
	CircuitOpened uint64
	CircuitClosed uint64
	EventsDropped uint64
}

// Metrics snapshots all counters.
func (g *Guard) Metrics() MetricsSnapshot {
	stats := g.facade.Stats()
	return MetricsSnapshot{
		RateAllowed:  g.metrics.get(MetricRateAllowed),
		RateBlocked:  g.metrics.get(MetricRateBlocked),
		LoginAllowed: g.metrics.get(MetricLoginAllowed),
		LoginBlocked: g.metrics.get(MetricLoginBlocked),

		LoginFailures: g.metrics.get(MetricLoginFailures),
		LoginLockouts: g.metrics.get(MetricLoginLockouts),
		LoginResets:   g.metrics.get(MetricLoginResets),

		SessionCreated:   g.metrics.get(MetricSessionCreated),
		SessionValidated: g.metrics.get(MetricSessionValidated),
		SessionRejected:  g.metrics.get(MetricSessionRejected),
		SessionRevoked:   g.metrics.get(MetricSessionRevoked),

		OTPIssued:    g.metrics.get(MetricOTPIssued),
		OTPVerified:  g.metrics.get(MetricOTPVerified),
		OTPMismatch:  g.metrics.get(MetricOTPMismatch),
		OTPExhausted: g.metrics.get(MetricOTPExhausted),
		OTPReplayed:  g.metrics.get(MetricOTPReplayed),

		PrimaryCalls:  stats.PrimaryCalls,
		FallbackCalls: stats.FallbackCalls,
		Failovers:     stats.Failovers,
		CircuitState:  stats.CircuitState,
		CircuitOpened: stats.CircuitOpened,
		CircuitClosed: stats.CircuitClosed,
		EventsDropped: g.events.Dropped(),
	}
}
