package authguard

import "time"

// Status classifies the outcome of an authentication-adjacent decision.
// Statuses are results, not errors: route handlers translate them into
// transport responses.
type Status uint8

const (
	// StatusOK means the action may proceed.
	StatusOK Status = iota
	// StatusRateLimited means the subject exhausted its window budget.
	StatusRateLimited
	// StatusLocked means the account/source pair is locked out.
	StatusLocked
	// StatusExpired means the session or code is past its deadline.
	StatusExpired
	// StatusExhausted means no verification attempts remain.
	StatusExhausted
	// StatusMismatch means the presented code was wrong.
	StatusMismatch
	// StatusAlreadyConsumed means the code was already used successfully.
	StatusAlreadyConsumed
	// StatusNotFound means no matching record exists.
	StatusNotFound
	// StatusRevoked means the session was explicitly revoked.
	StatusRevoked
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusRateLimited:
		return "rate_limited"
	case StatusLocked:
		return "locked"
	case StatusExpired:
		return "expired"
	case StatusExhausted:
		return "exhausted"
	case StatusMismatch:
		return "mismatch"
	case StatusAlreadyConsumed:
		return "already_consumed"
	case StatusNotFound:
		return "not_found"
	case StatusRevoked:
		return "revoked"
	default:
		return "unknown"
	}
}

// RateResult is the outcome of one CheckAndIncrement call.
type RateResult struct {
	Allowed bool
	// Remaining is the budget left in the current window.
	Remaining int
	// ResetAfter is how long until the window rolls over.
	ResetAfter time.Duration
}

// AttemptDecision tells the route layer whether a login attempt may proceed.
type AttemptDecision struct {
	Allowed bool
	Status  Status
	// RetryAfter is set when blocked: remaining lock or window time.
	RetryAfter time.Duration
	// FailuresRemaining is how many more failures the pair absorbs before
	// locking, when the attempt is allowed.
	FailuresRemaining int
}

// FailureOutcome reports the effect of recording one failed login.
type FailureOutcome struct {
	// Locked is set when this failure crossed the threshold.
	Locked    bool
	LockedFor time.Duration
	// FailureCount is the windowed failure total including this one.
	FailureCount      int64
	FailuresRemaining int
}

// SessionTicket is returned by CreateSession.
type SessionTicket struct {
	ID     string
	UserID string
	// ExpiresAt is the first idle deadline; AbsoluteExpiresAt is the hard
	// ceiling no amount of activity extends.
	ExpiresAt         time.Time
	AbsoluteExpiresAt time.Time
}

// SessionValidation is the outcome of ValidateSession.
type SessionValidation struct {
	Status         Status
	UserID         string
	ExpiresAt      time.Time
	LastActivityAt time.Time
}

// SessionInfo describes one active session for device management.
type SessionInfo struct {
	ID             string
	UserID         string
	DeviceInfo     string
	CreatedAt      time.Time
	LastActivityAt time.Time
	ExpiresAt      time.Time
}

// OTPIssue is the outcome of GenerateOTP and ResendOTP. Code delivery is
// the caller's concern.
type OTPIssue struct {
	Status Status
	// Code is the plaintext code to deliver, set only on StatusOK.
	Code            string
	ExpiresAt       time.Time
	AttemptsAllowed int
	// RetryAfter is set on StatusRateLimited.
	RetryAfter time.Duration
}

// OTPVerification is the outcome of VerifyOTP.
type OTPVerification struct {
	Status            Status
	AttemptsRemaining int
}

// HealthReport snapshots the resilience layer for operational endpoints.
// It deliberately omits anything callers could use to distinguish which
// backend served a given request.
type HealthReport struct {
	CacheHealthy  bool
	CircuitState  string
	Degraded      bool
	FallbackItems int
	EventsDropped uint64
}
