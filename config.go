package authguard

import (
	"fmt"
	"time"
)

// Config holds every numeric policy knob the guard reads. It is read once
// at Build and treated as immutable afterwards.
type Config struct {
	Cache   CacheConfig
	Rate    RateConfig
	Login   LoginConfig
	Session SessionConfig
	OTP     OTPConfig
	Events  EventsConfig
}

// CacheConfig tunes the connection pool, circuit breaker, and fallback
// store.
type CacheConfig struct {
	// CallTimeout bounds each shared-cache round trip; exceeding it
	// counts as a breaker failure.
	CallTimeout time.Duration

	ProbeInterval        time.Duration
	ProbeTimeout         time.Duration
	PoolFailureThreshold int
	PoolSuccessThreshold int
	ReconnectBase        time.Duration
	ReconnectMax         time.Duration

	BreakerFailureThreshold int
	BreakerFailureWindow    time.Duration
	BreakerCooldown         time.Duration
	BreakerMaxCooldown      time.Duration

	// SweepInterval bounds how often the fallback store physically
	// removes expired entries.
	SweepInterval time.Duration
}

// RateConfig tunes the generic fixed-window limiter.
type RateConfig struct {
	KeyPrefix string
	// EmergencyFactor divides every limit while the shared emergency
	// flag is set.
	EmergencyFactor int
}

// LoginConfig tunes per-account lockouts and the coarse per-source guard.
type LoginConfig struct {
	// FailureThreshold failures within FailureWindow lock the
	// (account, source) pair.
	FailureThreshold int
	FailureWindow    time.Duration
	// LockBase is the first lock duration; repeat locks double it up to
	// LockMax. HistoryTTL bounds how long past locks keep escalating.
	LockBase   time.Duration
	LockMax    time.Duration
	HistoryTTL time.Duration
	// SourceLimit/SourceWindow cap attempts per source address across all
	// accounts, against distributed brute force. Zero disables the guard.
	SourceLimit  int
	SourceWindow time.Duration
	// ClearLockoutOnPasswordReset controls whether ClearLockout (wired to
	// the password reset flow by the caller) actually clears state.
	ClearLockoutOnPasswordReset bool
}

// SessionConfig tunes session lifetimes.
type SessionConfig struct {
	KeyPrefix string
	// MaxIdle is the sliding window; AbsoluteLifetime caps it from
	// CreatedAt.
	MaxIdle          time.Duration
	AbsoluteLifetime time.Duration
}

// OTPConfig tunes one-time code issuance and verification.
type OTPConfig struct {
	KeyPrefix string
	Digits    int
	TTL       time.Duration
	// MaxAttempts is the verification budget per code, at most 255 (the
	// stored record keeps it in a single byte).
	MaxAttempts int

	GenerateLimit  int
	GenerateWindow time.Duration
	ResendWindow   time.Duration
	// ClientLimit caps issuance per client address when the caller
	// attaches one via WithClientIP. Zero disables the check.
	ClientLimit  int
	ClientWindow time.Duration
}

// EventsConfig tunes the async health event dispatcher.
type EventsConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
	// Kinds restricts the stream to the listed event kinds; empty keeps
	// every kind.
	Kinds []string
	// MinLatency suppresses per-operation events faster than this
	// threshold. Circuit and pool events always pass.
	MinLatency time.Duration
}

func defaultConfig() Config {
	return Config{
		Cache: CacheConfig{
			CallTimeout:             250 * time.Millisecond,
			ProbeInterval:           5 * time.Second,
			ProbeTimeout:            time.Second,
			PoolFailureThreshold:    3,
			PoolSuccessThreshold:    2,
			ReconnectBase:           500 * time.Millisecond,
			ReconnectMax:            30 * time.Second,
			BreakerFailureThreshold: 5,
			BreakerFailureWindow:    30 * time.Second,
			BreakerCooldown:         5 * time.Second,
			BreakerMaxCooldown:      2 * time.Minute,
			SweepInterval:           time.Minute,
		},
		Rate: RateConfig{
			KeyPrefix:       "arl",
			EmergencyFactor: 4,
		},
		Login: LoginConfig{
			FailureThreshold:            5,
			FailureWindow:               15 * time.Minute,
			LockBase:                    time.Minute,
			LockMax:                     time.Hour,
			HistoryTTL:                  24 * time.Hour,
			SourceLimit:                 100,
			SourceWindow:                5 * time.Minute,
			ClearLockoutOnPasswordReset: true,
		},
		Session: SessionConfig{
			KeyPrefix:        "ag",
			MaxIdle:          30 * time.Minute,
			AbsoluteLifetime: 24 * time.Hour,
		},
		OTP: OTPConfig{
			KeyPrefix:      "ao",
			Digits:         6,
			TTL:            5 * time.Minute,
			MaxAttempts:    3,
			GenerateLimit:  3,
			GenerateWindow: time.Hour,
			ResendWindow:   2 * time.Minute,
			ClientLimit:    10,
			ClientWindow:   time.Hour,
		},
		Events: EventsConfig{
			Enabled:    true,
			BufferSize: 256,
			DropIfFull: true,
		},
	}
}

func (c Config) validate() error {
	if c.Cache.CallTimeout <= 0 {
		return fmt.Errorf("%w: cache call timeout must be positive", ErrConfigInvalid)
	}
	if c.Cache.ProbeInterval <= 0 || c.Cache.ProbeTimeout <= 0 {
		return fmt.Errorf("%w: probe interval and timeout must be positive", ErrConfigInvalid)
	}
	if c.Cache.PoolFailureThreshold < 1 || c.Cache.PoolSuccessThreshold < 1 {
		return fmt.Errorf("%w: pool thresholds must be at least 1", ErrConfigInvalid)
	}
	if c.Cache.ReconnectBase <= 0 || c.Cache.ReconnectMax < c.Cache.ReconnectBase {
		return fmt.Errorf("%w: reconnect backoff range invalid", ErrConfigInvalid)
	}
	if c.Cache.BreakerFailureThreshold < 1 {
		return fmt.Errorf("%w: breaker failure threshold must be at least 1", ErrConfigInvalid)
	}
	if c.Cache.BreakerCooldown <= 0 || c.Cache.BreakerMaxCooldown < c.Cache.BreakerCooldown {
		return fmt.Errorf("%w: breaker cooldown range invalid", ErrConfigInvalid)
	}
	if c.Rate.EmergencyFactor < 1 {
		return fmt.Errorf("%w: emergency factor must be at least 1", ErrConfigInvalid)
	}
	if c.Login.FailureThreshold < 1 || c.Login.FailureWindow <= 0 {
		return fmt.Errorf("%w: login failure threshold and window must be positive", ErrConfigInvalid)
	}
	if c.Login.LockBase <= 0 || c.Login.LockMax < c.Login.LockBase {
		return fmt.Errorf("%w: login lock duration range invalid", ErrConfigInvalid)
	}
	if c.Session.MaxIdle <= 0 || c.Session.AbsoluteLifetime < c.Session.MaxIdle {
		return fmt.Errorf("%w: session max idle must be positive and within the absolute lifetime", ErrConfigInvalid)
	}
	if c.OTP.Digits < 4 || c.OTP.Digits > 10 {
		return fmt.Errorf("%w: otp digits must be between 4 and 10", ErrConfigInvalid)
	}
	if c.OTP.TTL <= 0 || c.OTP.MaxAttempts < 1 {
		return fmt.Errorf("%w: otp ttl and max attempts must be positive", ErrConfigInvalid)
	}
	if c.OTP.MaxAttempts > 255 {
		return fmt.Errorf("%w: otp max attempts must be at most 255", ErrConfigInvalid)
	}
	if c.OTP.GenerateLimit < 1 || c.OTP.GenerateWindow <= 0 || c.OTP.ResendWindow <= 0 {
		return fmt.Errorf("%w: otp issuance throttles must be positive", ErrConfigInvalid)
	}
	return nil
}
