package backoff

import "time"

// Policy describes an exponential backoff schedule: Base doubling (or
// scaling by Multiplier) per attempt, capped at Max. MaxAttempts of zero
// means unbounded retries.
//
// Policy is a pure value: it never reads the clock, so schedules are
// deterministic and testable without time manipulation.
type Policy struct {
	Base        time.Duration
	Multiplier  float64
	Max         time.Duration
	MaxAttempts int
}

// Delay returns the wait before the given zero-based attempt.
// Attempt 0 waits Base; each subsequent attempt scales by Multiplier
// until Max is reached.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	mult := p.Multiplier
	if mult < 1 {
		mult = 2
	}

	d := float64(p.Base)
	for i := 0; i < attempt; i++ {
		d *= mult
		if p.Max > 0 && d >= float64(p.Max) {
			return p.Max
		}
	}

	if p.Max > 0 && d > float64(p.Max) {
		return p.Max
	}
	return time.Duration(d)
}

// Exhausted reports whether the given zero-based attempt exceeds the
// configured attempt budget.
func (p Policy) Exhausted(attempt int) bool {
	return p.MaxAttempts > 0 && attempt >= p.MaxAttempts
}
