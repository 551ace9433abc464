package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	t time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.t = c.t.Add(d)
}

func testBreaker(clk *fakeClock) *Breaker {
	return NewBreaker(BreakerConfig{
		FailureThreshold: 3,
		FailureWindow:    time.Minute,
		Cooldown:         10 * time.Second,
		MaxCooldown:      40 * time.Second,
	}, nil, clk.Now)
}

func TestBreaker_OpensAtThreshold(t *testing.T) {
	clk := newFakeClock()
	b := testBreaker(clk)

	for i := 0; i < 2; i++ {
		b.OnFailure(false)
		require.Equal(t, StateClosed, b.State())
	}
	b.OnFailure(false)
	require.Equal(t, StateOpen, b.State())

	usePrimary, _ := b.Allow()
	require.False(t, usePrimary)
}

func TestBreaker_WindowedFailuresExpire(t *testing.T) {
	clk := newFakeClock()
	b := testBreaker(clk)

	b.OnFailure(false)
	b.OnFailure(false)

	// Old failures age out of the sliding window.
	clk.Advance(2 * time.Minute)
	b.OnFailure(false)

	require.Equal(t, StateClosed, b.State())
}

func TestBreaker_HalfOpenAdmitsSingleProbe(t *testing.T) {
	clk := newFakeClock()
	b := testBreaker(clk)

	for i := 0; i < 3; i++ {
		b.OnFailure(false)
	}
	require.Equal(t, StateOpen, b.State())

	clk.Advance(10 * time.Second)

	usePrimary, probe := b.Allow()
	require.True(t, usePrimary)
	require.True(t, probe)
	require.Equal(t, StateHalfOpen, b.State())

	// Only one probe in flight at a time.
	usePrimary, _ = b.Allow()
	require.False(t, usePrimary)
}

func TestBreaker_ProbeSuccessCloses(t *testing.T) {
	clk := newFakeClock()
	b := testBreaker(clk)

	for i := 0; i < 3; i++ {
		b.OnFailure(false)
	}
	clk.Advance(10 * time.Second)
	_, probe := b.Allow()
	require.True(t, probe)

	b.OnSuccess(probe)
	require.Equal(t, StateClosed, b.State())

	usePrimary, probe := b.Allow()
	require.True(t, usePrimary)
	require.False(t, probe)
}

func TestBreaker_ProbeFailureDoublesCooldown(t *testing.T) {
	clk := newFakeClock()
	b := testBreaker(clk)

	for i := 0; i < 3; i++ {
		b.OnFailure(false)
	}

	// First probe fails: cooldown doubles to 20s.
	clk.Advance(10 * time.Second)
	_, probe := b.Allow()
	require.True(t, probe)
	b.OnFailure(probe)
	require.Equal(t, StateOpen, b.State())

	clk.Advance(10 * time.Second)
	usePrimary, _ := b.Allow()
	require.False(t, usePrimary, "cooldown doubled, 10s is not enough")

	clk.Advance(10 * time.Second)
	_, probe = b.Allow()
	require.True(t, probe)

	// Second failed probe: 40s. Third would stay capped at MaxCooldown.
	b.OnFailure(probe)
	clk.Advance(40 * time.Second)
	_, probe = b.Allow()
	require.True(t, probe)
	b.OnFailure(probe)

	clk.Advance(40 * time.Second)
	usePrimary, probe = b.Allow()
	require.True(t, usePrimary, "cooldown capped at 40s")
	require.True(t, probe)

	// Successful probe resets the cooldown to its base.
	b.OnSuccess(probe)
	require.Equal(t, StateClosed, b.State())
}

func TestBreaker_TransitionCallback(t *testing.T) {
	clk := newFakeClock()
	b := testBreaker(clk)

	var transitions []State
	b.OnTransition(func(_, to State) {
		transitions = append(transitions, to)
	})

	for i := 0; i < 3; i++ {
		b.OnFailure(false)
	}
	clk.Advance(10 * time.Second)
	_, probe := b.Allow()
	b.OnSuccess(probe)

	require.Equal(t, []State{StateOpen, StateHalfOpen, StateClosed}, transitions)
}
