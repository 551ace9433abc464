package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/evercart/authguard/internal/backoff"
	"github.com/evercart/authguard/internal/fallback"
	"github.com/evercart/authguard/internal/pool"
)

func newTestFacade(t *testing.T, clk *fakeClock) (*Facade, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })

	// A tolerant pool keeps routing decisions with the breaker alone.
	p := pool.New(pool.Config{
		ProbeInterval:    time.Hour,
		ProbeTimeout:     100 * time.Millisecond,
		FailureThreshold: 1 << 20,
		SuccessThreshold: 1,
		Reconnect:        backoff.Policy{Base: time.Hour, Max: time.Hour},
	}, client, nil, nil)
	t.Cleanup(p.Close)

	f := New(Config{
		CallTimeout: 200 * time.Millisecond,
		Breaker: BreakerConfig{
			FailureThreshold: 3,
			FailureWindow:    time.Minute,
			Cooldown:         10 * time.Second,
			MaxCooldown:      40 * time.Second,
		},
	}, p, fallback.New(time.Minute), nil, nil, clk.Now)

	return f, mr
}

func TestFacade_PrimaryRoundTrip(t *testing.T) {
	f, mr := newTestFacade(t, newFakeClock())
	ctx := context.Background()

	require.NoError(t, f.Set(ctx, "k", "v", time.Minute))

	v, ok, err := f.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "v", v)

	// Served by the shared cache, not the fallback.
	got, err := mr.Get("k")
	require.NoError(t, err)
	require.Equal(t, "v", got)
}

func TestFacade_IncrSetsTTLOnFirstHit(t *testing.T) {
	f, mr := newTestFacade(t, newFakeClock())
	ctx := context.Background()

	n, err := f.IncrWithTTL(ctx, "c", time.Minute)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
	require.Greater(t, mr.TTL("c"), time.Duration(0))

	n, err = f.IncrWithTTL(ctx, "c", time.Minute)
	require.NoError(t, err)
	require.Equal(t, int64(2), n)
}

func TestFacade_FailoverIsInvisibleToCallers(t *testing.T) {
	f, mr := newTestFacade(t, newFakeClock())
	ctx := context.Background()

	mr.SetError("forced outage")

	// Every call still yields a semantic result; after the threshold the
	// circuit opens and the primary is no longer consulted.
	for i := 0; i < 5; i++ {
		n, err := f.IncrWithTTL(ctx, "c", time.Minute)
		require.NoError(t, err)
		require.Equal(t, int64(i+1), n)
	}
	require.Equal(t, StateOpen, f.breaker.State())
	require.True(t, f.Degraded())

	v, ok, err := f.Get(ctx, "c")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "5", v)

	stats := f.Stats()
	require.Equal(t, uint64(3), stats.Failovers)
	require.GreaterOrEqual(t, stats.FallbackCalls, uint64(6))
}

func TestFacade_RecoversAfterCooldownProbe(t *testing.T) {
	clk := newFakeClock()
	f, mr := newTestFacade(t, clk)
	ctx := context.Background()

	mr.SetError("forced outage")
	for i := 0; i < 3; i++ {
		_, _ = f.IncrWithTTL(ctx, "c", time.Minute)
	}
	require.Equal(t, StateOpen, f.breaker.State())

	mr.SetError("")
	clk.Advance(11 * time.Second)

	// The next call is the half-open probe; success closes the circuit.
	require.NoError(t, f.Set(ctx, "back", "1", time.Minute))
	require.Equal(t, StateClosed, f.breaker.State())

	got, err := mr.Get("back")
	require.NoError(t, err)
	require.Equal(t, "1", got)
}

func TestFacade_FailedProbeReopens(t *testing.T) {
	clk := newFakeClock()
	f, mr := newTestFacade(t, clk)
	ctx := context.Background()

	mr.SetError("forced outage")
	for i := 0; i < 3; i++ {
		_, _ = f.IncrWithTTL(ctx, "c", time.Minute)
	}

	clk.Advance(11 * time.Second)

	// Probe runs against the still-broken primary and is absorbed too.
	require.NoError(t, f.Set(ctx, "k", "v", time.Minute))
	require.Equal(t, StateOpen, f.breaker.State())

	v, ok, _ := f.Get(ctx, "k")
	require.True(t, ok)
	require.Equal(t, "v", v)
}
