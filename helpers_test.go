package authguard

import (
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

// testClock is a settable clock shared by the guard's time-driven paths.
type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func testGuardConfig() Config {
	cfg := defaultConfig()
	cfg.Cache.ProbeInterval = time.Hour
	cfg.Cache.ReconnectBase = time.Hour
	cfg.Cache.ReconnectMax = time.Hour
	cfg.Cache.PoolFailureThreshold = 1 << 20
	cfg.Cache.BreakerFailureThreshold = 3
	cfg.Cache.BreakerCooldown = 10 * time.Second
	cfg.Login.FailureThreshold = 3
	cfg.Login.LockBase = time.Minute
	cfg.Login.LockMax = 8 * time.Minute
	return cfg
}

func newTestGuard(t *testing.T, mutate func(*Config)) (*Guard, *miniredis.Miniredis, *testClock) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })

	cfg := testGuardConfig()
	if mutate != nil {
		mutate(&cfg)
	}

	clk := newTestClock()
	builder := New().WithConfig(cfg).WithRedis(client)
	builder.now = clk.Now

	guard, err := builder.Build()
	require.NoError(t, err)
	t.Cleanup(guard.Close)

	return guard, mr, clk
}
