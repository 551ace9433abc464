package pool

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/evercart/authguard/internal/backoff"
)

func testConfig() Config {
	return Config{
		ProbeInterval:    10 * time.Millisecond,
		ProbeTimeout:     50 * time.Millisecond,
		FailureThreshold: 2,
		SuccessThreshold: 1,
		Reconnect: backoff.Policy{
			Base:       5 * time.Millisecond,
			Multiplier: 2,
			Max:        20 * time.Millisecond,
		},
	}
}

func TestPool_HealthyAfterStart(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	p := New(testConfig(), client, nil, nil)
	defer p.Close()

	require.True(t, p.Healthy())

	handle, err := p.Acquire("test")
	require.NoError(t, err)
	require.NotNil(t, handle)
}

func TestPool_StartsDegradedWhenUnreachable(t *testing.T) {
	// Nothing listens on this address.
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 20 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	p := New(testConfig(), client, nil, nil)
	defer p.Close()

	require.False(t, p.Healthy())

	_, err := p.Acquire("test")
	require.ErrorIs(t, err, ErrNotAvailable)
}

func TestPool_ReportedFailuresFlipHealth(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	cfg := testConfig()
	cfg.ProbeInterval = time.Hour // keep the probe out of the way
	p := New(cfg, client, nil, nil)
	defer p.Close()

	p.ReportFailure()
	require.True(t, p.Healthy())
	p.ReportFailure()
	require.False(t, p.Healthy())
}

func TestPool_ProbeRecoversHealth(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	p := New(testConfig(), client, nil, nil)
	defer p.Close()

	p.ReportFailure()
	p.ReportFailure()
	require.False(t, p.Healthy())

	// The background probe pings the live server and recovers health.
	require.Eventually(t, p.Healthy, time.Second, 5*time.Millisecond)
}
