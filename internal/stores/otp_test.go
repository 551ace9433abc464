package stores

import (
	"context"
	"crypto/sha256"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/evercart/authguard/internal/backoff"
	"github.com/evercart/authguard/internal/cache"
	"github.com/evercart/authguard/internal/fallback"
	"github.com/evercart/authguard/internal/pool"
)

func newTestStore(t *testing.T) *OTPStore {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })

	p := pool.New(pool.Config{
		ProbeInterval:    time.Hour,
		ProbeTimeout:     100 * time.Millisecond,
		FailureThreshold: 1 << 20,
		SuccessThreshold: 1,
		Reconnect:        backoff.Policy{Base: time.Hour, Max: time.Hour},
	}, client, nil, nil)
	t.Cleanup(p.Close)

	facade := cache.New(cache.Config{
		CallTimeout: 200 * time.Millisecond,
		Breaker: cache.BreakerConfig{
			FailureThreshold: 3,
			FailureWindow:    time.Minute,
			Cooldown:         10 * time.Second,
			MaxCooldown:      time.Minute,
		},
	}, p, fallback.New(time.Minute), nil, nil, nil)

	return NewOTPStore(facade, "ao")
}

func sampleRecord(destination string) *OTPRecord {
	return &OTPRecord{
		Destination: destination,
		CodeHash:    sha256.Sum256([]byte("483921")),
		IssuedAt:    1748779200,
		ExpiresAt:   1748779500,
		MaxAttempts: 3,
	}
}

func TestOTPRecord_Codec(t *testing.T) {
	original := sampleRecord("user@example.com")

	encoded, err := encodeOTPRecord(original)
	require.NoError(t, err)

	decoded, err := decodeOTPRecord(encoded)
	require.NoError(t, err)
	require.Equal(t, original, decoded)
}

func TestOTPRecord_DecodeRejectsCorrupt(t *testing.T) {
	encoded, err := encodeOTPRecord(sampleRecord("user@example.com"))
	require.NoError(t, err)

	cases := map[string][]byte{
		"empty":         {},
		"bad version":   append([]byte{99}, encoded[1:]...),
		"truncated":     encoded[:len(encoded)-5],
		"header only":   encoded[:2],
		"short payload": encoded[:20],
	}
	for name, data := range cases {
		_, err := decodeOTPRecord(data)
		require.ErrorIs(t, err, ErrOTPRecordCorrupt, name)
	}
}

func TestOTPStore_SaveResetsCounters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, sampleRecord("d1"), time.Minute))

	used, err := s.IncrAttempts(ctx, "d1", time.Minute)
	require.NoError(t, err)
	require.Equal(t, int64(1), used)

	claim, err := s.MarkConsumed(ctx, "d1", time.Minute)
	require.NoError(t, err)
	require.Equal(t, int64(1), claim)
	require.True(t, s.Consumed(ctx, "d1"))

	// A replacement record starts with a full budget and no consumption.
	require.NoError(t, s.Save(ctx, sampleRecord("d1"), time.Minute))
	require.Equal(t, int64(0), s.AttemptsUsed(ctx, "d1"))
	require.False(t, s.Consumed(ctx, "d1"))
}

func TestOTPStore_CorruptRecordReadsAsAbsent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.facade.Set(ctx, s.recordKey("d1"), "garbage", time.Minute))

	_, found, err := s.Get(ctx, "d1")
	require.NoError(t, err)
	require.False(t, found)

	// The bad record was dropped on read.
	_, found, err = s.facade.Get(ctx, s.recordKey("d1"))
	require.NoError(t, err)
	require.False(t, found)
}

func TestOTPStore_MarkConsumedSingleWinner(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, sampleRecord("d1"), time.Minute))

	first, err := s.MarkConsumed(ctx, "d1", time.Minute)
	require.NoError(t, err)
	second, err := s.MarkConsumed(ctx, "d1", time.Minute)
	require.NoError(t, err)

	require.Equal(t, int64(1), first)
	require.Greater(t, second, int64(1))
}
