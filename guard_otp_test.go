package authguard

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// wrongCode returns a code of equal length that cannot match.
func wrongCode(code string) string {
	b := []byte(code)
	if b[0] == '9' {
		b[0] = '0'
	} else {
		b[0]++
	}
	return string(b)
}

func TestOTP_GenerateAndVerify(t *testing.T) {
	g, _, clk := newTestGuard(t, nil)
	ctx := context.Background()

	issue, err := g.GenerateOTP(ctx, "user@example.com")
	require.NoError(t, err)
	require.Equal(t, StatusOK, issue.Status)
	require.Len(t, issue.Code, 6)
	require.Equal(t, 3, issue.AttemptsAllowed)
	require.Equal(t, clk.Now().Add(5*time.Minute).Unix(), issue.ExpiresAt.Unix())

	ver, err := g.VerifyOTP(ctx, "user@example.com", issue.Code)
	require.NoError(t, err)
	require.Equal(t, StatusOK, ver.Status)
}

func TestOTP_VerifyUnknownDestination(t *testing.T) {
	g, _, _ := newTestGuard(t, nil)

	ver, err := g.VerifyOTP(context.Background(), "nobody@example.com", "123456")
	require.NoError(t, err)
	require.Equal(t, StatusNotFound, ver.Status)
}

func TestOTP_WrongCodeBurnsAttempts(t *testing.T) {
	g, _, _ := newTestGuard(t, nil)
	ctx := context.Background()

	issue, err := g.GenerateOTP(ctx, "user@example.com")
	require.NoError(t, err)
	bad := wrongCode(issue.Code)

	ver, err := g.VerifyOTP(ctx, "user@example.com", bad)
	require.NoError(t, err)
	require.Equal(t, StatusMismatch, ver.Status)
	require.Equal(t, 2, ver.AttemptsRemaining)

	ver, err = g.VerifyOTP(ctx, "user@example.com", bad)
	require.NoError(t, err)
	require.Equal(t, StatusMismatch, ver.Status)
	require.Equal(t, 1, ver.AttemptsRemaining)

	ver, err = g.VerifyOTP(ctx, "user@example.com", bad)
	require.NoError(t, err)
	require.Equal(t, StatusExhausted, ver.Status)

	// Even the right code is dead once attempts ran out.
	ver, err = g.VerifyOTP(ctx, "user@example.com", issue.Code)
	require.NoError(t, err)
	require.Equal(t, StatusExhausted, ver.Status)
}

func TestOTP_ConsumedExactlyOnce(t *testing.T) {
	g, _, _ := newTestGuard(t, nil)
	ctx := context.Background()

	issue, err := g.GenerateOTP(ctx, "user@example.com")
	require.NoError(t, err)

	ver, err := g.VerifyOTP(ctx, "user@example.com", issue.Code)
	require.NoError(t, err)
	require.Equal(t, StatusOK, ver.Status)

	// Replays report consumption, correct code or not.
	ver, err = g.VerifyOTP(ctx, "user@example.com", issue.Code)
	require.NoError(t, err)
	require.Equal(t, StatusAlreadyConsumed, ver.Status)

	ver, err = g.VerifyOTP(ctx, "user@example.com", wrongCode(issue.Code))
	require.NoError(t, err)
	require.Equal(t, StatusAlreadyConsumed, ver.Status)
}

func TestOTP_Expiry(t *testing.T) {
	g, _, clk := newTestGuard(t, nil)
	ctx := context.Background()

	issue, err := g.GenerateOTP(ctx, "user@example.com")
	require.NoError(t, err)

	clk.Advance(6 * time.Minute)

	ver, err := g.VerifyOTP(ctx, "user@example.com", issue.Code)
	require.NoError(t, err)
	require.Equal(t, StatusExpired, ver.Status)
}

func TestOTP_NewCodeReplacesOld(t *testing.T) {
	g, _, _ := newTestGuard(t, nil)
	ctx := context.Background()

	first, err := g.GenerateOTP(ctx, "user@example.com")
	require.NoError(t, err)

	// Burn an attempt against the first code.
	_, err = g.VerifyOTP(ctx, "user@example.com", wrongCode(first.Code))
	require.NoError(t, err)

	second, err := g.GenerateOTP(ctx, "user@example.com")
	require.NoError(t, err)

	// The replacement starts with a clean attempt budget; the old code is
	// now just another wrong guess.
	if first.Code != second.Code {
		ver, err := g.VerifyOTP(ctx, "user@example.com", first.Code)
		require.NoError(t, err)
		require.Equal(t, StatusMismatch, ver.Status)
		require.Equal(t, 2, ver.AttemptsRemaining)
	}

	ver, err := g.VerifyOTP(ctx, "user@example.com", second.Code)
	require.NoError(t, err)
	require.Equal(t, StatusOK, ver.Status)
}

func TestOTP_GenerationCap(t *testing.T) {
	g, _, clk := newTestGuard(t, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		issue, err := g.GenerateOTP(ctx, "user@example.com")
		require.NoError(t, err)
		require.Equal(t, StatusOK, issue.Status)
	}

	issue, err := g.GenerateOTP(ctx, "user@example.com")
	require.NoError(t, err)
	require.Equal(t, StatusRateLimited, issue.Status)
	require.Empty(t, issue.Code)
	require.Greater(t, issue.RetryAfter, time.Duration(0))

	// Other destinations are unaffected.
	issue, err = g.GenerateOTP(ctx, "other@example.com")
	require.NoError(t, err)
	require.Equal(t, StatusOK, issue.Status)

	clk.Advance(61 * time.Minute)

	issue, err = g.GenerateOTP(ctx, "user@example.com")
	require.NoError(t, err)
	require.Equal(t, StatusOK, issue.Status)
}

func TestOTP_ResendThrottle(t *testing.T) {
	g, _, clk := newTestGuard(t, nil)
	ctx := context.Background()

	_, err := g.GenerateOTP(ctx, "user@example.com")
	require.NoError(t, err)

	issue, err := g.ResendOTP(ctx, "user@example.com")
	require.NoError(t, err)
	require.Equal(t, StatusOK, issue.Status)

	issue, err = g.ResendOTP(ctx, "user@example.com")
	require.NoError(t, err)
	require.Equal(t, StatusRateLimited, issue.Status)

	clk.Advance(3 * time.Minute)

	issue, err = g.ResendOTP(ctx, "user@example.com")
	require.NoError(t, err)
	require.Equal(t, StatusOK, issue.Status)
}

func TestOTP_ResendIndependentOfGenerationCap(t *testing.T) {
	g, _, _ := newTestGuard(t, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := g.GenerateOTP(ctx, "user@example.com")
		require.NoError(t, err)
	}
	issue, err := g.GenerateOTP(ctx, "user@example.com")
	require.NoError(t, err)
	require.Equal(t, StatusRateLimited, issue.Status)

	// Resend still works: it throttles on its own shorter window.
	issue, err = g.ResendOTP(ctx, "user@example.com")
	require.NoError(t, err)
	require.Equal(t, StatusOK, issue.Status)
}

func TestOTP_ClientAddressCap(t *testing.T) {
	g, _, _ := newTestGuard(t, func(cfg *Config) {
		cfg.OTP.ClientLimit = 2
	})
	ctx := WithClientIP(context.Background(), "198.51.100.7")

	for i := 0; i < 2; i++ {
		dest := string(rune('a'+i)) + "@example.com"
		issue, err := g.GenerateOTP(ctx, dest)
		require.NoError(t, err)
		require.Equal(t, StatusOK, issue.Status)
	}

	issue, err := g.GenerateOTP(ctx, "c@example.com")
	require.NoError(t, err)
	require.Equal(t, StatusRateLimited, issue.Status)

	// A request without a client address is only bound by the
	// per-destination cap.
	issue, err = g.GenerateOTP(context.Background(), "c@example.com")
	require.NoError(t, err)
	require.Equal(t, StatusOK, issue.Status)
}
