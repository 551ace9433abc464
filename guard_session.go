package authguard

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/evercart/authguard/internal"
	"github.com/evercart/authguard/session"
)

// CreateSession opens a session for the user and returns its opaque id with
// expiry metadata. deviceInfo is free-form and comes back from
// ListActiveSessions for device management.
func (g *Guard) CreateSession(ctx context.Context, userID, deviceInfo string) (SessionTicket, error) {
	if err := g.checkOpen(); err != nil {
		return SessionTicket{}, err
	}
	sid, err := internal.NewSessionID()
	if err != nil {
		return SessionTicket{}, err
	}

	now := g.now()
	absolute := now.Add(g.config.Session.AbsoluteLifetime)
	expires := now.Add(g.config.Session.MaxIdle)
	if expires.After(absolute) {
		expires = absolute
	}

	sess := &session.Session{
		ID:             sid.String(),
		UserID:         userID,
		DeviceInfo:     deviceInfo,
		CreatedAt:      now.Unix(),
		LastActivityAt: now.Unix(),
		ExpiresAt:      expires.Unix(),
	}

	// Physical TTL runs to the absolute cap so revoked records survive
	// long enough to keep rejections deterministic.
	if err := g.sessions.Save(ctx, sess, absolute.Sub(now), g.config.Session.AbsoluteLifetime); err != nil {
		return SessionTicket{}, err
	}

	g.metrics.inc(MetricSessionCreated)
	g.log.Debug("session created", zap.String("user_id", userID))

	return SessionTicket{
		ID:                sess.ID,
		UserID:            userID,
		ExpiresAt:         expires,
		AbsoluteExpiresAt: absolute,
	}, nil
}

// ValidateSession checks a presented session id. With touch set, a valid
// session slides its idle deadline forward, never past the absolute cap.
// Concurrent touches all push ExpiresAt by the same formula, so
// last-write-wins is safe.
func (g *Guard) ValidateSession(ctx context.Context, id string, touch bool) (SessionValidation, error) {
	if err := g.checkOpen(); err != nil {
		return SessionValidation{}, err
	}
	if _, err := internal.ParseSessionID(id); err != nil {
		g.metrics.inc(MetricSessionRejected)
		return SessionValidation{Status: StatusNotFound}, nil
	}

	sess, found, err := g.sessions.Get(ctx, id)
	if err != nil {
		return SessionValidation{}, err
	}
	if !found {
		g.metrics.inc(MetricSessionRejected)
		return SessionValidation{Status: StatusNotFound}, nil
	}

	if sess.Revoked {
		g.metrics.inc(MetricSessionRejected)
		return SessionValidation{Status: StatusRevoked, UserID: sess.UserID}, nil
	}

	now := g.now()
	absolute := time.Unix(sess.CreatedAt, 0).Add(g.config.Session.AbsoluteLifetime)
	if !now.Before(time.Unix(sess.ExpiresAt, 0)) || !now.Before(absolute) {
		g.metrics.inc(MetricSessionRejected)
		return SessionValidation{Status: StatusExpired, UserID: sess.UserID}, nil
	}

	if touch {
		expires := now.Add(g.config.Session.MaxIdle)
		if expires.After(absolute) {
			expires = absolute
		}
		sess.ExpiresAt = expires.Unix()
		sess.LastActivityAt = now.Unix()
		if err := g.sessions.Update(ctx, sess, absolute.Sub(now)); err != nil {
			return SessionValidation{}, err
		}
	}

	g.metrics.inc(MetricSessionValidated)
	return SessionValidation{
		Status:         StatusOK,
		UserID:         sess.UserID,
		ExpiresAt:      time.Unix(sess.ExpiresAt, 0),
		LastActivityAt: time.Unix(sess.LastActivityAt, 0),
	}, nil
}

// RevokeSession flags the session revoked. Later validations return
// StatusRevoked deterministically until physical expiry removes the record.
func (g *Guard) RevokeSession(ctx context.Context, id string) (bool, error) {
	if err := g.checkOpen(); err != nil {
		return false, err
	}
	sess, found, err := g.sessions.Get(ctx, id)
	if err != nil || !found {
		return false, err
	}
	if sess.Revoked {
		return true, nil
	}

	sess.Revoked = true

	remaining := time.Unix(sess.CreatedAt, 0).
		Add(g.config.Session.AbsoluteLifetime).Sub(g.now())
	if remaining < time.Second {
		remaining = time.Second
	}
	if err := g.sessions.Update(ctx, sess, remaining); err != nil {
		return false, err
	}

	g.metrics.inc(MetricSessionRevoked)
	g.log.Info("session revoked", zap.String("user_id", sess.UserID))
	return true, nil
}

// RevokeAllSessions revokes every live session of the user and returns how
// many it touched.
func (g *Guard) RevokeAllSessions(ctx context.Context, userID string) (int, error) {
	if err := g.checkOpen(); err != nil {
		return 0, err
	}
	ids, err := g.sessions.IDsForUser(ctx, userID)
	if err != nil {
		return 0, err
	}

	revoked := 0
	for _, id := range ids {
		ok, err := g.RevokeSession(ctx, id)
		if err != nil {
			return revoked, err
		}
		if ok {
			revoked++
		} else {
			// Record already gone; drop the stale index entry.
			_ = g.sessions.Unlink(ctx, userID, id)
		}
	}
	return revoked, nil
}

// ListActiveSessions enumerates the user's live sessions for device
// management. Stale index entries are pruned as a side effect.
func (g *Guard) ListActiveSessions(ctx context.Context, userID string) ([]SessionInfo, error) {
	if err := g.checkOpen(); err != nil {
		return nil, err
	}
	ids, err := g.sessions.IDsForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := g.now()
	var active []SessionInfo
	for _, id := range ids {
		sess, found, err := g.sessions.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if !found {
			_ = g.sessions.Unlink(ctx, userID, id)
			continue
		}
		if sess.Revoked || !now.Before(time.Unix(sess.ExpiresAt, 0)) {
			continue
		}
		active = append(active, SessionInfo{
			ID:             sess.ID,
			UserID:         sess.UserID,
			DeviceInfo:     sess.DeviceInfo,
			CreatedAt:      time.Unix(sess.CreatedAt, 0),
			LastActivityAt: time.Unix(sess.LastActivityAt, 0),
			ExpiresAt:      time.Unix(sess.ExpiresAt, 0),
		})
	}
	return active, nil
}
