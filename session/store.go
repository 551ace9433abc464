package session

import (
	"context"
	"time"

	"github.com/evercart/authguard/internal/cache"
)

// Store persists sessions and the per-user index through the cache facade.
// Lifecycle policy (sliding windows, absolute caps, revocation semantics)
// lives with the caller; the store only moves records.
type Store struct {
	facade *cache.Facade
	prefix string
}

// NewStore creates a session store. prefix defaults to "ag".
func NewStore(facade *cache.Facade, prefix string) *Store {
	if prefix == "" {
		prefix = "ag"
	}
	return &Store{facade: facade, prefix: prefix}
}

func (s *Store) recordKey(id string) string {
	return s.prefix + "s:" + id
}

func (s *Store) userKey(userID string) string {
	return s.prefix + "u:" + userID
}

// Save writes the session record with the given physical ttl and indexes it
// under its user.
func (s *Store) Save(ctx context.Context, sess *Session, ttl time.Duration, indexTTL time.Duration) error {
	encoded, err := Encode(sess)
	if err != nil {
		return err
	}
	if err := s.facade.Set(ctx, s.recordKey(sess.ID), string(encoded), ttl); err != nil {
		return err
	}
	return s.facade.SetAdd(ctx, s.userKey(sess.UserID), sess.ID, indexTTL)
}

// Update rewrites an existing record without touching the index.
func (s *Store) Update(ctx context.Context, sess *Session, ttl time.Duration) error {
	encoded, err := Encode(sess)
	if err != nil {
		return err
	}
	return s.facade.Set(ctx, s.recordKey(sess.ID), string(encoded), ttl)
}

// Get returns the stored session, if any. Corrupt records read as absent.
func (s *Store) Get(ctx context.Context, id string) (*Session, bool, error) {
	value, found, err := s.facade.Get(ctx, s.recordKey(id))
	if err != nil || !found {
		return nil, false, err
	}

	sess, err := Decode([]byte(value))
	if err != nil {
		_ = s.facade.Delete(ctx, s.recordKey(id))
		return nil, false, nil
	}
	return sess, true, nil
}

// Delete removes the record and unlinks it from the user index.
func (s *Store) Delete(ctx context.Context, userID, id string) error {
	if err := s.facade.Delete(ctx, s.recordKey(id)); err != nil {
		return err
	}
	return s.facade.SetRemove(ctx, s.userKey(userID), id)
}

// IDsForUser lists session ids indexed under the user, including ids whose
// records may have physically expired; callers filter on read.
func (s *Store) IDsForUser(ctx context.Context, userID string) ([]string, error) {
	return s.facade.SetMembers(ctx, s.userKey(userID))
}

// Unlink removes a stale id from the user index.
func (s *Store) Unlink(ctx context.Context, userID, id string) error {
	return s.facade.SetRemove(ctx, s.userKey(userID), id)
}
