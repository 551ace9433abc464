// Package fallback provides the process-local in-memory store the cache
// facade degrades to while the shared cache is unreachable.
//
// The store mirrors the facade backend contract exactly, so higher layers
// never branch on which backend served a call. Expired entries are invisible
// to reads immediately and physically removed by a background sweep at a
// bounded interval.
package fallback

import (
	"context"
	"strconv"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Store is an in-memory substitute for the shared cache. All operations
// return synchronously and never fail; the error returns exist only to
// satisfy the shared backend contract.
type Store struct {
	// mu serializes read-modify-write operations (increments, set
	// mutations). Plain gets and sets go through go-cache's own locking.
	mu    sync.Mutex
	cache *gocache.Cache
}

// New creates a Store whose background sweep runs every sweepInterval.
func New(sweepInterval time.Duration) *Store {
	if sweepInterval <= 0 {
		sweepInterval = time.Minute
	}
	return &Store{
		cache: gocache.New(gocache.NoExpiration, sweepInterval),
	}
}

// Name identifies the backend in events and logs.
func (s *Store) Name() string { return "fallback" }

// Get returns the value for key. Counter values are rendered as decimal
// strings, matching what a GET on the shared cache returns.
func (s *Store) Get(_ context.Context, key string) (string, bool, error) {
	v, ok := s.cache.Get(key)
	if !ok {
		return "", false, nil
	}

	switch value := v.(type) {
	case string:
		return value, true, nil
	case int64:
		return strconv.FormatInt(value, 10), true, nil
	default:
		return "", false, nil
	}
}

// Set stores value under key. A non-positive ttl stores without expiry.
func (s *Store) Set(_ context.Context, key, value string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = gocache.NoExpiration
	}
	s.cache.Set(key, value, ttl)
	return nil
}

// Delete removes the given keys. Missing keys are ignored.
func (s *Store) Delete(_ context.Context, keys ...string) error {
	for _, key := range keys {
		s.cache.Delete(key)
	}
	return nil
}

// IncrWithTTL atomically increments the counter at key and returns the
// post-increment value. The first increment of a key creates it with the
// given ttl; later increments keep the original expiry.
func (s *Store) IncrWithTTL(_ context.Context, key string, ttl time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.cache.Get(key); !ok {
		if ttl <= 0 {
			ttl = gocache.NoExpiration
		}
		s.cache.Set(key, int64(1), ttl)
		return 1, nil
	}

	count, err := s.cache.IncrementInt64(key, 1)
	if err != nil {
		// The entry expired between the existence check and the increment.
		s.cache.Set(key, int64(1), ttl)
		return 1, nil
	}
	return count, nil
}

// SetAdd adds member to the string set at key, creating the set with the
// given ttl when absent. Re-adding refreshes the set's expiry.
func (s *Store) SetAdd(_ context.Context, key, member string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ttl <= 0 {
		ttl = gocache.NoExpiration
	}

	members := map[string]struct{}{}
	if v, ok := s.cache.Get(key); ok {
		if existing, ok := v.(map[string]struct{}); ok {
			for m := range existing {
				members[m] = struct{}{}
			}
		}
	}
	members[member] = struct{}{}
	s.cache.Set(key, members, ttl)
	return nil
}

// SetRemove removes member from the set at key, if present.
func (s *Store) SetRemove(_ context.Context, key, member string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, expiry, ok := s.cache.GetWithExpiration(key)
	if !ok {
		return nil
	}
	existing, ok := v.(map[string]struct{})
	if !ok {
		return nil
	}

	members := map[string]struct{}{}
	for m := range existing {
		if m != member {
			members[m] = struct{}{}
		}
	}

	ttl := time.Duration(gocache.NoExpiration)
	if !expiry.IsZero() {
		ttl = time.Until(expiry)
		if ttl <= 0 {
			s.cache.Delete(key)
			return nil
		}
	}
	s.cache.Set(key, members, ttl)
	return nil
}

// SetMembers returns the members of the set at key, unordered.
func (s *Store) SetMembers(_ context.Context, key string) ([]string, error) {
	v, ok := s.cache.Get(key)
	if !ok {
		return nil, nil
	}
	members, ok := v.(map[string]struct{})
	if !ok {
		return nil, nil
	}

	out := make([]string, 0, len(members))
	for m := range members {
		out = append(out, m)
	}
	return out, nil
}

// ItemCount reports the number of live entries, for health snapshots.
func (s *Store) ItemCount() int {
	return s.cache.ItemCount()
}

// Flush drops all entries. Test helper.
func (s *Store) Flush() {
	s.cache.Flush()
}
