// Package session stores e-commerce login sessions behind the cache facade:
// opaque identifiers, sliding expiry bounded by an absolute lifetime, and a
// per-user index for device management.
package session

// Session is the stored state of one authenticated device.
//
// ExpiresAt slides forward on use; CreatedAt plus the configured absolute
// lifetime is the hard ceiling no slide may pass. Revoked sessions keep
// their record until physical expiry so validation stays deterministic.
type Session struct {
	ID         string
	UserID     string
	DeviceInfo string

	CreatedAt      int64
	LastActivityAt int64
	ExpiresAt      int64

	Revoked bool
}
