// Package stores holds the record codecs and key schemas for state kept
// behind the cache facade: one-time codes and their attempt counters.
//
// Records never hold the raw secret: the code is stored as a SHA-256 hash
// and compared in constant time by the caller.
package stores

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/evercart/authguard/internal/cache"
)

const otpRecordVersionV1 = 1

// ErrOTPRecordCorrupt indicates a stored record failed to decode.
var ErrOTPRecordCorrupt = errors.New("otp record corrupt")

// OTPRecord is the stored shape of one issued code.
type OTPRecord struct {
	Destination string
	CodeHash    [32]byte
	IssuedAt    int64
	ExpiresAt   int64
	MaxAttempts uint8
}

// OTPStore keeps at most one active record per destination, plus two
// counters whose atomic increments drive the verify lifecycle: attempts
// used and consumptions. Counters rather than read-modify-write keep the
// transitions race-free across processes without in-process locks.
type OTPStore struct {
	facade *cache.Facade
	prefix string
}

// NewOTPStore creates the store. prefix defaults to "ao".
func NewOTPStore(facade *cache.Facade, prefix string) *OTPStore {
	if prefix == "" {
		prefix = "ao"
	}
	return &OTPStore{facade: facade, prefix: prefix}
}

func (s *OTPStore) recordKey(destination string) string {
	return s.prefix + "c:" + destination
}

func (s *OTPStore) attemptsKey(destination string) string {
	return s.prefix + "a:" + destination
}

func (s *OTPStore) consumedKey(destination string) string {
	return s.prefix + "v:" + destination
}

// Save writes a fresh record for the destination, replacing any prior one
// and clearing its counters so the new code starts with a full budget.
func (s *OTPStore) Save(ctx context.Context, record *OTPRecord, ttl time.Duration) error {
	encoded, err := encodeOTPRecord(record)
	if err != nil {
		return err
	}

	if err := s.facade.Delete(ctx,
		s.attemptsKey(record.Destination), s.consumedKey(record.Destination)); err != nil {
		return err
	}
	return s.facade.Set(ctx, s.recordKey(record.Destination), string(encoded), ttl)
}

// Get returns the active record for the destination, if any.
func (s *OTPStore) Get(ctx context.Context, destination string) (*OTPRecord, bool, error) {
	value, found, err := s.facade.Get(ctx, s.recordKey(destination))
	if err != nil || !found {
		return nil, false, err
	}

	record, err := decodeOTPRecord([]byte(value))
	if err != nil {
		// Unreadable records are dropped rather than surfaced.
		_ = s.Delete(ctx, destination)
		return nil, false, nil
	}
	return record, true, nil
}

// Delete removes the record and counters for the destination.
func (s *OTPStore) Delete(ctx context.Context, destination string) error {
	return s.facade.Delete(ctx,
		s.recordKey(destination),
		s.attemptsKey(destination),
		s.consumedKey(destination))
}

// IncrAttempts atomically counts one verification attempt and returns the
// total used so far.
func (s *OTPStore) IncrAttempts(ctx context.Context, destination string, ttl time.Duration) (int64, error) {
	return s.facade.IncrWithTTL(ctx, s.attemptsKey(destination), ttl)
}

// AttemptsUsed returns the attempts consumed so far without counting one.
func (s *OTPStore) AttemptsUsed(ctx context.Context, destination string) int64 {
	return s.counter(ctx, s.attemptsKey(destination))
}

// MarkConsumed atomically claims the one-time consumption. The return value
// is 1 for the winning caller and greater for everyone after.
func (s *OTPStore) MarkConsumed(ctx context.Context, destination string, ttl time.Duration) (int64, error) {
	return s.facade.IncrWithTTL(ctx, s.consumedKey(destination), ttl)
}

// Consumed reports whether the active code has already been used.
func (s *OTPStore) Consumed(ctx context.Context, destination string) bool {
	return s.counter(ctx, s.consumedKey(destination)) > 0
}

func (s *OTPStore) counter(ctx context.Context, key string) int64 {
	value, found, err := s.facade.Get(ctx, key)
	if err != nil || !found {
		return 0
	}
	var count int64
	if _, err := fmt.Sscanf(value, "%d", &count); err != nil {
		return 0
	}
	return count
}

func encodeOTPRecord(record *OTPRecord) ([]byte, error) {
	if len(record.Destination) > 65535 {
		return nil, errors.New("otp destination too long")
	}

	var buf bytes.Buffer
	buf.WriteByte(otpRecordVersionV1)
	buf.WriteByte(record.MaxAttempts)

	if err := binary.Write(&buf, binary.BigEndian, record.IssuedAt); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, record.ExpiresAt); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, uint16(len(record.Destination))); err != nil {
		return nil, err
	}
	buf.WriteString(record.Destination)
	buf.Write(record.CodeHash[:])

	return buf.Bytes(), nil
}

func decodeOTPRecord(data []byte) (*OTPRecord, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, ErrOTPRecordCorrupt
	}
	if version != otpRecordVersionV1 {
		return nil, ErrOTPRecordCorrupt
	}

	record := &OTPRecord{}

	maxAttempts, err := reader.ReadByte()
	if err != nil {
		return nil, ErrOTPRecordCorrupt
	}
	record.MaxAttempts = maxAttempts

	if err := binary.Read(reader, binary.BigEndian, &record.IssuedAt); err != nil {
		return nil, ErrOTPRecordCorrupt
	}
	if err := binary.Read(reader, binary.BigEndian, &record.ExpiresAt); err != nil {
		return nil, ErrOTPRecordCorrupt
	}

	var destLen uint16
	if err := binary.Read(reader, binary.BigEndian, &destLen); err != nil {
		return nil, ErrOTPRecordCorrupt
	}
	destination := make([]byte, destLen)
	if _, err := io.ReadFull(reader, destination); err != nil {
		return nil, ErrOTPRecordCorrupt
	}
	record.Destination = string(destination)

	if _, err := io.ReadFull(reader, record.CodeHash[:]); err != nil {
		return nil, ErrOTPRecordCorrupt
	}

	return record, nil
}
