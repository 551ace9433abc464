package session

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
)

const recordVersionV1 = 1

const flagRevoked = 1 << 0

// ErrRecordCorrupt indicates a stored session blob failed to decode.
var ErrRecordCorrupt = errors.New("session record corrupt")

// Encode renders a session into its versioned wire form.
func Encode(s *Session) ([]byte, error) {
	if len(s.ID) > 255 {
		return nil, errors.New("session id too long")
	}
	if len(s.UserID) > 65535 || len(s.DeviceInfo) > 65535 {
		return nil, errors.New("session field too long")
	}

	var flags byte
	if s.Revoked {
		flags |= flagRevoked
	}

	var buf bytes.Buffer
	buf.WriteByte(recordVersionV1)
	buf.WriteByte(flags)

	for _, ts := range []int64{s.CreatedAt, s.LastActivityAt, s.ExpiresAt} {
		if err := binary.Write(&buf, binary.BigEndian, ts); err != nil {
			return nil, err
		}
	}

	buf.WriteByte(byte(len(s.ID)))
	buf.WriteString(s.ID)

	if err := binary.Write(&buf, binary.BigEndian, uint16(len(s.UserID))); err != nil {
		return nil, err
	}
	buf.WriteString(s.UserID)

	if err := binary.Write(&buf, binary.BigEndian, uint16(len(s.DeviceInfo))); err != nil {
		return nil, err
	}
	buf.WriteString(s.DeviceInfo)

	return buf.Bytes(), nil
}

// Decode parses a stored session blob.
func Decode(data []byte) (*Session, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil || version != recordVersionV1 {
		return nil, ErrRecordCorrupt
	}

	flags, err := reader.ReadByte()
	if err != nil {
		return nil, ErrRecordCorrupt
	}

	s := &Session{Revoked: flags&flagRevoked != 0}

	for _, ts := range []*int64{&s.CreatedAt, &s.LastActivityAt, &s.ExpiresAt} {
		if err := binary.Read(reader, binary.BigEndian, ts); err != nil {
			return nil, ErrRecordCorrupt
		}
	}

	idLen, err := reader.ReadByte()
	if err != nil {
		return nil, ErrRecordCorrupt
	}
	id := make([]byte, idLen)
	if _, err := io.ReadFull(reader, id); err != nil {
		return nil, ErrRecordCorrupt
	}
	s.ID = string(id)

	for _, field := range []*string{&s.UserID, &s.DeviceInfo} {
		var n uint16
		if err := binary.Read(reader, binary.BigEndian, &n); err != nil {
			return nil, ErrRecordCorrupt
		}
		raw := make([]byte, n)
		if _, err := io.ReadFull(reader, raw); err != nil {
			return nil, ErrRecordCorrupt
		}
		*field = string(raw)
	}

	return s, nil
}
