package model

import (
	"database/sql/driver"
	"fmt"

	"github.com/google/uuid"
)

// ID is a 128-bit random identifier. It is generated by the caller before
// the owning row is written and stored as a 16-byte BLOB.
type ID uuid.UUID

// NilID is the zero ID. It never identifies a stored row.
var NilID ID

// NewID returns a random (version 4) ID.
func NewID() ID {
	return ID(uuid.New())
}

// ParseID parses the canonical hyphenated form, or 32 hex digits.
func ParseID(s string) (ID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return NilID, fmt.Errorf("parsing id %q: %w", s, err)
	}
	return ID(u), nil
}

// IDFromBytes converts a 16-byte slice into an ID.
func IDFromBytes(b []byte) (ID, error) {
	u, err := uuid.FromBytes(b)
	if err != nil {
		return NilID, fmt.Errorf("decoding id: %w", err)
	}
	return ID(u), nil
}

func (id ID) String() string {
	return uuid.UUID(id).String()
}

// IsZero reports whether id is NilID.
func (id ID) IsZero() bool {
	return id == NilID
}

// Bytes returns a copy of the raw 16 bytes.
func (id ID) Bytes() []byte {
	b := make([]byte, len(id))
	copy(b, id[:])
	return b
}

// Value implements driver.Valuer.
func (id ID) Value() (driver.Value, error) {
	return id.Bytes(), nil
}

// Scan implements sql.Scanner.
func (id *ID) Scan(src any) error {
	b, ok := src.([]byte)
	if !ok {
		return fmt.Errorf("scanning id: expected []byte, got %T", src)
	}
	parsed, err := IDFromBytes(b)
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// MarshalText renders the hyphenated form, used by YAML and JSON output.
func (id ID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}
