package domain

import (
	"fmt"

	"github.com/google/uuid"
)

// UserID identifies the user a record or notification targets.
// This is a domain primitive so stores and transports cannot mix it up
// with other UUID-typed identifiers.
type UserID uuid.UUID

// ParseUserID validates and returns a UserID.
func ParseUserID(s string) (UserID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return UserID{}, fmt.Errorf("invalid user id %q: %w", s, err)
	}
	return UserID(u), nil
}

// NewUserID returns a random UserID.
func NewUserID() UserID {
	return UserID(uuid.New())
}

// String returns the canonical UUID string form.
func (id UserID) String() string {
	return uuid.UUID(id).String()
}

// IsNil reports whether the id is the zero UUID.
func (id UserID) IsNil() bool {
	return uuid.UUID(id) == uuid.Nil
}
