package domain

import "github.com/google/uuid"

// ID is an opaque 128-bit identity shared by every aggregate and entity in
// the domain model (spec.md §3).
type ID = uuid.UUID

// NewID generates a fresh random ID.
func NewID() ID {
	return uuid.New()
}

// ParseID parses s into an ID.
func ParseID(s string) (ID, error) {
	return uuid.Parse(s)
}
