package transport

import "github.com/oklog/ulid/v2"

// maxIDAttempts bounds how often Send draws a new id after a collision.
const maxIDAttempts = 5

// NewULID returns a 128-bit correlation id. It is safe for concurrent use.
func NewULID() string {
	return ulid.Make().String()
}
