package postgres

import (
	"github.com/google/uuid"
)

// generateOrderCode produces a human-legible unique order code. The code is
// the external reference key used in URLs and processor metadata, so it is
// short and prefixed rather than a bare surrogate id.
func generateOrderCode() string {
	return "ORD-" + uuid.NewString()[:8]
}

// generateSessionID produces a cart session identifier.
func generateSessionID() string {
	return uuid.NewString()
}
