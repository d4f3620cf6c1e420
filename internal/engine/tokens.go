package engine

import "github.com/google/uuid"

// TokenSource generates unique attempt tokens for log correlation.
// Every routing attempt is stamped with one token, which appears on all
// log lines and notifications the attempt produces.
//
// Implemented by UUIDv7Source (production) and testutil.FixedTokens (tests).
type TokenSource interface {
	Token() string
}

// UUIDv7Source generates time-sortable UUIDv7 attempt tokens.
//
// UUIDv7 embeds a timestamp in the most significant bits, making tokens
// sortable by creation time. This is helpful when grepping operational
// logs for a window of attempts.
//
// Uses github.com/google/uuid package for RFC 4122 compliant UUIDs.
//
// Thread-safety: UUIDv7Source is stateless and safe for concurrent use.
type UUIDv7Source struct{}

// Token creates a new UUIDv7 and returns it as a hyphenated string.
//
// Format: "550e8400-e29b-41d4-a716-446655440000" (36 characters)
//
// Panics if UUID generation fails (should never happen in practice).
func (UUIDv7Source) Token() string {
	return uuid.Must(uuid.NewV7()).String()
}
