// Package ids generates the 128-bit opaque identifiers used by
// every entity in the core (contracts, obligations, plans,
// capsules, nonces, certificates, campaigns, audit entries).
package ids

import "github.com/google/uuid"

// ID is a 128-bit opaque identifier, hex-rendered via String().
type ID = uuid.UUID

// New generates a fresh random ID (UUIDv4).
func New() ID {
	return uuid.New()
}

// Zero is the nil/zero-value ID, used as a sentinel for "not yet assigned".
var Zero ID

// Parse parses s into an ID, failing closed (returning an error) on any
// malformed input rather than silently truncating or defaulting.
func Parse(s string) (ID, error) {
	return uuid.Parse(s)
}

// MustParse parses s into an ID and panics on failure. Reserved for
// constants and test fixtures, never for request-path input.
func MustParse(s string) ID {
	return uuid.MustParse(s)
}
