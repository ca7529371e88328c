// Package canonical implements the canonical serialization rules for
// every signed or hashed structure in the core: fields
// concatenated with the pipe delimiter in declared order, ISO-8601 UTC
// timestamps, plain-form decimals, and sorted field sets.
//
// Hash/HashString build deterministic hashes from
// the same pipe-joined field construction throughout the core.
package canonical

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"time"
)

// Join concatenates parts with the pipe delimiter, the fixed form for
// every signable/hashable payload in the core (QueryPlan signable form,
// AuditEntry hash input, ConsentContract obligation commitment, ...).
func Join(parts ...string) string {
	return strings.Join(parts, "|")
}

// SortedFieldSet renders a set of dotted field-paths as a deterministic,
// sorted, comma-joined string so that two callers with the same set
// (regardless of iteration order) produce byte-identical canonical form.
func SortedFieldSet(fields []string) string {
	cp := append([]string(nil), fields...)
	sort.Strings(cp)
	return strings.Join(cp, ",")
}

// SortedStringSet is an alias of SortedFieldSet for non-field string
// sets (operator names, output-restriction tags, obligation kinds).
func SortedStringSet(values []string) string {
	return SortedFieldSet(values)
}

// Timestamp renders t as an ISO-8601 UTC timestamp, the fixed form
// every canonical payload uses.
func Timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// Hash returns the hex-encoded SHA-256 hash of data, the one hash
// form used throughout the core.
func Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// HashString is a convenience wrapper for hashing a canonical string.
func HashString(s string) string {
	return Hash([]byte(s))
}

// ZeroHash is the fixed 64-character previous_hash value for sequence 0
// of any hash chain, matching the width of a hex-encoded SHA-256
// digest.
var ZeroHash = strings.Repeat("0", 64)
