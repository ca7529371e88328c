// Package audit provides the hash-chained, append-only audit log.
// Every state transition in the core appends one entry;
// the chain is locally verifiable and tamper detection is a first-class
// operation.
//
// CRITICAL: audit logs MUST NOT be used as operational memory or
// decision input — nothing in internal/consent, internal/planvm, or
// internal/capsule may read the audit log to decide an outcome.
package audit

import (
	"context"
)

// Logger provides append-only audit logging.
type Logger interface {
	// Append writes one entry to the chain, computing its sequence
	// number, previous_hash, and entry_hash, and returns the stored
	// entry. Entries are immutable once appended.
	Append(ctx context.Context, event EventType, details Details) (Entry, error)
}

// Reader provides read access to audit logs. For review/export only,
// never for operational decisions.
type Reader interface {
	// Get retrieves a single audit entry by sequence number.
	Get(ctx context.Context, sequenceNumber int64) (Entry, error)

	// List retrieves audit entries matching filter, oldest first.
	List(ctx context.Context, filter Filter) ([]Entry, error)
}

// HashChain provides hash chain operations for tamper detection.
type HashChain interface {
	// VerifyIntegrity walks the full chain from sequence 0, comparing
	// each entry's previous_hash against the prior entry's entry_hash and
	// its recomputed entry_hash against the stored value. It fails at the FIRST
	// break rather than continuing
	// past corrupted history.
	VerifyIntegrity(ctx context.Context) (VerificationResult, error)

	// ChainHead returns the sequence number and entry_hash of the most
	// recently appended entry, or (0, ZeroHash) if the chain is empty.
	ChainHead(ctx context.Context) (int64, string, error)
}

// Exporter provides the audit export operation for data subject exit
// rights.
type Exporter interface {
	// Export returns every entry in the chain, in append order, for
	// independent offline verification.
	Export(ctx context.Context) (ExportPackage, error)
}

// Renderer turns an Entry into operator-facing plain language: the
// event taxonomy alone never says how a human reads one.
type Renderer interface {
	Describe(entry Entry) string
}
