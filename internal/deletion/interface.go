// Package deletion implements Secure Deletion / crypto-shred:
// a Destroyed-Key Registry that is permanent and
// idempotent, and a Deletion Certificate that proves a resource was
// destroyed via crypto-shred, storage overwrite, or both.
//
// The certificate is a stateful job with a status-transition completion
// rule and a recomputable integrity hash (certificate_hash) built on
// pkg/canonical.
package deletion

import (
	"context"

	"dscore/pkg/ids"
)

// KeyRegistry is the permanent, append-only record of destroyed keys.
type KeyRegistry interface {
	// MarkDestroyed inserts a DestroyedKeyRecord for keyID. Calling it
	// again for the same keyID is a no-op that returns the original
	// record.
	MarkDestroyed(ctx context.Context, keyID string, keyType KeyType, method DestructionMethod, resourceRef string, certificateID ids.ID) (DestroyedKeyRecord, error)

	// IsDestroyed reports whether keyID has ever been destroyed.
	IsDestroyed(ctx context.Context, keyID string) (bool, error)

	// Get returns the destruction record for keyID, if any.
	Get(ctx context.Context, keyID string) (DestroyedKeyRecord, bool, error)
}

// CertificateStore manages the Deletion Certificate state machine.
type CertificateStore interface {
	// Initiate allocates a new certificate in INITIATED status.
	Initiate(ctx context.Context, resourceType, resourceID string, method DeletionMethod) (Certificate, error)

	// MarkKeyDestroyed records that the key-destruction half of method
	// completed and advances status via checkCompletion.
	MarkKeyDestroyed(ctx context.Context, certID ids.ID) (Certificate, error)

	// MarkStorageDeleted records that storage was overwritten/deleted
	// and advances status via checkCompletion.
	MarkStorageDeleted(ctx context.Context, certID ids.ID) (Certificate, error)

	// Verify requires status == COMPLETED; on success transitions to
	// VERIFIED and recomputes certificate_hash.
	Verify(ctx context.Context, certID ids.ID) (Certificate, error)

	// VerifyIntegrity recomputes certificate_hash and compares it
	// against the stored value without mutating status.
	VerifyIntegrity(ctx context.Context, certID ids.ID) (bool, error)

	// Get returns the current certificate state.
	Get(ctx context.Context, certID ids.ID) (Certificate, error)
}
