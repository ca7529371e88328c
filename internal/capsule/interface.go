// Package capsule implements the Time Capsule lifecycle: an
// encrypted, TTL-bounded output container that is delivered
// once, opened at most once per nonce, and crypto-shredded on
// expiry-plus-grace, revocation, or an explicit deletion request.
//
// Sealing uses secretbox AEAD via dscrypto.SecretboxEncryptor/Decryptor;
// at-most-once access is delegated to internal/nonce.
//
// CRITICAL: a Capsule exclusively owns its encryption_key_id. No
// other subsystem may hold or derive the DEK.
package capsule

import (
	"context"
	"time"

	"dscore/internal/nonce"
	"dscore/pkg/ids"
)

// Sealer encrypts a capsule's plaintext payload and returns the
// encryption_key_id it was sealed under. Manager depends on this
// rather than a concrete dscrypto.Encryptor so the DEK's generation and
// storage stay an implementation detail of the Manager, per the
// ownership invariant above.
type Sealer interface {
	Seal(plaintext []byte) (ciphertext []byte, keyID string, err error)
	Open(keyID string, ciphertext []byte) (plaintext []byte, err error)
	// Destroy permanently zeroes the key material for keyID. Idempotent.
	Destroy(keyID string) error
	// IsDestroyed reports whether keyID has ever been destroyed.
	IsDestroyed(keyID string) bool
}

// NonceIssuer is the narrow nonce.Registry seam Manager depends on.
type NonceIssuer interface {
	Register(ctx context.Context, capsuleID string, expiresAt time.Time) (nonce.Record, error)
	Consume(ctx context.Context, nonceValue string) (nonce.Record, error)
}

// DeletionHandoff is the narrow deletion seam Manager depends on to
// crypto-shred a capsule, matching deletion.KeyRegistry/CertificateStore
// but kept local so capsule never needs the full deletion package
// surface.
type DeletionHandoff interface {
	Initiate(ctx context.Context, resourceType, resourceID, method string) (certificateID ids.ID, err error)
	MarkKeyDestroyed(ctx context.Context, certificateID ids.ID, keyID string, resourceRef string) error
}

// Manager owns Capsule lifecycle.
type Manager interface {
	// Create builds a Capsule: generates a DEK, encrypts params.Payload,
	// registers a fresh nonce bound to the capsule with the same TTL, and
	// emits CAPSULE_CREATED. Status starts CREATED.
	Create(ctx context.Context, params CreateParams) (Capsule, error)

	// Deliver transitions a CREATED capsule to DELIVERED.
	Deliver(ctx context.Context, capsuleID ids.ID) (Capsule, error)

	// Access atomically consumes nonceValue and, on success, decrypts
	// and returns the capsule's payload. It fails closed with a
	// DenialReason-tagged error on any precondition miss: unknown
	// capsule, nonce reused/expired, capsule not in {CREATED,DELIVERED},
	// now > ttl, or a destroyed key.
	Access(ctx context.Context, capsuleID ids.ID, nonceValue string, now time.Time) ([]byte, error)

	// ExpireSweep transitions every capsule past its TTL to EXPIRED, and
	// hands any capsule still EXPIRED past ttl+grace to Secure Deletion,
	// transitioning it to DELETED once the certificate completes.
	ExpireSweep(ctx context.Context, now time.Time, grace time.Duration) (expired int, deleted int, err error)

	// Get returns the current state of a capsule.
	Get(ctx context.Context, capsuleID ids.ID) (Capsule, error)
}
