// Package dscrypto defines the signing, verification, key management,
// and encryption boundary the core depends on. More than one signing
// algorithm is supported, selected by signing_key_id metadata rather
// than a hardcoded choice.
//
// Signer/Verifier/KeyManager carry algorithm-agility metadata; capsule
// payload encryption is handled separately via secretbox AEAD.
package dscrypto

import (
	"context"
	"time"
)

// Signer signs data using a private key.
type Signer interface {
	// Sign returns the signature bytes for data.
	Sign(ctx context.Context, data []byte) ([]byte, error)

	// KeyID returns the identifier of the signing key.
	KeyID() string

	// Algorithm returns the signing algorithm identifier.
	Algorithm() AlgorithmID
}

// Verifier verifies signatures using a public key.
type Verifier interface {
	// Verify returns nil if signature is valid for data, else an error.
	Verify(ctx context.Context, data []byte, signature []byte) error

	// KeyID returns the identifier of the verification key.
	KeyID() string

	// Algorithm returns the verification algorithm identifier.
	Algorithm() AlgorithmID
}

// KeyManager manages signing/verification keys with algorithm agility:
// callers resolve a Signer/Verifier strictly by signing_key_id and never
// assume a specific algorithm.
type KeyManager interface {
	// GetSigner returns a signer for the specified key.
	GetSigner(ctx context.Context, keyID string) (Signer, error)

	// GetVerifier returns a verifier for the specified key.
	GetVerifier(ctx context.Context, keyID string) (Verifier, error)

	// KeyMetadata returns metadata (including Algorithm) for keyID.
	KeyMetadata(ctx context.Context, keyID string) (KeyMetadata, error)
}

// KeyMetadata describes a signing/verification key without exposing
// key material.
type KeyMetadata struct {
	KeyID     string
	Algorithm AlgorithmID
	CreatedAt time.Time
	ExpiresAt time.Time
	IsActive  bool
}

// DEK is a symmetric data-encryption key used to seal a single Time
// Capsule's payload. The Time Capsule subsystem is the exclusive owner
// of a DEK's lifecycle: it is generated at capsule creation and
// destroyed at crypto-shred.
type DEK [32]byte

// Encryptor seals a plaintext payload under a DEK.
type Encryptor interface {
	Encrypt(plaintext []byte) (ciphertext []byte, err error)
}

// Decryptor opens a ciphertext payload under a DEK. Implementations
// MUST return ErrKeyDestroyed-compatible errors once the underlying key
// material has been zeroed by the deletion subsystem.
type Decryptor interface {
	Decrypt(ciphertext []byte) (plaintext []byte, err error)
}
