package dscrypto

import (
	"context"
	"crypto/ed25519"
	"fmt"
)

// Ed25519Signer implements Signer using an Ed25519 private key.
type Ed25519Signer struct {
	keyID   string
	private ed25519.PrivateKey
}

// NewEd25519Signer builds a signer from a private key.
func NewEd25519Signer(keyID string, private ed25519.PrivateKey) (*Ed25519Signer, error) {
	if len(private) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("dscrypto: invalid ed25519 private key size %d", len(private))
	}
	return &Ed25519Signer{keyID: keyID, private: private}, nil
}

// Sign signs the SHA-256 hash of data.
func (s *Ed25519Signer) Sign(ctx context.Context, data []byte) ([]byte, error) {
	return ed25519.Sign(s.private, CanonicalHash(data)), nil
}

// KeyID returns the key identifier.
func (s *Ed25519Signer) KeyID() string { return s.keyID }

// Algorithm returns AlgEd25519.
func (s *Ed25519Signer) Algorithm() AlgorithmID { return AlgEd25519 }

// Ed25519Verifier implements Verifier using an Ed25519 public key.
type Ed25519Verifier struct {
	keyID  string
	public ed25519.PublicKey
}

// NewEd25519Verifier builds a verifier from a public key.
func NewEd25519Verifier(keyID string, public ed25519.PublicKey) (*Ed25519Verifier, error) {
	if len(public) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("dscrypto: invalid ed25519 public key size %d", len(public))
	}
	return &Ed25519Verifier{keyID: keyID, public: public}, nil
}

// Verify checks sig against the SHA-256 hash of data.
func (v *Ed25519Verifier) Verify(ctx context.Context, data []byte, sig []byte) error {
	if !ed25519.Verify(v.public, CanonicalHash(data), sig) {
		return ErrInvalidSignature
	}
	return nil
}

// KeyID returns the key identifier.
func (v *Ed25519Verifier) KeyID() string { return v.keyID }

// Algorithm returns AlgEd25519.
func (v *Ed25519Verifier) Algorithm() AlgorithmID { return AlgEd25519 }

var (
	_ Signer   = (*Ed25519Signer)(nil)
	_ Verifier = (*Ed25519Verifier)(nil)
)
