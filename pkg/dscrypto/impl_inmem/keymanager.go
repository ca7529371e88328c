// Package impl_inmem provides an in-memory dscrypto.KeyManager holding
// both Ed25519 and RSA keys side by side, dispatching to the correct
// Signer/Verifier implementation purely from the key's declared
// algorithm metadata — never from a compiled-in assumption.
//
// Demo/test collaborator only: a production deployment supplies its own
// KeyManager backed by an HSM or platform keystore.
package impl_inmem

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"
	"fmt"
	"sync"

	"dscore/pkg/clock"
	"dscore/pkg/dscrypto"
)

type keyRecord struct {
	meta       dscrypto.KeyMetadata
	ed25519Pub ed25519.PublicKey
	ed25519Key ed25519.PrivateKey
	rsaPub     *rsa.PublicKey
	rsaKey     *rsa.PrivateKey
}

// KeyManager implements dscrypto.KeyManager in memory.
type KeyManager struct {
	mu    sync.RWMutex
	clock clock.Clock
	keys  map[string]*keyRecord
}

// New creates an empty in-memory key manager.
func New(c clock.Clock) *KeyManager {
	return &KeyManager{clock: c, keys: make(map[string]*keyRecord)}
}

// GenerateEd25519Key creates and registers a new Ed25519 key pair.
func (km *KeyManager) GenerateEd25519Key(keyID string) error {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return fmt.Errorf("dscrypto: generate ed25519 key: %w", err)
	}
	km.mu.Lock()
	defer km.mu.Unlock()
	km.keys[keyID] = &keyRecord{
		meta: dscrypto.KeyMetadata{
			KeyID:     keyID,
			Algorithm: dscrypto.AlgEd25519,
			CreatedAt: km.clock.Now(),
			IsActive:  true,
		},
		ed25519Pub: pub,
		ed25519Key: priv,
	}
	return nil
}

// GenerateRSAKey creates and registers a new RSA-2048 key pair.
func (km *KeyManager) GenerateRSAKey(keyID string) error {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return fmt.Errorf("dscrypto: generate rsa key: %w", err)
	}
	km.mu.Lock()
	defer km.mu.Unlock()
	km.keys[keyID] = &keyRecord{
		meta: dscrypto.KeyMetadata{
			KeyID:     keyID,
			Algorithm: dscrypto.AlgRSA_PSS_SHA256,
			CreatedAt: km.clock.Now(),
			IsActive:  true,
		},
		rsaPub: &priv.PublicKey,
		rsaKey: priv,
	}
	return nil
}

// Revoke marks keyID inactive without deleting its metadata, so
// verification of historical signatures remains possible while new
// signing is refused.
func (km *KeyManager) Revoke(keyID string) error {
	km.mu.Lock()
	defer km.mu.Unlock()
	rec, ok := km.keys[keyID]
	if !ok {
		return fmt.Errorf("dscrypto: key not found: %s", keyID)
	}
	rec.meta.IsActive = false
	return nil
}

// GetSigner returns a signer for keyID, dispatching on its algorithm.
func (km *KeyManager) GetSigner(ctx context.Context, keyID string) (dscrypto.Signer, error) {
	km.mu.RLock()
	defer km.mu.RUnlock()
	rec, ok := km.keys[keyID]
	if !ok {
		return nil, fmt.Errorf("dscrypto: key not found: %s", keyID)
	}
	if !rec.meta.IsActive {
		return nil, fmt.Errorf("dscrypto: key %s is not active", keyID)
	}
	switch rec.meta.Algorithm {
	case dscrypto.AlgEd25519:
		return dscrypto.NewEd25519Signer(keyID, rec.ed25519Key)
	case dscrypto.AlgRSA_PSS_SHA256:
		return dscrypto.NewRSASigner(keyID, rec.rsaKey), nil
	default:
		return nil, dscrypto.ErrUnsupportedAlgorithm
	}
}

// GetVerifier returns a verifier for keyID, dispatching on its algorithm.
func (km *KeyManager) GetVerifier(ctx context.Context, keyID string) (dscrypto.Verifier, error) {
	km.mu.RLock()
	defer km.mu.RUnlock()
	rec, ok := km.keys[keyID]
	if !ok {
		return nil, fmt.Errorf("dscrypto: key not found: %s", keyID)
	}
	switch rec.meta.Algorithm {
	case dscrypto.AlgEd25519:
		return dscrypto.NewEd25519Verifier(keyID, rec.ed25519Pub)
	case dscrypto.AlgRSA_PSS_SHA256:
		return dscrypto.NewRSAVerifier(keyID, rec.rsaPub), nil
	default:
		return nil, dscrypto.ErrUnsupportedAlgorithm
	}
}

// KeyMetadata returns metadata for keyID.
func (km *KeyManager) KeyMetadata(ctx context.Context, keyID string) (dscrypto.KeyMetadata, error) {
	km.mu.RLock()
	defer km.mu.RUnlock()
	rec, ok := km.keys[keyID]
	if !ok {
		return dscrypto.KeyMetadata{}, fmt.Errorf("dscrypto: key not found: %s", keyID)
	}
	return rec.meta, nil
}

var _ dscrypto.KeyManager = (*KeyManager)(nil)
