// Package impl_inmem provides in-memory implementations of the capsule
// package's collaborator seams, using NaCl secretbox for authenticated
// encryption of sealed payloads.
package impl_inmem

import (
	"fmt"
	"sync"

	"dscore/internal/capsule"
	"dscore/pkg/dscrypto"
	"dscore/pkg/ids"
)

// Sealer implements capsule.Sealer with an in-memory DEK table. Each
// Seal call mints a fresh DEK and a fresh key ID; Destroy zeroes the
// DEK in place and leaves a permanent tombstone entry so IsDestroyed
// keeps returning true even after the key bytes are gone: the
// Destroyed-Key Registry is idempotent and permanent.
type Sealer struct {
	mu         sync.Mutex
	keys       map[string]*dscrypto.DEK
	destroyed  map[string]bool
}

// New creates an empty in-memory Sealer.
func New() *Sealer {
	return &Sealer{
		keys:      make(map[string]*dscrypto.DEK),
		destroyed: make(map[string]bool),
	}
}

// Seal generates a fresh DEK, encrypts plaintext under it via
// XSalsa20-Poly1305 (NaCl secretbox), and returns the ciphertext and the
// key's opaque ID.
func (s *Sealer) Seal(plaintext []byte) ([]byte, string, error) {
	dek, err := dscrypto.GenerateDEK()
	if err != nil {
		return nil, "", fmt.Errorf("capsule: generate DEK: %w", err)
	}
	keyID := ids.New().String()

	s.mu.Lock()
	s.keys[keyID] = &dek
	s.mu.Unlock()

	enc := dscrypto.NewSecretboxEncryptor(dek)
	ciphertext, err := enc.Encrypt(plaintext)
	if err != nil {
		return nil, "", fmt.Errorf("capsule: encrypt: %w", err)
	}
	return ciphertext, keyID, nil
}

// Open decrypts ciphertext under keyID, failing with
// dscrypto.ErrKeyDestroyed once Destroy has zeroed that key.
func (s *Sealer) Open(keyID string, ciphertext []byte) ([]byte, error) {
	s.mu.Lock()
	dek, ok := s.keys[keyID]
	destroyed := s.destroyed[keyID]
	s.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("capsule: unknown key %q", keyID)
	}
	dec := dscrypto.NewSecretboxDecryptor(*dek, func() bool { return destroyed })
	return dec.Decrypt(ciphertext)
}

// Destroy permanently zeroes keyID's DEK. Idempotent: destroying an
// already-destroyed key is a no-op. An unknown keyID is still recorded
// as destroyed, so IsDestroyed reports true for it afterwards.
func (s *Sealer) Destroy(keyID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if dek, ok := s.keys[keyID]; ok {
		dscrypto.ZeroDEK(dek)
	}
	s.destroyed[keyID] = true
	return nil
}

// IsDestroyed reports whether keyID has ever been destroyed.
func (s *Sealer) IsDestroyed(keyID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.destroyed[keyID]
}

var _ capsule.Sealer = (*Sealer)(nil)
