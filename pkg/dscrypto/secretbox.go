package dscrypto

import (
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/nacl/secretbox"
)

// nonceSize is the secretbox nonce width.
const nonceSize = 24

// SecretboxEncryptor seals Time Capsule payloads under a per-capsule
// DEK using XSalsa20-Poly1305 (NaCl secretbox).
type SecretboxEncryptor struct {
	key DEK
}

// NewSecretboxEncryptor builds an Encryptor bound to key.
func NewSecretboxEncryptor(key DEK) *SecretboxEncryptor {
	return &SecretboxEncryptor{key: key}
}

// Encrypt seals plaintext, prefixing the output with a fresh random
// nonce so Decrypt needs only the ciphertext and the key.
func (e *SecretboxEncryptor) Encrypt(plaintext []byte) ([]byte, error) {
	var nonce [nonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, fmt.Errorf("dscrypto: generate nonce: %w", err)
	}
	var key [32]byte = e.key
	sealed := secretbox.Seal(nonce[:], plaintext, &nonce, &key)
	return sealed, nil
}

// SecretboxDecryptor opens ciphertext sealed by SecretboxEncryptor under
// the same DEK. destroyed, when non-nil and returning true, makes the
// decryptor fail closed with ErrKeyDestroyed even if the key bytes are
// still resident — the crypto-shred contract.
type SecretboxDecryptor struct {
	key       DEK
	destroyed func() bool
}

// NewSecretboxDecryptor builds a Decryptor bound to key. destroyed may
// be nil, in which case the key is assumed live for this decryptor's
// lifetime.
func NewSecretboxDecryptor(key DEK, destroyed func() bool) *SecretboxDecryptor {
	return &SecretboxDecryptor{key: key, destroyed: destroyed}
}

// Decrypt opens ciphertext, which must be Encrypt's output (nonce-prefixed).
func (d *SecretboxDecryptor) Decrypt(ciphertext []byte) ([]byte, error) {
	if d.destroyed != nil && d.destroyed() {
		return nil, ErrKeyDestroyed
	}
	if len(ciphertext) < nonceSize {
		return nil, fmt.Errorf("dscrypto: ciphertext too short")
	}
	var nonce [nonceSize]byte
	copy(nonce[:], ciphertext[:nonceSize])
	var key [32]byte = d.key
	plaintext, ok := secretbox.Open(nil, ciphertext[nonceSize:], &nonce, &key)
	if !ok {
		return nil, fmt.Errorf("dscrypto: decryption failed: authentication mismatch")
	}
	return plaintext, nil
}

// GenerateDEK produces a fresh random 32-byte data-encryption key.
func GenerateDEK() (DEK, error) {
	var key DEK
	if _, err := rand.Read(key[:]); err != nil {
		return DEK{}, fmt.Errorf("dscrypto: generate DEK: %w", err)
	}
	return key, nil
}

// ZeroDEK destroys key material in place by overwriting it with zero
// bytes — the ZEROED destruction method.
func ZeroDEK(key *DEK) {
	for i := range key {
		key[i] = 0
	}
}

var (
	_ Encryptor = (*SecretboxEncryptor)(nil)
	_ Decryptor = (*SecretboxDecryptor)(nil)
)
