package impl

import (
	"context"

	"dscore/pkg/dscrypto"
)

// KeyManagerSigner adapts a dscrypto.KeyManager to queryplan.Signer,
// resolving the concrete Signer/Verifier strictly by keyID on every
// call so the signing algorithm stays a per-key property.
type KeyManagerSigner struct {
	keys dscrypto.KeyManager
}

// NewKeyManagerSigner builds a queryplan.Signer backed by keys.
func NewKeyManagerSigner(keys dscrypto.KeyManager) *KeyManagerSigner {
	return &KeyManagerSigner{keys: keys}
}

// Sign resolves keyID's signer and signs payload.
func (a *KeyManagerSigner) Sign(ctx context.Context, keyID string, payload []byte) ([]byte, error) {
	signer, err := a.keys.GetSigner(ctx, keyID)
	if err != nil {
		return nil, err
	}
	return signer.Sign(ctx, payload)
}

// Verify resolves keyID's verifier and checks signature against payload.
func (a *KeyManagerSigner) Verify(ctx context.Context, keyID string, payload []byte, signature []byte) error {
	verifier, err := a.keys.GetVerifier(ctx, keyID)
	if err != nil {
		return err
	}
	return verifier.Verify(ctx, payload, signature)
}
