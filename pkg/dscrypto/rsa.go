package dscrypto

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
)

// RSASigner implements Signer using RSA-PSS over a SHA-256 digest,
// matching the SHA256withRSA algorithm the original source names.
type RSASigner struct {
	keyID   string
	private *rsa.PrivateKey
}

// NewRSASigner builds a signer from an RSA private key.
func NewRSASigner(keyID string, private *rsa.PrivateKey) *RSASigner {
	return &RSASigner{keyID: keyID, private: private}
}

// Sign signs the SHA-256 hash of data with RSA-PSS.
func (s *RSASigner) Sign(ctx context.Context, data []byte) ([]byte, error) {
	digest := CanonicalHash(data)
	return rsa.SignPSS(rand.Reader, s.private, crypto.SHA256, digest, nil)
}

// KeyID returns the key identifier.
func (s *RSASigner) KeyID() string { return s.keyID }

// Algorithm returns AlgRSA_PSS_SHA256.
func (s *RSASigner) Algorithm() AlgorithmID { return AlgRSA_PSS_SHA256 }

// RSAVerifier implements Verifier using RSA-PSS over a SHA-256 digest.
type RSAVerifier struct {
	keyID  string
	public *rsa.PublicKey
}

// NewRSAVerifier builds a verifier from an RSA public key.
func NewRSAVerifier(keyID string, public *rsa.PublicKey) *RSAVerifier {
	return &RSAVerifier{keyID: keyID, public: public}
}

// Verify checks sig against the SHA-256 hash of data with RSA-PSS.
func (v *RSAVerifier) Verify(ctx context.Context, data []byte, sig []byte) error {
	digest := CanonicalHash(data)
	if err := rsa.VerifyPSS(v.public, crypto.SHA256, digest, sig, nil); err != nil {
		return ErrInvalidSignature
	}
	return nil
}

// KeyID returns the key identifier.
func (v *RSAVerifier) KeyID() string { return v.keyID }

// Algorithm returns AlgRSA_PSS_SHA256.
func (v *RSAVerifier) Algorithm() AlgorithmID { return AlgRSA_PSS_SHA256 }

var (
	_ Signer   = (*RSASigner)(nil)
	_ Verifier = (*RSAVerifier)(nil)
)
