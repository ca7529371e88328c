package dscrypto

import (
	"crypto/sha256"
	"errors"
)

// AlgorithmID identifies a signing algorithm. The algorithm is a
// property of the key, carried as metadata on every key and signature
// and resolved through signing_key_id — never a compiled-in choice.
type AlgorithmID string

const (
	// AlgEd25519 is the default signing algorithm for new keys.
	AlgEd25519 AlgorithmID = "Ed25519"

	// AlgRSA_PSS_SHA256 is supported for interoperability with
	// requesters whose platform key material is RSA, matching the
	// SHA256withRSA naming in the original source.
	AlgRSA_PSS_SHA256 AlgorithmID = "RSA-PSS-SHA256"
)

// ErrUnsupportedAlgorithm is returned when a key declares an algorithm
// no registered Signer/Verifier implementation understands.
var ErrUnsupportedAlgorithm = errors.New("dscrypto: unsupported algorithm")

// ErrInvalidSignature is returned when verification fails.
var ErrInvalidSignature = errors.New("dscrypto: invalid signature")

// ErrKeyDestroyed is returned by a Decryptor or Signer whose key
// material has been crypto-shredded.
var ErrKeyDestroyed = errors.New("dscrypto: key destroyed")

// CanonicalHash computes the SHA-256 hash of data, the fixed hashing
// primitive every signature in the core is computed over.
func CanonicalHash(data []byte) []byte {
	h := sha256.Sum256(data)
	return h[:]
}

// IsSupportedAlgorithm reports whether alg has a registered
// implementation in this build.
func IsSupportedAlgorithm(alg AlgorithmID) bool {
	switch alg {
	case AlgEd25519, AlgRSA_PSS_SHA256:
		return true
	default:
		return false
	}
}
