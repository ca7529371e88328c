// Package impl_inmem provides in-memory KeyRegistry and CertificateStore
// implementations: a stateful job with a status-transition completion
// rule and a recomputable integrity hash.
package impl_inmem

import (
	"fmt"
	"sync"

	"context"

	"dscore/internal/deletion"
	"dscore/pkg/canonical"
	"dscore/pkg/clock"
	"dscore/pkg/dserr"
	"dscore/pkg/ids"
)

// KeyRegistry implements deletion.KeyRegistry in memory. Entries are
// never removed — the whole point of this component is that a
// destruction record, once made, is permanent for the process lifetime.
type KeyRegistry struct {
	mu      sync.Mutex
	clock   clock.Clock
	records map[string]deletion.DestroyedKeyRecord
}

// NewKeyRegistry creates an empty in-memory destroyed-key registry.
func NewKeyRegistry(c clock.Clock) *KeyRegistry {
	return &KeyRegistry{clock: c, records: make(map[string]deletion.DestroyedKeyRecord)}
}

// MarkDestroyed idempotently records keyID as destroyed.
func (r *KeyRegistry) MarkDestroyed(ctx context.Context, keyID string, keyType deletion.KeyType, method deletion.DestructionMethod, resourceRef string, certificateID ids.ID) (deletion.DestroyedKeyRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.records[keyID]; ok {
		return existing, nil
	}
	rec := deletion.DestroyedKeyRecord{
		KeyID:             keyID,
		KeyType:           keyType,
		DestructionMethod: method,
		ResourceRef:       resourceRef,
		DestroyedAt:       r.clock.Now(),
		CertificateID:     certificateID,
	}
	r.records[keyID] = rec
	return rec, nil
}

// IsDestroyed reports whether keyID has ever been destroyed.
func (r *KeyRegistry) IsDestroyed(ctx context.Context, keyID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.records[keyID]
	return ok, nil
}

// Get returns the destruction record for keyID, if any.
func (r *KeyRegistry) Get(ctx context.Context, keyID string) (deletion.DestroyedKeyRecord, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[keyID]
	return rec, ok, nil
}

// CertificateStore implements deletion.CertificateStore in memory.
type CertificateStore struct {
	mu    sync.Mutex
	clock clock.Clock
	certs map[ids.ID]*deletion.Certificate
}

// NewCertificateStore creates an empty in-memory certificate store.
func NewCertificateStore(c clock.Clock) *CertificateStore {
	return &CertificateStore{clock: c, certs: make(map[ids.ID]*deletion.Certificate)}
}

// Initiate allocates a new certificate in INITIATED status.
func (s *CertificateStore) Initiate(ctx context.Context, resourceType, resourceID string, method deletion.DeletionMethod) (deletion.Certificate, error) {
	cert := &deletion.Certificate{
		ID:             ids.New(),
		ResourceType:   resourceType,
		ResourceID:     resourceID,
		DeletionMethod: method,
		Status:         deletion.CertInitiated,
		CreatedAt:      s.clock.Now(),
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.certs[cert.ID] = cert
	return *cert, nil
}

// MarkKeyDestroyed records that the key-destruction half completed.
func (s *CertificateStore) MarkKeyDestroyed(ctx context.Context, certID ids.ID) (deletion.Certificate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cert, ok := s.certs[certID]
	if !ok {
		return deletion.Certificate{}, dserr.New(dserr.KindInvalidArgument, "certificate not found")
	}
	cert.KeyDestroyed = true
	s.checkCompletion(cert)
	return *cert, nil
}

// MarkStorageDeleted records that storage was overwritten/deleted.
func (s *CertificateStore) MarkStorageDeleted(ctx context.Context, certID ids.ID) (deletion.Certificate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cert, ok := s.certs[certID]
	if !ok {
		return deletion.Certificate{}, dserr.New(dserr.KindInvalidArgument, "certificate not found")
	}
	cert.StorageDeleted = true
	cert.StorageOverwritten = true
	s.checkCompletion(cert)
	return *cert, nil
}

// checkCompletion applies the completion rule: CRYPTO_SHRED
// completes when key_destroyed; OVERWRITE when both storage bits; BOTH
// when all three. Caller holds s.mu.
func (s *CertificateStore) checkCompletion(cert *deletion.Certificate) {
	if cert.Status != deletion.CertInitiated && cert.Status != deletion.CertKeyDestroyed && cert.Status != deletion.CertStorageDeleted {
		return
	}
	var complete bool
	switch cert.DeletionMethod {
	case deletion.MethodCryptoShred:
		complete = cert.KeyDestroyed
	case deletion.MethodOverwrite:
		complete = cert.StorageDeleted && cert.StorageOverwritten
	case deletion.MethodBoth:
		complete = cert.KeyDestroyed && cert.StorageDeleted && cert.StorageOverwritten
	}
	switch {
	case complete:
		cert.Status = deletion.CertCompleted
		cert.CompletedAt = s.clock.Now()
	case cert.KeyDestroyed && !cert.StorageDeleted:
		cert.Status = deletion.CertKeyDestroyed
	case cert.StorageDeleted && !cert.KeyDestroyed:
		cert.Status = deletion.CertStorageDeleted
	}
}

// Verify requires status == COMPLETED, transitions to VERIFIED, and
// (re)computes certificate_hash.
func (s *CertificateStore) Verify(ctx context.Context, certID ids.ID) (deletion.Certificate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cert, ok := s.certs[certID]
	if !ok {
		return deletion.Certificate{}, dserr.New(dserr.KindInvalidArgument, "certificate not found")
	}
	if cert.Status != deletion.CertCompleted {
		return deletion.Certificate{}, dserr.New(dserr.KindIllegalState, "verify requires status COMPLETED")
	}
	cert.Status = deletion.CertVerified
	cert.CertificateHash = computeCertificateHash(*cert)
	return *cert, nil
}

// VerifyIntegrity recomputes certificate_hash and compares it against
// the stored value without mutating status.
func (s *CertificateStore) VerifyIntegrity(ctx context.Context, certID ids.ID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cert, ok := s.certs[certID]
	if !ok {
		return false, dserr.New(dserr.KindInvalidArgument, "certificate not found")
	}
	return computeCertificateHash(*cert) == cert.CertificateHash, nil
}

// Get returns the current certificate state.
func (s *CertificateStore) Get(ctx context.Context, certID ids.ID) (deletion.Certificate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cert, ok := s.certs[certID]
	if !ok {
		return deletion.Certificate{}, dserr.New(dserr.KindInvalidArgument, "certificate not found")
	}
	return *cert, nil
}

func computeCertificateHash(cert deletion.Certificate) string {
	payload := canonical.Join(
		cert.ID.String(),
		cert.ResourceType,
		cert.ResourceID,
		string(cert.DeletionMethod),
		fmt.Sprintf("%t", cert.KeyDestroyed),
		fmt.Sprintf("%t", cert.StorageDeleted),
		fmt.Sprintf("%t", cert.StorageOverwritten),
		string(cert.Status),
	)
	return canonical.HashString(payload)
}

var (
	_ deletion.KeyRegistry       = (*KeyRegistry)(nil)
	_ deletion.CertificateStore  = (*CertificateStore)(nil)
)
