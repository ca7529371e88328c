package impl_inmem

import (
	"context"
	"errors"
	"sync"
	"time"

	"dscore/internal/audit"
	"dscore/internal/capsule"
	"dscore/internal/nonce"
	"dscore/pkg/clock"
	"dscore/pkg/dscrypto"
	"dscore/pkg/dserr"
	"dscore/pkg/ids"
)

// Manager implements capsule.Manager with an in-memory capsule table,
// delegating encryption to a Sealer and at-most-once access to a
// NonceIssuer, following a create -> deliver -> consume-once -> expire
// lifecycle.
type Manager struct {
	mu        sync.Mutex
	clock     clock.Clock
	sealer    capsule.Sealer
	nonces    capsule.NonceIssuer
	deletionH capsule.DeletionHandoff
	auditLog  audit.Logger
	capsules  map[ids.ID]*capsule.Capsule
}

// NewManager constructs a Manager from its collaborators.
func NewManager(c clock.Clock, sealer capsule.Sealer, nonces capsule.NonceIssuer, deletionH capsule.DeletionHandoff, auditLog audit.Logger) *Manager {
	return &Manager{
		clock:     c,
		sealer:    sealer,
		nonces:    nonces,
		deletionH: deletionH,
		auditLog:  auditLog,
		capsules:  make(map[ids.ID]*capsule.Capsule),
	}
}

// Create builds a capsule, generating a DEK, sealing the payload, and
// registering a nonce bound to the same TTL.
func (m *Manager) Create(ctx context.Context, params capsule.CreateParams) (capsule.Capsule, error) {
	ciphertext, keyID, err := m.sealer.Seal(params.Payload)
	if err != nil {
		return capsule.Capsule{}, dserr.Wrap(dserr.KindIllegalState, err, "capsule sealing failed")
	}

	c := &capsule.Capsule{
		ID:                ids.New(),
		RequestID:         params.RequestID,
		ConsentContractID: params.ConsentContractID,
		FieldManifestHash: params.FieldManifestHash,
		EncryptedPayload:  ciphertext,
		EncryptionKeyID:   keyID,
		TTL:               params.TTL,
		Status:            capsule.StatusCreated,
		CreatedAt:         m.clock.Now(),
	}

	rec, err := m.nonces.Register(ctx, c.ID.String(), params.TTL)
	if err != nil {
		return capsule.Capsule{}, dserr.Wrap(dserr.KindIllegalState, err, "nonce registration failed")
	}
	c.Nonce = rec.Nonce

	m.mu.Lock()
	m.capsules[c.ID] = c
	m.mu.Unlock()

	m.auditLog.Append(ctx, audit.EventCapsuleCreated, audit.Details{
		Actor:      audit.ActorSystem,
		ResourceID: c.ID.String(),
		Metadata: map[string]string{
			"request_id":          params.RequestID,
			"field_manifest_hash": params.FieldManifestHash,
		},
	})

	return *c, nil
}

// Deliver transitions a CREATED capsule to DELIVERED.
func (m *Manager) Deliver(ctx context.Context, capsuleID ids.ID) (capsule.Capsule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.capsules[capsuleID]
	if !ok {
		return capsule.Capsule{}, dserr.New(dserr.KindInvalidArgument, "capsule not found", string(capsule.DenialNotFound))
	}
	if c.Status != capsule.StatusCreated {
		return capsule.Capsule{}, dserr.New(dserr.KindIllegalState, "deliver only allowed from CREATED", string(capsule.DenialCapsuleNotDeliverable))
	}
	c.Status = capsule.StatusDelivered
	c.DeliveredAt = m.clock.Now()

	m.auditLog.Append(ctx, audit.EventCapsuleDelivered, audit.Details{
		Actor:      audit.ActorSystem,
		ResourceID: c.ID.String(),
	})

	return *c, nil
}

// Access atomically consumes nonceValue and decrypts the capsule's
// payload, failing closed with a DenialReason-tagged error at the
// first precondition miss. m.mu is held across the entire
// check-then-consume sequence so two concurrent Access calls on the
// same capsule cannot interleave between the status/TTL checks and the
// nonce consume — the registry's own Consume is atomic, but the
// preconditions it was checked under must still hold when it runs.
func (m *Manager) Access(ctx context.Context, capsuleID ids.ID, nonceValue string, now time.Time) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.capsules[capsuleID]
	if !ok {
		m.denyAccess(ctx, capsuleID.String(), capsule.DenialNotFound)
		return nil, denialError(capsule.DenialNotFound)
	}

	// A destroyed key outranks every other denial reason: once a
	// capsule's key is shredded, every access must answer KeyDestroyed
	// even once the capsule has also expired or been marked DELETED.
	if m.sealer.IsDestroyed(c.EncryptionKeyID) {
		m.denyAccess(ctx, capsuleID.String(), capsule.DenialKeyDestroyed)
		return nil, denialError(capsule.DenialKeyDestroyed)
	}
	if c.Status != capsule.StatusCreated && c.Status != capsule.StatusDelivered {
		m.denyAccess(ctx, capsuleID.String(), capsule.DenialCapsuleNotDeliverable)
		return nil, denialError(capsule.DenialCapsuleNotDeliverable)
	}
	if now.After(c.TTL) {
		m.denyAccess(ctx, capsuleID.String(), capsule.DenialCapsuleExpired)
		return nil, denialError(capsule.DenialCapsuleExpired)
	}

	rec, err := m.nonces.Consume(ctx, nonceValue)
	if err != nil {
		reason := capsule.DenialNonceExpired
		switch {
		case errors.Is(err, nonce.ErrNonceReused):
			reason = capsule.DenialNonceReused
		case errors.Is(err, nonce.ErrNonceUnknown):
			reason = capsule.DenialNotFound
		}
		m.denyAccess(ctx, capsuleID.String(), reason)
		return nil, denialError(reason)
	}
	if rec.CapsuleID != capsuleID.String() {
		m.denyAccess(ctx, capsuleID.String(), capsule.DenialNotFound)
		return nil, denialError(capsule.DenialNotFound)
	}

	plaintext, err := m.sealer.Open(c.EncryptionKeyID, c.EncryptedPayload)
	if err != nil {
		if err == dscrypto.ErrKeyDestroyed {
			m.denyAccess(ctx, capsuleID.String(), capsule.DenialKeyDestroyed)
			return nil, denialError(capsule.DenialKeyDestroyed)
		}
		return nil, dserr.Wrap(dserr.KindIllegalState, err, "capsule decryption failed")
	}

	m.auditLog.Append(ctx, audit.EventCapsuleAccessed, audit.Details{
		Actor:      audit.ActorDS,
		ResourceID: capsuleID.String(),
	})
	return plaintext, nil
}

func (m *Manager) denyAccess(ctx context.Context, resourceID string, reason capsule.DenialReason) {
	m.auditLog.Append(ctx, audit.EventCapsuleAccessDenied, audit.Details{
		Actor:       audit.ActorSystem,
		ResourceID:  resourceID,
		ReasonCodes: []string{string(reason)},
	})
}

func denialError(reason capsule.DenialReason) error {
	kind := dserr.KindInvalidArgument
	switch reason {
	case capsule.DenialNonceReused:
		kind = dserr.KindReplayDetected
	case capsule.DenialNonceExpired, capsule.DenialCapsuleExpired:
		kind = dserr.KindExpired
	case capsule.DenialCapsuleNotDeliverable:
		kind = dserr.KindIllegalState
	case capsule.DenialKeyDestroyed:
		kind = dserr.KindKeyDestroyed
	}
	return dserr.New(kind, "capsule access denied", string(reason))
}

// ExpireSweep transitions every past-TTL capsule to EXPIRED, then hands
// any capsule still EXPIRED past ttl+grace to Secure Deletion.
func (m *Manager) ExpireSweep(ctx context.Context, now time.Time, grace time.Duration) (int, int, error) {
	m.mu.Lock()
	var toExpire, toDelete []*capsule.Capsule
	for _, c := range m.capsules {
		if (c.Status == capsule.StatusCreated || c.Status == capsule.StatusDelivered) && now.After(c.TTL) {
			c.Status = capsule.StatusExpired
			toExpire = append(toExpire, c)
		}
		if c.Status == capsule.StatusExpired && now.After(c.TTL.Add(grace)) {
			toDelete = append(toDelete, c)
		}
	}
	m.mu.Unlock()

	for _, c := range toExpire {
		m.auditLog.Append(ctx, audit.EventCapsuleExpired, audit.Details{
			Actor:      audit.ActorSystem,
			ResourceID: c.ID.String(),
		})
	}

	deletedCount := 0
	for _, c := range toDelete {
		if err := m.destroy(ctx, c); err != nil {
			continue
		}
		deletedCount++
	}

	return len(toExpire), deletedCount, nil
}

func (m *Manager) destroy(ctx context.Context, c *capsule.Capsule) error {
	certID, err := m.deletionH.Initiate(ctx, "CAPSULE", c.ID.String(), "CRYPTO_SHRED")
	if err != nil {
		return err
	}
	if err := m.sealer.Destroy(c.EncryptionKeyID); err != nil {
		return err
	}
	if err := m.deletionH.MarkKeyDestroyed(ctx, certID, c.EncryptionKeyID, c.ID.String()); err != nil {
		return err
	}

	m.mu.Lock()
	c.Status = capsule.StatusDeleted
	m.mu.Unlock()

	m.auditLog.Append(ctx, audit.EventCapsuleDeleted, audit.Details{
		Actor:      audit.ActorSystem,
		ResourceID: c.ID.String(),
		Metadata:   map[string]string{"certificate_id": certID.String()},
	})
	return nil
}

// Get returns the current state of a capsule.
func (m *Manager) Get(ctx context.Context, capsuleID ids.ID) (capsule.Capsule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.capsules[capsuleID]
	if !ok {
		return capsule.Capsule{}, dserr.New(dserr.KindInvalidArgument, "capsule not found", string(capsule.DenialNotFound))
	}
	return *c, nil
}

var _ capsule.Manager = (*Manager)(nil)
