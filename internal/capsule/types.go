package capsule

import (
	"time"

	"dscore/pkg/ids"
)

// Status is the Time Capsule lifecycle.
type Status string

const (
	StatusCreated   Status = "CREATED"
	StatusDelivered Status = "DELIVERED"
	StatusExpired   Status = "EXPIRED"
	StatusDeleted   Status = "DELETED"
)

// Capsule is the encrypted, TTL-bounded output container keyed by a
// unique one-use nonce.
type Capsule struct {
	ID                ids.ID
	RequestID         string
	ConsentContractID ids.ID
	FieldManifestHash string
	EncryptedPayload  []byte
	EncryptionKeyID   string
	TTL               time.Time
	Nonce             string
	Status            Status
	CreatedAt         time.Time
	DeliveredAt       time.Time
}

// CreateParams is the validated-constructor input for a new capsule.
type CreateParams struct {
	RequestID         string
	ConsentContractID ids.ID
	FieldManifestHash string
	Payload           []byte
	TTL               time.Time
}

// DenialReason is the closed set of reasons access() refuses a capsule
// open, so a caller always learns which precondition failed rather
// than a bare denial.
type DenialReason string

const (
	DenialNotFound              DenialReason = "NOT_FOUND"
	DenialNonceReused           DenialReason = "NONCE_REUSED"
	DenialNonceExpired          DenialReason = "NONCE_EXPIRED"
	DenialCapsuleExpired        DenialReason = "CAPSULE_EXPIRED"
	DenialCapsuleNotDeliverable DenialReason = "CAPSULE_NOT_DELIVERABLE"
	DenialKeyDestroyed          DenialReason = "KEY_DESTROYED"
)
