package deletion

import (
	"time"

	"dscore/pkg/ids"
)

// KeyType is the closed set of key kinds the Destroyed-Key Registry
// tracks.
type KeyType string

const (
	KeyTypeDEK      KeyType = "DEK"
	KeyTypeKEK      KeyType = "KEK"
	KeyTypeCategory KeyType = "CATEGORY"
	KeyTypeDS       KeyType = "DS"
	KeyTypeSession  KeyType = "SESSION"
)

// DestructionMethod is the closed set of ways a key may be destroyed.
type DestructionMethod string

const (
	DestructionZeroed          DestructionMethod = "ZEROED"
	DestructionOverwritten     DestructionMethod = "OVERWRITTEN"
	DestructionDeletedFromHSM  DestructionMethod = "DELETED_FROM_HSM"
	DestructionRevoked         DestructionMethod = "REVOKED"
)

// DestroyedKeyRecord is a permanent, idempotent tombstone: once a
// key_id appears here, it is there forever.
type DestroyedKeyRecord struct {
	KeyID             string
	KeyType           KeyType
	DestructionMethod DestructionMethod
	ResourceRef       string
	DestroyedAt       time.Time
	CertificateID     ids.ID
}

// DeletionMethod is the closed set of deletion job strategies.
type DeletionMethod string

const (
	MethodCryptoShred DeletionMethod = "CRYPTO_SHRED"
	MethodOverwrite   DeletionMethod = "OVERWRITE"
	MethodBoth        DeletionMethod = "BOTH"
)

// CertificateStatus is the deletion certificate lifecycle.
type CertificateStatus string

const (
	CertInitiated     CertificateStatus = "INITIATED"
	CertKeyDestroyed  CertificateStatus = "KEY_DESTROYED"
	CertStorageDeleted CertificateStatus = "STORAGE_DELETED"
	CertCompleted     CertificateStatus = "COMPLETED"
	CertVerified      CertificateStatus = "VERIFIED"
	CertFailed        CertificateStatus = "FAILED"
)

// Certificate records a deletion job and its proof of completion.
type Certificate struct {
	ID                ids.ID
	ResourceType      string
	ResourceID        string
	DeletionMethod    DeletionMethod
	KeyDestroyed      bool
	StorageDeleted    bool
	StorageOverwritten bool
	Status            CertificateStatus
	CreatedAt         time.Time
	CompletedAt       time.Time
	CertificateHash   string
}
