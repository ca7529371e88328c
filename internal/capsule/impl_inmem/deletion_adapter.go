package impl_inmem

import (
	"context"
	"fmt"

	"dscore/internal/capsule"
	"dscore/internal/deletion"
	"dscore/pkg/ids"
)

// DeletionAdapter adapts deletion.KeyRegistry and deletion.CertificateStore
// to the capsule.DeletionHandoff seam, so internal/core wires the real
// Secure Deletion subsystem into the Time Capsule manager without
// capsule importing deletion's full interface surface.
type DeletionAdapter struct {
	Certs deletion.CertificateStore
	Keys  deletion.KeyRegistry
}

// NewDeletionAdapter builds a DeletionAdapter over certs and keys.
func NewDeletionAdapter(certs deletion.CertificateStore, keys deletion.KeyRegistry) *DeletionAdapter {
	return &DeletionAdapter{Certs: certs, Keys: keys}
}

// Initiate opens a deletion certificate for resourceID under method.
func (a *DeletionAdapter) Initiate(ctx context.Context, resourceType, resourceID, method string) (ids.ID, error) {
	cert, err := a.Certs.Initiate(ctx, resourceType, resourceID, deletion.DeletionMethod(method))
	if err != nil {
		return ids.Zero, fmt.Errorf("capsule: initiate deletion certificate: %w", err)
	}
	return cert.ID, nil
}

// MarkKeyDestroyed records keyID's permanent destruction and advances
// certificateID's status.
func (a *DeletionAdapter) MarkKeyDestroyed(ctx context.Context, certificateID ids.ID, keyID string, resourceRef string) error {
	if _, err := a.Keys.MarkDestroyed(ctx, keyID, deletion.KeyTypeDEK, deletion.DestructionZeroed, resourceRef, certificateID); err != nil {
		return fmt.Errorf("capsule: mark key destroyed: %w", err)
	}
	if _, err := a.Certs.MarkKeyDestroyed(ctx, certificateID); err != nil {
		return fmt.Errorf("capsule: advance certificate: %w", err)
	}
	return nil
}

var _ capsule.DeletionHandoff = (*DeletionAdapter)(nil)
