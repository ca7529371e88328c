package core

import (
	"context"
	"encoding/json"
	"time"

	"dscore/internal/capsule"
	"dscore/internal/planvm"
	"dscore/pkg/dserr"
	"dscore/pkg/ids"
)

// planvmSealer adapts a capsule.Manager to planvm.CapsuleSealer, the
// dependency-inversion seam that keeps internal/planvm from importing
// internal/capsule directly. A Plan VM's in-memory Mapping is
// serialized to JSON before it is handed to the capsule subsystem,
// which only ever deals in opaque payload bytes.
type planvmSealer struct {
	capsules capsule.Manager
}

// NewCapsuleSealer builds the planvm.CapsuleSealer adapter over capsules.
func NewCapsuleSealer(capsules capsule.Manager) planvm.CapsuleSealer {
	return &planvmSealer{capsules: capsules}
}

func (s *planvmSealer) Seal(ctx context.Context, planID ids.ID, payload planvm.Mapping, ttl time.Time) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", dserr.Wrap(dserr.KindIllegalState, err, "pack_capsule payload serialization failed")
	}
	c, err := s.capsules.Create(ctx, capsule.CreateParams{
		RequestID: planID.String(),
		Payload:   body,
		TTL:       ttl,
	})
	if err != nil {
		return "", err
	}
	return c.ID.String(), nil
}

var _ planvm.CapsuleSealer = (*planvmSealer)(nil)

// SealCapsule encrypts an output mapping into a TimeCapsule:
// a direct entry point for sealing a mapping a caller
// already has in hand, independent of whether the plan that produced it
// contained a pack_capsule step. planvm's own pack_capsule operator
// calls the identical capsule.Manager through the planvmSealer adapter,
// so both paths share one creation path and one audit trail.
func (c *Core) SealCapsule(ctx context.Context, requestID string, contractID ids.ID, output planvm.Mapping, ttl time.Time) (capsule.Capsule, error) {
	body, err := json.Marshal(output)
	if err != nil {
		return capsule.Capsule{}, dserr.Wrap(dserr.KindIllegalState, err, "capsule payload serialization failed")
	}
	return c.Capsules.Create(ctx, capsule.CreateParams{
		RequestID:         requestID,
		ConsentContractID: contractID,
		Payload:           body,
		TTL:               ttl,
	})
}

// AccessCapsule consumes the nonce and returns the decrypted output,
// or a denial naming the failed precondition. The DenialReason, when
// present, is counted in metrics.CapsuleDenials by reason so an
// operator can distinguish routine expiry from a genuine replay attack.
func (c *Core) AccessCapsule(ctx context.Context, capsuleID ids.ID, nonce string) ([]byte, error) {
	plaintext, err := c.Capsules.Access(ctx, capsuleID, nonce, c.now())
	if err != nil {
		if c.Metrics != nil {
			if dsErr, ok := dserr.As(err); ok && len(dsErr.ReasonCodes) > 0 {
				c.Metrics.CapsuleDenials.WithLabelValues(dsErr.ReasonCodes[0]).Inc()
			}
		}
		return nil, err
	}
	return plaintext, nil
}
