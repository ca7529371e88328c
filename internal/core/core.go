// Package core is the on-device facade: the single
// surface a UI, transport, or storage collaborator drives. It owns no
// business logic of its own — every operation is a thin, metrics- and
// audit-aware dispatch onto internal/consent, internal/queryplan,
// internal/planvm, internal/capsule, internal/prb, internal/deletion,
// and internal/audit.
//
// It is a thin command layer over independently-testable engines, each
// wired from in-memory collaborators at startup.
package core

import (
	"context"
	"time"

	"dscore/internal/audit"
	"dscore/internal/capsule"
	"dscore/internal/consent"
	"dscore/internal/deletion"
	"dscore/internal/planvm"
	"dscore/internal/prb"
	"dscore/internal/queryplan"
	"dscore/pkg/clock"
	"dscore/pkg/config"
	"dscore/pkg/dscrypto"
	"dscore/pkg/ids"
	"dscore/pkg/kvstore"
	"dscore/pkg/metrics"
)

// AuditStore is the full audit surface the facade needs: append, read
// back, verify the chain, and export for data-subject exit rights.
type AuditStore interface {
	audit.Logger
	audit.Reader
	audit.HashChain
	audit.Exporter
}

// Core wires every subsystem behind the external operation
// set. Every field is a narrow collaborator interface, never a concrete
// type, so a production entrypoint can swap any one of them (a
// persistent KeyRegistry, an HSM-backed Sealer) without touching this
// file.
type Core struct {
	Consent     consent.Engine
	Obligations consent.ObligationTracker
	Plans       queryplan.Manager
	VM          *planvm.VM
	Capsules    capsule.Manager
	PRB         prb.Ledger
	Deletions   deletion.CertificateStore
	Keys        deletion.KeyRegistry
	Audit       AuditStore
	Renderer    audit.Renderer
	KeyManager  dscrypto.KeyManager
	Metrics     *metrics.Collectors
	Clock       clock.Clock
	Policy      *config.Policy
	Requests    *RequestStore
}

// New assembles a Core from already-constructed collaborators. Callers
// needing a fully in-memory stack for tests or a demo should use
// NewInMemory instead.
func New(
	consentEngine consent.Engine,
	obligations consent.ObligationTracker,
	plans queryplan.Manager,
	vm *planvm.VM,
	capsules capsule.Manager,
	ledger prb.Ledger,
	deletions deletion.CertificateStore,
	keys deletion.KeyRegistry,
	auditStore AuditStore,
	renderer audit.Renderer,
	keyManager dscrypto.KeyManager,
	collectors *metrics.Collectors,
	clk clock.Clock,
	policy *config.Policy,
	kv kvstore.Store,
) *Core {
	return &Core{
		Consent:     consentEngine,
		Obligations: obligations,
		Plans:       plans,
		VM:          vm,
		Capsules:    capsules,
		PRB:         ledger,
		Deletions:   deletions,
		Keys:        keys,
		Audit:       auditStore,
		Renderer:    renderer,
		KeyManager:  keyManager,
		Metrics:     collectors,
		Clock:       clk,
		Policy:      policy,
		Requests:    NewRequestStore(kv),
	}
}

// RevokeConsent revokes the named consent contract. A revocation
// outcome carries no payload the caller needs beyond
// success/failure — the new Status is visible via Consent.Get.
func (c *Core) RevokeConsent(ctx context.Context, contractID ids.ID) error {
	_, err := c.Consent.Revoke(ctx, contractID)
	return err
}

// DeleteResource opens a SecureDeletionCertificate for the named
// resource. It only initiates
// the certificate; internal/deletion's own KeyRegistry/storage hooks
// perform the CRYPTO_SHRED/OVERWRITE work and advance its status — this
// facade method exists so a caller outside internal/deletion has a
// single named entry point for initiating a deletion job.
func (c *Core) DeleteResource(ctx context.Context, resourceType, resourceID string, method deletion.DeletionMethod) (deletion.Certificate, error) {
	return c.Deletions.Initiate(ctx, resourceType, resourceID, method)
}

// VerifyDeletion requires certID's certificate to be COMPLETED,
// transitions it to VERIFIED on success, and counts the verification in
// metrics.DeletionsVerified — the one deletion operation that produces
// a trust signal worth counting.
func (c *Core) VerifyDeletion(ctx context.Context, certID ids.ID) (deletion.Certificate, error) {
	cert, err := c.Deletions.Verify(ctx, certID)
	if err != nil {
		return deletion.Certificate{}, err
	}
	if c.Metrics != nil {
		c.Metrics.DeletionsVerified.Inc()
	}
	return cert, nil
}

// AuditExport serializes the audit chain into an export bundle.
// The range is accepted as an audit.Filter so a caller can scope the export
// to a resource or time window; an empty Filter exports the full chain.
func (c *Core) AuditExport(ctx context.Context, rng audit.Filter) (audit.ExportPackage, error) {
	if isEmptyFilter(rng) {
		return c.Audit.Export(ctx)
	}
	entries, err := c.Audit.List(ctx, rng)
	if err != nil {
		return audit.ExportPackage{}, err
	}
	return audit.ExportPackage{
		ExportedAt: c.Clock.Now(),
		EntryCount: len(entries),
		Entries:    entries,
	}, nil
}

func isEmptyFilter(f audit.Filter) bool {
	return f.Event == "" && f.ResourceID == "" && f.After.IsZero() && f.Before.IsZero() && f.Limit == 0 && f.Offset == 0
}

// DescribeEntry renders entry via Renderer into a plain-language
// description suitable for a UI.
func (c *Core) DescribeEntry(entry audit.Entry) string {
	if c.Renderer == nil {
		return string(entry.Event)
	}
	return c.Renderer.Describe(entry)
}

// now is a small convenience so call sites read `c.now()` rather than
// repeating `c.Clock.Now()`.
func (c *Core) now() time.Time {
	return c.Clock.Now()
}
