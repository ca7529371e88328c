// Package impl_inmem provides an in-memory consent.Engine and
// consent.ObligationTracker: ordered, fail-closed predicate evaluation
// over a single-entity status-transition record.
package impl_inmem

import (
	"context"
	"sort"
	"sync"

	"time"

	"dscore/internal/audit"
	"dscore/internal/consent"
	"dscore/pkg/canonical"
	"dscore/pkg/clock"
	"dscore/pkg/dserr"
	"dscore/pkg/ids"
	"dscore/pkg/money"
	"dscore/pkg/opset"
)

// Engine implements consent.Engine and consent.ObligationTracker
// against in-memory maps guarded by one mutex. Only a per-entity
// mutation lock is required, and the in-memory scale here makes a
// single engine-wide lock indistinguishable from that in practice.
type Engine struct {
	mu         sync.Mutex
	clock      clock.Clock
	audit      audit.Logger
	contracts  map[ids.ID]*consent.Contract
	obligs     map[ids.ID]*consent.Obligation
	obligsByContract map[ids.ID][]ids.ID
	violations map[ids.ID]*consent.Violation
}

// New creates an empty in-memory consent engine.
func New(c clock.Clock, auditLog audit.Logger) *Engine {
	return &Engine{
		clock:            c,
		audit:            auditLog,
		contracts:        make(map[ids.ID]*consent.Contract),
		obligs:           make(map[ids.ID]*consent.Obligation),
		obligsByContract: make(map[ids.ID][]ids.ID),
		violations:       make(map[ids.ID]*consent.Violation),
	}
}

// Create validates and inserts a new Contract plus its Obligations.
func (e *Engine) Create(ctx context.Context, p consent.CreateParams) (consent.Contract, error) {
	if !p.DurationStart.Before(p.DurationEnd) {
		return consent.Contract{}, dserr.New(dserr.KindInvalidArgument, "duration_start must be before duration_end")
	}
	comp, err := money.Parse(p.Compensation)
	if err != nil || !comp.IsPositive() {
		return consent.Contract{}, dserr.New(dserr.KindInvalidArgument, "compensation must be a positive amount")
	}
	if len(p.PermittedFields) == 0 {
		return consent.Contract{}, dserr.New(dserr.KindInvalidArgument, "permitted_fields must be non-empty")
	}
	if !isSubset(p.PermittedFields, p.RequestScopeFields) {
		return consent.Contract{}, dserr.New(dserr.KindInvalidArgument, "permitted_fields must be a subset of the request scope")
	}
	if !opset.Subset(p.AllowedTransforms) {
		return consent.Contract{}, dserr.New(dserr.KindInvalidArgument, "allowed_transforms must be a subset of AllowedOps")
	}

	contract := &consent.Contract{
		ID:                     ids.New(),
		DSID:                   p.DSID,
		RequesterID:            p.RequesterID,
		RequestID:              p.RequestID,
		ScopeHash:              p.ScopeHash,
		PurposeHash:            p.PurposeHash,
		DurationStart:          p.DurationStart,
		DurationEnd:            p.DurationEnd,
		Status:                 consent.ContractActive,
		Compensation:           comp.String(),
		PermittedFields:        p.PermittedFields,
		SensitiveFieldConsents: p.SensitiveFieldConsents,
		AllowedTransforms:      p.AllowedTransforms,
		TransformChainRules:    p.TransformChainRules,
		OutputRestrictions:     p.OutputRestrictions,
		DeliveryMode:           p.DeliveryMode,
		RetentionDays:          p.RetentionDays,
		RetentionPolicy:        p.RetentionPolicy,
	}
	contract.ObligationHash = computeObligationHash(p.Obligations)

	e.mu.Lock()
	e.contracts[contract.ID] = contract
	var obligationIDs []ids.ID
	for _, spec := range p.Obligations {
		o := &consent.Obligation{
			ID:               ids.New(),
			ContractID:       contract.ID,
			Kind:             spec.Kind,
			EnforcementLevel: spec.EnforcementLevel,
			Status:           consent.ObligationActive,
		}
		e.obligs[o.ID] = o
		obligationIDs = append(obligationIDs, o.ID)
	}
	e.obligsByContract[contract.ID] = obligationIDs
	e.mu.Unlock()

	if e.audit != nil {
		e.audit.Append(ctx, audit.EventConsentGranted, audit.Details{
			Actor:      audit.ActorDS,
			ResourceID: contract.ID.String(),
		})
	}
	return *contract, nil
}

// computeObligationHash hashes the sorted obligation tuples so the
// commitment is stable across orderings.
func computeObligationHash(specs []consent.ObligationSpec) string {
	tuples := make([]string, 0, len(specs))
	for _, s := range specs {
		tuples = append(tuples, canonical.Join(string(s.Kind), string(s.EnforcementLevel)))
	}
	sort.Strings(tuples)
	return canonical.HashString(canonical.Join(tuples...))
}

// Revoke transitions a contract from ACTIVE to REVOKED.
func (e *Engine) Revoke(ctx context.Context, id ids.ID) (consent.Contract, error) {
	e.mu.Lock()
	contract, ok := e.contracts[id]
	if !ok {
		e.mu.Unlock()
		return consent.Contract{}, dserr.New(dserr.KindInvalidArgument, "contract not found")
	}
	if contract.Status != consent.ContractActive {
		e.mu.Unlock()
		return consent.Contract{}, dserr.New(dserr.KindIllegalState, "revoke only allowed from ACTIVE")
	}
	contract.Status = consent.ContractRevoked
	contract.RevokedAt = e.clock.Now()
	result := *contract
	e.mu.Unlock()

	if e.audit != nil {
		e.audit.Append(ctx, audit.EventConsentRevoked, audit.Details{
			Actor:      audit.ActorDS,
			ResourceID: id.String(),
		})
	}
	return result, nil
}

// ExpireSweep marks every ACTIVE contract past its duration_end as
// EXPIRED.
func (e *Engine) ExpireSweep(ctx context.Context, now time.Time) (int, error) {
	e.mu.Lock()
	var expired []ids.ID
	for id, contract := range e.contracts {
		if contract.Status == consent.ContractActive && !now.Before(contract.DurationEnd) {
			contract.Status = consent.ContractExpired
			expired = append(expired, id)
		}
	}
	e.mu.Unlock()

	if e.audit != nil {
		for _, id := range expired {
			e.audit.Append(ctx, audit.EventConsentExpired, audit.Details{
				Actor:      audit.ActorSystem,
				ResourceID: id.String(),
			})
		}
	}
	return len(expired), nil
}

// Check evaluates plan against the named contract under the six
// ordered, fail-closed rules. It always reads live state.
func (e *Engine) Check(ctx context.Context, contractID ids.ID, plan consent.PlanFacts) (consent.Decision, error) {
	e.mu.Lock()
	contract, ok := e.contracts[contractID]
	if !ok {
		e.mu.Unlock()
		return consent.Decision{}, dserr.New(dserr.KindInvalidArgument, "contract not found")
	}
	snapshot := *contract
	obligationIDs := append([]ids.ID(nil), e.obligsByContract[contractID]...)
	obligations := make([]consent.Obligation, 0, len(obligationIDs))
	for _, oid := range obligationIDs {
		obligations = append(obligations, *e.obligs[oid])
	}
	e.mu.Unlock()

	now := e.clock.Now()

	decision := func(reason string) consent.Decision {
		if e.audit != nil {
			e.audit.Append(ctx, audit.EventConsentDenied, audit.Details{
				ResourceID:  contractID.String(),
				ReasonCodes: []string{reason},
			})
		}
		return consent.Decision{Allow: false, ReasonCode: reason}
	}

	// 1. status == ACTIVE ∧ now < duration_end
	if snapshot.Status != consent.ContractActive || !now.Before(snapshot.DurationEnd) {
		if snapshot.Status == consent.ContractRevoked {
			return decision("CONSENT_REVOKED"), nil
		}
		return decision("CONSENT_NOT_ACTIVE"), nil
	}

	// 2. plan.scope_hash == contract.scope_hash
	if plan.ScopeHash != snapshot.ScopeHash {
		return decision("SCOPE_MISMATCH"), nil
	}

	// 3. plan.permitted_fields ⊆ contract.permitted_fields; sensitive
	// fields touched must have explicit consent == true.
	if !isSubset(plan.PermittedFields, snapshot.PermittedFields) {
		return decision("UNAUTHORIZED_FIELD_ACCESS_ATTEMPT"), nil
	}
	for _, f := range plan.SensitiveFields {
		if !snapshot.SensitiveFieldConsents[f] {
			return decision("SENSITIVE_FIELD_NOT_CONSENTED"), nil
		}
	}

	// 4. plan operators ⊆ contract.allowed_transforms
	if !isSubset(plan.Operators, snapshot.AllowedTransforms) {
		return decision("TRANSFORM_NOT_ALLOWED"), nil
	}

	// 5. plan.output_restrictions ⊇ contract.output_restrictions
	if !isSubset(snapshot.OutputRestrictions, plan.OutputRestrictions) {
		return decision("OUTPUT_RESTRICTION_WEAKENED"), nil
	}

	// 6. no obligation bound to the contract is VIOLATED; whether any
	// particular obligation kind is present is not checked.
	for _, o := range obligations {
		if o.Status == consent.ObligationViolated {
			return decision("OBLIGATION_VIOLATED"), nil
		}
	}

	if e.audit != nil {
		e.audit.Append(ctx, audit.EventConsentChecked, audit.Details{ResourceID: contractID.String()})
	}
	return consent.Decision{Allow: true}, nil
}

// Get returns the current state of a contract.
func (e *Engine) Get(ctx context.Context, id ids.ID) (consent.Contract, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	contract, ok := e.contracts[id]
	if !ok {
		return consent.Contract{}, dserr.New(dserr.KindInvalidArgument, "contract not found")
	}
	return *contract, nil
}

// Obligations returns every obligation attached to a contract.
func (e *Engine) Obligations(ctx context.Context, contractID ids.ID) ([]consent.Obligation, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	obligationIDs := e.obligsByContract[contractID]
	out := make([]consent.Obligation, 0, len(obligationIDs))
	for _, oid := range obligationIDs {
		out = append(out, *e.obligs[oid])
	}
	return out, nil
}

func isSubset(sub, super []string) bool {
	set := make(map[string]struct{}, len(super))
	for _, v := range super {
		set[v] = struct{}{}
	}
	for _, v := range sub {
		if _, ok := set[v]; !ok {
			return false
		}
	}
	return true
}

var _ consent.Engine = (*Engine)(nil)
