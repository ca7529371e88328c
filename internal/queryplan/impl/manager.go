package impl

import (
	"context"
	"sync"
	"time"

	"dscore/internal/audit"
	"dscore/internal/consent"
	"dscore/internal/queryplan"
	"dscore/pkg/clock"
	"dscore/pkg/dserr"
	"dscore/pkg/ids"
)

// Manager implements queryplan.Manager.
type Manager struct {
	mu        sync.Mutex
	clock     clock.Clock
	audit     audit.Logger
	signer    queryplan.Signer
	validator queryplan.Validator
	policy    queryplan.ValidatorPolicy
	plans     map[ids.ID]*queryplan.Plan
}

// NewManager builds a plan Manager bound to signer, validator, and policy.
func NewManager(c clock.Clock, auditLog audit.Logger, signer queryplan.Signer, validator queryplan.Validator, policy queryplan.ValidatorPolicy) *Manager {
	return &Manager{
		clock:     c,
		audit:     auditLog,
		signer:    signer,
		validator: validator,
		policy:    policy,
		plans:     make(map[ids.ID]*queryplan.Plan),
	}
}

// Sign builds, signs, and validates a Plan from draft.
func (m *Manager) Sign(ctx context.Context, draft queryplan.Draft, keyID string, contractChecker queryplan.ConsentChecker, scopeForCheck consent.PlanFacts) (queryplan.Plan, error) {
	now := m.clock.Now()
	plan := queryplan.Plan{
		ID:                 ids.New(),
		RequestID:          draft.RequestID,
		ConsentContractID:  draft.ConsentContractID,
		ScopeHash:          draft.ScopeHash,
		AllowedTransforms:  draft.AllowedTransforms,
		OutputRestrictions: draft.OutputRestrictions,
		PermittedFields:    draft.PermittedFields,
		Compensation:       draft.Compensation,
		TTL:                draft.TTL,
		ResourceLimits:     draft.ResourceLimits,
		Steps:              draft.Steps,
		SigningKeyID:       keyID,
		Status:             queryplan.StatusPending,
	}

	payload := queryplan.SignablePayload(plan)
	sig, err := m.signer.Sign(ctx, keyID, payload)
	if err != nil {
		return m.reject(ctx, plan, []string{"PLAN_SIGNATURE_INVALID"})
	}
	plan.Signature = sig
	plan.SignedAt = now

	result := m.validator.Validate(ctx, plan, now, m.policy)
	if !result.Valid {
		return m.reject(ctx, plan, result.ReasonCodes)
	}

	if contractChecker != nil {
		decision, err := contractChecker.Check(ctx, draft.ConsentContractID, scopeForCheck)
		if err != nil || !decision.Allow {
			reason := "CONSENT_DENIED"
			if decision.ReasonCode != "" {
				reason = decision.ReasonCode
			}
			return m.reject(ctx, plan, []string{reason})
		}
	}

	plan.Status = queryplan.StatusSigned

	m.mu.Lock()
	m.plans[plan.ID] = &plan
	m.mu.Unlock()

	if m.audit != nil {
		m.audit.Append(ctx, audit.EventQueryPlanSigned, audit.Details{ResourceID: plan.ID.String()})
	}
	return plan, nil
}

func (m *Manager) reject(ctx context.Context, plan queryplan.Plan, reasonCodes []string) (queryplan.Plan, error) {
	plan.Status = queryplan.StatusRejected
	m.mu.Lock()
	m.plans[plan.ID] = &plan
	m.mu.Unlock()

	if m.audit != nil {
		m.audit.Append(ctx, audit.EventQueryPlanRejected, audit.Details{
			ResourceID:  plan.ID.String(),
			ReasonCodes: reasonCodes,
		})
	}
	return plan, dserr.PlanRejected(reasonCodes...)
}

// Dispatch transitions a SIGNED plan to DISPATCHED.
func (m *Manager) Dispatch(ctx context.Context, planID ids.ID) (queryplan.Plan, error) {
	m.mu.Lock()
	plan, ok := m.plans[planID]
	if !ok {
		m.mu.Unlock()
		return queryplan.Plan{}, dserr.New(dserr.KindInvalidArgument, "plan not found")
	}
	if plan.Status != queryplan.StatusSigned {
		m.mu.Unlock()
		return queryplan.Plan{}, dserr.New(dserr.KindIllegalState, "dispatch requires SIGNED")
	}
	plan.Status = queryplan.StatusDispatched
	result := *plan
	m.mu.Unlock()

	if m.audit != nil {
		m.audit.Append(ctx, audit.EventQueryPlanDispatched, audit.Details{ResourceID: planID.String()})
	}
	return result, nil
}

// MarkExecuted transitions a DISPATCHED plan to EXECUTED.
func (m *Manager) MarkExecuted(ctx context.Context, planID ids.ID) (queryplan.Plan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	plan, ok := m.plans[planID]
	if !ok {
		return queryplan.Plan{}, dserr.New(dserr.KindInvalidArgument, "plan not found")
	}
	if plan.Status != queryplan.StatusDispatched && plan.Status != queryplan.StatusSigned {
		return queryplan.Plan{}, dserr.New(dserr.KindIllegalState, "execution requires SIGNED or DISPATCHED")
	}
	plan.Status = queryplan.StatusExecuted
	return *plan, nil
}

// ExpireSweep transitions every SIGNED or DISPATCHED plan past its TTL
// to EXPIRED.
func (m *Manager) ExpireSweep(ctx context.Context, now time.Time) (int, error) {
	m.mu.Lock()
	var expired []ids.ID
	for id, plan := range m.plans {
		if (plan.Status == queryplan.StatusSigned || plan.Status == queryplan.StatusDispatched) && !now.Before(plan.TTL) {
			plan.Status = queryplan.StatusExpired
			expired = append(expired, id)
		}
	}
	m.mu.Unlock()

	if m.audit != nil {
		for _, id := range expired {
			m.audit.Append(ctx, audit.EventQueryPlanExpired, audit.Details{ResourceID: id.String()})
		}
	}
	return len(expired), nil
}

// Get returns the current state of a plan.
func (m *Manager) Get(ctx context.Context, planID ids.ID) (queryplan.Plan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	plan, ok := m.plans[planID]
	if !ok {
		return queryplan.Plan{}, dserr.New(dserr.KindInvalidArgument, "plan not found")
	}
	return *plan, nil
}

var _ queryplan.Manager = (*Manager)(nil)
