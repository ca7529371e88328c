package impl_inmem

import (
	"context"

	"dscore/internal/audit"
	"dscore/internal/consent"
	"dscore/pkg/dserr"
	"dscore/pkg/ids"
)

// Satisfy transitions an ACTIVE obligation to SATISFIED.
func (e *Engine) Satisfy(ctx context.Context, obligationID ids.ID) (consent.Obligation, error) {
	e.mu.Lock()
	o, ok := e.obligs[obligationID]
	if !ok {
		e.mu.Unlock()
		return consent.Obligation{}, dserr.New(dserr.KindInvalidArgument, "obligation not found")
	}
	if o.Status == consent.ObligationSatisfied || o.Status == consent.ObligationViolated {
		e.mu.Unlock()
		return consent.Obligation{}, dserr.New(dserr.KindIllegalState, "obligation already in a terminal state")
	}
	o.Status = consent.ObligationSatisfied
	result := *o
	e.mu.Unlock()

	if e.audit != nil {
		e.audit.Append(ctx, audit.EventObligationSatisfied, audit.Details{ResourceID: obligationID.String()})
	}
	return result, nil
}

// Expire transitions an ACTIVE obligation to EXPIRED.
func (e *Engine) Expire(ctx context.Context, obligationID ids.ID) (consent.Obligation, error) {
	e.mu.Lock()
	o, ok := e.obligs[obligationID]
	if !ok {
		e.mu.Unlock()
		return consent.Obligation{}, dserr.New(dserr.KindInvalidArgument, "obligation not found")
	}
	if o.Status == consent.ObligationSatisfied || o.Status == consent.ObligationViolated {
		e.mu.Unlock()
		return consent.Obligation{}, dserr.New(dserr.KindIllegalState, "obligation already in a terminal state")
	}
	o.Status = consent.ObligationExpired
	result := *o
	e.mu.Unlock()

	if e.audit != nil {
		e.audit.Append(ctx, audit.EventObligationExpired, audit.Details{ResourceID: obligationID.String()})
	}
	return result, nil
}

// DetectViolation records a DETECTED violation and moves the
// obligation to VIOLATED.
func (e *Engine) DetectViolation(ctx context.Context, obligationID ids.ID, violationType string, severity consent.ViolationSeverity, penalty string) (consent.Violation, error) {
	e.mu.Lock()
	o, ok := e.obligs[obligationID]
	if !ok {
		e.mu.Unlock()
		return consent.Violation{}, dserr.New(dserr.KindInvalidArgument, "obligation not found")
	}
	if o.Status == consent.ObligationSatisfied {
		e.mu.Unlock()
		return consent.Violation{}, dserr.New(dserr.KindIllegalState, "cannot violate an already-satisfied obligation")
	}
	o.Status = consent.ObligationViolated

	v := &consent.Violation{
		ID:           ids.New(),
		ContractID:   o.ContractID,
		ObligationID: obligationID,
		Type:         violationType,
		Severity:     severity,
		Status:       consent.ViolationDetected,
		Penalty:      penalty,
		DetectedAt:   e.clock.Now(),
	}
	e.violations[v.ID] = v
	result := *v
	e.mu.Unlock()

	if e.audit != nil {
		e.audit.Append(ctx, audit.EventObligationViolationDetected, audit.Details{
			ResourceID: v.ID.String(),
			Reason:     violationType,
		})
	}
	return result, nil
}

func (e *Engine) transitionViolation(ctx context.Context, violationID ids.ID, from []consent.ViolationStatus, to consent.ViolationStatus, event audit.EventType) (consent.Violation, error) {
	e.mu.Lock()
	v, ok := e.violations[violationID]
	if !ok {
		e.mu.Unlock()
		return consent.Violation{}, dserr.New(dserr.KindInvalidArgument, "violation not found")
	}
	allowed := false
	for _, s := range from {
		if v.Status == s {
			allowed = true
			break
		}
	}
	if !allowed {
		e.mu.Unlock()
		return consent.Violation{}, dserr.New(dserr.KindIllegalState, "illegal violation status transition")
	}
	v.Status = to
	result := *v
	e.mu.Unlock()

	if e.audit != nil {
		e.audit.Append(ctx, event, audit.Details{ResourceID: violationID.String()})
	}
	return result, nil
}

// Acknowledge transitions DETECTED -> ACKNOWLEDGED.
func (e *Engine) Acknowledge(ctx context.Context, violationID ids.ID) (consent.Violation, error) {
	return e.transitionViolation(ctx, violationID,
		[]consent.ViolationStatus{consent.ViolationDetected},
		consent.ViolationAcknowledged, audit.EventObligationViolationAcknowledged)
}

// Investigate transitions ACKNOWLEDGED -> INVESTIGATING.
func (e *Engine) Investigate(ctx context.Context, violationID ids.ID) (consent.Violation, error) {
	return e.transitionViolation(ctx, violationID,
		[]consent.ViolationStatus{consent.ViolationAcknowledged},
		consent.ViolationInvestigating, audit.EventObligationViolationInvestigated)
}

// Resolve transitions INVESTIGATING -> RESOLVED (terminal).
func (e *Engine) Resolve(ctx context.Context, violationID ids.ID) (consent.Violation, error) {
	return e.transitionViolation(ctx, violationID,
		[]consent.ViolationStatus{consent.ViolationInvestigating},
		consent.ViolationResolved, audit.EventObligationViolationResolved)
}

// Escalate transitions INVESTIGATING -> ESCALATED (terminal).
func (e *Engine) Escalate(ctx context.Context, violationID ids.ID) (consent.Violation, error) {
	return e.transitionViolation(ctx, violationID,
		[]consent.ViolationStatus{consent.ViolationInvestigating},
		consent.ViolationEscalated, audit.EventObligationViolationEscalated)
}

// Dismiss transitions DETECTED, ACKNOWLEDGED, or INVESTIGATING ->
// DISMISSED (terminal).
func (e *Engine) Dismiss(ctx context.Context, violationID ids.ID) (consent.Violation, error) {
	return e.transitionViolation(ctx, violationID,
		[]consent.ViolationStatus{consent.ViolationDetected, consent.ViolationAcknowledged, consent.ViolationInvestigating},
		consent.ViolationDismissed, audit.EventObligationViolationDismissed)
}

// GetViolation returns the current state of a violation.
func (e *Engine) GetViolation(ctx context.Context, violationID ids.ID) (consent.Violation, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	v, ok := e.violations[violationID]
	if !ok {
		return consent.Violation{}, dserr.New(dserr.KindInvalidArgument, "violation not found")
	}
	return *v, nil
}

var _ consent.ObligationTracker = (*Engine)(nil)
