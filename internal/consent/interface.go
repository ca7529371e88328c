// Package consent implements the Consent Contract engine, its
// Obligations, and Obligation Violations.
// Check evaluates an ordered list of predicates — first failure wins,
// success falls through — against a single mutable entity's
// status-transition record.
package consent

import (
	"context"
	"time"

	"dscore/pkg/ids"
)

// CreateParams is the validated-constructor options struct for
// Contract creation.
type CreateParams struct {
	DSID                   string
	RequesterID            string
	RequestID              string
	ScopeHash              string
	PurposeHash            string
	DurationStart          time.Time
	DurationEnd            time.Time
	Compensation           string
	PermittedFields        []string
	RequestScopeFields     []string // the superset PermittedFields must be a subset of
	SensitiveFieldConsents map[string]bool
	AllowedTransforms      []string
	TransformChainRules    []string
	OutputRestrictions     []string
	DeliveryMode           DeliveryMode
	RetentionDays          int
	RetentionPolicy        string
	Obligations            []ObligationSpec
}

// ObligationSpec is one obligation to attach at contract creation.
type ObligationSpec struct {
	Kind             ObligationKind
	EnforcementLevel EnforcementLevel
}

// PlanFacts is the minimal projection of a Query Plan that Check
// needs, kept local to this package so consent never imports
// queryplan (a QueryPlan only weakly references its contract, and the
// dependency must not run the other way either).
type PlanFacts struct {
	ScopeHash          string
	PermittedFields    []string
	SensitiveFields    []string
	Operators          []string
	OutputRestrictions []string
}

// Engine manages Consent Contracts, their Obligations, and Obligation
// Violations.
type Engine interface {
	// Create validates duration ordering, non-empty permitted fields,
	// positive compensation, permitted_fields ⊆ request scope, and
	// allowed_transforms ⊆ AllowedOps; computes obligation_hash over the
	// sorted obligation tuples; emits CONSENT_GRANTED.
	Create(ctx context.Context, params CreateParams) (Contract, error)

	// Revoke transitions id from ACTIVE to REVOKED, setting RevokedAt to
	// now. Allowed only from ACTIVE.
	Revoke(ctx context.Context, id ids.ID) (Contract, error)

	// ExpireSweep marks every ACTIVE contract with DurationEnd <= now as
	// EXPIRED in one batch, emitting one audit entry per contract.
	ExpireSweep(ctx context.Context, now time.Time) (int, error)

	// Check evaluates plan against contract under the six
	// ordered, fail-closed rules and returns a Decision. Check always
	// reads live contract state — it never serves a cached snapshot —
	// so the 60s revocation-visibility bound is satisfied
	// trivially by any caller that re-invokes Check rather than reusing
	// a prior Decision past that window.
	Check(ctx context.Context, contractID ids.ID, plan PlanFacts) (Decision, error)

	// Get returns the current state of a contract.
	Get(ctx context.Context, id ids.ID) (Contract, error)

	// Obligations returns every obligation attached to a contract.
	Obligations(ctx context.Context, contractID ids.ID) ([]Obligation, error)
}

// ObligationTracker manages Obligation and ObligationViolation status
// transitions independent of contract lifecycle (an obligation can be
// satisfied, violated, or expire on its own schedule).
type ObligationTracker interface {
	// Satisfy transitions an ACTIVE obligation to SATISFIED. Forbidden
	// once the obligation is already SATISFIED or VIOLATED (terminal).
	Satisfy(ctx context.Context, obligationID ids.ID) (Obligation, error)

	// Expire transitions an ACTIVE obligation to EXPIRED.
	Expire(ctx context.Context, obligationID ids.ID) (Obligation, error)

	// DetectViolation records a new Violation in DETECTED status against
	// obligationID and transitions the obligation to VIOLATED (forbidden
	// if the obligation is already SATISFIED).
	DetectViolation(ctx context.Context, obligationID ids.ID, violationType string, severity ViolationSeverity, penalty string) (Violation, error)

	// Acknowledge transitions a violation from DETECTED to ACKNOWLEDGED.
	Acknowledge(ctx context.Context, violationID ids.ID) (Violation, error)

	// Investigate transitions a violation from ACKNOWLEDGED to
	// INVESTIGATING.
	Investigate(ctx context.Context, violationID ids.ID) (Violation, error)

	// Resolve transitions a violation from INVESTIGATING to the
	// terminal RESOLVED state.
	Resolve(ctx context.Context, violationID ids.ID) (Violation, error)

	// Escalate transitions a violation from INVESTIGATING to the
	// terminal ESCALATED state.
	Escalate(ctx context.Context, violationID ids.ID) (Violation, error)

	// Dismiss transitions a violation from DETECTED, ACKNOWLEDGED, or
	// INVESTIGATING to the terminal DISMISSED state.
	Dismiss(ctx context.Context, violationID ids.ID) (Violation, error)

	// GetViolation returns the current state of a violation.
	GetViolation(ctx context.Context, violationID ids.ID) (Violation, error)
}
