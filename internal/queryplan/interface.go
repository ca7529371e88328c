// Package queryplan implements the signed, validated, expiring Query
// Plan.
//
// Validation is multi-rule over a declarative plan, signing is
// algorithm-agile via dscrypto's Signer/Verifier, and
// github.com/hashicorp/go-multierror aggregates validator failures the
// caller sees as one aggregated error set.
package queryplan

import (
	"context"
	"time"

	"dscore/internal/consent"
	"dscore/pkg/ids"
)

// Signer produces and later verifies a Plan's signature, algorithm
// selection deferred entirely to SigningKeyID metadata — never a
// compiled-in algorithm.
type Signer interface {
	Sign(ctx context.Context, keyID string, payload []byte) (signature []byte, err error)
	Verify(ctx context.Context, keyID string, payload []byte, signature []byte) error
}

// ConsentChecker is the minimal consent.Engine surface the validator
// needs, so queryplan depends on consent only through this narrow seam.
type ConsentChecker interface {
	Check(ctx context.Context, contractID ids.ID, plan consent.PlanFacts) (consent.Decision, error)
}

// Validator runs the ordered plan checks and aggregates every
// failure rather than stopping at the first.
type Validator interface {
	Validate(ctx context.Context, plan Plan, now time.Time, policy ValidatorPolicy) ValidationResult
}

// ValidatorPolicy is the subset of the collaborator-supplied policy
// table the validator consults (PlanMaxTTL and resource caps).
type ValidatorPolicy struct {
	MaxTTL                time.Duration
	MaxCPUMillis          int64
	MaxMemoryBytes        int64
	MaxWallMillis         int64
	MaxBatteryPctMax      float64
}

// Manager owns Plan lifecycle: building a draft into a signed plan,
// dispatching it, and expiring it.
type Manager interface {
	// Sign builds a Plan from draft, signs the canonical payload with
	// keyID, validates it (signature included), runs contractChecker if
	// non-nil, and transitions it to SIGNED. A signing, validation or
	// consent failure transitions the plan to REJECTED and returns
	// PlanRejected.
	Sign(ctx context.Context, draft Draft, keyID string, contractChecker ConsentChecker, scopeForCheck consent.PlanFacts) (Plan, error)

	// Dispatch transitions a SIGNED plan to DISPATCHED.
	Dispatch(ctx context.Context, planID ids.ID) (Plan, error)

	// MarkExecuted transitions a DISPATCHED plan to EXECUTED.
	MarkExecuted(ctx context.Context, planID ids.ID) (Plan, error)

	// ExpireSweep transitions every SIGNED or DISPATCHED plan past its
	// TTL to EXPIRED.
	ExpireSweep(ctx context.Context, now time.Time) (int, error)

	// Get returns the current state of a plan.
	Get(ctx context.Context, planID ids.ID) (Plan, error)
}
