// Package impl provides the queryplan.Validator and queryplan.Manager
// implementations: ordered rule evaluation over a declarative plan,
// with failures aggregated via github.com/hashicorp/go-multierror.
package impl

import (
	"context"
	"time"

	"github.com/hashicorp/go-multierror"

	"dscore/internal/queryplan"
	"dscore/pkg/opset"
)

// Validator implements queryplan.Validator.
type Validator struct {
	signer queryplan.Signer
}

// NewValidator builds a Validator that verifies signatures with signer.
func NewValidator(signer queryplan.Signer) *Validator {
	return &Validator{signer: signer}
}

// Validate runs every plan check in order and aggregates
// every failing reason code, rather than stopping at the first.
func (v *Validator) Validate(ctx context.Context, plan queryplan.Plan, now time.Time, policy queryplan.ValidatorPolicy) queryplan.ValidationResult {
	var merr *multierror.Error
	var codes []string

	fail := func(code string) {
		codes = append(codes, code)
		merr = multierror.Append(merr, &validationError{code})
	}

	// signature present and verifies
	if len(plan.Signature) == 0 || plan.SigningKeyID == "" {
		fail("PLAN_SIGNATURE_INVALID")
	} else if v.signer != nil {
		if err := v.signer.Verify(ctx, plan.SigningKeyID, queryplan.SignablePayload(plan), plan.Signature); err != nil {
			fail("PLAN_SIGNATURE_INVALID")
		}
	}

	// now < ttl, ttl - now <= MaxTTL
	if !now.Before(plan.TTL) {
		fail("PLAN_TTL_EXPIRED")
	} else if policy.MaxTTL > 0 && plan.TTL.Sub(now) > policy.MaxTTL {
		fail("PLAN_TTL_EXCEEDS_POLICY")
	}

	// every step.operator in AllowedOps; pack_capsule at most once and
	// only as the last step.
	packCapsuleSeen := false
	for i, step := range plan.Steps {
		if !opset.Allowed(step.Operator) {
			fail("PLAN_OPERATOR_NOT_ALLOWLISTED")
		}
		if step.Operator == opset.PackCapsule {
			if packCapsuleSeen {
				fail("PLAN_PACK_CAPSULE_NOT_LAST")
			}
			packCapsuleSeen = true
			if i != len(plan.Steps)-1 {
				fail("PLAN_PACK_CAPSULE_NOT_LAST")
			}
		}
	}

	// resource_limits within policy caps
	rl := plan.ResourceLimits
	if (policy.MaxCPUMillis > 0 && rl.CPUMillis > policy.MaxCPUMillis) ||
		(policy.MaxMemoryBytes > 0 && rl.MemoryBytes > policy.MaxMemoryBytes) ||
		(policy.MaxWallMillis > 0 && rl.WallMillis > policy.MaxWallMillis) ||
		(policy.MaxBatteryPctMax > 0 && rl.BatteryPctMax > policy.MaxBatteryPctMax) {
		fail("PLAN_RESOURCE_LIMITS_EXCEED_POLICY")
	}

	// union of step.input_fields ⊆ permitted_fields
	permitted := make(map[string]struct{}, len(plan.PermittedFields))
	for _, f := range plan.PermittedFields {
		permitted[f] = struct{}{}
	}
	for _, step := range plan.Steps {
		for _, f := range step.InputFields {
			if _, ok := permitted[f]; !ok {
				fail("UNAUTHORIZED_FIELD_ACCESS_ATTEMPT")
				break
			}
		}
	}

	return queryplan.ValidationResult{Valid: len(codes) == 0, ReasonCodes: codes, Err: merr.ErrorOrNil()}
}

type validationError struct{ code string }

func (e *validationError) Error() string { return e.code }
