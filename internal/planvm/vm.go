package planvm

import (
	"context"
	"encoding/binary"
	"fmt"
	"math/rand"
	"strconv"
	"time"

	"dscore/internal/audit"
	"dscore/internal/consent"
	"dscore/internal/prb"
	"dscore/internal/queryplan"
	"dscore/pkg/clock"
	"dscore/pkg/config"
	"dscore/pkg/dserr"
	"dscore/pkg/ids"
	"dscore/pkg/money"
)

// CapsuleSealer is the narrow seam pack_capsule delegates to. planvm
// never imports internal/capsule directly — internal/core wires a real
// capsule.Manager through this interface, the same dependency-inversion
// shape queryplan.Signer uses to keep queryplan from importing
// dscrypto's concrete key store.
type CapsuleSealer interface {
	Seal(ctx context.Context, planID ids.ID, payload Mapping, ttl time.Time) (capsuleID string, err error)
}

// ConsentChecker is the minimal consent.Engine surface Execute needs to
// re-verify the plan's contract against live state immediately before
// running a step, mirroring queryplan.ConsentChecker's narrow seam.
type ConsentChecker interface {
	Check(ctx context.Context, contractID ids.ID, plan consent.PlanFacts) (consent.Decision, error)
}

// VM executes one signed, dispatched QueryPlan's steps against a
// caller-supplied initial Mapping, inside the network gate and resource
// sandbox. Each step runs an ordered
// check-then-charge loop before its operator body runs.
type VM struct {
	Gate     *NetworkGate
	Sampler  ResourceSampler
	Audit    audit.Logger
	PRB      prb.Ledger
	Sealer   CapsuleSealer
	Consent  ConsentChecker
	Clock    clock.Clock
	Policy   *config.Policy
}

// NewVM constructs a VM from its collaborators. Sampler is always set to
// a RuntimeSampler.
func NewVM(gate *NetworkGate, auditLog audit.Logger, ledger prb.Ledger, sealer CapsuleSealer, consentChecker ConsentChecker, clk clock.Clock, policy *config.Policy) *VM {
	return &VM{
		Gate:    gate,
		Sampler: NewRuntimeSampler(),
		Audit:   auditLog,
		PRB:     ledger,
		Sealer:  sealer,
		Consent: consentChecker,
		Clock:   clk,
		Policy:  policy,
	}
}

// planSeed derives a deterministic PRNG seed from the plan ID so that
// opSample's probabilistic decision is stable across re-executions of
// the same signed plan, keeping execution deterministic.
func planSeed(planID ids.ID) int64 {
	b := [16]byte(planID)
	return int64(binary.BigEndian.Uint64(b[:8]))
}

// Execute runs plan's steps in order against initial, charging the PRB
// budget identified by budgetID after every step and enforcing the
// resource sandbox and field-permission boundaries throughout. The
// network gate is engaged on entry and released on exit via defer, so
// a panic mid-execution still reopens egress.
func (vm *VM) Execute(ctx context.Context, plan queryplan.Plan, budgetID ids.ID, initial Mapping) (ExecutionResult, error) {
	vm.Gate.Engage()
	defer vm.Gate.Release()

	start := time.Now()
	rng := rand.New(rand.NewSource(planSeed(plan.ID)))
	limits := Limits{
		CPUMillis:     plan.ResourceLimits.CPUMillis,
		MemoryBytes:   plan.ResourceLimits.MemoryBytes,
		WallMillis:    plan.ResourceLimits.WallMillis,
		BatteryPctMax: plan.ResourceLimits.BatteryPctMax,
	}

	if err := vm.recheckConsent(ctx, plan); err != nil {
		vm.emitConsentAborted(ctx, plan, err)
		return ExecutionResult{}, err
	}

	current := initial.Clone()
	outcomes := make([]StepOutcome, 0, len(plan.Steps))
	totalCharged := money.Zero
	var capsuleID string

	for _, step := range plan.Steps {
		if err := vm.checkFieldPermissions(step, current); err != nil {
			vm.emitAborted(ctx, plan, step, err)
			return ExecutionResult{}, err
		}

		if err := vm.checkCohortGate(step, current); err != nil {
			vm.emitAborted(ctx, plan, step, err)
			return ExecutionResult{}, err
		}

		stepStart := time.Now()
		next, err := applyOperator(step, scopeToInputs(step, current), rng)
		if err != nil {
			wrapped := dserr.Wrap(dserr.KindIllegalState, err, fmt.Sprintf("step %d (%s) failed", step.Index, step.Operator))
			vm.emitAborted(ctx, plan, step, wrapped)
			return ExecutionResult{}, wrapped
		}

		if err := vm.checkOutputFields(step, next); err != nil {
			vm.emitAborted(ctx, plan, step, err)
			return ExecutionResult{}, err
		}

		usage := vm.Sampler.Sample(start)
		if dim, exceeded := usage.Exceeds(limits); exceeded {
			err := dserr.ResourceExceeded(dim)
			vm.emitAborted(ctx, plan, step, err)
			return ExecutionResult{}, err
		}

		cost, err := vm.chargeStep(ctx, budgetID, step)
		if err != nil {
			vm.emitAborted(ctx, plan, step, err)
			return ExecutionResult{}, err
		}
		totalCharged = totalCharged.Add(cost)

		if step.Operator == "pack_capsule" {
			id, err := vm.Sealer.Seal(ctx, plan.ID, next, plan.TTL)
			if err != nil {
				wrapped := dserr.Wrap(dserr.KindIllegalState, err, "pack_capsule sealing failed")
				vm.emitAborted(ctx, plan, step, wrapped)
				return ExecutionResult{}, wrapped
			}
			capsuleID = id
		}

		current = next
		outcomes = append(outcomes, StepOutcome{
			Index:      step.Index,
			Operator:   step.Operator,
			Cost:       cost.String(),
			DurationMS: elapsedMillis(stepStart),
		})

		vm.emitStep(ctx, plan, step, cost)
	}

	finalUsage := vm.Sampler.Sample(start)
	result := ExecutionResult{
		Output:        current,
		Steps:         outcomes,
		ResourceUsage: finalUsage,
		PRBCharged:    totalCharged.String(),
		CapsuleID:     capsuleID,
	}

	vm.Audit.Append(ctx, audit.EventQueryExecuted, audit.Details{
		Actor:      audit.ActorSystem,
		ResourceID: plan.ID.String(),
		Metadata: map[string]string{
			"steps_executed": fmt.Sprintf("%d", len(outcomes)),
			"prb_charged":    totalCharged.String(),
		},
	})

	return result, nil
}

// recheckConsent re-verifies plan.ConsentContractID against live consent
// state immediately before the first step runs. A plan's consent is
// already checked once at sign time (core.SignPlan), but sign and
// execute can be arbitrarily far apart in time, and a revocation must
// take effect for any execution within 60s of
// being recorded — so Execute cannot rely on the sign-time decision and
// must ask Consent.Check again here. If vm.Consent is nil (e.g. a
// caller exercising the VM directly against a fixture plan with no
// backing contract), the check is skipped.
func (vm *VM) recheckConsent(ctx context.Context, plan queryplan.Plan) error {
	if vm.Consent == nil {
		return nil
	}
	facts := consent.PlanFacts{
		ScopeHash:          plan.ScopeHash,
		PermittedFields:    plan.PermittedFields,
		Operators:          stepOperators(plan.Steps),
		OutputRestrictions: plan.OutputRestrictions,
	}
	decision, err := vm.Consent.Check(ctx, plan.ConsentContractID, facts)
	if err != nil {
		return err
	}
	if !decision.Allow {
		return dserr.ConsentDenied(decision.ReasonCode)
	}
	return nil
}

func stepOperators(steps []queryplan.PlanStep) []string {
	ops := make([]string, 0, len(steps))
	for _, s := range steps {
		ops = append(ops, s.Operator)
	}
	return ops
}

func (vm *VM) emitConsentAborted(ctx context.Context, plan queryplan.Plan, err error) {
	reason := err.Error()
	var reasonCodes []string
	if e, ok := dserr.As(err); ok {
		reasonCodes = e.ReasonCodes
	}
	vm.Audit.Append(ctx, audit.EventQueryAborted, audit.Details{
		Actor:       audit.ActorSystem,
		ResourceID:  plan.ID.String(),
		Reason:      reason,
		ReasonCodes: reasonCodes,
	})
}

// checkFieldPermissions guards against a step reading a field the
// CURRENT mapping no longer carries (e.g. after an upstream redact or
// select narrowed it away), which is a plan-authoring bug, not a
// consent violation, and fails the same way: closed. That InputFields
// is a subset of plan.PermittedFields is already guaranteed by
// queryplan.Validator before a plan reaches SIGNED; what each operator
// may actually SEE is enforced separately by scopeToInputs.
func (vm *VM) checkFieldPermissions(step queryplan.PlanStep, current Mapping) error {
	for _, f := range step.InputFields {
		if _, ok := current[f]; !ok {
			return dserr.New(dserr.KindInvalidArgument,
				fmt.Sprintf("step %d (%s) requires field %q not present in the current mapping", step.Index, step.Operator, f),
				"INPUT_FIELD_UNAVAILABLE")
		}
	}
	return nil
}

// scopeToInputs restricts the mapping an operator receives to the
// step's declared InputFields, so reading an undeclared field is
// structurally impossible rather than merely detected after the fact.
// A step that declares no input fields operates on the whole current
// mapping — the convention terminal pass-through steps (export,
// pack_capsule) use to hand on exactly what the preceding steps
// produced.
func scopeToInputs(step queryplan.PlanStep, current Mapping) Mapping {
	if len(step.InputFields) == 0 {
		return current.Clone()
	}
	scoped := make(Mapping, len(step.InputFields))
	for _, f := range step.InputFields {
		if v, ok := current[f]; ok {
			scoped[f] = v
		}
	}
	return scoped
}

// checkOutputFields raises the fatal runtime fault for a write outside
// the step's declared OutputFields. The checked result becomes the next
// step's mapping in full, so a field the step read but did not
// re-declare as output does not survive it — undeclared fields never
// flow onward into later steps or a sealed capsule. A step that
// declares no output fields forwards its (already input-scoped) result
// unchecked, the same terminal pass-through convention scopeToInputs
// honors. Declared output fields absent from the result are fine: an
// operator may drop a field, it may not invent one.
func (vm *VM) checkOutputFields(step queryplan.PlanStep, out Mapping) error {
	if len(step.OutputFields) == 0 {
		return nil
	}
	declared := make(map[string]bool, len(step.OutputFields))
	for _, f := range step.OutputFields {
		declared[f] = true
	}
	for k := range out {
		if !declared[k] {
			return dserr.New(dserr.KindIllegalState,
				fmt.Sprintf("step %d (%s) wrote undeclared field %q", step.Index, step.Operator, k),
				"UNDECLARED_OUTPUT_FIELD")
		}
	}
	return nil
}

// checkCohortGate enforces the k-anonymity floor against cluster_ref,
// the one operator whose output is always a reference to a cohort
// rather than a value scoped to the current data subject. A step may
// declare Params["cohort_size"] to assert the true population size
// behind the cohort the reference names — Execute only ever holds one
// data subject's local Mapping, so it has no visibility into how many
// other subjects' records the same reference would also match.
// Absent that declaration, the VM falls back to counting the distinct
// keys still present in the current mapping, the only cohort-size
// signal it can compute on its own; a step that omits both the
// declaration and a populated mapping fails closed rather than
// silently passing.
//
// aggregate is deliberately excluded: in this single-subject execution
// model aggregate collapses one data subject's own fields
// (aggregate(count) over {steps, hr}), not a cohort
// of subjects, so neither an explicit cohort_size nor the surviving
// field count describes a population size for it. A caller assembling
// a cross-subject aggregate upstream of the VM is responsible for its
// own k-anonymity check before ever constructing the plan.
func (vm *VM) checkCohortGate(step queryplan.PlanStep, current Mapping) error {
	if step.Operator != "cluster_ref" {
		return nil
	}
	n := len(current)
	if raw, ok := step.Params["cohort_size"]; ok && raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			return dserr.New(dserr.KindInvalidArgument, fmt.Sprintf("step %d: invalid cohort_size %q", step.Index, raw), "INVALID_COHORT_SIZE")
		}
		n = parsed
	}
	if vm.Policy != nil && n < vm.Policy.MinCohortSize {
		return dserr.New(dserr.KindConsentDenied,
			fmt.Sprintf("step %d (%s): cohort size %d below minimum %d", step.Index, step.Operator, n, vm.Policy.MinCohortSize),
			"COHORT_TOO_SMALL")
	}
	return nil
}

// chargeStep consumes this step's PRB cost from budgetID, aborting with
// PRBExhausted if the ledger refuses.
func (vm *VM) chargeStep(ctx context.Context, budgetID ids.ID, step queryplan.PlanStep) (money.Amount, error) {
	cost := money.Zero
	if vm.Policy != nil {
		if oc, ok := vm.Policy.OperatorCosts[step.Operator]; ok && oc.BaseCost != "" {
			parsed, err := money.Parse(oc.BaseCost)
			if err == nil {
				cost = parsed
			}
		}
	}
	if !cost.IsPositive() {
		return money.Zero, nil
	}
	if _, err := vm.PRB.Consume(ctx, budgetID, cost); err != nil {
		return money.Zero, err
	}
	return cost, nil
}

func (vm *VM) emitStep(ctx context.Context, plan queryplan.Plan, step queryplan.PlanStep, cost money.Amount) {
	vm.Audit.Append(ctx, audit.EventTransformExecuted, audit.Details{
		Actor:      audit.ActorSystem,
		ResourceID: plan.ID.String(),
		Metadata: map[string]string{
			"operator":   step.Operator,
			"step_index": fmt.Sprintf("%d", step.Index),
			"cost":       cost.String(),
		},
	})
}

func (vm *VM) emitAborted(ctx context.Context, plan queryplan.Plan, step queryplan.PlanStep, err error) {
	reason := err.Error()
	var reasonCodes []string
	if e, ok := dserr.As(err); ok {
		reasonCodes = e.ReasonCodes
	}
	vm.Audit.Append(ctx, audit.EventQueryAborted, audit.Details{
		Actor:       audit.ActorSystem,
		ResourceID:  plan.ID.String(),
		Reason:      reason,
		ReasonCodes: reasonCodes,
		Metadata: map[string]string{
			"operator":   step.Operator,
			"step_index": fmt.Sprintf("%d", step.Index),
		},
	})
}

// Preview computes the human-readable, data-blind description and
// privacy-impact score for each of plan's steps without touching any
// data subject's mapping.
func (vm *VM) Preview(plan queryplan.Plan) []StepPreview {
	previews := make([]StepPreview, 0, len(plan.Steps))
	for _, step := range plan.Steps {
		previews = append(previews, StepPreview{
			Index:              step.Index,
			Operator:           step.Operator,
			Description:        describeStep(step),
			PrivacyImpactScore: privacyImpactScore(step, vm.Policy),
		})
	}
	return previews
}

func describeStep(step queryplan.PlanStep) string {
	switch step.Operator {
	case "select":
		return fmt.Sprintf("keep only fields %v", step.OutputFields)
	case "filter":
		return fmt.Sprintf("keep fields %v matching %s %s %s", step.OutputFields, step.Params["predicate_field"], step.Params["predicate_op"], step.Params["predicate_value"])
	case "project":
		return fmt.Sprintf("reshape into fields %v", step.OutputFields)
	case "bucketize":
		return fmt.Sprintf("bucket field %q into ranges %s", step.Params["field"], step.Params["boundaries"])
	case "aggregate":
		return fmt.Sprintf("aggregate via %s", step.Params["op"])
	case "cluster_ref":
		return "replace data with an opaque cohort reference"
	case "redact":
		return fmt.Sprintf("redact fields %s", step.Params["fields"])
	case "sample":
		return fmt.Sprintf("probabilistically include at rate %s", step.Params["rate"])
	case "export":
		return "mark output ready for delivery"
	case "pack_capsule":
		return "seal output into an encrypted time capsule"
	default:
		return "unknown operator"
	}
}

// privacyImpactScore is a monotone function of the policy cost table,
// normalized into [0,1] against the most expensive operator so that
// Preview output stays comparable across policy revisions.
func privacyImpactScore(step queryplan.PlanStep, policy *config.Policy) float64 {
	if policy == nil || len(policy.OperatorCosts) == 0 {
		return 0
	}
	oc, ok := policy.OperatorCosts[step.Operator]
	if !ok {
		return 0
	}
	cost, err := money.Parse(oc.BaseCost)
	if err != nil {
		return 0
	}
	var max money.Amount
	for _, c := range policy.OperatorCosts {
		v, err := money.Parse(c.BaseCost)
		if err != nil {
			continue
		}
		if v.GreaterThan(max) {
			max = v
		}
	}
	if !max.IsPositive() {
		return 0
	}
	return float64(cost.MinorUnits()) / float64(max.MinorUnits())
}
