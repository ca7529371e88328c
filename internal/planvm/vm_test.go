package planvm

import (
	"context"
	"testing"
	"time"

	auditinmem "dscore/internal/audit/impl_inmem"
	"dscore/internal/consent"
	"dscore/internal/prb"
	prbinmem "dscore/internal/prb/impl_inmem"
	"dscore/internal/queryplan"
	"dscore/pkg/clock"
	"dscore/pkg/config"
	"dscore/pkg/ids"
	"dscore/pkg/money"
)

type fakeSealer struct {
	lastPayload Mapping
	capsuleID   string
	err         error
}

func (f *fakeSealer) Seal(ctx context.Context, planID ids.ID, payload Mapping, ttl time.Time) (string, error) {
	f.lastPayload = payload
	if f.err != nil {
		return "", f.err
	}
	if f.capsuleID == "" {
		return "capsule-1", nil
	}
	return f.capsuleID, nil
}

// fakeConsentChecker stubs the live re-check Execute performs before its
// first step. Tests that don't care about consent leave decision at its
// zero value, which allow defaults to true below.
type fakeConsentChecker struct {
	decision consent.Decision
	err      error
}

func (f *fakeConsentChecker) Check(ctx context.Context, contractID ids.ID, plan consent.PlanFacts) (consent.Decision, error) {
	if f.err != nil {
		return consent.Decision{}, f.err
	}
	if f.decision == (consent.Decision{}) {
		return consent.Decision{Allow: true}, nil
	}
	return f.decision, nil
}

func lockedBudget(t *testing.T, ledger prb.Ledger, allocated string) ids.ID {
	t.Helper()
	ctx := context.Background()
	b, err := ledger.Allocate(ctx, "campaign-1", money.MustParse(allocated), "ruleset-v1")
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if _, err := ledger.Lock(ctx, b.ID); err != nil {
		t.Fatalf("Lock: %v", err)
	}
	return b.ID
}

func newTestVM(t *testing.T, sealer CapsuleSealer) (*VM, prb.Ledger) {
	t.Helper()
	return newTestVMWithConsent(t, sealer, &fakeConsentChecker{})
}

func newTestVMWithConsent(t *testing.T, sealer CapsuleSealer, consentChecker ConsentChecker) (*VM, prb.Ledger) {
	t.Helper()
	now := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)
	gate := NewNetworkGate()
	auditLog := auditinmem.New("node-1", clock.NewFixed(now))
	ledger := prbinmem.New()
	vm := NewVM(gate, auditLog, ledger, sealer, consentChecker, clock.NewFixed(now), config.Default())
	return vm, ledger
}

func planWithSteps(steps []queryplan.PlanStep) queryplan.Plan {
	return queryplan.Plan{
		ID:             ids.New(),
		TTL:            time.Now().Add(time.Hour),
		ResourceLimits: config.DefaultResourceLimits(),
		Steps:          steps,
	}
}

// TestVM_SelectThenAggregate: selecting
// {steps, hr} and aggregating count yields {_aggregate_count: 2}.
func TestVM_SelectThenAggregate(t *testing.T) {
	sealer := &fakeSealer{}
	vm, ledger := newTestVM(t, sealer)
	budgetID := lockedBudget(t, ledger, "10.0000")

	plan := planWithSteps([]queryplan.PlanStep{
		{Index: 0, Operator: "select", InputFields: []string{"steps", "hr", "name"}, OutputFields: []string{"steps", "hr"}},
		{Index: 1, Operator: "aggregate", Params: map[string]string{"op": "count"}, InputFields: []string{"steps", "hr"}, OutputFields: []string{"_aggregate_count"}},
	})

	initial := Mapping{"steps": 4200.0, "hr": 72.0, "name": "jane"}
	result, err := vm.Execute(context.Background(), plan, budgetID, initial)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	got, ok := result.Output["_aggregate_count"]
	if !ok {
		t.Fatalf("expected _aggregate_count in output, got %v", result.Output)
	}
	if got != 2.0 {
		t.Fatalf("expected count 2, got %v", got)
	}
	if len(result.Steps) != 2 {
		t.Fatalf("expected 2 step outcomes, got %d", len(result.Steps))
	}
}

func TestVM_RedactHidesValueButKeepsField(t *testing.T) {
	sealer := &fakeSealer{}
	vm, ledger := newTestVM(t, sealer)
	budgetID := lockedBudget(t, ledger, "10.0000")

	plan := planWithSteps([]queryplan.PlanStep{
		{Index: 0, Operator: "redact", Params: map[string]string{"fields": "ssn"}, InputFields: []string{"ssn"}, OutputFields: []string{"ssn"}},
	})
	result, err := vm.Execute(context.Background(), plan, budgetID, Mapping{"ssn": "123-45-6789"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Output["ssn"] != "[REDACTED]" {
		t.Fatalf("expected [REDACTED], got %v", result.Output["ssn"])
	}
}

// TestVM_OperatorSeesOnlyDeclaredInputFields: an operator body that
// iterates its whole mapping (aggregate's count) must see only the
// step's declared InputFields, and fields the step never declared do
// not survive it into later steps or the final output.
func TestVM_OperatorSeesOnlyDeclaredInputFields(t *testing.T) {
	sealer := &fakeSealer{}
	vm, ledger := newTestVM(t, sealer)
	budgetID := lockedBudget(t, ledger, "10.0000")

	plan := planWithSteps([]queryplan.PlanStep{
		{Index: 0, Operator: "aggregate", Params: map[string]string{"op": "count"}, InputFields: []string{"steps"}, OutputFields: []string{"_aggregate_count"}},
	})

	initial := Mapping{"steps": 4200.0, "hr": 72.0, "name": "jane"}
	result, err := vm.Execute(context.Background(), plan, budgetID, initial)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if got := result.Output["_aggregate_count"]; got != 1.0 {
		t.Fatalf("expected count 1 over the single declared input field, got %v", got)
	}
	if _, ok := result.Output["hr"]; ok {
		t.Fatal("undeclared field hr leaked through the step")
	}
	if _, ok := result.Output["name"]; ok {
		t.Fatal("undeclared field name leaked through the step")
	}
}

// TestVM_FaultsOnUndeclaredOutputField: redact clones every field it
// receives, so declaring a narrower output set than its input set means
// the step writes a field outside its declaration — a fatal runtime
// fault, aborting before the step is charged or its result flows on.
func TestVM_FaultsOnUndeclaredOutputField(t *testing.T) {
	sealer := &fakeSealer{}
	vm, ledger := newTestVM(t, sealer)
	budgetID := lockedBudget(t, ledger, "10.0000")

	plan := planWithSteps([]queryplan.PlanStep{
		{Index: 0, Operator: "redact", Params: map[string]string{"fields": "ssn"}, InputFields: []string{"ssn", "hr"}, OutputFields: []string{"ssn"}},
		{Index: 1, Operator: "pack_capsule"},
	})
	_, err := vm.Execute(context.Background(), plan, budgetID, Mapping{"ssn": "123-45-6789", "hr": 72.0})
	if err == nil {
		t.Fatal("expected an undeclared-output-field fault")
	}
	if sealer.lastPayload != nil {
		t.Fatal("expected no capsule to be sealed after the fault")
	}
}

func TestVM_PackCapsuleDelegatesToSealer(t *testing.T) {
	sealer := &fakeSealer{capsuleID: "capsule-42"}
	vm, ledger := newTestVM(t, sealer)
	budgetID := lockedBudget(t, ledger, "10.0000")

	plan := planWithSteps([]queryplan.PlanStep{
		{Index: 0, Operator: "select", InputFields: []string{"hr"}, OutputFields: []string{"hr"}},
		{Index: 1, Operator: "pack_capsule", InputFields: []string{"hr"}, OutputFields: []string{"hr"}},
	})
	result, err := vm.Execute(context.Background(), plan, budgetID, Mapping{"hr": 72.0})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.CapsuleID != "capsule-42" {
		t.Fatalf("expected capsule-42, got %q", result.CapsuleID)
	}
	if sealer.lastPayload["hr"] != 72.0 {
		t.Fatalf("expected sealer to receive the narrowed mapping, got %v", sealer.lastPayload)
	}
}

func TestVM_AbortsOnPRBExhaustion(t *testing.T) {
	sealer := &fakeSealer{}
	vm, ledger := newTestVM(t, sealer)
	// Allocate far less than cluster_ref's 0.05 cost.
	budgetID := lockedBudget(t, ledger, "0.0001")

	plan := planWithSteps([]queryplan.PlanStep{
		{Index: 0, Operator: "cluster_ref", Params: map[string]string{"cohort_size": "50"}, InputFields: []string{"hr"}, OutputFields: []string{"_cluster_ref"}},
	})
	_, err := vm.Execute(context.Background(), plan, budgetID, Mapping{"hr": 72.0})
	if err == nil {
		t.Fatal("expected PRB exhaustion error")
	}
}

func TestVM_RejectsCohortBelowMinimum(t *testing.T) {
	sealer := &fakeSealer{}
	vm, ledger := newTestVM(t, sealer)
	budgetID := lockedBudget(t, ledger, "10.0000")

	plan := planWithSteps([]queryplan.PlanStep{
		{Index: 0, Operator: "cluster_ref", Params: map[string]string{"cohort_size": "3"}, InputFields: []string{"hr"}, OutputFields: []string{"_cluster_ref"}},
	})
	_, err := vm.Execute(context.Background(), plan, budgetID, Mapping{"hr": 72.0})
	if err == nil {
		t.Fatal("expected cohort-size rejection")
	}
}

func TestVM_RejectsCohortBelowMinimumWhenComputedFromMapping(t *testing.T) {
	sealer := &fakeSealer{}
	vm, ledger := newTestVM(t, sealer)
	budgetID := lockedBudget(t, ledger, "10.0000")

	plan := planWithSteps([]queryplan.PlanStep{
		{Index: 0, Operator: "cluster_ref", InputFields: []string{"hr"}, OutputFields: []string{"_cluster_ref"}},
	})
	_, err := vm.Execute(context.Background(), plan, budgetID, Mapping{"hr": 72.0})
	if err == nil {
		t.Fatal("expected cohort-size rejection computed from the surviving mapping")
	}
}

func TestVM_SampleIsDeterministicAcrossReExecution(t *testing.T) {
	sealer := &fakeSealer{}
	vm, ledger := newTestVM(t, sealer)
	budgetID := lockedBudget(t, ledger, "10.0000")

	plan := planWithSteps([]queryplan.PlanStep{
		{Index: 0, Operator: "sample", Params: map[string]string{"rate": "0.5"}, InputFields: []string{"hr"}, OutputFields: []string{"hr"}},
	})

	first, err := vm.Execute(context.Background(), plan, budgetID, Mapping{"hr": 72.0})
	if err != nil {
		t.Fatalf("Execute (first): %v", err)
	}

	budgetID2 := lockedBudget(t, ledger, "10.0000")
	second, err := vm.Execute(context.Background(), plan, budgetID2, Mapping{"hr": 72.0})
	if err != nil {
		t.Fatalf("Execute (second): %v", err)
	}

	_, firstKept := first.Output["hr"]
	_, secondKept := second.Output["hr"]
	if firstKept != secondKept {
		t.Fatalf("expected deterministic sample outcome across re-execution of the same plan ID, got %v vs %v", firstKept, secondKept)
	}
}

func TestVM_ExecuteDeniesWhenConsentRecheckFails(t *testing.T) {
	sealer := &fakeSealer{}
	checker := &fakeConsentChecker{decision: consent.Decision{Allow: false, ReasonCode: "CONSENT_REVOKED"}}
	vm, ledger := newTestVMWithConsent(t, sealer, checker)
	budgetID := lockedBudget(t, ledger, "10.0000")

	plan := planWithSteps([]queryplan.PlanStep{
		{Index: 0, Operator: "select", InputFields: []string{"hr"}, OutputFields: []string{"hr"}},
	})
	_, err := vm.Execute(context.Background(), plan, budgetID, Mapping{"hr": 72.0})
	if err == nil {
		t.Fatal("expected execute to be denied by the live consent re-check")
	}
	if sealer.lastPayload != nil {
		t.Fatal("expected no step to run once the re-check denies")
	}
}

func TestVM_Preview(t *testing.T) {
	sealer := &fakeSealer{}
	vm, _ := newTestVM(t, sealer)

	plan := planWithSteps([]queryplan.PlanStep{
		{Index: 0, Operator: "select", OutputFields: []string{"hr"}},
		{Index: 1, Operator: "cluster_ref"},
	})
	previews := vm.Preview(plan)
	if len(previews) != 2 {
		t.Fatalf("expected 2 previews, got %d", len(previews))
	}
	if previews[1].PrivacyImpactScore <= previews[0].PrivacyImpactScore {
		t.Fatalf("expected cluster_ref to score higher than select, got %v vs %v", previews[1].PrivacyImpactScore, previews[0].PrivacyImpactScore)
	}
}
