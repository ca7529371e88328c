package impl

import (
	"context"
	"testing"
	"time"

	"dscore/internal/audit"
	auditinmem "dscore/internal/audit/impl_inmem"
	"dscore/internal/consent"
	"dscore/internal/queryplan"
	"dscore/pkg/clock"
	"dscore/pkg/config"
	dscryptoinmem "dscore/pkg/dscrypto/impl_inmem"
	"dscore/pkg/dserr"
	"dscore/pkg/ids"
)

type fakeConsentChecker struct {
	decision consent.Decision
	err      error
}

func (f fakeConsentChecker) Check(ctx context.Context, contractID ids.ID, plan consent.PlanFacts) (consent.Decision, error) {
	return f.decision, f.err
}

func testDraft(now time.Time) queryplan.Draft {
	return queryplan.Draft{
		RequestID:          "req-1",
		ConsentContractID:  ids.New(),
		ScopeHash:          "scopehash",
		AllowedTransforms:  []string{"select", "aggregate"},
		OutputRestrictions: []string{"no_raw_export"},
		PermittedFields:    []string{"heart_rate", "steps"},
		Compensation:       "1.0000",
		TTL:                now.Add(time.Hour),
		ResourceLimits:     config.DefaultResourceLimits(),
		Steps: []queryplan.PlanStep{
			{Index: 0, Operator: "select", InputFields: []string{"heart_rate"}, OutputFields: []string{"heart_rate"}},
			{Index: 1, Operator: "aggregate", InputFields: []string{"heart_rate"}, OutputFields: []string{"avg_heart_rate"}},
		},
	}
}

func newTestManager(t *testing.T, now time.Time) (*Manager, *dscryptoinmem.KeyManager, audit.Logger) {
	t.Helper()
	km := dscryptoinmem.New(clock.NewFixed(now))
	if err := km.GenerateEd25519Key("plan-key-1"); err != nil {
		t.Fatalf("GenerateEd25519Key: %v", err)
	}
	auditLog := auditinmem.New("node-1", clock.NewFixed(now))
	signer := NewKeyManagerSigner(km)
	validator := NewValidator(signer)
	mgr := NewManager(clock.NewFixed(now), auditLog, signer, validator, testPolicy())
	return mgr, km, auditLog
}

func TestManager_Sign_HappyPath(t *testing.T) {
	now := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)
	mgr, _, _ := newTestManager(t, now)
	ctx := context.Background()

	plan, err := mgr.Sign(ctx, testDraft(now), "plan-key-1", fakeConsentChecker{decision: consent.Decision{Allow: true}}, consent.PlanFacts{})
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if plan.Status != queryplan.StatusSigned {
		t.Fatalf("expected SIGNED, got %s", plan.Status)
	}
	if len(plan.Signature) == 0 {
		t.Fatal("expected a non-empty signature")
	}

	got, err := mgr.Get(ctx, plan.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != queryplan.StatusSigned {
		t.Fatalf("Get returned stale status %s", got.Status)
	}
}

func TestManager_Sign_RejectsOnConsentDenial(t *testing.T) {
	now := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)
	mgr, _, _ := newTestManager(t, now)
	ctx := context.Background()

	plan, err := mgr.Sign(ctx, testDraft(now), "plan-key-1", fakeConsentChecker{decision: consent.Decision{Allow: false, ReasonCode: "SCOPE_MISMATCH"}}, consent.PlanFacts{})
	if err == nil {
		t.Fatal("expected an error on consent denial")
	}
	dsErr, ok := dserr.As(err)
	if !ok || dsErr.Kind != dserr.KindPlanRejected {
		t.Fatalf("expected PlanRejected, got %v", err)
	}
	if plan.Status != queryplan.StatusRejected {
		t.Fatalf("expected REJECTED, got %s", plan.Status)
	}
}

func TestManager_Sign_RejectsOnValidationFailure(t *testing.T) {
	now := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)
	mgr, _, _ := newTestManager(t, now)
	ctx := context.Background()

	draft := testDraft(now)
	draft.TTL = now.Add(-time.Minute) // already expired

	plan, err := mgr.Sign(ctx, draft, "plan-key-1", nil, consent.PlanFacts{})
	if err == nil {
		t.Fatal("expected validation failure")
	}
	if plan.Status != queryplan.StatusRejected {
		t.Fatalf("expected REJECTED, got %s", plan.Status)
	}
}

func TestManager_DispatchAndExecuteLifecycle(t *testing.T) {
	now := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)
	mgr, _, _ := newTestManager(t, now)
	ctx := context.Background()

	plan, err := mgr.Sign(ctx, testDraft(now), "plan-key-1", nil, consent.PlanFacts{})
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	dispatched, err := mgr.Dispatch(ctx, plan.ID)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if dispatched.Status != queryplan.StatusDispatched {
		t.Fatalf("expected DISPATCHED, got %s", dispatched.Status)
	}

	if _, err := mgr.Dispatch(ctx, plan.ID); err == nil {
		t.Fatal("expected a second Dispatch to fail")
	}

	executed, err := mgr.MarkExecuted(ctx, plan.ID)
	if err != nil {
		t.Fatalf("MarkExecuted: %v", err)
	}
	if executed.Status != queryplan.StatusExecuted {
		t.Fatalf("expected EXECUTED, got %s", executed.Status)
	}
}

func TestManager_ExpireSweep(t *testing.T) {
	now := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)
	mgr, _, _ := newTestManager(t, now)
	ctx := context.Background()

	draft := testDraft(now)
	draft.TTL = now.Add(time.Minute)
	plan, err := mgr.Sign(ctx, draft, "plan-key-1", nil, consent.PlanFacts{})
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	n, err := mgr.ExpireSweep(ctx, now.Add(2*time.Minute))
	if err != nil {
		t.Fatalf("ExpireSweep: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 expired plan, got %d", n)
	}

	got, err := mgr.Get(ctx, plan.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != queryplan.StatusExpired {
		t.Fatalf("expected EXPIRED, got %s", got.Status)
	}
}
