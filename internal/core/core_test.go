package core

import (
	"context"
	"testing"
	"time"

	"dscore/internal/audit"
	"dscore/internal/consent"
	"dscore/internal/planvm"
	"dscore/internal/queryplan"
	"dscore/pkg/clock"
	"dscore/pkg/config"
	"dscore/pkg/ids"
	"dscore/pkg/money"

	"github.com/prometheus/client_golang/prometheus"
)

func newTestCore(t *testing.T, now time.Time) *Core {
	t.Helper()
	clk := clock.NewFixed(now)
	c := NewInMemory("node-1", clk, config.Default(), prometheus.NewRegistry())
	if err := c.KeyManager.(interface{ GenerateEd25519Key(string) error }).GenerateEd25519Key("signing-key-1"); err != nil {
		t.Fatalf("GenerateEd25519Key: %v", err)
	}
	return c
}

func TestCore_SubmitRequestAndQuotePRB(t *testing.T) {
	now := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)
	c := newTestCore(t, now)
	ctx := context.Background()

	requestID, err := c.SubmitRequest(ctx, Request{
		RequesterID:        "requester-1",
		DSID:                "ds-1",
		RequestedFields:    []string{"steps", "hr"},
		RequestedOperators: []string{"select", "aggregate"},
	})
	if err != nil {
		t.Fatalf("SubmitRequest: %v", err)
	}

	preview, err := c.QuotePRB(ctx, requestID)
	if err != nil {
		t.Fatalf("QuotePRB: %v", err)
	}
	want := money.MustParse("0.0000").Add(money.MustParse("0.0100")).String()
	if preview.EstimatedCost != want {
		t.Fatalf("expected estimated cost %s, got %s", want, preview.EstimatedCost)
	}
}

func TestCore_SubmitRequestIdempotency(t *testing.T) {
	now := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)
	c := newTestCore(t, now)
	ctx := context.Background()

	req := Request{
		RequesterID:        "requester-1",
		DSID:               "ds-1",
		RequestedFields:    []string{"steps"},
		RequestedOperators: []string{"select"},
		IdempotencyKey:     "delivery-attempt-7",
	}

	first, err := c.SubmitRequest(ctx, req)
	if err != nil {
		t.Fatalf("SubmitRequest: %v", err)
	}
	second, err := c.SubmitRequest(ctx, req)
	if err != nil {
		t.Fatalf("resubmit: %v", err)
	}
	if second != first {
		t.Fatalf("resubmission minted a new request_id: %s != %s", second, first)
	}

	req.IdempotencyKey = "delivery-attempt-8"
	third, err := c.SubmitRequest(ctx, req)
	if err != nil {
		t.Fatalf("SubmitRequest with fresh key: %v", err)
	}
	if third == first {
		t.Fatal("distinct idempotency keys must mint distinct request_ids")
	}
}

func TestCore_SignPlanThenExecuteThenSealCapsule(t *testing.T) {
	now := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)
	c := newTestCore(t, now)
	ctx := context.Background()

	contract, err := c.Consent.Create(ctx, consent.CreateParams{
		DSID:               "ds-1",
		RequesterID:        "requester-1",
		RequestID:          "req-1",
		ScopeHash:          "scope-hash-1",
		PurposeHash:        "purpose-hash-1",
		DurationStart:      now,
		DurationEnd:        now.Add(24 * time.Hour),
		Compensation:       "5.0000",
		PermittedFields:    []string{"steps", "hr"},
		RequestScopeFields: []string{"steps", "hr"},
		AllowedTransforms:  []string{"select", "aggregate", "pack_capsule"},
		OutputRestrictions: nil,
	})
	if err != nil {
		t.Fatalf("Consent.Create: %v", err)
	}

	draft := queryplan.Draft{
		RequestID:          "req-1",
		ConsentContractID:  contract.ID,
		ScopeHash:           "scope-hash-1",
		AllowedTransforms:  []string{"select", "aggregate", "pack_capsule"},
		PermittedFields:    []string{"steps", "hr"},
		Compensation:       "5.0000",
		TTL:                now.Add(time.Hour),
		ResourceLimits:     config.DefaultResourceLimits(),
		Steps: []queryplan.PlanStep{
			{Index: 0, Operator: "select", InputFields: []string{"steps", "hr"}, OutputFields: []string{"steps", "hr"}},
			{Index: 1, Operator: "aggregate", Params: map[string]string{"op": "count"}, InputFields: []string{"steps", "hr"}, OutputFields: []string{"_aggregate_count"}},
			{Index: 2, Operator: "pack_capsule"},
		},
	}

	plan, err := c.SignPlan(ctx, contract.ID, draft, "signing-key-1")
	if err != nil {
		t.Fatalf("SignPlan: %v", err)
	}
	if plan.Status != queryplan.StatusSigned {
		t.Fatalf("expected SIGNED, got %s", plan.Status)
	}

	budget, err := c.PRB.Allocate(ctx, "campaign-1", money.MustParse("1.0000"), "v1")
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	budget, err = c.PRB.Lock(ctx, budget.ID)
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}

	initial := planvm.Mapping{"steps": "1000", "hr": "70"}
	result, err := c.ExecutePlan(ctx, plan, budget.ID, initial)
	if err != nil {
		t.Fatalf("ExecutePlan: %v", err)
	}
	if result.CapsuleID == "" {
		t.Fatal("expected pack_capsule to populate CapsuleID")
	}

	capsuleID, err := ids.Parse(result.CapsuleID)
	if err != nil {
		t.Fatalf("parsing capsule id: %v", err)
	}
	got, err := c.Capsules.Get(ctx, capsuleID)
	if err != nil {
		t.Fatalf("Capsules.Get: %v", err)
	}

	plaintext, err := c.AccessCapsule(ctx, capsuleID, got.Nonce)
	if err != nil {
		t.Fatalf("AccessCapsule: %v", err)
	}
	if len(plaintext) == 0 {
		t.Fatal("expected non-empty decrypted output")
	}
}

func TestCore_RevokeConsentThenSignPlanDenied(t *testing.T) {
	now := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)
	c := newTestCore(t, now)
	ctx := context.Background()

	contract, err := c.Consent.Create(ctx, consent.CreateParams{
		DSID:               "ds-1",
		RequesterID:        "requester-1",
		RequestID:          "req-1",
		ScopeHash:          "scope-hash-1",
		PurposeHash:        "purpose-hash-1",
		DurationStart:      now,
		DurationEnd:        now.Add(24 * time.Hour),
		Compensation:       "5.0000",
		PermittedFields:    []string{"steps"},
		RequestScopeFields: []string{"steps"},
		AllowedTransforms:  []string{"select"},
	})
	if err != nil {
		t.Fatalf("Consent.Create: %v", err)
	}

	if err := c.RevokeConsent(ctx, contract.ID); err != nil {
		t.Fatalf("RevokeConsent: %v", err)
	}

	draft := queryplan.Draft{
		RequestID:          "req-1",
		ConsentContractID:  contract.ID,
		ScopeHash:           "scope-hash-1",
		AllowedTransforms:  []string{"select"},
		PermittedFields:    []string{"steps"},
		Compensation:       "5.0000",
		TTL:                now.Add(time.Hour),
		ResourceLimits:     config.DefaultResourceLimits(),
		Steps: []queryplan.PlanStep{
			{Index: 0, Operator: "select", InputFields: []string{"steps"}, OutputFields: []string{"steps"}},
		},
	}

	_, err = c.SignPlan(ctx, contract.ID, draft, "signing-key-1")
	if err == nil {
		t.Fatal("expected sign_plan to fail after revocation")
	}
}

// TestCore_RevokeConsentThenExecuteDenied: a
// plan signed while its contract is ACTIVE must still be denied if the
// contract is revoked before execution runs, even though signing
// already succeeded.
func TestCore_RevokeConsentThenExecuteDenied(t *testing.T) {
	now := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)
	c := newTestCore(t, now)
	ctx := context.Background()

	contract, err := c.Consent.Create(ctx, consent.CreateParams{
		DSID:               "ds-1",
		RequesterID:        "requester-1",
		RequestID:          "req-1",
		ScopeHash:          "scope-hash-1",
		PurposeHash:        "purpose-hash-1",
		DurationStart:      now,
		DurationEnd:        now.Add(24 * time.Hour),
		Compensation:       "5.0000",
		PermittedFields:    []string{"steps"},
		RequestScopeFields: []string{"steps"},
		AllowedTransforms:  []string{"select"},
	})
	if err != nil {
		t.Fatalf("Consent.Create: %v", err)
	}

	draft := queryplan.Draft{
		RequestID:          "req-1",
		ConsentContractID:  contract.ID,
		ScopeHash:           "scope-hash-1",
		AllowedTransforms:  []string{"select"},
		PermittedFields:    []string{"steps"},
		Compensation:       "5.0000",
		TTL:                now.Add(time.Hour),
		ResourceLimits:     config.DefaultResourceLimits(),
		Steps: []queryplan.PlanStep{
			{Index: 0, Operator: "select", InputFields: []string{"steps"}, OutputFields: []string{"steps"}},
		},
	}

	plan, err := c.SignPlan(ctx, contract.ID, draft, "signing-key-1")
	if err != nil {
		t.Fatalf("SignPlan: %v", err)
	}

	if err := c.RevokeConsent(ctx, contract.ID); err != nil {
		t.Fatalf("RevokeConsent: %v", err)
	}

	budget, err := c.PRB.Allocate(ctx, "campaign-1", money.MustParse("1.0000"), "v1")
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	budget, err = c.PRB.Lock(ctx, budget.ID)
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}

	initial := planvm.Mapping{"steps": "1000"}
	_, err = c.ExecutePlan(ctx, plan, budget.ID, initial)
	if err == nil {
		t.Fatal("expected execute_plan to deny a plan whose contract was revoked after signing")
	}
}

func TestCore_AuditExportReturnsFullChain(t *testing.T) {
	now := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)
	c := newTestCore(t, now)
	ctx := context.Background()

	if _, err := c.Consent.Create(ctx, consent.CreateParams{
		DSID:               "ds-1",
		RequesterID:        "requester-1",
		RequestID:          "req-1",
		ScopeHash:          "scope-hash-1",
		PurposeHash:        "purpose-hash-1",
		DurationStart:      now,
		DurationEnd:        now.Add(24 * time.Hour),
		Compensation:       "5.0000",
		PermittedFields:    []string{"steps"},
		RequestScopeFields: []string{"steps"},
		AllowedTransforms:  []string{"select"},
	}); err != nil {
		t.Fatalf("Consent.Create: %v", err)
	}

	bundle, err := c.AuditExport(ctx, audit.Filter{})
	if err != nil {
		t.Fatalf("AuditExport: %v", err)
	}
	if bundle.EntryCount == 0 {
		t.Fatal("expected at least one audit entry")
	}
}
