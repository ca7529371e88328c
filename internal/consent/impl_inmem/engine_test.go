package impl_inmem

import (
	"context"
	"testing"
	"time"

	"dscore/internal/audit/impl_inmem"
	"dscore/internal/consent"
	"dscore/pkg/clock"
	"dscore/pkg/dserr"
)

func newTestEngine(t *testing.T, now time.Time) (*Engine, clock.Clock) {
	t.Helper()
	c := clock.NewFixed(now)
	auditLog := impl_inmem.New("node-1", c)
	return New(c, auditLog), c
}

func baseParams(start, end time.Time) consent.CreateParams {
	return consent.CreateParams{
		DSID:               "ds-1",
		RequesterID:        "req-1",
		RequestID:          "request-1",
		ScopeHash:          "scope-hash-1",
		PurposeHash:        "purpose-hash-1",
		DurationStart:      start,
		DurationEnd:        end,
		Compensation:       "10.0000",
		PermittedFields:    []string{"steps", "hr"},
		RequestScopeFields: []string{"steps", "hr", "sleep"},
		AllowedTransforms:  []string{"select", "aggregate", "pack_capsule"},
		OutputRestrictions: []string{},
		DeliveryMode:       consent.DeliveryCleanRoom,
	}
}

func TestEngine_Create_ValidatesInvariants(t *testing.T) {
	e, c := newTestEngine(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	ctx := context.Background()
	now := c.Now()

	t.Run("duration ordering", func(t *testing.T) {
		p := baseParams(now, now)
		if _, err := e.Create(ctx, p); !dserr.Is(err, dserr.KindInvalidArgument) {
			t.Fatalf("expected InvalidArgument for duration_end <= duration_start, got %v", err)
		}
	})

	t.Run("compensation must be positive", func(t *testing.T) {
		p := baseParams(now, now.Add(time.Hour))
		p.Compensation = "0.0000"
		if _, err := e.Create(ctx, p); !dserr.Is(err, dserr.KindInvalidArgument) {
			t.Fatalf("expected InvalidArgument for zero compensation, got %v", err)
		}
	})

	t.Run("permitted fields must be non-empty", func(t *testing.T) {
		p := baseParams(now, now.Add(time.Hour))
		p.PermittedFields = nil
		if _, err := e.Create(ctx, p); !dserr.Is(err, dserr.KindInvalidArgument) {
			t.Fatalf("expected InvalidArgument for empty permitted_fields, got %v", err)
		}
	})

	t.Run("transforms must be allowlisted", func(t *testing.T) {
		p := baseParams(now, now.Add(time.Hour))
		p.AllowedTransforms = []string{"drop_table"}
		if _, err := e.Create(ctx, p); !dserr.Is(err, dserr.KindInvalidArgument) {
			t.Fatalf("expected InvalidArgument for a non-allowlisted transform, got %v", err)
		}
	})
}

// TestEngine_CheckAcceptsMatchingPlan: a valid contract accepts a matching plan.
func TestEngine_CheckAcceptsMatchingPlan(t *testing.T) {
	e, c := newTestEngine(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	ctx := context.Background()
	now := c.Now()

	contract, err := e.Create(ctx, baseParams(now, now.Add(time.Hour)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	decision, err := e.Check(ctx, contract.ID, consent.PlanFacts{
		ScopeHash:          "scope-hash-1",
		PermittedFields:    []string{"steps", "hr"},
		Operators:          []string{"select", "aggregate", "pack_capsule"},
		OutputRestrictions: []string{},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !decision.Allow {
		t.Fatalf("expected Allow, got Deny(%s)", decision.ReasonCode)
	}
}

// TestEngine_RevocationVisibility: once revoked, any fresh check
// immediately denies with CONSENT_REVOKED.
func TestEngine_RevocationVisibility(t *testing.T) {
	e, c := newTestEngine(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	ctx := context.Background()
	now := c.Now()

	contract, err := e.Create(ctx, baseParams(now, now.Add(time.Hour)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := e.Revoke(ctx, contract.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	decision, err := e.Check(ctx, contract.ID, consent.PlanFacts{
		ScopeHash:       "scope-hash-1",
		PermittedFields: []string{"steps"},
		Operators:       []string{"select"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if decision.Allow || decision.ReasonCode != "CONSENT_REVOKED" {
		t.Fatalf("expected Deny(CONSENT_REVOKED), got allow=%v reason=%s", decision.Allow, decision.ReasonCode)
	}
}

// TestEngine_FieldScopeViolation: a plan reading an unpermitted
// field is denied with
// UNAUTHORIZED_FIELD_ACCESS_ATTEMPT.
func TestEngine_FieldScopeViolation(t *testing.T) {
	e, c := newTestEngine(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	ctx := context.Background()
	now := c.Now()

	params := baseParams(now, now.Add(time.Hour))
	params.PermittedFields = []string{"steps"}
	contract, err := e.Create(ctx, params)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	decision, err := e.Check(ctx, contract.ID, consent.PlanFacts{
		ScopeHash:       "scope-hash-1",
		PermittedFields: []string{"steps", "hr"},
		Operators:       []string{"select"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if decision.Allow || decision.ReasonCode != "UNAUTHORIZED_FIELD_ACCESS_ATTEMPT" {
		t.Fatalf("expected Deny(UNAUTHORIZED_FIELD_ACCESS_ATTEMPT), got allow=%v reason=%s", decision.Allow, decision.ReasonCode)
	}
}

func TestEngine_ExpireSweep(t *testing.T) {
	e, c := newTestEngine(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	ctx := context.Background()
	now := c.Now()

	contract, err := e.Create(ctx, baseParams(now, now.Add(time.Minute)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	n, err := e.ExpireSweep(ctx, now.Add(2*time.Minute))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 contract expired, got %d", n)
	}

	got, err := e.Get(ctx, contract.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Status != consent.ContractExpired {
		t.Errorf("expected EXPIRED, got %s", got.Status)
	}
}

func TestObligationTracker_ViolationLifecycle(t *testing.T) {
	e, c := newTestEngine(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	ctx := context.Background()
	now := c.Now()

	params := baseParams(now, now.Add(time.Hour))
	params.Obligations = []consent.ObligationSpec{
		{Kind: consent.ObligationRetentionLimit, EnforcementLevel: consent.EnforcementStrict},
	}
	contract, err := e.Create(ctx, params)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	obligations, err := e.Obligations(ctx, contract.ID)
	if err != nil || len(obligations) != 1 {
		t.Fatalf("expected 1 obligation, got %d (err=%v)", len(obligations), err)
	}

	v, err := e.DetectViolation(ctx, obligations[0].ID, "retention exceeded", consent.SeverityHigh, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.Status != consent.ViolationDetected {
		t.Fatalf("expected DETECTED, got %s", v.Status)
	}

	v, err = e.Acknowledge(ctx, v.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	v, err = e.Investigate(ctx, v.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	v, err = e.Resolve(ctx, v.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.Status != consent.ViolationResolved {
		t.Fatalf("expected RESOLVED, got %s", v.Status)
	}

	// Terminal: no further transition is allowed.
	if _, err := e.Escalate(ctx, v.ID); !dserr.Is(err, dserr.KindIllegalState) {
		t.Fatalf("expected IllegalState escalating a resolved violation, got %v", err)
	}

	// Check now denies because the obligation is VIOLATED.
	decision, err := e.Check(ctx, contract.ID, consent.PlanFacts{
		ScopeHash:       "scope-hash-1",
		PermittedFields: []string{"steps"},
		Operators:       []string{"select"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if decision.Allow || decision.ReasonCode != "OBLIGATION_VIOLATED" {
		t.Fatalf("expected Deny(OBLIGATION_VIOLATED), got allow=%v reason=%s", decision.Allow, decision.ReasonCode)
	}
}
