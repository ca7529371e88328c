package impl

import (
	"context"
	"testing"
	"time"

	"dscore/pkg/clock"
	"dscore/pkg/config"
	"dscore/pkg/dscrypto"
	dscryptoinmem "dscore/pkg/dscrypto/impl_inmem"
	"dscore/pkg/ids"
	"dscore/internal/queryplan"
)

func testPolicy() queryplan.ValidatorPolicy {
	return queryplan.ValidatorPolicy{
		MaxTTL:         24 * time.Hour,
		MaxCPUMillis:   30_000,
		MaxMemoryBytes: 100 * 1024 * 1024,
		MaxWallMillis:  60_000,
		MaxBatteryPctMax: 10.0,
	}
}

func signedPlan(t *testing.T, km dscrypto.KeyManager, keyID string, now time.Time, mutateBeforeSign func(*queryplan.Plan)) queryplan.Plan {
	t.Helper()
	ctx := context.Background()
	plan := queryplan.Plan{
		ID:                 ids.New(),
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
		SigningKeyID: keyID,
	}
	if mutateBeforeSign != nil {
		mutateBeforeSign(&plan)
	}
	signer, err := km.GetSigner(ctx, keyID)
	if err != nil {
		t.Fatalf("GetSigner: %v", err)
	}
	sig, err := signer.Sign(ctx, queryplan.SignablePayload(plan))
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	plan.Signature = sig
	plan.SignedAt = now
	return plan
}

func TestValidator_ValidPlanPasses(t *testing.T) {
	now := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)
	km := dscryptoinmem.New(clock.NewFixed(now))
	if err := km.GenerateEd25519Key("plan-key-1"); err != nil {
		t.Fatalf("GenerateEd25519Key: %v", err)
	}
	plan := signedPlan(t, km, "plan-key-1", now, nil)

	v := NewValidator(NewKeyManagerSigner(km))
	result := v.Validate(context.Background(), plan, now, testPolicy())
	if !result.Valid {
		t.Fatalf("expected valid plan, got reason codes %v (err=%v)", result.ReasonCodes, result.Err)
	}
	if result.Err != nil {
		t.Fatalf("expected nil Err on a valid plan, got %v", result.Err)
	}
}

func TestValidator_SignatureTamperDetected(t *testing.T) {
	now := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)
	km := dscryptoinmem.New(clock.NewFixed(now))
	if err := km.GenerateEd25519Key("plan-key-1"); err != nil {
		t.Fatalf("GenerateEd25519Key: %v", err)
	}
	plan := signedPlan(t, km, "plan-key-1", now, nil)

	// Tamper one byte of the signed payload by mutating a field that
	// participates in SignablePayload after the signature was produced.
	plan.ScopeHash = "tampered-scope-hash"

	v := NewValidator(NewKeyManagerSigner(km))
	result := v.Validate(context.Background(), plan, now, testPolicy())
	if result.Valid {
		t.Fatal("expected tampered plan to fail validation")
	}
	if !containsCode(result.ReasonCodes, "PLAN_SIGNATURE_INVALID") {
		t.Fatalf("expected PLAN_SIGNATURE_INVALID, got %v", result.ReasonCodes)
	}
}

func TestValidator_RejectionMatrix(t *testing.T) {
	now := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)
	km := dscryptoinmem.New(clock.NewFixed(now))
	if err := km.GenerateEd25519Key("plan-key-1"); err != nil {
		t.Fatalf("GenerateEd25519Key: %v", err)
	}
	v := NewValidator(NewKeyManagerSigner(km))

	tests := []struct {
		name     string
		mutate   func(*queryplan.Plan)
		wantCode string
	}{
		{
			name: "expired ttl",
			mutate: func(p *queryplan.Plan) {
				p.TTL = now.Add(-time.Minute)
			},
			wantCode: "PLAN_TTL_EXPIRED",
		},
		{
			name: "ttl exceeds policy",
			mutate: func(p *queryplan.Plan) {
				p.TTL = now.Add(48 * time.Hour)
			},
			wantCode: "PLAN_TTL_EXCEEDS_POLICY",
		},
		{
			name: "disallowed operator",
			mutate: func(p *queryplan.Plan) {
				p.Steps = []queryplan.PlanStep{{Index: 0, Operator: "delete_everything"}}
			},
			wantCode: "PLAN_OPERATOR_NOT_ALLOWLISTED",
		},
		{
			name: "pack_capsule not last",
			mutate: func(p *queryplan.Plan) {
				p.Steps = []queryplan.PlanStep{
					{Index: 0, Operator: "pack_capsule"},
					{Index: 1, Operator: "select", InputFields: []string{"heart_rate"}},
				}
			},
			wantCode: "PLAN_PACK_CAPSULE_NOT_LAST",
		},
		{
			name: "resource limits exceed policy",
			mutate: func(p *queryplan.Plan) {
				p.ResourceLimits.CPUMillis = 1_000_000
			},
			wantCode: "PLAN_RESOURCE_LIMITS_EXCEED_POLICY",
		},
		{
			name: "unauthorized field access",
			mutate: func(p *queryplan.Plan) {
				p.Steps[0].InputFields = []string{"ssn"}
			},
			wantCode: "UNAUTHORIZED_FIELD_ACCESS_ATTEMPT",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := signedPlan(t, km, "plan-key-1", now, tt.mutate)
			result := v.Validate(context.Background(), plan, now, testPolicy())
			if result.Valid {
				t.Fatalf("expected rejection for %s", tt.name)
			}
			if !containsCode(result.ReasonCodes, tt.wantCode) {
				t.Fatalf("expected %s, got %v", tt.wantCode, result.ReasonCodes)
			}
			if result.Err == nil {
				t.Fatal("expected aggregated Err to be non-nil on rejection")
			}
		})
	}
}

func TestValidator_UnsignedPlanRejected(t *testing.T) {
	now := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)
	km := dscryptoinmem.New(clock.NewFixed(now))
	v := NewValidator(NewKeyManagerSigner(km))

	plan := queryplan.Plan{
		ID:              ids.New(),
		TTL:             now.Add(time.Hour),
		PermittedFields: []string{"heart_rate"},
		ResourceLimits:  config.DefaultResourceLimits(),
	}
	result := v.Validate(context.Background(), plan, now, testPolicy())
	if result.Valid {
		t.Fatal("expected unsigned plan to fail validation")
	}
	if !containsCode(result.ReasonCodes, "PLAN_SIGNATURE_INVALID") {
		t.Fatalf("expected PLAN_SIGNATURE_INVALID, got %v", result.ReasonCodes)
	}
}

func containsCode(codes []string, want string) bool {
	for _, c := range codes {
		if c == want {
			return true
		}
	}
	return false
}
