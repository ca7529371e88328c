package core

import (
	"context"

	"dscore/internal/consent"
	"dscore/internal/queryplan"
	"dscore/pkg/dserr"
	"dscore/pkg/ids"
)

// SignPlan validates a draft against the named contract and returns
// a SIGNED QueryPlan. It confirms the contract exists and builds
// PlanFacts from the draft, so the consent check run during signing
// reads the contract's live state, then counts every rejection reason code in
// metrics.PlanRejections so an operator can see which validator rule
// trips most often.
func (c *Core) SignPlan(ctx context.Context, contractID ids.ID, draft queryplan.Draft, signingKeyID string) (queryplan.Plan, error) {
	if _, err := c.Consent.Get(ctx, contractID); err != nil {
		return queryplan.Plan{}, err
	}

	facts := consent.PlanFacts{
		ScopeHash:          draft.ScopeHash,
		PermittedFields:    draft.PermittedFields,
		Operators:          stepOperators(draft.Steps),
		OutputRestrictions: draft.OutputRestrictions,
	}

	checker := checkerFunc(func(ctx context.Context, contractID ids.ID, plan consent.PlanFacts) (consent.Decision, error) {
		decision, err := c.Consent.Check(ctx, contractID, plan)
		if err == nil && !decision.Allow && c.Metrics != nil {
			c.Metrics.ConsentDenials.WithLabelValues(decision.ReasonCode).Inc()
		}
		return decision, err
	})

	plan, err := c.Plans.Sign(ctx, draft, signingKeyID, checker, facts)
	if err != nil {
		if c.Metrics != nil {
			for _, code := range reasonCodes(err) {
				c.Metrics.PlanRejections.WithLabelValues(code).Inc()
			}
		}
		return queryplan.Plan{}, err
	}
	return plan, nil
}

func stepOperators(steps []queryplan.PlanStep) []string {
	ops := make([]string, 0, len(steps))
	for _, s := range steps {
		ops = append(ops, s.Operator)
	}
	return ops
}

func reasonCodes(err error) []string {
	if e, ok := dserr.As(err); ok && len(e.ReasonCodes) > 0 {
		return e.ReasonCodes
	}
	return []string{"UNKNOWN"}
}

// checkerFunc adapts a plain function to queryplan.ConsentChecker, the
// same narrow-seam pattern dscrypto.KeyManager uses for queryplan.Signer,
// so this facade never has to define a named struct just to satisfy a
// one-method interface and to count denials on the way through.
type checkerFunc func(ctx context.Context, contractID ids.ID, plan consent.PlanFacts) (consent.Decision, error)

func (f checkerFunc) Check(ctx context.Context, contractID ids.ID, plan consent.PlanFacts) (consent.Decision, error) {
	return f(ctx, contractID, plan)
}

var _ queryplan.ConsentChecker = checkerFunc(nil)
