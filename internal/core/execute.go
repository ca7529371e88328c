package core

import (
	"context"

	"dscore/internal/planvm"
	"dscore/internal/queryplan"
	"dscore/pkg/dserr"
	"dscore/pkg/ids"
)

// ExecutePlan runs a signed plan against the caller's data and
// returns the output mapping, resource usage, and PRB charge. plan must
// already be SIGNED or DISPATCHED; on success it is marked EXECUTED.
// c.VM.Execute re-checks plan.ConsentContractID against live consent
// state before running any step, so a contract revoked after signing
// still denies here even though SignPlan's own check already passed.
// PRB exhaustion is counted in metrics.PRBExhaustions, a post-sign
// consent denial in metrics.ConsentDenials; any other abort reason
// surfaces only through the returned error, keeping the counter set
// to what an operator actually watches.
func (c *Core) ExecutePlan(ctx context.Context, plan queryplan.Plan, budgetID ids.ID, initial planvm.Mapping) (planvm.ExecutionResult, error) {
	result, err := c.VM.Execute(ctx, plan, budgetID, initial)
	if err != nil {
		if c.Metrics != nil {
			switch {
			case dserr.Is(err, dserr.KindPRBExhausted):
				c.Metrics.PRBExhaustions.Inc()
			case dserr.Is(err, dserr.KindConsentDenied):
				for _, code := range reasonCodes(err) {
					c.Metrics.ConsentDenials.WithLabelValues(code).Inc()
				}
			}
		}
		return planvm.ExecutionResult{}, err
	}

	if _, markErr := c.Plans.MarkExecuted(ctx, plan.ID); markErr != nil {
		return planvm.ExecutionResult{}, markErr
	}

	if c.Metrics != nil {
		c.Metrics.QueryExecutions.Inc()
	}
	return result, nil
}
