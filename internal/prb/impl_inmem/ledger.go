// Package impl_inmem provides an in-memory prb.Ledger: a per-key
// mutex-guarded running total that only ever decreases once locked.
package impl_inmem

import (
	"context"
	"sync"

	"dscore/internal/prb"
	"dscore/pkg/dserr"
	"dscore/pkg/ids"
	"dscore/pkg/money"
)

// Ledger implements prb.Ledger with an in-memory map keyed by budget ID.
type Ledger struct {
	mu      sync.Mutex
	budgets map[ids.ID]*prb.Budget
}

// New creates an empty in-memory PRB ledger.
func New() *Ledger {
	return &Ledger{budgets: make(map[ids.ID]*prb.Budget)}
}

// Allocate creates a new DRAFT budget for campaignID.
func (l *Ledger) Allocate(ctx context.Context, campaignID string, allocated money.Amount, rulesetVersion string) (prb.Budget, error) {
	if !allocated.IsPositive() {
		return prb.Budget{}, dserr.New(dserr.KindInvalidArgument, "allocated budget must be positive")
	}
	b := &prb.Budget{
		ID:             ids.New(),
		CampaignID:     campaignID,
		Allocated:      allocated,
		Consumed:       money.Zero,
		RulesetVersion: rulesetVersion,
		Status:         prb.StatusDraft,
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.budgets[b.ID] = b
	return *b, nil
}

// Lock transitions budgetID from DRAFT to LOCKED.
func (l *Ledger) Lock(ctx context.Context, budgetID ids.ID) (prb.Budget, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.budgets[budgetID]
	if !ok {
		return prb.Budget{}, dserr.New(dserr.KindInvalidArgument, "budget not found")
	}
	if b.Status != prb.StatusDraft {
		return prb.Budget{}, dserr.New(dserr.KindIllegalState, "lock only allowed from DRAFT")
	}
	b.Status = prb.StatusLocked
	return *b, nil
}

// Consume decrements budgetID's remaining by cost.
func (l *Ledger) Consume(ctx context.Context, budgetID ids.ID, cost money.Amount) (prb.Budget, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.budgets[budgetID]
	if !ok {
		return prb.Budget{}, dserr.New(dserr.KindInvalidArgument, "budget not found")
	}
	if b.Status != prb.StatusLocked {
		return prb.Budget{}, dserr.New(dserr.KindIllegalState, "consume only allowed from LOCKED")
	}
	remaining := b.Remaining()
	if cost.GreaterThan(remaining) {
		return prb.Budget{}, dserr.PRBExhausted(cost.String(), remaining.String())
	}
	b.Consumed = b.Consumed.Add(cost)
	if b.Remaining().Cmp(money.Zero) == 0 {
		b.Status = prb.StatusExhausted
	}
	return *b, nil
}

// CanConsume is a side-effect-free predicate matching Consume's success
// condition.
func (l *Ledger) CanConsume(ctx context.Context, budgetID ids.ID, cost money.Amount) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.budgets[budgetID]
	if !ok {
		return false, dserr.New(dserr.KindInvalidArgument, "budget not found")
	}
	if b.Status != prb.StatusLocked {
		return false, nil
	}
	return !cost.GreaterThan(b.Remaining()), nil
}

// Get returns the current state of budgetID.
func (l *Ledger) Get(ctx context.Context, budgetID ids.ID) (prb.Budget, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.budgets[budgetID]
	if !ok {
		return prb.Budget{}, dserr.New(dserr.KindInvalidArgument, "budget not found")
	}
	return *b, nil
}

var _ prb.Ledger = (*Ledger)(nil)
