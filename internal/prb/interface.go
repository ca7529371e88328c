// Package prb implements the Privacy Risk Budget: a
// per-campaign epsilon-style allocation that is allocated, locked
// immutable, and then decremented by privacy-sensitive Plan VM
// operators until exhausted.
//
// A Ledger is a locked, monotonically-decreasing budget: once locked,
// Consume only ever moves it toward exhaustion.
package prb

import (
	"context"

	"dscore/pkg/ids"
	"dscore/pkg/money"
)

// Status is the PRB lifecycle state.
type Status string

const (
	StatusDraft     Status = "DRAFT"
	StatusLocked    Status = "LOCKED"
	StatusExhausted Status = "EXHAUSTED"
)

// Budget is one campaign's privacy risk budget.
type Budget struct {
	ID             ids.ID
	CampaignID     string
	Allocated      money.Amount
	Consumed       money.Amount
	RulesetVersion string
	Status         Status
}

// Remaining returns Allocated - Consumed.
func (b Budget) Remaining() money.Amount {
	return b.Allocated.Sub(b.Consumed)
}

// Ledger manages the lifecycle of privacy risk budgets.
type Ledger interface {
	// Allocate creates a new DRAFT budget for campaignID.
	Allocate(ctx context.Context, campaignID string, allocated money.Amount, rulesetVersion string) (Budget, error)

	// Lock transitions budgetID from DRAFT to LOCKED, only allowed from
	// DRAFT. Allocated becomes immutable from this point forward.
	Lock(ctx context.Context, budgetID ids.ID) (Budget, error)

	// Consume decrements budgetID's remaining by cost, only allowed
	// from LOCKED, and only if cost <= remaining. Transitions to
	// EXHAUSTED when remaining reaches zero.
	Consume(ctx context.Context, budgetID ids.ID, cost money.Amount) (Budget, error)

	// CanConsume is a side-effect-free predicate matching the success
	// condition of Consume.
	CanConsume(ctx context.Context, budgetID ids.ID, cost money.Amount) (bool, error)

	// Get returns the current state of budgetID.
	Get(ctx context.Context, budgetID ids.ID) (Budget, error)
}
