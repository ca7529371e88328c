// Package nonce provides the at-most-once access registry for Time
// Capsules' nonce-bound access guarantee: a capsule may
// be opened exactly once per issued nonce, and a replayed nonce must be
// rejected rather than silently re-served.
//
// The Registry interface holds issuing, consuming and sweeping nonces,
// so an implementation can be tested on its own.
package nonce

import (
	"context"
	"errors"
	"time"
)

// Status is the nonce lifecycle state.
type Status string

const (
	StatusActive  Status = "ACTIVE"
	StatusUsed    Status = "USED"
	StatusExpired Status = "EXPIRED"
)

// Record is one issued, single-use access token bound to a capsule.
type Record struct {
	Nonce      string
	CapsuleID  string
	Status     Status
	IssuedAt   time.Time
	ExpiresAt  time.Time
	ConsumedAt time.Time
}

// Errors returned by Registry.Consume.
var (
	ErrNonceReused  = errors.New("nonce: already consumed")
	ErrNonceExpired = errors.New("nonce: expired")
	ErrNonceUnknown = errors.New("nonce: not registered")
)

// Registry issues and consumes single-use nonces for capsule access.
type Registry interface {
	// Register issues a fresh ACTIVE nonce bound to capsuleID, valid
	// until expiresAt.
	Register(ctx context.Context, capsuleID string, expiresAt time.Time) (Record, error)

	// Consume atomically transitions a nonce from ACTIVE to USED and
	// returns the record. It fails closed — ErrNonceReused if already
	// USED, ErrNonceExpired if past ExpiresAt (and transitions it to
	// EXPIRED as a side effect), ErrNonceUnknown if never issued — and
	// an expired or reused nonce is NEVER treated as valid regardless
	// of ordering between the two checks.
	Consume(ctx context.Context, nonceValue string) (Record, error)

	// Get returns the current record for nonceValue without consuming it.
	Get(ctx context.Context, nonceValue string) (Record, error)

	// ExpireSweep transitions every ACTIVE nonce past its ExpiresAt (as
	// of now) to EXPIRED and returns the count transitioned.
	ExpireSweep(ctx context.Context, now time.Time) (int, error)
}
