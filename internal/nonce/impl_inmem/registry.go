// Package impl_inmem provides an in-memory nonce.Registry.
//
// CRITICAL: not for production use — a real deployment needs a
// registry that survives process restart, since a nonce reused after a
// crash-and-restart is exactly the replay this component exists to stop.
package impl_inmem

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"

	"dscore/internal/nonce"
	"dscore/pkg/clock"
)

// Registry implements nonce.Registry with an in-memory map.
type Registry struct {
	mu      sync.Mutex
	clock   clock.Clock
	records map[string]*nonce.Record
}

// New creates an empty in-memory nonce registry bound to c.
func New(c clock.Clock) *Registry {
	return &Registry{clock: c, records: make(map[string]*nonce.Record)}
}

// Register issues a fresh random 256-bit nonce for capsuleID.
func (r *Registry) Register(ctx context.Context, capsuleID string, expiresAt time.Time) (nonce.Record, error) {
	var buf [32]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return nonce.Record{}, err
	}
	value := hex.EncodeToString(buf[:])

	r.mu.Lock()
	defer r.mu.Unlock()
	rec := &nonce.Record{
		Nonce:     value,
		CapsuleID: capsuleID,
		Status:    nonce.StatusActive,
		IssuedAt:  r.clock.Now(),
		ExpiresAt: expiresAt,
	}
	r.records[value] = rec
	return *rec, nil
}

// Consume transitions nonceValue from ACTIVE to USED, failing closed on
// any other observed state.
func (r *Registry) Consume(ctx context.Context, nonceValue string) (nonce.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[nonceValue]
	if !ok {
		return nonce.Record{}, nonce.ErrNonceUnknown
	}
	now := r.clock.Now()
	if rec.Status == nonce.StatusUsed {
		return *rec, nonce.ErrNonceReused
	}
	if rec.Status == nonce.StatusExpired || now.After(rec.ExpiresAt) {
		rec.Status = nonce.StatusExpired
		return *rec, nonce.ErrNonceExpired
	}
	rec.Status = nonce.StatusUsed
	rec.ConsumedAt = now
	return *rec, nil
}

// Get returns the current record for nonceValue without consuming it.
func (r *Registry) Get(ctx context.Context, nonceValue string) (nonce.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[nonceValue]
	if !ok {
		return nonce.Record{}, nonce.ErrNonceUnknown
	}
	return *rec, nil
}

// ExpireSweep transitions every ACTIVE nonce past now to EXPIRED.
func (r *Registry) ExpireSweep(ctx context.Context, now time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, rec := range r.records {
		if rec.Status == nonce.StatusActive && now.After(rec.ExpiresAt) {
			rec.Status = nonce.StatusExpired
			count++
		}
	}
	return count, nil
}

var _ nonce.Registry = (*Registry)(nil)
