package impl_inmem

import (
	"context"
	"testing"
	"time"

	"dscore/internal/nonce"
	"dscore/pkg/clock"
)

func TestRegistry_Consume_SingleUse(t *testing.T) {
	c := clock.NewFixed(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	r := New(c)
	ctx := context.Background()

	rec, err := r.Register(ctx, "capsule-1", c.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := r.Consume(ctx, rec.Nonce); err != nil {
		t.Fatalf("first consume should succeed, got: %v", err)
	}

	if _, err := r.Consume(ctx, rec.Nonce); err != nonce.ErrNonceReused {
		t.Fatalf("expected ErrNonceReused on second consume, got: %v", err)
	}
}

func TestRegistry_Consume_Expired(t *testing.T) {
	c := clock.NewFixed(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	r := New(c)
	ctx := context.Background()

	rec, err := r.Register(ctx, "capsule-1", c.Now().Add(-time.Minute))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := r.Consume(ctx, rec.Nonce); err != nonce.ErrNonceExpired {
		t.Fatalf("expected ErrNonceExpired, got: %v", err)
	}

	// An expired nonce, once flagged, stays rejected rather than
	// surfacing as a fresh reuse or unknown-nonce error.
	if _, err := r.Consume(ctx, rec.Nonce); err != nonce.ErrNonceExpired {
		t.Fatalf("expected ErrNonceExpired on repeated consume of expired nonce, got: %v", err)
	}
}

func TestRegistry_Consume_Unknown(t *testing.T) {
	r := New(clock.New())
	if _, err := r.Consume(context.Background(), "nonexistent"); err != nonce.ErrNonceUnknown {
		t.Fatalf("expected ErrNonceUnknown, got: %v", err)
	}
}

func TestRegistry_ExpireSweep(t *testing.T) {
	c := clock.NewFixed(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	r := New(c)
	ctx := context.Background()

	if _, err := r.Register(ctx, "capsule-1", c.Now().Add(-time.Minute)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := r.Register(ctx, "capsule-2", c.Now().Add(time.Hour)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	n, err := r.ExpireSweep(ctx, c.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 nonce expired, got %d", n)
	}
}
