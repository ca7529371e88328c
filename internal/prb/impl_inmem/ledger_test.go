package impl_inmem

import (
	"context"
	"testing"

	"dscore/internal/prb"
	"dscore/pkg/dserr"
	"dscore/pkg/money"
)

// TestLedger_ConsumePastRemaining:
// allocate(1.0), lock, consume(0.6), then consume(0.5) must fail with
// PRBExhausted{required=0.5, remaining=0.4} and leave status unchanged.
func TestLedger_ConsumePastRemaining(t *testing.T) {
	l := New()
	ctx := context.Background()

	b, err := l.Allocate(ctx, "campaign-1", money.MustParse("1.0000"), "ruleset-v1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err = l.Lock(ctx, b.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	b, err = l.Consume(ctx, b.ID, money.MustParse("0.6000"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.Remaining().String() != "0.4000" {
		t.Fatalf("expected remaining 0.4000, got %s", b.Remaining().String())
	}

	_, err = l.Consume(ctx, b.ID, money.MustParse("0.5000"))
	dsErr, ok := dserr.As(err)
	if !ok || dsErr.Kind != dserr.KindPRBExhausted {
		t.Fatalf("expected PRBExhausted, got %v", err)
	}
	if dsErr.Required != "0.5000" || dsErr.Remaining != "0.4000" {
		t.Errorf("expected required=0.5000 remaining=0.4000, got required=%s remaining=%s", dsErr.Required, dsErr.Remaining)
	}

	after, err := l.Get(ctx, b.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if after.Status != prb.StatusLocked {
		t.Errorf("expected status to remain LOCKED after failed consume, got %s", after.Status)
	}
	if after.Consumed.String() != "0.6000" {
		t.Errorf("expected consumed unchanged at 0.6000, got %s", after.Consumed.String())
	}
}

func TestLedger_Consume_ExactlyExhausts(t *testing.T) {
	l := New()
	ctx := context.Background()

	b, _ := l.Allocate(ctx, "campaign-1", money.MustParse("1.0000"), "ruleset-v1")
	b, _ = l.Lock(ctx, b.ID)
	b, err := l.Consume(ctx, b.ID, money.MustParse("1.0000"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.Status != prb.StatusExhausted {
		t.Errorf("expected EXHAUSTED after consuming full budget, got %s", b.Status)
	}
}

func TestLedger_Consume_RequiresLocked(t *testing.T) {
	l := New()
	ctx := context.Background()

	b, _ := l.Allocate(ctx, "campaign-1", money.MustParse("1.0000"), "ruleset-v1")
	_, err := l.Consume(ctx, b.ID, money.MustParse("0.1000"))
	if !dserr.Is(err, dserr.KindIllegalState) {
		t.Fatalf("expected IllegalState consuming from DRAFT, got %v", err)
	}
}

func TestLedger_Lock_OnlyFromDraft(t *testing.T) {
	l := New()
	ctx := context.Background()

	b, _ := l.Allocate(ctx, "campaign-1", money.MustParse("1.0000"), "ruleset-v1")
	b, err := l.Lock(ctx, b.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := l.Lock(ctx, b.ID); !dserr.Is(err, dserr.KindIllegalState) {
		t.Fatalf("expected IllegalState on double lock, got %v", err)
	}
}

func TestLedger_CanConsume_IsPure(t *testing.T) {
	l := New()
	ctx := context.Background()

	b, _ := l.Allocate(ctx, "campaign-1", money.MustParse("1.0000"), "ruleset-v1")
	b, _ = l.Lock(ctx, b.ID)

	ok, err := l.CanConsume(ctx, b.ID, money.MustParse("0.9999"))
	if err != nil || !ok {
		t.Fatalf("expected can-consume true, got ok=%v err=%v", ok, err)
	}

	after, err := l.Get(ctx, b.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if after.Consumed.String() != "0.0000" {
		t.Errorf("CanConsume must not mutate state, consumed=%s", after.Consumed.String())
	}

	ok, err = l.CanConsume(ctx, b.ID, money.MustParse("1.0001"))
	if err != nil || ok {
		t.Fatalf("expected can-consume false for cost exceeding remaining, got ok=%v err=%v", ok, err)
	}
}
