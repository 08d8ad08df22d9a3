package resilience

import (
	"context"
	"testing"
	"time"

	"github.com/WessleyAI/carsearch/pkg/fn"
)

func TestLimiterAllowBurst(t *testing.T) {
	l := NewLimiter(LimiterOpts{Rate: 0.001, Burst: 3})
	for i := range 3 {
		if !l.Allow() {
			t.Fatalf("expected allow on call %d", i)
		}
	}
	if l.Allow() {
		t.Fatal("expected rejection after burst exhausted")
	}
}

func TestLimiterUnlimited(t *testing.T) {
	l := NewLimiter(LimiterOpts{})
	for range 1000 {
		if !l.Allow() {
			t.Fatal("zero rate should be unlimited")
		}
	}
}

func TestLimiterWaitCancelled(t *testing.T) {
	l := NewLimiter(LimiterOpts{Rate: 0.001, Burst: 1})
	l.Allow()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := l.Wait(ctx); err == nil {
		t.Fatal("expected error from exhausted limiter")
	}
}

func TestLimiterStageWait(t *testing.T) {
	l := NewLimiter(LimiterOpts{Rate: 1000, Burst: 1})
	id := fn.Stage[int, int](func(_ context.Context, v int) fn.Result[int] { return fn.Ok(v) })
	s := LimiterStageWait(l, id)
	for i := range 3 {
		if v, err := s(context.Background(), i).Unwrap(); err != nil || v != i {
			t.Fatalf("call %d: %d, %v", i, v, err)
		}
	}
}
