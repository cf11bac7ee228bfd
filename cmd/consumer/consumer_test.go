package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/roshanrateria/EcoRoute/internal/models"
)

// fakeAdder implements ScoreAdder for tests
type fakeAdder struct {
	fail  int // number of times to fail before succeeding
	calls int
	total float64
}

func (f *fakeAdder) AddSavings(ctx context.Context, userID string, grams float64) error {
	f.calls++
	if f.calls <= f.fail {
		return errors.New("redis fail")
	}
	f.total += grams
	return nil
}

func dispatchedEvent() models.OrderEvent {
	return models.OrderEvent{
		Kind:     models.EventBatchDispatched,
		OrderID:  "o1",
		UserID:   "u1",
		BatchID:  "b1",
		CO2Saved: 142.5,
	}
}

func TestCreditWithRetry_SucceedsAfterRetries(t *testing.T) {
	f := &fakeAdder{fail: 1}
	start := time.Now()
	if err := creditWithRetry(context.Background(), f, dispatchedEvent(), 3, 10*time.Millisecond); err != nil {
		t.Fatalf("expected success, got err=%v", err)
	}
	if f.calls < 2 {
		t.Fatalf("expected retries, got calls=%d", f.calls)
	}
	if f.total != 142.5 {
		t.Fatalf("expected single credit of 142.5, got %f", f.total)
	}
	if time.Since(start) < 10*time.Millisecond {
		t.Fatalf("expected at least one backoff")
	}
}

func TestCreditWithRetry_FailsWhenExhausted(t *testing.T) {
	f := &fakeAdder{fail: 5}
	if err := creditWithRetry(context.Background(), f, dispatchedEvent(), 3, 5*time.Millisecond); err == nil {
		t.Fatalf("expected error after retries")
	}
}

func TestShouldCredit(t *testing.T) {
	ev := dispatchedEvent()
	if !shouldCredit(ev) {
		t.Fatal("dispatched event with savings should credit")
	}
	created := ev
	created.Kind = models.EventOrderCreated
	created.CO2Saved = 0
	if shouldCredit(created) {
		t.Fatal("created events must not credit")
	}
	rushed := ev
	rushed.Kind = models.EventOrderRushed
	rushed.CO2Saved = 0
	if shouldCredit(rushed) {
		t.Fatal("rushed events must not credit")
	}
	zero := ev
	zero.CO2Saved = 0
	if shouldCredit(zero) {
		t.Fatal("zero savings must not credit")
	}
}
