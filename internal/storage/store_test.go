package storage

import (
	"context"
	"testing"
	"time"

	"github.com/roshanrateria/EcoRoute/internal/models"
)

func TestDispatchBatchSkipsNonWaiting(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	batchID := "b1"
	base := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	for i, st := range []models.Status{models.StatusWaitingForBatch, models.StatusWaitingForBatch, models.StatusPreparing} {
		id := string(rune('a' + i))
		if err := m.InsertOrder(ctx, &models.Order{ID: id, UserID: "u1", RestaurantID: "r1", Status: st, BatchID: &batchID, CreatedAt: base}); err != nil {
			t.Fatal(err)
		}
	}

	moved, err := m.DispatchBatch(ctx, batchID, 142.5, base.Add(5*time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if moved != 2 {
		t.Fatalf("moved = %d, want 2", moved)
	}

	// already-dispatched member keeps its zero credit
	o, err := m.FindOrder(ctx, "c")
	if err != nil {
		t.Fatal(err)
	}
	if o.CO2Saved != 0 || o.DispatchedAt != nil {
		t.Fatalf("non-waiting member was touched: %+v", o)
	}

	// second call finds nothing left
	moved, err = m.DispatchBatch(ctx, batchID, 142.5, base.Add(6*time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if moved != 0 {
		t.Fatalf("second dispatch moved = %d, want 0", moved)
	}
}

func TestFindOpenBatchOrderPicksOldest(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	b1, b2 := "b1", "b2"
	base := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	if err := m.InsertOrder(ctx, &models.Order{ID: "new", RestaurantID: "r1", Status: models.StatusWaitingForBatch, BatchID: &b2, CreatedAt: base.Add(time.Minute)}); err != nil {
		t.Fatal(err)
	}
	if err := m.InsertOrder(ctx, &models.Order{ID: "old", RestaurantID: "r1", Status: models.StatusWaitingForBatch, BatchID: &b1, CreatedAt: base}); err != nil {
		t.Fatal(err)
	}
	if err := m.InsertOrder(ctx, &models.Order{ID: "other", RestaurantID: "r2", Status: models.StatusWaitingForBatch, BatchID: &b1, CreatedAt: base.Add(-time.Minute)}); err != nil {
		t.Fatal(err)
	}

	o, err := m.FindOpenBatchOrder(ctx, "r1")
	if err != nil {
		t.Fatal(err)
	}
	if o == nil || o.ID != "old" {
		t.Fatalf("got %+v, want order 'old'", o)
	}

	o, err = m.FindOpenBatchOrder(ctx, "r3")
	if err != nil {
		t.Fatal(err)
	}
	if o != nil {
		t.Fatalf("expected nil for restaurant with no open batch, got %+v", o)
	}
}

func TestFindOrderReturnsCopies(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	base := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	if err := m.InsertOrder(ctx, &models.Order{ID: "o1", Status: models.StatusPending, CreatedAt: base}); err != nil {
		t.Fatal(err)
	}
	a, _ := m.FindOrder(ctx, "o1")
	a.Status = models.StatusDelivered

	b, _ := m.FindOrder(ctx, "o1")
	if b.Status != models.StatusPending {
		t.Fatalf("mutating a returned order leaked into the store: %v", b.Status)
	}
}
