package orders

import (
	"context"

	"github.com/roshanrateria/EcoRoute/internal/emissions"
	"github.com/roshanrateria/EcoRoute/internal/models"
	"github.com/roshanrateria/EcoRoute/internal/observability"
)

// dispatchBatch fires when a batch's window has elapsed: every member still
// waiting moves to preparing with an identical CO2 credit and dispatch time,
// and each user's running total is credited once per order they hold in the
// batch. Safe to call repeatedly; members already past waiting_for_batch are
// filtered out both by the snapshot and by the conditional update, so a
// second invocation is a no-op. Caller must hold the batch lock.
func (s *Service) dispatchBatch(ctx context.Context, batchID string) error {
	members, err := s.Store.FindOrdersByBatch(ctx, batchID)
	if err != nil {
		return storageErr("find batch members", err)
	}
	var waiting []models.Order
	for _, m := range members {
		if m.Status == models.StatusWaitingForBatch {
			waiting = append(waiting, m)
		}
	}
	if len(waiting) == 0 {
		return nil
	}

	// batch size floors at 2: a lone survivor keeps the paired-trip credit
	// it signed up for when it chose batching
	co2 := emissions.SavedDispatch(len(waiting))
	now := s.now()

	moved, err := s.Store.DispatchBatch(ctx, batchID, co2, now)
	if err != nil {
		return storageErr("dispatch batch", err)
	}
	if moved != len(waiting) {
		s.log().Warn("dispatch moved unexpected member count", "batch_id", batchID, "snapshot", len(waiting), "moved", moved)
	}

	perUser := make(map[string]int)
	for _, m := range waiting {
		perUser[m.UserID]++
	}
	for userID, count := range perUser {
		if err := s.Store.IncrementUserCounters(ctx, userID, co2*float64(count), 0); err != nil {
			return storageErr("credit user savings", err)
		}
	}

	observability.BatchesDispatched.Inc()
	observability.BatchSize.Observe(float64(len(waiting)))
	observability.CO2SavedGrams.Add(co2 * float64(len(waiting)))

	for _, m := range waiting {
		dispatched := m
		dispatched.Status = models.StatusPreparing
		dispatched.CO2Saved = co2
		at := now
		dispatched.DispatchedAt = &at

		s.publish(ctx, models.OrderEvent{
			Kind:         models.EventBatchDispatched,
			OrderID:      m.ID,
			UserID:       m.UserID,
			RestaurantID: m.RestaurantID,
			BatchID:      batchID,
			BatchSize:    len(waiting),
			CO2Saved:     co2,
			OccurredAt:   now,
		})
		if s.Notify != nil {
			s.Notify.OrderDispatched(m.UserID, dispatched)
		}
	}

	s.log().Info("batch dispatched", "batch_id", batchID, "size", len(waiting), "co2_per_order", co2)
	return nil
}
