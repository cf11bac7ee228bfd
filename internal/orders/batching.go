package orders

import (
	"context"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/roshanrateria/EcoRoute/internal/emissions"
	"github.com/roshanrateria/EcoRoute/internal/geo"
	"github.com/roshanrateria/EcoRoute/internal/models"
	"github.com/roshanrateria/EcoRoute/internal/observability"
)

// resolveWindow returns the effective batch deadline. ok=false means the
// stored value was missing or invalid; the returned default (now + window)
// must then be persisted back, not just used transiently.
func resolveWindow(stored *time.Time, now time.Time) (deadline time.Time, ok bool) {
	if stored == nil || stored.IsZero() {
		return now.Add(batchWindow), false
	}
	return *stored, true
}

// PreviewBatch reports whether an order for the given restaurant delivered
// near (lat, lng) would pool with anyone right now. Read-only; the answer
// can differ from what CreateOrder later commits to.
func (s *Service) PreviewBatch(ctx context.Context, restaurantID string, lat, lng float64, userID string) (models.BatchPreview, error) {
	r, err := s.Store.FindRestaurant(ctx, restaurantID)
	if err != nil {
		return models.BatchPreview{}, storageErr("find restaurant", err)
	}
	if r == nil {
		return models.BatchPreview{}, ErrNotFound
	}

	since := s.now().Add(-poolLookback)
	cands, err := s.Store.FindPoolCandidates(ctx, restaurantID, since, userID)
	if err != nil {
		return models.BatchPreview{}, storageErr("find pool candidates", err)
	}

	here := models.Coord{Lat: lat, Lng: lng}
	var nearby []models.Order
	for _, c := range cands {
		if geo.WithinPoolRadius(here, c.DeliveryCoord()) {
			nearby = append(nearby, c)
		}
	}
	if len(nearby) == 0 {
		return models.BatchPreview{}, nil
	}

	batchID := uuid.NewString()
	if nearby[0].BatchID != nil {
		batchID = *nearby[0].BatchID
	}
	size := len(nearby) + 1
	return models.BatchPreview{
		Poolable:          true,
		BatchID:           batchID,
		OtherOrdersCount:  len(nearby),
		EstimatedWaitMins: 10 + rand.Intn(6),
		SavingsRupees:     20 + float64(size-2)*5,
		CO2SavedGrams:     emissions.Saved(true, size),
	}, nil
}

// CreateOrder commits a new order. wantsBatch decides between an immediate
// solo delivery and joining (or opening) the restaurant's batch window.
func (s *Service) CreateOrder(ctx context.Context, userID, restaurantID string, items []models.OrderItem, address string, lat, lng float64, wantsBatch bool) (*models.Order, error) {
	r, err := s.Store.FindRestaurant(ctx, restaurantID)
	if err != nil {
		return nil, storageErr("find restaurant", err)
	}
	if r == nil {
		return nil, ErrNotFound
	}

	now := s.now()
	total := 0.0
	for _, it := range items {
		total += it.Price * float64(it.Quantity)
	}
	deliveryMins := r.DeliveryTimeMins
	if deliveryMins <= 0 {
		deliveryMins = defaultDeliveryMins
	}

	o := &models.Order{
		ID:              uuid.NewString(),
		UserID:          userID,
		RestaurantID:    restaurantID,
		RestaurantName:  r.Name,
		Items:           items,
		TotalAmount:     total,
		DeliveryAddress: address,
		DeliveryLat:     lat,
		DeliveryLng:     lng,
		CreatedAt:       now,
	}

	if wantsBatch {
		// serialize against concurrent joins/opens at this restaurant
		release, err := s.Locks.Acquire(ctx, "restaurant:"+restaurantID)
		if err != nil {
			return nil, storageErr("acquire restaurant lock", err)
		}
		defer release()

		existing, err := s.Store.FindOpenBatchOrder(ctx, restaurantID)
		if err != nil {
			return nil, storageErr("find open batch", err)
		}

		var batchID string
		var windowEnds time.Time
		if existing != nil {
			batchID = *existing.BatchID
			resolved, valid := resolveWindow(existing.BatchWindowEnds, now)
			windowEnds = resolved
			if !valid {
				// corrective repair, backfilled onto every member
				if err := s.Store.SetBatchWindow(ctx, batchID, windowEnds); err != nil {
					return nil, storageErr("repair batch window", err)
				}
				observability.WindowRepairs.Inc()
				s.log().Warn("repaired missing batch window", "batch_id", batchID, "new_end", windowEnds)
			}
		} else {
			batchID = uuid.NewString()
			windowEnds = now.Add(batchWindow)
		}

		deliveryMins += batchedExtraMins
		o.Status = models.StatusWaitingForBatch
		o.IsBatched = true
		o.BatchID = &batchID
		o.BatchWindowEnds = &windowEnds
		o.DeliveryFee = batchedDeliveryFee
		o.EstimatedDelivery = now.Add(time.Duration(deliveryMins+batchedBufferMins) * time.Minute)

		if err := s.Store.InsertOrder(ctx, o); err != nil {
			return nil, storageErr("insert order", err)
		}
	} else {
		dispatched := now
		o.Status = models.StatusPending
		o.DeliveryFee = soloDeliveryFee
		o.DispatchedAt = &dispatched
		o.EstimatedDelivery = now.Add(time.Duration(deliveryMins) * time.Minute)

		if err := s.Store.InsertOrder(ctx, o); err != nil {
			return nil, storageErr("insert order", err)
		}
	}

	if err := s.Store.IncrementUserCounters(ctx, userID, 0, 1); err != nil {
		return nil, storageErr("increment order count", err)
	}

	mode := "solo"
	if o.IsBatched {
		mode = "batched"
	}
	observability.OrdersCreated.WithLabelValues(mode).Inc()

	ev := models.OrderEvent{
		Kind:         models.EventOrderCreated,
		OrderID:      o.ID,
		UserID:       userID,
		RestaurantID: restaurantID,
		OccurredAt:   now,
	}
	if o.BatchID != nil {
		ev.BatchID = *o.BatchID
	}
	s.publish(ctx, ev)
	s.log().Info("order created", "order_id", o.ID, "user_id", userID, "restaurant_id", restaurantID, "mode", mode)
	return o, nil
}

// ExtendBatch pushes the shared deadline 3 minutes past its current
// effective value, for every member of the order's batch.
func (s *Service) ExtendBatch(ctx context.Context, orderID, userID string) (time.Time, error) {
	o, err := s.ownedOrder(ctx, orderID, userID)
	if err != nil {
		return time.Time{}, err
	}
	if o.Status != models.StatusWaitingForBatch || o.BatchID == nil {
		return time.Time{}, ErrInvalidState
	}
	batchID := *o.BatchID

	release, err := s.Locks.Acquire(ctx, "batch:"+batchID)
	if err != nil {
		return time.Time{}, storageErr("acquire batch lock", err)
	}
	defer release()

	// the batch may have dispatched while we waited for the lock
	o, err = s.ownedOrder(ctx, orderID, userID)
	if err != nil {
		return time.Time{}, err
	}
	if o.Status != models.StatusWaitingForBatch {
		return time.Time{}, ErrInvalidState
	}

	now := s.now()
	current, valid := resolveWindow(o.BatchWindowEnds, now)
	if !valid {
		observability.WindowRepairs.Inc()
	}
	newEnd := current.Add(batchExtension)
	if err := s.Store.SetBatchWindow(ctx, batchID, newEnd); err != nil {
		return time.Time{}, storageErr("extend batch window", err)
	}
	s.log().Info("batch window extended", "batch_id", batchID, "order_id", orderID, "new_end", newEnd)
	return newEnd, nil
}

// Rush converts a waiting order into an immediate solo delivery. Its former
// batch-mates keep waiting on their own deadline.
func (s *Service) Rush(ctx context.Context, orderID, userID string) (*models.Order, error) {
	o, err := s.ownedOrder(ctx, orderID, userID)
	if err != nil {
		return nil, err
	}
	if o.Status != models.StatusWaitingForBatch {
		return nil, ErrInvalidState
	}

	if o.BatchID != nil {
		release, err := s.Locks.Acquire(ctx, "batch:"+*o.BatchID)
		if err != nil {
			return nil, storageErr("acquire batch lock", err)
		}
		defer release()

		o, err = s.ownedOrder(ctx, orderID, userID)
		if err != nil {
			return nil, err
		}
		if o.Status != models.StatusWaitingForBatch {
			return nil, ErrInvalidState
		}
	}

	now := s.now()
	if err := s.Store.MarkRush(ctx, orderID, now, soloDeliveryFee); err != nil {
		return nil, storageErr("mark rush", err)
	}
	observability.RushConversions.Inc()

	updated, err := s.Store.FindOrder(ctx, orderID)
	if err != nil {
		return nil, storageErr("find order", err)
	}
	if updated == nil {
		return nil, ErrNotFound
	}

	s.publish(ctx, models.OrderEvent{
		Kind:         models.EventOrderRushed,
		OrderID:      orderID,
		UserID:       userID,
		RestaurantID: updated.RestaurantID,
		OccurredAt:   now,
	})
	s.log().Info("order rushed", "order_id", orderID, "user_id", userID)
	return updated, nil
}
