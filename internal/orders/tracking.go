package orders

import (
	"context"
	"math"

	"github.com/roshanrateria/EcoRoute/internal/emissions"
	"github.com/roshanrateria/EcoRoute/internal/geo"
	"github.com/roshanrateria/EcoRoute/internal/models"
	"github.com/roshanrateria/EcoRoute/internal/observability"
)

const (
	soloTotalMins    = 30.0
	batchedTotalMins = 40.0

	preparingCutoff = 0.3
	deliveredCutoff = 0.9
)

// maskedAddress hides other users' drop-off addresses from batch-mates.
const maskedAddress = "Nearby"

// GetTracking projects the order's live state from the wall clock. This is
// the only driver of time-based transitions: an expired batch window is
// dispatched here, and delivery progress is promoted here. Polling is the
// scheduler.
func (s *Service) GetTracking(ctx context.Context, orderID, userID string) (*models.TrackingSnapshot, error) {
	o, err := s.ownedOrder(ctx, orderID, userID)
	if err != nil {
		return nil, err
	}
	r, err := s.Store.FindRestaurant(ctx, o.RestaurantID)
	if err != nil {
		return nil, storageErr("find restaurant", err)
	}
	if r == nil {
		return nil, ErrNotFound
	}

	if o.Status != models.StatusWaitingForBatch {
		return s.projectDelivery(ctx, o, r)
	}

	now := s.now()
	deadline, valid := resolveWindow(o.BatchWindowEnds, now)
	if !valid {
		if err := s.Store.SetOrderWindow(ctx, o.ID, deadline); err != nil {
			return nil, storageErr("repair batch window", err)
		}
		observability.WindowRepairs.Inc()
		o.BatchWindowEnds = &deadline
	}

	if !now.Before(deadline) {
		if o.BatchID != nil {
			release, err := s.Locks.Acquire(ctx, "batch:"+*o.BatchID)
			if err != nil {
				return nil, storageErr("acquire batch lock", err)
			}
			err = s.dispatchBatch(ctx, *o.BatchID)
			release()
			if err != nil {
				return nil, err
			}
		}
		// recurse on the refreshed row
		o, err = s.ownedOrder(ctx, orderID, userID)
		if err != nil {
			return nil, err
		}
		return s.projectDelivery(ctx, o, r)
	}

	var members []models.Order
	batchID := ""
	if o.BatchID != nil {
		batchID = *o.BatchID
		members, err = s.Store.FindOrdersByBatch(ctx, batchID)
		if err != nil {
			return nil, storageErr("find batch members", err)
		}
	}

	info := &models.BatchInfo{
		BatchID:              batchID,
		BatchSize:            len(members),
		EstimatedCO2Saved:    estimateBatchSavings(len(members)),
		TimeRemainingSeconds: math.Max(0, deadline.Sub(now).Seconds()),
		BatchWindowEnds:      deadline,
	}
	deliveries := make([]models.DeliveryPoint, 0, len(members))
	for _, m := range members {
		addr := m.DeliveryAddress
		if m.UserID != userID {
			addr = maskedAddress
		}
		info.Members = append(info.Members, models.BatchMember{ID: m.ID, DeliveryAddress: addr})
		deliveries = append(deliveries, models.DeliveryPoint{ID: m.ID, Lat: m.DeliveryLat, Lng: m.DeliveryLng})
	}

	return &models.TrackingSnapshot{
		OrderID:   o.ID,
		Status:    models.StatusWaitingForBatch,
		Progress:  0,
		BatchInfo: info,
		Restaurant: models.Place{
			Lat: r.Lat, Lng: r.Lng, Name: r.Name,
		},
		Delivery: models.Place{
			Lat: o.DeliveryLat, Lng: o.DeliveryLng, Address: o.DeliveryAddress,
		},
		Rider:             r.Coord(),
		BatchedDeliveries: deliveries,
		EstimatedDelivery: o.EstimatedDelivery,
		IsBatched:         true,
		CO2Saved:          o.CO2Saved,
	}, nil
}

// estimateBatchSavings uses the same floor as dispatch so the waiting-room
// estimate matches the eventual credit.
func estimateBatchSavings(size int) float64 {
	return emissions.SavedDispatch(size)
}

// projectDelivery is the post-dispatch projection: progress from elapsed
// time, status from progress, rider position interpolated toward the target.
func (s *Service) projectDelivery(ctx context.Context, o *models.Order, r *models.Restaurant) (*models.TrackingSnapshot, error) {
	now := s.now()
	start := o.CreatedAt
	if o.DispatchedAt != nil {
		start = *o.DispatchedAt
	}
	totalMins := soloTotalMins
	if o.IsBatched {
		totalMins = batchedTotalMins
	}
	elapsedMins := now.Sub(start).Minutes()
	progress := math.Min(elapsedMins/totalMins, 1.0)
	if progress < 0 {
		progress = 0
	}

	computed := models.StatusPreparing
	switch {
	case progress < preparingCutoff:
		computed = models.StatusPreparing
	case progress < deliveredCutoff:
		computed = models.StatusOutForDelivery
	default:
		computed = models.StatusDelivered
	}

	// advance only; never regress a stored status, never touch a waiting row
	effective := computed
	if o.Status.Rank() > computed.Rank() {
		effective = o.Status
	} else if computed != o.Status && o.Status != models.StatusWaitingForBatch {
		if err := s.Store.SetOrderStatus(ctx, o.ID, computed); err != nil {
			return nil, storageErr("advance order status", err)
		}
	}

	target := o.DeliveryCoord()
	var deliveries []models.DeliveryPoint
	if o.BatchID != nil {
		sibs, err := s.Store.FindOrdersByBatch(ctx, *o.BatchID)
		if err != nil {
			return nil, storageErr("find batch members", err)
		}
		coords := make([]models.Coord, 0, len(sibs))
		for _, m := range sibs {
			coords = append(coords, m.DeliveryCoord())
			deliveries = append(deliveries, models.DeliveryPoint{ID: m.ID, Lat: m.DeliveryLat, Lng: m.DeliveryLng})
		}
		if len(coords) > 0 {
			target = geo.Centroid(coords)
		}
	}
	rider := geo.Interpolate(r.Coord(), target, progress)

	return &models.TrackingSnapshot{
		OrderID:  o.ID,
		Status:   effective,
		Progress: progress,
		Restaurant: models.Place{
			Lat: r.Lat, Lng: r.Lng, Name: r.Name,
		},
		Delivery: models.Place{
			Lat: o.DeliveryLat, Lng: o.DeliveryLng, Address: o.DeliveryAddress,
		},
		Rider:             rider,
		BatchedDeliveries: deliveries,
		EstimatedDelivery: o.EstimatedDelivery,
		IsBatched:         o.IsBatched,
		CO2Saved:          o.CO2Saved,
	}, nil
}
