// Package orders is the batching and dispatch coordinator: it decides
// whether a new order waits to share a trip, owns the batch window lifecycle,
// fires the dispatch when a window elapses, and projects delivery progress.
// All time-based transitions are evaluated lazily on reads; there is no
// internal scheduler, so an order nobody observes never advances.
package orders

import (
	"context"
	"log/slog"
	"time"

	"github.com/roshanrateria/EcoRoute/internal/locks"
	"github.com/roshanrateria/EcoRoute/internal/models"
	"github.com/roshanrateria/EcoRoute/internal/storage"
)

const (
	batchWindow    = 5 * time.Minute
	batchExtension = 3 * time.Minute
	poolLookback   = 15 * time.Minute

	soloDeliveryFee    = 40.0
	batchedDeliveryFee = 20.0

	defaultDeliveryMins = 30
	// pooled orders wait on the window, plus a fixed buffer on top
	batchedExtraMins  = 10
	batchedBufferMins = 5
)

// EventPublisher emits order lifecycle events. Publishing is best-effort:
// a failed publish is logged, never surfaced to the caller.
type EventPublisher interface {
	Publish(ctx context.Context, ev models.OrderEvent) error
}

// Notifier pushes dispatch notices to users whose waiting orders just left
// the window. Best-effort as well.
type Notifier interface {
	OrderDispatched(userID string, o models.Order)
}

type Service struct {
	Store  storage.Store
	Locks  locks.Locker
	Events EventPublisher // optional
	Notify Notifier       // optional
	Log    *slog.Logger   // optional

	// Now is overridable in tests; defaults to time.Now.
	Now func() time.Time
}

func NewService(store storage.Store, locker locks.Locker) *Service {
	return &Service{Store: store, Locks: locker}
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Service) log() *slog.Logger {
	if s.Log != nil {
		return s.Log
	}
	return slog.Default()
}

func (s *Service) publish(ctx context.Context, ev models.OrderEvent) {
	if s.Events == nil {
		return
	}
	if err := s.Events.Publish(ctx, ev); err != nil {
		s.log().Warn("event publish failed", "kind", ev.Kind, "order_id", ev.OrderID, "error", err)
	}
}

// ownedOrder fetches an order and enforces ownership. A foreign order is
// reported exactly like a missing one.
func (s *Service) ownedOrder(ctx context.Context, orderID, userID string) (*models.Order, error) {
	o, err := s.Store.FindOrder(ctx, orderID)
	if err != nil {
		return nil, storageErr("find order", err)
	}
	if o == nil || o.UserID != userID {
		return nil, ErrNotFound
	}
	return o, nil
}

// GetOrder returns one of the caller's orders.
func (s *Service) GetOrder(ctx context.Context, orderID, userID string) (*models.Order, error) {
	return s.ownedOrder(ctx, orderID, userID)
}

// ListOrders returns the caller's order history, newest first.
func (s *Service) ListOrders(ctx context.Context, userID string) ([]models.Order, error) {
	out, err := s.Store.FindOrdersByUser(ctx, userID)
	if err != nil {
		return nil, storageErr("list orders", err)
	}
	return out, nil
}

// BatchCounts reports open waiting_for_batch orders per restaurant, used by
// clients to hint where pooling is likely.
func (s *Service) BatchCounts(ctx context.Context) (map[string]int, error) {
	counts, err := s.Store.CountWaitingByRestaurant(ctx)
	if err != nil {
		return nil, storageErr("count waiting orders", err)
	}
	return counts, nil
}

// Restaurant returns one restaurant with its menu.
func (s *Service) Restaurant(ctx context.Context, id string) (*models.Restaurant, error) {
	r, err := s.Store.FindRestaurant(ctx, id)
	if err != nil {
		return nil, storageErr("find restaurant", err)
	}
	if r == nil {
		return nil, ErrNotFound
	}
	return r, nil
}

// Restaurants lists the catalog.
func (s *Service) Restaurants(ctx context.Context) ([]models.Restaurant, error) {
	out, err := s.Store.ListRestaurants(ctx)
	if err != nil {
		return nil, storageErr("list restaurants", err)
	}
	return out, nil
}
