package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/roshanrateria/EcoRoute/internal/models"
)

// Store defines persistence operations for orders, users and restaurants.
// Lookups return (nil, nil) when the row does not exist; errors are reserved
// for the backend itself misbehaving.
type Store interface {
	FindOrder(ctx context.Context, id string) (*models.Order, error)
	FindOrdersByUser(ctx context.Context, userID string) ([]models.Order, error)
	FindOrdersByBatch(ctx context.Context, batchID string) ([]models.Order, error)
	// FindPoolCandidates returns orders at a restaurant in status
	// pending/preparing created at or after `since`, excluding one user.
	FindPoolCandidates(ctx context.Context, restaurantID string, since time.Time, excludeUserID string) ([]models.Order, error)
	// FindOpenBatchOrder returns any order at the restaurant still
	// waiting_for_batch with a batch id, or nil.
	FindOpenBatchOrder(ctx context.Context, restaurantID string) (*models.Order, error)
	CountWaitingByRestaurant(ctx context.Context) (map[string]int, error)

	InsertOrder(ctx context.Context, o *models.Order) error
	SetOrderStatus(ctx context.Context, id string, status models.Status) error
	// SetBatchWindow rewrites the deadline on every member of a batch.
	SetBatchWindow(ctx context.Context, batchID string, ends time.Time) error
	// SetOrderWindow rewrites the deadline on a single order.
	SetOrderWindow(ctx context.Context, id string, ends time.Time) error
	// MarkRush converts one waiting order to an immediate solo delivery.
	MarkRush(ctx context.Context, id string, dispatchedAt time.Time, deliveryFee float64) error
	// DispatchBatch moves every member still waiting_for_batch to preparing
	// with the given credit and dispatch time, in one conditional update.
	// Returns the number of rows moved.
	DispatchBatch(ctx context.Context, batchID string, co2Saved float64, dispatchedAt time.Time) (int, error)

	IncrementUserCounters(ctx context.Context, userID string, co2Delta float64, orderDelta int) error

	FindRestaurant(ctx context.Context, id string) (*models.Restaurant, error)
	ListRestaurants(ctx context.Context) ([]models.Restaurant, error)
}

// MemoryStore keeps everything in maps. Used by tests and store-less local
// runs; the Postgres store is the production implementation.
type MemoryStore struct {
	mu          sync.RWMutex
	orders      map[string]*models.Order
	users       map[string]*models.User
	restaurants map[string]*models.Restaurant
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		orders:      make(map[string]*models.Order),
		users:       make(map[string]*models.User),
		restaurants: make(map[string]*models.Restaurant),
	}
}

// SeedRestaurant registers a restaurant. Catalog writes are out of scope for
// the core, so this is a plain setter rather than part of Store.
func (m *MemoryStore) SeedRestaurant(r models.Restaurant) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.restaurants[r.ID] = &r
}

// SeedUser registers a user row for counter updates.
func (m *MemoryStore) SeedUser(u models.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = &u
}

// User returns a copy of a seeded user, for assertions in tests.
func (m *MemoryStore) User(id string) (models.User, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return models.User{}, false
	}
	return *u, true
}

func cloneOrder(o *models.Order) *models.Order {
	c := *o
	if o.BatchID != nil {
		v := *o.BatchID
		c.BatchID = &v
	}
	if o.BatchWindowEnds != nil {
		v := *o.BatchWindowEnds
		c.BatchWindowEnds = &v
	}
	if o.DispatchedAt != nil {
		v := *o.DispatchedAt
		c.DispatchedAt = &v
	}
	c.Items = append([]models.OrderItem(nil), o.Items...)
	return &c
}

func (m *MemoryStore) FindOrder(ctx context.Context, id string) (*models.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, nil
	}
	return cloneOrder(o), nil
}

func (m *MemoryStore) FindOrdersByUser(ctx context.Context, userID string) ([]models.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Order
	for _, o := range m.orders {
		if o.UserID == userID {
			out = append(out, *cloneOrder(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStore) FindOrdersByBatch(ctx context.Context, batchID string) ([]models.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Order
	for _, o := range m.orders {
		if o.BatchID != nil && *o.BatchID == batchID {
			out = append(out, *cloneOrder(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStore) FindPoolCandidates(ctx context.Context, restaurantID string, since time.Time, excludeUserID string) ([]models.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Order
	for _, o := range m.orders {
		if o.RestaurantID != restaurantID || o.UserID == excludeUserID {
			continue
		}
		if o.Status != models.StatusPending && o.Status != models.StatusPreparing {
			continue
		}
		if o.CreatedAt.Before(since) {
			continue
		}
		out = append(out, *cloneOrder(o))
	}
	return out, nil
}

func (m *MemoryStore) FindOpenBatchOrder(ctx context.Context, restaurantID string) (*models.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var oldest *models.Order
	for _, o := range m.orders {
		if o.RestaurantID != restaurantID || o.Status != models.StatusWaitingForBatch || o.BatchID == nil {
			continue
		}
		if oldest == nil || o.CreatedAt.Before(oldest.CreatedAt) {
			oldest = o
		}
	}
	if oldest == nil {
		return nil, nil
	}
	return cloneOrder(oldest), nil
}

func (m *MemoryStore) CountWaitingByRestaurant(ctx context.Context) (map[string]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	counts := make(map[string]int)
	for _, o := range m.orders {
		if o.Status == models.StatusWaitingForBatch {
			counts[o.RestaurantID]++
		}
	}
	return counts, nil
}

func (m *MemoryStore) InsertOrder(ctx context.Context, o *models.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[o.ID] = cloneOrder(o)
	return nil
}

func (m *MemoryStore) SetOrderStatus(ctx context.Context, id string, status models.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if o, ok := m.orders[id]; ok {
		o.Status = status
	}
	return nil
}

func (m *MemoryStore) SetBatchWindow(ctx context.Context, batchID string, ends time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orders {
		if o.BatchID != nil && *o.BatchID == batchID {
			e := ends
			o.BatchWindowEnds = &e
		}
	}
	return nil
}

func (m *MemoryStore) SetOrderWindow(ctx context.Context, id string, ends time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if o, ok := m.orders[id]; ok {
		e := ends
		o.BatchWindowEnds = &e
	}
	return nil
}

func (m *MemoryStore) MarkRush(ctx context.Context, id string, dispatchedAt time.Time, deliveryFee float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil
	}
	o.Status = models.StatusPreparing
	o.IsBatched = false
	o.BatchID = nil
	o.BatchWindowEnds = nil
	o.CO2Saved = 0
	o.DeliveryFee = deliveryFee
	d := dispatchedAt
	o.DispatchedAt = &d
	return nil
}

func (m *MemoryStore) DispatchBatch(ctx context.Context, batchID string, co2Saved float64, dispatchedAt time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	moved := 0
	for _, o := range m.orders {
		if o.BatchID == nil || *o.BatchID != batchID || o.Status != models.StatusWaitingForBatch {
			continue
		}
		o.Status = models.StatusPreparing
		o.CO2Saved = co2Saved
		d := dispatchedAt
		o.DispatchedAt = &d
		moved++
	}
	return moved, nil
}

func (m *MemoryStore) IncrementUserCounters(ctx context.Context, userID string, co2Delta float64, orderDelta int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		u = &models.User{ID: userID}
		m.users[userID] = u
	}
	u.TotalCO2Saved += co2Delta
	u.TotalOrders += orderDelta
	return nil
}

func (m *MemoryStore) FindRestaurant(ctx context.Context, id string) (*models.Restaurant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.restaurants[id]
	if !ok {
		return nil, nil
	}
	c := *r
	c.Menu = append([]models.MenuItem(nil), r.Menu...)
	return &c, nil
}

func (m *MemoryStore) ListRestaurants(ctx context.Context) ([]models.Restaurant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Restaurant, 0, len(m.restaurants))
	for _, r := range m.restaurants {
		c := *r
		c.Menu = append([]models.MenuItem(nil), r.Menu...)
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
