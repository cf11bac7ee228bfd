package orders_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/roshanrateria/EcoRoute/internal/locks"
	"github.com/roshanrateria/EcoRoute/internal/models"
	"github.com/roshanrateria/EcoRoute/internal/orders"
	"github.com/roshanrateria/EcoRoute/internal/storage"
)

var testBase = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

// fakeClock lets tests move wall-clock time by hand.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

type eventRecorder struct {
	mu  sync.Mutex
	evs []models.OrderEvent
}

func (e *eventRecorder) Publish(ctx context.Context, ev models.OrderEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.evs = append(e.evs, ev)
	return nil
}

func (e *eventRecorder) byKind(kind string) []models.OrderEvent {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []models.OrderEvent
	for _, ev := range e.evs {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

type noticeRecorder struct {
	mu      sync.Mutex
	notices []models.Order
}

func (n *noticeRecorder) OrderDispatched(userID string, o models.Order) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, o)
}

func (n *noticeRecorder) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.notices)
}

type fixture struct {
	svc    *orders.Service
	store  *storage.MemoryStore
	clock  *fakeClock
	events *eventRecorder
	notify *noticeRecorder
}

// restaurant r1 sits at Bangalore city center with a 30 minute window.
const (
	restLat = 12.9716
	restLng = 77.5946
)

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := storage.NewMemoryStore()
	store.SeedRestaurant(models.Restaurant{
		ID: "r1", Name: "Green Bowl", Lat: restLat, Lng: restLng, DeliveryTimeMins: 30,
	})
	store.SeedRestaurant(models.Restaurant{
		ID: "r2", Name: "Slow Curry", Lat: restLat + 0.05, Lng: restLng, DeliveryTimeMins: 45,
	})
	store.SeedUser(models.User{ID: "u1", Name: "Asha"})
	store.SeedUser(models.User{ID: "u2", Name: "Ravi"})

	clock := &fakeClock{t: testBase}
	events := &eventRecorder{}
	notices := &noticeRecorder{}

	svc := orders.NewService(store, locks.NewKeyedMutex())
	svc.Now = clock.Now
	svc.Events = events
	svc.Notify = notices
	return &fixture{svc: svc, store: store, clock: clock, events: events, notify: notices}
}

// nearCoord returns a point roughly `meters` north of the restaurant.
func nearCoord(meters float64) (float64, float64) {
	return restLat + meters/111195.0, restLng
}

func items() []models.OrderItem {
	return []models.OrderItem{
		{ItemID: "m1", Name: "Veg Thali", Price: 120, Quantity: 2},
		{ItemID: "m2", Name: "Lassi", Price: 60, Quantity: 1},
	}
}
