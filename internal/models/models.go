package models

import "time"

// Status is the order lifecycle stage. Orders only ever move forward.
type Status string

const (
	StatusWaitingForBatch Status = "waiting_for_batch"
	StatusPending         Status = "pending"
	StatusPreparing       Status = "preparing"
	StatusOutForDelivery  Status = "out_for_delivery"
	StatusDelivered       Status = "delivered"
)

// Rank orders statuses along the delivery timeline. waiting_for_batch and
// pending are both pre-kitchen stages and share the lowest rank.
func (s Status) Rank() int {
	switch s {
	case StatusWaitingForBatch, StatusPending:
		return 0
	case StatusPreparing:
		return 1
	case StatusOutForDelivery:
		return 2
	case StatusDelivered:
		return 3
	}
	return -1
}

type Coord struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type OrderItem struct {
	ItemID   string  `json:"item_id"`
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	Quantity int     `json:"quantity"`
}

type Order struct {
	ID             string      `json:"id"`
	UserID         string      `json:"user_id"`
	RestaurantID   string      `json:"restaurant_id"`
	RestaurantName string      `json:"restaurant_name"`
	Items          []OrderItem `json:"items"`
	TotalAmount    float64     `json:"total_amount"`
	DeliveryFee    float64     `json:"delivery_fee"`
	CO2Saved       float64     `json:"co2_saved"`
	Status         Status      `json:"status"`

	IsBatched       bool       `json:"is_batched"`
	BatchID         *string    `json:"batch_id,omitempty"`
	BatchWindowEnds *time.Time `json:"batch_window_ends,omitempty"`

	DeliveryAddress string  `json:"delivery_address"`
	DeliveryLat     float64 `json:"delivery_lat"`
	DeliveryLng     float64 `json:"delivery_lng"`

	CreatedAt         time.Time  `json:"created_at"`
	DispatchedAt      *time.Time `json:"dispatched_at,omitempty"`
	EstimatedDelivery time.Time  `json:"estimated_delivery"`
}

// DeliveryCoord returns the order's drop-off point.
func (o *Order) DeliveryCoord() Coord {
	return Coord{Lat: o.DeliveryLat, Lng: o.DeliveryLng}
}

type User struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	Name          string    `json:"name"`
	TotalCO2Saved float64   `json:"total_co2_saved"`
	TotalOrders   int       `json:"total_orders"`
	CreatedAt     time.Time `json:"created_at"`
}

type Restaurant struct {
	ID               string     `json:"id"`
	Name             string     `json:"name"`
	Description      string     `json:"description"`
	Cuisine          string     `json:"cuisine"`
	Rating           float64    `json:"rating"`
	EcoScore         string     `json:"eco_score"`
	Address          string     `json:"address"`
	Lat              float64    `json:"lat"`
	Lng              float64    `json:"lng"`
	DeliveryTimeMins int        `json:"delivery_time_mins"`
	AvgPrice         int        `json:"avg_price"`
	Menu             []MenuItem `json:"menu,omitempty"`
}

func (r *Restaurant) Coord() Coord { return Coord{Lat: r.Lat, Lng: r.Lng} }

type MenuItem struct {
	ID           string  `json:"id"`
	RestaurantID string  `json:"restaurant_id"`
	Name         string  `json:"name"`
	Description  string  `json:"description"`
	Price        float64 `json:"price"`
	Category     string  `json:"category"`
	IsVeg        bool    `json:"is_veg"`
	PrepTimeMins int     `json:"prep_time_mins"`
}

// BatchPreview is the answer to "would this order pool with anyone right now".
// The wait estimate is cosmetic; the batch id is the one a committed order
// would join (an existing open batch's id, else freshly minted).
type BatchPreview struct {
	Poolable          bool    `json:"is_batched"`
	BatchID           string  `json:"batch_id,omitempty"`
	OtherOrdersCount  int     `json:"other_orders_count"`
	EstimatedWaitMins int     `json:"estimated_wait_mins"`
	SavingsRupees     float64 `json:"savings_rupees"`
	CO2SavedGrams     float64 `json:"co2_saved_grams"`
}

// BatchMember is one order of a batch as exposed to tracking clients.
// Addresses of other users' orders are masked upstream.
type BatchMember struct {
	ID              string `json:"id"`
	DeliveryAddress string `json:"delivery_address"`
}

// BatchInfo describes an order still waiting inside its batch window.
type BatchInfo struct {
	BatchID              string        `json:"batch_id"`
	BatchSize            int           `json:"batch_size"`
	EstimatedCO2Saved    float64       `json:"estimated_co2_saved"`
	TimeRemainingSeconds float64       `json:"time_remaining_seconds"`
	BatchWindowEnds      time.Time     `json:"batch_window_ends"`
	Members              []BatchMember `json:"members"`
}

type Place struct {
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
	Name    string  `json:"name,omitempty"`
	Address string  `json:"address,omitempty"`
}

type DeliveryPoint struct {
	ID  string  `json:"id"`
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// TrackingSnapshot is the discriminated union returned by a tracking poll.
// BatchInfo is non-nil exactly while the order is waiting_for_batch.
type TrackingSnapshot struct {
	OrderID           string          `json:"order_id"`
	Status            Status          `json:"status"`
	Progress          float64         `json:"progress"`
	BatchInfo         *BatchInfo      `json:"batch_info,omitempty"`
	Restaurant        Place           `json:"restaurant"`
	Delivery          Place           `json:"delivery"`
	Rider             Coord           `json:"rider"`
	BatchedDeliveries []DeliveryPoint `json:"batched_deliveries"`
	EstimatedDelivery time.Time       `json:"estimated_delivery"`
	IsBatched         bool            `json:"is_batched"`
	CO2Saved          float64         `json:"co2_saved"`
}

// Order lifecycle event kinds published to Kafka.
const (
	EventOrderCreated    = "order.created"
	EventOrderRushed     = "order.rushed"
	EventBatchDispatched = "batch.dispatched"
)

// OrderEvent is the wire shape on the order-events topic. CO2Saved carries
// the per-order credit for dispatch events so downstream projections never
// need to re-derive it.
type OrderEvent struct {
	Kind         string    `json:"kind"`
	OrderID      string    `json:"order_id"`
	UserID       string    `json:"user_id"`
	RestaurantID string    `json:"restaurant_id"`
	BatchID      string    `json:"batch_id,omitempty"`
	BatchSize    int       `json:"batch_size,omitempty"`
	CO2Saved     float64   `json:"co2_saved"`
	OccurredAt   time.Time `json:"occurred_at"`
}
