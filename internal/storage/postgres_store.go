package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/roshanrateria/EcoRoute/internal/models"
)

// PostgresStore implements Store over database/sql with raw queries.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	// quick ping
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

// DB exposes the underlying handle for migrations.
func (p *PostgresStore) DB() *sql.DB { return p.db }

const orderColumns = `id, user_id, restaurant_id, restaurant_name, items, total_amount,
	delivery_fee, co2_saved, status, is_batched, batch_id, batch_window_ends,
	delivery_address, delivery_lat, delivery_lng, created_at, dispatched_at, estimated_delivery`

func scanOrder(row interface{ Scan(...any) error }) (*models.Order, error) {
	var (
		o         models.Order
		itemsRaw  []byte
		batchID   sql.NullString
		windowEnd sql.NullTime
		dispatch  sql.NullTime
	)
	err := row.Scan(&o.ID, &o.UserID, &o.RestaurantID, &o.RestaurantName, &itemsRaw,
		&o.TotalAmount, &o.DeliveryFee, &o.CO2Saved, &o.Status, &o.IsBatched,
		&batchID, &windowEnd, &o.DeliveryAddress, &o.DeliveryLat, &o.DeliveryLng,
		&o.CreatedAt, &dispatch, &o.EstimatedDelivery)
	if err != nil {
		return nil, err
	}
	if len(itemsRaw) > 0 {
		if err := json.Unmarshal(itemsRaw, &o.Items); err != nil {
			return nil, fmt.Errorf("decode order items: %w", err)
		}
	}
	if batchID.Valid {
		o.BatchID = &batchID.String
	}
	if windowEnd.Valid {
		o.BatchWindowEnds = &windowEnd.Time
	}
	if dispatch.Valid {
		o.DispatchedAt = &dispatch.Time
	}
	return &o, nil
}

func (p *PostgresStore) queryOrders(ctx context.Context, query string, args ...any) ([]models.Order, error) {
	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *o)
	}
	return out, rows.Err()
}

func (p *PostgresStore) FindOrder(ctx context.Context, id string) (*models.Order, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1`, id)
	o, err := scanOrder(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return o, err
}

func (p *PostgresStore) FindOrdersByUser(ctx context.Context, userID string) ([]models.Order, error) {
	return p.queryOrders(ctx, `SELECT `+orderColumns+` FROM orders WHERE user_id=$1 ORDER BY created_at DESC`, userID)
}

func (p *PostgresStore) FindOrdersByBatch(ctx context.Context, batchID string) ([]models.Order, error) {
	return p.queryOrders(ctx, `SELECT `+orderColumns+` FROM orders WHERE batch_id=$1 ORDER BY created_at`, batchID)
}

func (p *PostgresStore) FindPoolCandidates(ctx context.Context, restaurantID string, since time.Time, excludeUserID string) ([]models.Order, error) {
	return p.queryOrders(ctx, `SELECT `+orderColumns+` FROM orders
		WHERE restaurant_id=$1 AND status IN ('pending','preparing') AND created_at >= $2 AND user_id != $3`,
		restaurantID, since, excludeUserID)
}

func (p *PostgresStore) FindOpenBatchOrder(ctx context.Context, restaurantID string) (*models.Order, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders
		WHERE restaurant_id=$1 AND status='waiting_for_batch' AND batch_id IS NOT NULL
		ORDER BY created_at LIMIT 1`, restaurantID)
	o, err := scanOrder(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return o, err
}

func (p *PostgresStore) CountWaitingByRestaurant(ctx context.Context) (map[string]int, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT restaurant_id, COUNT(*) FROM orders
		WHERE status='waiting_for_batch' GROUP BY restaurant_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	counts := make(map[string]int)
	for rows.Next() {
		var id string
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, err
		}
		counts[id] = n
	}
	return counts, rows.Err()
}

func (p *PostgresStore) InsertOrder(ctx context.Context, o *models.Order) error {
	items, err := json.Marshal(o.Items)
	if err != nil {
		return fmt.Errorf("encode order items: %w", err)
	}
	_, err = p.db.ExecContext(ctx, `INSERT INTO orders(`+orderColumns+`)
		VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)`,
		o.ID, o.UserID, o.RestaurantID, o.RestaurantName, items, o.TotalAmount,
		o.DeliveryFee, o.CO2Saved, o.Status, o.IsBatched, o.BatchID, o.BatchWindowEnds,
		o.DeliveryAddress, o.DeliveryLat, o.DeliveryLng, o.CreatedAt, o.DispatchedAt, o.EstimatedDelivery)
	return err
}

func (p *PostgresStore) SetOrderStatus(ctx context.Context, id string, status models.Status) error {
	_, err := p.db.ExecContext(ctx, `UPDATE orders SET status=$1 WHERE id=$2`, status, id)
	return err
}

func (p *PostgresStore) SetBatchWindow(ctx context.Context, batchID string, ends time.Time) error {
	_, err := p.db.ExecContext(ctx, `UPDATE orders SET batch_window_ends=$1 WHERE batch_id=$2`, ends, batchID)
	return err
}

func (p *PostgresStore) SetOrderWindow(ctx context.Context, id string, ends time.Time) error {
	_, err := p.db.ExecContext(ctx, `UPDATE orders SET batch_window_ends=$1 WHERE id=$2`, ends, id)
	return err
}

func (p *PostgresStore) MarkRush(ctx context.Context, id string, dispatchedAt time.Time, deliveryFee float64) error {
	_, err := p.db.ExecContext(ctx, `UPDATE orders SET status='preparing', is_batched=false,
		batch_id=NULL, batch_window_ends=NULL, co2_saved=0, dispatched_at=$1, delivery_fee=$2
		WHERE id=$3`, dispatchedAt, deliveryFee, id)
	return err
}

func (p *PostgresStore) DispatchBatch(ctx context.Context, batchID string, co2Saved float64, dispatchedAt time.Time) (int, error) {
	res, err := p.db.ExecContext(ctx, `UPDATE orders SET status='preparing', co2_saved=$1, dispatched_at=$2
		WHERE batch_id=$3 AND status='waiting_for_batch'`, co2Saved, dispatchedAt, batchID)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (p *PostgresStore) IncrementUserCounters(ctx context.Context, userID string, co2Delta float64, orderDelta int) error {
	_, err := p.db.ExecContext(ctx, `UPDATE users SET total_co2_saved = total_co2_saved + $1,
		total_orders = total_orders + $2 WHERE id=$3`, co2Delta, orderDelta, userID)
	return err
}

func (p *PostgresStore) FindRestaurant(ctx context.Context, id string) (*models.Restaurant, error) {
	row := p.db.QueryRowContext(ctx, `SELECT id, name, description, cuisine, rating, eco_score,
		address, lat, lng, delivery_time_mins, avg_price FROM restaurants WHERE id=$1`, id)
	var r models.Restaurant
	err := row.Scan(&r.ID, &r.Name, &r.Description, &r.Cuisine, &r.Rating, &r.EcoScore,
		&r.Address, &r.Lat, &r.Lng, &r.DeliveryTimeMins, &r.AvgPrice)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	menu, err := p.menuFor(ctx, id)
	if err != nil {
		return nil, err
	}
	r.Menu = menu
	return &r, nil
}

func (p *PostgresStore) ListRestaurants(ctx context.Context) ([]models.Restaurant, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id, name, description, cuisine, rating, eco_score,
		address, lat, lng, delivery_time_mins, avg_price FROM restaurants ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.Restaurant
	for rows.Next() {
		var r models.Restaurant
		if err := rows.Scan(&r.ID, &r.Name, &r.Description, &r.Cuisine, &r.Rating, &r.EcoScore,
			&r.Address, &r.Lat, &r.Lng, &r.DeliveryTimeMins, &r.AvgPrice); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		menu, err := p.menuFor(ctx, out[i].ID)
		if err != nil {
			return nil, err
		}
		out[i].Menu = menu
	}
	return out, nil
}

func (p *PostgresStore) menuFor(ctx context.Context, restaurantID string) ([]models.MenuItem, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id, restaurant_id, name, description, price,
		category, is_veg, prep_time_mins FROM menu_items WHERE restaurant_id=$1`, restaurantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.MenuItem
	for rows.Next() {
		var m models.MenuItem
		if err := rows.Scan(&m.ID, &m.RestaurantID, &m.Name, &m.Description, &m.Price,
			&m.Category, &m.IsVeg, &m.PrepTimeMins); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
