package orders_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roshanrateria/EcoRoute/internal/models"
	"github.com/roshanrateria/EcoRoute/internal/orders"
)

func TestPreviewBatchNoCandidates(t *testing.T) {
	f := newFixture(t)
	lat, lng := nearCoord(100)

	p, err := f.svc.PreviewBatch(context.Background(), "r1", lat, lng, "u1")
	require.NoError(t, err)
	assert.False(t, p.Poolable)
	assert.Zero(t, p.OtherOrdersCount)
}

func TestPreviewBatchMissingRestaurant(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.PreviewBatch(context.Background(), "nope", restLat, restLng, "u1")
	assert.ErrorIs(t, err, orders.ErrNotFound)
}

func TestPreviewBatchFiltersCandidates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	nearLat, nearLng := nearCoord(200)
	farLat, farLng := nearCoord(900)

	// pending order from another user, 200m away: counts
	require.NoError(t, f.store.InsertOrder(ctx, &models.Order{
		ID: "o-near", UserID: "u2", RestaurantID: "r1",
		Status: models.StatusPending, DeliveryLat: nearLat, DeliveryLng: nearLng,
		CreatedAt: testBase.Add(-2 * time.Minute),
	}))
	// same user: excluded
	require.NoError(t, f.store.InsertOrder(ctx, &models.Order{
		ID: "o-mine", UserID: "u1", RestaurantID: "r1",
		Status: models.StatusPending, DeliveryLat: nearLat, DeliveryLng: nearLng,
		CreatedAt: testBase.Add(-2 * time.Minute),
	}))
	// outside the 500m pool radius: excluded
	require.NoError(t, f.store.InsertOrder(ctx, &models.Order{
		ID: "o-far", UserID: "u2", RestaurantID: "r1",
		Status: models.StatusPending, DeliveryLat: farLat, DeliveryLng: farLng,
		CreatedAt: testBase.Add(-2 * time.Minute),
	}))
	// older than the 15 minute lookback: excluded
	require.NoError(t, f.store.InsertOrder(ctx, &models.Order{
		ID: "o-stale", UserID: "u2", RestaurantID: "r1",
		Status: models.StatusPending, DeliveryLat: nearLat, DeliveryLng: nearLng,
		CreatedAt: testBase.Add(-20 * time.Minute),
	}))
	// already delivered: excluded
	require.NoError(t, f.store.InsertOrder(ctx, &models.Order{
		ID: "o-done", UserID: "u2", RestaurantID: "r1",
		Status: models.StatusDelivered, DeliveryLat: nearLat, DeliveryLng: nearLng,
		CreatedAt: testBase.Add(-2 * time.Minute),
	}))

	p, err := f.svc.PreviewBatch(ctx, "r1", nearLat, nearLng, "u1")
	require.NoError(t, err)
	assert.True(t, p.Poolable)
	assert.Equal(t, 1, p.OtherOrdersCount)
	assert.NotEmpty(t, p.BatchID)
	assert.InDelta(t, 142.5, p.CO2SavedGrams, 1e-9)
	assert.InDelta(t, 20.0, p.SavingsRupees, 1e-9)
	assert.GreaterOrEqual(t, p.EstimatedWaitMins, 10)
	assert.LessOrEqual(t, p.EstimatedWaitMins, 15)
}

func TestCreateSoloOrder(t *testing.T) {
	f := newFixture(t)
	lat, lng := nearCoord(100)

	o, err := f.svc.CreateOrder(context.Background(), "u1", "r1", items(), "12 MG Road", lat, lng, false)
	require.NoError(t, err)

	assert.Equal(t, models.StatusPending, o.Status)
	assert.False(t, o.IsBatched)
	assert.Nil(t, o.BatchID)
	assert.InDelta(t, 40.0, o.DeliveryFee, 1e-9)
	assert.InDelta(t, 300.0, o.TotalAmount, 1e-9) // 2*120 + 60
	require.NotNil(t, o.DispatchedAt)
	assert.True(t, o.DispatchedAt.Equal(o.CreatedAt), "solo orders dispatch immediately")
	assert.True(t, o.EstimatedDelivery.Equal(testBase.Add(30*time.Minute)))

	u, ok := f.store.User("u1")
	require.True(t, ok)
	assert.Equal(t, 1, u.TotalOrders)

	require.Len(t, f.events.byKind(models.EventOrderCreated), 1)
}

func TestCreateBatchedOpensWindow(t *testing.T) {
	f := newFixture(t)
	lat, lng := nearCoord(100)

	o, err := f.svc.CreateOrder(context.Background(), "u1", "r1", items(), "12 MG Road", lat, lng, true)
	require.NoError(t, err)

	assert.Equal(t, models.StatusWaitingForBatch, o.Status)
	assert.True(t, o.IsBatched)
	require.NotNil(t, o.BatchID)
	require.NotNil(t, o.BatchWindowEnds)
	assert.True(t, o.BatchWindowEnds.Equal(testBase.Add(5*time.Minute)))
	assert.Nil(t, o.DispatchedAt)
	assert.InDelta(t, 20.0, o.DeliveryFee, 1e-9)
	// 30 base + 10 batched + 5 buffer
	assert.True(t, o.EstimatedDelivery.Equal(testBase.Add(45*time.Minute)))
}

func TestCreateBatchedJoinsOpenBatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	lat, lng := nearCoord(100)

	o1, err := f.svc.CreateOrder(ctx, "u1", "r1", items(), "12 MG Road", lat, lng, true)
	require.NoError(t, err)

	f.clock.Advance(2 * time.Minute)
	o2, err := f.svc.CreateOrder(ctx, "u2", "r1", items(), "14 MG Road", lat, lng, true)
	require.NoError(t, err)

	require.NotNil(t, o2.BatchID)
	assert.Equal(t, *o1.BatchID, *o2.BatchID, "second order joins the open batch")
	require.NotNil(t, o2.BatchWindowEnds)
	assert.True(t, o2.BatchWindowEnds.Equal(*o1.BatchWindowEnds), "joining must not reset the deadline")

	counts, err := f.svc.BatchCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, counts["r1"])
}

func TestCreateJoinRepairsMissingWindow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	lat, lng := nearCoord(100)

	// legacy row: waiting with a batch id but no deadline
	batchID := "b-legacy"
	require.NoError(t, f.store.InsertOrder(ctx, &models.Order{
		ID: "o-legacy", UserID: "u2", RestaurantID: "r1",
		Status: models.StatusWaitingForBatch, IsBatched: true, BatchID: &batchID,
		DeliveryLat: lat, DeliveryLng: lng,
		CreatedAt: testBase.Add(-time.Minute),
	}))

	o, err := f.svc.CreateOrder(ctx, "u1", "r1", items(), "12 MG Road", lat, lng, true)
	require.NoError(t, err)

	require.NotNil(t, o.BatchID)
	assert.Equal(t, batchID, *o.BatchID)
	require.NotNil(t, o.BatchWindowEnds)
	assert.True(t, o.BatchWindowEnds.Equal(testBase.Add(5*time.Minute)))

	legacy, err := f.store.FindOrder(ctx, "o-legacy")
	require.NoError(t, err)
	require.NotNil(t, legacy.BatchWindowEnds, "repair must be persisted onto existing members")
	assert.True(t, legacy.BatchWindowEnds.Equal(testBase.Add(5*time.Minute)))
}

func TestExtendBatchMovesSharedDeadline(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	lat, lng := nearCoord(100)

	o1, err := f.svc.CreateOrder(ctx, "u1", "r1", items(), "12 MG Road", lat, lng, true)
	require.NoError(t, err)
	o2, err := f.svc.CreateOrder(ctx, "u2", "r1", items(), "14 MG Road", lat, lng, true)
	require.NoError(t, err)

	f.clock.Advance(4 * time.Minute)
	newEnd, err := f.svc.ExtendBatch(ctx, o1.ID, "u1")
	require.NoError(t, err)
	assert.True(t, newEnd.Equal(testBase.Add(8*time.Minute)), "extension is +3m over the current deadline")

	// the deadline is shared: the other member sees it too
	got2, err := f.store.FindOrder(ctx, o2.ID)
	require.NoError(t, err)
	require.NotNil(t, got2.BatchWindowEnds)
	assert.True(t, got2.BatchWindowEnds.Equal(newEnd))
}

func TestExtendBatchRejectsNonWaitingOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	lat, lng := nearCoord(100)

	solo, err := f.svc.CreateOrder(ctx, "u1", "r1", items(), "12 MG Road", lat, lng, false)
	require.NoError(t, err)

	_, err = f.svc.ExtendBatch(ctx, solo.ID, "u1")
	assert.ErrorIs(t, err, orders.ErrInvalidState)
}

func TestExtendBatchForeignOrderLooksMissing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	lat, lng := nearCoord(100)

	o, err := f.svc.CreateOrder(ctx, "u1", "r1", items(), "12 MG Road", lat, lng, true)
	require.NoError(t, err)

	_, err = f.svc.ExtendBatch(ctx, o.ID, "u2")
	assert.ErrorIs(t, err, orders.ErrNotFound)
}

func TestRushLeavesBatchmatesWaiting(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	lat, lng := nearCoord(100)

	o1, err := f.svc.CreateOrder(ctx, "u1", "r1", items(), "12 MG Road", lat, lng, true)
	require.NoError(t, err)
	o2, err := f.svc.CreateOrder(ctx, "u2", "r1", items(), "14 MG Road", lat, lng, true)
	require.NoError(t, err)

	f.clock.Advance(3 * time.Minute)
	rushed, err := f.svc.Rush(ctx, o2.ID, "u2")
	require.NoError(t, err)

	assert.Equal(t, models.StatusPreparing, rushed.Status)
	assert.False(t, rushed.IsBatched)
	assert.Nil(t, rushed.BatchID)
	assert.Nil(t, rushed.BatchWindowEnds)
	assert.InDelta(t, 40.0, rushed.DeliveryFee, 1e-9, "rushing forfeits the batched fee")
	require.NotNil(t, rushed.DispatchedAt)
	assert.True(t, rushed.DispatchedAt.Equal(testBase.Add(3*time.Minute)))
	require.Len(t, f.events.byKind(models.EventOrderRushed), 1)

	// the batch-mate is untouched
	got1, err := f.store.FindOrder(ctx, o1.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusWaitingForBatch, got1.Status)
	require.NotNil(t, got1.BatchWindowEnds)
	assert.True(t, got1.BatchWindowEnds.Equal(testBase.Add(5*time.Minute)))

	_, err = f.svc.Rush(ctx, o2.ID, "u2")
	assert.ErrorIs(t, err, orders.ErrInvalidState, "an order can only be rushed once")
}
