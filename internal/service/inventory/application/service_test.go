package application

import (
	"context"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"shopease/internal/service/inventory/domain"
	"shopease/internal/service/inventory/infrastructure"
)

func newTestService(t *testing.T) (*InventoryService, *infrastructure.MemoryRepository) {
	t.Helper()
	repo := infrastructure.NewMemoryRepository(domain.DefaultLowStockThreshold)
	tracer := noop.NewTracerProvider().Tracer("test")
	return NewInventoryService(repo, tracer), repo
}

func seed(t *testing.T, svc *InventoryService, productID string, quantity int) {
	t.Helper()
	require.NoError(t, svc.Restock(context.Background(), productID, quantity))
}

func TestCheckStock(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	seed(t, svc, "p-1", 20)

	results, err := svc.CheckStock(ctx, []StockCheckRequest{
		{ProductID: "p-1", Quantity: 5},
		{ProductID: "p-1", Quantity: 25},
	})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.True(t, results[0].InStock)
	assert.Equal(t, 20, results[0].AvailableQuantity)
	assert.False(t, results[1].InStock)

	// 重复查询不改变任何状态
	again, err := svc.CheckStock(ctx, []StockCheckRequest{{ProductID: "p-1", Quantity: 5}})
	require.NoError(t, err)
	assert.Equal(t, 20, again[0].AvailableQuantity)
}

func TestCheckStockUnknownProduct(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.CheckStock(context.Background(), []StockCheckRequest{{ProductID: "ghost", Quantity: 1}})
	assert.ErrorIs(t, err, domain.ErrRecordNotFound)
}

func TestReserveThenConfirmLifecycle(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	seed(t, svc, "p-1", 20)

	reservationID, err := svc.ReserveStock(ctx, "key-1", []domain.ReservationItem{{ProductID: "p-1", Quantity: 3}})
	require.NoError(t, err)
	assert.NotEmpty(t, reservationID)

	view, err := svc.GetInventory(ctx, "p-1")
	require.NoError(t, err)
	assert.Equal(t, 20, view.Quantity)
	assert.Equal(t, 3, view.ReservedQuantity)
	assert.Equal(t, 17, view.AvailableQuantity)

	require.NoError(t, svc.ConfirmDeduction(ctx, "p-1", 3))

	view, err = svc.GetInventory(ctx, "p-1")
	require.NoError(t, err)
	assert.Equal(t, 17, view.Quantity)
	assert.Equal(t, 0, view.ReservedQuantity)
	assert.Equal(t, 17, view.AvailableQuantity)
}

func TestReserveThenReleaseRestoresAvailability(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	seed(t, svc, "p-1", 10)

	_, err := svc.ReserveStock(ctx, "key-1", []domain.ReservationItem{{ProductID: "p-1", Quantity: 4}})
	require.NoError(t, err)
	require.NoError(t, svc.ReleaseStock(ctx, "p-1", 4))

	view, err := svc.GetInventory(ctx, "p-1")
	require.NoError(t, err)
	assert.Equal(t, 10, view.Quantity)
	assert.Equal(t, 0, view.ReservedQuantity)
	assert.Equal(t, 10, view.AvailableQuantity)
}

func TestReserveInsufficientStock(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	seed(t, svc, "p-1", 2)

	_, err := svc.ReserveStock(ctx, "key-1", []domain.ReservationItem{{ProductID: "p-1", Quantity: 3}})
	assert.ErrorIs(t, err, domain.ErrInsufficientStock)

	view, err := svc.GetInventory(ctx, "p-1")
	require.NoError(t, err)
	assert.Equal(t, 0, view.ReservedQuantity)
}

func TestReserveAllOrNothing(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	seed(t, svc, "p-1", 10)
	seed(t, svc, "p-2", 1)

	// p-2 不足，p-1 也不能被占用
	_, err := svc.ReserveStock(ctx, "key-1", []domain.ReservationItem{
		{ProductID: "p-1", Quantity: 5},
		{ProductID: "p-2", Quantity: 2},
	})
	require.ErrorIs(t, err, domain.ErrInsufficientStock)

	for _, id := range []string{"p-1", "p-2"} {
		view, err := svc.GetInventory(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, 0, view.ReservedQuantity, "product %s must be untouched", id)
	}
}

func TestReserveMergesDuplicateLines(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	seed(t, svc, "p-1", 10)

	_, err := svc.ReserveStock(ctx, "key-1", []domain.ReservationItem{
		{ProductID: "p-1", Quantity: 2},
		{ProductID: "p-1", Quantity: 3},
	})
	require.NoError(t, err)

	view, err := svc.GetInventory(ctx, "p-1")
	require.NoError(t, err)
	assert.Equal(t, 5, view.ReservedQuantity)
}

func TestReserveIdempotentReplay(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	seed(t, svc, "p-1", 10)

	items := []domain.ReservationItem{{ProductID: "p-1", Quantity: 4}}
	first, err := svc.ReserveStock(ctx, "retry-key", items)
	require.NoError(t, err)

	// 同一幂等键重放：返回同一句柄，库存不再次被占用
	second, err := svc.ReserveStock(ctx, "retry-key", items)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	view, err := svc.GetInventory(ctx, "p-1")
	require.NoError(t, err)
	assert.Equal(t, 4, view.ReservedQuantity)
}

func TestReserveInvalidQuantity(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	seed(t, svc, "p-1", 10)

	_, err := svc.ReserveStock(ctx, "k", []domain.ReservationItem{{ProductID: "p-1", Quantity: 0}})
	assert.ErrorIs(t, err, domain.ErrInvalidQuantity)

	_, err = svc.ReserveStock(ctx, "k", nil)
	assert.ErrorIs(t, err, domain.ErrInvalidQuantity)
}

func TestReleaseClampedEmitsWarningSignal(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	seed(t, svc, "p-clamp", 10)

	_, err := svc.ReserveStock(ctx, "key-1", []domain.ReservationItem{{ProductID: "p-clamp", Quantity: 2}})
	require.NoError(t, err)

	before := testutil.ToFloat64(overReleaseTotal.WithLabelValues("p-clamp"))
	require.NoError(t, svc.ReleaseStock(ctx, "p-clamp", 5))
	after := testutil.ToFloat64(overReleaseTotal.WithLabelValues("p-clamp"))
	assert.Equal(t, before+1, after)

	// 预占被钳制归零，在库量不受影响
	view, err := svc.GetInventory(ctx, "p-clamp")
	require.NoError(t, err)
	assert.Equal(t, 0, view.ReservedQuantity)
	assert.Equal(t, 10, view.Quantity)
}

func TestConfirmDeductionLowStockSignal(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	seed(t, svc, "p-low", 12)

	_, err := svc.ReserveStock(ctx, "key-1", []domain.ReservationItem{{ProductID: "p-low", Quantity: 5}})
	require.NoError(t, err)

	before := testutil.ToFloat64(lowStockTotal.WithLabelValues("p-low"))
	require.NoError(t, svc.ConfirmDeduction(ctx, "p-low", 5))
	after := testutil.ToFloat64(lowStockTotal.WithLabelValues("p-low"))

	// 12 - 5 = 7 <= 10，触发低库存信号
	assert.Equal(t, before+1, after)
}

func TestConfirmDeductionWithoutReservation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	seed(t, svc, "p-1", 10)

	err := svc.ConfirmDeduction(ctx, "p-1", 1)
	assert.ErrorIs(t, err, domain.ErrInsufficientStock)
}

func TestRestockCreatesRecordImplicitly(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.Restock(ctx, "brand-new", 30))

	view, err := svc.GetInventory(ctx, "brand-new")
	require.NoError(t, err)
	assert.Equal(t, 30, view.Quantity)
	assert.NotNil(t, view.LastRestockedAt)
}

func TestProvisionProduct(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.ProvisionProduct(ctx, "p-new"))

	view, err := svc.GetInventory(ctx, "p-new")
	require.NoError(t, err)
	assert.Equal(t, 0, view.Quantity)
	assert.Equal(t, 0, view.ReservedQuantity)

	// 已有库存的商品重复建档不得清零
	seed(t, svc, "p-new", 5)
	require.NoError(t, svc.ProvisionProduct(ctx, "p-new"))
	view, err = svc.GetInventory(ctx, "p-new")
	require.NoError(t, err)
	assert.Equal(t, 5, view.Quantity)
}

func TestConcurrentReservesNeverOversell(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	seed(t, svc, "p-hot", 10)

	const attempts = 50
	var wg sync.WaitGroup
	successes := make(chan struct{}, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.ReserveStock(ctx, "", []domain.ReservationItem{{ProductID: "p-hot", Quantity: 1}}); err == nil {
				successes <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(successes)

	assert.Equal(t, 10, len(successes))
	view, err := svc.GetInventory(ctx, "p-hot")
	require.NoError(t, err)
	assert.Equal(t, 10, view.ReservedQuantity)
	assert.Equal(t, 0, view.AvailableQuantity)
}
