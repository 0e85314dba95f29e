package application

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"shopease/internal/pkg/resilience"
	"shopease/internal/service/order/domain"
	"shopease/internal/service/order/port"
)

// ---- 测试替身 ----

type fakeRepo struct {
	mu        sync.Mutex
	orders    map[string]*domain.Order
	saveFails int
	saveCalls int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{orders: make(map[string]*domain.Order)}
}

func (r *fakeRepo) Save(ctx context.Context, order *domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saveCalls++
	if r.saveFails > 0 {
		r.saveFails--
		return errors.New("order store unavailable")
	}
	r.orders[order.ID] = order
	return nil
}

func (r *fakeRepo) Get(ctx context.Context, orderID string) (*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	order, ok := r.orders[orderID]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	copied := *order
	return &copied, nil
}

func (r *fakeRepo) ListByUser(ctx context.Context, userID string) ([]*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Order
	for _, order := range r.orders {
		if order.UserID == userID {
			copied := *order
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (r *fakeRepo) Update(ctx context.Context, order *domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.orders[order.ID]
	if !ok {
		return domain.ErrOrderNotFound
	}
	if stored.Version != order.Version {
		return domain.ErrConcurrentModification
	}
	order.Version++
	copied := *order
	r.orders[order.ID] = &copied
	return nil
}

type fakeCatalog struct {
	products map[string]*port.Product
	failFor  string
	calls    int
	mu       sync.Mutex
}

func (c *fakeCatalog) GetProduct(ctx context.Context, productID string) (*port.Product, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	if productID == c.failFor {
		return nil, domain.ErrProductNotFound
	}
	p, ok := c.products[productID]
	if !ok {
		return nil, domain.ErrProductNotFound
	}
	return p, nil
}

// fakeInventory 模拟台账的幂等预占语义。
type fakeInventory struct {
	mu       sync.Mutex
	stock    map[string]int
	reserved map[string]int
	keys     map[string]string

	checkCalls   int
	reserveCalls int
	releases     []port.ReservationItem

	checkErr   error
	reserveErr error
	releaseErr error
}

func newFakeInventory(stock map[string]int) *fakeInventory {
	return &fakeInventory{
		stock:    stock,
		reserved: make(map[string]int),
		keys:     make(map[string]string),
	}
}

func (f *fakeInventory) CheckStock(ctx context.Context, items []port.ReservationItem) ([]port.StockStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checkCalls++
	if f.checkErr != nil {
		return nil, f.checkErr
	}
	out := make([]port.StockStatus, len(items))
	for i, item := range items {
		available := f.stock[item.ProductID] - f.reserved[item.ProductID]
		out[i] = port.StockStatus{
			ProductID:         item.ProductID,
			RequestedQuantity: item.Quantity,
			AvailableQuantity: available,
			InStock:           available >= item.Quantity,
		}
	}
	return out, nil
}

func (f *fakeInventory) ReserveStock(ctx context.Context, idempotencyKey string, items []port.ReservationItem) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reserveCalls++
	if f.reserveErr != nil {
		return "", f.reserveErr
	}
	if existing, ok := f.keys[idempotencyKey]; ok {
		return existing, nil
	}
	for _, item := range items {
		if f.stock[item.ProductID]-f.reserved[item.ProductID] < item.Quantity {
			return "", domain.ErrInsufficientStock
		}
	}
	for _, item := range items {
		f.reserved[item.ProductID] += item.Quantity
	}
	id := fmt.Sprintf("res-%d", f.reserveCalls)
	f.keys[idempotencyKey] = id
	return id, nil
}

func (f *fakeInventory) ReleaseStock(ctx context.Context, productID string, quantity int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.releaseErr != nil {
		return f.releaseErr
	}
	released := quantity
	if released > f.reserved[productID] {
		released = f.reserved[productID]
	}
	f.reserved[productID] -= released
	f.releases = append(f.releases, port.ReservationItem{ProductID: productID, Quantity: quantity})
	return nil
}

type fakePublisher struct {
	mu         sync.Mutex
	created    []domain.OrderCreatedEvent
	cancelled  []domain.OrderCancelledEvent
	publishErr error
}

func (p *fakePublisher) PublishOrderCreated(ctx context.Context, event domain.OrderCreatedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.publishErr != nil {
		return p.publishErr
	}
	p.created = append(p.created, event)
	return nil
}

func (p *fakePublisher) PublishOrderCancelled(ctx context.Context, event domain.OrderCancelledEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.publishErr != nil {
		return p.publishErr
	}
	p.cancelled = append(p.cancelled, event)
	return nil
}

type sagaFixture struct {
	svc       *OrderService
	repo      *fakeRepo
	catalog   *fakeCatalog
	inventory *fakeInventory
	publisher *fakePublisher
}

func newFixture(t *testing.T, opts resilience.Options) *sagaFixture {
	t.Helper()
	f := &sagaFixture{
		repo: newFakeRepo(),
		catalog: &fakeCatalog{products: map[string]*port.Product{
			"p-1": {ID: "p-1", Name: "Laptop", Price: 999.99},
			"p-2": {ID: "p-2", Name: "Mouse", Price: 29.50},
		}},
		inventory: newFakeInventory(map[string]int{"p-1": 10, "p-2": 100}),
		publisher: &fakePublisher{},
	}
	if opts.MaxAttempts == 0 {
		opts.MaxAttempts = 1
	}
	if opts.MinRequests == 0 {
		opts.MinRequests = 100 // 默认让熔断器保持安静
	}
	if opts.InitialBackoff == 0 {
		opts.InitialBackoff = time.Millisecond
	}
	tracer := noop.NewTracerProvider().Tracer("test")
	f.svc = NewOrderService(f.repo, f.catalog, f.inventory, f.publisher, opts, tracer, time.Second)
	return f
}

func placeRequest() PlaceOrderRequest {
	return PlaceOrderRequest{
		Items: []PlaceOrderItem{
			{ProductID: "p-1", Quantity: 2},
			{ProductID: "p-2", Quantity: 3},
		},
		ShippingAddress: "42 Example Road",
	}
}

// ---- 下单 ----

func TestPlaceOrderSuccess(t *testing.T) {
	f := newFixture(t, resilience.Options{})
	ctx := context.Background()

	order, err := f.svc.PlaceOrder(ctx, "user-1", placeRequest())
	require.NoError(t, err)

	assert.Equal(t, "CREATED", order.Status)
	assert.Regexp(t, `^SE-[0-9A-F-]{10}$`, order.OrderNumber)

	// 总金额等于各条目小计之和，小计等于快照单价乘数量
	expected := 999.99*2 + 29.50*3
	assert.InDelta(t, expected, order.TotalAmount, 1e-9)
	for _, item := range order.Items {
		assert.InDelta(t, item.UnitPrice*float64(item.Quantity), item.Subtotal, 1e-9)
	}

	// 库存被占用，订单落库并携带预占句柄，事件发出
	assert.Equal(t, 2, f.inventory.reserved["p-1"])
	assert.Equal(t, 3, f.inventory.reserved["p-2"])
	stored, err := f.repo.Get(ctx, order.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, stored.ReservationID)
	require.Len(t, f.publisher.created, 1)
	assert.Equal(t, order.OrderNumber, f.publisher.created[0].OrderNumber)
	assert.Equal(t, 2, f.publisher.created[0].ItemCount)
}

func TestPlaceOrderEmptyItems(t *testing.T) {
	f := newFixture(t, resilience.Options{})

	_, err := f.svc.PlaceOrder(context.Background(), "user-1", PlaceOrderRequest{ShippingAddress: "nowhere"})
	assert.ErrorIs(t, err, domain.ErrEmptyOrder)
	assert.Equal(t, 0, f.catalog.calls)
	assert.Equal(t, 0, f.inventory.checkCalls)
}

func TestPlaceOrderCatalogFailureHasNoSideEffects(t *testing.T) {
	f := newFixture(t, resilience.Options{})
	f.catalog.failFor = "p-2"

	_, err := f.svc.PlaceOrder(context.Background(), "user-1", placeRequest())
	require.ErrorIs(t, err, domain.ErrProductNotFound)

	// 目录查询失败发生在一切副作用之前
	assert.Equal(t, 0, f.inventory.checkCalls)
	assert.Equal(t, 0, f.inventory.reserveCalls)
	assert.Equal(t, 0, f.repo.saveCalls)
}

func TestPlaceOrderOutOfStockAbortsBeforeReserve(t *testing.T) {
	f := newFixture(t, resilience.Options{})
	f.inventory.stock["p-1"] = 1 // 请求 2 件

	_, err := f.svc.PlaceOrder(context.Background(), "user-1", placeRequest())
	require.ErrorIs(t, err, domain.ErrInsufficientStock)

	assert.Equal(t, 1, f.inventory.checkCalls)
	assert.Equal(t, 0, f.inventory.reserveCalls)
	assert.Equal(t, 0, f.repo.saveCalls)
}

func TestPlaceOrderStoreFailureCompensatesReservation(t *testing.T) {
	f := newFixture(t, resilience.Options{})
	f.repo.saveFails = 1

	_, err := f.svc.PlaceOrder(context.Background(), "user-1", placeRequest())
	require.ErrorIs(t, err, domain.ErrDependencyUnavailable)

	// 每个已预占条目都被释放，台账回到预占前状态
	require.Len(t, f.inventory.releases, 2)
	assert.Equal(t, 0, f.inventory.reserved["p-1"])
	assert.Equal(t, 0, f.inventory.reserved["p-2"])
	assert.Empty(t, f.publisher.created)
}

func TestPlaceOrderRetryDoesNotDoubleReserve(t *testing.T) {
	f := newFixture(t, resilience.Options{MaxAttempts: 3})
	f.repo.saveFails = 1 // 第一次落库失败，第二次成功

	order, err := f.svc.PlaceOrder(context.Background(), "user-1", placeRequest())
	require.NoError(t, err)

	// 两次尝试共调了两次预占，但同一幂等键只占用了一次库存
	assert.Equal(t, 2, f.inventory.reserveCalls)
	assert.Equal(t, 2, f.inventory.reserved["p-1"])
	assert.Equal(t, 3, f.inventory.reserved["p-2"])
	assert.Empty(t, f.inventory.releases)
	assert.Equal(t, "CREATED", order.Status)
}

func TestPlaceOrderRetryBusinessFailureReleasesReservation(t *testing.T) {
	f := newFixture(t, resilience.Options{MaxAttempts: 2})
	// 库存恰好等于请求量：落库失败重试后，只读检查把第一次尝试
	// 自己持有的预占当成缺货，以业务错误终止重试
	f.inventory.stock = map[string]int{"p-1": 2, "p-2": 3}
	f.repo.saveFails = 2

	_, err := f.svc.PlaceOrder(context.Background(), "user-1", placeRequest())
	require.Error(t, err)

	// 整体失败后第一次尝试的预占必须被释放，不能留下无主持有
	assert.Equal(t, 0, f.inventory.reserved["p-1"])
	assert.Equal(t, 0, f.inventory.reserved["p-2"])
	require.Len(t, f.inventory.releases, 2)
}

func TestPlaceOrderPublishFailureIsTolerated(t *testing.T) {
	f := newFixture(t, resilience.Options{})
	f.publisher.publishErr = errors.New("broker unreachable")

	order, err := f.svc.PlaceOrder(context.Background(), "user-1", placeRequest())
	require.NoError(t, err)

	// 事件没发出去，但订单已提交、库存保持占用
	_, err = f.repo.Get(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, f.inventory.reserved["p-1"])
}

func TestPlaceOrderCircuitBreakerShortCircuits(t *testing.T) {
	f := newFixture(t, resilience.Options{
		MaxAttempts:  1,
		MinRequests:  1,
		FailureRatio: 0.01,
		OpenTimeout:  time.Minute,
	})
	f.inventory.checkErr = errors.New("inventory service down")

	_, err := f.svc.PlaceOrder(context.Background(), "user-1", placeRequest())
	require.ErrorIs(t, err, domain.ErrDependencyUnavailable)

	// 熔断已打开：新请求被短路，编排序列完全不执行
	callsBefore := f.catalog.calls
	_, err = f.svc.PlaceOrder(context.Background(), "user-1", placeRequest())
	require.ErrorIs(t, err, domain.ErrDependencyUnavailable)
	assert.Equal(t, callsBefore, f.catalog.calls)
}

// ---- 取消 ----

func placeOrder(t *testing.T, f *sagaFixture) *OrderView {
	t.Helper()
	order, err := f.svc.PlaceOrder(context.Background(), "user-1", placeRequest())
	require.NoError(t, err)
	return order
}

func TestCancelOrderReleasesAllItems(t *testing.T) {
	f := newFixture(t, resilience.Options{})
	order := placeOrder(t, f)

	require.NoError(t, f.svc.CancelOrder(context.Background(), "user-1", order.ID))

	assert.Equal(t, 0, f.inventory.reserved["p-1"])
	assert.Equal(t, 0, f.inventory.reserved["p-2"])
	stored, err := f.repo.Get(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, stored.Status)
	assert.NotNil(t, stored.CancelledAt)
	require.Len(t, f.publisher.cancelled, 1)
}

func TestCancelOrderAlreadyCancelled(t *testing.T) {
	f := newFixture(t, resilience.Options{})
	order := placeOrder(t, f)
	require.NoError(t, f.svc.CancelOrder(context.Background(), "user-1", order.ID))

	err := f.svc.CancelOrder(context.Background(), "user-1", order.ID)
	assert.ErrorIs(t, err, domain.ErrOrderNotCancellable)
}

func TestCancelOrderWrongUser(t *testing.T) {
	f := newFixture(t, resilience.Options{})
	order := placeOrder(t, f)

	err := f.svc.CancelOrder(context.Background(), "intruder", order.ID)
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)
	assert.Equal(t, 2, f.inventory.reserved["p-1"], "stock must stay reserved")
}

func TestCancelOrderNotFound(t *testing.T) {
	f := newFixture(t, resilience.Options{})

	err := f.svc.CancelOrder(context.Background(), "user-1", "missing")
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)
}

// ---- 查询 ----

func TestGetOrderEnforcesOwnership(t *testing.T) {
	f := newFixture(t, resilience.Options{})
	order := placeOrder(t, f)

	got, err := f.svc.GetOrder(context.Background(), "user-1", order.ID)
	require.NoError(t, err)
	assert.Equal(t, order.ID, got.ID)

	_, err = f.svc.GetOrder(context.Background(), "intruder", order.ID)
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)
}

func TestListOrders(t *testing.T) {
	f := newFixture(t, resilience.Options{})
	placeOrder(t, f)
	placeOrder(t, f)

	orders, err := f.svc.ListOrders(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Len(t, orders, 2)

	none, err := f.svc.ListOrders(context.Background(), "someone-else")
	require.NoError(t, err)
	assert.Empty(t, none)
}
