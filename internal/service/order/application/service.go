package application

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"shopease/internal/pkg/httpclient"
	"shopease/internal/pkg/logger"
	"shopease/internal/pkg/resilience"
	"shopease/internal/service/order/domain"
	"shopease/internal/service/order/port"
)

// OrderService 是下单/取消 saga 的编排器。
// 它从不直接改库存，所有库存变更都经由台账的原子操作；
// 一致性靠显式补偿（预占的逆操作是释放）而非分布式事务。
type OrderService struct {
	repo      domain.Repository
	catalog   port.CatalogService
	inventory port.InventoryService
	publisher port.EventPublisher

	policy      *resilience.Policy
	tracer      trace.Tracer
	callTimeout time.Duration
}

func NewOrderService(
	repo domain.Repository,
	catalog port.CatalogService,
	inventory port.InventoryService,
	publisher port.EventPublisher,
	policyOpts resilience.Options,
	tracer trace.Tracer,
	callTimeout time.Duration,
) *OrderService {
	policyOpts.Name = "place-order"
	policyOpts.Transient = isTransient
	if callTimeout <= 0 {
		callTimeout = 5 * time.Second
	}
	return &OrderService{
		repo:        repo,
		catalog:     catalog,
		inventory:   inventory,
		publisher:   publisher,
		policy:      resilience.New(policyOpts),
		tracer:      tracer,
		callTimeout: callTimeout,
	}
}

// PlaceOrder 执行下单 saga。整个逻辑操作被熔断器+重试包裹；
// 幂等键在进入重试循环之前生成一次，跨重试保持不变，
// 因此失败后的重试绝不会二次占用库存。
func (s *OrderService) PlaceOrder(ctx context.Context, userID string, req PlaceOrderRequest) (*OrderView, error) {
	ctx, span := s.tracer.Start(ctx, "order.PlaceOrder")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID), attribute.Int("items.count", len(req.Items)))

	if err := validatePlaceOrder(userID, req); err != nil {
		ordersPlacedTotal.WithLabelValues("invalid").Inc()
		return nil, err
	}

	idempotencyKey := uuid.New().String()

	// 补偿栈横跨全部重试尝试：预占经由幂等键在重试间保持，
	// 它的释放动作必须活得和整个逻辑操作一样久，
	// 否则后续尝试在预占之前失败时，先前的持有就成了无主泄漏
	comp := &compensationStack{}
	var placed *domain.Order
	err := s.policy.Execute(ctx, func(ctx context.Context) error {
		order, err := s.placeOrderOnce(ctx, userID, req, idempotencyKey, comp)
		if err != nil {
			return err
		}
		placed = order
		return nil
	})
	if err != nil {
		// 彻底放弃后才补偿：重试期间不反复释放再占
		comp.trigger(context.WithoutCancel(ctx))
		span.RecordError(err)
		span.SetStatus(codes.Error, "order placement failed")
		ordersPlacedTotal.WithLabelValues("failed").Inc()
		return nil, s.mapDependencyError(err)
	}

	ordersPlacedTotal.WithLabelValues("placed").Inc()
	logger.Ctx(ctx).Info().
		Str("order_id", placed.ID).
		Str("order_number", placed.OrderNumber).
		Float64("total_amount", placed.TotalAmount).
		Msg("Order placed")
	return toOrderView(placed), nil
}

// placeOrderOnce 是 saga 的一次完整执行：
// 商品快照 → 批量库存查询 → 全有或全无预占 → 持久化 → 发布事件。
// 预占成功后把释放动作压入补偿栈；失败由调用方决定何时触发补偿。
func (s *OrderService) placeOrderOnce(ctx context.Context, userID string, req PlaceOrderRequest, idempotencyKey string, comp *compensationStack) (*domain.Order, error) {
	// 1. 商品目录快照。任一失败立即中止，此时尚无任何副作用。
	items, err := s.snapshotItems(ctx, req.Items)
	if err != nil {
		return nil, err
	}

	reservationItems := make([]port.ReservationItem, len(req.Items))
	for i, item := range req.Items {
		reservationItems[i] = port.ReservationItem{ProductID: item.ProductID, Quantity: item.Quantity}
	}

	// 2. 批量只读检查。任一商品缺货直接中止，不发起预占。
	callCtx, cancel := context.WithTimeout(ctx, s.callTimeout)
	statuses, err := s.inventory.CheckStock(callCtx, reservationItems)
	cancel()
	if err != nil {
		return nil, err
	}
	for _, st := range statuses {
		if !st.InStock {
			return nil, errors.Wrapf(domain.ErrInsufficientStock,
				"product %s: available %d, requested %d", st.ProductID, st.AvailableQuantity, st.RequestedQuantity)
		}
	}

	// 3. 全有或全无预占。成功即压入逐商品释放的补偿动作。
	callCtx, cancel = context.WithTimeout(ctx, s.callTimeout)
	reservationID, err := s.inventory.ReserveStock(callCtx, idempotencyKey, reservationItems)
	cancel()
	if err != nil {
		return nil, err
	}
	// 释放动作每商品只压栈一次：重试的再次预占是幂等重放，持有的是同一批库存
	if comp.empty() {
		for _, item := range reservationItems {
			item := item
			comp.push("release-stock:"+item.ProductID, func(ctx context.Context) error {
				return s.inventory.ReleaseStock(ctx, item.ProductID, item.Quantity)
			})
		}
	}

	// 4. 持久化订单。
	order := domain.NewOrder(userID, req.ShippingAddress, items)
	order.ReservationID = reservationID
	order.IdempotencyKey = idempotencyKey
	if err := s.repo.Save(ctx, order); err != nil {
		return nil, errors.Wrap(err, "failed to persist order")
	}

	// 5. 事件发布是尽力而为：订单此刻已经提交，发布失败只记录。
	if err := s.publisher.PublishOrderCreated(ctx, domain.NewOrderCreatedEvent(order)); err != nil {
		publishFailuresTotal.WithLabelValues("order.created").Inc()
		logger.Ctx(ctx).Error().Err(err).Str("order_id", order.ID).Msg("Failed to publish order created event")
	}
	return order, nil
}

// snapshotItems 并行查询商品目录，按请求顺序返回快照条目。
func (s *OrderService) snapshotItems(ctx context.Context, requested []PlaceOrderItem) ([]domain.OrderItem, error) {
	ctx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()

	items := make([]domain.OrderItem, len(requested))
	g, gctx := errgroup.WithContext(ctx)
	for i, line := range requested {
		i, line := i, line
		g.Go(func() error {
			product, err := s.catalog.GetProduct(gctx, line.ProductID)
			if err != nil {
				return errors.Wrapf(err, "product %s", line.ProductID)
			}
			items[i] = domain.NewOrderItem(product.ID, product.Name, line.Quantity, product.Price)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return items, nil
}

// CancelOrder 取消订单并释放其全部预占。
// 释放总是按订单条目的全量执行；已被确认扣减的部分由台账钳制，
// 不会把已消耗的库存加回。
func (s *OrderService) CancelOrder(ctx context.Context, userID, orderID string) error {
	ctx, span := s.tracer.Start(ctx, "order.CancelOrder")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", orderID))

	order, err := s.repo.Get(ctx, orderID)
	if err != nil {
		return err
	}
	if !order.BelongsTo(userID) {
		return domain.ErrPermissionDenied
	}
	if !order.Status.IsCancellable() {
		return errors.Wrapf(domain.ErrOrderNotCancellable, "status %s", order.Status)
	}

	for _, item := range order.Items {
		callCtx, cancel := context.WithTimeout(ctx, s.callTimeout)
		err := s.inventory.ReleaseStock(callCtx, item.ProductID, item.Quantity)
		cancel()
		if err != nil {
			span.RecordError(err)
			return s.mapDependencyError(errors.Wrapf(err, "failed to release stock for product %s", item.ProductID))
		}
	}

	if err := order.Cancel(); err != nil {
		return err
	}
	if err := s.repo.Update(ctx, order); err != nil {
		return err
	}

	if err := s.publisher.PublishOrderCancelled(ctx, domain.NewOrderCancelledEvent(order)); err != nil {
		publishFailuresTotal.WithLabelValues("order.cancelled").Inc()
		logger.Ctx(ctx).Error().Err(err).Str("order_id", order.ID).Msg("Failed to publish order cancelled event")
	}

	ordersCancelledTotal.Inc()
	logger.Ctx(ctx).Info().Str("order_id", order.ID).Str("order_number", order.OrderNumber).Msg("Order cancelled")
	return nil
}

// GetOrder 返回用户自己的订单。
func (s *OrderService) GetOrder(ctx context.Context, userID, orderID string) (*OrderView, error) {
	ctx, span := s.tracer.Start(ctx, "order.GetOrder")
	defer span.End()

	order, err := s.repo.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !order.BelongsTo(userID) {
		return nil, domain.ErrPermissionDenied
	}
	return toOrderView(order), nil
}

// ListOrders 返回用户的全部订单。
func (s *OrderService) ListOrders(ctx context.Context, userID string) ([]*OrderView, error) {
	ctx, span := s.tracer.Start(ctx, "order.ListOrders")
	defer span.End()

	orders, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	views := make([]*OrderView, len(orders))
	for i, order := range orders {
		views[i] = toOrderView(order)
	}
	return views, nil
}

func validatePlaceOrder(userID string, req PlaceOrderRequest) error {
	if userID == "" {
		return domain.ErrPermissionDenied
	}
	if len(req.Items) == 0 {
		return domain.ErrEmptyOrder
	}
	for _, item := range req.Items {
		if item.ProductID == "" || item.Quantity <= 0 {
			return errors.Wrapf(domain.ErrEmptyOrder, "invalid item %q", item.ProductID)
		}
	}
	return nil
}

// mapDependencyError 把重试耗尽/熔断打开归一化为依赖不可用。
func (s *OrderService) mapDependencyError(err error) error {
	if errors.Is(err, resilience.ErrCircuitOpen) || isTransient(err) {
		return errors.Wrap(domain.ErrDependencyUnavailable, err.Error())
	}
	return err
}

// isBusinessError 判定错误是否为业务性失败：不重试、不计入熔断。
func isBusinessError(err error) bool {
	for _, target := range []error{
		domain.ErrEmptyOrder,
		domain.ErrProductNotFound,
		domain.ErrInsufficientStock,
		domain.ErrOrderNotFound,
		domain.ErrPermissionDenied,
		domain.ErrOrderNotCancellable,
		domain.ErrConcurrentModification,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// isTransient 判定错误是否为瞬时依赖故障。
// 下游 4xx 是对方的明确拒绝，重试没有意义；其余网络/5xx 视为瞬时。
func isTransient(err error) bool {
	if err == nil || isBusinessError(err) {
		return false
	}
	var statusErr *httpclient.StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode >= 500
	}
	return true
}
