package port

import (
	"context"

	"shopease/internal/service/order/domain"
)

// Product 是商品目录返回的权威名称与价格。
type Product struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Price float64 `json:"price"`
}

// CatalogService 解析商品 ID 到权威商品信息。
// 商品不存在时返回 domain.ErrProductNotFound。
type CatalogService interface {
	GetProduct(ctx context.Context, productID string) (*Product, error)
}

// ReservationItem 是对库存台账的单商品请求行。
type ReservationItem struct {
	ProductID string
	Quantity  int
}

// StockStatus 是一次库存查询的单项结果。
type StockStatus struct {
	ProductID         string
	RequestedQuantity int
	AvailableQuantity int
	InStock           bool
}

// InventoryService 是库存台账的出站端口。
// ReserveStock 以幂等键保证重试不会二次占用库存。
type InventoryService interface {
	CheckStock(ctx context.Context, items []ReservationItem) ([]StockStatus, error)
	ReserveStock(ctx context.Context, idempotencyKey string, items []ReservationItem) (string, error)
	ReleaseStock(ctx context.Context, productID string, quantity int) error
}

// EventPublisher 发布订单生命周期事件。
// 调用方把发布视为尽力而为：错误只记录，绝不回滚已提交的订单。
type EventPublisher interface {
	PublishOrderCreated(ctx context.Context, event domain.OrderCreatedEvent) error
	PublishOrderCancelled(ctx context.Context, event domain.OrderCancelledEvent) error
}
