package domain

import "time"

// OrderCreatedEvent 是订单创建事实的事件载荷。
// 字段集合是对外契约，通知服务与库存自动建档消费方依赖它。
type OrderCreatedEvent struct {
	OrderID         string    `json:"orderId"`
	OrderNumber     string    `json:"orderNumber"`
	UserID          string    `json:"userId"`
	TotalAmount     float64   `json:"totalAmount"`
	ItemCount       int       `json:"itemCount"`
	ShippingAddress string    `json:"shippingAddress"`
	Timestamp       time.Time `json:"timestamp"`
}

// OrderCancelledEvent 是订单取消事实的事件载荷。
type OrderCancelledEvent struct {
	OrderID         string    `json:"orderId"`
	OrderNumber     string    `json:"orderNumber"`
	UserID          string    `json:"userId"`
	TotalAmount     float64   `json:"totalAmount"`
	ItemCount       int       `json:"itemCount"`
	ShippingAddress string    `json:"shippingAddress"`
	Timestamp       time.Time `json:"timestamp"`
}

// NewOrderCreatedEvent 从订单聚合提取事件载荷。
func NewOrderCreatedEvent(o *Order) OrderCreatedEvent {
	return OrderCreatedEvent{
		OrderID:         o.ID,
		OrderNumber:     o.OrderNumber,
		UserID:          o.UserID,
		TotalAmount:     o.TotalAmount,
		ItemCount:       o.ItemCount(),
		ShippingAddress: o.ShippingAddress,
		Timestamp:       time.Now(),
	}
}

// NewOrderCancelledEvent 从订单聚合提取取消事件载荷。
func NewOrderCancelledEvent(o *Order) OrderCancelledEvent {
	return OrderCancelledEvent{
		OrderID:         o.ID,
		OrderNumber:     o.OrderNumber,
		UserID:          o.UserID,
		TotalAmount:     o.TotalAmount,
		ItemCount:       o.ItemCount(),
		ShippingAddress: o.ShippingAddress,
		Timestamp:       time.Now(),
	}
}
