package infrastructure

import (
	"time"

	"shopease/internal/service/order/domain"
)

// OrderModel 是订单聚合根的数据库映射。
type OrderModel struct {
	ID              string `gorm:"primaryKey;size:36"`
	OrderNumber     string `gorm:"uniqueIndex;size:16;not null"`
	UserID          string `gorm:"index;size:64;not null"`
	TotalAmount     float64
	Status          string `gorm:"size:16;not null"`
	ShippingAddress string `gorm:"size:255"`
	ReservationID   string `gorm:"size:64"`
	IdempotencyKey  string `gorm:"uniqueIndex;size:64"`
	Version         int    `gorm:"not null;default:0"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
	CancelledAt     *time.Time

	Items []OrderItemModel `gorm:"foreignKey:OrderID"`
}

func (OrderModel) TableName() string { return "orders" }

// OrderItemModel 是订单条目的数据库映射，创建后不可变。
type OrderItemModel struct {
	ID          uint   `gorm:"primaryKey"`
	OrderID     string `gorm:"index;size:36;not null"`
	ProductID   string `gorm:"size:64;not null"`
	ProductName string `gorm:"size:255"`
	Quantity    int    `gorm:"not null"`
	UnitPrice   float64
	Subtotal    float64
}

func (OrderItemModel) TableName() string { return "order_items" }

func toDomainOrder(m *OrderModel) *domain.Order {
	items := make([]domain.OrderItem, len(m.Items))
	for i, it := range m.Items {
		items[i] = domain.OrderItem{
			ProductID:   it.ProductID,
			ProductName: it.ProductName,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
			Subtotal:    it.Subtotal,
		}
	}
	return &domain.Order{
		ID:              m.ID,
		OrderNumber:     m.OrderNumber,
		UserID:          m.UserID,
		Items:           items,
		TotalAmount:     m.TotalAmount,
		Status:          domain.Status(m.Status),
		ShippingAddress: m.ShippingAddress,
		ReservationID:   m.ReservationID,
		IdempotencyKey:  m.IdempotencyKey,
		Version:         m.Version,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
		CancelledAt:     m.CancelledAt,
	}
}

func toOrderModel(o *domain.Order) *OrderModel {
	items := make([]OrderItemModel, len(o.Items))
	for i, it := range o.Items {
		items[i] = OrderItemModel{
			OrderID:     o.ID,
			ProductID:   it.ProductID,
			ProductName: it.ProductName,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
			Subtotal:    it.Subtotal,
		}
	}
	return &OrderModel{
		ID:              o.ID,
		OrderNumber:     o.OrderNumber,
		UserID:          o.UserID,
		TotalAmount:     o.TotalAmount,
		Status:          string(o.Status),
		ShippingAddress: o.ShippingAddress,
		ReservationID:   o.ReservationID,
		IdempotencyKey:  o.IdempotencyKey,
		Version:         o.Version,
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
		CancelledAt:     o.CancelledAt,
		Items:           items,
	}
}
