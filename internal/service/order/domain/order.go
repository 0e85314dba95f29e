package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status 是订单状态机的节点。本服务只产生 CREATED 与 CANCELLED，
// 其余状态由支付/履约侧推进，这里保留常量以保证状态集完整。
type Status string

const (
	StatusCreated    Status = "CREATED"
	StatusConfirmed  Status = "CONFIRMED"
	StatusProcessing Status = "PROCESSING"
	StatusShipped    Status = "SHIPPED"
	StatusDelivered  Status = "DELIVERED"
	StatusCancelled  Status = "CANCELLED"
)

// IsCancellable 只有 CREATED 与 CONFIRMED 可取消。
func (s Status) IsCancellable() bool {
	return s == StatusCreated || s == StatusConfirmed
}

// OrderItem 是下单时刻的快照：名称与单价在创建后不再跟随商品目录变化。
type OrderItem struct {
	ProductID   string
	ProductName string
	Quantity    int
	UnitPrice   float64
	Subtotal    float64
}

// NewOrderItem 创建一个条目并计算小计。
func NewOrderItem(productID, productName string, quantity int, unitPrice float64) OrderItem {
	return OrderItem{
		ProductID:   productID,
		ProductName: productName,
		Quantity:    quantity,
		UnitPrice:   unitPrice,
		Subtotal:    unitPrice * float64(quantity),
	}
}

// Order 是订单聚合根。TotalAmount 在创建时计算一次，之后不再重算。
type Order struct {
	ID              string
	OrderNumber     string
	UserID          string
	Items           []OrderItem
	TotalAmount     float64
	Status          Status
	ShippingAddress string
	ReservationID   string
	// IdempotencyKey 是一次逻辑下单的自然键，重试尝试共享同一个值。
	IdempotencyKey string
	Version        int
	CreatedAt      time.Time
	UpdatedAt      time.Time
	CancelledAt    *time.Time
}

// NewOrder 组装一个 CREATED 状态的订单，生成订单号并汇总金额。
func NewOrder(userID, shippingAddress string, items []OrderItem) *Order {
	total := 0.0
	for _, item := range items {
		total += item.Subtotal
	}
	now := time.Now()
	return &Order{
		ID:              uuid.New().String(),
		OrderNumber:     NewOrderNumber(),
		UserID:          userID,
		Items:           items,
		TotalAmount:     total,
		Status:          StatusCreated,
		ShippingAddress: shippingAddress,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// NewOrderNumber 生成人类可读的订单号。
// 取随机 UUID 的前 10 个字符，碰撞概率可忽略但不保证全局唯一。
func NewOrderNumber() string {
	return "SE-" + strings.ToUpper(uuid.New().String()[:10])
}

// Cancel 执行取消转换，状态不允许时返回 ErrOrderNotCancellable。
func (o *Order) Cancel() error {
	if !o.Status.IsCancellable() {
		return ErrOrderNotCancellable
	}
	now := time.Now()
	o.Status = StatusCancelled
	o.CancelledAt = &now
	o.UpdatedAt = now
	return nil
}

// BelongsTo 判断订单归属。
func (o *Order) BelongsTo(userID string) bool {
	return o.UserID == userID
}

// ItemCount 返回条目数，用于事件载荷。
func (o *Order) ItemCount() int {
	return len(o.Items)
}
