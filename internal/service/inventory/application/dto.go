package application

import (
	"time"

	"shopease/internal/service/inventory/domain"
)

// StockCheckRequest 是只读库存查询的单项请求。
type StockCheckRequest struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

// StockCheckResult 与请求一一对应。
type StockCheckResult struct {
	ProductID         string `json:"productId"`
	RequestedQuantity int    `json:"requestedQuantity"`
	AvailableQuantity int    `json:"availableQuantity"`
	InStock           bool   `json:"inStock"`
}

// ReservationResult 是预占成功的响应。
type ReservationResult struct {
	ReservationID string `json:"reservationId"`
	Status        string `json:"status"`
}

// InventoryView 是 GetInventory 的响应形状。
type InventoryView struct {
	ProductID         string     `json:"productId"`
	Quantity          int        `json:"quantity"`
	ReservedQuantity  int        `json:"reservedQuantity"`
	AvailableQuantity int        `json:"availableQuantity"`
	LowStockThreshold int        `json:"lowStockThreshold"`
	InStock           bool       `json:"inStock"`
	LastRestockedAt   *time.Time `json:"lastRestockedAt,omitempty"`
	UpdatedAt         time.Time  `json:"updatedAt"`
}

func toInventoryView(rec *domain.Record) *InventoryView {
	view := &InventoryView{
		ProductID:         rec.ProductID,
		Quantity:          rec.Quantity,
		ReservedQuantity:  rec.ReservedQuantity,
		AvailableQuantity: rec.Available(),
		LowStockThreshold: rec.LowStockThreshold,
		InStock:           rec.Available() > 0,
		UpdatedAt:         rec.UpdatedAt,
	}
	if !rec.LastRestockedAt.IsZero() {
		t := rec.LastRestockedAt
		view.LastRestockedAt = &t
	}
	return view
}
