package infrastructure

import (
	"time"

	"shopease/internal/service/inventory/domain"
)

// InventoryModel 是台账记录的数据库映射。
type InventoryModel struct {
	ID                uint   `gorm:"primaryKey"`
	ProductID         string `gorm:"uniqueIndex;size:64;not null"`
	Quantity          int    `gorm:"not null"`
	ReservedQuantity  int    `gorm:"not null"`
	LowStockThreshold int    `gorm:"not null;default:10"`
	LastRestockedAt   *time.Time
	UpdatedAt         time.Time
}

func (InventoryModel) TableName() string { return "inventory" }

// ReservationKeyModel 记录已应用的预占幂等键。
// idempotency_key 上的唯一索引让并发重放在数据库层面直接失败回滚。
type ReservationKeyModel struct {
	ID             uint   `gorm:"primaryKey"`
	IdempotencyKey string `gorm:"uniqueIndex;size:64;not null"`
	ReservationID  string `gorm:"size:64;not null"`
	CreatedAt      time.Time
}

func (ReservationKeyModel) TableName() string { return "inventory_reservation_keys" }

func toDomainRecord(m *InventoryModel) *domain.Record {
	rec := &domain.Record{
		ProductID:         m.ProductID,
		Quantity:          m.Quantity,
		ReservedQuantity:  m.ReservedQuantity,
		LowStockThreshold: m.LowStockThreshold,
		UpdatedAt:         m.UpdatedAt,
	}
	if m.LastRestockedAt != nil {
		rec.LastRestockedAt = *m.LastRestockedAt
	}
	return rec
}

func applyDomainRecord(m *InventoryModel, rec *domain.Record) {
	m.Quantity = rec.Quantity
	m.ReservedQuantity = rec.ReservedQuantity
	m.LowStockThreshold = rec.LowStockThreshold
	m.UpdatedAt = rec.UpdatedAt
	if !rec.LastRestockedAt.IsZero() {
		t := rec.LastRestockedAt
		m.LastRestockedAt = &t
	}
}
