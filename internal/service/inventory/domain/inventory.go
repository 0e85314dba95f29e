package domain

import (
	"time"

	"github.com/pkg/errors"
)

// DefaultLowStockThreshold 在未显式配置时使用。
const DefaultLowStockThreshold = 10

// Record 是单个商品的库存台账，本服务中唯一的共享可变状态。
// 所有变更必须经由仓储的原子读-改-写事务执行；
// 每次变更之后 0 <= ReservedQuantity <= Quantity 必须成立，
// 违反该不变量说明存在并发缺陷而非合法业务状态。
type Record struct {
	ProductID         string
	Quantity          int // 在库量
	ReservedQuantity  int // 预占量（尚未永久扣减）
	LowStockThreshold int
	LastRestockedAt   time.Time
	UpdatedAt         time.Time
}

// NewRecord 创建一条零库存台账记录（商品建档时自动生成）。
func NewRecord(productID string, lowStockThreshold int) *Record {
	if lowStockThreshold <= 0 {
		lowStockThreshold = DefaultLowStockThreshold
	}
	return &Record{
		ProductID:         productID,
		LowStockThreshold: lowStockThreshold,
		UpdatedAt:         time.Now(),
	}
}

// Available 返回可被新订单占用的数量。
func (r *Record) Available() int {
	return r.Quantity - r.ReservedQuantity
}

// InStock 判断可用量是否满足请求量。
func (r *Record) InStock(requested int) bool {
	return r.Available() >= requested
}

// IsLowStock 判断可用量是否触及低库存阈值。
func (r *Record) IsLowStock() bool {
	threshold := r.LowStockThreshold
	if threshold <= 0 {
		threshold = DefaultLowStockThreshold
	}
	return r.Available() <= threshold
}

// InvariantHolds 校验台账不变量，供仓储与测试断言。
func (r *Record) InvariantHolds() bool {
	return r.ReservedQuantity >= 0 && r.ReservedQuantity <= r.Quantity
}

// Reserve 预占库存。可用量不足时返回 ErrInsufficientStock，不做部分预占。
func (r *Record) Reserve(quantity int) error {
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	if !r.InStock(quantity) {
		return errors.Wrapf(ErrInsufficientStock,
			"product %s: available %d, requested %d", r.ProductID, r.Available(), quantity)
	}
	r.ReservedQuantity += quantity
	r.UpdatedAt = time.Now()
	return nil
}

// Release 释放预占。超出当前预占量的部分被钳制（clamped）——
// 补偿调用可能与并发的确认扣减竞争，这里容忍而不报错。
// 返回实际释放量，调用方据此判断是否发生了钳制。
func (r *Record) Release(quantity int) (int, error) {
	if quantity <= 0 {
		return 0, ErrInvalidQuantity
	}
	released := quantity
	if released > r.ReservedQuantity {
		released = r.ReservedQuantity
	}
	r.ReservedQuantity -= released
	r.UpdatedAt = time.Now()
	return released, nil
}

// ConfirmDeduction 把预占转为永久扣减，是唯一真正减少在库量的操作。
func (r *Record) ConfirmDeduction(quantity int) error {
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	if r.ReservedQuantity < quantity || r.Quantity < quantity {
		return errors.Wrapf(ErrInsufficientStock,
			"product %s: cannot confirm deduction of %d (quantity %d, reserved %d)",
			r.ProductID, quantity, r.Quantity, r.ReservedQuantity)
	}
	r.ReservedQuantity -= quantity
	r.Quantity -= quantity
	r.UpdatedAt = time.Now()
	return nil
}

// Restock 增加在库量。
func (r *Record) Restock(quantity int) error {
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	r.Quantity += quantity
	now := time.Now()
	r.LastRestockedAt = now
	r.UpdatedAt = now
	return nil
}

// Clone 返回记录的副本，仓储据此实现写时复制。
func (r *Record) Clone() *Record {
	c := *r
	return &c
}
