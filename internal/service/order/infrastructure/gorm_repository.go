package infrastructure

import (
	"context"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"shopease/internal/service/order/domain"
)

// GormOrderRepository 是订单存储的 MySQL 实现。
// 状态变更使用乐观版本：UPDATE ... WHERE id = ? AND version = ?，
// 影响行数为零即说明存在并发转换，拒绝而非覆盖。
type GormOrderRepository struct {
	db *gorm.DB
}

func NewGormOrderRepository(db *gorm.DB) *GormOrderRepository {
	return &GormOrderRepository{db: db}
}

// AutoMigrate 建表，仅限开发环境使用。
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&OrderModel{}, &OrderItemModel{})
}

func (r *GormOrderRepository) Save(ctx context.Context, order *domain.Order) error {
	m := toOrderModel(order)
	return r.db.WithContext(ctx).Create(m).Error
}

func (r *GormOrderRepository) Get(ctx context.Context, orderID string) (*domain.Order, error) {
	var m OrderModel
	err := r.db.WithContext(ctx).Preload("Items").Where("id = ?", orderID).First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrOrderNotFound
		}
		return nil, err
	}
	return toDomainOrder(&m), nil
}

func (r *GormOrderRepository) ListByUser(ctx context.Context, userID string) ([]*domain.Order, error) {
	var models []OrderModel
	err := r.db.WithContext(ctx).
		Preload("Items").
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	orders := make([]*domain.Order, len(models))
	for i := range models {
		orders[i] = toDomainOrder(&models[i])
	}
	return orders, nil
}

// Update 只写聚合根的可变列，条目创建后不可变。
func (r *GormOrderRepository) Update(ctx context.Context, order *domain.Order) error {
	result := r.db.WithContext(ctx).Model(&OrderModel{}).
		Where("id = ? AND version = ?", order.ID, order.Version).
		Updates(map[string]interface{}{
			"status":       string(order.Status),
			"cancelled_at": order.CancelledAt,
			"updated_at":   order.UpdatedAt,
			"version":      order.Version + 1,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return errors.Wrapf(domain.ErrConcurrentModification, "order %s version %d", order.ID, order.Version)
	}
	order.Version++
	return nil
}
