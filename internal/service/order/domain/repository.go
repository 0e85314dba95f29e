package domain

import "context"

// Repository 是订单存储的抽象。
// 实现必须保证单订单的读-改-写原子性：Update 带乐观版本检查，
// 基于过期版本的状态变更返回 ErrConcurrentModification 而非覆盖。
type Repository interface {
	// Save 持久化一个新订单及其条目。
	Save(ctx context.Context, order *Order) error

	// Get 按 ID 加载订单，缺失时返回 ErrOrderNotFound。
	Get(ctx context.Context, orderID string) (*Order, error)

	// ListByUser 返回某用户的全部订单，按创建时间倒序。
	ListByUser(ctx context.Context, userID string) ([]*Order, error)

	// Update 持久化状态变更。order.Version 必须是读取时的版本，
	// 成功后实现将其递增；版本不匹配返回 ErrConcurrentModification。
	Update(ctx context.Context, order *Order) error
}
