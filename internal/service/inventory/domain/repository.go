package domain

import "context"

// ReservationItem 是一次预占中的单个商品请求。
type ReservationItem struct {
	ProductID string
	Quantity  int
}

// Repository 是库存台账的持久化端口，由基础设施层实现。
//
// 并发契约：每个修改操作都必须是针对所涉商品的隔离读-改-写事务
// （悲观行锁或带重试的乐观 CAS 均可）；不同商品之间完全并行。
type Repository interface {
	// Get 读取单条记录，缺失时返回 ErrRecordNotFound。
	Get(ctx context.Context, productID string) (*Record, error)

	// Update 原子地修改一条已存在的记录。mutate 返回错误时修改被丢弃。
	Update(ctx context.Context, productID string, mutate func(*Record) error) (*Record, error)

	// CreateOrUpdate 同 Update，但记录缺失时先创建零库存记录再修改。
	CreateOrUpdate(ctx context.Context, productID string, mutate func(*Record) error) (*Record, error)

	// Reserve 在单个事务内对多个商品执行全有或全无的预占：
	// 按 ProductID 升序锁定全部记录，任一商品可用量不足则整体回滚。
	// idempotencyKey 已被应用过时不再重复预占，直接返回当初的 reservationID。
	Reserve(ctx context.Context, idempotencyKey, reservationID string, items []ReservationItem) (string, error)
}
