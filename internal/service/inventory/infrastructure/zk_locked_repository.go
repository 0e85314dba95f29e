package infrastructure

import (
	"context"
	"sort"
	"time"

	"github.com/pkg/errors"

	"shopease/internal/pkg/zookeeper"
	"shopease/internal/service/inventory/domain"
)

// ZKLockedRepository 用 ZooKeeper 分布式锁包装另一个仓储实现，
// 供多实例部署在仓储自身不提供跨实例互斥时使用。
// 锁粒度与仓储契约一致：每商品一把锁，多商品操作按升序加锁。
type ZKLockedRepository struct {
	inner       domain.Repository
	conn        *zookeeper.Conn
	waitTimeout time.Duration
}

func NewZKLockedRepository(inner domain.Repository, conn *zookeeper.Conn, waitTimeout time.Duration) *ZKLockedRepository {
	return &ZKLockedRepository{inner: inner, conn: conn, waitTimeout: waitTimeout}
}

// Get 是只读操作，不需要跨实例互斥。
func (r *ZKLockedRepository) Get(ctx context.Context, productID string) (*domain.Record, error) {
	return r.inner.Get(ctx, productID)
}

func (r *ZKLockedRepository) Update(ctx context.Context, productID string, mutate func(*domain.Record) error) (*domain.Record, error) {
	unlock, err := r.lockAll([]string{productID})
	if err != nil {
		return nil, err
	}
	defer unlock()
	return r.inner.Update(ctx, productID, mutate)
}

func (r *ZKLockedRepository) CreateOrUpdate(ctx context.Context, productID string, mutate func(*domain.Record) error) (*domain.Record, error) {
	unlock, err := r.lockAll([]string{productID})
	if err != nil {
		return nil, err
	}
	defer unlock()
	return r.inner.CreateOrUpdate(ctx, productID, mutate)
}

func (r *ZKLockedRepository) Reserve(ctx context.Context, idempotencyKey, reservationID string, items []domain.ReservationItem) (string, error) {
	ids := make([]string, len(items))
	for i, item := range items {
		ids[i] = item.ProductID
	}
	unlock, err := r.lockAll(ids)
	if err != nil {
		return "", err
	}
	defer unlock()
	return r.inner.Reserve(ctx, idempotencyKey, reservationID, items)
}

func (r *ZKLockedRepository) lockAll(productIDs []string) (func(), error) {
	sorted := make([]string, len(productIDs))
	copy(sorted, productIDs)
	sort.Strings(sorted)

	held := make([]*zookeeper.StockLock, 0, len(sorted))
	release := func() {
		// 逆序释放
		for i := len(held) - 1; i >= 0; i-- {
			_ = held[i].Unlock()
		}
	}
	for _, id := range sorted {
		lock, err := zookeeper.NewStockLock(r.conn, id, r.waitTimeout)
		if err != nil {
			release()
			return nil, errors.Wrapf(err, "failed to create stock lock for %s", id)
		}
		if err := lock.Lock(); err != nil {
			release()
			return nil, errors.Wrapf(err, "failed to acquire stock lock for %s", id)
		}
		held = append(held, lock)
	}
	return release, nil
}
