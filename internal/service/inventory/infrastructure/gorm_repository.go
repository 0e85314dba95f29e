package infrastructure

import (
	"context"
	"sort"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"shopease/internal/service/inventory/domain"
)

// GormInventoryRepository 是台账仓储的 MySQL 实现。
// 并发纪律：每个修改操作都在一个事务内以 SELECT ... FOR UPDATE
// 锁定所涉行；多商品预占按 product_id 升序加锁避免死锁。
type GormInventoryRepository struct {
	db               *gorm.DB
	defaultThreshold int
}

func NewGormInventoryRepository(db *gorm.DB, defaultLowStockThreshold int) *GormInventoryRepository {
	return &GormInventoryRepository{db: db, defaultThreshold: defaultLowStockThreshold}
}

// AutoMigrate 建表，仅限开发环境使用。
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&InventoryModel{}, &ReservationKeyModel{})
}

func (r *GormInventoryRepository) Get(ctx context.Context, productID string) (*domain.Record, error) {
	var m InventoryModel
	err := r.db.WithContext(ctx).Where("product_id = ?", productID).First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrRecordNotFound
		}
		return nil, err
	}
	return toDomainRecord(&m), nil
}

func (r *GormInventoryRepository) Update(ctx context.Context, productID string, mutate func(*domain.Record) error) (*domain.Record, error) {
	var result *domain.Record
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		m, err := lockRecord(tx, productID)
		if err != nil {
			return err
		}
		result, err = mutateModel(tx, m, mutate)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (r *GormInventoryRepository) CreateOrUpdate(ctx context.Context, productID string, mutate func(*domain.Record) error) (*domain.Record, error) {
	var result *domain.Record
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		m, err := lockRecord(tx, productID)
		if errors.Is(err, domain.ErrRecordNotFound) {
			fresh := domain.NewRecord(productID, r.defaultThreshold)
			m = &InventoryModel{ProductID: productID}
			applyDomainRecord(m, fresh)
			if createErr := tx.Create(m).Error; createErr != nil {
				// 与并发建档竞争失败，回退到锁定已存在的行
				m, err = lockRecord(tx, productID)
				if err != nil {
					return err
				}
			}
		} else if err != nil {
			return err
		}
		result, err = mutateModel(tx, m, mutate)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Reserve 在单个数据库事务内完成幂等检查、全部行锁定、校验与提交。
func (r *GormInventoryRepository) Reserve(ctx context.Context, idempotencyKey, reservationID string, items []domain.ReservationItem) (string, error) {
	applied := reservationID
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if idempotencyKey != "" {
			var key ReservationKeyModel
			err := tx.Where("idempotency_key = ?", idempotencyKey).First(&key).Error
			if err == nil {
				applied = key.ReservationID
				return nil
			}
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
		}

		sorted := make([]domain.ReservationItem, len(items))
		copy(sorted, items)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].ProductID < sorted[j].ProductID })

		for _, item := range sorted {
			m, err := lockRecord(tx, item.ProductID)
			if err != nil {
				return errors.Wrapf(err, "product %s", item.ProductID)
			}
			if _, err := mutateModel(tx, m, func(rec *domain.Record) error {
				return rec.Reserve(item.Quantity)
			}); err != nil {
				return err
			}
		}

		if idempotencyKey != "" {
			return tx.Create(&ReservationKeyModel{
				IdempotencyKey: idempotencyKey,
				ReservationID:  reservationID,
			}).Error
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return applied, nil
}

func lockRecord(tx *gorm.DB, productID string) (*InventoryModel, error) {
	var m InventoryModel
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("product_id = ?", productID).
		First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrRecordNotFound
		}
		return nil, err
	}
	return &m, nil
}

func mutateModel(tx *gorm.DB, m *InventoryModel, mutate func(*domain.Record) error) (*domain.Record, error) {
	rec := toDomainRecord(m)
	if err := mutate(rec); err != nil {
		return nil, err
	}
	if !rec.InvariantHolds() {
		return nil, errors.Errorf("inventory invariant violated for product %s", rec.ProductID)
	}
	applyDomainRecord(m, rec)
	if err := tx.Save(m).Error; err != nil {
		return nil, err
	}
	return rec, nil
}
