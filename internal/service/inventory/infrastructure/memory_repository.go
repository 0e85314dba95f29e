package infrastructure

import (
	"context"
	"sort"
	"sync"

	"github.com/pkg/errors"

	"shopease/internal/service/inventory/domain"
)

// MemoryRepository 是台账仓储的进程内实现，用于本地运行与测试。
// 并发纪律：map 本身由 mu 保护；每条记录由自己的互斥锁保护，
// 不同商品的变更完全并行，同一商品的读-改-写串行。
type MemoryRepository struct {
	mu      sync.RWMutex
	entries map[string]*memoryEntry

	resMu        sync.Mutex
	reservations map[string]string // idempotencyKey -> reservationID

	defaultThreshold int
}

type memoryEntry struct {
	mu  sync.Mutex
	rec *domain.Record
}

func NewMemoryRepository(defaultLowStockThreshold int) *MemoryRepository {
	return &MemoryRepository{
		entries:          make(map[string]*memoryEntry),
		reservations:     make(map[string]string),
		defaultThreshold: defaultLowStockThreshold,
	}
}

func (r *MemoryRepository) Get(ctx context.Context, productID string) (*domain.Record, error) {
	entry, err := r.lookup(productID)
	if err != nil {
		return nil, err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.rec.Clone(), nil
}

func (r *MemoryRepository) Update(ctx context.Context, productID string, mutate func(*domain.Record) error) (*domain.Record, error) {
	entry, err := r.lookup(productID)
	if err != nil {
		return nil, err
	}
	return r.mutateEntry(entry, mutate)
}

func (r *MemoryRepository) CreateOrUpdate(ctx context.Context, productID string, mutate func(*domain.Record) error) (*domain.Record, error) {
	entry := r.ensure(productID)
	return r.mutateEntry(entry, mutate)
}

// Reserve 实现全有或全无的多商品预占。
// 按 ProductID 升序获取记录锁，保证与并发预占不会死锁；
// 校验全部通过后才提交任何修改。
// resMu 覆盖"查键-预占-记键"全程：并发提交同一幂等键时
// 只有一个调用真正占用库存，其余返回首个生成的句柄。
func (r *MemoryRepository) Reserve(ctx context.Context, idempotencyKey, reservationID string, items []domain.ReservationItem) (string, error) {
	if idempotencyKey != "" {
		r.resMu.Lock()
		defer r.resMu.Unlock()
		if existing, ok := r.reservations[idempotencyKey]; ok {
			return existing, nil
		}
	}

	sorted := make([]domain.ReservationItem, len(items))
	copy(sorted, items)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ProductID < sorted[j].ProductID })

	entries := make([]*memoryEntry, 0, len(sorted))
	for _, item := range sorted {
		entry, err := r.lookup(item.ProductID)
		if err != nil {
			return "", errors.Wrapf(err, "product %s", item.ProductID)
		}
		entries = append(entries, entry)
	}

	for _, entry := range entries {
		entry.mu.Lock()
	}
	defer func() {
		for _, entry := range entries {
			entry.mu.Unlock()
		}
	}()

	// 先在副本上校验全部条目，全部通过才提交
	staged := make([]*domain.Record, len(sorted))
	for i, item := range sorted {
		rec := entries[i].rec.Clone()
		if err := rec.Reserve(item.Quantity); err != nil {
			return "", err
		}
		if !rec.InvariantHolds() {
			return "", errors.Errorf("inventory invariant violated for product %s", rec.ProductID)
		}
		staged[i] = rec
	}
	for i, rec := range staged {
		entries[i].rec = rec
	}

	if idempotencyKey != "" {
		r.reservations[idempotencyKey] = reservationID
	}
	return reservationID, nil
}

func (r *MemoryRepository) lookup(productID string) (*memoryEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.entries[productID]
	if !ok {
		return nil, domain.ErrRecordNotFound
	}
	return entry, nil
}

func (r *MemoryRepository) ensure(productID string) *memoryEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[productID]
	if !ok {
		entry = &memoryEntry{rec: domain.NewRecord(productID, r.defaultThreshold)}
		r.entries[productID] = entry
	}
	return entry
}

func (r *MemoryRepository) mutateEntry(entry *memoryEntry, mutate func(*domain.Record) error) (*domain.Record, error) {
	entry.mu.Lock()
	defer entry.mu.Unlock()

	rec := entry.rec.Clone()
	if err := mutate(rec); err != nil {
		return nil, err
	}
	if !rec.InvariantHolds() {
		return nil, errors.Errorf("inventory invariant violated for product %s", rec.ProductID)
	}
	entry.rec = rec
	return rec.Clone(), nil
}
