package infrastructure

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shopease/internal/service/inventory/domain"
)

func seedRepo(t *testing.T, repo *MemoryRepository, productID string, quantity int) {
	t.Helper()
	_, err := repo.CreateOrUpdate(context.Background(), productID, func(rec *domain.Record) error {
		return rec.Restock(quantity)
	})
	require.NoError(t, err)
}

func TestMemoryRepositoryGetUnknown(t *testing.T) {
	repo := NewMemoryRepository(domain.DefaultLowStockThreshold)
	_, err := repo.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, domain.ErrRecordNotFound)
}

func TestMemoryRepositoryUpdateRejectsInvariantViolation(t *testing.T) {
	repo := NewMemoryRepository(domain.DefaultLowStockThreshold)
	seedRepo(t, repo, "p-1", 5)

	_, err := repo.Update(context.Background(), "p-1", func(rec *domain.Record) error {
		rec.ReservedQuantity = 99
		return nil
	})
	require.Error(t, err)

	// 违规变更必须被整体丢弃
	rec, err := repo.Get(context.Background(), "p-1")
	require.NoError(t, err)
	assert.Equal(t, 0, rec.ReservedQuantity)
}

// 两个方向相反的多商品预占并发执行，按序加锁保证不会死锁。
func TestMemoryRepositoryReserveOpposingOrdersNoDeadlock(t *testing.T) {
	repo := NewMemoryRepository(domain.DefaultLowStockThreshold)
	seedRepo(t, repo, "p-a", 1000)
	seedRepo(t, repo, "p-b", 1000)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		forward := i%2 == 0
		wg.Add(1)
		go func(i int, forward bool) {
			defer wg.Done()
			items := []domain.ReservationItem{
				{ProductID: "p-a", Quantity: 1},
				{ProductID: "p-b", Quantity: 1},
			}
			if !forward {
				items[0], items[1] = items[1], items[0]
			}
			_, err := repo.Reserve(context.Background(), fmt.Sprintf("key-%d", i), "res", items)
			assert.NoError(t, err)
		}(i, forward)
	}
	wg.Wait()

	for _, id := range []string{"p-a", "p-b"} {
		rec, err := repo.Get(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, 100, rec.ReservedQuantity)
		assert.True(t, rec.InvariantHolds())
	}
}

func TestMemoryRepositoryReservePartialFailureLeavesNothing(t *testing.T) {
	repo := NewMemoryRepository(domain.DefaultLowStockThreshold)
	seedRepo(t, repo, "p-a", 10)

	_, err := repo.Reserve(context.Background(), "k", "res", []domain.ReservationItem{
		{ProductID: "p-a", Quantity: 1},
		{ProductID: "p-missing", Quantity: 1},
	})
	require.ErrorIs(t, err, domain.ErrRecordNotFound)

	rec, err := repo.Get(context.Background(), "p-a")
	require.NoError(t, err)
	assert.Equal(t, 0, rec.ReservedQuantity)
}

// 并发提交同一幂等键时只允许一次真实持有。
func TestMemoryRepositoryConcurrentReserveSameKeyHoldsOnce(t *testing.T) {
	repo := NewMemoryRepository(domain.DefaultLowStockThreshold)
	seedRepo(t, repo, "p-a", 100)

	const callers = 20
	items := []domain.ReservationItem{{ProductID: "p-a", Quantity: 3}}
	ids := make(chan string, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id, err := repo.Reserve(context.Background(), "shared-key", fmt.Sprintf("res-%d", i), items)
			assert.NoError(t, err)
			ids <- id
		}(i)
	}
	wg.Wait()
	close(ids)

	first := <-ids
	for id := range ids {
		assert.Equal(t, first, id, "every caller must see the same reservation handle")
	}
	rec, err := repo.Get(context.Background(), "p-a")
	require.NoError(t, err)
	assert.Equal(t, 3, rec.ReservedQuantity)
}

func TestMemoryRepositoryConcurrentReplaySameKey(t *testing.T) {
	repo := NewMemoryRepository(domain.DefaultLowStockThreshold)
	seedRepo(t, repo, "p-a", 100)

	items := []domain.ReservationItem{{ProductID: "p-a", Quantity: 3}}
	first, err := repo.Reserve(context.Background(), "same-key", "res-1", items)
	require.NoError(t, err)

	second, err := repo.Reserve(context.Background(), "same-key", "res-2", items)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	rec, err := repo.Get(context.Background(), "p-a")
	require.NoError(t, err)
	assert.Equal(t, 3, rec.ReservedQuantity)
}
