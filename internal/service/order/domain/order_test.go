package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewOrderComputesTotals(t *testing.T) {
	items := []OrderItem{
		NewOrderItem("p-1", "Laptop", 2, 999.99),
		NewOrderItem("p-2", "Mouse", 3, 29.50),
	}
	order := NewOrder("user-1", "somewhere", items)

	assert.InDelta(t, 2088.48, order.TotalAmount, 1e-9)
	assert.Equal(t, StatusCreated, order.Status)
	assert.NotEmpty(t, order.ID)
	assert.Regexp(t, `^SE-[0-9A-F-]{10}$`, order.OrderNumber)
}

func TestStatusCancellable(t *testing.T) {
	assert.True(t, StatusCreated.IsCancellable())
	assert.True(t, StatusConfirmed.IsCancellable())
	for _, s := range []Status{StatusProcessing, StatusShipped, StatusDelivered, StatusCancelled} {
		assert.False(t, s.IsCancellable(), "status %s", s)
	}
}

func TestCancelTransition(t *testing.T) {
	order := NewOrder("user-1", "somewhere", []OrderItem{NewOrderItem("p-1", "Laptop", 1, 10)})

	require.NoError(t, order.Cancel())
	assert.Equal(t, StatusCancelled, order.Status)
	require.NotNil(t, order.CancelledAt)

	// 终态不可再次取消
	assert.ErrorIs(t, order.Cancel(), ErrOrderNotCancellable)
}
