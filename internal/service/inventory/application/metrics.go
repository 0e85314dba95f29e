package application

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// 这些计数器是台账的"警告信号"出口：钳制释放与低库存不是错误，
// 但必须对运维和测试可见。
var (
	overReleaseTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inventory_over_release_total",
		Help: "Release requests that exceeded the held reservation and were clamped.",
	}, []string{"product_id"})

	lowStockTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inventory_low_stock_total",
		Help: "Confirmed deductions that left a product at or below its low-stock threshold.",
	}, []string{"product_id"})

	reservationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inventory_reservations_total",
		Help: "Reservation attempts by outcome.",
	}, []string{"outcome"})
)
