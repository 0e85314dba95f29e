package application

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ordersPlacedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_placed_total",
		Help: "Order placement attempts by outcome.",
	}, []string{"outcome"})

	ordersCancelledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_cancelled_total",
		Help: "Orders successfully cancelled.",
	})

	compensationTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "order_compensation_total",
		Help: "Saga compensation runs triggered by a failed placement step.",
	})

	// 补偿失败意味着可能的库存泄漏，需要人工介入核对台账。
	compensationFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "order_compensation_failures_total",
		Help: "Compensation steps that failed, indicating possible stock-count drift.",
	})

	publishFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "order_events_publish_failures_total",
		Help: "Order lifecycle events that could not be published.",
	}, []string{"topic"})
)
