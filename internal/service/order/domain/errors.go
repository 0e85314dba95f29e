package domain

import "github.com/pkg/errors"

var (
	ErrOrderNotFound   = errors.New("order not found")
	ErrProductNotFound = errors.New("product not found")

	// ErrEmptyOrder 请求校验失败：订单没有任何条目或数量非法。
	ErrEmptyOrder = errors.New("order must contain at least one item")

	// ErrPermissionDenied 调用方不是订单的所有者。
	ErrPermissionDenied = errors.New("order does not belong to this user")

	// ErrOrderNotCancellable 订单当前状态不允许取消。
	ErrOrderNotCancellable = errors.New("order is not in a cancellable state")

	// ErrInsufficientStock 可用库存不足以覆盖请求量。
	ErrInsufficientStock = errors.New("insufficient stock")

	// ErrDependencyUnavailable 下游依赖不可达或熔断打开，重试已耗尽。
	ErrDependencyUnavailable = errors.New("dependent service unavailable")

	// ErrConcurrentModification 乐观版本检查失败，状态变更基于过期数据。
	ErrConcurrentModification = errors.New("order was modified concurrently")
)
