package domain

import "github.com/pkg/errors"

var (
	// ErrRecordNotFound 表示商品没有对应的台账记录。
	// 不得用 0 库存替代——缺记录通常意味着上游建档事件丢失。
	ErrRecordNotFound = errors.New("inventory record not found")

	// ErrInsufficientStock 表示请求量超过可用量，或确认扣减超过持有的预占。
	ErrInsufficientStock = errors.New("insufficient stock")

	// ErrInvalidQuantity 表示数量参数非法（零或负数）。
	ErrInvalidQuantity = errors.New("quantity must be positive")

	// ErrDuplicateReservation 表示幂等键已被应用过（内部哨兵，对外透明返回原预占）。
	ErrDuplicateReservation = errors.New("reservation already applied")
)
