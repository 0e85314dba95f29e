package constants

// 服务名，必须与 Nacos 注册名保持一致。
const (
	OrderService        = "order-service"
	InventoryService    = "inventory-service"
	ProductService      = "product-service"
	NotificationService = "notification-service"
)

// Kafka 主题。沿用原有 shopease.<domain>.<event> 的命名约定。
const (
	TopicOrderCreated   = "shopease.order.created"
	TopicOrderCancelled = "shopease.order.cancelled"
	TopicProductCreated = "shopease.product.created"
	TopicDeadLetter     = "shopease.dead-letter"
)

// 下游服务的 HTTP 路径。
const (
	ProductGetPath = "/api/products/"

	InventoryCheckPath   = "/api/inventory/check"
	InventoryReservePath = "/api/inventory/reserve"
	InventoryReleasePath = "/api/inventory/release"
	InventoryConfirmPath = "/api/inventory/confirm"
	InventoryRestockPath = "/api/inventory/restock"
)
