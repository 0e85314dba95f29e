package interfaces

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"shopease/internal/pkg/constants"
	"shopease/internal/service/inventory/application"
	"shopease/internal/service/inventory/domain"
)

// InventoryHandler 封装库存服务的 HTTP 处理器。
type InventoryHandler struct {
	service *application.InventoryService
}

func NewInventoryHandler(service *application.InventoryService) *InventoryHandler {
	return &InventoryHandler{service: service}
}

// RegisterRoutes 在 ServeMux 上注册所有路由。路径常量与调用方适配器共用。
func (h *InventoryHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("POST "+constants.InventoryCheckPath, h.handleCheckStock)
	mux.HandleFunc("POST "+constants.InventoryReservePath, h.handleReserveStock)
	mux.HandleFunc("POST "+constants.InventoryReleasePath, h.handleReleaseStock)
	mux.HandleFunc("POST "+constants.InventoryConfirmPath, h.handleConfirmDeduction)
	mux.HandleFunc("POST "+constants.InventoryRestockPath, h.handleRestock)
	mux.HandleFunc("GET /api/inventory/{productId}", h.handleGetInventory)
}

func (h *InventoryHandler) handleCheckStock(w http.ResponseWriter, r *http.Request) {
	ctx := extractTraceContext(r)

	var requests []application.StockCheckRequest
	if err := json.NewDecoder(r.Body).Decode(&requests); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	results, err := h.service.CheckStock(ctx, requests)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, results)
}

type reserveRequest struct {
	Items []struct {
		ProductID string `json:"productId"`
		Quantity  int    `json:"quantity"`
	} `json:"items"`
}

func (h *InventoryHandler) handleReserveStock(w http.ResponseWriter, r *http.Request) {
	ctx := extractTraceContext(r)

	var req reserveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	items := make([]domain.ReservationItem, len(req.Items))
	for i, it := range req.Items {
		items[i] = domain.ReservationItem{ProductID: it.ProductID, Quantity: it.Quantity}
	}

	// 幂等键由调用方生成并在重试间保持不变
	idempotencyKey := r.Header.Get("X-Idempotency-Key")

	reservationID, err := h.service.ReserveStock(ctx, idempotencyKey, items)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, application.ReservationResult{ReservationID: reservationID, Status: "RESERVED"})
}

func (h *InventoryHandler) handleReleaseStock(w http.ResponseWriter, r *http.Request) {
	h.handleQuantityOp(w, r, h.service.ReleaseStock)
}

func (h *InventoryHandler) handleConfirmDeduction(w http.ResponseWriter, r *http.Request) {
	h.handleQuantityOp(w, r, h.service.ConfirmDeduction)
}

func (h *InventoryHandler) handleRestock(w http.ResponseWriter, r *http.Request) {
	h.handleQuantityOp(w, r, h.service.Restock)
}

func (h *InventoryHandler) handleGetInventory(w http.ResponseWriter, r *http.Request) {
	ctx := extractTraceContext(r)

	view, err := h.service.GetInventory(ctx, r.PathValue("productId"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, view)
}

// handleQuantityOp 统一处理 productId+quantity 形式的写操作。
func (h *InventoryHandler) handleQuantityOp(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, productID string, quantity int) error) {
	ctx := extractTraceContext(r)

	productID := r.URL.Query().Get("productId")
	if productID == "" {
		http.Error(w, "productId is required", http.StatusBadRequest)
		return
	}
	quantity, err := strconv.Atoi(r.URL.Query().Get("quantity"))
	if err != nil {
		http.Error(w, "quantity must be an integer", http.StatusBadRequest)
		return
	}

	if err := op(ctx, productID, quantity); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, map[string]string{"status": "ok"})
}

func extractTraceContext(r *http.Request) context.Context {
	return otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// writeDomainError 把领域错误映射为 HTTP 状态码。
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrRecordNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, domain.ErrInsufficientStock):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, domain.ErrInvalidQuantity):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
