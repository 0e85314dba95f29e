package interfaces

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"shopease/internal/service/order/application"
	"shopease/internal/service/order/domain"
)

// OrderHandler 封装订单服务的 HTTP 处理器。
// 调用方身份由边缘网关鉴权后通过 X-User-Id 头注入。
type OrderHandler struct {
	service *application.OrderService
}

func NewOrderHandler(service *application.OrderService) *OrderHandler {
	return &OrderHandler{service: service}
}

// RegisterRoutes 在 ServeMux 上注册所有路由。
func (h *OrderHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("POST /api/orders", h.handlePlaceOrder)
	mux.HandleFunc("GET /api/orders", h.handleListOrders)
	mux.HandleFunc("GET /api/orders/{orderId}", h.handleGetOrder)
	mux.HandleFunc("POST /api/orders/{orderId}/cancel", h.handleCancelOrder)
}

func (h *OrderHandler) handlePlaceOrder(w http.ResponseWriter, r *http.Request) {
	ctx, userID, ok := requestContext(w, r)
	if !ok {
		return
	}

	var req application.PlaceOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	order, err := h.service.PlaceOrder(ctx, userID, req)
	if err != nil {
		writeOrderError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(order)
}

func (h *OrderHandler) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	ctx, userID, ok := requestContext(w, r)
	if !ok {
		return
	}

	order, err := h.service.GetOrder(ctx, userID, r.PathValue("orderId"))
	if err != nil {
		writeOrderError(w, err)
		return
	}
	writeJSON(w, order)
}

func (h *OrderHandler) handleListOrders(w http.ResponseWriter, r *http.Request) {
	ctx, userID, ok := requestContext(w, r)
	if !ok {
		return
	}

	orders, err := h.service.ListOrders(ctx, userID)
	if err != nil {
		writeOrderError(w, err)
		return
	}
	writeJSON(w, orders)
}

func (h *OrderHandler) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx, userID, ok := requestContext(w, r)
	if !ok {
		return
	}

	if err := h.service.CancelOrder(ctx, userID, r.PathValue("orderId")); err != nil {
		writeOrderError(w, err)
		return
	}
	writeJSON(w, map[string]string{"status": "cancelled"})
}

func requestContext(w http.ResponseWriter, r *http.Request) (context.Context, string, bool) {
	userID := r.Header.Get("X-User-Id")
	if userID == "" {
		http.Error(w, "X-User-Id header is required", http.StatusUnauthorized)
		return nil, "", false
	}
	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
	return ctx, userID, true
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeOrderError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrEmptyOrder):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, domain.ErrOrderNotFound), errors.Is(err, domain.ErrProductNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, domain.ErrPermissionDenied):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, domain.ErrOrderNotCancellable), errors.Is(err, domain.ErrConcurrentModification):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, domain.ErrInsufficientStock):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, domain.ErrDependencyUnavailable):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
