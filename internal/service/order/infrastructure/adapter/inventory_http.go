package adapter

import (
	"context"
	"net/url"
	"strconv"

	"github.com/pkg/errors"

	"shopease/internal/pkg/constants"
	"shopease/internal/pkg/httpclient"
	"shopease/internal/service/order/domain"
	"shopease/internal/service/order/port"
)

// InventoryHTTPAdapter 经由服务发现调用库存服务。
// 下游状态码在此处映射回领域错误，编排器不感知 HTTP。
type InventoryHTTPAdapter struct {
	client *httpclient.Client
}

func NewInventoryHTTPAdapter(client *httpclient.Client) *InventoryHTTPAdapter {
	return &InventoryHTTPAdapter{client: client}
}

type stockCheckItem struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

type stockCheckResult struct {
	ProductID         string `json:"productId"`
	RequestedQuantity int    `json:"requestedQuantity"`
	AvailableQuantity int    `json:"availableQuantity"`
	InStock           bool   `json:"inStock"`
}

func (a *InventoryHTTPAdapter) CheckStock(ctx context.Context, items []port.ReservationItem) ([]port.StockStatus, error) {
	payload := make([]stockCheckItem, len(items))
	for i, item := range items {
		payload[i] = stockCheckItem{ProductID: item.ProductID, Quantity: item.Quantity}
	}

	var results []stockCheckResult
	if err := a.client.PostJSON(ctx, constants.InventoryService, constants.InventoryCheckPath, payload, &results); err != nil {
		return nil, mapInventoryError(err)
	}

	statuses := make([]port.StockStatus, len(results))
	for i, r := range results {
		statuses[i] = port.StockStatus{
			ProductID:         r.ProductID,
			RequestedQuantity: r.RequestedQuantity,
			AvailableQuantity: r.AvailableQuantity,
			InStock:           r.InStock,
		}
	}
	return statuses, nil
}

type reserveRequest struct {
	Items []stockCheckItem `json:"items"`
}

type reserveResponse struct {
	ReservationID string `json:"reservationId"`
	Status        string `json:"status"`
}

func (a *InventoryHTTPAdapter) ReserveStock(ctx context.Context, idempotencyKey string, items []port.ReservationItem) (string, error) {
	req := reserveRequest{Items: make([]stockCheckItem, len(items))}
	for i, item := range items {
		req.Items[i] = stockCheckItem{ProductID: item.ProductID, Quantity: item.Quantity}
	}

	headers := map[string]string{"X-Idempotency-Key": idempotencyKey}
	var resp reserveResponse
	err := a.client.PostJSONWithHeaders(ctx, constants.InventoryService, constants.InventoryReservePath, headers, req, &resp)
	if err != nil {
		return "", mapInventoryError(err)
	}
	return resp.ReservationID, nil
}

func (a *InventoryHTTPAdapter) ReleaseStock(ctx context.Context, productID string, quantity int) error {
	params := url.Values{}
	params.Set("productId", productID)
	params.Set("quantity", strconv.Itoa(quantity))
	if err := a.client.PostForm(ctx, constants.InventoryService, constants.InventoryReleasePath, params); err != nil {
		return mapInventoryError(err)
	}
	return nil
}

func mapInventoryError(err error) error {
	var statusErr *httpclient.StatusError
	if !errors.As(err, &statusErr) {
		return err
	}
	switch statusErr.StatusCode {
	case 404:
		return errors.Wrap(domain.ErrProductNotFound, statusErr.Body)
	case 409:
		return errors.Wrap(domain.ErrInsufficientStock, statusErr.Body)
	default:
		return err
	}
}
