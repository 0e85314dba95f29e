package adapter

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"shopease/internal/pkg/constants"
	"shopease/internal/pkg/httpclient"
	"shopease/internal/pkg/logger"
	"shopease/internal/service/order/domain"
	"shopease/internal/service/order/port"
)

const catalogCachePrefix = "shopease:catalog:product:"

// CatalogHTTPAdapter 经由服务发现调用商品服务，前置一层 Redis 读穿缓存。
// 缓存只是加速：Redis 故障时退化为直连商品服务，绝不让缓存挡住下单。
type CatalogHTTPAdapter struct {
	client *httpclient.Client
	cache  *redis.Client
	ttl    time.Duration
}

func NewCatalogHTTPAdapter(client *httpclient.Client, cache *redis.Client, ttl time.Duration) *CatalogHTTPAdapter {
	return &CatalogHTTPAdapter{client: client, cache: cache, ttl: ttl}
}

func (a *CatalogHTTPAdapter) GetProduct(ctx context.Context, productID string) (*port.Product, error) {
	if product := a.fromCache(ctx, productID); product != nil {
		return product, nil
	}

	var product port.Product
	err := a.client.GetJSON(ctx, constants.ProductService, constants.ProductGetPath+productID, nil, &product)
	if err != nil {
		var statusErr *httpclient.StatusError
		if errors.As(err, &statusErr) && statusErr.StatusCode == 404 {
			return nil, domain.ErrProductNotFound
		}
		return nil, err
	}

	a.toCache(ctx, productID, &product)
	return &product, nil
}

func (a *CatalogHTTPAdapter) fromCache(ctx context.Context, productID string) *port.Product {
	if a.cache == nil {
		return nil
	}
	raw, err := a.cache.Get(ctx, catalogCachePrefix+productID).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logger.Ctx(ctx).Warn().Err(err).Msg("Catalog cache read failed, falling through to product service")
		}
		return nil
	}
	var product port.Product
	if err := json.Unmarshal(raw, &product); err != nil {
		return nil
	}
	return &product
}

func (a *CatalogHTTPAdapter) toCache(ctx context.Context, productID string, product *port.Product) {
	if a.cache == nil {
		return
	}
	raw, err := json.Marshal(product)
	if err != nil {
		return
	}
	if err := a.cache.Set(ctx, catalogCachePrefix+productID, raw, a.ttl).Err(); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Msg("Catalog cache write failed")
	}
}
