package application

import (
	"context"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"shopease/internal/pkg/logger"
	"shopease/internal/service/inventory/domain"
)

// InventoryService 是库存台账的应用服务，库存计数的唯一事实来源。
// 自身无状态，所有并发控制下沉到仓储的原子事务中。
type InventoryService struct {
	repo   domain.Repository
	tracer trace.Tracer
}

func NewInventoryService(repo domain.Repository, tracer trace.Tracer) *InventoryService {
	return &InventoryService{repo: repo, tracer: tracer}
}

// CheckStock 只读查询一批商品的可用量，逐项返回结果。
// 任一商品缺台账记录时返回 ErrRecordNotFound，不用零库存顶替。
func (s *InventoryService) CheckStock(ctx context.Context, requests []StockCheckRequest) ([]StockCheckResult, error) {
	ctx, span := s.tracer.Start(ctx, "inventory.CheckStock")
	defer span.End()
	span.SetAttributes(attribute.Int("items.count", len(requests)))

	results := make([]StockCheckResult, 0, len(requests))
	for _, req := range requests {
		rec, err := s.repo.Get(ctx, req.ProductID)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "stock check failed")
			return nil, err
		}
		results = append(results, StockCheckResult{
			ProductID:         req.ProductID,
			RequestedQuantity: req.Quantity,
			AvailableQuantity: rec.Available(),
			InStock:           rec.InStock(req.Quantity),
		})
	}
	return results, nil
}

// ReserveStock 对一批商品执行全有或全无的预占，返回预占句柄 ID。
// idempotencyKey 由调用方（订单侧）生成并在重试间保持不变：
// 重复提交同一 key 不会再次占用库存，返回首次生成的 reservationID。
func (s *InventoryService) ReserveStock(ctx context.Context, idempotencyKey string, items []domain.ReservationItem) (string, error) {
	ctx, span := s.tracer.Start(ctx, "inventory.ReserveStock")
	defer span.End()
	span.SetAttributes(attribute.Int("items.count", len(items)))

	if len(items) == 0 {
		return "", domain.ErrInvalidQuantity
	}
	for _, item := range items {
		if item.Quantity <= 0 {
			return "", domain.ErrInvalidQuantity
		}
	}

	reservationID := uuid.New().String()
	appliedID, err := s.repo.Reserve(ctx, idempotencyKey, reservationID, mergeDuplicates(items))
	if err != nil {
		reservationsTotal.WithLabelValues("failed").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "reservation failed")
		return "", err
	}

	if appliedID != reservationID {
		// 幂等命中：这次调用是重试，库存没有被再次占用
		reservationsTotal.WithLabelValues("replayed").Inc()
		logger.Ctx(ctx).Info().
			Str("idempotency_key", idempotencyKey).
			Str("reservation_id", appliedID).
			Msg("Reservation replayed from idempotency key, no stock re-held")
		return appliedID, nil
	}

	reservationsTotal.WithLabelValues("applied").Inc()
	logger.Ctx(ctx).Info().Str("reservation_id", appliedID).Msg("Stock reserved")
	return appliedID, nil
}

// ReleaseStock 释放一个商品的预占。释放量超过当前预占量时按预占量钳制，
// 只告警不报错：补偿调用可能与并发确认竞争，这是刻意的容忍。
func (s *InventoryService) ReleaseStock(ctx context.Context, productID string, quantity int) error {
	ctx, span := s.tracer.Start(ctx, "inventory.ReleaseStock")
	defer span.End()
	span.SetAttributes(attribute.String("product.id", productID), attribute.Int("quantity", quantity))

	_, err := s.repo.Update(ctx, productID, func(rec *domain.Record) error {
		released, err := rec.Release(quantity)
		if err != nil {
			return err
		}
		if released < quantity {
			overReleaseTotal.WithLabelValues(productID).Inc()
			span.AddEvent("release clamped to held reservation")
			logger.Ctx(ctx).Warn().
				Str("product_id", productID).
				Int("requested", quantity).
				Int("released", released).
				Msg("Attempting to release more stock than reserved, clamped")
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "release failed")
		return err
	}
	logger.Ctx(ctx).Info().Str("product_id", productID).Int("quantity", quantity).Msg("Reserved stock released")
	return nil
}

// ConfirmDeduction 把预占转为永久扣减。扣减后触及低库存阈值时
// 发出低库存信号（日志 + 指标，不发事件）。
func (s *InventoryService) ConfirmDeduction(ctx context.Context, productID string, quantity int) error {
	ctx, span := s.tracer.Start(ctx, "inventory.ConfirmDeduction")
	defer span.End()
	span.SetAttributes(attribute.String("product.id", productID), attribute.Int("quantity", quantity))

	rec, err := s.repo.Update(ctx, productID, func(rec *domain.Record) error {
		return rec.ConfirmDeduction(quantity)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "confirm deduction failed")
		return err
	}

	if rec.IsLowStock() {
		lowStockTotal.WithLabelValues(productID).Inc()
		span.AddEvent("low stock threshold reached")
		logger.Ctx(ctx).Warn().
			Str("product_id", productID).
			Int("available", rec.Available()).
			Int("threshold", rec.LowStockThreshold).
			Msg("LOW STOCK WARNING: product is running low")
	}
	logger.Ctx(ctx).Info().Str("product_id", productID).Int("quantity", quantity).Msg("Deduction confirmed")
	return nil
}

// Restock 增加在库量，记录缺失时隐式建档。
func (s *InventoryService) Restock(ctx context.Context, productID string, quantity int) error {
	ctx, span := s.tracer.Start(ctx, "inventory.Restock")
	defer span.End()
	span.SetAttributes(attribute.String("product.id", productID), attribute.Int("quantity", quantity))

	_, err := s.repo.CreateOrUpdate(ctx, productID, func(rec *domain.Record) error {
		return rec.Restock(quantity)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "restock failed")
		return err
	}
	logger.Ctx(ctx).Info().Str("product_id", productID).Int("quantity", quantity).Msg("Restocked")
	return nil
}

// GetInventory 返回单个商品的台账视图。
func (s *InventoryService) GetInventory(ctx context.Context, productID string) (*InventoryView, error) {
	ctx, span := s.tracer.Start(ctx, "inventory.GetInventory")
	defer span.End()

	rec, err := s.repo.Get(ctx, productID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return toInventoryView(rec), nil
}

// ProvisionProduct 在收到商品建档事件时创建零库存记录，已存在时静默跳过。
func (s *InventoryService) ProvisionProduct(ctx context.Context, productID string) error {
	ctx, span := s.tracer.Start(ctx, "inventory.ProvisionProduct")
	defer span.End()

	created := false
	_, err := s.repo.CreateOrUpdate(ctx, productID, func(rec *domain.Record) error {
		created = rec.Quantity == 0 && rec.ReservedQuantity == 0 && rec.LastRestockedAt.IsZero()
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return err
	}
	if created {
		logger.Ctx(ctx).Info().Str("product_id", productID).Msg("Auto-created inventory record for new product")
	}
	return nil
}

// mergeDuplicates 合并同一商品的重复行，保证仓储拿到的列表每商品至多一项。
func mergeDuplicates(items []domain.ReservationItem) []domain.ReservationItem {
	index := make(map[string]int, len(items))
	merged := make([]domain.ReservationItem, 0, len(items))
	for _, item := range items {
		if i, ok := index[item.ProductID]; ok {
			merged[i].Quantity += item.Quantity
			continue
		}
		index[item.ProductID] = len(merged)
		merged = append(merged, item)
	}
	return merged
}
