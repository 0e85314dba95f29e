package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"

	"shopease/internal/pkg/constants"
	"shopease/internal/pkg/logger"
	"shopease/internal/pkg/mq"
)

// orderEvent 是两类订单事件共享的字段子集，通知只需要这些。
type orderEvent struct {
	OrderID     string    `json:"orderId"`
	OrderNumber string    `json:"orderNumber"`
	UserID      string    `json:"userId"`
	TotalAmount float64   `json:"totalAmount"`
	Timestamp   time.Time `json:"timestamp"`
}

// Notification 是推送给客户端的消息形状。
type Notification struct {
	Type        string    `json:"type"`
	OrderNumber string    `json:"orderNumber"`
	Message     string    `json:"message"`
	Timestamp   time.Time `json:"timestamp"`
}

// OrderEventConsumer 订阅订单生命周期主题并推送到 Hub。
type OrderEventConsumer struct {
	readers []*kafka.Reader
	hub     *Hub
	failure *mq.FailureHandler

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewOrderEventConsumer(readers []*kafka.Reader, hub *Hub, failure *mq.FailureHandler) *OrderEventConsumer {
	return &OrderEventConsumer{readers: readers, hub: hub, failure: failure}
}

// Start 为每个主题启动一个消费循环。
func (c *OrderEventConsumer) Start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)
	for _, reader := range c.readers {
		c.wg.Add(1)
		go func(reader *kafka.Reader) {
			defer c.wg.Done()
			c.run(ctx, reader)
		}(reader)
	}
}

// Stop 停止全部消费循环并等待退出。
func (c *OrderEventConsumer) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	for _, reader := range c.readers {
		_ = reader.Close()
	}
	c.wg.Wait()
}

func (c *OrderEventConsumer) run(ctx context.Context, reader *kafka.Reader) {
	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Ctx(ctx).Error().Err(err).Msg("Failed to fetch order event")
			continue
		}

		carrier := mq.KafkaHeaderCarrier(msg.Headers)
		msgCtx := otel.GetTextMapPropagator().Extract(ctx, &carrier)

		if err := c.handle(msgCtx, msg); err != nil {
			c.failure.Handle(msgCtx, msg, err)
		}
		if err := reader.CommitMessages(ctx, msg); err != nil {
			logger.Ctx(msgCtx).Error().Err(err).Msg("Failed to commit order event offset")
		}
	}
}

func (c *OrderEventConsumer) handle(ctx context.Context, msg kafka.Message) error {
	var event orderEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return errors.Wrap(err, "failed to decode order event")
	}
	if event.UserID == "" {
		return errors.New("order event missing userId")
	}

	notification := toNotification(msg.Topic, event)
	c.hub.Push(event.UserID, notification)
	logger.Ctx(ctx).Info().
		Str("user_id", event.UserID).
		Str("order_number", event.OrderNumber).
		Str("type", notification.Type).
		Msg("Notification pushed")
	return nil
}

func toNotification(topic string, event orderEvent) Notification {
	n := Notification{OrderNumber: event.OrderNumber, Timestamp: event.Timestamp}
	switch topic {
	case constants.TopicOrderCancelled:
		n.Type = "ORDER_CANCELLED"
		n.Message = fmt.Sprintf("Your order %s has been cancelled.", event.OrderNumber)
	default:
		n.Type = "ORDER_CREATED"
		n.Message = fmt.Sprintf("Your order %s has been placed, total %.2f.", event.OrderNumber, event.TotalAmount)
	}
	return n
}
