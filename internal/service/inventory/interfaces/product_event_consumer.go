package interfaces

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"

	"shopease/internal/pkg/logger"
	"shopease/internal/pkg/mq"
	"shopease/internal/service/inventory/application"
)

// productCreatedEvent 是商品服务发布的建档事件载荷。
type productCreatedEvent struct {
	ProductID string `json:"productId"`
	Name      string `json:"name"`
}

// ProductEventConsumer 订阅商品建档事件，为新商品自动创建零库存台账。
type ProductEventConsumer struct {
	reader  *kafka.Reader
	service *application.InventoryService
	failure *mq.FailureHandler

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewProductEventConsumer(reader *kafka.Reader, service *application.InventoryService, failure *mq.FailureHandler) *ProductEventConsumer {
	return &ProductEventConsumer{reader: reader, service: service, failure: failure}
}

// Start 启动消费循环。非阻塞，循环在后台 goroutine 中运行。
func (c *ProductEventConsumer) Start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.run(ctx)
	}()
}

// Stop 停止消费并等待在途消息处理完成。
func (c *ProductEventConsumer) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	_ = c.reader.Close()
	c.wg.Wait()
}

func (c *ProductEventConsumer) run(ctx context.Context) {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Ctx(ctx).Error().Err(err).Msg("Failed to fetch product event")
			continue
		}

		carrier := mq.KafkaHeaderCarrier(msg.Headers)
		msgCtx := otel.GetTextMapPropagator().Extract(ctx, &carrier)

		if err := c.handle(msgCtx, msg); err != nil {
			c.failure.Handle(msgCtx, msg, err)
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			logger.Ctx(msgCtx).Error().Err(err).Msg("Failed to commit product event offset")
		}
	}
}

func (c *ProductEventConsumer) handle(ctx context.Context, msg kafka.Message) error {
	var event productCreatedEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return errors.Wrap(err, "failed to decode product created event")
	}
	if event.ProductID == "" {
		return errors.New("product created event missing productId")
	}
	return c.service.ProvisionProduct(ctx, event.ProductID)
}
