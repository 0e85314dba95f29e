package adapter

import (
	"context"
	"encoding/json"

	"github.com/segmentio/kafka-go"

	"shopease/internal/pkg/constants"
	"shopease/internal/pkg/mq"
	"shopease/internal/service/order/domain"
)

// KafkaEventPublisher 把订单生命周期事件写入 Kafka。
// writer 必须由 mq.NewMultiTopicWriter 创建，主题按事件类型选择。
type KafkaEventPublisher struct {
	writer *kafka.Writer
}

func NewKafkaEventPublisher(writer *kafka.Writer) *KafkaEventPublisher {
	return &KafkaEventPublisher{writer: writer}
}

func (p *KafkaEventPublisher) PublishOrderCreated(ctx context.Context, event domain.OrderCreatedEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return mq.ProduceToTopic(ctx, p.writer, constants.TopicOrderCreated, []byte(event.OrderNumber), payload)
}

func (p *KafkaEventPublisher) PublishOrderCancelled(ctx context.Context, event domain.OrderCancelledEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return mq.ProduceToTopic(ctx, p.writer, constants.TopicOrderCancelled, []byte(event.OrderNumber), payload)
}

func (p *KafkaEventPublisher) Close() error {
	return p.writer.Close()
}
