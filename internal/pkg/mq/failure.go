package mq

import (
	"context"

	"github.com/segmentio/kafka-go"

	"shopease/internal/pkg/logger"
)

// FailureHandler 把处理失败的消息转发到死信主题，避免消费者陷入失败循环。
// 转发本身失败时只记录日志——死信是尽力而为的兜底，不是投递保证。
type FailureHandler struct {
	writer *kafka.Writer
}

func NewFailureHandler(writer *kafka.Writer) *FailureHandler {
	return &FailureHandler{writer: writer}
}

// Handle 将原始消息连同失败原因写入死信主题。
func (h *FailureHandler) Handle(ctx context.Context, msg kafka.Message, cause error) {
	logger.Ctx(ctx).Error().
		Err(cause).
		Str("topic", msg.Topic).
		Msg("Message processing failed, forwarding to dead-letter topic")

	dead := kafka.Message{
		Key:   msg.Key,
		Value: msg.Value,
		Headers: append(msg.Headers,
			kafka.Header{Key: "x-original-topic", Value: []byte(msg.Topic)},
			kafka.Header{Key: "x-failure-reason", Value: []byte(cause.Error())},
		),
	}
	if err := h.writer.WriteMessages(ctx, dead); err != nil {
		logger.Ctx(ctx).Error().Err(err).Msg("Failed to write message to dead-letter topic")
	}
}
