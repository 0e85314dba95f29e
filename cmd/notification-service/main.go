package main

import (
	"context"

	"github.com/segmentio/kafka-go"

	"shopease/internal/pkg/bootstrap"
	"shopease/internal/pkg/constants"
	"shopease/internal/pkg/mq"
	"shopease/internal/service/notification"
)

const servicePort = 8083

func main() {
	var consumer *notification.OrderEventConsumer

	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: constants.NotificationService,
		Port:        servicePort,
		RegisterHandlers: func(appCtx bootstrap.AppCtx) {
			cfg := appCtx.Config

			hub := notification.NewHub()
			notification.NewWSHandler(hub).RegisterRoutes(appCtx.Mux)

			readers := []*kafka.Reader{
				mq.NewReader(cfg.Infra.Kafka.Brokers, constants.NotificationService, constants.TopicOrderCreated),
				mq.NewReader(cfg.Infra.Kafka.Brokers, constants.NotificationService, constants.TopicOrderCancelled),
			}
			deadLetterWriter := mq.NewWriter(cfg.Infra.Kafka.Brokers, constants.TopicDeadLetter)
			consumer = notification.NewOrderEventConsumer(readers, hub, mq.NewFailureHandler(deadLetterWriter))
			consumer.Start(context.Background())
		},
		OnShutdown: func(ctx context.Context) {
			if consumer != nil {
				consumer.Stop()
			}
		},
	})
}
