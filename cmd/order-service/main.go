package main

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"

	"shopease/internal/pkg/bootstrap"
	"shopease/internal/pkg/constants"
	"shopease/internal/pkg/httpclient"
	"shopease/internal/pkg/logger"
	"shopease/internal/pkg/mq"
	"shopease/internal/pkg/resilience"
	"shopease/internal/service/order/application"
	"shopease/internal/service/order/infrastructure"
	"shopease/internal/service/order/infrastructure/adapter"
	"shopease/internal/service/order/interfaces"

	gormmysql "gorm.io/driver/mysql"
	"gorm.io/gorm"
)

const servicePort = 8081

func main() {
	var eventWriter *kafka.Writer

	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: constants.OrderService,
		Port:        servicePort,
		RegisterHandlers: func(appCtx bootstrap.AppCtx) {
			cfg := appCtx.Config
			tracer := otel.Tracer(constants.OrderService)

			db, err := gorm.Open(gormmysql.Open(cfg.Infra.MySQL.DSN), &gorm.Config{})
			if err != nil {
				logger.Logger().Fatal().Err(err).Msg("failed to connect to mysql")
			}
			if err := infrastructure.AutoMigrate(db); err != nil {
				logger.Logger().Fatal().Err(err).Msg("failed to migrate order schema")
			}
			repo := infrastructure.NewGormOrderRepository(db)

			httpClient := httpclient.NewClient(tracer, appCtx.Nacos)
			redisClient := redis.NewClient(&redis.Options{
				Addr:     cfg.Infra.Redis.Addr,
				Password: cfg.Infra.Redis.Password,
				DB:       cfg.Infra.Redis.DB,
			})

			catalog := adapter.NewCatalogHTTPAdapter(httpClient, redisClient, cfg.App.CatalogCacheTTL())
			inventory := adapter.NewInventoryHTTPAdapter(httpClient)

			eventWriter = mq.NewMultiTopicWriter(cfg.Infra.Kafka.Brokers)
			publisher := adapter.NewKafkaEventPublisher(eventWriter)

			policyOpts := resilience.Options{
				MaxAttempts:    cfg.App.Resilience.MaxAttempts,
				InitialBackoff: time.Duration(cfg.App.Resilience.InitialBackoffMS) * time.Millisecond,
				MaxBackoff:     time.Duration(cfg.App.Resilience.MaxBackoffMS) * time.Millisecond,
				FailureRatio:   cfg.App.Resilience.BreakerFailureRate,
				MinRequests:    cfg.App.Resilience.BreakerMinRequests,
				OpenTimeout:    time.Duration(cfg.App.Resilience.BreakerOpenMS) * time.Millisecond,
			}

			service := application.NewOrderService(repo, catalog, inventory, publisher, policyOpts, tracer, cfg.App.CallTimeout())
			interfaces.NewOrderHandler(service).RegisterRoutes(appCtx.Mux)
		},
		OnShutdown: func(ctx context.Context) {
			if eventWriter != nil {
				_ = eventWriter.Close()
			}
		},
	})
}
