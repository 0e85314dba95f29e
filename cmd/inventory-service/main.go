package main

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"

	"shopease/internal/pkg/bootstrap"
	"shopease/internal/pkg/constants"
	"shopease/internal/pkg/logger"
	"shopease/internal/pkg/mq"
	"shopease/internal/pkg/zookeeper"
	"shopease/internal/service/inventory/application"
	"shopease/internal/service/inventory/domain"
	"shopease/internal/service/inventory/infrastructure"
	"shopease/internal/service/inventory/interfaces"

	gormmysql "gorm.io/driver/mysql"
	"gorm.io/gorm"
)

const servicePort = 8082

func main() {
	var consumer *interfaces.ProductEventConsumer

	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: constants.InventoryService,
		Port:        servicePort,
		RegisterHandlers: func(appCtx bootstrap.AppCtx) {
			cfg := appCtx.Config

			db, err := gorm.Open(gormmysql.Open(cfg.Infra.MySQL.DSN), &gorm.Config{})
			if err != nil {
				logger.Logger().Fatal().Err(err).Msg("failed to connect to mysql")
			}
			if err := infrastructure.AutoMigrate(db); err != nil {
				logger.Logger().Fatal().Err(err).Msg("failed to migrate inventory schema")
			}

			var repo domain.Repository = infrastructure.NewGormInventoryRepository(db, cfg.App.Inventory.DefaultLowStockThreshold)

			// 多实例部署且数据库不承担互斥时，再套一层 ZooKeeper 商品锁
			if cfg.Infra.Zookeeper.Enabled {
				zkConn, err := zookeeper.Connect(cfg.Infra.Zookeeper.Servers,
					time.Duration(cfg.Infra.Zookeeper.SessionTimeoutMS)*time.Millisecond)
				if err != nil {
					logger.Logger().Fatal().Err(err).Msg("failed to connect to zookeeper")
				}
				repo = infrastructure.NewZKLockedRepository(repo, zkConn, 10*time.Second)
				logger.Logger().Info().Msg("Inventory repository wrapped with zookeeper stock locks")
			}

			tracer := otel.Tracer(constants.InventoryService)
			service := application.NewInventoryService(repo, tracer)

			interfaces.NewInventoryHandler(service).RegisterRoutes(appCtx.Mux)

			// 商品建档事件 -> 自动创建零库存台账
			reader := mq.NewReader(cfg.Infra.Kafka.Brokers, constants.InventoryService, constants.TopicProductCreated)
			deadLetterWriter := mq.NewWriter(cfg.Infra.Kafka.Brokers, constants.TopicDeadLetter)
			consumer = interfaces.NewProductEventConsumer(reader, service, mq.NewFailureHandler(deadLetterWriter))
			consumer.Start(context.Background())
		},
		OnShutdown: func(ctx context.Context) {
			if consumer != nil {
				consumer.Stop()
			}
		},
	})
}
