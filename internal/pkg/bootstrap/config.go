package bootstrap

import (
	"os"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"shopease/internal/pkg/logger"
)

// Config 是所有服务共享的配置根。
// 配置来源优先级：环境变量 > YAML 文件 > 内置默认值。
type Config struct {
	Infra InfraConfig `yaml:"infra"`
	App   AppConfig   `yaml:"app"`
}

type InfraConfig struct {
	MySQL struct {
		DSN string `yaml:"dsn"`
	} `yaml:"mysql"`
	Kafka struct {
		Brokers []string `yaml:"brokers"`
	} `yaml:"kafka"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
	Jaeger struct {
		Endpoint string `yaml:"endpoint"`
	} `yaml:"jaeger"`
	Nacos struct {
		ServerAddrs string `yaml:"serverAddrs"`
		Namespace   string `yaml:"namespace"`
		Group       string `yaml:"group"`
	} `yaml:"nacos"`
	Zookeeper struct {
		Enabled          bool     `yaml:"enabled"`
		Servers          []string `yaml:"servers"`
		SessionTimeoutMS int      `yaml:"sessionTimeoutMs"`
	} `yaml:"zookeeper"`
}

type AppConfig struct {
	Resilience struct {
		MaxAttempts        int     `yaml:"maxAttempts"`
		InitialBackoffMS   int     `yaml:"initialBackoffMs"`
		MaxBackoffMS       int     `yaml:"maxBackoffMs"`
		BreakerFailureRate float64 `yaml:"breakerFailureRate"`
		BreakerMinRequests uint32  `yaml:"breakerMinRequests"`
		BreakerOpenMS      int     `yaml:"breakerOpenMs"`
	} `yaml:"resilience"`
	Inventory struct {
		DefaultLowStockThreshold int `yaml:"defaultLowStockThreshold"`
	} `yaml:"inventory"`
	Order struct {
		CallTimeoutMS          int `yaml:"callTimeoutMs"`
		CatalogCacheTTLSeconds int `yaml:"catalogCacheTtlSeconds"`
	} `yaml:"order"`
}

func (a *AppConfig) CallTimeout() time.Duration {
	return time.Duration(a.Order.CallTimeoutMS) * time.Millisecond
}

func (a *AppConfig) CatalogCacheTTL() time.Duration {
	return time.Duration(a.Order.CatalogCacheTTLSeconds) * time.Second
}

var (
	currentConfig Config
	configOnce    sync.Once
)

// Init 加载配置。幂等，可在 main 中显式调用。
func Init() {
	configOnce.Do(loadConfig)
}

// GetCurrentConfig 返回进程级配置快照。
func GetCurrentConfig() *Config {
	Init()
	return &currentConfig
}

func loadConfig() {
	cfg := defaultConfig()

	path := getEnv("CONFIG_FILE", "configs/config.yaml")
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			logger.Logger().Fatal().Err(err).Str("path", path).Msg("Invalid config file")
		}
		logger.Logger().Info().Str("path", path).Msg("Config file loaded")
	} else {
		logger.Logger().Warn().Str("path", path).Msg("Config file not found, using defaults")
	}

	// 环境变量覆盖，便于容器化部署
	if v, ok := os.LookupEnv("MYSQL_DSN"); ok {
		cfg.Infra.MySQL.DSN = v
	}
	if v, ok := os.LookupEnv("KAFKA_BROKERS"); ok {
		cfg.Infra.Kafka.Brokers = strings.Split(v, ",")
	}
	if v, ok := os.LookupEnv("REDIS_ADDR"); ok {
		cfg.Infra.Redis.Addr = v
	}
	if v, ok := os.LookupEnv("JAEGER_ENDPOINT"); ok {
		cfg.Infra.Jaeger.Endpoint = v
	}
	if v, ok := os.LookupEnv("NACOS_SERVER_ADDRS"); ok {
		cfg.Infra.Nacos.ServerAddrs = v
	}
	if v, ok := os.LookupEnv("NACOS_NAMESPACE"); ok {
		cfg.Infra.Nacos.Namespace = v
	}
	if v, ok := os.LookupEnv("NACOS_GROUP"); ok {
		cfg.Infra.Nacos.Group = v
	}
	if v, ok := os.LookupEnv("ZOOKEEPER_SERVERS"); ok {
		cfg.Infra.Zookeeper.Enabled = true
		cfg.Infra.Zookeeper.Servers = strings.Split(v, ",")
	}

	currentConfig = cfg
}

func defaultConfig() Config {
	var cfg Config
	cfg.Infra.MySQL.DSN = "root:root@tcp(localhost:3306)/shopease?charset=utf8mb4&parseTime=True&loc=Local"
	cfg.Infra.Kafka.Brokers = []string{"localhost:9092"}
	cfg.Infra.Redis.Addr = "localhost:6379"
	cfg.Infra.Jaeger.Endpoint = "http://localhost:14268/api/traces"
	cfg.Infra.Nacos.ServerAddrs = "localhost:8848"
	cfg.Infra.Nacos.Group = "DEFAULT_GROUP"
	cfg.Infra.Zookeeper.SessionTimeoutMS = 5000

	cfg.App.Resilience.MaxAttempts = 3
	cfg.App.Resilience.InitialBackoffMS = 100
	cfg.App.Resilience.MaxBackoffMS = 2000
	cfg.App.Resilience.BreakerFailureRate = 0.5
	cfg.App.Resilience.BreakerMinRequests = 10
	cfg.App.Resilience.BreakerOpenMS = 30000
	cfg.App.Inventory.DefaultLowStockThreshold = 10
	cfg.App.Order.CallTimeoutMS = 3000
	cfg.App.Order.CatalogCacheTTLSeconds = 300
	return cfg
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
