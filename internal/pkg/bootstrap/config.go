// internal/pkg/bootstrap/config.go
package bootstrap

import (
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config 是订单服务的完整配置。
// 加载顺序: YAML 文件 -> Nacos 远程配置(可选) -> 环境变量 / 默认值。
type Config struct {
	App          AppConfig          `yaml:"app"`
	HTTP         HTTPConfig         `yaml:"http"`
	Infra        InfraConfig        `yaml:"infra"`
	Auth         AuthConfig         `yaml:"auth"`
	Order        OrderConfig        `yaml:"order"`
	Ledger       LedgerConfig       `yaml:"ledger"`
	Notification NotificationConfig `yaml:"notification"`
	Support      SupportConfig      `yaml:"support"`
	Lock         LockConfig         `yaml:"lock"`
}

type AppConfig struct {
	Name     string `yaml:"name" env:"APP_NAME" env-default:"order-service"`
	Env      string `yaml:"env" env:"APP_ENV" env-default:"prod"`
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`
}

type HTTPConfig struct {
	Port              int           `yaml:"port" env:"HTTP_PORT" env-default:"5000"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout" env:"HTTP_READ_HEADER_TIMEOUT" env-default:"5s"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout" env:"HTTP_SHUTDOWN_TIMEOUT" env-default:"10s"`
}

type InfraConfig struct {
	MySQL     MySQLConfig     `yaml:"mysql"`
	Redis     RedisConfig     `yaml:"redis"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Zookeeper ZookeeperConfig `yaml:"zookeeper"`
	Nacos     NacosConfig     `yaml:"nacos"`
	Jaeger    JaegerConfig    `yaml:"jaeger"`
}

type MySQLConfig struct {
	Host         string `yaml:"host" env:"MYSQL_HOST" env-default:"localhost"`
	Port         int    `yaml:"port" env:"MYSQL_PORT" env-default:"3306"`
	User         string `yaml:"user" env:"MYSQL_USER" env-default:"root"`
	Password     string `yaml:"password" env:"MYSQL_PASSWORD"`
	Database     string `yaml:"database" env:"MYSQL_DATABASE" env-default:"storefront"`
	MaxOpenConns int    `yaml:"max_open_conns" env:"MYSQL_MAX_OPEN_CONNS" env-default:"20"`
	MaxIdleConns int    `yaml:"max_idle_conns" env:"MYSQL_MAX_IDLE_CONNS" env-default:"10"`
	SkipMigrate  bool   `yaml:"skip_migrate" env:"MYSQL_SKIP_MIGRATE"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr" env:"REDIS_ADDR" env-default:"localhost:6379"`
	Password string `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers" env:"KAFKA_BROKERS" env-default:"localhost:9092"`
	Topic   string   `yaml:"topic" env:"KAFKA_ORDER_TOPIC" env-default:"order-placed"`
	GroupID string   `yaml:"group_id" env:"KAFKA_GROUP_ID" env-default:"order-notification-group"`
}

type ZookeeperConfig struct {
	Servers        []string      `yaml:"servers" env:"ZOOKEEPER_SERVERS" env-default:"localhost:2181"`
	SessionTimeout time.Duration `yaml:"session_timeout" env:"ZOOKEEPER_SESSION_TIMEOUT" env-default:"10s"`
}

type NacosConfig struct {
	Enabled      bool   `yaml:"enabled" env:"NACOS_ENABLED"`
	ServerAddrs  string `yaml:"server_addrs" env:"NACOS_SERVER_ADDRS" env-default:"localhost:8848"`
	Namespace    string `yaml:"namespace" env:"NACOS_NAMESPACE"`
	Group        string `yaml:"group" env:"NACOS_GROUP" env-default:"DEFAULT_GROUP"`
	ConfigDataID string `yaml:"config_data_id" env:"NACOS_CONFIG_DATA_ID"`
}

type JaegerConfig struct {
	Endpoint    string  `yaml:"endpoint" env:"JAEGER_ENDPOINT"`
	SampleRatio float64 `yaml:"sample_ratio" env:"JAEGER_SAMPLE_RATIO" env-default:"1"`
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret" env:"JWT_SECRET"`
}

type OrderConfig struct {
	ProcessingTimeout time.Duration `yaml:"processing_timeout" env:"ORDER_PROCESSING_TIMEOUT" env-default:"30s"`
	LookupConcurrency int           `yaml:"lookup_concurrency" env:"ORDER_LOOKUP_CONCURRENCY" env-default:"8"`
}

// LedgerConfig 选择库存账本的实现: redis | mysql | memory
type LedgerConfig struct {
	Driver    string `yaml:"driver" env:"LEDGER_DRIVER" env-default:"mysql"`
	SkipPrime bool   `yaml:"skip_prime" env:"LEDGER_SKIP_PRIME"`
}

// NotificationConfig 中 Delivery 取值 at_most_once | at_least_once，Sink 取值 webhook | kafka
type NotificationConfig struct {
	Delivery   string        `yaml:"delivery" env:"NOTIFICATION_DELIVERY" env-default:"at_most_once"`
	Sink       string        `yaml:"sink" env:"NOTIFICATION_SINK" env-default:"webhook"`
	WebhookURL string        `yaml:"webhook_url" env:"N8N_WEBHOOK_URL"`
	Timeout    time.Duration `yaml:"timeout" env:"NOTIFICATION_TIMEOUT" env-default:"5s"`
	Condition  string        `yaml:"condition" env:"NOTIFICATION_CONDITION"`
	Relay      RelayConfig   `yaml:"relay"`
}

type RelayConfig struct {
	PollInterval time.Duration `yaml:"poll_interval" env:"OUTBOX_POLL_INTERVAL" env-default:"2s"`
	BatchSize    int           `yaml:"batch_size" env:"OUTBOX_BATCH_SIZE" env-default:"50"`
	MaxAttempts  int           `yaml:"max_attempts" env:"OUTBOX_MAX_ATTEMPTS" env-default:"10"`
}

type SupportConfig struct {
	WebhookURL string        `yaml:"webhook_url" env:"SUPPORT_CHAT_WEBHOOK"`
	Timeout    time.Duration `yaml:"timeout" env:"SUPPORT_CHAT_TIMEOUT" env-default:"30s"`
}

// LockConfig 选择订单状态更新锁的实现: local | zookeeper
type LockConfig struct {
	Driver  string        `yaml:"driver" env:"LOCK_DRIVER" env-default:"local"`
	Timeout time.Duration `yaml:"timeout" env:"LOCK_TIMEOUT" env-default:"10s"`
}

const (
	DeliveryAtMostOnce  = "at_most_once"
	DeliveryAtLeastOnce = "at_least_once"
)

// LoadConfig 读取 YAML 文件(文件不存在时跳过)，然后应用环境变量和默认值
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, errors.Wrapf(err, "parse config file %s", path)
			}
		case !os.IsNotExist(err):
			return nil, errors.Wrapf(err, "read config file %s", path)
		}
	}

	if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, errors.Wrap(err, "apply environment overrides")
	}
	return cfg, nil
}

// Overlay 用远程 YAML 覆盖当前配置，环境变量依然拥有最高优先级
func (c *Config) Overlay(remote []byte) error {
	if len(remote) == 0 {
		return nil
	}
	if err := yaml.Unmarshal(remote, c); err != nil {
		return errors.Wrap(err, "parse remote config")
	}
	return errors.Wrap(cleanenv.ReadEnv(c), "apply environment overrides")
}

// Validate 检查启动所必需的配置
func (c *Config) Validate() error {
	switch c.Ledger.Driver {
	case "redis", "mysql", "memory":
	default:
		return errors.Errorf("unknown ledger driver %q", c.Ledger.Driver)
	}
	switch c.Notification.Delivery {
	case DeliveryAtMostOnce, DeliveryAtLeastOnce:
	default:
		return errors.Errorf("unknown notification delivery %q", c.Notification.Delivery)
	}
	switch c.Notification.Sink {
	case "webhook", "kafka":
	default:
		return errors.Errorf("unknown notification sink %q", c.Notification.Sink)
	}
	switch c.Lock.Driver {
	case "local", "zookeeper":
	default:
		return errors.Errorf("unknown lock driver %q", c.Lock.Driver)
	}
	return nil
}
