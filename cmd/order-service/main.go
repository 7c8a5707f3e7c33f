// cmd/order-service/main.go
package main

import (
	"context"
	"flag"
	"storefront/internal/pkg/auth"
	"storefront/internal/pkg/bootstrap"
	"storefront/internal/pkg/httpclient"
	"storefront/internal/pkg/keylock"
	"storefront/internal/pkg/metrics"
	"storefront/internal/pkg/mq"
	"storefront/internal/service/order/application"
	"storefront/internal/service/order/domain"
	"storefront/internal/service/order/domain/port"
	"storefront/internal/service/order/infrastructure"
	"storefront/internal/service/order/infrastructure/adapter"
	"storefront/internal/service/order/infrastructure/rule"
	"storefront/internal/service/order/interfaces"
	"storefront/internal/service/push"
	supportApp "storefront/internal/service/support/application"
	supportHTTP "storefront/internal/service/support/interfaces"
	"storefront/internal/zookeeper"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"gorm.io/gorm"
)

const serviceName = "order-service"

type closer = func(ctx context.Context) error

// main 函数是应用的"组装根" (Composition Root)
// 它的核心职责是：创建并组装所有依赖项，然后启动应用。
func main() {
	configPath := flag.String("config", "configs/order-service.yaml", "path to the YAML config file")
	flag.Parse()

	cfg, err := bootstrap.Init(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if cfg.Auth.JWTSecret == "" {
		log.Fatal().Msg("auth.jwt_secret (JWT_SECRET) is required")
	}
	if err := run(cfg); err != nil {
		log.Fatal().Err(err).Msg("order service exited with error")
	}
}

func run(cfg *bootstrap.Config) error {
	var closers []closer
	// 启动失败时也要释放已经创建的资源
	started := false
	defer func() {
		if started {
			return
		}
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i](context.Background())
		}
	}()

	tracer := otel.Tracer(serviceName)
	m := metrics.New("order", prometheus.DefaultRegisterer)

	// 1. 存储
	db, err := infrastructure.OpenMySQL(cfg.Infra.MySQL)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return errors.Wrap(err, "get sql.DB")
	}
	closers = append(closers, func(context.Context) error { return sqlDB.Close() })

	repo := infrastructure.NewGormOrderRepository(db)
	catalog := infrastructure.NewGormProductCatalog(db)

	// 2. 库存账本
	ledger, ledgerClose, err := buildLedger(cfg, db, catalog)
	if err != nil {
		return err
	}
	if ledgerClose != nil {
		closers = append(closers, ledgerClose)
	}

	// 3. 通知
	httpClient := httpclient.NewClient(tracer)
	notifier, notifierClose, err := buildNotifier(cfg, httpClient)
	if err != nil {
		return err
	}
	if notifierClose != nil {
		closers = append(closers, notifierClose)
	}
	outbox := cfg.Notification.Delivery == bootstrap.DeliveryAtLeastOnce
	if outbox && notifier == nil {
		return errors.New("at_least_once delivery requires a configured notification sink")
	}

	// 4. 状态更新锁
	locker, lockerClose, err := buildLocker(cfg)
	if err != nil {
		return err
	}
	if lockerClose != nil {
		closers = append(closers, lockerClose)
	}

	hub := push.NewHub()

	service := application.NewOrderApplicationService(application.Dependencies{
		Repo:      repo,
		Catalog:   catalog,
		Ledger:    adapter.NewInstrumentedLedger(ledger, m),
		Notifier:  notifier,
		Publisher: hub,
		Locker:    locker,
		Metrics:   m,
		Tracer:    tracer,
	}, application.Options{
		ProcessingTimeout:   cfg.Order.ProcessingTimeout,
		NotificationTimeout: cfg.Notification.Timeout,
		LookupConcurrency:   cfg.Order.LookupConcurrency,
		Outbox:              outbox,
	})

	workers := []func(ctx context.Context) error{hub.Run}
	if outbox {
		relay := infrastructure.NewRelay(infrastructure.NewGormOutboxStore(db), notifier, m, infrastructure.RelayOptions{
			PollInterval: cfg.Notification.Relay.PollInterval,
			BatchSize:    cfg.Notification.Relay.BatchSize,
			MaxAttempts:  cfg.Notification.Relay.MaxAttempts,
			SendTimeout:  cfg.Notification.Timeout,
		})
		workers = append(workers, relay.Run)
	}

	orderHandler := interfaces.NewOrderHandler(service, auth.NewVerifier(cfg.Auth.JWTSecret), hub, m, sqlDB.PingContext)
	supportHandler := supportHTTP.NewSupportHandler(
		supportApp.NewChatService(httpClient, tracer, cfg.Support.WebhookURL, cfg.Support.Timeout),
	)

	log.Info().
		Str("ledger", cfg.Ledger.Driver).
		Str("delivery", cfg.Notification.Delivery).
		Str("sink", cfg.Notification.Sink).
		Str("lock", cfg.Lock.Driver).
		Msg("order service assembled")

	started = true
	return bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: serviceName,
		Config:      cfg,
		RegisterHandlers: func(appCtx bootstrap.AppCtx) {
			orderHandler.RegisterRoutes(appCtx.Mux)
			supportHandler.RegisterRoutes(appCtx.Mux)
		},
		Workers: workers,
		Closers: closers,
	})
}

// primer 由能够从商品表初始化库存的账本实现
type primer interface {
	Prime(ctx context.Context, products []*domain.Product) error
}

func buildLedger(cfg *bootstrap.Config, db *gorm.DB, catalog *infrastructure.GormProductCatalog) (port.InventoryLedger, closer, error) {
	var (
		ledger  port.InventoryLedger
		closeFn closer
	)
	switch cfg.Ledger.Driver {
	case "mysql":
		return adapter.NewGormInventoryLedger(db), nil, nil
	case "memory":
		ledger = adapter.NewMemoryInventoryLedger()
	default:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Infra.Redis.Addr,
			Password: cfg.Infra.Redis.Password,
			DB:       cfg.Infra.Redis.DB,
		})
		ctx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, nil, errors.Wrapf(err, "ping redis %s", cfg.Infra.Redis.Addr)
		}
		// 缺失的商品按商品表懒加载，库存变化写回商品表
		ledger = adapter.NewRedisInventoryLedger(client,
			adapter.WithCatalog(catalog),
			adapter.WithMirror(adapter.NewGormInventoryLedger(db)),
		)
		closeFn = func(context.Context) error { return client.Close() }
	}

	if cfg.Ledger.SkipPrime {
		return ledger, closeFn, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	products, err := catalog.ListProducts(ctx)
	if err == nil {
		err = ledger.(primer).Prime(ctx, products)
	}
	if err != nil {
		if closeFn != nil {
			closeFn(ctx)
		}
		return nil, nil, errors.Wrap(err, "prime inventory ledger")
	}
	log.Info().Int("products", len(products)).Str("driver", cfg.Ledger.Driver).Msg("inventory ledger primed")
	return ledger, closeFn, nil
}

// buildNotifier 返回 nil 表示不发送通知
func buildNotifier(cfg *bootstrap.Config, client *httpclient.Client) (port.Notifier, closer, error) {
	var (
		notifier port.Notifier
		closeFn  closer
	)
	switch cfg.Notification.Sink {
	case "kafka":
		kafkaNotifier := adapter.NewKafkaNotifier(mq.NewKafkaWriter(cfg.Infra.Kafka.Brokers, cfg.Infra.Kafka.Topic))
		notifier = kafkaNotifier
		closeFn = func(context.Context) error { return kafkaNotifier.Close() }
	default:
		if cfg.Notification.WebhookURL == "" {
			log.Warn().Msg("notification webhook url is not configured, order notifications disabled")
			return nil, nil, nil
		}
		notifier = adapter.NewWebhookNotifier(client, cfg.Notification.WebhookURL)
	}

	if expr := cfg.Notification.Condition; expr != "" {
		engine, err := rule.NewCELRuleEngine(expr)
		if err != nil {
			if closeFn != nil {
				closeFn(context.Background())
			}
			return nil, nil, err
		}
		notifier = adapter.NewFilteredNotifier(notifier, engine)
	}
	return notifier, closeFn, nil
}

func buildLocker(cfg *bootstrap.Config) (port.Locker, closer, error) {
	if cfg.Lock.Driver != "zookeeper" {
		return timeoutLocker{next: keylock.New(), timeout: cfg.Lock.Timeout}, nil, nil
	}
	conn, err := zookeeper.Connect(cfg.Infra.Zookeeper.Servers, cfg.Infra.Zookeeper.SessionTimeout)
	if err != nil {
		return nil, nil, err
	}
	locker := timeoutLocker{next: zookeeper.NewLocker(conn), timeout: cfg.Lock.Timeout}
	return locker, func(context.Context) error { return conn.Close() }, nil
}

// timeoutLocker 限制等待锁的时间
type timeoutLocker struct {
	next    port.Locker
	timeout time.Duration
}

func (l timeoutLocker) Lock(ctx context.Context, key string) (func(), error) {
	if l.timeout <= 0 {
		return l.next.Lock(ctx, key)
	}
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()
	return l.next.Lock(ctx, key)
}
