// cmd/notification-service/main.go
package main

import (
	"context"
	"flag"
	"net/http"
	"storefront/internal/pkg/bootstrap"
	"storefront/internal/pkg/httpclient"
	"storefront/internal/pkg/metrics"
	"storefront/internal/pkg/mq"
	"storefront/internal/service/notification"
	"storefront/internal/service/order/domain/port"
	"storefront/internal/service/order/infrastructure/adapter"
	"storefront/internal/service/order/infrastructure/rule"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
)

const serviceName = "notification-service"

// notification-service 消费 order-placed 主题，把订单摘要转发到 webhook。
// 只暴露健康检查和指标，不对外提供业务接口。
func main() {
	configPath := flag.String("config", "configs/notification-service.yaml", "path to the YAML config file")
	flag.Parse()

	cfg, err := bootstrap.Init(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if cfg.Notification.WebhookURL == "" {
		log.Fatal().Msg("notification.webhook_url (N8N_WEBHOOK_URL) is required")
	}

	tracer := otel.Tracer(serviceName)
	m := metrics.New("notification", prometheus.DefaultRegisterer)

	var notifier port.Notifier = adapter.NewWebhookNotifier(httpclient.NewClient(tracer), cfg.Notification.WebhookURL)
	if expr := cfg.Notification.Condition; expr != "" {
		engine, err := rule.NewCELRuleEngine(expr)
		if err != nil {
			log.Fatal().Err(err).Msg("invalid notification condition")
		}
		notifier = adapter.NewFilteredNotifier(notifier, engine)
	}

	reader := mq.NewKafkaReader(cfg.Infra.Kafka.Brokers, cfg.Infra.Kafka.Topic, cfg.Infra.Kafka.GroupID)
	consumer := notification.NewConsumer(reader, notifier, tracer, m, notification.ConsumerOptions{
		MaxAttempts: cfg.Notification.Relay.MaxAttempts,
		SendTimeout: cfg.Notification.Timeout,
	})

	err = bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: serviceName,
		Config:      cfg,
		RegisterHandlers: func(appCtx bootstrap.AppCtx) {
			appCtx.Mux.Handle("GET /metrics", metrics.Handler())
			appCtx.Mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
		},
		Workers: []func(ctx context.Context) error{consumer.Run},
		Closers: []func(ctx context.Context) error{
			func(context.Context) error { return reader.Close() },
		},
	})
	if err != nil {
		log.Fatal().Err(err).Msg("notification service exited with error")
	}
}
