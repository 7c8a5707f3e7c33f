// internal/pkg/bootstrap/app.go
package bootstrap

import (
	"context"
	"net"
	"net/http"
	"os/signal"
	"storefront/internal/pkg/logger"
	"storefront/internal/pkg/nacos"
	"storefront/internal/tracing"
	"strconv"
	"syscall"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// nacosClient 在 Init 中创建，StartService 复用它做服务注册
var nacosClient *nacos.Client

type AppCtx struct {
	Mux    *http.ServeMux
	Config *Config
}

// AppInfo 包含了启动一个微服务所需的所有特定信息。
type AppInfo struct {
	ServiceName string
	Config      *Config

	// RegisterHandlers 允许每个服务注册自己独特的 HTTP 路由，为 nil 时不启动 HTTP 服务
	RegisterHandlers func(appCtx AppCtx)
	// Workers 是随服务启动的后台任务，ctx 在收到退出信号时取消
	Workers []func(ctx context.Context) error
	// Closers 在关停时按注册的逆序执行
	Closers []func(ctx context.Context) error
}

// Init 加载配置，并在开启 Nacos 时用配置中心的内容覆盖本地配置
func Init(configPath string) (*Config, error) {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return nil, err
	}

	logger.Setup(logger.Options{Service: cfg.App.Name, Env: cfg.App.Env, Level: cfg.App.LogLevel})

	if cfg.Infra.Nacos.Enabled {
		client, err := nacos.NewClient(cfg.Infra.Nacos.ServerAddrs, cfg.Infra.Nacos.Namespace, cfg.Infra.Nacos.Group)
		if err != nil {
			return nil, err
		}
		nacosClient = client

		if dataID := cfg.Infra.Nacos.ConfigDataID; dataID != "" {
			remote, err := client.GetConfig(dataID)
			if err != nil {
				return nil, err
			}
			if err := cfg.Overlay(remote); err != nil {
				return nil, err
			}
			log.Info().Str("data_id", dataID).Msg("remote config applied")
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// StartService 封装了所有微服务的通用启动和优雅关停逻辑。阻塞直到收到退出信号。
func StartService(info AppInfo) error {
	cfg := info.Config

	tp, err := tracing.InitTracerProvider(info.ServiceName, cfg.Infra.Jaeger.Endpoint, cfg.Infra.Jaeger.SampleRatio)
	if err != nil {
		return errors.Wrap(err, "failed to initialize tracer provider")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	var server *http.Server
	if info.RegisterHandlers != nil {
		mux := http.NewServeMux()
		info.RegisterHandlers(AppCtx{Mux: mux, Config: cfg})
		server = &http.Server{
			Addr:              ":" + strconv.Itoa(cfg.HTTP.Port),
			Handler:           logger.Middleware(mux),
			ReadHeaderTimeout: cfg.HTTP.ReadHeaderTimeout,
		}
		g.Go(func() error {
			log.Info().Str("addr", server.Addr).Msgf("%s listening", info.ServiceName)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return errors.Wrapf(err, "could not listen on %s", server.Addr)
			}
			return nil
		})
	}

	for _, worker := range info.Workers {
		worker := worker
		g.Go(func() error { return worker(gctx) })
	}

	var ip string
	if nacosClient != nil && server != nil {
		if ip, err = outboundIP(); err != nil {
			return errors.Wrap(err, "failed to get outbound IP address")
		}
		if err := nacosClient.RegisterServiceInstance(info.ServiceName, ip, cfg.HTTP.Port); err != nil {
			return err
		}
	}

	// 阻塞直到收到退出信号，或者某个后台任务异常退出
	<-gctx.Done()
	log.Info().Msgf("shutting down service %s...", info.ServiceName)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	// 关停顺序: 注销 -> HTTP -> 后台任务 -> 资源 -> Tracer
	if nacosClient != nil && ip != "" {
		if err := nacosClient.DeregisterServiceInstance(info.ServiceName, ip, cfg.HTTP.Port); err != nil {
			log.Error().Err(err).Msg("error deregistering from nacos")
		}
		nacosClient.Close()
	}

	if server != nil {
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("error shutting down http server")
		}
	}

	runErr := g.Wait()

	for i := len(info.Closers) - 1; i >= 0; i-- {
		if err := info.Closers[i](shutdownCtx); err != nil {
			log.Error().Err(err).Msg("error closing resource")
		}
	}

	if err := tp.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("error shutting down tracer provider")
	}

	log.Info().Msgf("service %s gracefully shut down", info.ServiceName)
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	return nil
}

// outboundIP 返回本机对外通信使用的 IP，用于服务注册
func outboundIP() (string, error) {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "", err
	}
	defer conn.Close()
	return conn.LocalAddr().(*net.UDPAddr).IP.String(), nil
}
