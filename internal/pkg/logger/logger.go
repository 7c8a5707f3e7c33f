// internal/pkg/logger/logger.go
package logger

import (
	"context"
	"net/http"
	"os"
	"storefront/internal/tracing"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// Options 描述全局 logger 的初始化参数
type Options struct {
	Service string
	Env     string
	Level   string
}

// Setup 初始化全局 zerolog logger，并设置为 context 的默认 logger
func Setup(opts Options) zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	level, err := zerolog.ParseLevel(opts.Level)
	if err != nil || opts.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	var base zerolog.Logger
	if opts.Env == "dev" {
		base = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	} else {
		base = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}

	l := base.With().Str("service", opts.Service).Logger()
	zlog.Logger = l
	// 没有注入 logger 的 context 也能拿到带 service 字段的 logger
	zerolog.DefaultContextLogger = &zlog.Logger
	return l
}

// Ctx 返回 context 中的 logger
func Ctx(ctx context.Context) *zerolog.Logger {
	return zlog.Ctx(ctx)
}

// WithTraceID 把带 trace_id 的子 logger 放进 context
func WithTraceID(ctx context.Context) context.Context {
	traceID := tracing.GetTraceIDFromContext(ctx)
	if traceID == "" {
		return ctx
	}
	l := Ctx(ctx).With().Str("trace_id", traceID).Logger()
	return l.WithContext(ctx)
}

// Middleware 先提取上游的 trace 上下文，再注入带 trace_id 的 logger
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
		ctx = WithTraceID(ctx)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
