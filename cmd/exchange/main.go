package main

import (
	"log"

	"github.com/bwmarrin/snowflake"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"adbarter/internal/httpapi"
	asynqfx "adbarter/pkg/asynq"
	"adbarter/pkg/authtoken"
	"adbarter/pkg/authz"
	"adbarter/pkg/config"
	"adbarter/pkg/db"
	"adbarter/pkg/health"
	"adbarter/pkg/logger"
	"adbarter/pkg/redis"
	"adbarter/pkg/server"
	"adbarter/services/account"
	"adbarter/services/adserve"
	"adbarter/services/analytics"
	"adbarter/services/bootstrap"
	"adbarter/services/settlement"
	"adbarter/services/website"
)

func main() {
	opts := []fx.Option{
		config.Module,
		logger.Module,
		db.Module,
		redis.Module,
		asynqfx.Client,
		authz.Module,
		authtoken.Module,
		health.Module,
		fx.Provide(
			provideTracerProvider,
			provideMeterProvider,
			provideSnowflakeNode,
		),
		bootstrap.Module,
		account.Module,
		website.Module,
		adserve.Module,
		analytics.Module,
		settlement.Module,
		httpapi.Module,
		server.ProvideHTTPServer,
		fxLogger,
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	app := fx.New(opts...)

	app.Run()
}

var fxLogger = fx.WithLogger(func(cfg *config.Config, logger *zap.Logger) fxevent.Logger {
	return fxevent.NopLogger
})

func provideTracerProvider() trace.TracerProvider {
	return otel.GetTracerProvider()
}

func provideMeterProvider() metric.MeterProvider {
	return otel.GetMeterProvider()
}

func provideSnowflakeNode() (*snowflake.Node, error) {
	return snowflake.NewNode(1)
}
