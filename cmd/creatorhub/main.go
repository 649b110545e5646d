package main

import (
	"log"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"creatorhub-platform/pkg/config"
	"creatorhub-platform/pkg/db"
	"creatorhub-platform/pkg/gen"
	"creatorhub-platform/pkg/hashistack/secretmanager"
	"creatorhub-platform/pkg/health"
	"creatorhub-platform/pkg/httpapi"
	"creatorhub-platform/pkg/logger"
	"creatorhub-platform/pkg/otelcol"
	"creatorhub-platform/pkg/profiling"
	"creatorhub-platform/pkg/redis"
	"creatorhub-platform/pkg/server"
	"creatorhub-platform/pkg/task"
	"creatorhub-platform/services/flashsale"
	"creatorhub-platform/services/goal"
	"creatorhub-platform/services/vipcode"
)

func main() {
	opts := []fx.Option{
		secretmanager.Option(),
		config.Module,
		logger.Module,
		otelcol.Module,
		profiling.Module,
		db.Module,
		redis.Module,
		gen.Module,
		task.Client,
		health.Module,
		httpapi.Module,
		goal.Module,
		goal.Gateway,
		vipcode.Module,
		vipcode.Gateway,
		flashsale.Gateway,
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
