package main

import (
	"log"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"creatorhub-platform/pkg/config"
	"creatorhub-platform/pkg/db"
	"creatorhub-platform/pkg/gen"
	"creatorhub-platform/pkg/hashistack/secretmanager"
	"creatorhub-platform/pkg/logger"
	"creatorhub-platform/pkg/otelcol"
	"creatorhub-platform/pkg/profiling"
	"creatorhub-platform/pkg/task"
	"creatorhub-platform/pkg/taskname"
	"creatorhub-platform/services/goal"
)

func main() {
	opts := []fx.Option{
		secretmanager.Option(),
		config.Module,
		logger.Module,
		otelcol.Module,
		profiling.Module,
		db.Module,
		gen.Module,
		task.Server,
		goal.Module,
		goal.TaskModule,
		fx.Invoke(registerHandlers),
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

func registerHandlers(mux *asynq.ServeMux, goalTask *goal.Task) {
	mux.HandleFunc(taskname.GoalContributionSettle, goalTask.HandleSettleContribution)
}
