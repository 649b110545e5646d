package goal

import (
	"creatorhub-platform/pkg/config"
	"creatorhub-platform/pkg/httpapi"
	"creatorhub-platform/pkg/middleware"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
)

var Module = fx.Module("goal.service",
	fx.Provide(NewService),
)

var Gateway = fx.Module("goal.gateway",
	fx.Provide(NewHandler),
	fx.Invoke(registerRoutes),
)

var TaskModule = fx.Module("task.goal",
	fx.Provide(NewTask),
)

func registerRoutes(engine *gin.Engine, cfg *config.Config, h *Handler) {
	v1 := httpapi.V1(engine, cfg)
	h.Register(v1)
	h.RegisterWebhooks(v1.Group("/payments", middleware.WebhookSignature(cfg.Payments.WebhookSecret)))
}
