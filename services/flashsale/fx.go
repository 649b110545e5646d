package flashsale

import (
	"creatorhub-platform/pkg/config"
	"creatorhub-platform/pkg/httpapi"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
)

var Gateway = fx.Module("flashsale.gateway",
	fx.Provide(
		NewRedisTracker,
		NewHandler,
	),
	fx.Invoke(registerRoutes),
)

func registerRoutes(engine *gin.Engine, cfg *config.Config, h *Handler) {
	h.Register(httpapi.V1(engine, cfg))
	h.RegisterStream(engine.Group("/v1"))
}
