package vipcode

import (
	"creatorhub-platform/pkg/config"
	"creatorhub-platform/pkg/httpapi"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
)

var Module = fx.Module("vipcode.service",
	fx.Provide(
		NewRedisViews,
		NewService,
	),
)

var Gateway = fx.Module("vipcode.gateway",
	fx.Provide(NewHandler),
	fx.Invoke(registerRoutes),
)

func registerRoutes(engine *gin.Engine, cfg *config.Config, h *Handler) {
	h.Register(httpapi.V1(engine, cfg))
}
