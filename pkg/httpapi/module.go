package httpapi

import (
	"creatorhub-platform/pkg/config"
	"creatorhub-platform/pkg/health"
	"creatorhub-platform/pkg/middleware"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
)

var Module = fx.Module("httpapi",
	fx.Provide(NewEngine),
	fx.Invoke(registerHealthEndpoint),
)

// NewEngine builds the gin engine shared by every service handler.
func NewEngine(cfg *config.Config) *gin.Engine {
	if cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(
		gin.Recovery(),
		middleware.Error(),
		middleware.Identity(),
		middleware.ClientMetadata(),
	)
	return engine
}

// V1 returns the /v1 group with the configured per-request timeout.
func V1(engine *gin.Engine, cfg *config.Config) *gin.RouterGroup {
	return engine.Group("/v1", middleware.Timeout(cfg.Server.RequestTimeout))
}

func registerHealthEndpoint(engine *gin.Engine, h health.HealthService) {
	engine.GET("/healthz", h.Liveness)
	engine.GET("/readyz", h.Readiness)
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
}
