package api

import (
	"github.com/gin-gonic/gin"
	"github.com/timmy/deepresearch/internal/api/handler"
	"github.com/timmy/deepresearch/internal/api/middleware"
	"github.com/timmy/deepresearch/internal/config"
	"github.com/timmy/deepresearch/internal/logger"
	"github.com/timmy/deepresearch/internal/source"
)

// Dependencies are the services the router exposes. Exporter and History may be nil.
type Dependencies struct {
	Research handler.Researcher
	Loader   *source.Loader
	Exporter handler.Exporter
	History  handler.History
	Logger   *logger.Logger
}

// SetupRouter configures the Gin router with all routes
func SetupRouter(cfg *config.ServerConfig, deps Dependencies) *gin.Engine {
	switch cfg.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	log := deps.Logger
	if log == nil {
		log = logger.GetDefault()
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.LoggerMiddleware(log))
	r.Use(middleware.CORS(middleware.CORSConfig{
		AllowedOrigins:  cfg.CORS.AllowedOrigins,
		AllowAllOrigins: cfg.CORS.AllowAllOrigins,
	}))

	healthHandler := handler.NewHealthHandler(deps.History != nil, deps.Exporter != nil)
	researchHandler := handler.NewResearchHandler(deps.Research, deps.Loader, deps.Exporter, deps.History)
	uiHandler := handler.NewUIHandler()

	r.GET("/", uiHandler.Index)
	r.GET("/health", healthHandler.Health)

	v1 := r.Group("/api/v1")
	{
		research := v1.Group("/research")
		research.POST("", researchHandler.Submit)
		research.GET("", researchHandler.List)
		research.GET("/:id", researchHandler.Get)
		research.GET("/:id/events", researchHandler.Events)
		research.POST("/:id/cancel", researchHandler.Cancel)
		research.DELETE("/:id", researchHandler.Delete)
		research.POST("/:id/export", researchHandler.Export)
		research.GET("/:id/report", researchHandler.Report)

		v1.GET("/history", researchHandler.History)
	}

	return r
}
