package handler

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"github.com/Oluwafemifere/adaptive-exam-timetabling-sub002/internal/middleware"
	"github.com/Oluwafemifere/adaptive-exam-timetabling-sub002/internal/service"
	"github.com/Oluwafemifere/adaptive-exam-timetabling-sub002/pkg/config"
	"github.com/Oluwafemifere/adaptive-exam-timetabling-sub002/pkg/logger"
	corsmiddleware "github.com/Oluwafemifere/adaptive-exam-timetabling-sub002/pkg/middleware/cors"
	reqidmiddleware "github.com/Oluwafemifere/adaptive-exam-timetabling-sub002/pkg/middleware/requestid"
)

// RouterDeps carries everything the HTTP surface is wired to.
type RouterDeps struct {
	Config         *config.Config
	Logger         *zap.Logger
	Metrics        *service.MetricsService
	Jobs           *TimetableJobHandler
	Versions       *TimetableVersionHandler
	Configurations *ConfigurationHandler
	Probes         *MetricsHandler
}

// NewRouter builds the gin engine with middleware and timetable routes.
func NewRouter(deps RouterDeps) *gin.Engine {
	cfg := deps.Config
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.Tracing.Enabled {
		r.Use(otelgin.Middleware(cfg.Tracing.ServiceName))
	}
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(deps.Logger))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins, cfg.Access.ActorHeader, cfg.Access.RoleHeader))
	r.Use(middleware.Metrics(deps.Metrics))
	r.Use(middleware.Actor(cfg.Access))

	r.GET("/health", deps.Probes.Health)
	r.GET("/ready", deps.Probes.Ready)
	r.GET("/metrics", deps.Probes.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.GET("/metrics/summary", deps.Probes.Summary)

	editors := middleware.RequireRoles(cfg.Access.EditorRoles...)
	tt := api.Group("/timetable")
	tt.POST("/jobs", editors, middleware.Audit(deps.Logger, "timetable.job.start"), deps.Jobs.Start)
	tt.GET("/jobs/:id", deps.Jobs.Get)
	tt.POST("/jobs/:id/cancel", editors, middleware.Audit(deps.Logger, "timetable.job.cancel"), deps.Jobs.Cancel)
	tt.GET("/jobs/:id/events", deps.Jobs.Events)
	tt.GET("/jobs/:id/versions", deps.Versions.ListByJob)
	tt.GET("/sessions/:sessionId/jobs", deps.Jobs.ListBySession)
	tt.POST("/sessions/:sessionId/invalidate", editors, middleware.Audit(deps.Logger, "timetable.session.invalidate"), deps.Jobs.Invalidate)
	tt.GET("/versions/:id", deps.Versions.Get)
	tt.POST("/versions/:id/edits", editors, middleware.Audit(deps.Logger, "timetable.version.edit"), deps.Versions.ApplyEdit)
	tt.GET("/configurations", deps.Configurations.List)
	tt.GET("/configurations/:id", deps.Configurations.Get)
	tt.PUT("/configurations/:id", editors, middleware.Audit(deps.Logger, "timetable.configuration.save"), deps.Configurations.Save)

	return r
}
