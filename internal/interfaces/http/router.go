package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/edefter-tracker/internal/app"
	"github.com/turtacn/edefter-tracker/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/edefter-tracker/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/edefter-tracker/internal/interfaces/http/handlers"
	"github.com/turtacn/edefter-tracker/internal/interfaces/http/middleware"
	"github.com/turtacn/edefter-tracker/pkg/errors"
)

// RouterConfig aggregates all handler and middleware dependencies required
// to construct the complete HTTP route tree.  Nil handlers leave their routes
// unmounted.
type RouterConfig struct {
	// Handlers
	CompanyHandler    *handlers.CompanyHandler
	DeadlineHandler   *handlers.DeadlineHandler
	OperationsHandler *handlers.OperationsHandler
	HealthHandler     *handlers.HealthHandler

	// Middleware
	CORS    gin.HandlerFunc
	Logging middleware.LoggingConfig

	// Infrastructure
	Logger         logging.Logger
	Metrics        *prometheus.AppMetrics
	MetricsHandler http.Handler
	MetricsPath    string
}

// NewRouter constructs the complete HTTP route tree from the given configuration.
func NewRouter(cfg RouterConfig) *gin.Engine {
	if cfg.Logger == nil {
		cfg.Logger = logging.NewNopLogger()
	}

	r := gin.New()
	r.HandleMethodNotAllowed = true

	// --- Global middleware (applied to every request) ---
	r.Use(middleware.RequestID())
	r.Use(middleware.RequestLogging(cfg.Logger, cfg.Metrics, cfg.Logging))
	r.Use(middleware.Recovery(cfg.Logger))
	if cfg.CORS != nil {
		r.Use(cfg.CORS)
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, handlers.ErrorResponse{Code: string(errors.ErrCodeNotFound), Message: "route not found"})
	})

	// --- Probes and metrics ---
	if cfg.HealthHandler != nil {
		r.GET("/healthz", cfg.HealthHandler.Liveness)
		r.GET("/readyz", cfg.HealthHandler.Readiness)
	}
	if cfg.MetricsHandler != nil {
		path := cfg.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.GET(path, gin.WrapH(cfg.MetricsHandler))
	}

	// --- API v1 ---
	api := r.Group("/api/v1")
	registerCompanyRoutes(api, cfg.CompanyHandler)
	registerDeadlineRoutes(api, cfg.DeadlineHandler)
	registerOperationRoutes(api, cfg.OperationsHandler)

	return r
}

// registerCompanyRoutes mounts the company registry under /companies.
func registerCompanyRoutes(r *gin.RouterGroup, h *handlers.CompanyHandler) {
	if h == nil {
		return
	}
	g := r.Group("/companies")
	g.GET("", h.List)
	g.POST("", h.Create)
	g.GET("/:ref", h.Get)
	g.PATCH("/:ref", h.Update)
	g.DELETE("/:ref", h.Delete)
	g.POST("/:ref/activate", h.Activate)
	g.POST("/:ref/deactivate", h.Deactivate)
	g.GET("/:ref/uploads", h.Uploads)
}

func registerDeadlineRoutes(r *gin.RouterGroup, h *handlers.DeadlineHandler) {
	if h == nil {
		return
	}
	r.GET("/deadlines", h.List)
	r.GET("/dashboard", h.Dashboard)
	r.GET("/export.xlsx", h.Export)
}

func registerOperationRoutes(r *gin.RouterGroup, h *handlers.OperationsHandler) {
	if h == nil {
		return
	}
	r.POST("/scan", h.Scan)
	r.GET("/notifications/preview", h.PreviewDigest)
}

// NewAppRouter wires the route tree to an opened application.
func NewAppRouter(a *app.App, version string) (*gin.Engine, error) {
	cfg := RouterConfig{
		CompanyHandler:    handlers.NewCompanyHandler(a.Registry),
		DeadlineHandler:   handlers.NewDeadlineHandler(a.Tracking, a.Exporter),
		OperationsHandler: handlers.NewOperationsHandler(a.Monitor, a.Config.Archive.Root, a.Scheduler, a.Tracking.Now),
		HealthHandler:     handlers.NewHealthHandler(version, a.Check),
		Logging:           middleware.DefaultLoggingConfig(),
		Logger:            a.Logger.Named("http"),
		Metrics:           a.Metrics,
	}
	if a.Collector != nil {
		cfg.MetricsHandler = a.Collector.Handler()
		cfg.MetricsPath = a.Config.Metrics.Path
	}
	if origins := a.Config.Server.AllowedOrigins; len(origins) > 0 {
		mw, err := middleware.CORS(middleware.DefaultCORSConfig(origins...))
		if err != nil {
			return nil, err
		}
		cfg.CORS = mw
	}
	return NewRouter(cfg), nil
}
