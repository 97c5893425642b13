// Package router assembles the Gin engine: global middleware, CORS, health
// and metrics endpoints, and route registration for every domain module.
package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	apphttp "coverage_backend/internal/http"
	"coverage_backend/platform/httpkit"
)

// New builds the HTTP engine from the composed application.
func New(app *apphttp.App) *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(httpkit.RequestID())
	engine.Use(httpkit.RequestLogger(app.Logger))
	engine.Use(httpkit.SecurityHeaders())
	engine.Use(corsMiddleware(app.Config))

	// 100 req/s with burst 200 per client IP across the whole API.
	apiLimiter := httpkit.NewIPRateLimiter(100, 200, app.Logger)
	adminLimiter := httpkit.NewAdminRateLimiter(app.Logger)

	engine.GET("/health", healthHandler(app))
	if app.Metrics != nil {
		engine.GET("/metrics", gin.WrapH(app.Metrics))
	}

	v1 := engine.Group("/api/v1")
	v1.Use(apiLimiter.RateLimit())

	admin := v1.Group("/admin")
	admin.Use(adminLimiter.RateLimit())

	ctx := &apphttp.RouterContext{
		Engine:           engine,
		V1:               v1,
		Admin:            admin,
		AdminRateLimiter: adminLimiter,
	}

	for _, m := range app.Modules {
		m.RegisterRoutes(ctx)
		app.Logger.Info("registered module routes", "module", m.Name())
	}

	return engine
}

func corsMiddleware(cfg apphttp.RouterConfig) gin.HandlerFunc {
	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "X-Request-ID"},
		ExposeHeaders:    []string{"X-Request-ID"},
		AllowCredentials: cfg.GetCORSAllowCreds(),
		MaxAge:           12 * time.Hour,
	}
	if cfg.GetCORSAllowAll() {
		corsCfg.AllowAllOrigins = true
		corsCfg.AllowCredentials = false
	} else {
		corsCfg.AllowOrigins = cfg.GetCORSOrigins()
	}
	return cors.New(corsCfg)
}

// healthHandler reports readiness. A failing DB ping flips the status and
// the HTTP code; degraded upstream breakers are reported but do not fail
// the check, since the text fallback keeps the service answering.
func healthHandler(app *apphttp.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		payload := gin.H{"status": "ok"}
		status := http.StatusOK

		if app.Health != nil {
			if err := app.Health.Ping(c.Request.Context()); err != nil {
				payload["status"] = "unavailable"
				payload["database"] = err.Error()
				status = http.StatusServiceUnavailable
			} else {
				payload["database"] = "ok"
			}
		}
		if app.Breakers != nil {
			payload["providers"] = app.Breakers.BreakerStates()
		}

		c.JSON(status, payload)
	}
}
