package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"docvault/internal/access"
	"docvault/internal/services/health"
	"docvault/internal/shared/config"
	"docvault/internal/shared/metrics"
	"docvault/internal/shared/server/middleware"
	"docvault/internal/shared/server/respond"
	"docvault/internal/shared/storage/object/local"
)

// RouteRegistrar is implemented by feature handlers.
type RouteRegistrar interface {
	RegisterRoutes(rg *gin.RouterGroup)
}

// RouterDeps carries everything NewRouter mounts.
type RouterDeps struct {
	Config      config.Config
	Resolver    access.PrincipalResolver
	Handlers    []RouteRegistrar
	BlobHandler gin.HandlerFunc
	RateLimiter *middleware.RateLimiter
	Health      *health.Service
}

// NewRouter constructs the Gin engine with middleware and routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	if deps.Config.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()

	r.Use(
		middleware.RequestID(),
		middleware.Logging(),
		middleware.Recovery(),
		middleware.CORS(deps.Config.CORSAllowOrigin),
	)

	r.GET("/healthz", func(c *gin.Context) {
		respond.OK(c, gin.H{"ok": true})
	})
	r.GET("/metrics", metrics.Handler())

	api := r.Group("/api/v1")
	api.GET("/health", func(c *gin.Context) {
		if deps.Health == nil {
			respond.JSON(c, http.StatusOK, gin.H{"ok": true})
			return
		}
		ok, checks := deps.Health.Status(c.Request.Context())
		status := http.StatusOK
		if !ok {
			status = http.StatusServiceUnavailable
		}
		respond.JSON(c, status, gin.H{"ok": ok, "checks": checks})
	})
	if deps.BlobHandler != nil {
		r.GET(local.BlobRoutePrefix+"/:bucket/*key", deps.BlobHandler)
	}

	api.Use(
		middleware.Auth(deps.Resolver),
		middleware.RateLimit(middleware.RateLimitConfig{
			Rules:    middleware.DocumentRules(),
			GroupFor: middleware.DocumentGroupFor,
			Limiter:  deps.RateLimiter,
		}),
	)
	for _, h := range deps.Handlers {
		if h != nil {
			h.RegisterRoutes(api)
		}
	}

	return r
}

// Addr normalizes the listen address.
func Addr(port string) string {
	if port == "" {
		return ":8080"
	}
	if port[0] == ':' {
		return port
	}
	return ":" + port
}
