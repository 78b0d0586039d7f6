// Package api exposes scanning and attendance over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"attendease/internal/attendance"
	"attendease/internal/auth"
	"attendease/internal/config"
	"attendease/internal/httpmiddleware"
	"attendease/internal/logger"
)

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) bool

// Handler serves the HTTP API.
type Handler struct {
	cfg        config.App
	controller *attendance.Controller
	service    *attendance.Service
	checks     map[string]HealthCheck
	log        zerolog.Logger
}

// NewHandler wires the scan controller and the read-side service.
func NewHandler(cfg config.App, controller *attendance.Controller, service *attendance.Service, checks map[string]HealthCheck) *Handler {
	return &Handler{
		cfg:        cfg,
		controller: controller,
		service:    service,
		checks:     checks,
		log:        logger.Get().With().Str("component", "api").Logger(),
	}
}

// Router builds the gin engine with middleware and routes.
func (h *Handler) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(corsMiddleware(h.cfg.CORSOrigins))
	r.Use(securityHeaders())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/healthz", h.health)

	v1 := r.Group("/v1",
		auth.UserAuth(h.cfg.JWTSigningKey, h.cfg.JWTIssuer),
		httpmiddleware.NewSimpleTokenBucket(h.cfg.RateLimitPerMin, h.cfg.RateLimitPerMin, httpmiddleware.Subject).GinMiddleware(),
	)

	scans := v1.Group("/scans", auth.RequireRole(auth.RoleStudent))
	scans.POST("", h.createScan)
	scans.DELETE("", h.cancelScan)

	v1.GET("/attendance", h.listAttendance)
	v1.DELETE("/attendance/:id", auth.RequireRole(auth.RoleAdmin), h.deleteAttendance)

	courses := v1.Group("/courses", auth.RequireRole(auth.RoleProfessor, auth.RoleAdmin))
	courses.GET("", h.listCourses)
	courses.GET("/:course_id/report", h.courseReport)
	courses.GET("/:course_id/roster", h.courseRoster)

	return r
}

func (h *Handler) health(c *gin.Context) {
	status := http.StatusOK
	body := gin.H{"status": "ok"}
	for name, check := range h.checks {
		ok := check(c.Request.Context())
		body[name] = ok
		if !ok {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
		}
	}
	c.JSON(status, body)
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		AllowCredentials: true,
		MaxAge:           24 * time.Hour,
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowAllOrigins = true
		cfg.AllowCredentials = false
	} else {
		cfg.AllowOrigins = origins
	}
	return cors.New(cfg)
}

// Security headers middleware
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")

		// Only add HSTS in production
		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Next()
	}
}
