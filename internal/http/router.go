// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, audit logging, panic recovery, metrics, CORS,
// security headers, and rate limiting.
//
// Design goals:
//   - Observability first (OTel + Prometheus)
//   - Safe-by-default middleware ordering (RequestID → audit → recovery)
//   - Deterministic, minimal router setup; all dependencies injected
package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/avetisov/tg-miniapp-backend/internal/bot"
	"github.com/avetisov/tg-miniapp-backend/internal/config"
	"github.com/avetisov/tg-miniapp-backend/internal/http/handlers"
	"github.com/avetisov/tg-miniapp-backend/internal/http/middleware"
	"github.com/avetisov/tg-miniapp-backend/internal/services"
	"github.com/avetisov/tg-miniapp-backend/internal/telegram"
)

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine: observability (tracing, metrics), rate limiting, CORS and security
// headers, health and metrics endpoints, and the versioned public API.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RequestAudit: who called what, secrets scrubbed
//  4. Recovery: capture panics after logging is in place
//  5. Body size limiter
//  6. Metrics
//  7. CORS and security headers
//
// The rate limiter is installed per route rather than globally: it must run
// after LaunchAuth so buckets key on the verified telegram id instead of the
// client IP (mini-app users routinely share a NAT). The gateway webhook is
// exempt; throttling it would 429 payment notifications.
func RegisterRoutes(r *gin.Engine, db *gorm.DB, gw *telegram.Bot, validator *telegram.WebAppValidator, cfg config.Config, log zerolog.Logger) {
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Audit log with secret scrubbing and launch attribution
	r.Use(middleware.RequestAudit(validator))

	// 4) Access log + request-scoped logger, then panic recovery
	r.Use(middleware.Logger())
	r.Use(middleware.Recovery())

	// 5) Global body size limit (1 MiB)
	r.Use(limitBody(1 << 20))

	// 6) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 7) CORS posture: the mini-app origin when configured, otherwise open
	// (local development against fabricated launch data).
	allowHeaders := []string{"Origin", "Content-Type", "Accept", "Authorization", "token"}
	if len(cfg.CORS.AllowedOrigins) == 0 {
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:     allowHeaders,
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
			AllowCredentials: false, // must remain false with AllowAllOrigins
			MaxAge:           12 * time.Hour,
		}))
	} else {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:     allowHeaders,
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}

	// Security headers (HSTS only when enabled and request is HTTPS)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS: cfg.Security.EnableHSTS,
		HSTSMaxAge: cfg.Security.HSTSMaxAge,
	}))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/health
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	// Dependency injection: services ← db/gateway
	userSvc := &services.UserService{DB: db}
	invoiceSvc := services.NewInvoiceService(db, gw)
	paymentSvc := &services.PaymentService{DB: db}
	dispatcher := bot.NewDispatcher(userSvc, paymentSvc, cfg.FrontendURL, log)

	webhook := handlers.NewWebhookHandler(cfg.Telegram.WebhookSecret, dispatcher, gw.Encoder())
	invoices := handlers.NewInvoiceHandler(invoiceSvc, userSvc)

	// Public API
	api := groupWithPrefix(r, cfg.APIBasePath)
	api.Use(gzip.Gzip(gzip.DefaultCompression))
	{
		// Gateway webhook (authenticated by its own shared secret, not
		// rate-limited: deliveries share the gateway's egress IPs)
		api.POST("/telegram", webhook.Receive)

		// Mini-app endpoints. The limiter runs after LaunchAuth so buckets
		// key on the verified telegram id; check_status carries no launch
		// context and falls back to IP keying.
		auth := middleware.LaunchAuth(validator)
		limit := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByLaunchOrIP()).Handler()
		api.POST("/invoice", auth, limit, invoices.Create)
		api.POST("/check_status", limit, invoices.CheckStatus)
		api.GET("/me", auth, limit, invoices.Me)
		api.GET("/transactions", auth, limit, invoices.Transactions)
	}
}

// limitBody caps the request body size for all endpoints using
// http.MaxBytesReader; oversized bodies error on downstream reads.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
