// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// CORS, security headers, idempotency, and rate limiting.
//
// The widget routes are public: visitors on third-party sites call them
// directly from the embed, so CORS defaults to any origin and framing is
// allowed under /widget/.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"regexp"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/tbourn/go-widget-chat/internal/cache"
	"github.com/tbourn/go-widget-chat/internal/config"
	"github.com/tbourn/go-widget-chat/internal/docs"
	"github.com/tbourn/go-widget-chat/internal/http/handlers"
	"github.com/tbourn/go-widget-chat/internal/http/middleware"
	"github.com/tbourn/go-widget-chat/internal/repo"
	"github.com/tbourn/go-widget-chat/internal/services"
)

// maxBodyBytes caps every request body. Chat messages are a few KiB at most.
const maxBodyBytes = 1 << 20

// Deps are the long-lived collaborators built by the caller.
type Deps struct {
	DB        *gorm.DB
	Providers services.ProviderSelector
	// Cache backs widget config lookups; nil disables caching.
	Cache cache.Store
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine and mounts the widget API under cfg.APIBasePath.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs with PII scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Metrics
//  7. Idempotency validator (before rate limiter to allow bypass on replay)
//  8. Rate limiter (per chatbot and IP, bypass on replay)
//  9. CORS and Security headers
//  10. gzip for JSON routes; the event stream is never compressed
func RegisterRoutes(r *gin.Engine, deps Deps, cfg config.Config) {
	r.HandleMethodNotAllowed = true
	base := cfg.APIBasePath
	if base == "/" {
		base = ""
	}

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging with redaction
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders:     []string{"X-API-Key"},
		MaskQueryParams: []string{"sessionId"},
	}))

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit
	r.Use(limitBody(maxBodyBytes))

	// 6) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 7) Idempotency validation (before rate limiting)
	r.Use(middleware.IdempotencyValidator(
		middleware.IdempotencyOptions{MaxLen: 200},
		idempotencyLookup(deps.DB),
	))

	// 8) Token-bucket rate limiter per chatbot and IP
	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByChatbotIP())
	r.Use(rl.Handler())

	// 9) CORS posture
	r.Use(corsMiddleware(cfg.CORS.AllowedOrigins)...)

	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:         cfg.Security.EnableHSTS,
		HSTSMaxAge:         cfg.Security.HSTSMaxAge,
		EnablePolicy:       true,
		EmbeddablePrefixes: []string{base + "/widget/"},
		ExposeHeaders:      []string{handlers.HeaderReplayed},
	}))

	// 10) Compression, but never on the event stream: gzip buffers frames.
	r.Use(gzip.Gzip(gzip.DefaultCompression,
		gzip.WithExcludedPathsRegexs([]string{chatPathPattern(base)}),
	))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/health
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	if cfg.SwaggerEnabled {
		docs.SwaggerInfo.BasePath = cfg.APIBasePath
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	h := newHandlers(deps, cfg)

	widget := groupWithPrefix(r, base).Group("/widget/:chatbotId")
	{
		widget.POST("/chat", h.PostChat)
		widget.GET("/config", h.GetWidgetConfig)
		widget.POST("/rating", h.PostRating)
		widget.GET("/messages", h.ListMessages)
	}
}

// newHandlers builds the service graph over one store.
func newHandlers(deps Deps, cfg config.Config) *handlers.Handlers {
	store := repo.NewStore(deps.DB)

	chatSvc := services.NewChatService(store, deps.Providers, services.ChatOptions{
		DefaultSystemPrompt: cfg.Chat.DefaultSystemPrompt,
		MaxMessageRunes:     cfg.Chat.MaxMessageRunes,
		KnowledgeMaxRunes:   cfg.Chat.KnowledgeMaxRunes,
		ProviderTimeout:     cfg.Providers.Timeout,
		PersistTimeout:      cfg.Chat.PersistTimeout,
		ReplayTTL:           cfg.IdempotencyTTL,
	})

	widgetSvc := &services.WidgetService{Chatbots: store}
	if deps.Cache != nil {
		widgetSvc.Cache = cache.NewLoader(deps.Cache, cfg.WidgetCacheTTL)
	}

	h := handlers.New(
		chatSvc,
		widgetSvc,
		&services.RatingService{Chatbots: store, Store: store},
		&services.TranscriptService{Chatbots: store, Store: store},
	)
	h.ConfigMaxAge = int(cfg.WidgetCacheTTL / time.Second)
	return h
}

// idempotencyLookup reports recorded turns to the validator so replays
// bypass the rate limiter. Misses and store errors both read as "not seen".
func idempotencyLookup(db *gorm.DB) middleware.IdempotencyLookup {
	return func(ctx context.Context, chatbotID, sessionID, key string, now time.Time) (bool, error) {
		_, err := repo.GetIdempotency(ctx, db, chatbotID, sessionID, key, now)
		if errors.Is(err, repo.ErrNotFound) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		return true, nil
	}
}

// corsMiddleware allows any origin when none are configured; otherwise it
// echoes allowlisted origins in addition to gin-contrib/cors.
func corsMiddleware(origins []string) []gin.HandlerFunc {
	allowHeaders := []string{
		"Origin", "Content-Type", "Accept", "Authorization",
		middleware.HeaderIdempotencyKey, middleware.HeaderSessionID,
	}
	exposeHeaders := []string{"X-Request-ID", "Content-Length", handlers.HeaderReplayed}
	methods := []string{"GET", "POST", "OPTIONS"}

	if len(origins) == 0 {
		return []gin.HandlerFunc{
			// Force ACAO: * even for requests without an Origin header.
			func(c *gin.Context) {
				c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
				c.Next()
			},
			cors.New(cors.Config{
				AllowAllOrigins:  true,
				AllowMethods:     methods,
				AllowHeaders:     allowHeaders,
				ExposeHeaders:    exposeHeaders,
				AllowCredentials: false, // must remain false with AllowAllOrigins
				MaxAge:           12 * time.Hour,
			}),
		}
	}

	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		allowed[o] = struct{}{}
	}
	return []gin.HandlerFunc{
		func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		},
		cors.New(cors.Config{
			AllowOrigins:     origins,
			AllowMethods:     methods,
			AllowHeaders:     allowHeaders,
			ExposeHeaders:    exposeHeaders,
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}),
	}
}

// chatPathPattern matches the streaming route under base.
func chatPathPattern(base string) string {
	return "^" + regexp.QuoteMeta(base) + `/widget/[^/]+/chat$`
}

// limitBody returns a Gin middleware that caps the request body size for all
// endpoints to maxBytes using http.MaxBytesReader. Requests exceeding the cap
// will cause downstream body reads to error.
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
