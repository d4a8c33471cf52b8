package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/tbourn/go-widget-chat/internal/cache"
	"github.com/tbourn/go-widget-chat/internal/config"
	httpapi "github.com/tbourn/go-widget-chat/internal/http"
	"github.com/tbourn/go-widget-chat/internal/observability"
	"github.com/tbourn/go-widget-chat/internal/provider"
	"github.com/tbourn/go-widget-chat/internal/repo"
)

const (
	shutdownGrace     = 15 * time.Second
	purgeInterval     = 10 * time.Minute
	memoryCacheItems  = 1024
	redisKeyPrefix    = "widgetchat:"
	redisPingDeadline = 2 * time.Second
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
}

func serve(ctx context.Context, cfg config.Config) error {
	gin.SetMode(cfg.GinMode)

	shutdownTracing, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			log.Warn().Err(err).Msg("tracing shutdown")
		}
	}()

	db, err := repo.Open(cfg.DB)
	if err != nil {
		return err
	}
	defer closeDB(db)
	if err := repo.AutoMigrate(db); err != nil {
		return err
	}

	store, closeCache := newCacheStore(ctx, cfg)
	defer closeCache()

	r := gin.New()
	httpapi.RegisterRoutes(r, httpapi.Deps{
		DB:        db,
		Providers: newSelector(cfg.Providers),
		Cache:     store,
	}, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout, // the chat route lifts it per request
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", srv.Addr).Str("db", cfg.DB.Driver).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		purgeIdempotency(gctx, db, purgeInterval)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return srv.Shutdown(sctx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info().Msg("server exited")
	return nil
}

// newSelector builds the hosted adapters once. A platform without a key
// for a provider answers its chatbots with a configuration error.
func newSelector(cfg config.ProviderConfig) *provider.Selector {
	sel := &provider.Selector{}
	if cfg.OpenAIKey != "" {
		sel.OpenAI = provider.NewOpenAI(provider.OpenAIConfig{APIKey: cfg.OpenAIKey, BaseURL: cfg.OpenAIBaseURL})
	} else {
		log.Warn().Msg("OPENAI_API_KEY not set; openai chatbots will fail")
	}
	if cfg.GeminiKey != "" {
		sel.Gemini = provider.NewGemini(provider.GeminiConfig{APIKey: cfg.GeminiKey, BaseURL: cfg.GeminiBaseURL})
	} else {
		log.Warn().Msg("GEMINI_API_KEY not set; gemini chatbots will fail")
	}
	return sel
}

// newCacheStore returns redis when REDIS_ADDR is set and an in-process LRU
// otherwise. An unreachable redis is kept: the loader falls back to direct
// reads until it recovers.
func newCacheStore(ctx context.Context, cfg config.Config) (cache.Store, func()) {
	if cfg.Redis.Addr == "" {
		return cache.NewMemory(memoryCacheItems, cfg.WidgetCacheTTL), func() {}
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	rc := cache.NewRedis(client, redisKeyPrefix, cfg.WidgetCacheTTL)

	pctx, cancel := context.WithTimeout(ctx, redisPingDeadline)
	defer cancel()
	if err := rc.Ping(pctx); err != nil {
		log.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("redis unreachable; widget config reads go to the database")
	}
	return rc, func() { _ = client.Close() }
}

// purgeIdempotency deletes expired replay records until ctx ends.
func purgeIdempotency(ctx context.Context, db *gorm.DB, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			n, err := repo.PurgeExpiredIdempotency(ctx, db, now.UTC())
			if err != nil {
				log.Warn().Err(err).Msg("purge idempotency")
				continue
			}
			if n > 0 {
				log.Debug().Int64("rows", n).Msg("purged expired idempotency keys")
			}
		}
	}
}

func closeDB(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
