package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/asset-gallery/backend/internal/config"
	"github.com/asset-gallery/backend/internal/db"
	apphttp "github.com/asset-gallery/backend/internal/http"
	"github.com/asset-gallery/backend/internal/http/handlers"
	"github.com/asset-gallery/backend/internal/metrics"
	"github.com/asset-gallery/backend/internal/services"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	cfg.Validate(log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	// Redis (optional, rate limiting only)
	var rdb *redis.Client
	if cfg.RedisURL != "" {
		var err error
		rdb, err = db.NewRedisClient(ctx, cfg.RedisURL, log)
		if err != nil {
			log.Fatal("failed to connect to redis", zap.Error(err))
		}
		defer rdb.Close()
	}

	// Services
	moderation := services.NewModerationClient(cfg.ModerationURL, cfg.OpenAIAPIKey, cfg.ModerationModel, cfg.UpstreamTimeout, log)
	// Generation jobs queue upstream and routinely outlast the default upstream timeout.
	generation := services.NewGenerationClient(cfg.GenerationAPIURL, 0, log)

	// Handlers
	moderationHandler := handlers.NewModerationHandler(moderation, m, log)
	generationHandler := handlers.NewGenerationHandler(generation, m, log)

	app := apphttp.NewApp()
	apphttp.SetupAPIRouter(app, cfg, log, rdb, reg, moderationHandler, generationHandler)

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")
		cancel()
		_ = app.Shutdown()
	}()

	addr := fmt.Sprintf(":%s", cfg.APIPort)
	log.Info("starting API server", zap.String("addr", addr))
	if err := app.Listen(addr); err != nil {
		log.Fatal("server error", zap.Error(err))
	}
}
