package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/asset-gallery/backend/internal/config"
	"github.com/asset-gallery/backend/internal/db"
	"github.com/asset-gallery/backend/internal/events"
	apphttp "github.com/asset-gallery/backend/internal/http"
	"github.com/asset-gallery/backend/internal/http/handlers"
	"github.com/asset-gallery/backend/internal/metrics"
	"github.com/asset-gallery/backend/internal/models"
	"github.com/asset-gallery/backend/internal/repositories"
	"github.com/asset-gallery/backend/internal/services"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

const runLockKey = "lock:request-monitor"

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

	var (
		lock       services.RunLock = services.NewLocalRunLock()
		publisher  events.Publisher
		subscriber events.Subscriber
		audit      services.AuditLogger
		history    handlers.AuditHistory
	)

	// Redis (optional)
	if cfg.RedisURL != "" {
		rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
		if err != nil {
			log.Fatal("failed to connect to redis", zap.Error(err))
		}
		defer rdb.Close()

		lock = services.NewRedisRunLock(rdb, runLockKey, cfg.MonitorLockTTL, log)
		publisher = events.NewRedisPublisher(rdb, log)
		subscriber = events.NewRedisSubscriber(rdb, log)
	}

	// Audit log (optional)
	if cfg.PostgresDSN != "" {
		pool, err := db.NewPostgresPool(ctx, cfg.PostgresDSN, log)
		if err != nil {
			log.Fatal("failed to connect to postgres", zap.Error(err))
		}
		defer pool.Close()

		if err := db.RunMigrations(ctx, pool, log); err != nil {
			log.Fatal("failed to run migrations", zap.Error(err))
		}

		auditRepo := repositories.NewAuditRepo(pool)
		audit = auditRepo
		history = auditRepo
	}

	wsHub := handlers.NewWSHub(cfg.MonitorWSToken, subscriber, log)
	if publisher == nil {
		publisher = wsHub
	}
	wsHub.Start(ctx)

	pb := services.NewPocketBaseClient(cfg.PocketBaseURL, cfg.PocketBaseAdminIdentity, cfg.PocketBaseAdminPassword, cfg.UpstreamTimeout, log)
	monitor := services.NewRequestMonitor(pb, lock, audit, publisher, m, services.MonitorOptions{
		RequestCollection: cfg.RequestCollection,
		UserCollection:    cfg.UserCollection,
		Threshold:         cfg.RequestThreshold,
		Window:            cfg.MonitorWindow,
		Workers:           cfg.MonitorWorkers,
	}, log)

	go runScheduler(ctx, monitor, cfg, log)

	app := apphttp.NewApp()
	apphttp.SetupMonitorRouter(app, cfg, log, reg, handlers.NewMonitorHandler(monitor, history, log), wsHub)

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")
		cancel()
		_ = app.Shutdown()
	}()

	addr := fmt.Sprintf(":%s", cfg.MonitorPort)
	log.Info("starting request monitor", zap.String("addr", addr), zap.Duration("interval", cfg.MonitorInterval))
	if err := app.Listen(addr); err != nil {
		log.Fatal("server error", zap.Error(err))
	}
}

func runScheduler(ctx context.Context, monitor *services.RequestMonitor, cfg *config.Config, log *zap.Logger) {
	if cfg.MonitorRunOnStart {
		runScheduled(ctx, monitor, log)
	}

	interval := cfg.MonitorInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			runScheduled(ctx, monitor, log)
		case <-ctx.Done():
			return
		}
	}
}

func runScheduled(ctx context.Context, monitor *services.RequestMonitor, log *zap.Logger) {
	_, err := monitor.Run(ctx, models.TriggerScheduled)
	switch {
	case errors.Is(err, services.ErrRunInProgress):
		log.Info("scheduled run skipped, previous run still active")
	case err != nil:
		log.Error("scheduled monitor run failed", zap.Error(err))
	}
}
