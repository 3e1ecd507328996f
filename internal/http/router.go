package http

import (
	"time"

	"github.com/asset-gallery/backend/internal/config"
	"github.com/asset-gallery/backend/internal/http/dto"
	"github.com/asset-gallery/backend/internal/http/handlers"
	"github.com/asset-gallery/backend/internal/middleware"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// NewApp returns a fiber app whose unhandled errors use the JSON error shape.
func NewApp() *fiber.App {
	return fiber.New(fiber.Config{
		DisableStartupMessage: true,
		BodyLimit:             20 * 1024 * 1024,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			reqID, _ := c.Locals(middleware.CtxRequestID).(string)
			return c.Status(code).JSON(dto.ErrorResponse{Error: err.Error(), RequestID: reqID})
		},
	})
}

func setupCommon(app *fiber.App, log *zap.Logger, gatherer prometheus.Gatherer) {
	app.Use(recover.New())
	app.Use(middleware.RequestIDMiddleware())
	app.Use(middleware.LoggerMiddleware(log))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	if gatherer != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}
}

// SetupMonitorRouter mounts the monitor service. Every path that is not a
// fixed route triggers a monitoring run.
func SetupMonitorRouter(
	app *fiber.App,
	cfg *config.Config,
	log *zap.Logger,
	gatherer prometheus.Gatherer,
	monitorHandler *handlers.MonitorHandler,
	wsHub *handlers.WSHub,
) {
	setupCommon(app, log, gatherer)

	triggerAuth := middleware.TriggerAuthMiddleware(cfg.MonitorTriggerToken, log)

	// Reports expose actor ids, so they sit behind the trigger token too.
	api := app.Group("/api/v1/monitor", triggerAuth)
	api.Get("/last", monitorHandler.LastReport)
	api.Get("/actors/:id/history", monitorHandler.ActorHistory)

	// WebSocket
	app.Use("/ws", handlers.WSUpgradeMiddleware())
	app.Get("/ws", websocket.New(wsHub.HandleWS))

	app.All("/*", triggerAuth, monitorHandler.Trigger)
}

// SetupAPIRouter mounts the moderation proxy and the 3D generation endpoint.
// rdb may be nil, which disables rate limiting.
func SetupAPIRouter(
	app *fiber.App,
	cfg *config.Config,
	log *zap.Logger,
	rdb *redis.Client,
	gatherer prometheus.Gatherer,
	moderationHandler *handlers.ModerationHandler,
	generationHandler *handlers.GenerationHandler,
) {
	setupCommon(app, log, gatherer)

	limiter := middleware.RateLimitMiddleware(rdb, cfg.RateLimitPerMinute, time.Minute, log)

	// The moderation route answers its own preflight.
	app.All("/api/moderate", limiter, moderationHandler.Handle)

	api := app.Group("/api/v1")
	api.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Request-ID",
	}))
	api.Use(limiter)
	api.Post("/generate", generationHandler.Generate)
}
