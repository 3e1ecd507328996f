package handlers

import (
	"context"
	"errors"
	"strconv"

	"github.com/asset-gallery/backend/internal/http/dto"
	"github.com/asset-gallery/backend/internal/models"
	"github.com/asset-gallery/backend/internal/services"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

const monitorSuccessMessage = "Request monitoring completed successfully"

type Monitor interface {
	Run(ctx context.Context, trigger string) (*models.MonitorReport, error)
	LastReport() *models.MonitorReport
}

// AuditHistory is satisfied by repositories.AuditRepo.
type AuditHistory interface {
	ListByEntity(ctx context.Context, entityType, entityID string, limit, offset int) ([]models.AuditLog, error)
}

type MonitorHandler struct {
	monitor Monitor
	history AuditHistory
	log     *zap.Logger
}

// NewMonitorHandler builds the trigger handlers. history may be nil when no
// audit store is configured.
func NewMonitorHandler(monitor Monitor, history AuditHistory, log *zap.Logger) *MonitorHandler {
	return &MonitorHandler{monitor: monitor, history: history, log: log}
}

// Trigger runs one monitoring pass synchronously, whatever the method or path.
func (h *MonitorHandler) Trigger(c *fiber.Ctx) error {
	_, err := h.monitor.Run(c.UserContext(), models.TriggerHTTP)
	if errors.Is(err, services.ErrRunInProgress) {
		return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{Error: err.Error()})
	}
	if err != nil {
		h.log.Error("monitor trigger failed", zap.String("path", c.Path()), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: err.Error()})
	}
	return c.Status(fiber.StatusOK).SendString(monitorSuccessMessage)
}

func (h *MonitorHandler) LastReport(c *fiber.Ctx) error {
	report := h.monitor.LastReport()
	if report == nil {
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Error: "no monitor run yet"})
	}
	return c.JSON(report)
}

func (h *MonitorHandler) ActorHistory(c *fiber.Ctx) error {
	if h.history == nil {
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Error: "audit log not configured"})
	}

	limit := 50
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	entries, err := h.history.ListByEntity(c.UserContext(), "user", c.Params("id"), limit, 0)
	if err != nil {
		h.log.Error("failed to load actor history", zap.String("actor_id", c.Params("id")), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "failed to load history"})
	}
	if entries == nil {
		entries = []models.AuditLog{}
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: entries})
}
