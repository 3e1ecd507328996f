package handlers

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/asset-gallery/backend/internal/http/dto"
	"github.com/asset-gallery/backend/internal/metrics"
	"github.com/asset-gallery/backend/internal/services"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type Moderator interface {
	Moderate(ctx context.Context, text, imageURL string) (json.RawMessage, error)
}

type ModerationHandler struct {
	moderator Moderator
	metrics   *metrics.Metrics
	log       *zap.Logger
}

func NewModerationHandler(moderator Moderator, m *metrics.Metrics, log *zap.Logger) *ModerationHandler {
	if m == nil {
		m = metrics.New(nil)
	}
	return &ModerationHandler{moderator: moderator, metrics: m, log: log}
}

// Handle serves every method on the moderation route: preflight, POST, or 405.
func (h *ModerationHandler) Handle(c *fiber.Ctx) error {
	switch c.Method() {
	case fiber.MethodOptions:
		c.Set(fiber.HeaderAccessControlAllowOrigin, "*")
		c.Set(fiber.HeaderAccessControlAllowMethods, "POST, OPTIONS")
		c.Set(fiber.HeaderAccessControlAllowHeaders, "Content-Type, Authorization")
		return c.SendStatus(fiber.StatusNoContent)
	case fiber.MethodPost:
	default:
		return c.Status(fiber.StatusMethodNotAllowed).SendString("Method Not Allowed")
	}

	c.Set(fiber.HeaderAccessControlAllowOrigin, "*")

	var req dto.ModerationRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request body"})
	}
	if req.Text == "" && req.ImageURL == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "text or image_url is required"})
	}

	raw, err := h.moderator.Moderate(c.UserContext(), req.Text, req.ImageURL)
	if err != nil {
		h.metrics.UpstreamRequests.WithLabelValues("moderation", "failed").Inc()

		var modErr *services.ModerationError
		if !errors.As(err, &modErr) {
			h.log.Error("moderation request failed", zap.Error(err))
			return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "moderation api error: unavailable"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: modErr.Error()})
	}

	h.metrics.UpstreamRequests.WithLabelValues("moderation", "success").Inc()
	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return c.Status(fiber.StatusOK).Send(raw)
}
