package handlers

import (
	"context"
	"io"

	"github.com/asset-gallery/backend/internal/http/dto"
	"github.com/asset-gallery/backend/internal/metrics"
	"github.com/asset-gallery/backend/internal/models"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type Generator interface {
	Generate(ctx context.Context, params models.GenerationParams, filename string, file io.Reader) (*models.GenerationResult, error)
}

type GenerationHandler struct {
	generator Generator
	metrics   *metrics.Metrics
	log       *zap.Logger
}

func NewGenerationHandler(generator Generator, m *metrics.Metrics, log *zap.Logger) *GenerationHandler {
	if m == nil {
		m = metrics.New(nil)
	}
	return &GenerationHandler{generator: generator, metrics: m, log: log}
}

// Generate accepts a multipart image in field "file"; pipeline knobs come from the query.
func (h *GenerationHandler) Generate(c *fiber.Ctx) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "file is required"})
	}

	params, err := models.ParseGenerationParams(func(key string) string { return c.Query(key) })
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: err.Error()})
	}

	f, err := fh.Open()
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid file"})
	}
	defer f.Close()

	res, err := h.generator.Generate(c.UserContext(), params, fh.Filename, f)
	if err != nil {
		h.metrics.UpstreamRequests.WithLabelValues("generation", "failed").Inc()
		h.log.Error("3d generation failed", zap.String("filename", fh.Filename), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: err.Error()})
	}
	h.metrics.UpstreamRequests.WithLabelValues("generation", "success").Inc()

	return c.JSON(dto.GenerationResponse{
		Type:               res.Type,
		PreviewVideo:       res.Preview,
		PreviewContentType: models.PreviewContentType,
		GLBModel:           res.ModelData,
		ModelContentType:   models.ModelContentType,
		TrialID:            res.TrialID,
		QueueInfo:          res.QueueInfo,
	})
}
