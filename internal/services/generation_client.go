package services

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/asset-gallery/backend/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// GenerationClient submits an image to the image-to-3D API and decodes the result.
type GenerationClient struct {
	baseURL    string
	httpClient *http.Client
	log        *zap.Logger
}

func NewGenerationClient(baseURL string, timeout time.Duration, log *zap.Logger) *GenerationClient {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &GenerationClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		log: log,
	}
}

// Field names say base64 but the payloads are hex encoded.
type generationResponse struct {
	PreviewVideo string          `json:"preview_video_base64"`
	GLBModel     string          `json:"glb_model_base64"`
	TrialID      string          `json:"trial_id"`
	QueueInfo    json.RawMessage `json:"queue_info"`
}

func (c *GenerationClient) Generate(ctx context.Context, params models.GenerationParams, filename string, file io.Reader) (*models.GenerationResult, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	sessionID := uuid.New().String()
	endpoint := fmt.Sprintf("%s/process-image?%s", c.baseURL, generationQuery(sessionID, params).Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("generation api unavailable: %w", err)
	}
	defer resp.Body.Close()

	if !isSuccess(resp.StatusCode) {
		upErr := newUpstreamError("generation api", "process-image", resp)
		c.log.Warn("generation api error", zap.String("session_id", sessionID), zap.Int("status", upErr.StatusCode))
		return nil, fmt.Errorf("failed to process image: status %d", resp.StatusCode)
	}

	var data generationResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("decode generation response: %w", err)
	}

	preview, err := hex.DecodeString(data.PreviewVideo)
	if err != nil {
		return nil, fmt.Errorf("decode preview video: %w", err)
	}
	model, err := hex.DecodeString(data.GLBModel)
	if err != nil {
		return nil, fmt.Errorf("decode glb model: %w", err)
	}

	c.log.Info("3d generation completed",
		zap.String("session_id", sessionID),
		zap.String("trial_id", data.TrialID),
		zap.Int("preview_bytes", len(preview)),
		zap.Int("model_bytes", len(model)),
		zap.Duration("took", time.Since(start)),
	)

	return &models.GenerationResult{
		Type:      "3d",
		Preview:   preview,
		ModelData: model,
		TrialID:   data.TrialID,
		QueueInfo: data.QueueInfo,
	}, nil
}

func generationQuery(sessionID string, p models.GenerationParams) url.Values {
	q := url.Values{}
	q.Set("session_id", sessionID)
	q.Set("seed", strconv.FormatInt(p.Seed, 10))
	q.Set("randomize_seed", strconv.FormatBool(p.RandomizeSeed))
	q.Set("ss_guidance_strength", strconv.FormatFloat(p.SSGuidanceStrength, 'f', -1, 64))
	q.Set("ss_sampling_steps", strconv.Itoa(p.SSSamplingSteps))
	q.Set("slat_guidance_strength", strconv.FormatFloat(p.SLATGuidanceStrength, 'f', -1, 64))
	q.Set("slat_sampling_steps", strconv.Itoa(p.SLATSamplingSteps))
	q.Set("mesh_simplify", strconv.FormatFloat(p.MeshSimplify, 'f', -1, 64))
	q.Set("texture_size", strconv.Itoa(p.TextureSize))
	return q
}
