package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/asset-gallery/backend/internal/models"
	"go.uber.org/zap"
)

// ModerationClient forwards text and image inputs to the OpenAI moderation API.
type ModerationClient struct {
	endpoint   string
	apiKey     string
	model      string
	httpClient *http.Client
	log        *zap.Logger
}

func NewModerationClient(endpoint, apiKey, model string, timeout time.Duration, log *zap.Logger) *ModerationClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &ModerationClient{
		endpoint: endpoint,
		apiKey:   apiKey,
		model:    model,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		log: log,
	}
}

// Moderate returns the upstream JSON body untouched.
func (c *ModerationClient) Moderate(ctx context.Context, text, imageURL string) (json.RawMessage, error) {
	body, err := json.Marshal(models.NewModerationPayload(c.model, text, imageURL))
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("moderation api unavailable: %w", err)
	}
	defer resp.Body.Close()

	if !isSuccess(resp.StatusCode) {
		upErr := newUpstreamError("moderation api", "moderate", resp)
		c.log.Warn("moderation api error", zap.Int("status", upErr.StatusCode), zap.String("body", upErr.Body))
		return nil, &ModerationError{StatusCode: resp.StatusCode}
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read moderation response: %w", err)
	}
	if !json.Valid(raw) {
		return nil, fmt.Errorf("moderation api returned invalid json")
	}
	return json.RawMessage(raw), nil
}
