package dto

import "encoding/json"

type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

type SuccessResponse struct {
	OK   bool `json:"ok"`
	Data any  `json:"data,omitempty"`
}

// GenerationResponse carries the decoded payloads; []byte fields encode as base64.
type GenerationResponse struct {
	Type               string          `json:"type"`
	PreviewVideo       []byte          `json:"preview_video"`
	PreviewContentType string          `json:"preview_content_type"`
	GLBModel           []byte          `json:"glb_model"`
	ModelContentType   string          `json:"model_content_type"`
	TrialID            string          `json:"trial_id,omitempty"`
	QueueInfo          json.RawMessage `json:"queue_info,omitempty"`
}
