package services

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/asset-gallery/backend/internal/models"
	"go.uber.org/zap"
)

func TestGenerationClientGenerate(t *testing.T) {
	preview := []byte("fake-mp4-bytes")
	glb := []byte{0x67, 0x6c, 0x54, 0x46, 0x02, 0x00}

	var query map[string]string
	var upload []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/process-image" || r.Method != http.MethodPost {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		query = map[string]string{}
		for k := range r.URL.Query() {
			query[k] = r.URL.Query().Get(k)
		}
		f, _, err := r.FormFile("file")
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		upload, _ = io.ReadAll(f)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"preview_video_base64": hex.EncodeToString(preview),
			"glb_model_base64":     hex.EncodeToString(glb),
			"trial_id":             "trial-9",
			"queue_info":           map[string]any{"position": 0},
		})
	}))
	defer srv.Close()

	c := NewGenerationClient(srv.URL+"/", time.Second, zap.NewNop())
	params := models.DefaultGenerationParams()
	params.TextureSize = 2048

	res, err := c.Generate(context.Background(), params, "chair.png", strings.NewReader("png-data"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !bytes.Equal(res.Preview, preview) || !bytes.Equal(res.ModelData, glb) {
		t.Errorf("payloads not decoded: preview=%q model=%v", res.Preview, res.ModelData)
	}
	if res.Type != "3d" || res.TrialID != "trial-9" {
		t.Errorf("unexpected metadata: %+v", res)
	}
	if string(upload) != "png-data" {
		t.Errorf("uploaded file = %q", upload)
	}
	if query["session_id"] == "" {
		t.Error("session_id should be set")
	}
	if query["texture_size"] != "2048" || query["ss_guidance_strength"] != "7.5" || query["randomize_seed"] != "true" {
		t.Errorf("unexpected query: %v", query)
	}
}

func TestGenerationClientErrors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		want    string
	}{
		{
			name: "upstream failure",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadGateway)
			},
			want: "failed to process image",
		},
		{
			name: "invalid hex",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"preview_video_base64":"zz","glb_model_base64":"00"}`))
			},
			want: "decode preview video",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			c := NewGenerationClient(srv.URL, time.Second, zap.NewNop())
			_, err := c.Generate(context.Background(), models.DefaultGenerationParams(), "a.png", strings.NewReader("x"))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestGenerationClientValidatesParams(t *testing.T) {
	c := NewGenerationClient("http://127.0.0.1:0", time.Second, zap.NewNop())
	params := models.DefaultGenerationParams()
	params.SSSamplingSteps = 50

	if _, err := c.Generate(context.Background(), params, "a.png", strings.NewReader("x")); err == nil {
		t.Error("expected validation error before any request")
	}
}
