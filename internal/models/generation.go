package models

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// GenerationParams are the knobs of the image-to-3D pipeline.
type GenerationParams struct {
	Seed                 int64   `json:"seed"`
	RandomizeSeed        bool    `json:"randomize_seed"`
	SSGuidanceStrength   float64 `json:"ss_guidance_strength"`
	SSSamplingSteps      int     `json:"ss_sampling_steps"`
	SLATGuidanceStrength float64 `json:"slat_guidance_strength"`
	SLATSamplingSteps    int     `json:"slat_sampling_steps"`
	MeshSimplify         float64 `json:"mesh_simplify"`
	TextureSize          int     `json:"texture_size"`
}

var SupportedTextureSizes = []int{512, 1024, 2048}

func DefaultGenerationParams() GenerationParams {
	return GenerationParams{
		Seed:                 0,
		RandomizeSeed:        true,
		SSGuidanceStrength:   7.5,
		SSSamplingSteps:      12,
		SLATGuidanceStrength: 3.0,
		SLATSamplingSteps:    12,
		MeshSimplify:         0.95,
		TextureSize:          1024,
	}
}

func (p GenerationParams) Validate() error {
	if p.Seed < 0 {
		return fmt.Errorf("seed must be non-negative")
	}
	if p.SSGuidanceStrength < 1 || p.SSGuidanceStrength > 10 {
		return fmt.Errorf("ss_guidance_strength must be between 1 and 10")
	}
	if p.SLATGuidanceStrength < 1 || p.SLATGuidanceStrength > 10 {
		return fmt.Errorf("slat_guidance_strength must be between 1 and 10")
	}
	if p.SSSamplingSteps < 1 || p.SSSamplingSteps > 20 {
		return fmt.Errorf("ss_sampling_steps must be between 1 and 20")
	}
	if p.SLATSamplingSteps < 1 || p.SLATSamplingSteps > 20 {
		return fmt.Errorf("slat_sampling_steps must be between 1 and 20")
	}
	if p.MeshSimplify < 0 || p.MeshSimplify > 0.99 {
		return fmt.Errorf("mesh_simplify must be between 0 and 0.99")
	}
	for _, size := range SupportedTextureSizes {
		if p.TextureSize == size {
			return nil
		}
	}
	return fmt.Errorf("texture_size must be one of %v", SupportedTextureSizes)
}

// GenerationResult holds the decoded payloads of a finished generation.
type GenerationResult struct {
	Type      string          `json:"type"` // always "3d"
	Preview   []byte          `json:"preview"`
	ModelData []byte          `json:"model_data"`
	TrialID   string          `json:"trial_id,omitempty"`
	QueueInfo json.RawMessage `json:"queue_info,omitempty"`
}

const (
	PreviewContentType = "video/mp4"
	ModelContentType   = "model/gltf-binary"
)

// ParseGenerationParams overlays values returned by lookup onto the defaults.
// Missing keys keep their default; malformed values are an error.
func ParseGenerationParams(lookup func(key string) string) (GenerationParams, error) {
	p := DefaultGenerationParams()

	intFields := map[string]*int{
		"ss_sampling_steps":   &p.SSSamplingSteps,
		"slat_sampling_steps": &p.SLATSamplingSteps,
		"texture_size":        &p.TextureSize,
	}
	floatFields := map[string]*float64{
		"ss_guidance_strength":   &p.SSGuidanceStrength,
		"slat_guidance_strength": &p.SLATGuidanceStrength,
		"mesh_simplify":          &p.MeshSimplify,
	}

	if v := lookup("seed"); v != "" {
		seed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return p, fmt.Errorf("invalid seed %q", v)
		}
		p.Seed = seed
	}
	if v := lookup("randomize_seed"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return p, fmt.Errorf("invalid randomize_seed %q", v)
		}
		p.RandomizeSeed = b
	}
	for key, dst := range intFields {
		if v := lookup(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return p, fmt.Errorf("invalid %s %q", key, v)
			}
			*dst = n
		}
	}
	for key, dst := range floatFields {
		if v := lookup(key); v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return p, fmt.Errorf("invalid %s %q", key, v)
			}
			*dst = f
		}
	}

	return p, p.Validate()
}
