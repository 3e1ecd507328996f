// Command gen3d converts a single image into a preview video and a GLB model.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/asset-gallery/backend/internal/config"
	"github.com/asset-gallery/backend/internal/models"
	"github.com/asset-gallery/backend/internal/services"
	"go.uber.org/zap"
)

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	defaults := models.DefaultGenerationParams()

	var (
		image   = flag.String("image", "", "input image path (required)")
		out     = flag.String("out", "", "output path without extension (default: image name)")
		apiURL  = flag.String("api", cfg.GenerationAPIURL, "generation API base URL")
		timeout = flag.Duration("timeout", 10*time.Minute, "request timeout")
		params  = defaults
	)
	flag.Int64Var(&params.Seed, "seed", defaults.Seed, "random seed")
	flag.BoolVar(&params.RandomizeSeed, "randomize-seed", defaults.RandomizeSeed, "ignore -seed and pick a random one")
	flag.Float64Var(&params.SSGuidanceStrength, "ss-guidance", defaults.SSGuidanceStrength, "sparse structure guidance strength (1-10)")
	flag.IntVar(&params.SSSamplingSteps, "ss-steps", defaults.SSSamplingSteps, "sparse structure sampling steps (1-20)")
	flag.Float64Var(&params.SLATGuidanceStrength, "slat-guidance", defaults.SLATGuidanceStrength, "structured latent guidance strength (1-10)")
	flag.IntVar(&params.SLATSamplingSteps, "slat-steps", defaults.SLATSamplingSteps, "structured latent sampling steps (1-20)")
	flag.Float64Var(&params.MeshSimplify, "mesh-simplify", defaults.MeshSimplify, "mesh simplification ratio (0-0.99)")
	flag.IntVar(&params.TextureSize, "texture-size", defaults.TextureSize, "texture size (512, 1024 or 2048)")
	flag.Parse()

	if *image == "" {
		flag.Usage()
		os.Exit(2)
	}
	if err := params.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	base := *out
	if base == "" {
		base = strings.TrimSuffix(*image, filepath.Ext(*image))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, services.NewGenerationClient(*apiURL, *timeout, log), params, *image, base, log); err != nil {
		log.Fatal("3d generation failed", zap.Error(err))
	}
}

func run(ctx context.Context, client *services.GenerationClient, params models.GenerationParams, imagePath, base string, log *zap.Logger) error {
	f, err := os.Open(imagePath)
	if err != nil {
		return err
	}
	defer f.Close()

	res, err := client.Generate(ctx, params, filepath.Base(imagePath), f)
	if err != nil {
		return err
	}

	files, err := writeOutputs(base, res)
	if err != nil {
		return err
	}
	log.Info("wrote outputs", zap.Strings("files", files), zap.String("trial_id", res.TrialID))
	return nil
}

// writeOutputs writes <base>.mp4 and <base>.glb and returns their paths.
func writeOutputs(base string, res *models.GenerationResult) ([]string, error) {
	outputs := []struct {
		path string
		data []byte
	}{
		{base + ".mp4", res.Preview},
		{base + ".glb", res.ModelData},
	}

	paths := make([]string, 0, len(outputs))
	for _, o := range outputs {
		if err := os.WriteFile(o.path, o.data, 0o644); err != nil {
			return paths, fmt.Errorf("write %s: %w", o.path, err)
		}
		paths = append(paths, o.path)
	}
	return paths, nil
}
