package pipeline

import (
	"context"
	"fmt"
	"image"

	"github.com/menta2k/memoryball/internal/config"
	"github.com/menta2k/memoryball/pkg/cascade"
	"github.com/menta2k/memoryball/pkg/client"
	"github.com/menta2k/memoryball/pkg/detection"
	"github.com/menta2k/memoryball/pkg/llamacpp"
	"github.com/menta2k/memoryball/pkg/ollama"
	"github.com/menta2k/memoryball/pkg/vision"
)

// Backend names as they appear in logs and in ChainBuilder.Unavailable.
const (
	BackendVision   = "vision"
	BackendPigo     = "pigo"
	BackendCascade  = "opencv-cascade"
	BackendPerson   = "opencv-person"
	BackendSaliency = "saliency"
)

// Factories returns the detector chain for stills or video in fallback order: the VLM (stills
// only), pigo faces, Haar cascades, HOG people, then saliency as a last resort.
func Factories(cfg *config.Config, forVideo bool) []detection.StageFactory {
	if !cfg.Detection.Enabled {
		return nil
	}

	var factories []detection.StageFactory

	if cfg.Vision.Enabled && !forVideo {
		vc := cfg.Vision
		factories = append(factories, detection.StageFactory{
			Name: BackendVision,
			New: func() (detection.Backend, error) {
				c, err := NewVisionClient(vc.Provider, vc.URL)
				if err != nil {
					return nil, detection.Unavailable(BackendVision, err)
				}
				return detection.NewVisionBackend(c, detection.VisionConfig{
					Model:   vc.Model,
					MaxDim:  vc.MaxDim,
					Quality: vc.Quality,
				})
			},
		})
	}

	if cfg.Detection.PigoCascade != "" {
		path := cfg.Detection.PigoCascade
		factories = append(factories, detection.StageFactory{
			Name: BackendPigo,
			New: func() (detection.Backend, error) {
				return cascade.NewPigoBackend(cascade.DefaultPigoConfig(path))
			},
		})
	}

	opencv := cascade.DefaultOpenCVConfig(cfg.Detection.CascadeDir)
	if cfg.Detection.Cascades {
		factories = append(factories, detection.StageFactory{
			Name:    BackendCascade,
			New:     func() (detection.Backend, error) { return cascade.NewOpenCVCascadeBackend(opencv) },
			Trusted: true,
		})
	}
	if cfg.Detection.Person {
		factories = append(factories, detection.StageFactory{
			Name:    BackendPerson,
			New:     func() (detection.Backend, error) { return cascade.NewPersonBackend(opencv) },
			Trusted: true,
		})
	}

	if cfg.Detection.Saliency {
		factories = append(factories, detection.StageFactory{
			Name:       BackendSaliency,
			New:        func() (detection.Backend, error) { return vision.New(), nil },
			LastResort: true,
		})
	}

	return factories
}

// NewVisionClient creates the transport for a VLM provider
func NewVisionClient(provider, url string) (client.VisionClient, error) {
	switch provider {
	case "ollama", "":
		c, err := ollama.NewClient(url)
		if err != nil {
			return nil, err
		}
		return c, nil
	case "llamacpp":
		c, err := llamacpp.NewClient(url)
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unknown vision provider %q", provider)
	}
}

// CheckVision asks the configured model to describe img with a plain prompt, to confirm the
// server is reachable and the model accepts images.
func CheckVision(ctx context.Context, cfg *config.Config, img image.Image) (string, error) {
	vc := cfg.Vision
	c, err := NewVisionClient(vc.Provider, vc.URL)
	if err != nil {
		return "", err
	}
	backend, err := detection.NewVisionBackend(c, detection.VisionConfig{
		Model:   vc.Model,
		MaxDim:  vc.MaxDim,
		Quality: vc.Quality,
	})
	if err != nil {
		return "", err
	}
	return backend.TestVision(ctx, img)
}
