// Package memoryball turns photos and short video clips into square, subject-framed clips
// meant to be shown inside a circle.
//
// Basic usage:
//
//	package main
//
//	import (
//		"context"
//		"fmt"
//		"log"
//
//		"github.com/menta2k/memoryball"
//	)
//
//	func main() {
//		mb := memoryball.New()
//		defer mb.Close()
//
//		img, err := mb.LoadImage("photo.jpg")
//		if err != nil {
//			log.Fatal(err)
//		}
//
//		plan, err := mb.PlanImage(context.Background(), img)
//		if err != nil {
//			log.Fatal(err)
//		}
//		fmt.Printf("zoom %v -> %v\n", plan.Crop.Start, plan.Crop.End)
//
//		res := mb.ProcessFile(context.Background(), "photo.jpg")
//		if res.Err != nil {
//			log.Fatal(res.Err)
//		}
//		fmt.Println("wrote", res.Output)
//	}
//
// The work is split over these packages:
//
//  1. Detection (pkg/detection, pkg/cascade, pkg/vision): a chain of subject detectors whose
//     candidates are fused, deduplicated and filtered.
//  2. Planning (pkg/cropper, pkg/tracker): square crop and zoom planning for stills, smoothed
//     per-frame focus for video.
//  3. Rendering (pkg/sequence, pkg/processing, pkg/ffmpeg): frame generation and H.264
//     encoding through ffmpeg.
//  4. Orchestration (pkg/pipeline): per-item processing and the batch worker pool.
package memoryball

import (
	"context"
	"image"
	"log/slog"

	"github.com/menta2k/memoryball/internal/config"
	"github.com/menta2k/memoryball/internal/logging"
	"github.com/menta2k/memoryball/internal/utils"
	"github.com/menta2k/memoryball/pkg/analyzer"
	"github.com/menta2k/memoryball/pkg/pipeline"
)

// Version of the memoryball library
const Version = "0.3.0"

// Config is the full processing configuration
type Config = config.Config

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return config.Default()
}

// LoadConfig reads a TOML configuration file. An empty path uses the default location.
func LoadConfig(path string) (*Config, error) {
	cfg, _, err := config.Load(path)
	return cfg, err
}

// MemoryBall is a high-level handle over one processing worker
type MemoryBall struct {
	cfg       *Config
	logger    *slog.Logger
	loader    *analyzer.ImageAnalyzer
	batch     *pipeline.Batch
	processor *pipeline.Processor
}

// New creates a MemoryBall with the default configuration and no logging
func New() *MemoryBall {
	mb, _ := NewWithConfig(DefaultConfig(), nil)
	return mb
}

// NewWithConfig creates a MemoryBall for cfg. A nil logger discards log output.
func NewWithConfig(cfg *Config, logger *slog.Logger) (*MemoryBall, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	batch := pipeline.NewBatch(cfg, logger)
	batch.Progress = nil
	return &MemoryBall{
		cfg:       cfg,
		logger:    logger,
		loader:    analyzer.New(),
		batch:     batch,
		processor: batch.NewProcessor(),
	}, nil
}

// Close releases the detector backends
func (mb *MemoryBall) Close() {
	mb.processor.Close()
}

// Config returns the configuration in use
func (mb *MemoryBall) Config() *Config {
	return mb.cfg
}

// LoadImage loads an image from a file path or an http(s) URL
func (mb *MemoryBall) LoadImage(source string) (image.Image, error) {
	return mb.loader.LoadImageSmart(source)
}

// GetImageInfo returns basic information about an image
func (mb *MemoryBall) GetImageInfo(img image.Image) analyzer.ImageInfo {
	return mb.loader.GetImageInfo(img)
}

// PlanImage runs detection and returns the crop plan for a still
func (mb *MemoryBall) PlanImage(ctx context.Context, img image.Image) (pipeline.Plan, error) {
	return mb.processor.PlanImage(ctx, img)
}

// ProcessFile renders one image or video into the configured output directory
func (mb *MemoryBall) ProcessFile(ctx context.Context, path string) pipeline.ItemResult {
	return mb.processor.Process(ctx, path)
}

// ProcessAll renders every supported file under input with the configured number of workers
func (mb *MemoryBall) ProcessAll(ctx context.Context, input string) (pipeline.Summary, error) {
	paths, err := utils.ListMediaFiles(input)
	if err != nil {
		return pipeline.Summary{}, err
	}
	return mb.batch.Run(ctx, paths)
}

// Unavailable lists detector backends that could not be created
func (mb *MemoryBall) Unavailable() map[string]error {
	return mb.batch.Unavailable()
}

// GetVersion returns the library version
func GetVersion() string {
	return Version
}
