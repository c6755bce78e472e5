package cascade

import (
	"context"
	"fmt"
	"image"
	"os"

	pigo "github.com/esimov/pigo/core"

	"github.com/menta2k/memoryball/pkg/detection"
	"github.com/menta2k/memoryball/pkg/geometry"
	"github.com/menta2k/memoryball/pkg/types"
)

// PigoConfig holds the pigo cascade parameters
type PigoConfig struct {
	CascadePath string
	// MinSizeRatio is the smallest face side relative to the short image side.
	MinSizeRatio     float64
	ShiftFactor      float64
	ScaleFactor      float64
	IoUThreshold     float64
	QualityThreshold float32
	// QualityScale maps pigo's quality onto [0,1]: score = Q / QualityScale.
	QualityScale float64
	MaxSide      int
}

// DefaultPigoConfig returns pigo parameters suited to photos
func DefaultPigoConfig(cascadePath string) PigoConfig {
	return PigoConfig{
		CascadePath:      cascadePath,
		MinSizeRatio:     0.05,
		ShiftFactor:      0.1,
		ScaleFactor:      1.1,
		IoUThreshold:     0.2,
		QualityThreshold: 5.0,
		QualityScale:     20,
		MaxSide:          1024,
	}
}

// PigoBackend finds frontal faces with the pigo pixel-intensity cascade
type PigoBackend struct {
	classifier *pigo.Pigo
	config     PigoConfig
}

// NewPigoBackend loads the facefinder cascade. A missing or corrupt cascade makes the backend
// unavailable for the run.
func NewPigoBackend(config PigoConfig) (*PigoBackend, error) {
	if config.CascadePath == "" {
		return nil, detection.Unavailable("pigo", fmt.Errorf("no cascade file configured"))
	}
	cascadeFile, err := os.ReadFile(config.CascadePath)
	if err != nil {
		return nil, detection.Unavailable("pigo", fmt.Errorf("failed to read cascade file: %w", err))
	}

	classifier, err := unpack(cascadeFile)
	if err != nil {
		return nil, detection.Unavailable("pigo", err)
	}
	return &PigoBackend{classifier: classifier, config: config}, nil
}

// unpack guards against truncated cascade files, which pigo indexes without bounds checks.
func unpack(data []byte) (classifier *pigo.Pigo, err error) {
	if len(data) < 16 {
		return nil, fmt.Errorf("cascade file too short (%d bytes)", len(data))
	}
	defer func() {
		if r := recover(); r != nil {
			classifier, err = nil, fmt.Errorf("failed to unpack cascade: %v", r)
		}
	}()

	classifier, err = pigo.NewPigo().Unpack(data)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack cascade: %w", err)
	}
	return classifier, nil
}

// Name identifies the backend in logs
func (b *PigoBackend) Name() string {
	return "pigo"
}

// Detect runs the cascade over a grayscale copy of img
func (b *PigoBackend) Detect(ctx context.Context, img image.Image) ([]types.RawDetection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	src, scale := downscale(img, b.config.MaxSide)
	cols, rows := src.Bounds().Dx(), src.Bounds().Dy()
	if cols == 0 || rows == 0 {
		return nil, nil
	}

	minSize := max(20, int(b.config.MinSizeRatio*float64(min(cols, rows))))
	cParams := pigo.CascadeParams{
		MinSize:     minSize,
		MaxSize:     max(cols, rows),
		ShiftFactor: b.config.ShiftFactor,
		ScaleFactor: b.config.ScaleFactor,
		ImageParams: pigo.ImageParams{
			Pixels: pigo.RgbToGrayscale(src),
			Rows:   rows,
			Cols:   cols,
			Dim:    cols,
		},
	}

	dets := b.classifier.RunCascade(cParams, 0.0)
	dets = b.classifier.ClusterDetections(dets, b.config.IoUThreshold)
	return convertDetections(dets, scale, b.config), nil
}

// convertDetections turns pigo's center/scale circles into pixel rectangles on the source image.
func convertDetections(dets []pigo.Detection, scale float64, config PigoConfig) []types.RawDetection {
	var out []types.RawDetection
	for _, det := range dets {
		if det.Q < config.QualityThreshold {
			continue
		}

		half := float64(det.Scale) / 2
		out = append(out, types.RawDetection{
			X:      (float64(det.Col) - half) * scale,
			Y:      (float64(det.Row) - half) * scale,
			Width:  float64(det.Scale) * scale,
			Height: float64(det.Scale) * scale,
			Score:  qualityScore(det.Q, config.QualityScale),
			Label:  "face",
		})
	}
	return out
}

func qualityScore(q float32, qualityScale float64) float64 {
	if qualityScale <= 0 {
		return 1
	}
	return geometry.Clamp(float64(q)/qualityScale, 0, 1)
}
