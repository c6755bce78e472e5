package vision

import (
	"context"
	"image"
	"math"
	"sort"

	"github.com/disintegration/imaging"

	"github.com/menta2k/memoryball/pkg/geometry"
	"github.com/menta2k/memoryball/pkg/types"
)

// SubjectDetector proposes square regions of high edge contrast. It is the detector of last
// resort: it always has an answer for textured images and never needs model assets.
type SubjectDetector struct {
	config DetectionConfig
}

// DetectionConfig holds configuration for subject detection
type DetectionConfig struct {
	EdgeThreshold   float64
	ContrastWeight  float64
	ColorWeight     float64
	MinSubjectRatio float64
	// AnalysisSize is the longest side the image is reduced to before the saliency pass.
	AnalysisSize int
	MaxRegions   int
	// OverlapIoU suppresses windows overlapping a better one by at least this much.
	OverlapIoU float64
}

// New creates a new SubjectDetector with default configuration
func New() *SubjectDetector {
	return &SubjectDetector{
		config: DetectionConfig{
			EdgeThreshold:   0.01, // More sensitive
			ContrastWeight:  0.3,
			ColorWeight:     0.2,
			MinSubjectRatio: 0.01,
			AnalysisSize:    256,
			MaxRegions:      5,
			OverlapIoU:      0.3,
		},
	}
}

// NewWithConfig creates a new SubjectDetector with custom configuration
func NewWithConfig(config DetectionConfig) *SubjectDetector {
	return &SubjectDetector{config: config}
}

// Region represents a square region of interest in source pixels
type Region struct {
	X      int
	Y      int
	Width  int
	Height int
	Score  float64
}

// Center returns the center point of the region
func (r Region) Center() (int, int) {
	return r.X + r.Width/2, r.Y + r.Height/2
}

// Area returns the area of the region
func (r Region) Area() int {
	return r.Width * r.Height
}

func (r Region) box() types.CropBox {
	return types.CropBox{X: float64(r.X), Y: float64(r.Y), Size: float64(max(r.Width, r.Height))}
}

// Name identifies the backend in logs
func (d *SubjectDetector) Name() string {
	return "saliency"
}

// Detect returns the best saliency windows scaled to img's pixels, scored relative to the
// strongest window.
func (d *SubjectDetector) Detect(ctx context.Context, img image.Image) ([]types.RawDetection, error) {
	regions, err := d.DetectSubjects(ctx, img)
	if err != nil {
		return nil, err
	}
	if len(regions) == 0 {
		return nil, nil
	}

	best := regions[0].Score
	out := make([]types.RawDetection, 0, len(regions))
	for _, r := range regions {
		score := 1.0
		if best > 0 {
			score = r.Score / best
		}
		out = append(out, types.RawDetection{
			X:      float64(r.X),
			Y:      float64(r.Y),
			Width:  float64(r.Width),
			Height: float64(r.Height),
			Score:  score,
			Label:  "salient",
		})
	}
	return out, nil
}

// DetectSubjects analyzes an image and returns regions of interest, best first
func (d *SubjectDetector) DetectSubjects(ctx context.Context, img image.Image) ([]Region, error) {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width < 3 || height < 3 {
		return nil, nil
	}

	scale := 1.0
	small := img
	if d.config.AnalysisSize > 0 && max(width, height) > d.config.AnalysisSize {
		small = imaging.Fit(img, d.config.AnalysisSize, d.config.AnalysisSize, imaging.Box)
		scale = float64(width) / float64(small.Bounds().Dx())
	}
	sw, sh := small.Bounds().Dx(), small.Bounds().Dy()

	saliencyMap := d.calculateSaliencyMap(small)
	integral := integrate(saliencyMap, sw, sh)

	regions, err := d.findImportantRegions(ctx, integral, sw, sh)
	if err != nil {
		return nil, err
	}
	regions = d.filterAndScoreRegions(regions, sw, sh)

	out := make([]Region, 0, len(regions))
	for _, r := range regions {
		out = append(out, Region{
			X:      int(math.Round(float64(r.X) * scale)),
			Y:      int(math.Round(float64(r.Y) * scale)),
			Width:  int(math.Round(float64(r.Width) * scale)),
			Height: int(math.Round(float64(r.Height) * scale)),
			Score:  r.Score,
		})
	}
	return out, nil
}

// calculateSaliencyMap returns a row-major map combining local edge strength and brightness.
func (d *SubjectDetector) calculateSaliencyMap(img image.Image) []float64 {
	src := imaging.Clone(img)
	width, height := src.Bounds().Dx(), src.Bounds().Dy()
	saliencyMap := make([]float64, width*height)

	neighbors := [8][2]int{{-1, -1}, {-1, 0}, {-1, 1}, {0, -1}, {0, 1}, {1, -1}, {1, 0}, {1, 1}}
	maxDiff := 8.0 * math.Sqrt(3*255*255)

	for y := 1; y < height-1; y++ {
		for x := 1; x < width-1; x++ {
			i := y*src.Stride + x*4
			r1, g1, b1 := float64(src.Pix[i]), float64(src.Pix[i+1]), float64(src.Pix[i+2])

			var edgeStrength float64
			for _, offset := range neighbors {
				j := (y+offset[1])*src.Stride + (x+offset[0])*4
				dr := r1 - float64(src.Pix[j])
				dg := g1 - float64(src.Pix[j+1])
				db := b1 - float64(src.Pix[j+2])
				edgeStrength += math.Sqrt(dr*dr + dg*dg + db*db)
			}
			edgeStrength /= maxDiff

			brightness := (r1 + g1 + b1) / (3.0 * 255.0)
			saliencyMap[y*width+x] = d.config.ContrastWeight*edgeStrength + d.config.ColorWeight*brightness
		}
	}

	return saliencyMap
}

// integrate builds a summed-area table with one extra leading row and column.
func integrate(m []float64, width, height int) []float64 {
	stride := width + 1
	sat := make([]float64, stride*(height+1))
	for y := 0; y < height; y++ {
		row := 0.0
		for x := 0; x < width; x++ {
			row += m[y*width+x]
			sat[(y+1)*stride+x+1] = sat[y*stride+x+1] + row
		}
	}
	return sat
}

func regionMean(sat []float64, width, x, y, w, h int) float64 {
	stride := width + 1
	sum := sat[(y+h)*stride+x+w] - sat[y*stride+x+w] - sat[(y+h)*stride+x] + sat[y*stride+x]
	return sum / float64(w*h)
}

func (d *SubjectDetector) findImportantRegions(ctx context.Context, integral []float64, width, height int) ([]Region, error) {
	var regions []Region

	short := min(width, height)
	windowSizes := []int{short / 6, short / 4, short / 3, short / 2}

	for _, windowSize := range windowSizes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if windowSize < 8 {
			continue
		}
		step := max(1, windowSize/8)

		for y := 0; y <= height-windowSize; y += step {
			for x := 0; x <= width-windowSize; x += step {
				score := regionMean(integral, width, x, y, windowSize, windowSize)
				if score > d.config.EdgeThreshold {
					regions = append(regions, Region{
						X:      x,
						Y:      y,
						Width:  windowSize,
						Height: windowSize,
						Score:  score,
					})
				}
			}
		}
	}

	return regions, nil
}

// filterAndScoreRegions drops tiny windows, orders the rest by score and suppresses windows
// that mostly repeat a better one.
func (d *SubjectDetector) filterAndScoreRegions(regions []Region, imageWidth, imageHeight int) []Region {
	imageArea := imageWidth * imageHeight
	minArea := int(float64(imageArea) * d.config.MinSubjectRatio)

	var filtered []Region
	for _, region := range regions {
		if region.Area() >= minArea {
			filtered = append(filtered, region)
		}
	}

	sort.SliceStable(filtered, func(i, j int) bool { return filtered[i].Score > filtered[j].Score })

	var kept []Region
	for _, r := range filtered {
		overlaps := false
		for _, k := range kept {
			if geometry.SquareIoU(r.box(), k.box()) >= d.config.OverlapIoU {
				overlaps = true
				break
			}
		}
		if overlaps {
			continue
		}
		kept = append(kept, r)
		if d.config.MaxRegions > 0 && len(kept) == d.config.MaxRegions {
			break
		}
	}
	return kept
}
