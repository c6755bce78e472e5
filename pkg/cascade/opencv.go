//go:build opencv

package cascade

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"

	"gocv.io/x/gocv"

	"github.com/menta2k/memoryball/pkg/detection"
	"github.com/menta2k/memoryball/pkg/types"
)

type namedClassifier struct {
	label      string
	classifier gocv.CascadeClassifier
	// mirrored classifiers also run on the horizontally flipped frame (profile faces).
	mirrored bool
}

// OpenCVCascadeBackend runs the frontal face, profile face, upper body and full body Haar
// cascades and reports every hit without a score.
type OpenCVCascadeBackend struct {
	classifiers []namedClassifier
	config      OpenCVConfig
}

// NewOpenCVCascadeBackend loads whichever cascades exist in config.CascadeDir. It fails only
// when none of them can be loaded.
func NewOpenCVCascadeBackend(config OpenCVConfig) (detection.Backend, error) {
	files := []struct {
		name     string
		label    string
		mirrored bool
	}{
		{FrontalFaceFile, "face", false},
		{ProfileFaceFile, "profile", true},
		{UpperBodyFile, "upperbody", false},
		{FullBodyFile, "fullbody", false},
	}

	b := &OpenCVCascadeBackend{config: config}
	for _, f := range files {
		path := filepath.Join(config.CascadeDir, f.name)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		c := gocv.NewCascadeClassifier()
		if !c.Load(path) {
			_ = c.Close()
			continue
		}
		b.classifiers = append(b.classifiers, namedClassifier{label: f.label, classifier: c, mirrored: f.mirrored})
	}

	if len(b.classifiers) == 0 {
		return nil, detection.Unavailable("opencv-cascade", fmt.Errorf("no Haar cascades found in %q", config.CascadeDir))
	}
	return b, nil
}

// Name identifies the backend in logs
func (b *OpenCVCascadeBackend) Name() string {
	return "opencv-cascade"
}

// Detect runs every loaded cascade over an equalized grayscale frame
func (b *OpenCVCascadeBackend) Detect(ctx context.Context, img image.Image) ([]types.RawDetection, error) {
	src, scale := downscale(img, b.config.MaxSide)
	gray, err := grayMat(src)
	if err != nil {
		return nil, err
	}
	defer gray.Close()

	flipped := gocv.NewMat()
	defer flipped.Close()
	gocv.Flip(gray, &flipped, 1)

	cols := gray.Cols()
	minSide := max(16, int(b.config.MinSizeRatio*float64(min(gray.Cols(), gray.Rows()))))
	minSize := image.Pt(minSide, minSide)

	var out []types.RawDetection
	for _, c := range b.classifiers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		rects := c.classifier.DetectMultiScaleWithParams(gray, b.config.ScaleFactor, b.config.MinNeighbors, 0, minSize, image.Point{})
		if c.mirrored {
			for _, r := range c.classifier.DetectMultiScaleWithParams(flipped, b.config.ScaleFactor, b.config.MinNeighbors, 0, minSize, image.Point{}) {
				rects = append(rects, image.Rect(cols-r.Max.X, r.Min.Y, cols-r.Min.X, r.Max.Y))
			}
		}
		for _, r := range rects {
			out = append(out, rectToRaw(r, scale, 0, c.label))
		}
	}
	return out, nil
}

// Close releases the native classifiers
func (b *OpenCVCascadeBackend) Close() error {
	for _, c := range b.classifiers {
		_ = c.classifier.Close()
	}
	b.classifiers = nil
	return nil
}

// PersonBackend runs OpenCV's default HOG people detector
type PersonBackend struct {
	hog    gocv.HOGDescriptor
	config OpenCVConfig
}

// NewPersonBackend prepares the HOG descriptor with the default people SVM
func NewPersonBackend(config OpenCVConfig) (detection.Backend, error) {
	hog := gocv.NewHOGDescriptor()
	if err := hog.SetSVMDetector(gocv.HOGDefaultPeopleDetector()); err != nil {
		_ = hog.Close()
		return nil, detection.Unavailable("opencv-person", err)
	}
	return &PersonBackend{hog: hog, config: config}, nil
}

// Name identifies the backend in logs
func (b *PersonBackend) Name() string {
	return "opencv-person"
}

// Detect returns one rectangle per person found
func (b *PersonBackend) Detect(ctx context.Context, img image.Image) ([]types.RawDetection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	src, scale := downscale(img, b.config.MaxSide)
	mat, err := gocv.ImageToMatRGB(src)
	if err != nil {
		return nil, fmt.Errorf("failed to convert frame: %w", err)
	}
	defer mat.Close()

	var out []types.RawDetection
	for _, r := range b.hog.DetectMultiScale(mat) {
		out = append(out, rectToRaw(r, scale, 0, "person"))
	}
	return out, nil
}

// Close releases the native descriptor
func (b *PersonBackend) Close() error {
	return b.hog.Close()
}

func grayMat(img image.Image) (gocv.Mat, error) {
	rgb, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return gocv.Mat{}, fmt.Errorf("failed to convert frame: %w", err)
	}
	defer rgb.Close()

	gray := gocv.NewMat()
	gocv.CvtColor(rgb, &gray, gocv.ColorRGBToGray)
	gocv.EqualizeHist(gray, &gray)
	return gray, nil
}

func rectToRaw(r image.Rectangle, scale, score float64, label string) types.RawDetection {
	return types.RawDetection{
		X:      float64(r.Min.X) * scale,
		Y:      float64(r.Min.Y) * scale,
		Width:  float64(r.Dx()) * scale,
		Height: float64(r.Dy()) * scale,
		Score:  score,
		Label:  label,
	}
}
