// Package cascade holds the classical detector backends: the pure Go pigo face finder and,
// when built with the opencv tag, OpenCV Haar cascades and the HOG people detector.
package cascade

import (
	"image"

	"github.com/disintegration/imaging"
)

// Cascade file names looked up in OpenCVConfig.CascadeDir.
const (
	FrontalFaceFile = "haarcascade_frontalface_default.xml"
	ProfileFaceFile = "haarcascade_profileface.xml"
	UpperBodyFile   = "haarcascade_upperbody.xml"
	FullBodyFile    = "haarcascade_fullbody.xml"
)

// OpenCVConfig configures the Haar and HOG backends.
type OpenCVConfig struct {
	CascadeDir   string
	ScaleFactor  float64
	MinNeighbors int
	// MinSizeRatio is the smallest detection side relative to the short image side.
	MinSizeRatio float64
	// MaxSide bounds the longest side the detector sees; larger frames are downscaled.
	MaxSide int
}

// DefaultOpenCVConfig returns the usual Haar detection parameters
func DefaultOpenCVConfig(dir string) OpenCVConfig {
	return OpenCVConfig{
		CascadeDir:   dir,
		ScaleFactor:  1.1,
		MinNeighbors: 5,
		MinSizeRatio: 0.05,
		MaxSide:      960,
	}
}

// downscale returns img reduced so its longest side is at most maxSide, with a zero origin,
// and the factor mapping its coordinates back to img.
func downscale(img image.Image, maxSide int) (image.Image, float64) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if maxSide > 0 && max(w, h) > maxSide {
		small := imaging.Fit(img, maxSide, maxSide, imaging.Linear)
		return small, float64(w) / float64(small.Bounds().Dx())
	}
	if b.Min != (image.Point{}) {
		return imaging.Clone(img), 1
	}
	return img, 1
}
