// Package geometry holds the square-crop arithmetic shared by the planner, the tracker and
// the renderer. Everything here is pure and allocation free.
package geometry

import (
	"errors"
	"math"

	"github.com/menta2k/memoryball/pkg/types"
)

const (
	// DefaultOverflowRatio is the share of a crop side allowed outside the frame for
	// fallback and manual boxes.
	DefaultOverflowRatio = 0.5

	// DefaultCircleMargin is the padding on each side of the square reserved around the
	// inscribed circular mask.
	DefaultCircleMargin = 0.1
)

// ErrInvalidBox is returned when a box contains NaN/Inf components or a non-positive side.
var ErrInvalidBox = errors.New("geometry: invalid crop box")

// Clamp ensures a value is within the given bounds
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// MaxCropSize is the largest square that may be requested for a frame. It is allowed to
// exceed the short side, relying on overflow and padding.
func MaxCropSize(width, height int) float64 {
	return float64(max(width, height))
}

// PositionBounds returns the allowed top-left coordinate range along one axis. When the upper
// bound would fall below the lower bound the range collapses to the lower bound.
func PositionBounds(size float64, dimension int, overflowRatio float64) (float64, float64) {
	overflow := size * overflowRatio
	lo := -overflow
	hi := float64(dimension) - size + overflow
	if hi < lo {
		hi = lo
	}
	return lo, hi
}

// NormalizeCrop clamps the side to [1, max(width,height)] and the position into the range
// permitted by overflowRatio. A NaN side becomes 1 and a NaN coordinate the lower bound.
func NormalizeCrop(width, height int, box types.CropBox, overflowRatio float64) types.CropBox {
	size := box.Size
	if math.IsNaN(size) {
		size = 1
	}
	size = Clamp(size, 1, MaxCropSize(width, height))
	minX, maxX := PositionBounds(size, width, overflowRatio)
	minY, maxY := PositionBounds(size, height, overflowRatio)
	return types.CropBox{
		X:    clampFinite(box.X, minX, maxX),
		Y:    clampFinite(box.Y, minY, maxY),
		Size: size,
	}
}

func clampFinite(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return Clamp(v, lo, hi)
}

// CircleFraction is the share of the square side covered by the inscribed circle.
func CircleFraction(circleMargin float64) float64 {
	if circleMargin <= 0 {
		return 1
	}
	return math.Max(0, 1-2*circleMargin)
}

// SquareSizeForCircle returns the side of a square whose inscribed circle has the given diameter.
func SquareSizeForCircle(diameter, circleMargin float64) float64 {
	diameter = math.Max(0, diameter)
	fraction := CircleFraction(circleMargin)
	if fraction <= 0 {
		return diameter
	}
	return diameter / fraction
}

// ExpandForCircle grows box about its center so the circle, not the square, tightly bounds
// the original region.
func ExpandForCircle(box types.CropBox, circleMargin float64) types.CropBox {
	fraction := CircleFraction(circleMargin)
	if fraction <= 0 {
		return box
	}
	size := SquareSizeForCircle(box.Size, circleMargin)
	cx, cy := box.Center()
	return types.CropBox{X: cx - size/2, Y: cy - size/2, Size: size}
}

// CenterSquare returns the square of side min(width,height)*(1-pad) centered in the frame.
func CenterSquare(width, height int, pad float64) types.CropBox {
	size := float64(min(width, height))
	if pad > 0 {
		size = math.Max(1, math.Floor(size*(1-pad)))
	}
	return types.CropBox{
		X:    (float64(width) - size) / 2,
		Y:    (float64(height) - size) / 2,
		Size: size,
	}
}

// FallbackBox is the center box used when no subject drives the framing: the padded center
// square, grown for the circle margin, normalized with overflow allowed.
func FallbackBox(width, height int, pad, circleMargin, overflowRatio float64) types.CropBox {
	box := ExpandForCircle(CenterSquare(width, height, pad), circleMargin)
	return NormalizeCrop(width, height, box, overflowRatio)
}

// ClampInside shrinks the box to fit both frame sides and moves it fully inside the frame.
func ClampInside(width, height int, box types.CropBox) types.CropBox {
	size := math.Min(box.Size, float64(min(width, height)))
	return types.CropBox{
		X:    Clamp(box.X, 0, math.Max(0, float64(width)-size)),
		Y:    Clamp(box.Y, 0, math.Max(0, float64(height)-size)),
		Size: size,
	}
}

// SquareIoU is the intersection over union of two square boxes.
func SquareIoU(a, b types.CropBox) float64 {
	ix := math.Min(a.Right(), b.Right()) - math.Max(a.X, b.X)
	iy := math.Min(a.Bottom(), b.Bottom()) - math.Max(a.Y, b.Y)
	if ix <= 0 || iy <= 0 {
		return 0
	}
	inter := ix * iy
	union := a.Size*a.Size + b.Size*b.Size - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

// Lerp interpolates every component of the box; fraction is clamped to [0,1].
func Lerp(start, end types.CropBox, fraction float64) types.CropBox {
	f := Clamp(fraction, 0, 1)
	return types.CropBox{
		X:    start.X + (end.X-start.X)*f,
		Y:    start.Y + (end.Y-start.Y)*f,
		Size: start.Size + (end.Size-start.Size)*f,
	}
}

// Validate rejects boxes that must never reach the renderer.
func Validate(box types.CropBox) error {
	if !box.Valid() {
		return ErrInvalidBox
	}
	return nil
}
