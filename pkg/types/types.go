package types

import (
	"fmt"
	"image"
	"math"
)

// CropBox is a square region in source-pixel coordinates: top-left corner plus side length.
type CropBox struct {
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Size float64 `json:"size"`
}

// Center returns the center point of the box
func (b CropBox) Center() (float64, float64) {
	return b.X + b.Size/2, b.Y + b.Size/2
}

// Right returns the x coordinate of the right edge
func (b CropBox) Right() float64 {
	return b.X + b.Size
}

// Bottom returns the y coordinate of the bottom edge
func (b CropBox) Bottom() float64 {
	return b.Y + b.Size
}

// Valid reports whether every component is finite and the side is positive.
func (b CropBox) Valid() bool {
	for _, v := range []float64{b.X, b.Y, b.Size} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return b.Size > 0
}

// Rect returns the pixel rectangle covered by the box. The origin is floored and the far
// edge is ceiled so the same coordinates always produce the same rectangle.
func (b CropBox) Rect() image.Rectangle {
	return image.Rect(
		int(math.Floor(b.X)),
		int(math.Floor(b.Y)),
		int(math.Ceil(b.X+b.Size)),
		int(math.Ceil(b.Y+b.Size)),
	)
}

func (b CropBox) String() string {
	return fmt.Sprintf("(%.1f,%.1f %.1f)", b.X, b.Y, b.Size)
}

// Detection is one candidate subject plus a confidence-like weight in [0,1].
type Detection struct {
	Score float64 `json:"score"`
	Box   CropBox `json:"box"`
}

// RawDetection is what a detector backend reports: an axis-aligned rectangle in
// source pixels and an optional score (zero means the backend did not report one).
type RawDetection struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	Score  float64 `json:"score,omitempty"`
	Label  string  `json:"label,omitempty"`
}

// ManualCrop is the motion pair driving an animated zoom. Static output uses Start == End.
type ManualCrop struct {
	Start CropBox `json:"start"`
	End   CropBox `json:"end"`
}

// Static returns a ManualCrop that holds one box for the whole clip.
func Static(box CropBox) ManualCrop {
	return ManualCrop{Start: box, End: box}
}

// IsStatic reports whether start and end are the same box.
func (m ManualCrop) IsStatic() bool {
	return m.Start == m.End
}

// Priority selects which subjects drive the framing.
type Priority string

const (
	PriorityLargest Priority = "largest"
	PriorityCenter  Priority = "center"
	PriorityAll     Priority = "all"
)

// Direction selects which endpoint of a motion plan plays first.
type Direction string

const (
	// DirectionIn starts wide and zooms tight.
	DirectionIn Direction = "in"
	// DirectionOut starts tight and returns to wide.
	DirectionOut Direction = "out"
)

// Mode selects how the crop for an item is determined.
type Mode string

const (
	ModeAuto   Mode = "auto"
	ModeCenter Mode = "center"
	ModeManual Mode = "manual"
)

// Box represents a normalized bounding box with coordinates in [0,1] range
type Box struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Subject is one region reported by a vision model
type Subject struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	Box        Box     `json:"box"`
}

// AnalysisResult contains the complete analysis result from the vision model
type AnalysisResult struct {
	Subjects    []Subject `json:"subjects"`
	Description string    `json:"description"`
	Tags        []string  `json:"tags"`
}
