// Package sequence turns a motion pair into a per-frame list of crop boxes (hold, ease, hold)
// and renders those boxes into fixed-size frames.
package sequence

import (
	"context"
	"fmt"
	"image"
	"math"

	"github.com/menta2k/memoryball/pkg/geometry"
	"github.com/menta2k/memoryball/pkg/processing"
	"github.com/menta2k/memoryball/pkg/types"
)

// Options describes the clip to generate
type Options struct {
	FPS           float64
	Duration      float64
	StartHold     float64
	EndHold       float64
	Size          int
	MotionEnabled bool
}

// DefaultOptions returns the settings for a still-image clip: 5 seconds at 30 fps with half a
// second held at each end.
func DefaultOptions() Options {
	return Options{
		FPS:           30,
		Duration:      5,
		StartHold:     0.5,
		EndHold:       0.5,
		Size:          1080,
		MotionEnabled: true,
	}
}

// Timeline splits a clip into frame counts
type Timeline struct {
	StartHold  int
	Transition int
	EndHold    int
}

// Total returns the number of frames on the timeline
func (t Timeline) Total() int {
	return t.StartHold + t.Transition + t.EndHold
}

// FrameCount is round(duration*fps), at least one.
func FrameCount(duration, fps float64) int {
	n := int(math.Round(duration * fps))
	return max(1, n)
}

// PlanTimeline distributes total frames: the holds get round(seconds*fps) each and the
// transition takes the remainder. When the holds do not fit, the start hold gives up frames
// first, then the end hold.
func PlanTimeline(total int, fps, startHold, endHold float64) Timeline {
	total = max(0, total)
	start := max(0, int(math.Round(startHold*fps)))
	end := max(0, int(math.Round(endHold*fps)))

	transition := total - start - end
	if transition < 0 {
		deficit := -transition
		cut := min(deficit, start)
		start -= cut
		deficit -= cut
		end -= min(deficit, end)
		transition = 0
	}
	return Timeline{StartHold: start, Transition: transition, EndHold: end}
}

// Ease is the smoothstep curve t²(3-2t) on [0,1].
func Ease(t float64) float64 {
	t = geometry.Clamp(t, 0, 1)
	return t * t * (3 - 2*t)
}

// Fraction returns the eased interpolation fraction for frame i.
func (t Timeline) Fraction(i int) float64 {
	if i < t.StartHold {
		return 0
	}
	j := i - t.StartHold
	if j >= t.Transition {
		return 1
	}
	if t.Transition == 1 {
		return 1
	}
	return Ease(float64(j) / float64(t.Transition-1))
}

// Boxes returns one crop box per frame. Without motion every frame uses the end box.
func Boxes(manual types.ManualCrop, opts Options) []types.CropBox {
	total := FrameCount(opts.Duration, opts.FPS)
	boxes := make([]types.CropBox, total)

	if !opts.MotionEnabled || manual.IsStatic() {
		for i := range boxes {
			boxes[i] = manual.End
		}
		return boxes
	}

	tl := PlanTimeline(total, opts.FPS, opts.StartHold, opts.EndHold)
	for i := range boxes {
		boxes[i] = geometry.Lerp(manual.Start, manual.End, tl.Fraction(i))
	}
	return boxes
}

// Generator renders still-image clips
type Generator struct {
	processor *processing.Processor
	opts      Options
}

// NewGenerator creates a generator for the given clip settings
func NewGenerator(opts Options) *Generator {
	return &Generator{processor: processing.NewProcessor(), opts: opts}
}

// Options returns the clip settings
func (g *Generator) Options() Options {
	return g.opts
}

// FrameCount returns how many frames Render will emit
func (g *Generator) FrameCount() int {
	return FrameCount(g.opts.Duration, g.opts.FPS)
}

// Render crops and resizes img once per frame, in order, handing each frame to emit. Consecutive
// identical boxes reuse the previous frame. emit must not retain the frame after returning.
func (g *Generator) Render(ctx context.Context, img image.Image, manual types.ManualCrop, emit func(i int, frame *image.NRGBA) error) error {
	if g.opts.Size <= 0 {
		return fmt.Errorf("invalid output size %d", g.opts.Size)
	}
	for _, b := range []types.CropBox{manual.Start, manual.End} {
		if err := geometry.Validate(b); err != nil {
			return fmt.Errorf("refusing to render %v: %w", b, err)
		}
	}

	var (
		prevBox types.CropBox
		frame   *image.NRGBA
	)
	for i, box := range Boxes(manual, g.opts) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if frame == nil || box != prevBox {
			rendered, err := g.processor.RenderFrame(img, box, g.opts.Size)
			if err != nil {
				return fmt.Errorf("frame %d: %w", i, err)
			}
			frame, prevBox = rendered, box
		}
		if err := emit(i, frame); err != nil {
			return err
		}
	}
	return nil
}
