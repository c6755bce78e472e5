// Package tracker smooths the per-frame focus box of a video so the crop glides instead of
// jumping, and holds the last good box through short detection dropouts.
package tracker

import (
	"context"
	"fmt"
	"image"
	"log/slog"

	"github.com/menta2k/memoryball/pkg/cropper"
	"github.com/menta2k/memoryball/pkg/geometry"
	"github.com/menta2k/memoryball/pkg/types"
)

// Options holds the smoothing constants
type Options struct {
	// Alpha is the weight of the newest observation in the moving average.
	Alpha float64
	// MaxStepFraction bounds the per-frame movement of each component, relative to the
	// window size.
	MaxStepFraction float64
	// MaxGap is how many consecutive frames without a focus box are bridged with the last box.
	MaxGap int
}

// DefaultOptions returns the standard smoothing constants
func DefaultOptions() Options {
	return Options{
		Alpha:           0.4,
		MaxStepFraction: 0.15,
		MaxGap:          15,
	}
}

// Status is the tracker state machine position
type Status int

const (
	Tracking Status = iota
	Lost
)

func (s Status) String() string {
	switch s {
	case Tracking:
		return "tracking"
	case Lost:
		return "lost"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// State is the smoothing memory of one stream. It belongs to whoever iterates that stream's
// frames and must be fed frames in order.
type State struct {
	last   *types.CropBox
	lost   int
	status Status
}

// NewState returns the state for a stream that has not seen any frame yet
func NewState() *State {
	return &State{status: Lost}
}

// Reset forgets the smoothed box and the gap counter
func (s *State) Reset() {
	s.last = nil
	s.lost = 0
	s.status = Lost
}

// Last returns the current smoothed box, if any
func (s *State) Last() (types.CropBox, bool) {
	if s.last == nil {
		return types.CropBox{}, false
	}
	return *s.last, true
}

// LostFrames returns the number of consecutive frames without a focus box
func (s *State) LostFrames() int {
	return s.lost
}

// Status returns the state machine position
func (s *State) Status() Status {
	return s.status
}

// Update advances the state with this frame's focus box (nil when nothing was found) and
// returns the box to render. fallback is returned once the gap is exceeded; its size is also
// the window size the step clamp is relative to.
func Update(s *State, focus *types.CropBox, fallback types.CropBox, opts Options) types.CropBox {
	if focus == nil || !focus.Valid() {
		s.lost++
		if s.last != nil && s.lost <= opts.MaxGap {
			return *s.last
		}
		if s.lost > opts.MaxGap {
			s.Reset()
		}
		return fallback
	}

	next := *focus
	if s.last != nil {
		prev := *s.last
		alpha := geometry.Clamp(opts.Alpha, 0, 1)
		maxStep := opts.MaxStepFraction * fallback.Size

		next = types.CropBox{
			X:    step(prev.X, alpha*focus.X+(1-alpha)*prev.X, maxStep),
			Y:    step(prev.Y, alpha*focus.Y+(1-alpha)*prev.Y, maxStep),
			Size: step(prev.Size, alpha*focus.Size+(1-alpha)*prev.Size, maxStep),
		}
	}

	s.last = &next
	s.lost = 0
	s.status = Tracking
	return next
}

func step(prev, target, maxStep float64) float64 {
	if maxStep <= 0 {
		return target
	}
	return geometry.Clamp(target, prev-maxStep, prev+maxStep)
}

// Detector yields the relevant detections for one frame
type Detector interface {
	Detect(ctx context.Context, img image.Image) ([]types.Detection, error)
}

// Tracker runs detection and planning on each frame and feeds the result through Update
type Tracker struct {
	detector Detector
	planner  *cropper.Planner
	opts     Options
	logger   *slog.Logger
}

// New creates a tracker. The detector is used from the calling goroutine only.
func New(detector Detector, planner *cropper.Planner, opts Options, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{detector: detector, planner: planner, opts: opts, logger: logger}
}

// Track computes the crop for the next frame of the stream owned by state. A detector error
// counts as a frame without detections.
func (t *Tracker) Track(ctx context.Context, frame image.Image, state *State) (types.CropBox, error) {
	width, height := frame.Bounds().Dx(), frame.Bounds().Dy()
	fallback := t.planner.FallbackBox(width, height)

	var focus *types.CropBox
	if t.detector != nil {
		dets, err := t.detector.Detect(ctx, frame)
		if err != nil {
			if ctx.Err() != nil {
				return types.CropBox{}, ctx.Err()
			}
			t.logger.Debug("frame detection failed", "error", err)
		}
		if box := t.planner.Focus(dets, width, height); box != nil {
			normalized := geometry.NormalizeCrop(width, height, *box, 0)
			focus = &normalized
		}
	}

	before := state.Status()
	box := Update(state, focus, fallback, t.opts)
	if before != state.Status() {
		t.logger.Debug("tracker state changed", "from", before, "to", state.Status())
	}
	return box, nil
}
