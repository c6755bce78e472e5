// Package cropper decides where the square crop goes: a single static box or a wide/tight
// pair for the animated zoom.
package cropper

import (
	"math"
	"sort"

	"github.com/menta2k/memoryball/pkg/geometry"
	"github.com/menta2k/memoryball/pkg/types"
)

// Options is the planning policy. Every ratio is overridable from configuration.
type Options struct {
	MinFaceRatio float64
	Priority     types.Priority
	CircleMargin float64
	// CombineScale pads the box covering several subjects.
	CombineScale float64
	BodyScale    float64
	FaceMargin   float64
	BodyTopRatio float64
	FaceTopRatio float64
	Direction    types.Direction
	// FixedWindow keeps the framing at the center box size and only slides it toward subjects.
	FixedWindow bool
	Pad         float64
	// OverflowRatio applies to fallback and manual boxes; detector-driven boxes get none.
	OverflowRatio float64
}

// DefaultOptions returns the standard planning policy
func DefaultOptions() Options {
	return Options{
		MinFaceRatio:  0.1,
		Priority:      types.PriorityLargest,
		CircleMargin:  geometry.DefaultCircleMargin,
		CombineScale:  1.05,
		BodyScale:     1.7,
		FaceMargin:    0.12,
		BodyTopRatio:  0.2,
		FaceTopRatio:  0.08,
		Direction:     types.DirectionIn,
		OverflowRatio: geometry.DefaultOverflowRatio,
	}
}

// Planner turns relevant detections into crop boxes. It holds no per-image state and is safe
// for concurrent use.
type Planner struct {
	opts Options
}

// New creates a planner with the default policy
func New() *Planner {
	return &Planner{opts: DefaultOptions()}
}

// NewWithConfig creates a planner with a custom policy
func NewWithConfig(opts Options) *Planner {
	return &Planner{opts: opts}
}

// Options returns the planner's policy
func (p *Planner) Options() Options {
	return p.opts
}

// FallbackBox is the center box used whenever nothing else drives the framing.
func (p *Planner) FallbackBox(width, height int) types.CropBox {
	return geometry.FallbackBox(width, height, p.opts.Pad, p.opts.CircleMargin, p.opts.OverflowRatio)
}

// ManualBox builds the box for a user-specified rectangle: side min(w,h) at (x,y), overflow allowed.
func (p *Planner) ManualBox(width, height int, x, y, w, h float64) types.CropBox {
	box := types.CropBox{X: x, Y: y, Size: math.Min(w, h)}
	return geometry.NormalizeCrop(width, height, box, p.opts.OverflowRatio)
}

type extent struct {
	minX, minY, maxX, maxY float64
}

func (e extent) width() float64  { return e.maxX - e.minX }
func (e extent) height() float64 { return e.maxY - e.minY }

func cover(dets []types.Detection) extent {
	e := extent{math.Inf(1), math.Inf(1), math.Inf(-1), math.Inf(-1)}
	for _, d := range dets {
		e.minX = math.Min(e.minX, d.Box.X)
		e.minY = math.Min(e.minY, d.Box.Y)
		e.maxX = math.Max(e.maxX, d.Box.Right())
		e.maxY = math.Max(e.maxY, d.Box.Bottom())
	}
	return e
}

func largestSize(dets []types.Detection) float64 {
	largest := 0.0
	for _, d := range dets {
		largest = math.Max(largest, d.Box.Size)
	}
	return largest
}

// fitAxis places a window of size along one axis centered on center, then moves it so the
// covered span [lo, hi] stays inside when it can.
func fitAxis(center, size, lo, hi float64) float64 {
	pos := center - size/2
	a, b := hi-size, lo
	if a > b {
		a, b = b, a
	}
	return geometry.Clamp(pos, a, b)
}

// Combine frames several subjects at once. It needs at least two detections; the box covers
// all of them with a small margin and is centered on the score and size weighted centroid.
func (p *Planner) Combine(dets []types.Detection, width, height int) *types.CropBox {
	if len(dets) < 2 {
		return nil
	}

	c := cover(dets)
	largest := largestSize(dets)
	minFace := p.opts.MinFaceRatio * float64(min(width, height))
	maxCrop := geometry.MaxCropSize(width, height)

	requested := math.Max(math.Max(c.width(), c.height()), largest) * p.opts.CombineScale
	size := math.Min(math.Max(requested, math.Max(minFace, largest)), maxCrop)

	var sumW, cx, cy float64
	for _, d := range dets {
		w := d.Score * d.Box.Size
		x, y := d.Box.Center()
		cx += w * x
		cy += w * y
		sumW += w
	}
	if sumW <= 0 {
		cx, cy = (c.minX+c.maxX)/2, (c.minY+c.maxY)/2
	} else {
		cx /= sumW
		cy /= sumW
	}

	return &types.CropBox{
		X:    fitAxis(cx, size, c.minX, c.maxX),
		Y:    fitAxis(cy, size, c.minY, c.maxY),
		Size: size,
	}
}

// Select picks one detection by priority: the largest for largest and all, the one closest to
// the frame center for center, otherwise the first.
func (p *Planner) Select(dets []types.Detection, width, height int) *types.Detection {
	if len(dets) == 0 {
		return nil
	}

	best := 0
	switch p.opts.Priority {
	case types.PriorityLargest, types.PriorityAll:
		for i, d := range dets {
			if d.Box.Size > dets[best].Box.Size {
				best = i
			}
		}
	case types.PriorityCenter:
		fx, fy := float64(width)/2, float64(height)/2
		bestDist := math.Inf(1)
		for i, d := range dets {
			x, y := d.Box.Center()
			dist := (x-fx)*(x-fx) + (y-fy)*(y-fy)
			if dist < bestDist {
				best, bestDist = i, dist
			}
		}
	}

	d := dets[best]
	return &d
}

// spanWeight is how much a detection's coverage counts toward a window position.
func (p *Planner) spanWeight(d types.Detection, maxSize float64, width, height int) float64 {
	switch p.opts.Priority {
	case types.PriorityLargest:
		if maxSize > 0 {
			return d.Score * d.Box.Size / maxSize
		}
	case types.PriorityCenter:
		x, y := d.Box.Center()
		dx := math.Abs(x-float64(width)/2) / math.Max(1, float64(width)/2)
		dy := math.Abs(y-float64(height)/2) / math.Max(1, float64(height)/2)
		return d.Score * math.Max(0, 1-0.5*(dx+dy))
	}
	return d.Score
}

type span struct {
	start, end, weight float64
}

// bestWindowStart evaluates a window of size along an axis of length dimension at every break
// point (span starts and ends, frame center, frame edges) and returns the start covering the
// most weight. Ties go to the position nearest the frame center. A window wider than the axis
// may start anywhere in [dimension-size, 0] so it can still be centered.
func bestWindowStart(spans []span, size float64, dimension int) float64 {
	dim := float64(dimension)
	lo, hi := geometry.PositionBounds(size, dimension, 0)
	if size > dim {
		lo, hi = dim-size, 0
	}

	candidates := []float64{0, dim - size, dim/2 - size/2}
	for _, s := range spans {
		candidates = append(candidates, s.start, s.end-size)
	}

	bestPos, bestScore, bestDist := 0.0, math.Inf(-1), math.Inf(1)
	for _, c := range candidates {
		pos := geometry.Clamp(c, lo, hi)
		score := 0.0
		for _, s := range spans {
			length := s.end - s.start
			if length <= 0 {
				continue
			}
			overlap := math.Min(pos+size, s.end) - math.Max(pos, s.start)
			if overlap > 0 {
				score += s.weight * overlap / length
			}
		}
		dist := math.Abs(pos + size/2 - dim/2)
		if score > bestScore+1e-9 || (math.Abs(score-bestScore) <= 1e-9 && dist < bestDist) {
			bestPos, bestScore, bestDist = pos, score, dist
		}
	}
	return bestPos
}

// FocusWindow slides a window of fixed size independently along each axis to cover as much
// weighted detection area as possible.
func (p *Planner) FocusWindow(dets []types.Detection, width, height int, windowSize float64) *types.CropBox {
	if len(dets) == 0 || windowSize <= 0 || math.IsNaN(windowSize) {
		return nil
	}

	maxSize := largestSize(dets)
	xs := make([]span, 0, len(dets))
	ys := make([]span, 0, len(dets))
	for _, d := range dets {
		w := p.spanWeight(d, maxSize, width, height)
		xs = append(xs, span{d.Box.X, d.Box.Right(), w})
		ys = append(ys, span{d.Box.Y, d.Box.Bottom(), w})
	}

	return &types.CropBox{
		X:    bestWindowStart(xs, windowSize, width),
		Y:    bestWindowStart(ys, windowSize, height),
		Size: windowSize,
	}
}

// Focus returns the detector-driven box for a frame: combine, else select, else focusWindow.
// It is nil when there is nothing to frame.
func (p *Planner) Focus(dets []types.Detection, width, height int) *types.CropBox {
	if box := p.Combine(dets, width, height); box != nil {
		return box
	}
	if d := p.Select(dets, width, height); d != nil && d.Box.Valid() {
		box := d.Box
		return &box
	}
	return p.FocusWindow(dets, width, height, p.FallbackBox(width, height).Size)
}

// StaticCrop returns the single box for non-motion output. Detector-driven boxes are kept
// inside the frame; the center fallback may overflow.
func (p *Planner) StaticCrop(dets []types.Detection, width, height int) types.CropBox {
	fallback := p.FallbackBox(width, height)

	if p.opts.FixedWindow {
		if box := p.FocusWindow(dets, width, height, fallback.Size); box != nil {
			return geometry.NormalizeCrop(width, height, *box, p.opts.OverflowRatio)
		}
		return fallback
	}

	if box := p.Focus(dets, width, height); box != nil && box.Valid() {
		return geometry.NormalizeCrop(width, height, *box, 0)
	}
	return fallback
}

// anchored builds a square of size centered horizontally on region and placed topRatio*size
// above its top edge.
func anchored(region extent, size float64, topRatio float64, width, height int) types.CropBox {
	cx := (region.minX + region.maxX) / 2
	box := types.CropBox{
		X:    cx - size/2,
		Y:    region.minY - size*topRatio,
		Size: size,
	}
	return geometry.NormalizeCrop(width, height, box, 0)
}

func boxExtent(b types.CropBox) extent {
	return extent{b.X, b.Y, b.Right(), b.Bottom()}
}

// PlanMotion computes the wide (body) and tight (face) endpoints of the zoom. When the union of
// all detections fits in the largest crop, both endpoints frame the union; otherwise they are
// anchored on the two largest detections. Direction out plays the tight endpoint first.
func (p *Planner) PlanMotion(dets []types.Detection, width, height int) *types.ManualCrop {
	if len(dets) == 0 {
		return nil
	}

	sorted := make([]types.Detection, len(dets))
	copy(sorted, dets)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Box.Size > sorted[j].Box.Size })

	maxCrop := geometry.MaxCropSize(width, height)
	union := cover(sorted)

	bodyRegion, faceRegion := union, union
	if union.width() > maxCrop || union.height() > maxCrop {
		bodyRegion = boxExtent(sorted[0].Box)
		faceRegion = bodyRegion
		if len(sorted) >= 2 {
			faceRegion = boxExtent(sorted[1].Box)
		}
	}

	bodySide := math.Max(bodyRegion.width(), bodyRegion.height())
	faceSide := math.Max(faceRegion.width(), faceRegion.height())

	body := anchored(bodyRegion, bodySide*p.opts.BodyScale, p.opts.BodyTopRatio, width, height)
	face := anchored(faceRegion, faceSide*(1+p.opts.FaceMargin), p.opts.FaceTopRatio, width, height)

	if p.opts.Direction == types.DirectionOut {
		return &types.ManualCrop{Start: face, End: body}
	}
	return &types.ManualCrop{Start: body, End: face}
}

// AutoManual is the full planning decision for a still image. With motion enabled it returns the
// zoom pair, or a static center crop when nothing was detected.
func (p *Planner) AutoManual(dets []types.Detection, width, height int, motionEnabled bool) types.ManualCrop {
	if motionEnabled {
		if plan := p.PlanMotion(dets, width, height); plan != nil {
			return *plan
		}
		return types.Static(p.FallbackBox(width, height))
	}
	return types.Static(p.StaticCrop(dets, width, height))
}
