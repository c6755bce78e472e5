package detection

import (
	"context"
	"image"
	"log/slog"
	"math"
	"sort"

	"github.com/menta2k/memoryball/pkg/geometry"
	"github.com/menta2k/memoryball/pkg/types"
)

// Options tunes candidate normalization and the relevance policy.
type Options struct {
	MinFaceRatio float64
	CircleMargin float64
	// ConfidentScore stops the stage chain and passes the relevance filter on its own.
	ConfidentScore    float64
	DuplicateIoU      float64
	RelevantSizeRatio float64
	CenterThreshold   float64
	MaxCandidates     int
}

// DefaultOptions returns the standard fusion policy.
func DefaultOptions() Options {
	return Options{
		MinFaceRatio:      0.1,
		CircleMargin:      geometry.DefaultCircleMargin,
		ConfidentScore:    0.6,
		DuplicateIoU:      0.4,
		RelevantSizeRatio: 0.4,
		CenterThreshold:   0.65,
		MaxCandidates:     5,
	}
}

// Result is everything one fusion pass produced.
type Result struct {
	// Candidates are the normalized, deduplicated detections of every stage that ran.
	Candidates []types.Detection `json:"candidates"`
	// Relevant is the ranked subset used for planning.
	Relevant []types.Detection `json:"relevant"`
	// Stages lists the backends that ran, in order.
	Stages []string `json:"stages"`
}

// Fuser runs a stage chain and turns its raw output into ranked candidates. A Fuser owns its
// backends and must stay on one goroutine.
type Fuser struct {
	stages []Stage
	opts   Options
	logger *slog.Logger
}

// NewFuser creates a fuser over an ordered stage chain
func NewFuser(stages []Stage, opts Options, logger *slog.Logger) *Fuser {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fuser{stages: stages, opts: opts, logger: logger}
}

// Detect runs the chain on img and returns the relevant candidates.
func (f *Fuser) Detect(ctx context.Context, img image.Image) ([]types.Detection, error) {
	res, err := f.Analyze(ctx, img)
	if err != nil {
		return nil, err
	}
	return res.Relevant, nil
}

// Analyze runs the stage chain. Stages accumulate candidates until the best score reaches
// ConfidentScore; last-resort stages only run while nothing has been collected. A stage that
// fails at detect time is logged and skipped.
func (f *Fuser) Analyze(ctx context.Context, img image.Image) (Result, error) {
	var res Result
	width, height := img.Bounds().Dx(), img.Bounds().Dy()
	if width <= 0 || height <= 0 {
		return res, nil
	}

	var collected []types.Detection
	for _, stage := range f.stages {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if stage.LastResort && len(collected) > 0 {
			continue
		}
		if len(collected) > 0 && bestScore(collected) >= f.opts.ConfidentScore {
			break
		}

		raw, err := stage.Backend.Detect(ctx, img)
		res.Stages = append(res.Stages, stage.Backend.Name())
		if err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			f.logger.Warn("detector stage failed", "backend", stage.Backend.Name(), "error", err)
			continue
		}

		for _, r := range raw {
			if d, ok := Normalize(r, width, height, stage.Trusted, f.opts); ok {
				collected = append(collected, d)
			}
		}
		f.logger.Debug("detector stage finished",
			"backend", stage.Backend.Name(),
			"raw", len(raw),
			"collected", len(collected))
	}

	res.Candidates = Deduplicate(collected, f.opts.DuplicateIoU)
	res.Relevant = Relevant(res.Candidates, width, height, f.opts)
	return res, nil
}

func bestScore(dets []types.Detection) float64 {
	best := 0.0
	for _, d := range dets {
		best = math.Max(best, d.Score)
	}
	return best
}

// Normalize converts a raw backend rectangle into a square candidate: side max(w,h) floored at
// MinFaceRatio*min(width,height), centered on the rectangle, clamped inside the frame and
// expanded for the circle. Rectangles with no area are dropped.
func Normalize(raw types.RawDetection, width, height int, trusted bool, opts Options) (types.Detection, bool) {
	for _, v := range []float64{raw.X, raw.Y, raw.Width, raw.Height, raw.Score} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return types.Detection{}, false
		}
	}
	if raw.Width <= 0 || raw.Height <= 0 {
		return types.Detection{}, false
	}

	score := raw.Score
	if trusted && score <= 0 {
		score = 1
	}
	score = geometry.Clamp(score, 0, 1)

	minFace := opts.MinFaceRatio * float64(min(width, height))
	size := math.Max(math.Max(raw.Width, raw.Height), minFace)
	cx := raw.X + raw.Width/2
	cy := raw.Y + raw.Height/2

	box := geometry.ClampInside(width, height, types.CropBox{X: cx - size/2, Y: cy - size/2, Size: size})
	box = geometry.ExpandForCircle(box, opts.CircleMargin)
	return types.Detection{Score: score, Box: box}, true
}

// Deduplicate orders candidates by (score, size) descending and drops any candidate whose
// square IoU with an already kept one reaches threshold. The kept candidate ends up with the
// higher score and that candidate's box.
func Deduplicate(dets []types.Detection, threshold float64) []types.Detection {
	if len(dets) == 0 {
		return nil
	}
	sorted := make([]types.Detection, len(dets))
	copy(sorted, dets)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Score != sorted[j].Score {
			return sorted[i].Score > sorted[j].Score
		}
		return sorted[i].Box.Size > sorted[j].Box.Size
	})

	kept := make([]types.Detection, 0, len(sorted))
	for _, cand := range sorted {
		dup := -1
		for i, k := range kept {
			if geometry.SquareIoU(cand.Box, k.Box) >= threshold {
				dup = i
				break
			}
		}
		if dup < 0 {
			kept = append(kept, cand)
			continue
		}
		if cand.Score > kept[dup].Score {
			kept[dup] = cand
		}
	}
	return kept
}

// CenterFactor is 1 at the frame center and falls to 0 at the corners.
func CenterFactor(box types.CropBox, width, height int) float64 {
	halfW, halfH := float64(width)/2, float64(height)/2
	if halfW <= 0 || halfH <= 0 {
		return 0
	}
	cx, cy := box.Center()
	dx := math.Abs(cx-halfW) / halfW
	dy := math.Abs(cy-halfH) / halfH
	return geometry.Clamp(1-0.5*(dx+dy), 0, 1)
}

type rankedDetection struct {
	det    types.Detection
	rank   float64
	passed bool
}

// Relevant filters candidates by size, score or centering, ranks them and keeps the best
// MaxCandidates. When only one survives out of several, the best excluded candidate is added
// back so multi-subject framing still has two boxes to work with.
func Relevant(cands []types.Detection, width, height int, opts Options) []types.Detection {
	if len(cands) == 0 {
		return nil
	}

	maxSize := 0.0
	for _, c := range cands {
		maxSize = math.Max(maxSize, c.Box.Size)
	}
	if maxSize <= 0 {
		return nil
	}

	ranked := make([]rankedDetection, len(cands))
	anyPassed := false
	for i, c := range cands {
		cf := CenterFactor(c.Box, width, height)
		sizeRatio := c.Box.Size / maxSize
		passed := c.Box.Size >= opts.RelevantSizeRatio*maxSize ||
			c.Score >= opts.ConfidentScore ||
			cf >= opts.CenterThreshold
		anyPassed = anyPassed || passed
		ranked[i] = rankedDetection{
			det:    c,
			rank:   c.Score*0.6 + cf*0.3 + sizeRatio*0.4,
			passed: passed,
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].rank > ranked[j].rank })

	limit := opts.MaxCandidates
	if limit <= 0 {
		limit = len(ranked)
	}

	var out []types.Detection
	bestExcluded := -1
	for i, r := range ranked {
		if anyPassed && !r.passed {
			if bestExcluded < 0 {
				bestExcluded = i
			}
			continue
		}
		if len(out) == limit {
			if bestExcluded < 0 {
				bestExcluded = i
			}
			continue
		}
		out = append(out, r.det)
	}

	if len(out) == 1 && len(cands) > 1 && bestExcluded >= 0 {
		out = append(out, ranked[bestExcluded].det)
	}
	return out
}
