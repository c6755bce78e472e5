// Package pipeline turns photos and videos into circular-framed square clips: it plans the
// crop for each item, renders the frames and hands them to ffmpeg, and drives a batch of items
// over a pool of workers.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/menta2k/memoryball/internal/config"
	"github.com/menta2k/memoryball/internal/logging"
	"github.com/menta2k/memoryball/internal/utils"
	"github.com/menta2k/memoryball/pkg/analyzer"
	"github.com/menta2k/memoryball/pkg/cropper"
	"github.com/menta2k/memoryball/pkg/detection"
	"github.com/menta2k/memoryball/pkg/ffmpeg"
	"github.com/menta2k/memoryball/pkg/geometry"
	"github.com/menta2k/memoryball/pkg/processing"
	"github.com/menta2k/memoryball/pkg/sequence"
	"github.com/menta2k/memoryball/pkg/tracker"
	"github.com/menta2k/memoryball/pkg/types"
)

// ErrUnsupportedMedia is returned for files that are neither a supported image nor video.
var ErrUnsupportedMedia = errors.New("unsupported media type")

// ItemError is a failure of one item. The batch records it and moves on.
type ItemError struct {
	Path string
	Err  error
}

func (e *ItemError) Error() string {
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

func (e *ItemError) Unwrap() error {
	return e.Err
}

// Status is the outcome of one item
type Status string

const (
	StatusProcessed Status = "processed"
	StatusSkipped   Status = "skipped"
	StatusFailed    Status = "failed"
)

// ItemResult describes what happened to one input
type ItemResult struct {
	Path    string
	Output  string
	Preview string
	Kind    utils.Kind
	Status  Status
	Frames  int
	Bytes   int64
	Elapsed time.Duration
	Err     error
}

// Plan is the framing decision for one still image.
type Plan struct {
	Width     int              `json:"width"`
	Height    int              `json:"height"`
	Mode      types.Mode       `json:"mode"`
	Crop      types.ManualCrop `json:"crop"`
	Detection detection.Result `json:"detection"`
}

// Processor handles items one at a time. It owns its detector backends and tracker, so each
// worker needs its own Processor.
type Processor struct {
	cfg       *config.Config
	logger    *slog.Logger
	loader    *analyzer.ImageAnalyzer
	planner   *cropper.Planner
	renderer  *processing.Processor
	stills    *detection.Fuser
	frames    *detection.Fuser
	stages    [][]detection.Stage
	minSource int
}

// NewProcessor creates a worker over ready-built stage chains for stills and video frames.
// Either chain may be empty.
func NewProcessor(cfg *config.Config, stillStages, videoStages []detection.Stage, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	fusion := cfg.FusionOptions()
	loader := analyzer.New()
	return &Processor{
		cfg:       cfg,
		logger:    logger,
		loader:    loader,
		planner:   cropper.NewWithConfig(cfg.PlannerOptions()),
		renderer:  processing.NewProcessor(),
		stills:    detection.NewFuser(stillStages, fusion, logger),
		frames:    detection.NewFuser(videoStages, fusion, logger),
		stages:    [][]detection.Stage{stillStages, videoStages},
		minSource: loader.MinImageSize(),
	}
}

// Close releases the worker's backends
func (p *Processor) Close() {
	for _, stages := range p.stages {
		detection.Close(stages)
	}
}

func (p *Processor) mode() types.Mode {
	mode := types.Mode(p.cfg.Processing.Mode)
	if mode == types.ModeAuto && !p.cfg.Detection.Enabled {
		return types.ModeCenter
	}
	return mode
}

// PlanImage decides the crop for a decoded still.
func (p *Processor) PlanImage(ctx context.Context, img image.Image) (Plan, error) {
	width, height := img.Bounds().Dx(), img.Bounds().Dy()
	if err := analyzer.ValidateDimensions(width, height, p.minSource); err != nil {
		return Plan{}, err
	}

	plan := Plan{Width: width, Height: height, Mode: p.mode()}
	switch plan.Mode {
	case types.ModeCenter:
		plan.Crop = types.Static(p.planner.FallbackBox(width, height))
	case types.ModeManual:
		pc := p.cfg.Processing
		plan.Crop = types.Static(p.planner.ManualBox(width, height, pc.CropX, pc.CropY, pc.CropW, pc.CropH))
	default:
		res, err := p.stills.Analyze(ctx, img)
		if err != nil {
			return Plan{}, err
		}
		plan.Detection = res
		plan.Crop = p.planner.AutoManual(res.Relevant, width, height, p.cfg.Planner.MotionEnabled)
	}

	for _, b := range []types.CropBox{plan.Crop.Start, plan.Crop.End} {
		if err := geometry.Validate(b); err != nil {
			return Plan{}, fmt.Errorf("%w: planned crop %v: %v", analyzer.ErrDegenerateGeometry, b, err)
		}
	}
	return plan, nil
}

// Process handles one input file end to end. Failures are reported in the result, never
// returned, so the caller can carry on with other items.
func (p *Processor) Process(ctx context.Context, path string) ItemResult {
	start := time.Now()
	res := ItemResult{Path: path}

	kind, ok := utils.Classify(path)
	if !ok {
		res.Status, res.Err = StatusFailed, &ItemError{Path: path, Err: ErrUnsupportedMedia}
		return res
	}
	res.Kind = kind
	res.Output = utils.OutputPath(p.cfg.Processing.OutputDir, path, p.cfg.Processing.Size, "mp4")

	logger := p.logger.With(logging.FieldPath, path, logging.FieldKind, string(kind))

	if !p.cfg.Processing.Overwrite && utils.AlreadyProcessed(path, res.Output) {
		logger.Debug("output is up to date", "output", res.Output)
		res.Status = StatusSkipped
		return res
	}

	if err := utils.EnsureDir(p.cfg.Processing.OutputDir); err != nil {
		res.Status, res.Err = StatusFailed, &ItemError{Path: path, Err: err}
		return res
	}

	var err error
	switch kind {
	case utils.KindImage:
		res.Frames, res.Preview, err = p.ProcessImage(ctx, path, res.Output)
	case utils.KindVideo:
		res.Frames, err = p.ProcessVideo(ctx, path, res.Output)
	}
	res.Elapsed = time.Since(start)

	if err != nil {
		_ = os.Remove(res.Output)
		res.Status, res.Err = StatusFailed, &ItemError{Path: path, Err: err}
		logger.Error("item failed", "error", err)
		return res
	}

	res.Status = StatusProcessed
	res.Bytes = utils.FileSize(res.Output)
	logger.Info("item processed",
		"output", res.Output,
		"frames", res.Frames,
		"size", utils.FormatFileSize(res.Bytes),
		"elapsed", res.Elapsed.Round(time.Millisecond))
	return res
}

// ProcessImage renders the still at path into an animated clip at output and, when enabled,
// writes a masked preview of the end crop. It returns the number of frames encoded.
func (p *Processor) ProcessImage(ctx context.Context, path, output string) (int, string, error) {
	img, err := p.loader.LoadImage(path)
	if err != nil {
		return 0, "", err
	}

	plan, err := p.PlanImage(ctx, img)
	if err != nil {
		return 0, "", err
	}
	p.logger.Debug("planned still",
		logging.FieldPath, path,
		"start", plan.Crop.Start,
		"end", plan.Crop.End,
		"candidates", len(plan.Detection.Candidates),
		"stages", plan.Detection.Stages)

	seqOpts := p.cfg.SequenceOptions()
	gen := sequence.NewGenerator(seqOpts)

	enc, err := ffmpeg.NewEncoder(ctx, output, p.cfg.EncodeOptions(seqOpts.FPS, false, ""))
	if err != nil {
		return 0, "", err
	}
	err = gen.Render(ctx, img, plan.Crop, func(_ int, frame *image.NRGBA) error {
		return enc.WriteFrame(frame)
	})
	if err != nil {
		enc.Abort()
		return enc.Frames(), "", err
	}
	if err := enc.Close(); err != nil {
		return enc.Frames(), "", err
	}

	var preview string
	if p.cfg.Processing.Preview {
		preview = utils.OutputPath(p.cfg.Processing.OutputDir, path, p.cfg.Processing.Size, p.cfg.Processing.ImageFormat)
		if err := p.SavePreview(img, plan.Crop.End, preview); err != nil {
			return enc.Frames(), "", fmt.Errorf("preview: %w", err)
		}
	}
	return enc.Frames(), preview, nil
}

// SavePreview writes the box rendered at output size with the circular mask applied.
func (p *Processor) SavePreview(img image.Image, box types.CropBox, path string) error {
	frame, err := p.renderer.RenderFrame(img, box, p.cfg.Processing.Size)
	if err != nil {
		return err
	}
	masked := p.renderer.ApplyCircleMask(frame, p.cfg.Detection.CircleMargin)
	return p.renderer.SaveImage(masked, path, p.cfg.Processing.ImageFormat, p.cfg.Processing.Quality, false)
}

// ProcessVideo tracks the subject through every frame of the video at path and encodes the
// cropped frames to output, carrying the audio over when configured. Frames are consumed
// strictly in order.
func (p *Processor) ProcessVideo(ctx context.Context, path, output string) (int, error) {
	probe, err := ffmpeg.Probe(ctx, path)
	if err != nil {
		return 0, err
	}
	width, height := probe.DisplaySize()
	if err := analyzer.ValidateDimensions(width, height, p.minSource); err != nil {
		return 0, err
	}

	fps, kept := p.cfg.OutputFPS(probe.FPS)
	if probe.FPS <= 0 {
		kept = false
	}
	decodeFPS := 0.0
	if !kept {
		decodeFPS = fps
	}

	audio := ""
	if probe.HasAudio() {
		audio = path
	}

	dec, err := ffmpeg.NewDecoder(ctx, path, width, height, decodeFPS)
	if err != nil {
		return 0, err
	}
	defer dec.Close()

	enc, err := ffmpeg.NewEncoder(ctx, output, p.cfg.EncodeOptions(fps, kept, audio))
	if err != nil {
		return 0, err
	}

	if err := p.encodeFrames(ctx, dec, enc, width, height); err != nil {
		enc.Abort()
		return enc.Frames(), err
	}
	if err := enc.Close(); err != nil {
		return enc.Frames(), err
	}
	if enc.Frames() == 0 {
		return 0, fmt.Errorf("no frames decoded from %s", filepath.Base(path))
	}
	return enc.Frames(), nil
}

// FrameSource yields decoded frames in display order until io.EOF
type FrameSource interface {
	ReadFrame() (*image.NRGBA, error)
}

// FrameSink consumes rendered frames
type FrameSink interface {
	WriteFrame(frame *image.NRGBA) error
}

func (p *Processor) encodeFrames(ctx context.Context, src FrameSource, dst FrameSink, width, height int) error {
	boxFor := p.frameCropper(width, height)
	size := p.cfg.Processing.Size

	for i := 0; ; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		frame, err := src.ReadFrame()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		box, err := boxFor(ctx, frame)
		if err != nil {
			return err
		}
		if err := geometry.Validate(box); err != nil {
			return fmt.Errorf("%w: frame %d crop %v: %v", analyzer.ErrDegenerateGeometry, i, box, err)
		}

		out, err := p.renderer.RenderFrame(frame, box, size)
		if err != nil {
			return fmt.Errorf("frame %d: %w", i, err)
		}
		if err := dst.WriteFrame(out); err != nil {
			return err
		}
	}
}

// frameCropper returns the per-frame crop function for the configured mode. In auto mode it
// owns a fresh tracker state for this stream.
func (p *Processor) frameCropper(width, height int) func(context.Context, image.Image) (types.CropBox, error) {
	switch p.mode() {
	case types.ModeCenter:
		box := p.planner.FallbackBox(width, height)
		return func(context.Context, image.Image) (types.CropBox, error) { return box, nil }
	case types.ModeManual:
		pc := p.cfg.Processing
		box := p.planner.ManualBox(width, height, pc.CropX, pc.CropY, pc.CropW, pc.CropH)
		return func(context.Context, image.Image) (types.CropBox, error) { return box, nil }
	default:
		tr := tracker.New(p.frames, p.planner, p.cfg.TrackerOptions(), p.logger)
		state := tracker.NewState()
		return func(ctx context.Context, frame image.Image) (types.CropBox, error) {
			return tr.Track(ctx, frame, state)
		}
	}
}
