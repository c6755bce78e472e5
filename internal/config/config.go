package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"

	"github.com/menta2k/memoryball/pkg/cropper"
	"github.com/menta2k/memoryball/pkg/detection"
	"github.com/menta2k/memoryball/pkg/ffmpeg"
	"github.com/menta2k/memoryball/pkg/sequence"
	"github.com/menta2k/memoryball/pkg/tracker"
	"github.com/menta2k/memoryball/pkg/types"
)

// FPSKeep keeps the source frame rate for videos; stills use DefaultStillFPS.
const FPSKeep = "keep"

// DefaultStillFPS is the clip frame rate for stills when the frame rate is kept.
const DefaultStillFPS = 30.0

// Config holds the application configuration
type Config struct {
	Processing ProcessingConfig `toml:"processing"`
	Detection  DetectionConfig  `toml:"detection"`
	Planner    PlannerConfig    `toml:"planner"`
	Tracker    TrackerConfig    `toml:"tracker"`
	Sequence   SequenceConfig   `toml:"sequence"`
	Encoder    EncoderConfig    `toml:"encoder"`
	Vision     VisionConfig     `toml:"vision"`
	Logging    LoggingConfig    `toml:"logging"`
}

// ProcessingConfig controls what is produced for every input
type ProcessingConfig struct {
	OutputDir string  `toml:"output_dir" validate:"required"`
	Size      int     `toml:"size" validate:"gte=16,lte=8192"`
	Mode      string  `toml:"mode" validate:"oneof=auto center manual"`
	Pad       float64 `toml:"pad" validate:"gte=0,lt=1"`
	Threads   int     `toml:"threads" validate:"gte=1,lte=64"`

	// Manual crop rectangle in source pixels, used when mode is "manual".
	CropX float64 `toml:"crop_x"`
	CropY float64 `toml:"crop_y"`
	CropW float64 `toml:"crop_w" validate:"gte=0"`
	CropH float64 `toml:"crop_h" validate:"gte=0"`

	Preview     bool   `toml:"preview"`
	ImageFormat string `toml:"image_format" validate:"oneof=jpg png webp"`
	Quality     int    `toml:"quality" validate:"gte=1,lte=100"`
	Overwrite   bool   `toml:"overwrite"`
}

// DetectionConfig holds the detector chain and candidate fusion settings
type DetectionConfig struct {
	Enabled           bool    `toml:"enabled"`
	MinFaceRatio      float64 `toml:"min_face_ratio" validate:"gte=0,lte=1"`
	CircleMargin      float64 `toml:"circle_margin" validate:"gte=0,lt=0.5"`
	ConfidentScore    float64 `toml:"confident_score" validate:"gte=0,lte=1"`
	DuplicateIoU      float64 `toml:"duplicate_iou" validate:"gt=0,lte=1"`
	RelevantSizeRatio float64 `toml:"relevant_size_ratio" validate:"gte=0,lte=1"`
	CenterThreshold   float64 `toml:"center_threshold" validate:"gte=0,lte=1"`
	MaxCandidates     int     `toml:"max_candidates" validate:"gte=1,lte=50"`

	// PigoCascade is the pigo facefinder file. Empty disables the backend.
	PigoCascade string `toml:"pigo_cascade"`
	// CascadeDir holds the OpenCV Haar cascade XML files (opencv builds only).
	CascadeDir string `toml:"cascade_dir"`
	Cascades   bool   `toml:"cascades"`
	Person     bool   `toml:"person"`
	Saliency   bool   `toml:"saliency"`
}

// PlannerConfig holds crop and motion planning settings
type PlannerConfig struct {
	Priority      string  `toml:"priority" validate:"oneof=largest center all"`
	MotionEnabled bool    `toml:"motion_enabled"`
	Direction     string  `toml:"direction" validate:"oneof=in out"`
	CombineScale  float64 `toml:"combine_scale" validate:"gte=1"`
	BodyScale     float64 `toml:"body_scale" validate:"gt=0"`
	FaceMargin    float64 `toml:"face_margin" validate:"gte=0"`
	BodyTopRatio  float64 `toml:"body_top_ratio" validate:"gte=0,lte=1"`
	FaceTopRatio  float64 `toml:"face_top_ratio" validate:"gte=0,lte=1"`
	OverflowRatio float64 `toml:"overflow_ratio" validate:"gte=0,lte=1"`
	FixedWindow   bool    `toml:"fixed_window"`
}

// TrackerConfig holds the video smoothing constants
type TrackerConfig struct {
	Alpha           float64 `toml:"alpha" validate:"gt=0,lte=1"`
	MaxStepFraction float64 `toml:"max_step_fraction" validate:"gte=0,lte=1"`
	MaxGap          int     `toml:"max_gap" validate:"gte=0"`
}

// SequenceConfig holds the still-image clip timeline
type SequenceConfig struct {
	Duration  float64 `toml:"duration" validate:"gt=0,lte=600"`
	StartHold float64 `toml:"start_hold" validate:"gte=0"`
	EndHold   float64 `toml:"end_hold" validate:"gte=0"`
	// FPS is "keep" or a positive number.
	FPS string `toml:"fps" validate:"required"`
}

// EncoderConfig holds the H.264 encoding policy
type EncoderConfig struct {
	Preset    string `toml:"preset" validate:"oneof=ultrafast superfast veryfast faster fast medium slow slower veryslow"`
	CRF       int    `toml:"crf" validate:"gte=0,lte=51"`
	KeepAudio bool   `toml:"keep_audio"`
}

// VisionConfig holds the optional VLM detector settings
type VisionConfig struct {
	Enabled  bool   `toml:"enabled"`
	Provider string `toml:"provider" validate:"oneof=ollama llamacpp"`
	URL      string `toml:"url" validate:"omitempty,url"`
	Model    string `toml:"model"`
	MaxDim   int    `toml:"max_dim" validate:"gte=64,lte=4096"`
	Quality  int    `toml:"quality" validate:"gte=1,lte=100"`
}

// LoggingConfig selects log level and format
type LoggingConfig struct {
	Level  string `toml:"level" validate:"oneof=debug info warn error"`
	Format string `toml:"format" validate:"oneof=console json"`
}

// Default returns a configuration with default values
func Default() *Config {
	fusion := detection.DefaultOptions()
	planner := cropper.DefaultOptions()
	smoothing := tracker.DefaultOptions()
	clip := sequence.DefaultOptions()

	return &Config{
		Processing: ProcessingConfig{
			OutputDir:   "./output",
			Size:        clip.Size,
			Mode:        string(types.ModeAuto),
			Threads:     4,
			ImageFormat: "jpg",
			Quality:     90,
		},
		Detection: DetectionConfig{
			Enabled:           true,
			MinFaceRatio:      fusion.MinFaceRatio,
			CircleMargin:      fusion.CircleMargin,
			ConfidentScore:    fusion.ConfidentScore,
			DuplicateIoU:      fusion.DuplicateIoU,
			RelevantSizeRatio: fusion.RelevantSizeRatio,
			CenterThreshold:   fusion.CenterThreshold,
			MaxCandidates:     fusion.MaxCandidates,
			PigoCascade:       "./cascades/facefinder",
			CascadeDir:        "./cascades",
			Cascades:          true,
			Person:            true,
			Saliency:          true,
		},
		Planner: PlannerConfig{
			Priority:      string(planner.Priority),
			MotionEnabled: true,
			Direction:     string(planner.Direction),
			CombineScale:  planner.CombineScale,
			BodyScale:     planner.BodyScale,
			FaceMargin:    planner.FaceMargin,
			BodyTopRatio:  planner.BodyTopRatio,
			FaceTopRatio:  planner.FaceTopRatio,
			OverflowRatio: planner.OverflowRatio,
		},
		Tracker: TrackerConfig{
			Alpha:           smoothing.Alpha,
			MaxStepFraction: smoothing.MaxStepFraction,
			MaxGap:          smoothing.MaxGap,
		},
		Sequence: SequenceConfig{
			Duration:  clip.Duration,
			StartHold: clip.StartHold,
			EndHold:   clip.EndHold,
			FPS:       FPSKeep,
		},
		Encoder: EncoderConfig{
			Preset:    "medium",
			CRF:       20,
			KeepAudio: true,
		},
		Vision: VisionConfig{
			Provider: "ollama",
			URL:      "http://localhost:11434",
			Model:    "qwen2.5vl:7b",
			MaxDim:   1024,
			Quality:  85,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// LoadFromFile loads a TOML file on top of the defaults and validates the result
func LoadFromFile(filename string) (*Config, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	defer file.Close()

	cfg := Default()
	decoder := toml.NewDecoder(file)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load reads path, or the default config path when path is empty. A missing default file
// yields the defaults; a missing explicit file is an error. It returns the path that was used.
func Load(path string) (*Config, string, error) {
	explicit := path != ""
	if !explicit {
		path = GetConfigPath()
	}

	if _, err := os.Stat(path); err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return Default(), "", nil
		}
		return nil, "", fmt.Errorf("failed to read config file: %w", err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

// SaveToFile saves configuration to a TOML file
func (c *Config) SaveToFile(filename string) error {
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Validate checks field ranges and the rules that span fields
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	if c.Processing.Size%2 != 0 {
		return fmt.Errorf("processing.size must be even for yuv420p output, got %d", c.Processing.Size)
	}

	if c.Processing.Mode == string(types.ModeManual) && (c.Processing.CropW <= 0 || c.Processing.CropH <= 0) {
		return fmt.Errorf("processing.crop_w and processing.crop_h are required in manual mode")
	}

	if _, _, err := parseFPS(c.Sequence.FPS); err != nil {
		return err
	}

	if c.Sequence.StartHold+c.Sequence.EndHold > c.Sequence.Duration {
		return fmt.Errorf("sequence.start_hold + sequence.end_hold must not exceed sequence.duration")
	}

	if c.Vision.Enabled && (c.Vision.URL == "" || c.Vision.Model == "") {
		return fmt.Errorf("vision.url and vision.model are required when vision is enabled")
	}

	return nil
}

func parseFPS(value string) (float64, bool, error) {
	value = strings.TrimSpace(strings.ToLower(value))
	if value == FPSKeep {
		return 0, true, nil
	}
	fps, err := strconv.ParseFloat(value, 64)
	if err != nil || fps <= 0 || fps > 240 {
		return 0, false, fmt.Errorf("sequence.fps must be %q or a number in (0, 240], got %q", FPSKeep, value)
	}
	return fps, false, nil
}

// OutputFPS resolves the clip frame rate for a source running at sourceFPS (0 for stills).
// The second result reports whether the source rate was kept.
func (c *Config) OutputFPS(sourceFPS float64) (float64, bool) {
	fps, keep, err := parseFPS(c.Sequence.FPS)
	switch {
	case err != nil:
		return DefaultStillFPS, false
	case !keep:
		return fps, false
	case sourceFPS > 0:
		return sourceFPS, true
	default:
		return DefaultStillFPS, true
	}
}

// FusionOptions returns the candidate fusion settings
func (c *Config) FusionOptions() detection.Options {
	opts := detection.DefaultOptions()
	opts.MinFaceRatio = c.Detection.MinFaceRatio
	opts.CircleMargin = c.Detection.CircleMargin
	opts.ConfidentScore = c.Detection.ConfidentScore
	opts.DuplicateIoU = c.Detection.DuplicateIoU
	opts.RelevantSizeRatio = c.Detection.RelevantSizeRatio
	opts.CenterThreshold = c.Detection.CenterThreshold
	opts.MaxCandidates = c.Detection.MaxCandidates
	return opts
}

// PlannerOptions returns the crop planner settings
func (c *Config) PlannerOptions() cropper.Options {
	opts := cropper.DefaultOptions()
	opts.MinFaceRatio = c.Detection.MinFaceRatio
	opts.CircleMargin = c.Detection.CircleMargin
	opts.Priority = types.Priority(c.Planner.Priority)
	opts.Direction = types.Direction(c.Planner.Direction)
	opts.CombineScale = c.Planner.CombineScale
	opts.BodyScale = c.Planner.BodyScale
	opts.FaceMargin = c.Planner.FaceMargin
	opts.BodyTopRatio = c.Planner.BodyTopRatio
	opts.FaceTopRatio = c.Planner.FaceTopRatio
	opts.OverflowRatio = c.Planner.OverflowRatio
	opts.FixedWindow = c.Planner.FixedWindow
	opts.Pad = c.Processing.Pad
	return opts
}

// TrackerOptions returns the video smoothing settings
func (c *Config) TrackerOptions() tracker.Options {
	return tracker.Options{
		Alpha:           c.Tracker.Alpha,
		MaxStepFraction: c.Tracker.MaxStepFraction,
		MaxGap:          c.Tracker.MaxGap,
	}
}

// SequenceOptions returns the still clip settings
func (c *Config) SequenceOptions() sequence.Options {
	fps, _ := c.OutputFPS(0)
	return sequence.Options{
		FPS:           fps,
		Duration:      c.Sequence.Duration,
		StartHold:     c.Sequence.StartHold,
		EndHold:       c.Sequence.EndHold,
		Size:          c.Processing.Size,
		MotionEnabled: c.Planner.MotionEnabled,
	}
}

// EncodeOptions returns the encoder policy at the given frame rate. audioSource is empty for
// stills and for sources without audio.
func (c *Config) EncodeOptions(fps float64, fpsKept bool, audioSource string) ffmpeg.EncodeOptions {
	opts := ffmpeg.EncodeOptions{
		Size:   c.Processing.Size,
		FPS:    fps,
		Preset: c.Encoder.Preset,
		CRF:    c.Encoder.CRF,
	}
	if c.Encoder.KeepAudio && audioSource != "" {
		opts.AudioSource = audioSource
		opts.CopyAudio = fpsKept
	}
	return opts
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./config.toml"
	}
	return filepath.Join(home, ".config", "memoryball", "config.toml")
}
