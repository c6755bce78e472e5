package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/memoryball/pkg/types"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 0.1, cfg.Detection.MinFaceRatio)
	assert.Equal(t, "largest", cfg.Planner.Priority)
	assert.Equal(t, 0.4, cfg.Tracker.Alpha)
	assert.Equal(t, 0.15, cfg.Tracker.MaxStepFraction)
	assert.Equal(t, 15, cfg.Tracker.MaxGap)
	assert.Equal(t, "in", cfg.Planner.Direction)
	assert.Equal(t, 1.7, cfg.Planner.BodyScale)
	assert.Equal(t, 0.12, cfg.Planner.FaceMargin)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"odd size", func(c *Config) { c.Processing.Size = 481 }},
		{"bad mode", func(c *Config) { c.Processing.Mode = "zoom" }},
		{"manual without rect", func(c *Config) { c.Processing.Mode = "manual" }},
		{"bad priority", func(c *Config) { c.Planner.Priority = "biggest" }},
		{"bad direction", func(c *Config) { c.Planner.Direction = "up" }},
		{"alpha zero", func(c *Config) { c.Tracker.Alpha = 0 }},
		{"negative gap", func(c *Config) { c.Tracker.MaxGap = -1 }},
		{"bad fps", func(c *Config) { c.Sequence.FPS = "fast" }},
		{"holds exceed duration", func(c *Config) { c.Sequence.Duration = 0.5 }},
		{"circle margin too large", func(c *Config) { c.Detection.CircleMargin = 0.5 }},
		{"crf out of range", func(c *Config) { c.Encoder.CRF = 60 }},
		{"unknown preset", func(c *Config) { c.Encoder.Preset = "warp" }},
		{"vision without model", func(c *Config) { c.Vision.Enabled = true; c.Vision.Model = "" }},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }},
		{"no threads", func(c *Config) { c.Processing.Threads = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	manual := Default()
	manual.Processing.Mode = "manual"
	manual.Processing.CropW = 400
	manual.Processing.CropH = 300
	assert.NoError(t, manual.Validate())
}

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")

	cfg := Default()
	cfg.Processing.Size = 480
	cfg.Planner.Priority = "center"
	cfg.Sequence.FPS = "25"
	require.NoError(t, cfg.SaveToFile(path))

	loaded, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestLoadPartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[planner]\npriority = \"all\"\n"), 0644))

	cfg, used, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, path, used)
	assert.Equal(t, "all", cfg.Planner.Priority)
	assert.Equal(t, Default().Tracker, cfg.Tracker)
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[planner]\nzoom = 3\n"), 0644))

	_, err := LoadFromFile(path)
	assert.Error(t, err)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, _, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestOutputFPS(t *testing.T) {
	cfg := Default()

	fps, kept := cfg.OutputFPS(0)
	assert.Equal(t, DefaultStillFPS, fps)
	assert.True(t, kept)

	fps, kept = cfg.OutputFPS(29.97)
	assert.Equal(t, 29.97, fps)
	assert.True(t, kept)

	cfg.Sequence.FPS = "24"
	fps, kept = cfg.OutputFPS(29.97)
	assert.Equal(t, 24.0, fps)
	assert.False(t, kept)
}

func TestConversions(t *testing.T) {
	cfg := Default()
	cfg.Planner.Priority = "center"
	cfg.Planner.Direction = "out"
	cfg.Processing.Pad = 0.2
	cfg.Tracker.MaxGap = 3

	planner := cfg.PlannerOptions()
	assert.Equal(t, types.PriorityCenter, planner.Priority)
	assert.Equal(t, types.DirectionOut, planner.Direction)
	assert.Equal(t, 0.2, planner.Pad)

	assert.Equal(t, 3, cfg.TrackerOptions().MaxGap)
	assert.Equal(t, cfg.Detection.MaxCandidates, cfg.FusionOptions().MaxCandidates)

	seq := cfg.SequenceOptions()
	assert.Equal(t, 30.0, seq.FPS)
	assert.Equal(t, cfg.Processing.Size, seq.Size)

	enc := cfg.EncodeOptions(25, false, "clip.mov")
	assert.Equal(t, "clip.mov", enc.AudioSource)
	assert.False(t, enc.CopyAudio)

	cfg.Encoder.KeepAudio = false
	assert.Empty(t, cfg.EncodeOptions(25, true, "clip.mov").AudioSource)
}
