package main

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/memoryball/internal/config"
)

func runCLI(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())

	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func writePNG(t *testing.T, path string, width, height int) {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 90, A: 255})
		}
	}
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
}

func TestConfigInitAndValidate(t *testing.T) {
	target := filepath.Join(t.TempDir(), "memoryball.toml")

	out, _, err := runCLI(t, "config", "init", "--path", target)
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote default configuration")
	assert.FileExists(t, target)

	_, _, err = runCLI(t, "config", "init", "--path", target)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	_, _, err = runCLI(t, "config", "init", "--path", target, "--overwrite")
	require.NoError(t, err)

	out, _, err = runCLI(t, "--config", target, "config", "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "Configuration valid: "+target)

	out, _, err = runCLI(t, "config", "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "built-in defaults")
}

func TestConfigValidateRejectsBadFile(t *testing.T) {
	target := filepath.Join(t.TempDir(), "bad.toml")
	require.NoError(t, os.WriteFile(target, []byte("[processing]\nsize = 101\n"), 0o644))

	_, _, err := runCLI(t, "--config", target, "config", "validate")
	assert.Error(t, err)
}

func TestConfigShow(t *testing.T) {
	out, _, err := runCLI(t, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "[processing]")
	assert.Contains(t, out, "[encoder]")
}

func TestVersion(t *testing.T) {
	out, _, err := runCLI(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "memoryball ")
}

func TestPlanPrintsJSON(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "gradient.png")
	writePNG(t, src, 240, 160)
	overlay := filepath.Join(dir, "debug", "overlay.png")

	out, _, err := runCLI(t, "plan", src, "--no-detection", "--overlay", overlay)
	require.NoError(t, err)

	var plan struct {
		Width  int    `json:"width"`
		Height int    `json:"height"`
		Mode   string `json:"mode"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &plan))
	assert.Equal(t, 240, plan.Width)
	assert.Equal(t, 160, plan.Height)
	assert.Equal(t, "center", plan.Mode)
	assert.FileExists(t, overlay)
}

func TestPlanVisionCheck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"index":0,"message":{"role":"assistant","content":"a colour gradient"}}]}`))
	}))
	defer srv.Close()

	src := filepath.Join(t.TempDir(), "gradient.png")
	writePNG(t, src, 240, 160)

	out, stderr, err := runCLI(t, "plan", src, "--no-detection", "--vision-check",
		"--vision-provider", "llamacpp", "--vision-url", srv.URL, "--vision-model", "test-model")
	require.NoError(t, err)
	assert.Contains(t, stderr, "vision check")
	assert.Contains(t, stderr, "a colour gradient")
	assert.Contains(t, out, `"mode": "center"`)
}

func TestPlanManualFlagsValidated(t *testing.T) {
	src := filepath.Join(t.TempDir(), "gradient.png")
	writePNG(t, src, 240, 160)

	_, _, err := runCLI(t, "plan", src, "--mode", "manual")
	require.Error(t, err, "manual mode needs a crop rectangle")

	out, _, err := runCLI(t, "plan", src, "--mode", "manual", "--crop-x", "10", "--crop-y", "5", "--crop-w", "100", "--crop-h", "80")
	require.NoError(t, err)
	assert.Contains(t, out, `"mode": "manual"`)
}

func TestRunRejectsMissingInput(t *testing.T) {
	_, _, err := runCLI(t, "run", filepath.Join(t.TempDir(), "nothing-here"), "--no-progress")
	assert.Error(t, err)
}

func TestDefaultsMatchFlags(t *testing.T) {
	cmd := newRunCommand(&commandContext{})
	d := config.Default()

	size, err := cmd.Flags().GetInt("size")
	require.NoError(t, err)
	assert.Equal(t, d.Processing.Size, size)

	fps, err := cmd.Flags().GetString("fps")
	require.NoError(t, err)
	assert.Equal(t, d.Sequence.FPS, fps)
}
