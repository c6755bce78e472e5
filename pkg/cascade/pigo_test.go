package cascade

import (
	"image"
	"os"
	"path/filepath"
	"testing"

	pigo "github.com/esimov/pigo/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/memoryball/pkg/detection"
)

func TestNewPigoBackendUnavailable(t *testing.T) {
	_, err := NewPigoBackend(DefaultPigoConfig(""))
	assert.ErrorIs(t, err, detection.ErrBackendUnavailable)

	_, err = NewPigoBackend(DefaultPigoConfig(filepath.Join(t.TempDir(), "facefinder")))
	assert.ErrorIs(t, err, detection.ErrBackendUnavailable)

	short := filepath.Join(t.TempDir(), "facefinder")
	require.NoError(t, os.WriteFile(short, []byte("nope"), 0o644))
	_, err = NewPigoBackend(DefaultPigoConfig(short))
	assert.ErrorIs(t, err, detection.ErrBackendUnavailable)
}

func TestQualityScore(t *testing.T) {
	assert.InDelta(t, 0.5, qualityScore(10, 20), 1e-6)
	assert.Equal(t, 1.0, qualityScore(45, 20))
	assert.Equal(t, 0.0, qualityScore(-3, 20))
	assert.Equal(t, 1.0, qualityScore(3, 0))
}

func TestConvertDetections(t *testing.T) {
	cfg := DefaultPigoConfig("unused")
	dets := []pigo.Detection{
		{Row: 100, Col: 200, Scale: 40, Q: 12},
		{Row: 10, Col: 10, Scale: 20, Q: 2}, // below the quality threshold
	}

	out := convertDetections(dets, 2, cfg)
	require.Len(t, out, 1)
	assert.Equal(t, 360.0, out[0].X)
	assert.Equal(t, 160.0, out[0].Y)
	assert.Equal(t, 80.0, out[0].Width)
	assert.Equal(t, 80.0, out[0].Height)
	assert.InDelta(t, 0.6, out[0].Score, 1e-6)
	assert.Equal(t, "face", out[0].Label)
}

func TestDownscale(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 2000, 1000))
	small, scale := downscale(img, 1000)
	assert.Equal(t, 1000, small.Bounds().Dx())
	assert.Equal(t, 500, small.Bounds().Dy())
	assert.InDelta(t, 2.0, scale, 1e-9)

	offset := image.NewNRGBA(image.Rect(10, 10, 60, 40))
	same, scale := downscale(offset, 1000)
	assert.Equal(t, image.Rect(0, 0, 50, 30), same.Bounds(), "origin is moved to zero")
	assert.Equal(t, 1.0, scale)
}
