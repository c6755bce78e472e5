package tracker

import (
	"context"
	"errors"
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/memoryball/pkg/cropper"
	"github.com/menta2k/memoryball/pkg/types"
)

var fallback = types.CropBox{X: 50, Y: -150, Size: 1500}

func TestUpdateCoastsThenLoses(t *testing.T) {
	s := NewState()
	opts := DefaultOptions()

	first := Update(s, &types.CropBox{X: 100, Y: 100, Size: 300}, fallback, opts)
	assert.Equal(t, types.CropBox{X: 100, Y: 100, Size: 300}, first, "the first observation is taken as is")
	assert.Equal(t, Tracking, s.Status())

	for frame := 1; frame <= 15; frame++ {
		got := Update(s, nil, fallback, opts)
		require.Equal(t, first, got, "frame %d should coast", frame)
		assert.Equal(t, frame, s.LostFrames())
	}

	got := Update(s, nil, fallback, opts)
	assert.Equal(t, fallback, got)
	assert.Equal(t, Lost, s.Status())
	assert.Equal(t, 0, s.LostFrames())
	_, ok := s.Last()
	assert.False(t, ok, "smoothing memory is cleared")
}

func TestUpdateSmoothsAndClampsStep(t *testing.T) {
	s := NewState()
	opts := DefaultOptions()

	Update(s, &types.CropBox{X: 0, Y: 0, Size: 1000}, fallback, opts)

	// A small move is averaged: 0.4*100.
	got := Update(s, &types.CropBox{X: 100, Y: 0, Size: 1000}, fallback, opts)
	assert.InDelta(t, 40, got.X, 1e-9)
	assert.InDelta(t, 0, got.Y, 1e-9)
	assert.InDelta(t, 1000, got.Size, 1e-9)

	// A jump is limited to 0.15*1500 = 225 per frame.
	got = Update(s, &types.CropBox{X: 1040, Y: 0, Size: 1000}, fallback, opts)
	assert.InDelta(t, 40+225, got.X, 1e-9)
}

func TestUpdateRecoversAfterCoasting(t *testing.T) {
	s := NewState()
	opts := DefaultOptions()

	Update(s, &types.CropBox{X: 0, Y: 0, Size: 500}, fallback, opts)
	Update(s, nil, fallback, opts)
	Update(s, nil, fallback, opts)
	assert.Equal(t, 2, s.LostFrames())

	got := Update(s, &types.CropBox{X: 10, Y: 0, Size: 500}, fallback, opts)
	assert.InDelta(t, 4, got.X, 1e-9)
	assert.Equal(t, 0, s.LostFrames())
}

func TestUpdateWithoutHistoryReturnsFallback(t *testing.T) {
	s := NewState()
	assert.Equal(t, fallback, Update(s, nil, fallback, DefaultOptions()))
	assert.Equal(t, fallback, Update(s, &types.CropBox{Size: 0}, fallback, DefaultOptions()), "an invalid focus counts as missing")
}

func TestReset(t *testing.T) {
	s := NewState()
	Update(s, &types.CropBox{X: 1, Y: 1, Size: 10}, fallback, DefaultOptions())
	s.Reset()

	_, ok := s.Last()
	assert.False(t, ok)
	assert.Equal(t, Lost, s.Status())
	assert.Equal(t, "lost", s.Status().String())
}

type scriptedDetector struct {
	frames [][]types.Detection
	i      int
}

func (d *scriptedDetector) Detect(ctx context.Context, img image.Image) ([]types.Detection, error) {
	if d.i >= len(d.frames) {
		return nil, errors.New("detector ran dry")
	}
	dets := d.frames[d.i]
	d.i++
	return dets, nil
}

func TestTrackerTrack(t *testing.T) {
	frame := image.NewNRGBA(image.Rect(0, 0, 1600, 1200))
	subject := types.Detection{Score: 1, Box: types.CropBox{X: 600, Y: 400, Size: 300}}
	det := &scriptedDetector{frames: [][]types.Detection{{subject}, nil}}

	planner := cropper.New()
	tr := New(det, planner, DefaultOptions(), nil)
	state := NewState()

	box, err := tr.Track(context.Background(), frame, state)
	require.NoError(t, err)
	assert.Equal(t, subject.Box, box)

	box, err = tr.Track(context.Background(), frame, state)
	require.NoError(t, err)
	assert.Equal(t, subject.Box, box, "coasting through an empty frame")

	// Detector errors are treated as empty frames.
	box, err = tr.Track(context.Background(), frame, state)
	require.NoError(t, err)
	assert.Equal(t, subject.Box, box)
	assert.Equal(t, 2, state.LostFrames())
}

func BenchmarkUpdate(b *testing.B) {
	s := NewState()
	opts := DefaultOptions()
	boxes := []types.CropBox{{X: 0, Y: 0, Size: 500}, {X: 40, Y: 10, Size: 520}}
	for i := 0; i < b.N; i++ {
		box := boxes[i%2]
		Update(s, &box, fallback, opts)
	}
}
