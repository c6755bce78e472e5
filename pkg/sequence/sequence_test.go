package sequence

import (
	"context"
	"errors"
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/memoryball/pkg/types"
)

func TestFrameCount(t *testing.T) {
	assert.Equal(t, 150, FrameCount(5, 30))
	assert.Equal(t, 1, FrameCount(0, 30))
	assert.Equal(t, 75, FrameCount(2.5, 29.97))
}

func TestPlanTimeline(t *testing.T) {
	tests := []struct {
		total    int
		fps      float64
		expected Timeline
	}{
		{150, 30, Timeline{StartHold: 15, Transition: 120, EndHold: 15}},
		{31, 30, Timeline{StartHold: 15, Transition: 1, EndHold: 15}},
		{20, 30, Timeline{StartHold: 5, Transition: 0, EndHold: 15}},
		{10, 30, Timeline{StartHold: 0, Transition: 0, EndHold: 10}},
		{1, 30, Timeline{StartHold: 0, Transition: 0, EndHold: 1}},
	}

	for _, test := range tests {
		tl := PlanTimeline(test.total, test.fps, 0.5, 0.5)
		assert.Equal(t, test.expected, tl, "total %d", test.total)
		assert.Equal(t, test.total, tl.Total())
	}
}

func TestEase(t *testing.T) {
	assert.Equal(t, 0.0, Ease(0))
	assert.Equal(t, 1.0, Ease(1))
	assert.InDelta(t, 0.5, Ease(0.5), 1e-12)
	assert.InDelta(t, 0.15625, Ease(0.25), 1e-12)
	assert.Equal(t, 1.0, Ease(3))
}

func TestTimelineFraction(t *testing.T) {
	tl := Timeline{StartHold: 2, Transition: 3, EndHold: 2}
	fractions := make([]float64, tl.Total())
	for i := range fractions {
		fractions[i] = tl.Fraction(i)
	}
	assert.Equal(t, []float64{0, 0, 0, 0.5, 1, 1, 1}, fractions)

	single := Timeline{Transition: 1}
	assert.Equal(t, 1.0, single.Fraction(0))
}

func TestBoxesMotion(t *testing.T) {
	manual := types.ManualCrop{
		Start: types.CropBox{X: 0, Y: 0, Size: 1000},
		End:   types.CropBox{X: 400, Y: 200, Size: 300},
	}

	boxes := Boxes(manual, DefaultOptions())
	require.Len(t, boxes, 150)
	assert.Equal(t, manual.Start, boxes[0])
	assert.Equal(t, manual.Start, boxes[15], "first transition frame is the start box")
	assert.Equal(t, manual.End, boxes[134], "last transition frame is the end box")
	assert.Equal(t, manual.End, boxes[149])

	for i := 1; i < len(boxes); i++ {
		assert.LessOrEqual(t, boxes[i].Size, boxes[i-1].Size, "zoom is monotonic at frame %d", i)
	}
}

func TestBoxesWithoutMotionUseEnd(t *testing.T) {
	manual := types.ManualCrop{
		Start: types.CropBox{X: 0, Y: 0, Size: 1000},
		End:   types.CropBox{X: 400, Y: 200, Size: 300},
	}
	opts := DefaultOptions()
	opts.MotionEnabled = false

	for _, b := range Boxes(manual, opts) {
		require.Equal(t, manual.End, b)
	}
}

func TestRender(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 320, 240))
	opts := DefaultOptions()
	opts.Size = 32
	opts.Duration = 1
	opts.FPS = 10
	g := NewGenerator(opts)

	manual := types.ManualCrop{
		Start: types.CropBox{X: -40, Y: -40, Size: 320},
		End:   types.CropBox{X: 100, Y: 60, Size: 120},
	}

	var frames []*image.NRGBA
	err := g.Render(context.Background(), img, manual, func(i int, frame *image.NRGBA) error {
		assert.Equal(t, len(frames), i)
		frames = append(frames, frame)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, frames, g.FrameCount())
	for _, f := range frames {
		assert.Equal(t, image.Rect(0, 0, 32, 32), f.Bounds())
	}
	assert.Same(t, frames[0], frames[1], "held frames are rendered once")
}

func TestRenderStopsOnError(t *testing.T) {
	g := NewGenerator(DefaultOptions())
	img := image.NewNRGBA(image.Rect(0, 0, 64, 64))
	stop := errors.New("encoder gone")

	calls := 0
	err := g.Render(context.Background(), img, types.Static(types.CropBox{Size: 64}), func(int, *image.NRGBA) error {
		calls++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, calls)
}

func TestRenderRejectsInvalidBox(t *testing.T) {
	g := NewGenerator(DefaultOptions())
	img := image.NewNRGBA(image.Rect(0, 0, 64, 64))

	err := g.Render(context.Background(), img, types.Static(types.CropBox{Size: -1}), func(int, *image.NRGBA) error { return nil })
	assert.Error(t, err)
}
