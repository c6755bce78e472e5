package processing

import (
	"image"
	"image/color"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/memoryball/pkg/types"
)

func createTestImage(width, height int) *image.NRGBA {
	return imaging.New(width, height, color.NRGBA{200, 100, 50, 255})
}

func TestCropPaddedInside(t *testing.T) {
	p := NewProcessor()
	out, err := p.CropPadded(createTestImage(100, 80), types.CropBox{X: 10, Y: 10, Size: 40})
	require.NoError(t, err)
	assert.Equal(t, 40, out.Bounds().Dx())
	assert.Equal(t, 40, out.Bounds().Dy())
	assert.Equal(t, color.NRGBA{200, 100, 50, 255}, out.NRGBAAt(20, 20))
}

func TestCropPaddedOverflowIsBlack(t *testing.T) {
	p := NewProcessor()
	out, err := p.CropPadded(createTestImage(100, 80), types.CropBox{X: -20, Y: -10, Size: 60})
	require.NoError(t, err)
	require.Equal(t, 60, out.Bounds().Dx())

	assert.Equal(t, color.NRGBA{0, 0, 0, 255}, out.NRGBAAt(5, 5), "outside the source is zero filled")
	assert.Equal(t, color.NRGBA{200, 100, 50, 255}, out.NRGBAAt(30, 30))
}

func TestCropPaddedFractionalBox(t *testing.T) {
	p := NewProcessor()
	out, err := p.CropPadded(createTestImage(100, 100), types.CropBox{X: 10.4, Y: 10.6, Size: 20.2})
	require.NoError(t, err)
	// floor(10.4)=10, ceil(30.6)=31
	assert.Equal(t, 21, out.Bounds().Dx())
	// floor(10.6)=10, ceil(30.8)=31
	assert.Equal(t, 21, out.Bounds().Dy())
}

func TestCropPaddedRejectsInvalid(t *testing.T) {
	p := NewProcessor()
	_, err := p.CropPadded(createTestImage(10, 10), types.CropBox{Size: 0})
	assert.Error(t, err)
}

func TestRenderFrame(t *testing.T) {
	p := NewProcessor()
	out, err := p.RenderFrame(createTestImage(320, 240), types.CropBox{X: 40, Y: 0, Size: 240}, 64)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 64, 64), out.Bounds())

	_, err = p.RenderFrame(createTestImage(10, 10), types.CropBox{Size: 5}, 0)
	assert.Error(t, err)
}

func TestPackRGB24RoundTrip(t *testing.T) {
	img := createTestImage(3, 2)
	img.SetNRGBA(1, 1, color.NRGBA{1, 2, 3, 255})

	buf := PackRGB24(img, nil)
	require.Len(t, buf, 3*2*3)
	assert.Equal(t, []byte{1, 2, 3}, buf[(1*3+1)*3:(1*3+1)*3+3])

	back, err := FromRGB24(buf, 3, 2)
	require.NoError(t, err)
	assert.Equal(t, img.Pix, back.Pix)

	_, err = FromRGB24(buf[:5], 3, 2)
	assert.Error(t, err)
}

func TestApplyCircleMask(t *testing.T) {
	p := NewProcessor()
	out := p.ApplyCircleMask(createTestImage(100, 100), 0.1)

	assert.Equal(t, uint8(0), out.NRGBAAt(0, 0).A, "corner is outside the circle")
	assert.Equal(t, uint8(0), out.NRGBAAt(50, 5).A, "margin ring is cleared")
	assert.Equal(t, uint8(255), out.NRGBAAt(50, 50).A)
	assert.Equal(t, uint8(255), out.NRGBAAt(50, 15).A)
}

func TestCreateDebugOverlay(t *testing.T) {
	p := NewProcessor()
	img := createTestImage(200, 200)
	plan := types.ManualCrop{
		Start: types.CropBox{X: 0, Y: 0, Size: 200},
		End:   types.CropBox{X: 50, Y: 50, Size: 100},
	}
	overlay := p.CreateDebugOverlay(img, []types.Detection{{Score: 1, Box: types.CropBox{X: 60, Y: 60, Size: 40}}}, plan, 0.1)

	nrgba, ok := overlay.(*image.NRGBA)
	require.True(t, ok)
	assert.Equal(t, color.NRGBA{255, 0, 0, 255}, nrgba.NRGBAAt(50, 75), "end crop edge")
	assert.Equal(t, color.NRGBA{0, 255, 0, 255}, nrgba.NRGBAAt(60, 80), "detection edge")
	assert.Equal(t, color.NRGBA{200, 100, 50, 255}, img.NRGBAAt(50, 75), "source is untouched")
}

func TestSaveImageFormats(t *testing.T) {
	p := NewProcessor()
	img := createTestImage(16, 16)
	dir := t.TempDir()

	for _, format := range []string{"jpg", "png", "webp"} {
		path := filepath.Join(dir, "out."+format)
		require.NoError(t, p.SaveImage(img, path, format, 90, false), format)
		assert.FileExists(t, path)
	}
}

func TestPrepareImageForModel(t *testing.T) {
	p := NewProcessor()
	b64, err := p.PrepareImageForModel(createTestImage(2000, 1000), "jpg", 512, 80)
	require.NoError(t, err)
	assert.NotEmpty(t, b64)
}

func BenchmarkRenderFrame(b *testing.B) {
	p := NewProcessor()
	img := createTestImage(1920, 1080)
	box := types.CropBox{X: 300, Y: -100, Size: 1200}
	for i := 0; i < b.N; i++ {
		_, _ = p.RenderFrame(img, box, 512)
	}
}
