package processing

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"math"
	"os"
	"strings"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"

	"github.com/menta2k/memoryball/pkg/geometry"
	"github.com/menta2k/memoryball/pkg/types"
)

// Processor handles pixel operations: cropping, resizing, packing and preview output
type Processor struct{}

// NewProcessor creates a new image processor
func NewProcessor() *Processor {
	return &Processor{}
}

// PrepareImageForModel converts an image to base64 for sending to vision models
func (p *Processor) PrepareImageForModel(img image.Image, format string, maxDim int, quality int) (string, error) {
	if maxDim > 0 {
		b := img.Bounds()
		w, h := b.Dx(), b.Dy()
		if w > maxDim || h > maxDim {
			if w >= h {
				img = imaging.Resize(img, maxDim, 0, imaging.Lanczos)
			} else {
				img = imaging.Resize(img, 0, maxDim, imaging.Lanczos)
			}
		}
	}

	var buf bytes.Buffer
	switch strings.ToLower(format) {
	case "png":
		enc := png.Encoder{CompressionLevel: png.BestCompression}
		if err := enc.Encode(&buf, img); err != nil {
			return "", err
		}
	default: // jpg
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
			return "", err
		}
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// CropPadded cuts the box's pixel rectangle out of img. Parts of the rectangle that lie
// outside the source are filled with opaque black instead of being clamped away.
func (p *Processor) CropPadded(img image.Image, box types.CropBox) (*image.NRGBA, error) {
	if err := geometry.Validate(box); err != nil {
		return nil, err
	}

	bounds := img.Bounds()
	rect := box.Rect().Add(bounds.Min)
	canvas := imaging.New(rect.Dx(), rect.Dy(), color.NRGBA{0, 0, 0, 255})

	inside := rect.Intersect(bounds)
	if inside.Empty() {
		return canvas, nil
	}
	if inside == rect {
		return imaging.Crop(img, rect), nil
	}
	return imaging.Paste(canvas, imaging.Crop(img, inside), inside.Min.Sub(rect.Min)), nil
}

// RenderFrame crops the box and resizes it to a size x size square.
func (p *Processor) RenderFrame(img image.Image, box types.CropBox, size int) (*image.NRGBA, error) {
	if size <= 0 {
		return nil, fmt.Errorf("invalid output size %d", size)
	}
	cropped, err := p.CropPadded(img, box)
	if err != nil {
		return nil, err
	}
	if cropped.Bounds().Dx() == size && cropped.Bounds().Dy() == size {
		return cropped, nil
	}
	return imaging.Resize(cropped, size, size, imaging.Lanczos), nil
}

// PackRGB24 writes the image as tightly packed R,G,B bytes, reusing buf when it is large enough.
func PackRGB24(img *image.NRGBA, buf []byte) []byte {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	need := w * h * 3
	if cap(buf) < need {
		buf = make([]byte, need)
	}
	buf = buf[:need]

	o := 0
	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+w*4]
		for x := 0; x < len(row); x += 4 {
			buf[o] = row[x]
			buf[o+1] = row[x+1]
			buf[o+2] = row[x+2]
			o += 3
		}
	}
	return buf
}

// FromRGB24 wraps a packed RGB24 buffer of the given dimensions as an opaque NRGBA image.
func FromRGB24(buf []byte, width, height int) (*image.NRGBA, error) {
	if width <= 0 || height <= 0 || len(buf) < width*height*3 {
		return nil, fmt.Errorf("rgb24 buffer of %d bytes does not hold %dx%d", len(buf), width, height)
	}
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	o := 0
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i] = buf[o]
		img.Pix[i+1] = buf[o+1]
		img.Pix[i+2] = buf[o+2]
		img.Pix[i+3] = 255
		o += 3
	}
	return img, nil
}

// ApplyCircleMask clears every pixel outside the inscribed circle that covers
// (1 - 2*circleMargin) of the side.
func (p *Processor) ApplyCircleMask(img image.Image, circleMargin float64) *image.NRGBA {
	out := imaging.Clone(img)
	w, h := out.Bounds().Dx(), out.Bounds().Dy()
	side := float64(min(w, h))
	radius := side * geometry.CircleFraction(circleMargin) / 2
	cx, cy := float64(w)/2, float64(h)/2
	r2 := radius * radius

	for y := 0; y < h; y++ {
		dy := float64(y) + 0.5 - cy
		for x := 0; x < w; x++ {
			dx := float64(x) + 0.5 - cx
			if dx*dx+dy*dy > r2 {
				i := y*out.Stride + x*4
				out.Pix[i], out.Pix[i+1], out.Pix[i+2], out.Pix[i+3] = 0, 0, 0, 0
			}
		}
	}
	return out
}

// SaveImage saves an image to a file with the specified format and quality
func (p *Processor) SaveImage(img image.Image, path, format string, quality int, lossless bool) error {
	switch strings.ToLower(format) {
	case "webp":
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		opts := &webp.Options{Lossless: lossless, Quality: float32(quality)}
		return webp.Encode(f, img, opts)
	case "png":
		return imaging.Save(img, path)
	default: // jpg/jpeg
		return imaging.Save(img, path, imaging.JPEGQuality(quality))
	}
}

// CreateDebugOverlay draws the detections, both motion endpoints and the circular mask of
// the end crop over a copy of the image.
func (p *Processor) CreateDebugOverlay(img image.Image, detections []types.Detection, plan types.ManualCrop, circleMargin float64) image.Image {
	nrgba := imaging.Clone(img)
	w := nrgba.Bounds().Dx()
	h := nrgba.Bounds().Dy()

	green := color.NRGBA{0, 255, 0, 255}  // detections
	gold := color.NRGBA{255, 204, 0, 255} // start crop
	red := color.NRGBA{255, 0, 0, 255}    // end crop
	blue := color.NRGBA{0, 170, 255, 255} // circle and image center
	stroke := int(math.Max(2, 0.004*float64(min(w, h))))

	for _, d := range detections {
		drawBox(nrgba, d.Box, green, stroke)
	}
	if !plan.IsStatic() {
		drawBox(nrgba, plan.Start, gold, stroke)
	}
	drawBox(nrgba, plan.End, red, stroke)

	cx, cy := plan.End.Center()
	drawCircle(nrgba, cx, cy, plan.End.Size*geometry.CircleFraction(circleMargin)/2, blue, stroke)

	ix, iy := w/2, h/2
	drawHLine(nrgba, iy, ix-6, ix+6, blue)
	drawVLine(nrgba, ix, iy-6, iy+6, blue)

	return nrgba
}

func drawBox(img *image.NRGBA, box types.CropBox, c color.NRGBA, stroke int) {
	r := box.Rect()
	x0, y0, x1, y1 := r.Min.X, r.Min.Y, r.Max.X, r.Max.Y
	if x1 <= x0 {
		x1 = x0 + 1
	}
	if y1 <= y0 {
		y1 = y0 + 1
	}
	for s := 0; s < stroke; s++ {
		drawHLine(img, y0+s, x0, x1, c)
		drawHLine(img, y1-1-s, x0, x1, c)
		drawVLine(img, x0+s, y0, y1, c)
		drawVLine(img, x1-1-s, y0, y1, c)
	}
}

func drawCircle(img *image.NRGBA, cx, cy, radius float64, c color.NRGBA, stroke int) {
	if radius <= 0 {
		return
	}
	steps := int(math.Max(64, 2*math.Pi*radius))
	for s := 0; s < stroke; s++ {
		r := radius - float64(s)
		for i := 0; i < steps; i++ {
			a := 2 * math.Pi * float64(i) / float64(steps)
			setPixel(img, int(cx+r*math.Cos(a)), int(cy+r*math.Sin(a)), c)
		}
	}
}

func setPixel(img *image.NRGBA, x, y int, c color.NRGBA) {
	if !(image.Point{X: x, Y: y}).In(img.Bounds()) {
		return
	}
	i := y*img.Stride + x*4
	img.Pix[i+0] = c.R
	img.Pix[i+1] = c.G
	img.Pix[i+2] = c.B
	img.Pix[i+3] = c.A
}

func drawHLine(img *image.NRGBA, y, x0, x1 int, c color.NRGBA) {
	if y < 0 || y >= img.Bounds().Dy() {
		return
	}
	if x0 > x1 {
		x0, x1 = x1, x0
	}
	if x1 <= 0 || x0 >= img.Bounds().Dx() {
		return
	}
	if x0 < 0 {
		x0 = 0
	}
	if x1 > img.Bounds().Dx() {
		x1 = img.Bounds().Dx()
	}
	i := y*img.Stride + x0*4
	for x := x0; x < x1; x++ {
		img.Pix[i+0] = c.R
		img.Pix[i+1] = c.G
		img.Pix[i+2] = c.B
		img.Pix[i+3] = c.A
		i += 4
	}
}

func drawVLine(img *image.NRGBA, x, y0, y1 int, c color.NRGBA) {
	if x < 0 || x >= img.Bounds().Dx() {
		return
	}
	if y0 > y1 {
		y0, y1 = y1, y0
	}
	if y1 <= 0 || y0 >= img.Bounds().Dy() {
		return
	}
	if y0 < 0 {
		y0 = 0
	}
	if y1 > img.Bounds().Dy() {
		y1 = img.Bounds().Dy()
	}
	i := y0*img.Stride + x*4
	for y := y0; y < y1; y++ {
		img.Pix[i+0] = c.R
		img.Pix[i+1] = c.G
		img.Pix[i+2] = c.B
		img.Pix[i+3] = c.A
		i += img.Stride
	}
}
