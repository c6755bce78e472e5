package memoryball

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/menta2k/memoryball/pkg/pipeline"
	"github.com/menta2k/memoryball/pkg/types"
)

// createTestImage creates a simple test image
func createTestImage(width, height int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))

	// Create a pattern with a bright subject in the center
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if x > width/3 && x < 2*width/3 && y > height/3 && y < 2*height/3 {
				img.Set(x, y, color.RGBA{255, 255, 255, 255})
			} else {
				img.Set(x, y, color.RGBA{64, 64, 64, 255})
			}
		}
	}

	return img
}

func testConfig(t *testing.T) *Config {
	cfg := DefaultConfig()
	cfg.Processing.OutputDir = t.TempDir()
	cfg.Detection.Enabled = false
	return cfg
}

func TestNew(t *testing.T) {
	mb := New()
	if mb == nil {
		t.Fatal("New() returned nil")
	}
	defer mb.Close()

	if mb.Config() == nil {
		t.Error("config is nil")
	}
	if mb.loader == nil {
		t.Error("loader is nil")
	}
	if mb.processor == nil {
		t.Error("processor is nil")
	}
}

func TestNewWithConfigRejectsInvalid(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Processing.Size = 101

	if _, err := NewWithConfig(cfg, nil); err == nil {
		t.Error("expected an error for an odd output size")
	}
}

func TestLoadImage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "subject.png")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := png.Encode(f, createTestImage(320, 240)); err != nil {
		t.Fatal(err)
	}
	f.Close()

	mb := New()
	defer mb.Close()

	img, err := mb.LoadImage(path)
	if err != nil {
		t.Fatalf("LoadImage failed: %v", err)
	}

	info := mb.GetImageInfo(img)
	if info.Width != 320 || info.Height != 240 {
		t.Errorf("unexpected size %dx%d", info.Width, info.Height)
	}
	if math.Abs(info.AspectRatio-320.0/240.0) > 1e-9 {
		t.Errorf("unexpected aspect ratio %f", info.AspectRatio)
	}

	if _, err := mb.LoadImage(filepath.Join(t.TempDir(), "missing.png")); err == nil {
		t.Error("expected an error for a missing file")
	}
}

func TestPlanImageWithoutDetection(t *testing.T) {
	mb, err := NewWithConfig(testConfig(t), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer mb.Close()

	plan, err := mb.PlanImage(context.Background(), createTestImage(400, 300))
	if err != nil {
		t.Fatalf("PlanImage failed: %v", err)
	}

	if plan.Mode != types.ModeCenter {
		t.Errorf("auto mode without detection should plan a center crop, got %q", plan.Mode)
	}
	if !plan.Crop.IsStatic() {
		t.Error("a center crop does not move")
	}
	cx, cy := plan.Crop.End.Center()
	if math.Abs(cx-200) > 1e-6 || math.Abs(cy-150) > 1e-6 {
		t.Errorf("center crop is off center: (%f, %f)", cx, cy)
	}
}

func TestPlanImageManual(t *testing.T) {
	cfg := testConfig(t)
	cfg.Processing.Mode = string(types.ModeManual)
	cfg.Processing.CropX, cfg.Processing.CropY = 10, 20
	cfg.Processing.CropW, cfg.Processing.CropH = 200, 150

	mb, err := NewWithConfig(cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer mb.Close()

	plan, err := mb.PlanImage(context.Background(), createTestImage(400, 300))
	if err != nil {
		t.Fatalf("PlanImage failed: %v", err)
	}
	want := types.CropBox{X: 10, Y: 20, Size: 150}
	if plan.Crop.End != want {
		t.Errorf("got %v, want %v", plan.Crop.End, want)
	}
}

func TestProcessFileUnsupported(t *testing.T) {
	mb, err := NewWithConfig(testConfig(t), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer mb.Close()

	path := filepath.Join(t.TempDir(), "notes.txt")
	if err := os.WriteFile(path, []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}

	res := mb.ProcessFile(context.Background(), path)
	if res.Status != pipeline.StatusFailed {
		t.Errorf("expected failed status, got %q", res.Status)
	}
	if !errors.Is(res.Err, pipeline.ErrUnsupportedMedia) {
		t.Errorf("expected ErrUnsupportedMedia, got %v", res.Err)
	}
}

func TestGetVersion(t *testing.T) {
	if GetVersion() != Version {
		t.Errorf("GetVersion() = %q, want %q", GetVersion(), Version)
	}
}
