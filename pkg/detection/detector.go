package detection

import (
	"context"
	"fmt"
	"image"

	"github.com/menta2k/memoryball/pkg/client"
	"github.com/menta2k/memoryball/pkg/processing"
	"github.com/menta2k/memoryball/pkg/types"
)

// SimpleTestPrompt for testing if the model can see images
const SimpleTestPrompt = `What do you see in this image? Describe it briefly.`

// DefaultPrompt asks the model for every subject worth keeping in frame
const DefaultPrompt = `You are an image subject locator.

Return JSON only:
{
  "subjects": [
    {
      "label": "string",
      "confidence": 0.0,
      "box": {"x": 0.0, "y": 0.0, "w": 0.0, "h": 0.0}
    }
  ],
  "description": "short neutral sentence (≤ 20 words)",
  "tags": ["tag1", "tag2", "tag3", "tag4", "tag5"]
}

HARD RULES
- All coordinates are normalized to [0,1] (NOT pixels). x,y is the top-left corner.
- List up to 5 subjects, most important first. Prefer faces; else people, animals, vehicles; else the most salient object.
- For a person whose face is visible, the box should tightly include the head.
- Confidence reflects how sure you are the box contains a real subject.
- Description must be brief and factual. Do not guess real identities.
- Tags: lowercase, concise, no punctuation or duplicates.
- If no subject is found, return {"subjects": [], "description": "generic scene", "tags": []}.
- JSON only. No markdown, no code fences, no comments, no trailing commas.`

// VisionConfig selects the model and how the image is shipped to it.
type VisionConfig struct {
	Model   string
	Prompt  string
	MaxDim  int
	Quality int
}

// VisionBackend locates subjects with a vision-language model
type VisionBackend struct {
	client    client.VisionClient
	processor *processing.Processor
	config    VisionConfig
}

// NewVisionBackend creates a backend with a vision client
func NewVisionBackend(c client.VisionClient, config VisionConfig) (*VisionBackend, error) {
	if c == nil {
		return nil, Unavailable("vision", fmt.Errorf("no vision client configured"))
	}
	if config.Model == "" {
		return nil, Unavailable("vision", fmt.Errorf("no model configured"))
	}
	if config.Prompt == "" {
		config.Prompt = DefaultPrompt
	}
	if config.MaxDim <= 0 {
		config.MaxDim = 1024
	}
	if config.Quality <= 0 {
		config.Quality = 85
	}
	return &VisionBackend{client: c, processor: processing.NewProcessor(), config: config}, nil
}

// Name identifies the backend in logs
func (d *VisionBackend) Name() string {
	return "vision:" + d.config.Model
}

// Detect asks the model for subjects and maps the normalized boxes onto the image's pixels.
func (d *VisionBackend) Detect(ctx context.Context, img image.Image) ([]types.RawDetection, error) {
	imageB64, err := d.processor.PrepareImageForModel(img, "jpg", d.config.MaxDim, d.config.Quality)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare image: %w", err)
	}

	result, err := d.client.AnalyzeImage(ctx, d.config.Model, d.config.Prompt, imageB64)
	if err != nil {
		return nil, err
	}

	w, h := float64(img.Bounds().Dx()), float64(img.Bounds().Dy())
	out := make([]types.RawDetection, 0, len(result.Subjects))
	for _, s := range result.Subjects {
		box := client.NormalizeBox(s.Box)
		out = append(out, types.RawDetection{
			X:      box.X * w,
			Y:      box.Y * h,
			Width:  box.W * w,
			Height: box.H * h,
			Score:  s.Confidence,
			Label:  s.Label,
		})
	}
	return out, nil
}

// TestVision tests if the model can actually see the image with a simple prompt
func (d *VisionBackend) TestVision(ctx context.Context, img image.Image) (string, error) {
	imageB64, err := d.processor.PrepareImageForModel(img, "jpg", d.config.MaxDim, d.config.Quality)
	if err != nil {
		return "", fmt.Errorf("failed to prepare image: %w", err)
	}
	return d.client.SimpleQuery(ctx, d.config.Model, SimpleTestPrompt, imageB64)
}
