package client

import (
	"context"

	"github.com/menta2k/memoryball/pkg/types"
)

// VisionClient is a transport to a vision language model able to locate subjects.
type VisionClient interface {
	SimpleQuery(ctx context.Context, model, prompt, imgB64 string) (string, error)
	AnalyzeImage(ctx context.Context, model, prompt, imgB64 string) (*types.AnalysisResult, error)
}
