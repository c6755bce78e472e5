package detection

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"

	"github.com/menta2k/memoryball/pkg/types"
)

// ErrBackendUnavailable is returned by backend constructors when a backend cannot run at
// all (missing model assets, binary built without support). It is fatal for that backend
// for the whole run.
var ErrBackendUnavailable = errors.New("detection backend unavailable")

// Backend is the capability every detector exposes. Backends are not required to be
// re-entrant: an instance must stay confined to one worker.
type Backend interface {
	Name() string
	Detect(ctx context.Context, img image.Image) ([]types.RawDetection, error)
}

// Stage is one step of the fallback chain.
type Stage struct {
	Backend Backend
	// Trusted backends report no score; a zero score is read as 1.0.
	Trusted bool
	// LastResort stages run only when nothing was collected by earlier stages.
	LastResort bool
}

// StageFactory constructs a fresh backend instance for one worker.
type StageFactory struct {
	Name       string
	New        func() (Backend, error)
	Trusted    bool
	LastResort bool
}

// ChainBuilder builds per-worker stage chains from factories. A factory that fails is
// reported once and skipped for every later build.
type ChainBuilder struct {
	factories []StageFactory
	logger    *slog.Logger

	mu          sync.Mutex
	unavailable map[string]error
}

// NewChainBuilder creates a builder over the factories in chain order
func NewChainBuilder(factories []StageFactory, logger *slog.Logger) *ChainBuilder {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChainBuilder{
		factories:   factories,
		logger:      logger,
		unavailable: make(map[string]error),
	}
}

// Build constructs one chain. It never fails: an empty chain simply yields no detections.
func (b *ChainBuilder) Build() []Stage {
	var stages []Stage
	for _, f := range b.factories {
		b.mu.Lock()
		_, skip := b.unavailable[f.Name]
		b.mu.Unlock()
		if skip {
			continue
		}

		backend, err := f.New()
		if err != nil {
			b.mu.Lock()
			if _, seen := b.unavailable[f.Name]; !seen {
				b.unavailable[f.Name] = err
				b.logger.Warn("detector backend disabled for this run", "backend", f.Name, "error", err)
			}
			b.mu.Unlock()
			continue
		}
		stages = append(stages, Stage{Backend: backend, Trusted: f.Trusted, LastResort: f.LastResort})
	}
	return stages
}

// Unavailable returns the backends that failed construction and why.
func (b *ChainBuilder) Unavailable() map[string]error {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[string]error, len(b.unavailable))
	for k, v := range b.unavailable {
		out[k] = v
	}
	return out
}

// Close releases backends that hold native resources.
func Close(stages []Stage) {
	for _, s := range stages {
		if c, ok := s.Backend.(interface{ Close() error }); ok {
			_ = c.Close()
		}
	}
}

// Unavailable wraps a construction failure so callers can match ErrBackendUnavailable.
func Unavailable(name string, cause error) error {
	if cause == nil {
		return fmt.Errorf("%s: %w", name, ErrBackendUnavailable)
	}
	return fmt.Errorf("%s: %w: %v", name, ErrBackendUnavailable, cause)
}
