package pipeline

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/sync/errgroup"

	"github.com/menta2k/memoryball/internal/config"
	"github.com/menta2k/memoryball/internal/logging"
	"github.com/menta2k/memoryball/internal/utils"
	"github.com/menta2k/memoryball/pkg/detection"
)

// Batch processes many items over a pool of workers. Each worker builds its own detector
// chains, so no backend is ever shared between goroutines.
type Batch struct {
	cfg    *config.Config
	logger *slog.Logger
	runID  string

	stills *detection.ChainBuilder
	video  *detection.ChainBuilder

	// Progress receives the progress bar; nil disables it.
	Progress io.Writer
}

// NewBatch creates a batch driver for the configured detector chain. The progress bar is
// shown on stderr when it is a terminal.
func NewBatch(cfg *config.Config, logger *slog.Logger) *Batch {
	return NewBatchWithFactories(cfg, Factories(cfg, false), Factories(cfg, true), logger)
}

// NewBatchWithFactories creates a batch driver over explicit detector chains
func NewBatchWithFactories(cfg *config.Config, stills, video []detection.StageFactory, logger *slog.Logger) *Batch {
	if logger == nil {
		logger = slog.Default()
	}
	runID := uuid.NewString()
	logger = logger.With(logging.FieldRunID, runID)

	b := &Batch{
		cfg:    cfg,
		logger: logger,
		runID:  runID,
		stills: detection.NewChainBuilder(stills, logger),
		video:  detection.NewChainBuilder(video, logger),
	}
	if isTerminal(os.Stderr) {
		b.Progress = os.Stderr
	}
	return b
}

func isTerminal(f *os.File) bool {
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// RunID identifies this batch in logs
func (b *Batch) RunID() string {
	return b.runID
}

// Unavailable lists detector backends disabled for the run
func (b *Batch) Unavailable() map[string]error {
	out := b.stills.Unavailable()
	for k, v := range b.video.Unavailable() {
		out[k] = v
	}
	return out
}

// NewProcessor builds a worker with its own backend instances. The caller must Close it.
func (b *Batch) NewProcessor() *Processor {
	return NewProcessor(b.cfg, b.stills.Build(), b.video.Build(), b.logger)
}

// Run processes paths with cfg.Processing.Threads workers. Item failures are recorded in the
// summary; only cancellation of ctx stops the batch early.
func (b *Batch) Run(ctx context.Context, paths []string) (Summary, error) {
	start := time.Now()
	summary := Summary{RunID: b.runID, Results: make([]ItemResult, len(paths))}
	if len(paths) == 0 {
		return summary, nil
	}

	workers := min(max(1, b.cfg.Processing.Threads), len(paths))
	b.logger.Info("batch started", "items", len(paths), "workers", workers)

	bar := b.newProgressBar(len(paths))

	type job struct {
		index int
		path  string
	}
	jobs := make(chan job)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(jobs)
		for i, path := range paths {
			select {
			case jobs <- job{index: i, path: path}:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	for w := 0; w < workers; w++ {
		g.Go(func() error {
			proc := b.NewProcessor()
			defer proc.Close()

			for j := range jobs {
				summary.Results[j.index] = proc.Process(gctx, j.path)
				if bar != nil {
					_ = bar.Add(1)
				}
			}
			return nil
		})
	}

	err := g.Wait()
	if bar != nil {
		_ = bar.Finish()
	}

	for i := range summary.Results {
		if summary.Results[i].Path == "" {
			summary.Results[i] = ItemResult{Path: paths[i], Status: StatusFailed, Err: &ItemError{Path: paths[i], Err: context.Canceled}}
		}
	}
	summary.Elapsed = time.Since(start)
	summary.count()

	b.logger.Info("batch finished",
		"processed", summary.Processed,
		"skipped", summary.Skipped,
		"failed", summary.Failed,
		"elapsed", summary.Elapsed.Round(time.Millisecond))

	if err == nil {
		err = ctx.Err()
	}
	return summary, err
}

func (b *Batch) newProgressBar(total int) *progressbar.ProgressBar {
	if b.Progress == nil {
		return nil
	}
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(b.Progress),
		progressbar.OptionSetDescription("memoryball"),
		progressbar.OptionShowCount(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)
}

// Summary is the outcome of a batch
type Summary struct {
	RunID     string
	Results   []ItemResult
	Processed int
	Skipped   int
	Failed    int
	Elapsed   time.Duration
}

func (s *Summary) count() {
	s.Processed, s.Skipped, s.Failed = 0, 0, 0
	for _, r := range s.Results {
		switch r.Status {
		case StatusProcessed:
			s.Processed++
		case StatusSkipped:
			s.Skipped++
		case StatusFailed:
			s.Failed++
		}
	}
}

// Errors returns the per-item failures in input order
func (s Summary) Errors() []error {
	var errs []error
	for _, r := range s.Results {
		if r.Err != nil {
			errs = append(errs, r.Err)
		}
	}
	return errs
}

// Table renders the per-item results as a table
func (s Summary) Table() string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.Style().Format.Header = text.FormatDefault
	tw.Style().Format.Footer = text.FormatDefault
	tw.AppendHeader(table.Row{"Source", "Kind", "Status", "Frames", "Size", "Time", "Error"})

	for _, r := range s.Results {
		errText := ""
		if r.Err != nil {
			errText = r.Err.Error()
		}
		frames, size, elapsed := "", "", ""
		if r.Status == StatusProcessed {
			frames = strconv.Itoa(r.Frames)
			size = utils.FormatFileSize(r.Bytes)
			elapsed = r.Elapsed.Round(10 * time.Millisecond).String()
		}
		tw.AppendRow(table.Row{r.Path, string(r.Kind), string(r.Status), frames, size, elapsed, errText})
	}

	tw.AppendFooter(table.Row{
		"total " + strconv.Itoa(len(s.Results)),
		"",
		strconv.Itoa(s.Processed) + " ok / " + strconv.Itoa(s.Skipped) + " skipped / " + strconv.Itoa(s.Failed) + " failed",
		"", "", s.Elapsed.Round(time.Second).String(), "",
	})
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 4, Align: text.AlignRight},
		{Number: 5, Align: text.AlignRight},
		{Number: 6, Align: text.AlignRight},
		{Number: 7, WidthMax: 60},
	})
	return tw.Render()
}
