package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/menta2k/memoryball/internal/config"
	"github.com/menta2k/memoryball/internal/utils"
	"github.com/menta2k/memoryball/pkg/ffmpeg"
	"github.com/menta2k/memoryball/pkg/pipeline"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	o := &overrides{}
	var noProgress bool

	cmd := &cobra.Command{
		Use:   "run <input>",
		Short: "Render every photo and video under input into circular clips",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.load(cmd)
			if err != nil {
				return err
			}
			if err := o.apply(cmd, cfg); err != nil {
				return err
			}
			logger, err := ctx.logger(cmd, cfg)
			if err != nil {
				return err
			}

			if err := ffmpeg.Available(); err != nil {
				return err
			}

			paths, err := utils.ListMediaFiles(args[0])
			if err != nil {
				return err
			}
			if len(paths) == 0 {
				return fmt.Errorf("no supported images or videos found in %s", args[0])
			}

			batch := pipeline.NewBatch(cfg, logger)
			if noProgress {
				batch.Progress = nil
			}
			summary, runErr := batch.Run(cmd.Context(), paths)

			fmt.Fprintln(cmd.OutOrStdout(), summary.Table())
			for name, err := range batch.Unavailable() {
				fmt.Fprintf(cmd.ErrOrStderr(), "detector %s unavailable: %v\n", name, err)
			}
			if runErr != nil {
				return runErr
			}
			if summary.Failed > 0 {
				return fmt.Errorf("%d of %d items failed: %w", summary.Failed, len(paths), errors.Join(summary.Errors()...))
			}
			return nil
		},
	}

	d := config.Default()
	o.str(cmd, "output", d.Processing.OutputDir, "Output directory", func(c *config.Config, v string) { c.Processing.OutputDir = v })
	o.integer(cmd, "size", d.Processing.Size, "Output side length in pixels (even)", func(c *config.Config, v int) { c.Processing.Size = v })
	o.integer(cmd, "threads", d.Processing.Threads, "Number of items processed in parallel", func(c *config.Config, v int) { c.Processing.Threads = v })
	o.boolean(cmd, "overwrite", "Re-render items whose output is newer than the source", func(c *config.Config, v bool) { c.Processing.Overwrite = v })
	o.boolean(cmd, "preview", "Also write a masked still of the final crop", func(c *config.Config, v bool) { c.Processing.Preview = v })
	o.str(cmd, "image-format", d.Processing.ImageFormat, "Preview image format: jpg|png|webp", func(c *config.Config, v string) { c.Processing.ImageFormat = v })
	o.float(cmd, "duration", d.Sequence.Duration, "Clip length for stills (seconds)", func(c *config.Config, v float64) { c.Sequence.Duration = v })
	o.str(cmd, "fps", d.Sequence.FPS, "Output frame rate, or \"keep\"", func(c *config.Config, v string) { c.Sequence.FPS = v })
	o.str(cmd, "preset", d.Encoder.Preset, "x264 preset", func(c *config.Config, v string) { c.Encoder.Preset = v })
	o.integer(cmd, "crf", d.Encoder.CRF, "x264 constant rate factor", func(c *config.Config, v int) { c.Encoder.CRF = v })
	o.boolean(cmd, "no-audio", "Drop the audio track of videos", func(c *config.Config, v bool) { c.Encoder.KeepAudio = !v })
	bindPlanningFlags(cmd, o)

	cmd.Flags().BoolVar(&noProgress, "no-progress", false, "Hide the progress bar")
	return cmd
}
