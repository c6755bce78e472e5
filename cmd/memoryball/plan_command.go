package main

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/menta2k/memoryball/internal/utils"
	"github.com/menta2k/memoryball/pkg/analyzer"
	"github.com/menta2k/memoryball/pkg/detection"
	"github.com/menta2k/memoryball/pkg/pipeline"
	"github.com/menta2k/memoryball/pkg/processing"
)

func newPlanCommand(ctx *commandContext) *cobra.Command {
	o := &overrides{}
	var overlay string
	var visionCheck bool

	cmd := &cobra.Command{
		Use:   "plan <image|url>",
		Short: "Print the detections and crop plan for one image as JSON",
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

			img, err := analyzer.New().LoadImageSmart(args[0])
			if err != nil {
				return err
			}

			if visionCheck {
				reply, err := pipeline.CheckVision(cmd.Context(), cfg, img)
				if err != nil {
					return fmt.Errorf("vision check: %w", err)
				}
				logger.Info("vision check", "model", cfg.Vision.Model, "reply", reply)
			}

			stages := detection.NewChainBuilder(pipeline.Factories(cfg, false), logger).Build()
			proc := pipeline.NewProcessor(cfg, stages, nil, logger)
			defer proc.Close()

			plan, err := proc.PlanImage(cmd.Context(), img)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(plan); err != nil {
				return err
			}

			if overlay == "" {
				return nil
			}
			if err := utils.EnsureDir(filepath.Dir(overlay)); err != nil {
				return err
			}
			renderer := processing.NewProcessor()
			debug := renderer.CreateDebugOverlay(img, plan.Detection.Relevant, plan.Crop, cfg.Detection.CircleMargin)
			format := strings.TrimPrefix(utils.GetFileExtension(overlay), ".")
			if err := renderer.SaveImage(debug, overlay, format, cfg.Processing.Quality, false); err != nil {
				return fmt.Errorf("write overlay: %w", err)
			}
			logger.Info("overlay written", "path", overlay)
			return nil
		},
	}

	bindPlanningFlags(cmd, o)
	cmd.Flags().BoolVar(&visionCheck, "vision-check", false, "Ask the vision model to describe the image before planning")
	cmd.Flags().StringVar(&overlay, "overlay", "", "Write a debug image with detections and crop boxes drawn")
	return cmd
}
