package main

import (
	"github.com/spf13/cobra"

	"github.com/menta2k/memoryball/internal/config"
)

// overrides copies explicitly set flags over the loaded configuration.
type overrides struct {
	bindings []binding
}

type binding struct {
	name  string
	apply func(cfg *config.Config)
}

func (o *overrides) str(cmd *cobra.Command, name, def, usage string, set func(*config.Config, string)) {
	v := cmd.Flags().String(name, def, usage)
	o.bindings = append(o.bindings, binding{name, func(c *config.Config) { set(c, *v) }})
}

func (o *overrides) integer(cmd *cobra.Command, name string, def int, usage string, set func(*config.Config, int)) {
	v := cmd.Flags().Int(name, def, usage)
	o.bindings = append(o.bindings, binding{name, func(c *config.Config) { set(c, *v) }})
}

func (o *overrides) float(cmd *cobra.Command, name string, def float64, usage string, set func(*config.Config, float64)) {
	v := cmd.Flags().Float64(name, def, usage)
	o.bindings = append(o.bindings, binding{name, func(c *config.Config) { set(c, *v) }})
}

func (o *overrides) boolean(cmd *cobra.Command, name string, usage string, set func(*config.Config, bool)) {
	v := cmd.Flags().Bool(name, false, usage)
	o.bindings = append(o.bindings, binding{name, func(c *config.Config) { set(c, *v) }})
}

func (o *overrides) apply(cmd *cobra.Command, cfg *config.Config) error {
	for _, b := range o.bindings {
		if cmd.Flags().Changed(b.name) {
			b.apply(cfg)
		}
	}
	return cfg.Validate()
}

// bindPlanningFlags registers the flags shared by run and plan.
func bindPlanningFlags(cmd *cobra.Command, o *overrides) {
	d := config.Default()

	o.str(cmd, "mode", d.Processing.Mode, "Crop mode: auto|center|manual", func(c *config.Config, v string) { c.Processing.Mode = v })
	o.float(cmd, "crop-x", 0, "Manual crop left edge (px)", func(c *config.Config, v float64) { c.Processing.CropX = v })
	o.float(cmd, "crop-y", 0, "Manual crop top edge (px)", func(c *config.Config, v float64) { c.Processing.CropY = v })
	o.float(cmd, "crop-w", 0, "Manual crop width (px)", func(c *config.Config, v float64) { c.Processing.CropW = v })
	o.float(cmd, "crop-h", 0, "Manual crop height (px)", func(c *config.Config, v float64) { c.Processing.CropH = v })
	o.float(cmd, "pad", d.Processing.Pad, "Shrink the center box by this fraction", func(c *config.Config, v float64) { c.Processing.Pad = v })

	o.boolean(cmd, "no-detection", "Disable subject detection (auto mode falls back to center)", func(c *config.Config, v bool) { c.Detection.Enabled = !v })
	o.float(cmd, "min-face", d.Detection.MinFaceRatio, "Minimum subject size relative to the short side", func(c *config.Config, v float64) { c.Detection.MinFaceRatio = v })
	o.float(cmd, "circle-margin", d.Detection.CircleMargin, "Fraction of the side kept outside the circle on each edge", func(c *config.Config, v float64) { c.Detection.CircleMargin = v })
	o.str(cmd, "pigo-cascade", d.Detection.PigoCascade, "Pigo facefinder cascade file", func(c *config.Config, v string) { c.Detection.PigoCascade = v })
	o.str(cmd, "cascade-dir", d.Detection.CascadeDir, "Directory holding OpenCV Haar cascades", func(c *config.Config, v string) { c.Detection.CascadeDir = v })

	o.str(cmd, "priority", d.Planner.Priority, "Subject priority: largest|center|all", func(c *config.Config, v string) { c.Planner.Priority = v })
	o.boolean(cmd, "no-motion", "Disable the animated zoom", func(c *config.Config, v bool) { c.Planner.MotionEnabled = !v })
	o.str(cmd, "direction", d.Planner.Direction, "Zoom direction: in|out", func(c *config.Config, v string) { c.Planner.Direction = v })
	o.boolean(cmd, "fixed-window", "Keep the framing size constant and slide toward subjects", func(c *config.Config, v bool) { c.Planner.FixedWindow = v })
	o.float(cmd, "body-scale", d.Planner.BodyScale, "Wide endpoint scale", func(c *config.Config, v float64) { c.Planner.BodyScale = v })
	o.float(cmd, "face-margin", d.Planner.FaceMargin, "Tight endpoint margin", func(c *config.Config, v float64) { c.Planner.FaceMargin = v })

	o.boolean(cmd, "vision", "Use the vision language model as primary detector", func(c *config.Config, v bool) { c.Vision.Enabled = v })
	o.str(cmd, "vision-provider", d.Vision.Provider, "Vision backend: ollama|llamacpp", func(c *config.Config, v string) { c.Vision.Provider = v })
	o.str(cmd, "vision-url", d.Vision.URL, "Vision server URL", func(c *config.Config, v string) { c.Vision.URL = v })
	o.str(cmd, "vision-model", d.Vision.Model, "Vision model name", func(c *config.Config, v string) { c.Vision.Model = v })
}
