package main

import (
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/menta2k/memoryball/internal/config"
	"github.com/menta2k/memoryball/internal/logging"
)

type commandContext struct {
	configFlag    string
	logLevelFlag  string
	logFormatFlag string

	config     *config.Config
	configPath string
}

// load reads the configuration file and applies the persistent logging flags.
func (c *commandContext) load(cmd *cobra.Command) (*config.Config, error) {
	if c.config != nil {
		return c.config, nil
	}
	cfg, path, err := config.Load(strings.TrimSpace(c.configFlag))
	if err != nil {
		return nil, err
	}
	if c.logLevelFlag != "" {
		cfg.Logging.Level = c.logLevelFlag
	}
	if c.logFormatFlag != "" {
		cfg.Logging.Format = c.logFormatFlag
	}
	c.config, c.configPath = cfg, path
	return cfg, nil
}

func (c *commandContext) logger(cmd *cobra.Command, cfg *config.Config) (*slog.Logger, error) {
	return logging.New(logging.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cmd.ErrOrStderr(),
	})
}

func newRootCommand() *cobra.Command {
	ctx := &commandContext{}

	rootCmd := &cobra.Command{
		Use:           "memoryball",
		Short:         "Turn photos and short clips into circular, subject-framed video loops",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&ctx.configFlag, "config", "c", "", "Configuration file path (default "+config.GetConfigPath()+")")
	rootCmd.PersistentFlags().StringVar(&ctx.logLevelFlag, "log-level", "", "Log level: debug|info|warn|error")
	rootCmd.PersistentFlags().StringVar(&ctx.logFormatFlag, "log-format", "", "Log format: console|json")

	rootCmd.AddCommand(newRunCommand(ctx))
	rootCmd.AddCommand(newPlanCommand(ctx))
	rootCmd.AddCommand(newConfigCommand(ctx))
	rootCmd.AddCommand(newVersionCommand())

	return rootCmd
}
