package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/menta2k/memoryball"
)

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "memoryball %s (%s %s/%s)\n", memoryball.GetVersion(), runtime.Version(), runtime.GOOS, runtime.GOARCH)
			return nil
		},
	}
}
