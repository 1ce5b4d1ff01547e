package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/strandlab/denovar/internal/runner"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "denovar %s (%s)\n", runner.Version, runner.GitSHA)
		},
	}
}
