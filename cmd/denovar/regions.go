package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/strandlab/denovar/internal/regions"
)

func newRegionsCmd() *cobra.Command {
	var window string

	cmd := &cobra.Command{
		Use:   "regions <list>",
		Short: "Validate and summarize a region list",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			regs, err := regions.ReadFile(args[0])
			if err != nil {
				return err
			}
			if window != "" {
				win, err := regions.ParseWindow(window)
				if err != nil {
					return err
				}
				regs = regions.ClipAll(regs, win)
			}
			if len(regs) == 0 {
				return fmt.Errorf("%s: %w", args[0], regions.ErrNoRegions)
			}

			contigs := make(map[string]bool)
			totalBases := 0
			for _, r := range regs {
				contigs[r.Contig] = true
				totalBases += r.Length()
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "regions: %d\n", len(regs))
			fmt.Fprintf(out, "contigs: %d\n", len(contigs))
			fmt.Fprintf(out, "bases:   %d\n", totalBases)
			return nil
		},
	}

	cmd.Flags().StringVar(&window, "window", "", "intersect the list with contig:start-end before summarizing")
	return cmd
}
