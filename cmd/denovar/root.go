package main

import (
	"github.com/spf13/cobra"
)

var cfgPath string

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "denovar",
		Short:        "Regional de novo assembly variant calling",
		Long:         "denovar drives the cortex_var/stampy toolchain over a whitelist of target regions, producing one merged VCF per sample.",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "path to the YAML configuration file")

	root.AddCommand(newRunCmd())
	root.AddCommand(newRegionsCmd())
	root.AddCommand(newVersionCmd())
	return root
}
