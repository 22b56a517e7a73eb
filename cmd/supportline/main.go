// Supportline is a multimodal technical-support service: it answers text or
// voice questions, optionally with a screenshot, from a local knowledge base
// and replies with text plus a spoken version of the answer.
//
// Usage:
//
//	supportline serve [--config /path/to/supportline.yaml]
//	supportline ingest [--config ...] [files...]
//	supportline version
package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"
)

// version is set at build time via ldflags.
var version = "dev"

// @title        Etau Inc. Intelligent Support API
// @version      1.0
// @description  Multimodal technical support: text or voice questions, optional screenshots, spoken answers.
// @BasePath     /
// @schemes      http https
func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configFile string

	cmd := &cobra.Command{
		Use:           "supportline",
		Short:         "Intelligent multimodal support API for Etau Inc.",
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
	cmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "path to config file (e.g. configs/supportline.yaml)")

	cmd.AddCommand(
		newServeCommand(&configFile),
		newIngestCommand(&configFile),
		newVersionCommand(),
	)
	return cmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "supportline %s (%s)\n", version, runtime.Version())
		},
	}
}
