package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	requestPath string
	outputJSON  bool
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "reelrender",
		Short:         "Render timed image segments and a voiceover into a vertical MP4",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&requestPath, "request", "", "Path to a render request (.json, .yaml or .yml)")
	cmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "Output machine-readable JSON")

	cmd.AddCommand(newRenderCmd())
	cmd.AddCommand(newPlanCmd())
	return cmd
}
