package main

import (
	"github.com/spf13/cobra"
)

// newRootCmd builds the gradflow command tree: a single train
// subcommand today, with room left for eval/serve-style additions
// later without restructuring.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gradflow",
		Short: "Train from-scratch autograd models on mnist1d-format datasets",
	}
	cmd.AddCommand(newTrainCmd())
	return cmd
}
