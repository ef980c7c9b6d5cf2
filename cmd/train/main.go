// Command gradflow trains a hand-rolled tensor/autograd model on an
// mnist1d-format dataset, per SPEC_FULL.md §9's CLI surface.
package main

import (
	"os"

	"github.com/nnfwd/gradflow/pkg/logger"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		logger.Log.Error().Err(err).Msg("gradflow failed")
		os.Exit(1)
	}
}
