package main

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/nnfwd/gradflow/x/math/autograd"
	"github.com/nnfwd/gradflow/x/math/tensor"
)

// writeCheckpoint writes every parameter's tensor, in order, to path:
// a leading parameter count followed by each tensor in
// tensor.Tensor.Serialize's format, per SPEC_FULL.md §7's binary
// checkpoint layout.
func writeCheckpoint(path string, params []*autograd.Variable[float32]) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("writeCheckpoint: creating %s: %w", path, err)
	}
	defer f.Close()

	if err := binary.Write(f, binary.NativeEndian, int64(len(params))); err != nil {
		return fmt.Errorf("writeCheckpoint: writing parameter count: %w", err)
	}
	for i, p := range params {
		if err := p.Value.Serialize(f); err != nil {
			return fmt.Errorf("writeCheckpoint: parameter %d: %w", i, err)
		}
	}
	return nil
}

// loadCheckpoint reads a file written by writeCheckpoint back into
// params, in the same order they were saved, overwriting each
// parameter's value in place. The checkpoint's parameter count and
// every tensor's shape must match params exactly.
func loadCheckpoint(path string, params []*autograd.Variable[float32]) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("loadCheckpoint: opening %s: %w", path, err)
	}
	defer f.Close()

	var count int64
	if err := binary.Read(f, binary.NativeEndian, &count); err != nil {
		return fmt.Errorf("loadCheckpoint: reading parameter count: %w", err)
	}
	if int(count) != len(params) {
		return fmt.Errorf("loadCheckpoint: checkpoint has %d parameters, model has %d", count, len(params))
	}

	for i, p := range params {
		loaded, err := tensor.Deserialize[float32](f)
		if err != nil {
			return fmt.Errorf("loadCheckpoint: parameter %d: %w", i, err)
		}
		if !loaded.Shape().Equal(p.Shape()) {
			return fmt.Errorf("loadCheckpoint: parameter %d shape %v disagrees with model shape %v", i, loaded.Shape(), p.Shape())
		}
		copy(p.Value.Data(), loaded.Data())
	}
	return nil
}
