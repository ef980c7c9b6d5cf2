package main

import (
	"fmt"
	"math/rand"

	"github.com/nnfwd/gradflow/config"
	"github.com/nnfwd/gradflow/x/math/nn"
)

// buildModel realizes a config.TrainingConfig's ordered layer specs as
// an nn.Sequential, He-initializing every learnable layer from rng.
func buildModel(specs []config.LayerSpec, rng *rand.Rand) (*nn.Sequential[float32], error) {
	layers := make([]nn.Layer[float32], 0, len(specs))
	for i, spec := range specs {
		name := fmt.Sprintf("%s-%d", spec.Type, i)
		switch spec.Type {
		case "dense":
			layers = append(layers, nn.NewDense[float32](name, spec.In, spec.Out, rng))
		case "relu":
			layers = append(layers, nn.NewReLU[float32](name))
		case "flatten":
			layers = append(layers, nn.NewFlatten[float32](name))
		case "conv1d":
			layers = append(layers, nn.NewConv1D[float32](name, spec.OutChannels, spec.InChannels, spec.KernelSize, spec.Stride, spec.Pad, rng))
		case "conv2d":
			layers = append(layers, nn.NewConv2D[float32](name, spec.OutChannels, spec.InChannels, spec.KernelHeight, spec.KernelWidth, spec.StrideH, spec.StrideW, spec.PadH, spec.PadW, rng))
		default:
			return nil, fmt.Errorf("buildModel: layer %d: unknown type %q", i, spec.Type)
		}
	}
	return nn.NewSequential[float32](layers...), nil
}
