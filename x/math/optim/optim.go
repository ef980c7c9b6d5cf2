// Package optim implements the parameter update rules from
// SPEC_FULL.md §4.11: plain SGD, SGD with momentum, and Adam, each
// operating directly on *autograd.Variable[T] parameters and
// normalizing the accumulated gradient by 1/batch_size before applying
// the step.
//
// Grounded on original_source/src/optimizer.h's
// StandardOptimizer/MomentumOptimizer/AdamOptimizer for the exact
// update formulas, and
// itohio-EasyRobot/pkg/core/math/learn/optimizer.go for the Go idiom:
// one type per rule, a constructor that panics on invalid
// hyperparameters, and a per-batch Update/Step method.
package optim

import (
	"math"

	"github.com/chewxy/math32"

	"github.com/nnfwd/gradflow/x/math/autograd"
	"github.com/nnfwd/gradflow/x/math/tensor/types"
)

// Optimizer is satisfied by SGD, Momentum, and Adam: Step consumes one
// batch's accumulated gradients across params, applies the rule's
// update, and zeros every parameter's gradient for the next batch.
type Optimizer[T types.Float] interface {
	Step(params []*autograd.Variable[T], batchSize int)
}

// powT computes base**exp for either float instantiation, mirroring
// x/math/primitive/kernel's any(...).(T) dispatch pattern since
// chewxy/math32 has no generic entry point.
func powT[T types.Float](base, exp T) T {
	switch b := any(base).(type) {
	case float32:
		return any(math32.Pow(b, any(exp).(float32))).(T)
	case float64:
		return any(math.Pow(b, any(exp).(float64))).(T)
	default:
		panic("optim: powT: unsupported type")
	}
}

// sqrtT is powT's sqrt counterpart, used by Adam's denominator.
func sqrtT[T types.Float](v T) T {
	switch x := any(v).(type) {
	case float32:
		return any(math32.Sqrt(x)).(T)
	case float64:
		return any(math.Sqrt(x)).(T)
	default:
		panic("optim: sqrtT: unsupported type")
	}
}
