package optim

import (
	"sync"

	"github.com/nnfwd/gradflow/x/math/autograd"
	"github.com/nnfwd/gradflow/x/math/tensor"
	"github.com/nnfwd/gradflow/x/math/tensor/types"
)

// Adam implements adaptive moment estimation with bias-corrected first
// and second moment running averages, per
// original_source/src/optimizer.h's AdamOptimizer:
//
//	gradient_norm    = gradient / batch_size
//	momentum        += (1-beta)  * (gradient_norm           - momentum)
//	momentum_sq     += (1-gamma) * (gradient_norm^2          - momentum_sq)
//	momentum_norm    = momentum    / (1 - beta^(t+1))
//	momentum_sq_norm = momentum_sq / (1 - gamma^(t+1))
//	param -= lr * momentum_norm / (sqrt(momentum_sq_norm) + epsilon)
//
// The bias-correction exponent t is a single counter shared across
// every parameter and incremented once per Step call, matching the
// reference's one time_stamp per optimize() pass rather than a
// per-parameter step count.
type Adam[T types.Float] struct {
	LR, Beta, Gamma, Epsilon T

	mu         sync.Mutex
	momentum   map[*autograd.Variable[T]]tensor.Tensor[T]
	momentumSq map[*autograd.Variable[T]]tensor.Tensor[T]
	timeStamp  int
}

// NewAdam constructs an Adam optimizer. beta and gamma are the first-
// and second-moment decay rates (commonly 0.9 and 0.999).
func NewAdam[T types.Float](lr, beta, gamma, epsilon T) *Adam[T] {
	if lr <= 0 {
		panic("optim.NewAdam: learning rate must be positive")
	}
	if beta < 0 || beta >= 1 {
		panic("optim.NewAdam: beta must be in [0, 1)")
	}
	if gamma < 0 || gamma >= 1 {
		panic("optim.NewAdam: gamma must be in [0, 1)")
	}
	if epsilon <= 0 {
		panic("optim.NewAdam: epsilon must be positive")
	}
	return &Adam[T]{
		LR: lr, Beta: beta, Gamma: gamma, Epsilon: epsilon,
		momentum:   make(map[*autograd.Variable[T]]tensor.Tensor[T]),
		momentumSq: make(map[*autograd.Variable[T]]tensor.Tensor[T]),
	}
}

func (a *Adam[T]) Step(params []*autograd.Variable[T], batchSize int) {
	a.mu.Lock()
	defer a.mu.Unlock()

	invBatch := T(1) / T(batchSize)
	oneMinusBeta := T(1) - a.Beta
	oneMinusGamma := T(1) - a.Gamma
	momentumScale := T(1) - powT(a.Beta, T(a.timeStamp+1))
	momentumSqScale := T(1) - powT(a.Gamma, T(a.timeStamp+1))

	for _, p := range params {
		if p == nil || !p.RequiresGrad {
			continue
		}
		mom, ok := a.momentum[p]
		if !ok {
			mom = tensor.New[T](p.Shape())
			a.momentum[p] = mom
		}
		momSq, ok := a.momentumSq[p]
		if !ok {
			momSq = tensor.New[T](p.Shape())
			a.momentumSq[p] = momSq
		}

		data, grad := p.Value.Data(), p.Grad.Data()
		momData, momSqData := mom.Data(), momSq.Data()
		for i := range data {
			gradNorm := grad[i] * invBatch
			momData[i] += oneMinusBeta * (gradNorm - momData[i])
			momentumNorm := momData[i] / momentumScale

			momSqData[i] += oneMinusGamma * (gradNorm*gradNorm - momSqData[i])
			momentumSqNorm := momSqData[i] / momentumSqScale

			data[i] -= a.LR * momentumNorm / (sqrtT(momentumSqNorm) + a.Epsilon)
		}
		mom.WrapForBroadcasting()
		momSq.WrapForBroadcasting()
		p.Value.WrapForBroadcasting()
		p.ZeroGrad()
	}
	a.timeStamp++
}
