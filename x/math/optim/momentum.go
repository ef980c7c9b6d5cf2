package optim

import (
	"sync"

	"github.com/nnfwd/gradflow/x/math/autograd"
	"github.com/nnfwd/gradflow/x/math/tensor"
	"github.com/nnfwd/gradflow/x/math/tensor/types"
)

// Momentum implements SGD with an exponential moving average of the
// normalized gradient:
//
//	gradient_norm = gradient / batch_size
//	momentum += (1-beta) * (gradient_norm - momentum)
//	param -= lr * momentum
type Momentum[T types.Float] struct {
	LR, Beta T

	mu    sync.Mutex
	state map[*autograd.Variable[T]]tensor.Tensor[T]
}

// NewMomentum constructs a Momentum optimizer. beta is the decay rate
// applied to the running average, so beta close to 1 remembers more
// history.
func NewMomentum[T types.Float](lr, beta T) *Momentum[T] {
	if lr <= 0 {
		panic("optim.NewMomentum: learning rate must be positive")
	}
	if beta < 0 || beta >= 1 {
		panic("optim.NewMomentum: beta must be in [0, 1)")
	}
	return &Momentum[T]{LR: lr, Beta: beta, state: make(map[*autograd.Variable[T]]tensor.Tensor[T])}
}

func (m *Momentum[T]) Step(params []*autograd.Variable[T], batchSize int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	invBatch := T(1) / T(batchSize)
	oneMinusBeta := T(1) - m.Beta

	for _, p := range params {
		if p == nil || !p.RequiresGrad {
			continue
		}
		mom, ok := m.state[p]
		if !ok {
			mom = tensor.New[T](p.Shape())
			m.state[p] = mom
		}

		data, grad, momData := p.Value.Data(), p.Grad.Data(), mom.Data()
		for i := range data {
			gradNorm := grad[i] * invBatch
			momData[i] += oneMinusBeta * (gradNorm - momData[i])
			data[i] -= m.LR * momData[i]
		}
		mom.WrapForBroadcasting()
		p.Value.WrapForBroadcasting()
		p.ZeroGrad()
	}
}
