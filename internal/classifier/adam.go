package classifier

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

const (
	adamBeta1   = 0.9
	adamBeta2   = 0.999
	adamEpsilon = 1e-7
)

type moments struct {
	weights []float64
	bias    []float64
}

// adam implements the Adam optimizer with bias corrected moment estimates.
type adam struct {
	rate   float64
	step   int
	first  []moments
	second []moments
}

func newAdam(network *Network, rate float64) *adam {
	opt := &adam{rate: rate}

	for _, layer := range network.layers {
		rows, cols := layer.weights.Dims()
		opt.first = append(opt.first, moments{make([]float64, rows*cols), make([]float64, cols)})
		opt.second = append(opt.second, moments{make([]float64, rows*cols), make([]float64, cols)})
	}

	return opt
}

func (a *adam) apply(network *Network, grads *gradients) {
	a.step++
	correction1 := 1 - math.Pow(adamBeta1, float64(a.step))
	correction2 := 1 - math.Pow(adamBeta2, float64(a.step))

	update := func(params, grad, first, second []float64) {
		for k := range params {
			first[k] = adamBeta1*first[k] + (1-adamBeta1)*grad[k]
			second[k] = adamBeta2*second[k] + (1-adamBeta2)*grad[k]*grad[k]
			params[k] -= a.rate * (first[k] / correction1) / (math.Sqrt(second[k]/correction2) + adamEpsilon)
		}
	}

	for l, layer := range network.layers {
		update(layer.weights.RawMatrix().Data, denseData(grads.weights[l]), a.first[l].weights, a.second[l].weights)
		update(layer.bias, grads.bias[l], a.first[l].bias, a.second[l].bias)
	}
}

// denseData returns the row major contents of m without stride gaps.
func denseData(m *mat.Dense) []float64 {
	raw := m.RawMatrix()
	if raw.Stride == raw.Cols {
		return raw.Data[:raw.Rows*raw.Cols]
	}

	return mat.DenseCopyOf(m).RawMatrix().Data
}
