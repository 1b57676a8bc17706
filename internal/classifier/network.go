package classifier

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

type activation string

const (
	activationReLU    activation = "relu"
	activationSigmoid activation = "sigmoid"
)

var errInvalidNetwork = errors.New("invalid network")

func (a activation) apply(v float64) float64 {
	if a == activationSigmoid {
		return 1 / (1 + math.Exp(-v))
	}

	return math.Max(0, v)
}

// dense is a fully connected layer. Weights are stored inputs x outputs so a batch (rows = samples) multiplies
// on the left.
type dense struct {
	weights    *mat.Dense
	bias       []float64
	activation activation
	dropout    float64
}

// Network is a feed forward binary classifier: ReLU hidden layers and a single sigmoid output unit.
type Network struct {
	layers []*dense
}

// trace records what a training forward pass needs for backpropagation.
type trace struct {
	inputs  []*mat.Dense
	outputs []*mat.Dense
	masks   []*mat.Dense
}

func newNetwork(inputs int, hidden []int, dropout []float64, rng *rand.Rand) *Network {
	network := &Network{}
	fanIn := inputs

	sizes := append(append([]int{}, hidden...), 1)
	for i, fanOut := range sizes {
		layer := &dense{
			weights:    mat.NewDense(fanIn, fanOut, nil),
			bias:       make([]float64, fanOut),
			activation: activationReLU,
		}

		if i == len(sizes)-1 {
			layer.activation = activationSigmoid
		} else if i < len(dropout) {
			layer.dropout = dropout[i]
		}

		// Glorot uniform.
		limit := math.Sqrt(6 / float64(fanIn+fanOut))
		data := layer.weights.RawMatrix().Data
		for k := range data {
			data[k] = (2*rng.Float64() - 1) * limit
		}

		network.layers = append(network.layers, layer)
		fanIn = fanOut
	}

	return network
}

// Inputs is the expected feature vector width.
func (n *Network) Inputs() int {
	rows, _ := n.layers[0].weights.Dims()

	return rows
}

// Params is the number of trainable parameters.
func (n *Network) Params() int {
	total := 0

	for _, layer := range n.layers {
		rows, cols := layer.weights.Dims()
		total += rows*cols + cols
	}

	return total
}

// Units lists the width of every layer, output included.
func (n *Network) Units() []int {
	units := make([]int, len(n.layers))
	for i, layer := range n.layers {
		_, units[i] = layer.weights.Dims()
	}

	return units
}

// Probabilities returns the positive class probability for each row of x.
func (n *Network) Probabilities(x mat.Matrix) []float64 {
	out, _ := n.forward(x, nil)

	return mat.Col(nil, 0, out)
}

// forward runs the network on a batch. A non-nil rng enables inverted dropout and returns the trace.
func (n *Network) forward(x mat.Matrix, rng *rand.Rand) (*mat.Dense, *trace) {
	record := &trace{}
	current := mat.DenseCopyOf(x)

	for _, layer := range n.layers {
		record.inputs = append(record.inputs, current)

		next := &mat.Dense{}
		next.Mul(current, layer.weights)

		rows, cols := next.Dims()
		for i := range rows {
			row := next.RawRowView(i)
			for j := range cols {
				row[j] = layer.activation.apply(row[j] + layer.bias[j])
			}
		}

		var mask *mat.Dense
		if rng != nil && layer.dropout > 0 {
			keep := 1 - layer.dropout
			mask = mat.NewDense(rows, cols, nil)
			data := mask.RawMatrix().Data
			for k := range data {
				if rng.Float64() < keep {
					data[k] = 1 / keep
				}
			}

			next.MulElem(next, mask)
		}

		record.outputs = append(record.outputs, next)
		record.masks = append(record.masks, mask)
		current = next
	}

	return current, record
}

// gradients holds one step's parameter gradients, indexed like Network.layers.
type gradients struct {
	weights []*mat.Dense
	bias    [][]float64
}

// backward computes binary cross entropy gradients averaged over the batch.
func (n *Network) backward(record *trace, output *mat.Dense, targets []float64) *gradients {
	batch := len(targets)
	grads := &gradients{
		weights: make([]*mat.Dense, len(n.layers)),
		bias:    make([][]float64, len(n.layers)),
	}

	// Sigmoid with cross entropy: dL/dz = p - y.
	delta := mat.NewDense(batch, 1, nil)
	for i := range batch {
		delta.Set(i, 0, (output.At(i, 0)-targets[i])/float64(batch))
	}

	for l := len(n.layers) - 1; l >= 0; l-- {
		layer := n.layers[l]

		gradW := &mat.Dense{}
		gradW.Mul(record.inputs[l].T(), delta)
		grads.weights[l] = gradW

		_, cols := delta.Dims()
		gradB := make([]float64, cols)
		for j := range cols {
			gradB[j] = floats.Sum(mat.Col(nil, j, delta))
		}
		grads.bias[l] = gradB

		if l == 0 {
			break
		}

		previous := &mat.Dense{}
		previous.Mul(delta, layer.weights.T())

		activations := record.outputs[l-1]
		mask := record.masks[l-1]
		previous.Apply(func(i, j int, v float64) float64 {
			if activations.At(i, j) <= 0 {
				return 0
			}

			if mask != nil {
				return v * mask.At(i, j)
			}

			return v
		}, previous)

		delta = previous
	}

	return grads
}

func (n *Network) clone() *Network {
	out := &Network{layers: make([]*dense, len(n.layers))}
	for i, layer := range n.layers {
		out.layers[i] = &dense{
			weights:    mat.DenseCopyOf(layer.weights),
			bias:       append([]float64(nil), layer.bias...),
			activation: layer.activation,
			dropout:    layer.dropout,
		}
	}

	return out
}

type layerJSON struct {
	Inputs     int        `json:"inputs"`
	Outputs    int        `json:"outputs"`
	Activation activation `json:"activation"`
	Dropout    float64    `json:"dropout,omitempty"`
	Weights    []float64  `json:"weights"`
	Bias       []float64  `json:"bias"`
}

// MarshalJSON writes every layer with row major weights.
func (n *Network) MarshalJSON() ([]byte, error) {
	layers := make([]layerJSON, len(n.layers))
	for i, layer := range n.layers {
		rows, cols := layer.weights.Dims()
		layers[i] = layerJSON{
			Inputs:     rows,
			Outputs:    cols,
			Activation: layer.activation,
			Dropout:    layer.dropout,
			Weights:    mat.DenseCopyOf(layer.weights).RawMatrix().Data,
			Bias:       layer.bias,
		}
	}

	return json.Marshal(layers)
}

// UnmarshalJSON reads and validates a serialized network.
func (n *Network) UnmarshalJSON(data []byte) error {
	var layers []layerJSON
	if err := json.Unmarshal(data, &layers); err != nil {
		return err
	}

	if len(layers) == 0 {
		return fmt.Errorf("%w: no layers", errInvalidNetwork)
	}

	n.layers = make([]*dense, len(layers))

	for i, layer := range layers {
		if layer.Inputs <= 0 || layer.Outputs <= 0 ||
			len(layer.Weights) != layer.Inputs*layer.Outputs || len(layer.Bias) != layer.Outputs {
			return fmt.Errorf("%w: layer %d has inconsistent dimensions", errInvalidNetwork, i)
		}

		if i > 0 && layers[i-1].Outputs != layer.Inputs {
			return fmt.Errorf("%w: layer %d expects %d inputs, previous layer has %d outputs",
				errInvalidNetwork, i, layer.Inputs, layers[i-1].Outputs)
		}

		if layer.Activation != activationReLU && layer.Activation != activationSigmoid {
			return fmt.Errorf("%w: layer %d has unknown activation %q", errInvalidNetwork, i, layer.Activation)
		}

		n.layers[i] = &dense{
			weights:    mat.NewDense(layer.Inputs, layer.Outputs, layer.Weights),
			bias:       layer.Bias,
			activation: layer.Activation,
			dropout:    layer.Dropout,
		}
	}

	last := layers[len(layers)-1]
	if last.Outputs != 1 || last.Activation != activationSigmoid {
		return fmt.Errorf("%w: output layer must be a single sigmoid unit", errInvalidNetwork)
	}

	return nil
}
