// Package classifier holds the emergency speech model: a standardizing scaler, a dense network and the label
// encoding, persisted together as one matched artifact set.
package classifier

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/farcloser/tocsin/internal/features"
	"github.com/farcloser/tocsin/internal/types"
)

// Threshold above which a probability is classified as emergency.
const Threshold = 0.5

var (
	// ErrModelNotLoaded is returned when prediction is requested before a model is available.
	ErrModelNotLoaded = errors.New("model not loaded")
	// ErrModelNotFound is returned when an artifact of the set is missing from the store.
	ErrModelNotFound = errors.New("model artifacts not found")
	// ErrArtifactMismatch is returned when the stored artifacts do not belong together or to the serving layout.
	ErrArtifactMismatch = errors.New("model artifacts do not match")
	// ErrFeatureWidth is returned when a feature vector does not have the width the model was trained on.
	ErrFeatureWidth = errors.New("feature vector width does not match the model")
)

// Classifier is an immutable trained model. It is safe for concurrent use.
type Classifier struct {
	network *Network
	scaler  *Scaler
	labels  Labels
	stamp   Stamp
}

// Summary describes the model shape.
type Summary struct {
	InputShape  []int `json:"input_shape"`
	OutputShape []int `json:"output_shape"`
	TotalParams int   `json:"total_params"`
	Layers      []int `json:"layers"`
}

// Predict classifies one feature vector.
func (c *Classifier) Predict(vector types.FeatureVector) (types.Prediction, error) {
	if len(vector) != c.network.Inputs() {
		return types.Prediction{}, fmt.Errorf("%w: got %d, want %d", ErrFeatureWidth, len(vector), c.network.Inputs())
	}

	scaled := c.scaler.Transform(vector)
	probability := c.network.Probabilities(mat.NewDense(1, len(scaled), scaled))[0]

	if math.IsNaN(probability) {
		probability = 0
	}

	class := 0
	if probability > Threshold {
		class = 1
	}

	return types.Prediction{
		IsEmergency:       class == 1,
		Confidence:        probability,
		ClassLabel:        c.labels.Decode(class),
		FeaturesExtracted: len(vector),
	}, nil
}

// Summary returns the network shape and parameter count.
func (c *Classifier) Summary() Summary {
	return Summary{
		InputShape:  []int{c.network.Inputs()},
		OutputShape: []int{1},
		TotalParams: c.network.Params(),
		Layers:      c.network.Units(),
	}
}

// Stamp returns the artifact stamp. SetID is empty until the classifier is saved or when it was never persisted.
func (c *Classifier) Stamp() Stamp {
	return c.stamp
}

// Layout returns the feature layout the classifier was trained on.
func (c *Classifier) Layout() features.Layout {
	return c.stamp.Layout
}

// Labels returns the class encoding.
func (c *Classifier) Labels() Labels {
	return c.labels
}
