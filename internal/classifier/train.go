package classifier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"

	"github.com/farcloser/tocsin/internal/features"
)

var (
	// ErrInsufficientData is returned when a training set cannot be split into both classes.
	ErrInsufficientData = errors.New("insufficient training data")

	errShape = errors.New("inconsistent training data")
)

// TrainOptions configures Train. The learning rate is multiplied by LearningRateFactor after
// LearningRatePatience epochs without validation loss improvement, and training stops after Patience such epochs.
type TrainOptions struct {
	Layout               features.Layout
	Hidden               []int
	Dropout              []float64
	LearningRate         float64
	MinLearningRate      float64
	LearningRateFactor   float64
	LearningRatePatience int
	BatchSize            int
	Epochs               int
	Patience             int
	ValidationSplit      float64
	Seed                 uint64
}

// DefaultTrainOptions returns the reference architecture and schedule.
func DefaultTrainOptions() TrainOptions {
	return TrainOptions{
		Layout:               features.DefaultLayout(),
		Hidden:               []int{256, 128, 64, 32, 16},
		Dropout:              []float64{0.3, 0.3, 0.2, 0.2},
		LearningRate:         0.001,
		MinLearningRate:      1e-7,
		LearningRateFactor:   0.5,
		LearningRatePatience: 10,
		BatchSize:            32,
		Epochs:               100,
		Patience:             15,
		ValidationSplit:      0.2,
		Seed:                 42,
	}
}

func (o *TrainOptions) applyDefaults() {
	defaults := DefaultTrainOptions()

	if o.Layout == (features.Layout{}) {
		o.Layout = defaults.Layout
	}

	if len(o.Hidden) == 0 {
		o.Hidden = defaults.Hidden
		if o.Dropout == nil {
			o.Dropout = defaults.Dropout
		}
	}

	if o.LearningRate <= 0 {
		o.LearningRate = defaults.LearningRate
	}

	if o.MinLearningRate <= 0 {
		o.MinLearningRate = defaults.MinLearningRate
	}

	if o.LearningRateFactor <= 0 || o.LearningRateFactor >= 1 {
		o.LearningRateFactor = defaults.LearningRateFactor
	}

	if o.LearningRatePatience <= 0 {
		o.LearningRatePatience = defaults.LearningRatePatience
	}

	if o.BatchSize <= 0 {
		o.BatchSize = defaults.BatchSize
	}

	if o.Epochs <= 0 {
		o.Epochs = defaults.Epochs
	}

	if o.Patience <= 0 {
		o.Patience = defaults.Patience
	}

	if o.ValidationSplit <= 0 || o.ValidationSplit >= 1 {
		o.ValidationSplit = defaults.ValidationSplit
	}
}

// Epoch is one row of training history.
type Epoch struct {
	Loss               float64 `json:"loss"`
	Accuracy           float64 `json:"accuracy"`
	ValidationLoss     float64 `json:"val_loss"`
	ValidationAccuracy float64 `json:"val_accuracy"`
	LearningRate       float64 `json:"learning_rate"`
}

// Metrics summarizes binary classification quality. Confusion is indexed [actual][predicted].
type Metrics struct {
	Accuracy  float64   `json:"accuracy"`
	Precision float64   `json:"precision"`
	Recall    float64   `json:"recall"`
	F1        float64   `json:"f1"`
	Confusion [2][2]int `json:"confusion"`
}

// History is the outcome of a training run.
type History struct {
	Epochs          []Epoch `json:"epochs"`
	BestEpoch       int     `json:"best_epoch"`
	TrainSamples    int     `json:"train_samples"`
	ValidateSamples int     `json:"validation_samples"`
	Validation      Metrics `json:"validation"`
}

// Train fits a classifier on samples (one feature vector per row) and their class labels. The data set is
// standardized, split into stratified training and validation subsets, and the network weights with the lowest
// validation loss are kept.
func Train(ctx context.Context, samples [][]float64, classes []string, opts TrainOptions) (*Classifier, *History, error) {
	opts.applyDefaults()

	if len(samples) != len(classes) {
		return nil, nil, fmt.Errorf("%w: %d samples, %d labels", errShape, len(samples), len(classes))
	}

	labels := DefaultLabels()
	width := opts.Layout.Features
	x := mat.NewDense(max(len(samples), 1), width, nil)
	y := make([]float64, len(samples))

	for i, sample := range samples {
		if len(sample) != width {
			return nil, nil, fmt.Errorf("%w: sample %d has %d features, want %d", errShape, i, len(sample), width)
		}

		target, err := labels.Encode(classes[i])
		if err != nil {
			return nil, nil, err
		}

		x.SetRow(i, sample)
		y[i] = target
	}

	rng := rand.New(rand.NewPCG(opts.Seed, opts.Seed))

	trainIdx, valIdx, err := stratifiedSplit(y, opts.ValidationSplit, rng)
	if err != nil {
		return nil, nil, err
	}

	scaler := FitScaler(x)
	scaled := scaler.TransformMatrix(x)
	xTrain, yTrain := gather(scaled, y, trainIdx)
	xVal, yVal := gather(scaled, y, valIdx)

	network := newNetwork(width, opts.Hidden, opts.Dropout, rng)
	optimizer := newAdam(network, opts.LearningRate)
	history := &History{TrainSamples: len(trainIdx), ValidateSamples: len(valIdx)}

	best := network.clone()
	bestLoss := math.Inf(1)
	stale, plateau := 0, 0
	order := append([]int(nil), trainIdx...)

	slog.Info("classifier.Train", "train", len(trainIdx), "validation", len(valIdx), "features", width,
		"params", network.Params())

	for epoch := range opts.Epochs {
		if err = ctx.Err(); err != nil {
			return nil, nil, err
		}

		rng.Shuffle(len(order), func(i, j int) {
			order[i], order[j] = order[j], order[i]
		})

		for start := 0; start < len(order); start += opts.BatchSize {
			batchX, batchY := gather(scaled, y, order[start:min(start+opts.BatchSize, len(order))])
			output, record := network.forward(batchX, rng)
			optimizer.apply(network, network.backward(record, output, batchY))
		}

		trainLoss, trainAcc := evaluate(network, xTrain, yTrain)
		valLoss, valAcc := evaluate(network, xVal, yVal)
		history.Epochs = append(history.Epochs, Epoch{
			Loss:               trainLoss,
			Accuracy:           trainAcc,
			ValidationLoss:     valLoss,
			ValidationAccuracy: valAcc,
			LearningRate:       optimizer.rate,
		})

		slog.Debug("classifier.Train", "epoch", epoch+1, "loss", trainLoss, "accuracy", trainAcc,
			"val_loss", valLoss, "val_accuracy", valAcc)

		if valLoss < bestLoss {
			bestLoss = valLoss
			best = network.clone()
			history.BestEpoch = epoch + 1
			stale, plateau = 0, 0

			continue
		}

		stale++
		plateau++

		if plateau >= opts.LearningRatePatience {
			optimizer.rate = math.Max(optimizer.rate*opts.LearningRateFactor, opts.MinLearningRate)
			plateau = 0
		}

		if stale >= opts.Patience {
			slog.Info("classifier.Train", "stage", "early stop", "epoch", epoch+1, "best", history.BestEpoch)

			break
		}
	}

	history.Validation = measure(best.Probabilities(xVal), yVal)

	return &Classifier{
		network: best,
		scaler:  scaler,
		labels:  labels,
		stamp:   Stamp{LayoutVersion: LayoutVersion, Layout: opts.Layout},
	}, history, nil
}

// stratifiedSplit holds out fraction of each class for validation. Each class needs at least two samples.
func stratifiedSplit(y []float64, fraction float64, rng *rand.Rand) ([]int, []int, error) {
	var byClass [2][]int

	for i, target := range y {
		byClass[int(target)] = append(byClass[int(target)], i)
	}

	var train, validate []int

	for class, indices := range byClass {
		if len(indices) < 2 {
			return nil, nil, fmt.Errorf("%w: class %q has %d samples, need at least 2",
				ErrInsufficientData, DefaultLabels().Decode(class), len(indices))
		}

		rng.Shuffle(len(indices), func(i, j int) {
			indices[i], indices[j] = indices[j], indices[i]
		})

		held := int(math.Round(float64(len(indices)) * fraction))
		held = min(max(held, 1), len(indices)-1)

		validate = append(validate, indices[:held]...)
		train = append(train, indices[held:]...)
	}

	return train, validate, nil
}

func gather(x *mat.Dense, y []float64, indices []int) (*mat.Dense, []float64) {
	_, cols := x.Dims()
	out := mat.NewDense(len(indices), cols, nil)
	targets := make([]float64, len(indices))

	for i, index := range indices {
		out.SetRow(i, x.RawRowView(index))
		targets[i] = y[index]
	}

	return out, targets
}

func evaluate(network *Network, x *mat.Dense, y []float64) (float64, float64) {
	probabilities := network.Probabilities(x)

	return binaryCrossEntropy(probabilities, y), measure(probabilities, y).Accuracy
}

func binaryCrossEntropy(probabilities, y []float64) float64 {
	const clip = 1e-7

	var total float64

	for i, p := range probabilities {
		p = math.Min(math.Max(p, clip), 1-clip)
		total -= y[i]*math.Log(p) + (1-y[i])*math.Log(1-p)
	}

	return total / float64(len(probabilities))
}

func measure(probabilities, y []float64) Metrics {
	var metrics Metrics

	for i, p := range probabilities {
		predicted := 0
		if p > Threshold {
			predicted = 1
		}

		metrics.Confusion[int(y[i])][predicted]++
	}

	tn, fp := metrics.Confusion[0][0], metrics.Confusion[0][1]
	fn, tp := metrics.Confusion[1][0], metrics.Confusion[1][1]

	if total := tn + fp + fn + tp; total > 0 {
		metrics.Accuracy = float64(tn+tp) / float64(total)
	}

	if tp+fp > 0 {
		metrics.Precision = float64(tp) / float64(tp+fp)
	}

	if tp+fn > 0 {
		metrics.Recall = float64(tp) / float64(tp+fn)
	}

	if metrics.Precision+metrics.Recall > 0 {
		metrics.F1 = 2 * metrics.Precision * metrics.Recall / (metrics.Precision + metrics.Recall)
	}

	return metrics
}
