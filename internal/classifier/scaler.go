package classifier

import (
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Scaler standardizes each feature to zero mean and unit variance.
type Scaler struct {
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
}

// FitScaler computes per column population mean and standard deviation. Constant columns get a unit scale.
func FitScaler(x *mat.Dense) *Scaler {
	rows, cols := x.Dims()
	scaler := &Scaler{Mean: make([]float64, cols), Scale: make([]float64, cols)}
	column := make([]float64, rows)

	for j := range cols {
		mat.Col(column, j, x)

		mean, std := stat.PopMeanStdDev(column, nil)
		if std == 0 {
			std = 1
		}

		scaler.Mean[j] = mean
		scaler.Scale[j] = std
	}

	return scaler
}

// Transform returns a standardized copy of values.
func (s *Scaler) Transform(values []float64) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = (v - s.Mean[i]) / s.Scale[i]
	}

	return out
}

// TransformMatrix returns a standardized copy of x, one sample per row.
func (s *Scaler) TransformMatrix(x *mat.Dense) *mat.Dense {
	rows, cols := x.Dims()
	out := mat.NewDense(rows, cols, nil)
	out.Apply(func(_, j int, v float64) float64 {
		return (v - s.Mean[j]) / s.Scale[j]
	}, x)

	return out
}

// Width is the number of features the scaler was fitted on.
func (s *Scaler) Width() int {
	return len(s.Mean)
}
