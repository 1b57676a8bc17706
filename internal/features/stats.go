package features

import (
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// meanStd returns the population mean and standard deviation.
func meanStd(values []float64) (float64, float64) {
	if len(values) == 0 {
		return 0, 0
	}

	return stat.PopMeanStdDev(values, nil)
}

// pooled returns mean and standard deviation over every element of m.
func pooled(m *mat.Dense) (float64, float64) {
	rows, cols := m.Dims()
	values := make([]float64, 0, rows*cols)

	for i := range rows {
		values = append(values, m.RawRowView(i)...)
	}

	return meanStd(values)
}

// rowStats returns per row means followed by per row standard deviations.
func rowStats(m *mat.Dense) ([]float64, []float64) {
	rows, _ := m.Dims()
	means := make([]float64, rows)
	stds := make([]float64, rows)

	for i := range rows {
		means[i], stds[i] = meanStd(m.RawRowView(i))
	}

	return means, stds
}
