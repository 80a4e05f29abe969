package risk

import (
	"gonum.org/v1/gonum/stat"
)

// StandardScaler centres each column on its training mean and divides by
// the training (population) standard deviation. Columns with zero spread
// are divided by one.
type StandardScaler struct {
	Mean []float64
	Std  []float64
}

// FitScaler captures column statistics from row-major data.
func FitScaler(data [][]float64) *StandardScaler {
	cols := len(data[0])
	s := &StandardScaler{Mean: make([]float64, cols), Std: make([]float64, cols)}
	col := make([]float64, len(data))
	for j := 0; j < cols; j++ {
		for i, row := range data {
			col[i] = row[j]
		}
		mean, std := stat.PopMeanStdDev(col, nil)
		if std == 0 {
			std = 1
		}
		s.Mean[j], s.Std[j] = mean, std
	}
	return s
}

// Transform returns a scaled copy of x.
func (s *StandardScaler) Transform(x []float64) []float64 {
	out := make([]float64, len(x))
	for j, v := range x {
		out[j] = (v - s.Mean[j]) / s.Std[j]
	}
	return out
}
