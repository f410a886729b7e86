package forecast

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// epsilon guards MAPE against division by a zero actual value
const epsilon = 2.220446049250313e-16

// RMSE is the root mean squared error of predicted against actual
func RMSE(actual, predicted []float64) float64 {
	if len(actual) == 0 {
		return 0
	}
	sq := make([]float64, len(actual))
	for i := range actual {
		e := predicted[i] - actual[i]
		sq[i] = e * e
	}
	return math.Sqrt(stat.Mean(sq, nil))
}

// MAPE is the mean absolute percentage error, as a fraction
func MAPE(actual, predicted []float64) float64 {
	if len(actual) == 0 {
		return 0
	}
	ape := make([]float64, len(actual))
	for i := range actual {
		ape[i] = math.Abs(predicted[i]-actual[i]) / math.Max(math.Abs(actual[i]), epsilon)
	}
	return stat.Mean(ape, nil)
}
