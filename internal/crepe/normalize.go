package crepe

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// minDivisor keeps silent frames from dividing by a zero standard deviation.
const minDivisor = 1e-8

// Features is the zero-mean, unit-variance model input derived from a Frame.
type Features [StepSize]float32

// Normalize converts f into model features: each sample minus the frame mean,
// divided by the population standard deviation clamped to minDivisor.
// It never produces NaN or Inf.
func Normalize(f *Frame) Features {
	x := make([]float64, StepSize)
	for i, s := range f {
		x[i] = float64(s)
	}
	mean, std := stat.PopMeanStdDev(x, nil)
	div := math.Max(std, minDivisor)

	var out Features
	for i, v := range x {
		out[i] = float32((v - mean) / div)
	}
	return out
}
