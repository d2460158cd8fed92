package raster

import (
	"fmt"
	"math"
)

// ScaleFactor converts Sentinel-2 digital numbers to reflectance.
const ScaleFactor = 10000.0

// BinaryMask marks with 1 every pixel whose class is one of codes.
func BinaryMask(classes []float64, codes []int) []uint8 {
	set := make(map[int]struct{}, len(codes))
	for _, c := range codes {
		set[c] = struct{}{}
	}
	mask := make([]uint8, len(classes))
	for i, v := range classes {
		if _, ok := set[int(v)]; ok {
			mask[i] = 1
		}
	}
	return mask
}

// ApplyMask zeroes every pixel flagged in mask.
func ApplyMask(mask []uint8, values []float64) ([]float64, error) {
	if len(mask) != len(values) {
		return nil, fmt.Errorf("mask has %d pixels, band has %d", len(mask), len(values))
	}
	out := make([]float64, len(values))
	for i, v := range values {
		if mask[i] == 0 {
			out[i] = v
		}
	}
	return out, nil
}

// NormalizedDifference computes (a-b)/(a+b) on reflectance-scaled inputs.
// Results outside [-1, 1] and undefined ratios are set to 0. Values are
// rounded to float32 so repeated runs write identical rasters.
func NormalizedDifference(a, b []float64) ([]float64, error) {
	if len(a) != len(b) {
		return nil, fmt.Errorf("bands differ in size: %d and %d pixels", len(a), len(b))
	}
	out := make([]float64, len(a))
	for i := range a {
		x, y := a[i]/ScaleFactor, b[i]/ScaleFactor
		v := (x - y) / float64(float32(x+y))
		if math.IsNaN(v) || v > 1 || v < -1 {
			v = 0
		}
		out[i] = float64(float32(v))
	}
	return out, nil
}

// Calibrate divides digital numbers by ScaleFactor.
func Calibrate(values []float64) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = float64(float32(v / ScaleFactor))
	}
	return out
}

// MeanIgnoringZero averages equally sized arrays pixel by pixel, skipping
// zero (masked) samples. Pixels with no valid sample stay 0.
func MeanIgnoringZero(arrays [][]float64) ([]float64, error) {
	if len(arrays) == 0 {
		return nil, fmt.Errorf("no arrays to average")
	}
	n := len(arrays[0])
	for i, a := range arrays {
		if len(a) != n {
			return nil, fmt.Errorf("array %d has %d pixels, expected %d", i, len(a), n)
		}
	}
	out := make([]float64, n)
	for p := 0; p < n; p++ {
		sum, count := 0.0, 0
		for _, a := range arrays {
			if v := a[p]; v != 0 && !math.IsNaN(v) {
				sum += v
				count++
			}
		}
		if count > 0 {
			out[p] = float64(float32(sum / float64(count)))
		}
	}
	return out, nil
}
