package hotspot

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// FeatureDims is the number of dimensions in a FeatureVector.
const FeatureDims = 3

// Standardization holds the per-dimension mean and population standard
// deviation used to scale a batch. A zero Scale marks a constant dimension.
type Standardization struct {
	Mean  [FeatureDims]float64
	Scale [FeatureDims]float64

	// unit is a power of two dividing columns whose magnitude is large
	// enough for squared deviations to overflow.
	unit [FeatureDims]float64
}

// Normalize standardizes the (lat, lon, speed) columns of a batch to zero
// mean and unit population standard deviation, each dimension independently.
// A dimension with zero variance normalizes to 0 for every sample.
func Normalize(samples []Sample) ([]FeatureVector, error) {
	if len(samples) == 0 {
		return nil, &InsufficientDataError{Stage: "normalize", Got: 0, Need: 1}
	}
	cols := featureColumns(samples)
	std := fitStandardization(cols)
	return std.apply(cols), nil
}

// NormalizeVectors re-standardizes an existing set of feature vectors.
// Applying it to an already standardized set leaves the values unchanged
// within floating point tolerance.
func NormalizeVectors(vectors []FeatureVector) ([]FeatureVector, error) {
	if len(vectors) == 0 {
		return nil, &InsufficientDataError{Stage: "normalize", Got: 0, Need: 1}
	}
	var cols [FeatureDims][]float64
	for d := range cols {
		cols[d] = make([]float64, len(vectors))
		for i, v := range vectors {
			cols[d][i] = v[d]
		}
	}
	std := fitStandardization(cols)
	return std.apply(cols), nil
}

// featureColumns splits samples into column-major feature slices.
func featureColumns(samples []Sample) [FeatureDims][]float64 {
	var cols [FeatureDims][]float64
	for d := range cols {
		cols[d] = make([]float64, len(samples))
	}
	for i, s := range samples {
		cols[0][i] = s.Latitude
		cols[1][i] = s.Longitude
		cols[2][i] = s.Speed
	}
	return cols
}

func fitStandardization(cols [FeatureDims][]float64) Standardization {
	var std Standardization
	for d, col := range cols {
		hi, lo := floats.Max(col), floats.Min(col)
		unit := overflowUnit(math.Max(math.Abs(hi), math.Abs(lo)))
		std.unit[d] = unit

		scaled := col
		if unit != 1 {
			scaled = floats.ScaleTo(make([]float64, len(col)), 1/unit, col)
		}
		mean, variance := stat.PopMeanVariance(scaled, nil)
		std.Mean[d] = mean * unit
		// Identical values can still produce a tiny non-zero variance after
		// summation, so constancy is checked on the raw extremes.
		if hi == lo || variance <= 0 {
			std.Scale[d] = 0
			continue
		}
		std.Scale[d] = math.Sqrt(variance) * unit
	}
	return std
}

// overflowUnit returns 1 for magnitudes whose squares stay finite and
// otherwise the power of two bringing maxAbs into [1, 2).
func overflowUnit(maxAbs float64) float64 {
	_, exp := math.Frexp(maxAbs)
	if exp <= safeExponent {
		return 1
	}
	return math.Ldexp(1, exp-1)
}

// safeExponent bounds magnitudes below 2^500 so that summing squares of up
// to millions of deviations stays finite.
const safeExponent = 500

func (std Standardization) apply(cols [FeatureDims][]float64) []FeatureVector {
	n := len(cols[0])
	out := make([]FeatureVector, n)
	for d, col := range cols {
		if std.Scale[d] == 0 {
			continue
		}
		unit := std.unit[d]
		if unit == 0 {
			unit = 1
		}
		mean, scale := std.Mean[d]/unit, std.Scale[d]/unit
		for i, v := range col {
			out[i][d] = (v/unit - mean) / scale
		}
	}
	return out
}
