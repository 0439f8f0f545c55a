package table

import (
	"fmt"
	"math"
	"slices"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Aggregator returns the aggregation function registered under name.
func Aggregator(name string) (func([]float64) float64, error) {
	switch name {
	case "sum":
		return Sum, nil
	case "mean", "avg":
		return Mean, nil
	case "min":
		return Min, nil
	case "max":
		return Max, nil
	case "median":
		return Median, nil
	case "std":
		return Std, nil
	case "count":
		return func(v []float64) float64 { return float64(len(v)) }, nil
	default:
		return nil, fmt.Errorf("unknown aggregation %q", name)
	}
}

// Sum returns the sum of values; 0 for an empty slice.
func Sum(values []float64) float64 {
	return floats.Sum(values)
}

// Mean returns the arithmetic mean; NaN for an empty slice.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	return stat.Mean(values, nil)
}

// Min returns the smallest value; NaN for an empty slice.
func Min(values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	return floats.Min(values)
}

// Max returns the largest value; NaN for an empty slice.
func Max(values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	return floats.Max(values)
}

// Median returns the 50% quantile.
func Median(values []float64) float64 {
	return Quantile(values, 0.5)
}

// Std returns the sample standard deviation (n-1 denominator); NaN when
// fewer than two values are given.
func Std(values []float64) float64 {
	if len(values) < 2 {
		return math.NaN()
	}
	return stat.StdDev(values, nil)
}

// Quantile returns the q-quantile, interpolating linearly between the
// closest ranks.
func Quantile(values []float64, q float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	sorted := slices.Clone(values)
	slices.Sort(sorted)
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}

// Pearson returns the correlation coefficient of two equally long series;
// NaN when it is undefined.
func Pearson(xs, ys []float64) float64 {
	if len(xs) != len(ys) || len(xs) < 2 {
		return math.NaN()
	}
	if floats.Min(xs) == floats.Max(xs) || floats.Min(ys) == floats.Max(ys) {
		return math.NaN()
	}
	return stat.Correlation(xs, ys, nil)
}

func nanToNil(f float64) any {
	if math.IsNaN(f) {
		return nil
	}
	return f
}
