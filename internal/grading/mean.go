// Package grading holds the numeric rules shared by every aggregation pass and the
// pluggable grading strategies that turn a filled assessment form into a percentage.
package grading

import (
	"math"
	"strconv"
)

// DefaultDecimals is the precision used for stored aggregates.
const DefaultDecimals = 5

// Weighted is one grade taking part in a weighted mean. A nil Value is skipped.
type Weighted struct {
	Value  *float64
	Weight float64
}

// WeightedMean returns Σ(value×weight)/Σ(weight) over entries with a value and a positive
// weight. The boolean is false when nothing contributed.
func WeightedMean(items []Weighted) (float64, bool) {
	var sum, weights float64
	for _, item := range items {
		if item.Value == nil || item.Weight <= 0 {
			continue
		}
		sum += *item.Value * item.Weight
		weights += item.Weight
	}
	if weights <= 0 {
		return 0, false
	}
	return sum / weights, true
}

// Round rounds half away from zero to the given number of decimal places.
func Round(value float64, decimals int) float64 {
	if decimals < 0 {
		decimals = 0
	}
	pow := math.Pow10(decimals)
	return math.Round(value*pow) / pow
}

// Differ reports whether two nullable grades differ once rounded to decimals.
// A nil and a non-nil grade always differ.
func Differ(a, b *float64, decimals int) bool {
	if a == nil || b == nil {
		return (a == nil) != (b == nil)
	}
	return Round(*a, decimals) != Round(*b, decimals)
}

// Scale converts a 0–100 percentage into a grade out of ceiling.
func Scale(percent, ceiling float64) float64 {
	return Clamp(percent, 0, 100) / 100 * ceiling
}

// Clamp limits v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// Format renders a nullable grade with the display precision, "-" when unset.
func Format(value *float64, decimals int) string {
	if value == nil {
		return "-"
	}
	if decimals < 0 {
		decimals = 0
	}
	return strconv.FormatFloat(Round(*value, decimals), 'f', decimals, 64)
}

// Ptr returns a pointer to v.
func Ptr(v float64) *float64 {
	return &v
}
