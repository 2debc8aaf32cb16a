// Package feecalc computes the deterministic transfer fee and the
// half-up rounding used throughout the engine for money amounts.
package feecalc

import "math"

// Round2 rounds x to two decimal places, half away from zero.
func Round2(x float64) float64 {
	if x < 0 {
		return -Round2(-x)
	}
	return math.Floor(x*100+0.5) / 100
}

// Fee returns round2(base + percent*amountInTRY).
func Fee(base, percent, amountInTRY float64) float64 {
	return Round2(base + percent*amountInTRY)
}
