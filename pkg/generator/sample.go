package generator

import (
	"math"
	"math/rand"
	"time"

	"churngen/pkg/models"
)

// poissonStep bounds each exp() factor so large means do not underflow.
const poissonStep = 500.0

// poisson draws from Poisson(lambda) by multiplying uniforms (Knuth), with the
// exp(lambda) threshold applied in chunks.
func poisson(rng *rand.Rand, lambda float64) int {
	if lambda <= 0 {
		return 0
	}
	k := 0
	p := 1.0
	left := lambda
	for {
		k++
		p *= rng.Float64()
		for p < 1 && left > 0 {
			if left > poissonStep {
				p *= math.Exp(poissonStep)
				left -= poissonStep
			} else {
				p *= math.Exp(left)
				left = 0
			}
		}
		if p <= 1 {
			return k - 1
		}
	}
}

// pick returns an index drawn from a validated weight table.
func pick(rng *rand.Rand, weights []float64) int {
	u := rng.Float64()
	acc := 0.0
	for i, w := range weights {
		acc += w
		if u < acc {
			return i
		}
	}
	// float slack: fall back to the last index that can actually be drawn
	for i := len(weights) - 1; i >= 0; i-- {
		if weights[i] > 0 {
			return i
		}
	}
	return len(weights) - 1
}

// dayIn returns a date uniformly drawn from [from, to], both inclusive.
func dayIn(rng *rand.Rand, from, to time.Time) time.Time {
	return from.AddDate(0, 0, rng.Intn(daysBetween(from, to)+1))
}

// daysBefore returns anchor minus an offset drawn uniformly from r.
func daysBefore(rng *rand.Rand, anchor time.Time, r models.DayRange) time.Time {
	return anchor.AddDate(0, 0, -(r.Min + rng.Intn(r.Max-r.Min+1)))
}

func daysBetween(from, to time.Time) int {
	return int(to.Sub(from).Hours() / 24)
}

// amountIn draws from [0.5, 1.5] x base, rounded to cents and kept inside the bounds.
func amountIn(rng *rand.Rand, base float64) float64 {
	lo, hi := base*0.5, base*1.5
	v := round2(lo + rng.Float64()*(hi-lo))
	if minV := math.Ceil(lo*100) / 100; v < minV {
		v = minV
	}
	if maxV := math.Floor(hi*100) / 100; v > maxV {
		v = maxV
	}
	return v
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
