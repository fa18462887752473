package nn

import (
	"fmt"
	"math"
)

// probFloor keeps log-probabilities finite for crisp mismatches.
const probFloor = 1e-12

// Softmax maps logits to a probability distribution. It subtracts the max
// logit first so large logits do not overflow.
func Softmax(logits []float64) []float64 {
	out := make([]float64, len(logits))
	if len(logits) == 0 {
		return out
	}
	max := logits[0]
	for _, v := range logits[1:] {
		if v > max {
			max = v
		}
	}
	total := 0.0
	for i, v := range logits {
		out[i] = math.Exp(v - max)
		total += out[i]
	}
	for i := range out {
		out[i] /= total
	}
	return out
}

// Sat clamps value to [min, max].
func Sat(value, max, min float64) float64 {
	if value > max {
		return max
	}
	if value < min {
		return min
	}
	return value
}

// SaturationWithSpread clamps values to the symmetric range [-spread, spread].
func SaturationWithSpread(value, spread float64) float64 {
	if spread < 0 {
		spread = -spread
	}
	return Sat(value, spread, -spread)
}

// Avg returns the arithmetic mean of values.
func Avg(values []float64) (float64, error) {
	if len(values) == 0 {
		return 0, fmt.Errorf("values must not be empty")
	}
	sum := 0.0
	for _, value := range values {
		sum += value
	}
	return sum / float64(len(values)), nil
}

// Std returns population standard deviation.
func Std(values []float64) (float64, error) {
	mean, err := Avg(values)
	if err != nil {
		return 0, err
	}
	sum := 0.0
	for _, value := range values {
		diff := mean - value
		sum += diff * diff
	}
	return math.Sqrt(sum / float64(len(values))), nil
}

// NegLogProb returns -log(p) with p floored at probFloor.
func NegLogProb(p float64) float64 {
	if p < probFloor {
		p = probFloor
	}
	return -math.Log(p)
}

// Entropy returns the Shannon entropy (nats) of a distribution.
func Entropy(dist []float64) float64 {
	h := 0.0
	for _, p := range dist {
		if p > 0 {
			h -= p * math.Log(p)
		}
	}
	return h
}
