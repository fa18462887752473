package fuzzy

import "errors"

var (
	ErrInvalidConfig     = errors.New("invalid machine config")
	ErrDimensionMismatch = errors.New("dimension mismatch")
	ErrNotADistribution  = errors.New("not a probability distribution")
	ErrSimplexDrift      = errors.New("distribution drifted off the simplex")
	ErrLoopDepthOverflow = errors.New("loop depth overflow")

	errNilState = errors.New("nil state")
)
