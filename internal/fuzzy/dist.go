package fuzzy

import "math"

// Op indexes the instruction alphabet.
type Op int

const (
	OpInc Op = iota
	OpDec
	OpRight
	OpLeft
	OpOut
	OpIn
	OpOpen
	OpClose
)

const (
	NumOps     = 8
	ByteValues = 256
)

var opSymbols = [NumOps]byte{'+', '-', '>', '<', '.', ',', '[', ']'}

func (o Op) Symbol() byte {
	if o < 0 || int(o) >= NumOps {
		return '?'
	}
	return opSymbols[o]
}

func (o Op) String() string {
	return string(o.Symbol())
}

// OpFromSymbol reports the op for a command byte.
func OpFromSymbol(b byte) (Op, bool) {
	for i, s := range opSymbols {
		if s == b {
			return Op(i), true
		}
	}
	return 0, false
}

// Instr is a distribution over the instruction alphabet.
type Instr [NumOps]float64

// Cell is a distribution over byte values.
type Cell [ByteValues]float64

func CrispInstr(op Op) Instr {
	var in Instr
	in[op] = 1
	return in
}

func CrispCell(v byte) Cell {
	var c Cell
	c[v] = 1
	return c
}

func (in Instr) Argmax() Op {
	return Op(argmax(in[:]))
}

func (in Instr) Max() float64 {
	return in[argmax(in[:])]
}

func (c Cell) Argmax() byte {
	return byte(argmax(c[:]))
}

// Prob reports the mass on byte value v.
func (c Cell) Prob(v byte) float64 {
	return c[v]
}

// shifted rotates the value axis: shifted(+1)[v] = c[v-1 mod 256].
func (c Cell) shifted(by int) Cell {
	var out Cell
	for v := range c {
		out[mod(v+by, ByteValues)] = c[v]
	}
	return out
}

func argmax(values []float64) int {
	best := 0
	for i := 1; i < len(values); i++ {
		if values[i] > values[best] {
			best = i
		}
	}
	return best
}

func sum(values []float64) float64 {
	total := 0.0
	for _, v := range values {
		total += v
	}
	return total
}

func mod(a, n int) int {
	r := a % n
	if r < 0 {
		r += n
	}
	return r
}

// rotate returns out with out[i] = in[i+by mod n]. rotate(in, 1) brings the
// element at index 1 to the front.
func rotate[T any](in []T, by int) []T {
	n := len(in)
	out := make([]T, n)
	for i := range out {
		out[i] = in[mod(i+by, n)]
	}
	return out
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// noisyOr combines independent trigger probabilities: 1 - prod(1 - p).
func noisyOr(ps ...float64) float64 {
	keep := 1.0
	for _, p := range ps {
		keep *= 1 - p
	}
	return 1 - keep
}

func blendCells(dst *Cell, w float64, src Cell) {
	if w == 0 {
		return
	}
	for v := range dst {
		dst[v] += w * src[v]
	}
}

func isDistribution(values []float64, tol float64) bool {
	for _, v := range values {
		if v < -tol || math.IsNaN(v) {
			return false
		}
	}
	return math.Abs(sum(values)-1) <= tol
}
