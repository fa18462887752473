package bf

import (
	"fmt"
	"strings"

	"fuzzybf/internal/fuzzy"
)

// Parse extracts the command symbols from src. Every other rune is a comment.
func Parse(src string) ([]fuzzy.Op, error) {
	ops := make([]fuzzy.Op, 0, len(src))
	for i := 0; i < len(src); i++ {
		if op, ok := fuzzy.OpFromSymbol(src[i]); ok {
			ops = append(ops, op)
		}
	}
	if err := checkBalanced(ops); err != nil {
		return nil, err
	}
	return ops, nil
}

func Format(ops []fuzzy.Op) string {
	var b strings.Builder
	b.Grow(len(ops))
	for _, op := range ops {
		b.WriteByte(op.Symbol())
	}
	return b.String()
}

// Decode renders the most likely op of each slot.
func Decode(program []fuzzy.Instr) string {
	ops := make([]fuzzy.Op, len(program))
	for i, in := range program {
		ops[i] = in.Argmax()
	}
	return Format(ops)
}

// DecodeLogits renders the highest-logit op of each slot, which is also the
// most likely op after softmax.
func DecodeLogits(logits [][]float64) string {
	var b strings.Builder
	b.Grow(len(logits))
	for _, row := range logits {
		best := 0
		for i := 1; i < len(row) && i < fuzzy.NumOps; i++ {
			if row[i] > row[best] {
				best = i
			}
		}
		b.WriteByte(fuzzy.Op(best).Symbol())
	}
	return b.String()
}

// Logits encodes ops as logits with the chosen op raised by sharpness,
// padded to slots with zero logits. The last slot is the halt slot, so slots
// must exceed len(ops).
func Logits(ops []fuzzy.Op, sharpness float64, slots int) ([][]float64, error) {
	if slots <= len(ops) {
		return nil, fmt.Errorf("program of %d ops needs at least %d slots, got %d", len(ops), len(ops)+1, slots)
	}
	if sharpness <= 0 {
		return nil, fmt.Errorf("sharpness must be > 0")
	}
	out := make([][]float64, slots)
	for i := range out {
		out[i] = make([]float64, fuzzy.NumOps)
		if i < len(ops) {
			out[i][ops[i]] = sharpness
		}
	}
	return out, nil
}

// Distribution encodes ops as one-hot rows plus the halt slot.
func Distribution(ops []fuzzy.Op) [][]float64 {
	out := make([][]float64, len(ops)+1)
	for i := range out {
		out[i] = make([]float64, fuzzy.NumOps)
		if i < len(ops) {
			out[i][ops[i]] = 1
		} else {
			out[i][fuzzy.OpInc] = 1
		}
	}
	return out
}

// Bytes encodes values as crisp byte cells.
func Bytes(values []byte) [][]float64 {
	out := make([][]float64, len(values))
	for i, v := range values {
		out[i] = make([]float64, fuzzy.ByteValues)
		out[i][v] = 1
	}
	return out
}

func checkBalanced(ops []fuzzy.Op) error {
	depth := 0
	for i, op := range ops {
		switch op {
		case fuzzy.OpOpen:
			depth++
		case fuzzy.OpClose:
			depth--
			if depth < 0 {
				return fmt.Errorf("%w: unmatched ] at op %d", ErrUnbalanced, i)
			}
		}
	}
	if depth != 0 {
		return fmt.Errorf("%w: %d unclosed [", ErrUnbalanced, depth)
	}
	return nil
}
