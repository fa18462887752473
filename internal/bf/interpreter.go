package bf

import (
	"context"
	"errors"
	"fmt"

	"fuzzybf/internal/fuzzy"
)

var (
	ErrUnbalanced = errors.New("unbalanced brackets")
	ErrStepLimit  = errors.New("step limit reached")
)

// Interpreter is the textbook crisp machine with the same tape conventions
// as the fuzzy one: memory and input are circular, cells wrap at 256.
type Interpreter struct {
	MemorySize int
	MaxSteps   int

	code  []fuzzy.Op
	jumps []int
}

type Result struct {
	Memory []byte
	// Pointer is the memory index of the active cell.
	Pointer int
	Output  []byte
	Steps   int
}

func NewInterpreter(ops []fuzzy.Op, memorySize, maxSteps int) (*Interpreter, error) {
	if memorySize < 1 {
		return nil, fmt.Errorf("memory size must be >= 1")
	}
	if maxSteps < 1 {
		return nil, fmt.Errorf("max steps must be >= 1")
	}
	jumps, err := matchBrackets(ops)
	if err != nil {
		return nil, err
	}
	return &Interpreter{
		MemorySize: memorySize,
		MaxSteps:   maxSteps,
		code:       append([]fuzzy.Op(nil), ops...),
		jumps:      jumps,
	}, nil
}

// Run executes the program on input. Reading past the end of input wraps
// around; an empty input reads zeros.
func (it *Interpreter) Run(ctx context.Context, input []byte) (Result, error) {
	mem := make([]byte, it.MemorySize)
	var out []byte
	ptr, inPos, steps := 0, 0, 0

	for pc := 0; pc < len(it.code); pc++ {
		if steps >= it.MaxSteps {
			return Result{Memory: mem, Pointer: ptr, Output: out, Steps: steps}, ErrStepLimit
		}
		if steps%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return Result{}, err
			}
		}
		steps++

		switch it.code[pc] {
		case fuzzy.OpInc:
			mem[ptr]++
		case fuzzy.OpDec:
			mem[ptr]--
		case fuzzy.OpRight:
			ptr = (ptr + 1) % len(mem)
		case fuzzy.OpLeft:
			ptr = (ptr + len(mem) - 1) % len(mem)
		case fuzzy.OpOut:
			out = append(out, mem[ptr])
		case fuzzy.OpIn:
			if len(input) == 0 {
				mem[ptr] = 0
				continue
			}
			mem[ptr] = input[inPos%len(input)]
			inPos++
		case fuzzy.OpOpen:
			if mem[ptr] == 0 {
				pc = it.jumps[pc]
			}
		case fuzzy.OpClose:
			if mem[ptr] != 0 {
				pc = it.jumps[pc]
			}
		}
	}
	return Result{Memory: mem, Pointer: ptr, Output: out, Steps: steps}, nil
}

// Active returns memory rotated so the active cell is at index 0, matching
// the fuzzy machine's layout.
func (r Result) Active() []byte {
	n := len(r.Memory)
	out := make([]byte, n)
	for i := range out {
		out[i] = r.Memory[(r.Pointer+i)%n]
	}
	return out
}

func matchBrackets(ops []fuzzy.Op) ([]int, error) {
	jumps := make([]int, len(ops))
	var stack []int
	for i, op := range ops {
		switch op {
		case fuzzy.OpOpen:
			stack = append(stack, i)
		case fuzzy.OpClose:
			if len(stack) == 0 {
				return nil, fmt.Errorf("%w: unmatched ] at op %d", ErrUnbalanced, i)
			}
			open := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			jumps[open] = i
			jumps[i] = open
		}
	}
	if len(stack) != 0 {
		return nil, fmt.Errorf("%w: %d unclosed [", ErrUnbalanced, len(stack))
	}
	return jumps, nil
}
