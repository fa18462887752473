package fuzzy

import (
	"fmt"
	"math"
)

// State is one snapshot of the fuzzy machine. Position 0 of Program,
// HaltMarker, Memory, Input and Output is the active element.
type State struct {
	Program    []Instr
	HaltMarker []float64
	Direction  float64
	Halt       float64
	Depth      []float64
	Memory     []Cell
	Input      []Cell
	Output     []Cell
	Tick       int
}

func (s *State) Clone() State {
	return State{
		Program:    append([]Instr(nil), s.Program...),
		HaltMarker: append([]float64(nil), s.HaltMarker...),
		Direction:  s.Direction,
		Halt:       s.Halt,
		Depth:      append([]float64(nil), s.Depth...),
		Memory:     append([]Cell(nil), s.Memory...),
		Input:      append([]Cell(nil), s.Input...),
		Output:     append([]Cell(nil), s.Output...),
		Tick:       s.Tick,
	}
}

// Advance computes the snapshot one tick after s. It does not modify s.
// Sub-steps run in a fixed order: memory, control, I/O, program. Control and
// I/O observe the memory produced in the same tick.
func Advance(s *State, tol float64) (*State, error) {
	if s == nil {
		return nil, errNilState
	}
	if err := s.validateShape(); err != nil {
		return nil, err
	}

	w := gatesFor(s)
	next := &State{Tick: s.Tick + 1}
	next.Memory = updateMemory(s, w)
	ctl := updateControl(s, next.Memory)
	next.Depth = ctl.depth
	next.Direction = ctl.direction
	next.Input, next.Output = updateIO(s, w, next.Memory)
	next.Program, next.HaltMarker, next.Halt = updateProgram(s, next.Direction, ctl.reverse)

	if ctl.overflow > tol {
		return next, fmt.Errorf("%w: %g mass pushed past depth %d", ErrLoopDepthOverflow, ctl.overflow, len(s.Depth)-1)
	}
	return next, next.checkSimplex(tol)
}

func (s *State) validateShape() error {
	switch {
	case len(s.Program) < 2:
		return fmt.Errorf("%w: program size %d", ErrInvalidConfig, len(s.Program))
	case len(s.HaltMarker) != len(s.Program):
		return fmt.Errorf("%w: halt marker has %d slots, program has %d", ErrDimensionMismatch, len(s.HaltMarker), len(s.Program))
	case len(s.Depth) < 2:
		return fmt.Errorf("%w: loop depth range %d", ErrInvalidConfig, len(s.Depth))
	case len(s.Memory) == 0, len(s.Input) == 0, len(s.Output) == 0:
		return fmt.Errorf("%w: empty tape", ErrInvalidConfig)
	}
	return nil
}

// gates holds the per-op weight of an effect firing this tick:
// instruction mass * (1 - halt) * P(depth == 0).
type gates [NumOps]float64

func gatesFor(s *State) (w gates) {
	live := (1 - s.Halt) * s.Depth[0]
	for op := range w {
		w[op] = s.Program[0][op] * live
	}
	return w
}

func updateMemory(s *State, w gates) []Cell {
	mem := s.Memory
	inc, dec := w[OpInc], w[OpDec]
	right, left, in := w[OpRight], w[OpLeft], w[OpIn]
	rest := clamp01(1 - inc - dec - right - left - in)

	var rightTape, leftTape []Cell
	if right != 0 {
		rightTape = rotate(mem, 1)
	}
	if left != 0 {
		leftTape = rotate(mem, -1)
	}

	out := make([]Cell, len(mem))
	for i := range out {
		blendCells(&out[i], rest, mem[i])
		if rightTape != nil {
			blendCells(&out[i], right, rightTape[i])
		}
		if leftTape != nil {
			blendCells(&out[i], left, leftTape[i])
		}
		if i > 0 {
			// inc, dec and input only rewrite the active cell.
			blendCells(&out[i], inc+dec+in, mem[i])
		}
	}
	if inc != 0 {
		blendCells(&out[0], inc, mem[0].shifted(1))
	}
	if dec != 0 {
		blendCells(&out[0], dec, mem[0].shifted(-1))
	}
	blendCells(&out[0], in, s.Input[0])
	return out
}

type controlUpdate struct {
	depth     []float64
	direction float64
	reverse   float64
	overflow  float64
}

// updateControl moves loop-depth mass and flips direction.
//
// Going forward, "[" on a zero cell starts a forward skip and "]" on a
// non-zero cell starts a backward search (and reverses). While skipping,
// forward "[" / backward "]" go one level deeper and forward "]" / backward
// "[" come back up. A backward search that reaches depth 0 reverses again so
// execution resumes just after the matching "[".
func updateControl(s *State, mem []Cell) controlUpdate {
	f := s.Direction
	b := 1 - f
	live := 1 - s.Halt
	zero := mem[0][0]
	nonzero := 1 - zero
	open := s.Program[0][OpOpen]
	closing := s.Program[0][OpClose]

	enter := live * noisyOr(f*open*zero, f*closing*nonzero)
	up := live * noisyOr(f*open, b*closing)
	down := live * noisyOr(f*closing, b*open)
	stay := clamp01(1 - up - down)

	depth := s.Depth
	top := len(depth) - 1
	next := make([]float64, len(depth))
	next[0] = depth[0] * clamp01(1-enter)
	next[1] = depth[0] * enter

	overflow := 0.0
	for k := 1; k <= top; k++ {
		next[k] += depth[k] * stay
		next[k-1] += depth[k] * down
		if k < top {
			next[k+1] += depth[k] * up
			continue
		}
		overflow = depth[k] * up
		next[k] += overflow
	}

	reverse := noisyOr(
		live*depth[0]*f*closing*nonzero,
		live*b*open*depth[1],
	)
	return controlUpdate{
		depth:     next,
		direction: reverse*(1-f) + (1-reverse)*f,
		reverse:   reverse,
		overflow:  overflow,
	}
}

func updateIO(s *State, w gates, mem []Cell) (input, output []Cell) {
	in := w[OpIn]
	input = make([]Cell, len(s.Input))
	if in == 0 {
		copy(input, s.Input)
	} else {
		advanced := rotate(s.Input, 1)
		for i := range input {
			blendCells(&input[i], clamp01(1-in), s.Input[i])
			blendCells(&input[i], in, advanced[i])
		}
	}

	out := w[OpOut]
	output = make([]Cell, len(s.Output))
	if out == 0 {
		copy(output, s.Output)
		return input, output
	}
	pushed := rotate(s.Output, -1)
	pushed[0] = mem[0]
	for i := range output {
		blendCells(&output[i], clamp01(1-out), s.Output[i])
		blendCells(&output[i], out, pushed[i])
	}
	return input, output
}

func updateProgram(s *State, direction, reverse float64) ([]Instr, []float64, float64) {
	fwd, bwd := direction, 1-direction
	n := len(s.Program)

	program := make([]Instr, n)
	marker := make([]float64, n)
	for i := 0; i < n; i++ {
		ahead, behind := mod(i+1, n), mod(i-1, n)
		for k := range program[i] {
			program[i][k] = fwd*s.Program[ahead][k] + bwd*s.Program[behind][k]
		}
		marker[i] = fwd*s.HaltMarker[ahead] + bwd*s.HaltMarker[behind]
	}

	// Halting is sticky until a brace match reverses execution.
	halt := (1 - reverse) * noisyOr(s.Halt, marker[0])
	return program, marker, clamp01(halt)
}

func (s *State) checkSimplex(tol float64) error {
	for i := range s.Program {
		if !isDistribution(s.Program[i][:], tol) {
			return fmt.Errorf("%w: program slot %d sums to %g", ErrSimplexDrift, i, sum(s.Program[i][:]))
		}
	}
	if !isDistribution(s.HaltMarker, tol) {
		return fmt.Errorf("%w: halt marker sums to %g", ErrSimplexDrift, sum(s.HaltMarker))
	}
	if !isDistribution(s.Depth, tol) {
		return fmt.Errorf("%w: loop depth sums to %g", ErrSimplexDrift, sum(s.Depth))
	}
	tapes := []struct {
		name  string
		cells []Cell
	}{
		{"memory", s.Memory},
		{"input", s.Input},
		{"output", s.Output},
	}
	for _, tape := range tapes {
		for i := range tape.cells {
			if !isDistribution(tape.cells[i][:], tol) {
				return fmt.Errorf("%w: %s cell %d sums to %g", ErrSimplexDrift, tape.name, i, sum(tape.cells[i][:]))
			}
		}
	}
	if !inUnit(s.Direction, tol) || !inUnit(s.Halt, tol) {
		return fmt.Errorf("%w: direction=%g halt=%g", ErrSimplexDrift, s.Direction, s.Halt)
	}
	return nil
}

func inUnit(v, tol float64) bool {
	return !math.IsNaN(v) && v >= -tol && v <= 1+tol
}
