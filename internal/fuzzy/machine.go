package fuzzy

import (
	"context"
	"fmt"

	"fuzzybf/internal/nn"
)

const DefaultTolerance = 1e-6

// Config describes a machine. Program, Logits and Input are optional; nil
// means "use the default" and is resolved once by New.
type Config struct {
	ProgramSize  int
	InputSize    int
	OutputSize   int
	MemorySize   int
	MaxLoopDepth int

	// Program holds per-slot probabilities over the 8 ops. It takes
	// precedence over Logits; supplying both is rejected.
	Program [][]float64
	// Logits are softmaxed per slot when Program is nil.
	Logits [][]float64
	// Input cells are distributions over byte values. Defaults to InputSize
	// cells concentrated on zero.
	Input [][]float64

	Tolerance float64
}

// Machine owns one fuzzy execution. It is not safe for concurrent use;
// independent runs use independent machines.
type Machine struct {
	state *State
	tol   float64
}

func New(cfg Config) (*Machine, error) {
	tol := cfg.Tolerance
	if tol == 0 {
		tol = DefaultTolerance
	}
	if tol < 0 {
		return nil, fmt.Errorf("%w: tolerance must be >= 0", ErrInvalidConfig)
	}
	if cfg.ProgramSize < 2 {
		return nil, fmt.Errorf("%w: program size must be >= 2, got %d", ErrInvalidConfig, cfg.ProgramSize)
	}
	if cfg.MaxLoopDepth < 1 {
		return nil, fmt.Errorf("%w: max loop depth must be >= 1, got %d", ErrInvalidConfig, cfg.MaxLoopDepth)
	}
	if cfg.MemorySize < 1 {
		return nil, fmt.Errorf("%w: memory size must be >= 1, got %d", ErrInvalidConfig, cfg.MemorySize)
	}
	if cfg.OutputSize < 1 {
		return nil, fmt.Errorf("%w: output size must be >= 1, got %d", ErrInvalidConfig, cfg.OutputSize)
	}

	program, err := resolveProgram(cfg, tol)
	if err != nil {
		return nil, err
	}
	input, err := resolveInput(cfg, tol)
	if err != nil {
		return nil, err
	}

	s := &State{
		Program:    program,
		HaltMarker: make([]float64, cfg.ProgramSize),
		Direction:  1,
		Depth:      make([]float64, cfg.MaxLoopDepth+1),
		Memory:     zeroTape(cfg.MemorySize),
		Input:      input,
		Output:     zeroTape(cfg.OutputSize),
	}
	s.HaltMarker[cfg.ProgramSize-1] = 1
	s.Depth[0] = 1
	return &Machine{state: s, tol: tol}, nil
}

func resolveProgram(cfg Config, tol float64) ([]Instr, error) {
	if cfg.Program != nil && cfg.Logits != nil {
		return nil, fmt.Errorf("%w: program and logits are mutually exclusive", ErrInvalidConfig)
	}
	program := make([]Instr, cfg.ProgramSize)
	switch {
	case cfg.Program != nil:
		if len(cfg.Program) != cfg.ProgramSize {
			return nil, fmt.Errorf("%w: program has %d slots, want %d", ErrDimensionMismatch, len(cfg.Program), cfg.ProgramSize)
		}
		for i, row := range cfg.Program {
			if len(row) != NumOps {
				return nil, fmt.Errorf("%w: program slot %d has width %d, want %d", ErrDimensionMismatch, i, len(row), NumOps)
			}
			if !isDistribution(row, tol) {
				return nil, fmt.Errorf("%w: program slot %d", ErrNotADistribution, i)
			}
			copy(program[i][:], row)
		}
	case cfg.Logits != nil:
		if len(cfg.Logits) != cfg.ProgramSize {
			return nil, fmt.Errorf("%w: logits have %d slots, want %d", ErrDimensionMismatch, len(cfg.Logits), cfg.ProgramSize)
		}
		for i, row := range cfg.Logits {
			if len(row) != NumOps {
				return nil, fmt.Errorf("%w: logits slot %d has width %d, want %d", ErrDimensionMismatch, i, len(row), NumOps)
			}
			copy(program[i][:], nn.Softmax(row))
		}
	default:
		for i := range program {
			program[i][0] = 1
		}
	}
	return program, nil
}

func resolveInput(cfg Config, tol float64) ([]Cell, error) {
	if cfg.Input == nil {
		size := cfg.InputSize
		if size < 1 {
			size = 1
		}
		return zeroTape(size), nil
	}
	if len(cfg.Input) == 0 {
		return nil, fmt.Errorf("%w: input tape is empty", ErrInvalidConfig)
	}
	if cfg.InputSize != 0 && cfg.InputSize != len(cfg.Input) {
		return nil, fmt.Errorf("%w: input has %d cells, input size is %d", ErrDimensionMismatch, len(cfg.Input), cfg.InputSize)
	}
	input := make([]Cell, len(cfg.Input))
	for i, row := range cfg.Input {
		if len(row) != ByteValues {
			return nil, fmt.Errorf("%w: input cell %d has width %d, want %d", ErrDimensionMismatch, i, len(row), ByteValues)
		}
		if !isDistribution(row, tol) {
			return nil, fmt.Errorf("%w: input cell %d", ErrNotADistribution, i)
		}
		copy(input[i][:], row)
	}
	return input, nil
}

func zeroTape(n int) []Cell {
	tape := make([]Cell, n)
	for i := range tape {
		tape[i][0] = 1
	}
	return tape
}

// Step advances the machine by one tick. On ErrSimplexDrift or
// ErrLoopDepthOverflow the machine still holds the well-formed next state.
func (m *Machine) Step() error {
	next, err := Advance(m.state, m.tol)
	if next != nil {
		m.state = next
	}
	return err
}

// Run steps until the halt probability reaches haltThreshold, maxTicks ticks
// have run, or ctx is done. It returns the number of ticks executed.
func (m *Machine) Run(ctx context.Context, maxTicks int, haltThreshold float64) (int, error) {
	ticks := 0
	for ticks < maxTicks {
		if m.Halted(haltThreshold) {
			return ticks, nil
		}
		if err := ctx.Err(); err != nil {
			return ticks, err
		}
		if err := m.Step(); err != nil {
			return ticks + 1, err
		}
		ticks++
	}
	return ticks, nil
}

func (m *Machine) Halted(threshold float64) bool {
	return m.state.Halt >= threshold
}

func (m *Machine) Halt() float64 {
	return m.state.Halt
}

// Gate reports the weight with which op takes effect on the next tick.
func (m *Machine) Gate(op Op) float64 {
	if op < 0 || int(op) >= NumOps {
		return 0
	}
	return gatesFor(m.state)[op]
}

func (m *Machine) Tick() int {
	return m.state.Tick
}

// State returns a deep copy of the current snapshot.
func (m *Machine) State() State {
	return m.state.Clone()
}

// Output returns a copy of the output tape. Index 0 is the most recent output.
func (m *Machine) Output() []Cell {
	return append([]Cell(nil), m.state.Output...)
}

// Emitted returns the last n outputs oldest first.
func (m *Machine) Emitted(n int) []Cell {
	if n > len(m.state.Output) {
		n = len(m.state.Output)
	}
	if n < 0 {
		n = 0
	}
	out := make([]Cell, n)
	for i := 0; i < n; i++ {
		out[i] = m.state.Output[n-1-i]
	}
	return out
}

// Ambiguity reports how far the program is from crisp: 0 when every slot is
// one-hot, 1 when every slot is uniform.
func (m *Machine) Ambiguity() float64 {
	return Ambiguity(m.state.Program)
}

func Ambiguity(program []Instr) float64 {
	if len(program) == 0 {
		return 0
	}
	confidence := 0.0
	for _, in := range program {
		confidence += in.Max()
	}
	confidence /= float64(len(program))
	return clamp01((1 - confidence) / (1 - 1.0/NumOps))
}
