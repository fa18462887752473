package task

import (
	"context"
	"errors"
	"fmt"

	"fuzzybf/internal/bf"
	"fuzzybf/internal/fuzzy"
	"fuzzybf/internal/nn"
)

const (
	DefaultMemorySize    = 4
	DefaultMaxTicks      = 64
	DefaultHaltThreshold = 0.99
)

// Evaluator scores program logits against a task by running a fresh fuzzy
// machine per case.
type Evaluator struct {
	ProgramSize  int
	MemorySize   int
	MaxLoopDepth int
	MaxTicks     int
	// HaltThreshold stops a case early once the halt probability reaches it.
	HaltThreshold float64
	// AmbiguityWeight scales the penalty pushing slots towards one-hot.
	AmbiguityWeight float64
}

func (e Evaluator) withDefaults(programSize int) Evaluator {
	if e.ProgramSize <= 0 {
		e.ProgramSize = programSize
	}
	if e.MemorySize <= 0 {
		e.MemorySize = DefaultMemorySize
	}
	if e.MaxLoopDepth <= 0 {
		e.MaxLoopDepth = e.ProgramSize
	}
	if e.MaxTicks <= 0 {
		e.MaxTicks = DefaultMaxTicks
	}
	if e.HaltThreshold <= 0 {
		e.HaltThreshold = DefaultHaltThreshold
	}
	return e
}

// Evaluate returns -(mean case loss + AmbiguityWeight*ambiguity). A case's
// loss is the mean negative log-probability of each wanted byte in the
// matching emitted cell, oldest first.
func (e Evaluator) Evaluate(ctx context.Context, t Task, logits [][]float64) (Fitness, Trace, error) {
	cfg := e.withDefaults(len(logits))
	if len(logits) != cfg.ProgramSize {
		return 0, nil, fmt.Errorf("%w: logits have %d slots, evaluator expects %d", fuzzy.ErrDimensionMismatch, len(logits), cfg.ProgramSize)
	}
	if cfg.AmbiguityWeight < 0 {
		return 0, nil, fmt.Errorf("%w: ambiguity weight must be >= 0", fuzzy.ErrInvalidConfig)
	}
	cases := t.Cases()
	if len(cases) == 0 {
		return 0, nil, fmt.Errorf("%w: %s has no cases", ErrInvalidTask, t.Name())
	}

	caseLoss := make([]float64, len(cases))
	halts := make([]float64, len(cases))
	ticks := make([]int, len(cases))
	overflowTicks := 0
	var program string
	var ambiguity, entropy float64

	for i, c := range cases {
		m, err := fuzzy.New(fuzzy.Config{
			ProgramSize:  cfg.ProgramSize,
			OutputSize:   len(c.Want),
			MemorySize:   cfg.MemorySize,
			MaxLoopDepth: cfg.MaxLoopDepth,
			Logits:       logits,
			Input:        inputTape(c.Input),
		})
		if err != nil {
			return 0, nil, err
		}
		if i == 0 {
			program = bf.Decode(m.State().Program)
			ambiguity = m.Ambiguity()
			entropy = programEntropy(m.State().Program)
		}

		for m.Tick() < cfg.MaxTicks && !m.Halted(cfg.HaltThreshold) {
			if err := ctx.Err(); err != nil {
				return 0, nil, err
			}
			err := m.Step()
			switch {
			case err == nil:
			case errors.Is(err, fuzzy.ErrLoopDepthOverflow):
				overflowTicks++
			default:
				return 0, nil, fmt.Errorf("%s case %d tick %d: %w", t.Name(), i, m.Tick(), err)
			}
		}

		emitted := m.Emitted(len(c.Want))
		loss := 0.0
		for j, want := range c.Want {
			loss += nn.NegLogProb(emitted[j].Prob(want))
		}
		caseLoss[i] = loss / float64(len(c.Want))
		halts[i] = m.Halt()
		ticks[i] = m.Tick()
	}

	meanLoss, err := nn.Avg(caseLoss)
	if err != nil {
		return 0, nil, err
	}
	total := meanLoss + cfg.AmbiguityWeight*ambiguity
	return Fitness(-total), Trace{
		"task":           t.Name(),
		"loss":           total,
		"case_loss":      caseLoss,
		"halt":           halts,
		"ticks":          ticks,
		"overflow_ticks": overflowTicks,
		"ambiguity":      ambiguity,
		"entropy":        entropy,
		"program":        program,
	}, nil
}

// programEntropy is the mean per-slot entropy in nats.
func programEntropy(program []fuzzy.Instr) float64 {
	if len(program) == 0 {
		return 0
	}
	total := 0.0
	for _, in := range program {
		total += nn.Entropy(in[:])
	}
	return total / float64(len(program))
}

func inputTape(in []byte) [][]float64 {
	if len(in) == 0 {
		return nil
	}
	return bf.Bytes(in)
}
