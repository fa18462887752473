package tuning

import (
	"fmt"

	"fuzzybf/internal/model"
)

// AttemptPolicy decides how many tuning attempts restart number restart of
// totalRestarts receives.
type AttemptPolicy interface {
	Name() string
	Attempts(baseAttempts, restart, totalRestarts int, program model.Program) int
}

type FixedAttemptPolicy struct{}

func (FixedAttemptPolicy) Name() string { return "fixed" }

func (FixedAttemptPolicy) Attempts(baseAttempts, _restart, _totalRestarts int, _ model.Program) int {
	if baseAttempts < 0 {
		return 0
	}
	return baseAttempts
}

type LinearDecayAttemptPolicy struct {
	MinAttempts int
}

func (LinearDecayAttemptPolicy) Name() string { return "linear_decay" }

func (p LinearDecayAttemptPolicy) Attempts(baseAttempts, restart, totalRestarts int, _ model.Program) int {
	if baseAttempts <= 0 {
		return 0
	}
	if totalRestarts <= 0 {
		return baseAttempts
	}
	remaining := totalRestarts - restart
	if remaining < 1 {
		remaining = 1
	}
	attempts := (baseAttempts * remaining) / totalRestarts
	if attempts < p.MinAttempts {
		attempts = p.MinAttempts
	}
	if attempts < 0 {
		return 0
	}
	return attempts
}

// LengthScaledAttemptPolicy grows the budget with the number of program
// slots, since each slot adds eight logits to search.
type LengthScaledAttemptPolicy struct {
	Scale       float64
	MinAttempts int
	MaxAttempts int
}

func (LengthScaledAttemptPolicy) Name() string { return "length_scaled" }

func (p LengthScaledAttemptPolicy) Attempts(baseAttempts, _restart, _totalRestarts int, program model.Program) int {
	if baseAttempts <= 0 {
		return 0
	}
	scale := p.Scale
	if scale <= 0 {
		scale = 1.0
	}
	attempts := int(float64(baseAttempts) * scale * (1.0 + float64(len(program.Logits))/10.0))
	if attempts < p.MinAttempts {
		attempts = p.MinAttempts
	}
	if p.MaxAttempts > 0 && attempts > p.MaxAttempts {
		attempts = p.MaxAttempts
	}
	return attempts
}

func AttemptPolicyFromConfig(name string, param float64) (AttemptPolicy, error) {
	switch NormalizeAttemptPolicyName(name) {
	case "fixed":
		return FixedAttemptPolicy{}, nil
	case "linear_decay":
		min := int(param)
		if min < 1 {
			min = 1
		}
		return LinearDecayAttemptPolicy{MinAttempts: min}, nil
	case "length_scaled":
		scale := param
		if scale <= 0 {
			scale = 1.0
		}
		return LengthScaledAttemptPolicy{Scale: scale, MinAttempts: 1}, nil
	default:
		return nil, fmt.Errorf("unsupported attempt policy: %s", name)
	}
}

func NormalizeAttemptPolicyName(name string) string {
	switch name {
	case "", "fixed", "const":
		return "fixed"
	default:
		return name
	}
}
