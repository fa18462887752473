package tuning

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"sync"

	"fuzzybf/internal/model"
	"fuzzybf/internal/nn"
)

// LogitLimit bounds every tuned logit. Past it softmax is already crisp to
// within float precision.
const LogitLimit = 30.0

// Exoself hill-climbs program logits. Each attempt perturbs one or more
// candidate bases Steps times with an annealed spread and keeps the best
// candidate that beats the incumbent by more than MinImprovement.
type Exoself struct {
	Rand              *rand.Rand
	Steps             int
	StepSize          float64
	PerturbationRange float64
	AnnealingFactor   float64
	MinImprovement    float64
	// GoalFitness stops tuning once reached. Fitness is a negated loss, so a
	// useful goal sits just below zero; zero disables it.
	GoalFitness        float64
	CandidateSelection string
	mu                 sync.Mutex
}

const (
	CandidateSelectBestSoFar = "best_so_far"
	CandidateSelectOriginal  = "original"
	CandidateSelectDynamicA  = "dynamic"
	CandidateSelectDynamic   = "dynamic_random"
	CandidateSelectRecent    = "recent"
	CandidateSelectRecentRnd = "recent_random"
	CandidateSelectCurrent   = "current"
	CandidateSelectCurrentRd = "current_random"
)

func (e *Exoself) Name() string {
	return "exoself_hillclimb"
}

func (e *Exoself) SetGoalFitness(goal float64) {
	e.GoalFitness = goal
}

func (e *Exoself) Tune(ctx context.Context, program model.Program, attempts int, fitness FitnessFn) (model.Program, error) {
	tuned, _, err := e.TuneWithReport(ctx, program, attempts, fitness)
	return tuned, err
}

func (e *Exoself) TuneWithReport(ctx context.Context, program model.Program, attempts int, fitness FitnessFn) (model.Program, TuneReport, error) {
	report := TuneReport{AttemptsPlanned: attempts}
	if err := ctx.Err(); err != nil {
		return model.Program{}, report, err
	}
	if err := e.validate(fitness); err != nil {
		return model.Program{}, report, err
	}
	if attempts <= 0 || tunableSlots(program) == 0 {
		return cloneProgram(program), report, nil
	}
	perturbationRange := e.PerturbationRange
	if perturbationRange == 0 {
		perturbationRange = 1.0
	}
	annealingFactor := e.AnnealingFactor
	if annealingFactor == 0 {
		annealingFactor = 1.0
	}

	best := cloneProgram(program)
	bestFitness, err := fitness(ctx, best)
	if err != nil {
		return model.Program{}, report, err
	}
	report.CandidateEvaluations++
	report.InitialFitness = bestFitness
	best.Fitness = bestFitness
	if e.goalReached(bestFitness) {
		report.GoalReached = true
		report.BestFitness = bestFitness
		return best, report, nil
	}
	recentBase := cloneProgram(best)

	for a := 0; a < attempts; a++ {
		report.AttemptsExecuted++
		bases, err := e.candidateBases(best, program, recentBase)
		if err != nil {
			return model.Program{}, report, err
		}
		localBest := cloneProgram(best)
		localBestFitness := bestFitness
		for _, base := range bases {
			candidate, err := e.perturbCandidate(ctx, base, perturbationRange, annealingFactor)
			if err != nil {
				return model.Program{}, report, err
			}
			candidateFitness, err := fitness(ctx, candidate)
			if err != nil {
				return model.Program{}, report, err
			}
			report.CandidateEvaluations++
			if candidateFitness > localBestFitness+e.MinImprovement {
				localBest = candidate
				localBestFitness = candidateFitness
				report.AcceptedCandidates++
			} else {
				report.RejectedCandidates++
			}
		}
		recentBase = cloneProgram(localBest)
		if localBestFitness > bestFitness+e.MinImprovement {
			best = localBest
			bestFitness = localBestFitness
			best.Fitness = bestFitness
		}
		if e.goalReached(bestFitness) {
			report.GoalReached = true
			break
		}
	}

	report.BestFitness = bestFitness
	return best, report, nil
}

func (e *Exoself) validate(fitness FitnessFn) error {
	if e == nil || e.Rand == nil {
		return errors.New("random source is required")
	}
	if e.Steps <= 0 {
		return errors.New("steps must be > 0")
	}
	if e.StepSize <= 0 {
		return errors.New("step size must be > 0")
	}
	if e.PerturbationRange < 0 {
		return errors.New("perturbation range must be >= 0")
	}
	if e.AnnealingFactor < 0 {
		return errors.New("annealing factor must be >= 0")
	}
	if e.MinImprovement < 0 {
		return errors.New("min improvement must be >= 0")
	}
	if fitness == nil {
		return errors.New("fitness function is required")
	}
	switch NormalizeCandidateSelectionName(e.CandidateSelection) {
	case CandidateSelectBestSoFar, CandidateSelectOriginal, CandidateSelectDynamicA, CandidateSelectDynamic,
		CandidateSelectRecent, CandidateSelectRecentRnd, CandidateSelectCurrent, CandidateSelectCurrentRd:
		return nil
	default:
		return errors.New("unsupported candidate selection")
	}
}

func (e *Exoself) goalReached(fitness float64) bool {
	return e.GoalFitness != 0 && fitness >= e.GoalFitness
}

func (e *Exoself) randIntn(n int) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.Rand.Intn(n)
}

func (e *Exoself) randFloat64() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.Rand.Float64()
}

func cloneProgram(p model.Program) model.Program {
	out := p
	out.Logits = make([][]float64, len(p.Logits))
	for i, row := range p.Logits {
		out.Logits[i] = append([]float64(nil), row...)
	}
	return out
}

// tunableSlots excludes the trailing halt slot, whose contents never run.
func tunableSlots(p model.Program) int {
	if len(p.Logits) < 2 {
		return 0
	}
	return len(p.Logits) - 1
}

func NormalizeCandidateSelectionName(name string) string {
	switch name {
	case "":
		return CandidateSelectBestSoFar
	default:
		return name
	}
}

func (e *Exoself) candidateBases(best, original, recent model.Program) ([]model.Program, error) {
	mode := NormalizeCandidateSelectionName(e.CandidateSelection)
	if isRandomSelection(mode) {
		pool, err := e.candidateBasesForMode(nonRandomModeFor(mode), best, original, recent)
		if err != nil {
			return nil, err
		}
		return e.randomSubset(pool), nil
	}
	return e.candidateBasesForMode(mode, best, original, recent)
}

func (e *Exoself) candidateBasesForMode(mode string, best, original, recent model.Program) ([]model.Program, error) {
	switch mode {
	case CandidateSelectBestSoFar:
		return []model.Program{cloneProgram(best)}, nil
	case CandidateSelectOriginal:
		return []model.Program{cloneProgram(original)}, nil
	case CandidateSelectDynamicA:
		return []model.Program{cloneProgram(best), cloneProgram(original)}, nil
	case CandidateSelectRecent:
		return []model.Program{cloneProgram(recent)}, nil
	case CandidateSelectCurrent:
		return []model.Program{cloneProgram(best), cloneProgram(original), cloneProgram(recent)}, nil
	default:
		return nil, errors.New("unsupported candidate selection")
	}
}

func isRandomSelection(mode string) bool {
	switch mode {
	case CandidateSelectDynamic, CandidateSelectRecentRnd, CandidateSelectCurrentRd:
		return true
	default:
		return false
	}
}

func nonRandomModeFor(mode string) string {
	switch mode {
	case CandidateSelectDynamic:
		return CandidateSelectDynamicA
	case CandidateSelectRecentRnd:
		return CandidateSelectRecent
	case CandidateSelectCurrentRd:
		return CandidateSelectCurrent
	default:
		return mode
	}
}

func (e *Exoself) randomSubset(pool []model.Program) []model.Program {
	if len(pool) <= 1 {
		return pool
	}
	keepP := 1 / math.Sqrt(float64(len(pool)))
	chosen := make([]model.Program, 0, len(pool))
	for i := range pool {
		if e.randFloat64() < keepP {
			chosen = append(chosen, pool[i])
		}
	}
	if len(chosen) > 0 {
		return chosen
	}
	return []model.Program{pool[e.randIntn(len(pool))]}
}

func (e *Exoself) perturbCandidate(ctx context.Context, base model.Program, perturbationRange, annealingFactor float64) (model.Program, error) {
	candidate := cloneProgram(base)
	slots := tunableSlots(candidate)
	for s := 0; s < e.Steps; s++ {
		if err := ctx.Err(); err != nil {
			return model.Program{}, err
		}
		row := candidate.Logits[e.randIntn(slots)]
		if len(row) == 0 {
			continue
		}
		idx := e.randIntn(len(row))
		spread := e.StepSize * perturbationRange * math.Pow(annealingFactor, float64(s))
		row[idx] = nn.SaturationWithSpread(row[idx]+(e.randFloat64()*2-1)*spread, LogitLimit)
	}
	return candidate, nil
}
