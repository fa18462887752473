package tuning

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"testing"

	"fuzzybf/internal/fuzzy"
	"fuzzybf/internal/model"
)

func newProgram(slots int) model.Program {
	logits := make([][]float64, slots)
	for i := range logits {
		logits[i] = make([]float64, fuzzy.NumOps)
	}
	return model.Program{ID: "p", Task: "echo", Logits: logits}
}

// distanceFitness peaks when slot 0 prefers ',' by a margin of 3.
func distanceFitness(_ context.Context, p model.Program) (float64, error) {
	delta := p.Logits[0][fuzzy.OpIn] - 3
	return -delta * delta, nil
}

func TestExoselfImprovesFitness(t *testing.T) {
	program := newProgram(2)
	tuner := &Exoself{Rand: rand.New(rand.NewSource(1)), Steps: 2, StepSize: 0.8}

	before, _ := distanceFitness(context.Background(), program)
	tuned, report, err := tuner.TuneWithReport(context.Background(), program, 60, distanceFitness)
	if err != nil {
		t.Fatalf("tune: %v", err)
	}
	after, _ := distanceFitness(context.Background(), tuned)

	if after <= before {
		t.Fatalf("expected tuned fitness > baseline: before=%f after=%f", before, after)
	}
	if tuned.Fitness != after || report.BestFitness != after || report.InitialFitness != before {
		t.Fatalf("expected fitness recorded on program and report: program=%f report=%+v", tuned.Fitness, report)
	}
	if report.AttemptsExecuted != 60 || report.CandidateEvaluations != 61 {
		t.Fatalf("unexpected report counts: %+v", report)
	}
	if report.AcceptedCandidates+report.RejectedCandidates != 60 {
		t.Fatalf("expected every candidate accepted or rejected: %+v", report)
	}
	if program.Logits[0][fuzzy.OpIn] != 0 {
		t.Fatal("expected input program to be left untouched")
	}
}

func TestExoselfLeavesHaltSlotAlone(t *testing.T) {
	program := newProgram(3)
	tuner := &Exoself{Rand: rand.New(rand.NewSource(5)), Steps: 4, StepSize: 1}
	anyChange := func(_ context.Context, p model.Program) (float64, error) {
		total := 0.0
		for _, row := range p.Logits {
			for _, v := range row {
				total += math.Abs(v)
			}
		}
		return total, nil
	}
	tuned, err := tuner.Tune(context.Background(), program, 20, anyChange)
	if err != nil {
		t.Fatalf("tune: %v", err)
	}
	for _, v := range tuned.Logits[2] {
		if v != 0 {
			t.Fatalf("expected halt slot untouched, got %v", tuned.Logits[2])
		}
	}
}

func TestExoselfClampsLogits(t *testing.T) {
	program := newProgram(2)
	tuner := &Exoself{Rand: rand.New(rand.NewSource(9)), Steps: 1, StepSize: 500}
	grow := func(_ context.Context, p model.Program) (float64, error) {
		total := 0.0
		for _, v := range p.Logits[0] {
			total += math.Abs(v)
		}
		return total, nil
	}
	tuned, err := tuner.Tune(context.Background(), program, 30, grow)
	if err != nil {
		t.Fatalf("tune: %v", err)
	}
	for _, v := range tuned.Logits[0] {
		if math.Abs(v) > LogitLimit {
			t.Fatalf("expected logits within +-%v, got %v", LogitLimit, tuned.Logits[0])
		}
	}
}

func TestExoselfSingleSlotNoop(t *testing.T) {
	tuner := &Exoself{Rand: rand.New(rand.NewSource(1)), Steps: 4, StepSize: 0.2}
	program := newProgram(1)

	out, err := tuner.Tune(context.Background(), program, 10, func(context.Context, model.Program) (float64, error) {
		return 0, nil
	})
	if err != nil {
		t.Fatalf("tune: %v", err)
	}
	if out.ID != program.ID || len(out.Logits) != 1 {
		t.Fatalf("unexpected program mutation: %+v", out)
	}
}

func TestExoselfInputValidation(t *testing.T) {
	program := newProgram(2)
	fitnessFn := func(context.Context, model.Program) (float64, error) { return 0, nil }
	rng := func() *rand.Rand { return rand.New(rand.NewSource(1)) }

	cases := map[string]*Exoself{
		"rand":                {},
		"steps":               {Rand: rng(), Steps: 0, StepSize: 1},
		"step size":           {Rand: rng(), Steps: 1, StepSize: 0},
		"perturbation range":  {Rand: rng(), Steps: 1, StepSize: 1, PerturbationRange: -1},
		"annealing factor":    {Rand: rng(), Steps: 1, StepSize: 1, AnnealingFactor: -1},
		"min improvement":     {Rand: rng(), Steps: 1, StepSize: 1, MinImprovement: -0.1},
		"candidate selection": {Rand: rng(), Steps: 1, StepSize: 1, CandidateSelection: "unknown"},
	}
	for name, tuner := range cases {
		if _, err := tuner.Tune(context.Background(), program, 1, fitnessFn); err == nil {
			t.Fatalf("expected %s validation error", name)
		}
	}
	if _, err := (&Exoself{Rand: rng(), Steps: 1, StepSize: 1}).Tune(context.Background(), program, 1, nil); err == nil {
		t.Fatal("expected fitness validation error")
	}
}

func TestExoselfMinImprovementBlocksSmallGains(t *testing.T) {
	program := newProgram(2)
	tuner := &Exoself{
		Rand:           rand.New(rand.NewSource(3)),
		Steps:          1,
		StepSize:       0.25,
		MinImprovement: 0.5,
	}
	fitnessFn := func(_ context.Context, p model.Program) (float64, error) {
		return -math.Abs(p.Logits[0][fuzzy.OpIn] - 0.2), nil
	}

	tuned, err := tuner.Tune(context.Background(), program, 40, fitnessFn)
	if err != nil {
		t.Fatalf("tune: %v", err)
	}
	if tuned.Logits[0][fuzzy.OpIn] != 0 {
		t.Fatalf("expected unchanged logits when gains are below threshold: got=%v", tuned.Logits[0])
	}
}

func TestExoselfAttemptsZeroReturnsClone(t *testing.T) {
	program := newProgram(2)
	program.Logits[0][1] = 1
	tuner := &Exoself{Rand: rand.New(rand.NewSource(1)), Steps: 2, StepSize: 0.5}

	out, err := tuner.Tune(context.Background(), program, 0, func(context.Context, model.Program) (float64, error) {
		return math.Pi, nil
	})
	if err != nil {
		t.Fatalf("tune: %v", err)
	}
	out.Logits[0][1] = 7
	if program.Logits[0][1] != 1 {
		t.Fatal("expected returned program to be a copy")
	}
}

func TestExoselfSelectionModesSupported(t *testing.T) {
	program := newProgram(3)
	modes := []string{
		CandidateSelectBestSoFar,
		CandidateSelectOriginal,
		CandidateSelectDynamicA,
		CandidateSelectDynamic,
		CandidateSelectRecent,
		CandidateSelectRecentRnd,
		CandidateSelectCurrent,
		CandidateSelectCurrentRd,
	}
	for i, mode := range modes {
		tuner := &Exoself{
			Rand:               rand.New(rand.NewSource(int64(100 + i))),
			Steps:              3,
			StepSize:           0.15,
			CandidateSelection: mode,
		}
		if _, err := tuner.Tune(context.Background(), program, 8, distanceFitness); err != nil {
			t.Fatalf("tune with mode=%s: %v", mode, err)
		}
	}
}

func TestExoselfRandomSelectionModesReturnNonEmptyPool(t *testing.T) {
	tuner := &Exoself{Rand: rand.New(rand.NewSource(11))}
	best := model.Program{ID: "best"}
	original := model.Program{ID: "original"}
	recent := model.Program{ID: "recent"}

	for _, mode := range []string{CandidateSelectDynamic, CandidateSelectRecentRnd, CandidateSelectCurrentRd} {
		tuner.CandidateSelection = mode
		pool, err := tuner.candidateBases(best, original, recent)
		if err != nil {
			t.Fatalf("candidateBases(%s): %v", mode, err)
		}
		if len(pool) == 0 {
			t.Fatalf("candidateBases(%s) returned empty pool", mode)
		}
	}
}

func TestExoselfConcurrentTuneSafe(t *testing.T) {
	program := newProgram(3)
	tuner := &Exoself{Rand: rand.New(rand.NewSource(1)), Steps: 4, StepSize: 0.2}

	var wg sync.WaitGroup
	errCh := make(chan error, 32)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := tuner.Tune(context.Background(), program, 8, distanceFitness); err != nil {
				errCh <- err
			}
		}()
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		t.Fatalf("unexpected tuning error: %v", err)
	}
}

func TestExoselfStopsEarlyWhenGoalReached(t *testing.T) {
	calls := 0
	tuner := &Exoself{
		Rand:        rand.New(rand.NewSource(19)),
		Steps:       4,
		StepSize:    0.2,
		GoalFitness: -0.1,
	}
	fitnessFn := func(context.Context, model.Program) (float64, error) {
		calls++
		return -0.01, nil
	}
	_, report, err := tuner.TuneWithReport(context.Background(), newProgram(2), 25, fitnessFn)
	if err != nil {
		t.Fatalf("tune: %v", err)
	}
	if calls != 1 || !report.GoalReached {
		t.Fatalf("expected goal short-circuit after one evaluation, calls=%d report=%+v", calls, report)
	}
}

func TestExoselfPerturbationRangeAffectsDelta(t *testing.T) {
	program := newProgram(2)
	magnitude := func(_ context.Context, p model.Program) (float64, error) {
		total := 0.0
		for _, v := range p.Logits[0] {
			total += math.Abs(v)
		}
		return total, nil
	}

	base := Exoself{
		Rand:               rand.New(rand.NewSource(23)),
		Steps:              1,
		StepSize:           0.25,
		CandidateSelection: CandidateSelectOriginal,
	}
	tunedBase, err := base.Tune(context.Background(), program, 1, magnitude)
	if err != nil {
		t.Fatalf("base tune: %v", err)
	}

	ranged := Exoself{
		Rand:               rand.New(rand.NewSource(23)),
		Steps:              1,
		StepSize:           0.25,
		PerturbationRange:  2.0,
		CandidateSelection: CandidateSelectOriginal,
	}
	tunedRanged, err := ranged.Tune(context.Background(), program, 1, magnitude)
	if err != nil {
		t.Fatalf("ranged tune: %v", err)
	}

	baseDelta, _ := magnitude(context.Background(), tunedBase)
	rangedDelta, _ := magnitude(context.Background(), tunedRanged)
	if rangedDelta <= baseDelta {
		t.Fatalf("expected perturbation range to increase magnitude: base=%f ranged=%f", baseDelta, rangedDelta)
	}
}
