package search

import (
	"context"
	"errors"
	"math/rand"
	"reflect"
	"testing"
	"time"

	"fuzzybf/internal/bf"
	"fuzzybf/internal/model"
	"fuzzybf/internal/storage"
	"fuzzybf/internal/task"
	"fuzzybf/internal/tuning"
)

// solvedTuner ignores its input and returns the echo program.
type solvedTuner struct{}

func (solvedTuner) Name() string { return "solved" }

func (solvedTuner) Tune(_ context.Context, program model.Program, _ int, _ tuning.FitnessFn) (model.Program, error) {
	ops, _ := bf.Parse(",.")
	logits, _ := bf.Logits(ops, 14, len(program.Logits))
	program.Logits = logits
	return program, nil
}

func smallEvaluator() task.Evaluator {
	return task.Evaluator{ProgramSize: 3, MaxTicks: 12}
}

func TestSearchPersistsBestProgramAndRun(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init store: %v", err)
	}
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	s, err := New(Config{
		Task:      task.Echo(),
		Evaluator: smallEvaluator(),
		NewTuner:  func(*rand.Rand) tuning.Tuner { return solvedTuner{} },
		Restarts:  2,
		Attempts:  1,
		Seed:      5,
		RunID:     "run-echo",
		Store:     store,
		Now:       func() time.Time { return fixed },
	})
	if err != nil {
		t.Fatalf("new search: %v", err)
	}
	res, err := s.Run(ctx)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Best.Source != ",.+" || res.Best.Fitness < -0.05 {
		t.Fatalf("unexpected best program: source=%q fitness=%f", res.Best.Source, res.Best.Fitness)
	}
	if res.Run.ID != "run-echo" || res.Run.BestProgramID != res.Best.ID || len(res.Run.RestartFitness) != 2 {
		t.Fatalf("unexpected run summary: %+v", res.Run)
	}

	stored, ok, err := store.GetProgram(ctx, res.Best.ID)
	if err != nil || !ok {
		t.Fatalf("expected stored program, ok=%t err=%v", ok, err)
	}
	if stored.RunID != "run-echo" || stored.Task != "echo" || !stored.CreatedAt.Equal(fixed) {
		t.Fatalf("unexpected stored program: %+v", stored)
	}
	run, ok, err := store.GetRun(ctx, "run-echo")
	if err != nil || !ok {
		t.Fatalf("expected stored run, ok=%t err=%v", ok, err)
	}
	if run.BestFitness != res.Best.Fitness {
		t.Fatalf("unexpected stored run: %+v", run)
	}
}

func TestSearchRestartsAreIndependentOfWorkerCount(t *testing.T) {
	run := func(workers int) []float64 {
		s, err := New(Config{
			Task:      task.Constant(),
			Evaluator: smallEvaluator(),
			Restarts:  3,
			Attempts:  4,
			Workers:   workers,
			Seed:      42,
		})
		if err != nil {
			t.Fatalf("new search: %v", err)
		}
		res, err := s.Run(context.Background())
		if err != nil {
			t.Fatalf("run: %v", err)
		}
		return res.Run.RestartFitness
	}

	serial := run(1)
	parallel := run(3)
	if !reflect.DeepEqual(serial, parallel) {
		t.Fatalf("expected identical restart fitness: serial=%v parallel=%v", serial, parallel)
	}
}

func TestSearchTuningDoesNotRegress(t *testing.T) {
	s, err := New(Config{
		Task:      task.Echo(),
		Evaluator: smallEvaluator(),
		Restarts:  2,
		Attempts:  6,
		Seed:      3,
	})
	if err != nil {
		t.Fatalf("new search: %v", err)
	}
	res, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	for _, r := range res.Restarts {
		if r.Report.BestFitness < r.Report.InitialFitness {
			t.Fatalf("restart %d regressed: %+v", r.Index, r.Report)
		}
	}
	for _, f := range res.Run.RestartFitness {
		if f > res.Best.Fitness {
			t.Fatalf("best fitness %f below restart fitness %f", res.Best.Fitness, f)
		}
	}
}

func TestSearchValidationAndCancellation(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatal("expected missing task error")
	}
	if _, err := New(Config{Task: task.Echo(), Evaluator: task.Evaluator{ProgramSize: 1}}); err == nil {
		t.Fatal("expected program size error")
	}
	if _, err := New(Config{Task: task.Echo(), Restarts: -1}); err == nil {
		t.Fatal("expected restarts error")
	}

	s, err := New(Config{Task: task.Echo(), Evaluator: smallEvaluator(), Restarts: 2})
	if err != nil {
		t.Fatalf("new search: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
}
