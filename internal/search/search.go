package search

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"fuzzybf/internal/bf"
	"fuzzybf/internal/fuzzy"
	"fuzzybf/internal/model"
	"fuzzybf/internal/nn"
	"fuzzybf/internal/storage"
	"fuzzybf/internal/task"
	"fuzzybf/internal/tuning"
)

const (
	DefaultProgramSize = 6
	DefaultRestarts    = 4
	DefaultAttempts    = 40
	DefaultInitScale   = 1.0
)

// TunerFactory builds the tuner for one restart from that restart's random
// source, so restarts stay reproducible regardless of scheduling.
type TunerFactory func(rng *rand.Rand) tuning.Tuner

type Config struct {
	Task          task.Task
	Evaluator     task.Evaluator
	NewTuner      TunerFactory
	AttemptPolicy tuning.AttemptPolicy
	Restarts      int
	Attempts      int
	Workers       int
	Seed          int64
	// InitScale is the standard deviation of the initial random logits.
	InitScale float64
	RunID     string
	Store     storage.Store
	Logger    *slog.Logger
	Now       func() time.Time
}

type RestartResult struct {
	Index   int
	Program model.Program
	Report  tuning.TuneReport
}

type Result struct {
	Run       model.Run
	Best      model.Program
	BestTrace task.Trace
	Restarts  []RestartResult
}

type Search struct {
	cfg Config
}

func DefaultTuner(rng *rand.Rand) tuning.Tuner {
	return &tuning.Exoself{
		Rand:            rng,
		Steps:           3,
		StepSize:        1.0,
		AnnealingFactor: 0.8,
	}
}

func New(cfg Config) (*Search, error) {
	if cfg.Task == nil {
		return nil, fmt.Errorf("task is required")
	}
	if cfg.Evaluator.ProgramSize <= 0 {
		cfg.Evaluator.ProgramSize = DefaultProgramSize
	}
	if cfg.Evaluator.ProgramSize < 2 {
		return nil, fmt.Errorf("program size must be >= 2")
	}
	if cfg.Restarts < 0 || cfg.Attempts < 0 {
		return nil, fmt.Errorf("restarts and attempts must be >= 0")
	}
	if cfg.Restarts == 0 {
		cfg.Restarts = DefaultRestarts
	}
	if cfg.Attempts == 0 {
		cfg.Attempts = DefaultAttempts
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.InitScale < 0 {
		return nil, fmt.Errorf("init scale must be >= 0")
	}
	if cfg.InitScale == 0 {
		cfg.InitScale = DefaultInitScale
	}
	if cfg.NewTuner == nil {
		cfg.NewTuner = DefaultTuner
	}
	if cfg.AttemptPolicy == nil {
		cfg.AttemptPolicy = tuning.FixedAttemptPolicy{}
	}
	if cfg.RunID == "" {
		cfg.RunID = uuid.NewString()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Search{cfg: cfg}, nil
}

// Run tunes every restart on the worker pool, keeps the best program and
// persists it with the run summary when a store is configured.
func (s *Search) Run(ctx context.Context) (Result, error) {
	cfg := s.cfg
	log := cfg.Logger.With("run_id", cfg.RunID, "task", cfg.Task.Name())
	log.Info("search started", "restarts", cfg.Restarts, "attempts", cfg.Attempts, "workers", cfg.Workers, "program_size", cfg.Evaluator.ProgramSize)

	restarts, err := s.runRestarts(ctx, log)
	if err != nil {
		return Result{}, err
	}

	bestIdx := 0
	restartFitness := make([]float64, len(restarts))
	for i, r := range restarts {
		restartFitness[i] = r.Program.Fitness
		if r.Program.Fitness > restarts[bestIdx].Program.Fitness {
			bestIdx = i
		}
	}

	now := cfg.Now().UTC()
	best := restarts[bestIdx].Program
	best.VersionedRecord = storage.Versioned()
	best.ID = uuid.NewString()
	best.Task = cfg.Task.Name()
	best.RunID = cfg.RunID
	best.Source = bf.DecodeLogits(best.Logits)
	best.CreatedAt = now

	fitness, trace, err := cfg.Evaluator.Evaluate(ctx, cfg.Task, best.Logits)
	if err != nil {
		return Result{}, err
	}
	best.Fitness = float64(fitness)

	run := model.Run{
		VersionedRecord: storage.Versioned(),
		ID:              cfg.RunID,
		Task:            cfg.Task.Name(),
		Seed:            cfg.Seed,
		Restarts:        cfg.Restarts,
		BestProgramID:   best.ID,
		BestFitness:     best.Fitness,
		RestartFitness:  restartFitness,
		CreatedAt:       now,
	}

	if cfg.Store != nil {
		if err := cfg.Store.SaveProgram(ctx, best); err != nil {
			return Result{}, fmt.Errorf("save program: %w", err)
		}
		if err := cfg.Store.SaveRun(ctx, run); err != nil {
			return Result{}, fmt.Errorf("save run: %w", err)
		}
	}

	mean, err := nn.Avg(restartFitness)
	if err != nil {
		return Result{}, err
	}
	spread, err := nn.Std(restartFitness)
	if err != nil {
		return Result{}, err
	}
	log.Info("search finished", "best_restart", bestIdx, "best_fitness", best.Fitness, "mean_fitness", mean, "std_fitness", spread, "program", best.Source, "program_id", best.ID)
	return Result{Run: run, Best: best, BestTrace: trace, Restarts: restarts}, nil
}

func (s *Search) runRestarts(ctx context.Context, log *slog.Logger) ([]RestartResult, error) {
	cfg := s.cfg
	type result struct {
		idx     int
		restart RestartResult
		err     error
	}

	jobs := make(chan int)
	results := make(chan result, cfg.Restarts)

	workerCount := cfg.Workers
	if workerCount > cfg.Restarts {
		workerCount = cfg.Restarts
	}

	var wg sync.WaitGroup
	wg.Add(workerCount)
	for w := 0; w < workerCount; w++ {
		go func() {
			defer wg.Done()
			for idx := range jobs {
				if err := ctx.Err(); err != nil {
					results <- result{idx: idx, err: err}
					continue
				}
				restart, err := s.runRestart(ctx, idx)
				if err != nil {
					results <- result{idx: idx, err: fmt.Errorf("restart %d: %w", idx, err)}
					continue
				}
				log.Debug("restart finished", "restart", idx, "fitness", restart.Program.Fitness,
					"accepted", restart.Report.AcceptedCandidates, "evaluations", restart.Report.CandidateEvaluations)
				results <- result{idx: idx, restart: restart}
			}
		}()
	}

	for i := 0; i < cfg.Restarts; i++ {
		jobs <- i
	}
	close(jobs)

	wg.Wait()
	close(results)

	restarts := make([]RestartResult, cfg.Restarts)
	for res := range results {
		if res.err != nil {
			return nil, res.err
		}
		restarts[res.idx] = res.restart
	}
	return restarts, nil
}

func (s *Search) runRestart(ctx context.Context, idx int) (RestartResult, error) {
	cfg := s.cfg
	rng := rand.New(rand.NewSource(cfg.Seed + int64(idx)*7919))

	program := model.Program{
		Task:   cfg.Task.Name(),
		Logits: randomLogits(rng, cfg.Evaluator.ProgramSize, cfg.InitScale),
	}
	fitnessFn := func(ctx context.Context, p model.Program) (float64, error) {
		fitness, _, err := cfg.Evaluator.Evaluate(ctx, cfg.Task, p.Logits)
		return float64(fitness), err
	}

	attempts := cfg.AttemptPolicy.Attempts(cfg.Attempts, idx, cfg.Restarts, program)
	tuner := cfg.NewTuner(rng)
	if reporting, ok := tuner.(tuning.ReportingTuner); ok {
		tuned, report, err := reporting.TuneWithReport(ctx, program, attempts, fitnessFn)
		if err != nil {
			return RestartResult{}, err
		}
		if report.CandidateEvaluations == 0 {
			if tuned.Fitness, err = fitnessFn(ctx, tuned); err != nil {
				return RestartResult{}, err
			}
		}
		return RestartResult{Index: idx, Program: tuned, Report: report}, nil
	}

	tuned, err := tuner.Tune(ctx, program, attempts, fitnessFn)
	if err != nil {
		return RestartResult{}, err
	}
	if tuned.Fitness, err = fitnessFn(ctx, tuned); err != nil {
		return RestartResult{}, err
	}
	return RestartResult{Index: idx, Program: tuned}, nil
}

func randomLogits(rng *rand.Rand, slots int, scale float64) [][]float64 {
	logits := make([][]float64, slots)
	for i := range logits {
		logits[i] = make([]float64, fuzzy.NumOps)
		for j := range logits[i] {
			logits[i][j] = rng.NormFloat64() * scale
		}
	}
	return logits
}
