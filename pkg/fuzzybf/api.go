package fuzzybf

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"time"

	"fuzzybf/internal/bf"
	"fuzzybf/internal/fuzzy"
	"fuzzybf/internal/search"
	"fuzzybf/internal/storage"
	"fuzzybf/internal/task"
	"fuzzybf/internal/tuning"
)

const (
	defaultDBPath        = "fuzzybf.db"
	defaultMemorySize    = 16
	defaultOutputSize    = 64
	defaultMaxTicks      = 10000
	defaultHaltThreshold = 0.99
)

var ErrProgramNotFound = errors.New("program not found")

type Options struct {
	StoreKind string
	DBPath    string
	Logger    *slog.Logger
	// TaskScripts are starlark task definitions registered next to the
	// builtin tasks.
	TaskScripts []string
}

type Client struct {
	store  storage.Store
	tasks  *task.Registry
	logger *slog.Logger
}

type ExecRequest struct {
	// Source is Brainfuck text. ProgramID runs a stored program instead.
	Source    string
	ProgramID string
	Input     []byte
	// Sharpness turns Source into softmaxed logits; zero runs the exact
	// one-hot program.
	Sharpness     float64
	MemorySize    int
	MaxLoopDepth  int
	OutputSize    int
	MaxTicks      int
	HaltThreshold float64
	// Compare also runs the crisp interpreter on the decoded program.
	Compare bool
}

type CrispSummary struct {
	Output []byte
	Memory []byte
	Steps  int
	Match  bool
	Err    string
}

type ExecSummary struct {
	Program   string
	Ticks     int
	Halt      float64
	Halted    bool
	Ambiguity float64
	// Output holds the most likely byte of each expected output, oldest
	// first; OutputConfidence holds their probabilities.
	Output           []byte
	OutputConfidence []float64
	// Memory holds the most likely byte of each cell, starting at the
	// active one.
	Memory        []byte
	OverflowTicks int
	Crisp         *CrispSummary
}

type TrainRequest struct {
	Task               string
	TaskScript         string
	ProgramSize        int
	MemorySize         int
	MaxLoopDepth       int
	MaxTicks           int
	AmbiguityWeight    float64
	Restarts           int
	Attempts           int
	Workers            int
	Seed               int64
	InitScale          float64
	AttemptPolicy      string
	AttemptPolicyParam float64
	CandidateSelection string
	Steps              int
	StepSize           float64
	AnnealingFactor    float64
	GoalFitness        float64
}

type TrainSummary struct {
	RunID          string
	ProgramID      string
	Task           string
	Program        string
	Fitness        float64
	RestartFitness []float64
	Trace          map[string]any
}

type ProgramsRequest struct {
	Task  string
	Limit int
}

type ProgramItem struct {
	ID           string
	Task         string
	Source       string
	Fitness      float64
	RunID        string
	CreatedAtUTC string
	Logits       [][]float64
}

type RunsRequest struct {
	Limit int
}

type RunItem struct {
	RunID          string
	CreatedAtUTC   string
	Task           string
	Seed           int64
	Restarts       int
	BestProgramID  string
	BestFitness    float64
	RestartFitness []float64
}

func New(opts Options) (*Client, error) {
	storeKind := opts.StoreKind
	if storeKind == "" {
		storeKind = storage.DefaultStoreKind
	}
	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = defaultDBPath
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	tasks := task.NewRegistry()
	for _, path := range opts.TaskScripts {
		t, err := task.LoadStarlark(path)
		if err != nil {
			return nil, err
		}
		if err := tasks.Register(t); err != nil {
			return nil, err
		}
	}

	store, err := storage.NewStore(storeKind, dbPath)
	if err != nil {
		return nil, err
	}

	return &Client{
		store:  store,
		tasks:  tasks,
		logger: logger,
	}, nil
}

func (c *Client) Close() error {
	return storage.CloseIfSupported(c.store)
}

func (c *Client) Init(ctx context.Context) error {
	return c.store.Init(ctx)
}

func (c *Client) Reset(ctx context.Context) error {
	if err := c.store.Init(ctx); err != nil {
		return err
	}
	return c.store.Reset(ctx)
}

func (c *Client) Tasks() []string {
	return c.tasks.Names()
}

// Exec runs one program on the fuzzy machine until it halts or MaxTicks
// ticks have run.
func (c *Client) Exec(ctx context.Context, req ExecRequest) (ExecSummary, error) {
	cfg, ops, err := c.execConfig(ctx, req)
	if err != nil {
		return ExecSummary{}, err
	}
	maxTicks := req.MaxTicks
	if maxTicks <= 0 {
		maxTicks = defaultMaxTicks
	}
	threshold := req.HaltThreshold
	if threshold <= 0 {
		threshold = defaultHaltThreshold
	}

	m, err := fuzzy.New(cfg)
	if err != nil {
		return ExecSummary{}, err
	}
	summary := ExecSummary{
		Program:   bf.Decode(m.State().Program),
		Ambiguity: m.Ambiguity(),
	}

	expectedOutputs := 0.0
	for m.Tick() < maxTicks && !m.Halted(threshold) {
		if err := ctx.Err(); err != nil {
			return ExecSummary{}, err
		}
		expectedOutputs += m.Gate(fuzzy.OpOut)
		if err := m.Step(); err != nil {
			if !errors.Is(err, fuzzy.ErrLoopDepthOverflow) {
				return ExecSummary{}, fmt.Errorf("tick %d: %w", m.Tick(), err)
			}
			summary.OverflowTicks++
		}
	}

	summary.Ticks = m.Tick()
	summary.Halt = m.Halt()
	summary.Halted = m.Halted(threshold)
	for _, cell := range m.Emitted(int(math.Round(expectedOutputs))) {
		v := cell.Argmax()
		summary.Output = append(summary.Output, v)
		summary.OutputConfidence = append(summary.OutputConfidence, cell.Prob(v))
	}
	for _, cell := range m.State().Memory {
		summary.Memory = append(summary.Memory, cell.Argmax())
	}
	c.logger.Debug("exec finished", "program", summary.Program, "ticks", summary.Ticks, "halt", summary.Halt, "overflow_ticks", summary.OverflowTicks)

	if req.Compare {
		summary.Crisp = compareCrisp(ctx, ops, req.Input, summary, cfg.MemorySize, maxTicks)
	}
	return summary, nil
}

func (c *Client) execConfig(ctx context.Context, req ExecRequest) (fuzzy.Config, []fuzzy.Op, error) {
	cfg := fuzzy.Config{
		MemorySize:   req.MemorySize,
		OutputSize:   req.OutputSize,
		MaxLoopDepth: req.MaxLoopDepth,
	}
	if cfg.MemorySize <= 0 {
		cfg.MemorySize = defaultMemorySize
	}
	if cfg.OutputSize <= 0 {
		cfg.OutputSize = defaultOutputSize
	}
	if len(req.Input) > 0 {
		cfg.Input = bf.Bytes(req.Input)
	}

	var ops []fuzzy.Op
	switch {
	case req.Source == "" && req.ProgramID == "":
		return fuzzy.Config{}, nil, fmt.Errorf("source or program id is required")
	case req.Source != "" && req.ProgramID != "":
		return fuzzy.Config{}, nil, fmt.Errorf("source and program id are mutually exclusive")
	case req.ProgramID != "":
		if err := c.store.Init(ctx); err != nil {
			return fuzzy.Config{}, nil, err
		}
		program, ok, err := c.store.GetProgram(ctx, req.ProgramID)
		if err != nil {
			return fuzzy.Config{}, nil, err
		}
		if !ok {
			return fuzzy.Config{}, nil, fmt.Errorf("%w: %s", ErrProgramNotFound, req.ProgramID)
		}
		cfg.Logits = program.Logits
		cfg.ProgramSize = len(program.Logits)
		// The crisp comparison runs the decoded program without its halt slot.
		decoded := bf.DecodeLogits(program.Logits)
		ops, _ = bf.Parse(decoded[:len(decoded)-1])
	default:
		parsed, err := bf.Parse(req.Source)
		if err != nil {
			return fuzzy.Config{}, nil, err
		}
		ops = parsed
		cfg.ProgramSize = len(ops) + 1
		if req.Sharpness > 0 {
			if cfg.Logits, err = bf.Logits(ops, req.Sharpness, cfg.ProgramSize); err != nil {
				return fuzzy.Config{}, nil, err
			}
		} else {
			cfg.Program = bf.Distribution(ops)
		}
	}
	if cfg.MaxLoopDepth <= 0 {
		cfg.MaxLoopDepth = cfg.ProgramSize
	}
	return cfg, ops, nil
}

func compareCrisp(ctx context.Context, ops []fuzzy.Op, input []byte, fuzzySummary ExecSummary, memorySize, maxSteps int) *CrispSummary {
	out := &CrispSummary{}
	if ops == nil {
		out.Err = "decoded program has unbalanced brackets"
		return out
	}
	it, err := bf.NewInterpreter(ops, memorySize, maxSteps)
	if err != nil {
		out.Err = err.Error()
		return out
	}
	res, err := it.Run(ctx, input)
	if err != nil {
		out.Err = err.Error()
	}
	out.Output = res.Output
	out.Memory = res.Active()
	out.Steps = res.Steps
	out.Match = err == nil && string(out.Output) == string(fuzzySummary.Output) && string(out.Memory) == string(fuzzySummary.Memory)
	return out
}

func (c *Client) Train(ctx context.Context, req TrainRequest) (TrainSummary, error) {
	if err := c.store.Init(ctx); err != nil {
		return TrainSummary{}, err
	}

	var t task.Task
	switch {
	case req.TaskScript != "":
		loaded, err := task.LoadStarlark(req.TaskScript)
		if err != nil {
			return TrainSummary{}, err
		}
		t = loaded
	case req.Task != "":
		found, err := c.tasks.Get(req.Task)
		if err != nil {
			return TrainSummary{}, err
		}
		t = found
	default:
		return TrainSummary{}, fmt.Errorf("task is required")
	}

	policy, err := tuning.AttemptPolicyFromConfig(req.AttemptPolicy, req.AttemptPolicyParam)
	if err != nil {
		return TrainSummary{}, err
	}
	steps := req.Steps
	if steps <= 0 {
		steps = 3
	}
	stepSize := req.StepSize
	if stepSize <= 0 {
		stepSize = 1.0
	}
	annealing := req.AnnealingFactor
	if annealing <= 0 {
		annealing = 0.8
	}
	newTuner := func(rng *rand.Rand) tuning.Tuner {
		return &tuning.Exoself{
			Rand:               rng,
			Steps:              steps,
			StepSize:           stepSize,
			AnnealingFactor:    annealing,
			GoalFitness:        req.GoalFitness,
			CandidateSelection: req.CandidateSelection,
		}
	}

	s, err := search.New(search.Config{
		Task: t,
		Evaluator: task.Evaluator{
			ProgramSize:     req.ProgramSize,
			MemorySize:      req.MemorySize,
			MaxLoopDepth:    req.MaxLoopDepth,
			MaxTicks:        req.MaxTicks,
			AmbiguityWeight: req.AmbiguityWeight,
		},
		NewTuner:      newTuner,
		AttemptPolicy: policy,
		Restarts:      req.Restarts,
		Attempts:      req.Attempts,
		Workers:       req.Workers,
		Seed:          req.Seed,
		InitScale:     req.InitScale,
		Store:         c.store,
		Logger:        c.logger,
	})
	if err != nil {
		return TrainSummary{}, err
	}
	res, err := s.Run(ctx)
	if err != nil {
		return TrainSummary{}, err
	}
	return TrainSummary{
		RunID:          res.Run.ID,
		ProgramID:      res.Best.ID,
		Task:           res.Best.Task,
		Program:        res.Best.Source,
		Fitness:        res.Best.Fitness,
		RestartFitness: append([]float64(nil), res.Run.RestartFitness...),
		Trace:          res.BestTrace,
	}, nil
}

func (c *Client) Programs(ctx context.Context, req ProgramsRequest) ([]ProgramItem, error) {
	if err := c.store.Init(ctx); err != nil {
		return nil, err
	}
	programs, err := c.store.ListPrograms(ctx, req.Task)
	if err != nil {
		return nil, err
	}
	if req.Limit > 0 && len(programs) > req.Limit {
		programs = programs[:req.Limit]
	}
	items := make([]ProgramItem, 0, len(programs))
	for _, p := range programs {
		items = append(items, ProgramItem{
			ID:           p.ID,
			Task:         p.Task,
			Source:       p.Source,
			Fitness:      p.Fitness,
			RunID:        p.RunID,
			CreatedAtUTC: p.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	return items, nil
}

func (c *Client) Program(ctx context.Context, id string) (ProgramItem, error) {
	if err := c.store.Init(ctx); err != nil {
		return ProgramItem{}, err
	}
	p, ok, err := c.store.GetProgram(ctx, id)
	if err != nil {
		return ProgramItem{}, err
	}
	if !ok {
		return ProgramItem{}, fmt.Errorf("%w: %s", ErrProgramNotFound, id)
	}
	return ProgramItem{
		ID:           p.ID,
		Task:         p.Task,
		Source:       p.Source,
		Fitness:      p.Fitness,
		RunID:        p.RunID,
		CreatedAtUTC: p.CreatedAt.UTC().Format(time.RFC3339),
		Logits:       p.Logits,
	}, nil
}

func (c *Client) Runs(ctx context.Context, req RunsRequest) ([]RunItem, error) {
	if err := c.store.Init(ctx); err != nil {
		return nil, err
	}
	runs, err := c.store.ListRuns(ctx)
	if err != nil {
		return nil, err
	}
	if req.Limit > 0 && len(runs) > req.Limit {
		runs = runs[:req.Limit]
	}
	items := make([]RunItem, 0, len(runs))
	for _, r := range runs {
		items = append(items, RunItem{
			RunID:          r.ID,
			CreatedAtUTC:   r.CreatedAt.UTC().Format(time.RFC3339),
			Task:           r.Task,
			Seed:           r.Seed,
			Restarts:       r.Restarts,
			BestProgramID:  r.BestProgramID,
			BestFitness:    r.BestFitness,
			RestartFitness: r.RestartFitness,
		})
	}
	return items, nil
}
