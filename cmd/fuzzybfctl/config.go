package main

import (
	"flag"

	"fuzzybf/internal/configs"
	fuzzyapi "fuzzybf/pkg/fuzzybf"
)

// registerTrainFlags binds one flag per run config field. Flags are named
// after the config keys with dashes.
func registerTrainFlags(fs *flag.FlagSet) *configs.Run {
	r := &configs.Run{}
	fs.StringVar(&r.Task, "task", "", "builtin or registered task name")
	fs.StringVar(&r.TaskScript, "task-file", "", "train on this starlark task script")
	fs.IntVar(&r.ProgramSize, "program-size", 0, "program slots including the halt slot")
	fs.IntVar(&r.MemorySize, "memory-size", 0, "memory cells")
	fs.IntVar(&r.MaxLoopDepth, "max-loop-depth", 0, "loop depth capacity")
	fs.IntVar(&r.MaxTicks, "max-ticks", 0, "tick limit per case")
	fs.Float64Var(&r.AmbiguityWeight, "ambiguity-weight", 0, "penalty on program ambiguity")
	fs.IntVar(&r.Restarts, "restarts", 0, "independent random restarts")
	fs.IntVar(&r.Attempts, "attempts", 0, "tuning attempts per restart")
	fs.IntVar(&r.Workers, "workers", 0, "parallel restarts")
	fs.Int64Var(&r.Seed, "seed", 0, "random seed")
	fs.Float64Var(&r.InitScale, "init-scale", 0, "stddev of initial logits")
	fs.StringVar(&r.AttemptPolicy, "attempt-policy", "", "fixed|linear_decay|length_scaled")
	fs.Float64Var(&r.AttemptPolicyParam, "attempt-policy-param", 0, "attempt policy parameter")
	fs.StringVar(&r.CandidateSelection, "candidate-selection", "", "tuner candidate selection mode")
	fs.IntVar(&r.Steps, "steps", 0, "perturbations per candidate")
	fs.Float64Var(&r.StepSize, "step-size", 0, "perturbation spread")
	fs.Float64Var(&r.AnnealingFactor, "annealing-factor", 0, "spread decay per step")
	fs.Float64Var(&r.GoalFitness, "goal-fitness", 0, "stop tuning at this fitness; 0 disables")
	return r
}

// loadTrainRequest merges the config files and then applies every flag the
// user set explicitly.
func loadTrainRequest(paths []string, fs *flag.FlagSet, overrides *configs.Run) (fuzzyapi.TrainRequest, error) {
	cfg, err := configs.LoadRun(paths...)
	if err != nil {
		return fuzzyapi.TrainRequest{}, err
	}
	fs.Visit(func(f *flag.Flag) {
		applyOverride(&cfg, overrides, f.Name)
	})
	return trainRequestFromConfig(cfg), nil
}

func applyOverride(dst, src *configs.Run, name string) {
	switch name {
	case "task":
		dst.Task = src.Task
	case "task-file":
		dst.TaskScript = src.TaskScript
	case "program-size":
		dst.ProgramSize = src.ProgramSize
	case "memory-size":
		dst.MemorySize = src.MemorySize
	case "max-loop-depth":
		dst.MaxLoopDepth = src.MaxLoopDepth
	case "max-ticks":
		dst.MaxTicks = src.MaxTicks
	case "ambiguity-weight":
		dst.AmbiguityWeight = src.AmbiguityWeight
	case "restarts":
		dst.Restarts = src.Restarts
	case "attempts":
		dst.Attempts = src.Attempts
	case "workers":
		dst.Workers = src.Workers
	case "seed":
		dst.Seed = src.Seed
	case "init-scale":
		dst.InitScale = src.InitScale
	case "attempt-policy":
		dst.AttemptPolicy = src.AttemptPolicy
	case "attempt-policy-param":
		dst.AttemptPolicyParam = src.AttemptPolicyParam
	case "candidate-selection":
		dst.CandidateSelection = src.CandidateSelection
	case "steps":
		dst.Steps = src.Steps
	case "step-size":
		dst.StepSize = src.StepSize
	case "annealing-factor":
		dst.AnnealingFactor = src.AnnealingFactor
	case "goal-fitness":
		dst.GoalFitness = src.GoalFitness
	}
}

func trainRequestFromConfig(cfg configs.Run) fuzzyapi.TrainRequest {
	return fuzzyapi.TrainRequest{
		Task:               cfg.Task,
		TaskScript:         cfg.TaskScript,
		ProgramSize:        cfg.ProgramSize,
		MemorySize:         cfg.MemorySize,
		MaxLoopDepth:       cfg.MaxLoopDepth,
		MaxTicks:           cfg.MaxTicks,
		AmbiguityWeight:    cfg.AmbiguityWeight,
		Restarts:           cfg.Restarts,
		Attempts:           cfg.Attempts,
		Workers:            cfg.Workers,
		Seed:               cfg.Seed,
		InitScale:          cfg.InitScale,
		AttemptPolicy:      cfg.AttemptPolicy,
		AttemptPolicyParam: cfg.AttemptPolicyParam,
		CandidateSelection: cfg.CandidateSelection,
		Steps:              cfg.Steps,
		StepSize:           cfg.StepSize,
		AnnealingFactor:    cfg.AnnealingFactor,
		GoalFitness:        cfg.GoalFitness,
	}
}
