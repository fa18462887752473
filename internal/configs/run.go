package configs

import (
	"errors"
	"fmt"
)

// RunSchema is the closed schema for training run files:
//
//	run: {
//		task:     "echo"
//		restarts: 8
//	}
const RunSchema = `
run?: #Run

#Run: {
	task?:                 string
	task_script?:          string
	program_size?:         int & >=2
	memory_size?:          int & >=1
	max_loop_depth?:       int & >=1
	max_ticks?:            int & >=1
	ambiguity_weight?:     number & >=0
	restarts?:             int & >=1
	attempts?:             int & >=0
	workers?:              int & >=1
	seed?:                 int
	init_scale?:           number & >0
	attempt_policy?:       "fixed" | "linear_decay" | "length_scaled"
	attempt_policy_param?: number
	candidate_selection?:  string
	steps?:                int & >=1
	step_size?:            number & >0
	annealing_factor?:     number & >=0
	goal_fitness?:         number & <=0
}
`

type Run struct {
	Task               string  `json:"task"`
	TaskScript         string  `json:"task_script"`
	ProgramSize        int     `json:"program_size"`
	MemorySize         int     `json:"memory_size"`
	MaxLoopDepth       int     `json:"max_loop_depth"`
	MaxTicks           int     `json:"max_ticks"`
	AmbiguityWeight    float64 `json:"ambiguity_weight"`
	Restarts           int     `json:"restarts"`
	Attempts           int     `json:"attempts"`
	Workers            int     `json:"workers"`
	Seed               int64   `json:"seed"`
	InitScale          float64 `json:"init_scale"`
	AttemptPolicy      string  `json:"attempt_policy"`
	AttemptPolicyParam float64 `json:"attempt_policy_param"`
	CandidateSelection string  `json:"candidate_selection"`
	Steps              int     `json:"steps"`
	StepSize           float64 `json:"step_size"`
	AnnealingFactor    float64 `json:"annealing_factor"`
	GoalFitness        float64 `json:"goal_fitness"`
}

// LoadRun merges the run blocks of paths; the first file wins per field.
// Files without a run block leave the zero value.
func LoadRun(paths ...string) (Run, error) {
	var run Run
	if len(paths) == 0 {
		return run, nil
	}
	if err := NewLoader(paths, RunSchema).Merge("run", &run); err != nil {
		if errors.Is(err, ErrValueNotFound) {
			return run, nil
		}
		return Run{}, fmt.Errorf("load run config: %w", err)
	}
	return run, nil
}
