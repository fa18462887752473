package tuning

import (
	"context"

	"fuzzybf/internal/model"
)

type FitnessFn func(ctx context.Context, program model.Program) (float64, error)

type TuneReport struct {
	AttemptsPlanned      int     `json:"attempts_planned"`
	AttemptsExecuted     int     `json:"attempts_executed"`
	CandidateEvaluations int     `json:"candidate_evaluations"`
	AcceptedCandidates   int     `json:"accepted_candidates"`
	RejectedCandidates   int     `json:"rejected_candidates"`
	GoalReached          bool    `json:"goal_reached"`
	InitialFitness       float64 `json:"initial_fitness"`
	BestFitness          float64 `json:"best_fitness"`
}

type Tuner interface {
	Name() string
	Tune(ctx context.Context, program model.Program, attempts int, fitness FitnessFn) (model.Program, error)
}

type ReportingTuner interface {
	Tuner
	TuneWithReport(ctx context.Context, program model.Program, attempts int, fitness FitnessFn) (model.Program, TuneReport, error)
}
