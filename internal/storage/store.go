package storage

import (
	"context"
	"errors"

	"fuzzybf/internal/model"
)

var ErrNotInitialized = errors.New("store is not initialized")

// Store defines the persistence operations for programs and search runs.
type Store interface {
	Init(ctx context.Context) error
	SaveProgram(ctx context.Context, program model.Program) error
	GetProgram(ctx context.Context, id string) (model.Program, bool, error)
	// ListPrograms returns programs for task (all tasks when empty), best
	// fitness first.
	ListPrograms(ctx context.Context, task string) ([]model.Program, error)
	SaveRun(ctx context.Context, run model.Run) error
	GetRun(ctx context.Context, id string) (model.Run, bool, error)
	// ListRuns returns runs newest first.
	ListRuns(ctx context.Context) ([]model.Run, error)
	Reset(ctx context.Context) error
}
