package storage

import (
	"context"
	"sort"
	"sync"

	"fuzzybf/internal/model"
)

type MemoryStore struct {
	mu          sync.RWMutex
	initialized bool
	programs    map[string]model.Program
	runs        map[string]model.Run
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.initialized {
		return nil
	}
	s.initialized = true
	s.programs = make(map[string]model.Program)
	s.runs = make(map[string]model.Run)
	return nil
}

func (s *MemoryStore) SaveProgram(_ context.Context, program model.Program) error {
	if err := checkLogits(program.Logits); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return ErrNotInitialized
	}
	s.programs[program.ID] = cloneProgram(program)
	return nil
}

func (s *MemoryStore) GetProgram(_ context.Context, id string) (model.Program, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.initialized {
		return model.Program{}, false, ErrNotInitialized
	}
	program, ok := s.programs[id]
	if !ok {
		return model.Program{}, false, nil
	}
	return cloneProgram(program), true, nil
}

func (s *MemoryStore) ListPrograms(_ context.Context, task string) ([]model.Program, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.initialized {
		return nil, ErrNotInitialized
	}
	out := make([]model.Program, 0, len(s.programs))
	for _, program := range s.programs {
		if task != "" && program.Task != task {
			continue
		}
		out = append(out, cloneProgram(program))
	}
	sortPrograms(out)
	return out, nil
}

func (s *MemoryStore) SaveRun(_ context.Context, run model.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return ErrNotInitialized
	}
	s.runs[run.ID] = cloneRun(run)
	return nil
}

func (s *MemoryStore) GetRun(_ context.Context, id string) (model.Run, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.initialized {
		return model.Run{}, false, ErrNotInitialized
	}
	run, ok := s.runs[id]
	if !ok {
		return model.Run{}, false, nil
	}
	return cloneRun(run), true, nil
}

func (s *MemoryStore) ListRuns(_ context.Context) ([]model.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.initialized {
		return nil, ErrNotInitialized
	}
	out := make([]model.Run, 0, len(s.runs))
	for _, run := range s.runs {
		out = append(out, cloneRun(run))
	}
	sortRuns(out)
	return out, nil
}

func (s *MemoryStore) Reset(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.initialized = true
	s.programs = make(map[string]model.Program)
	s.runs = make(map[string]model.Run)
	return nil
}

func sortPrograms(programs []model.Program) {
	sort.Slice(programs, func(i, j int) bool {
		if programs[i].Fitness != programs[j].Fitness {
			return programs[i].Fitness > programs[j].Fitness
		}
		return programs[i].ID < programs[j].ID
	})
}

func sortRuns(runs []model.Run) {
	sort.Slice(runs, func(i, j int) bool {
		if !runs[i].CreatedAt.Equal(runs[j].CreatedAt) {
			return runs[i].CreatedAt.After(runs[j].CreatedAt)
		}
		return runs[i].ID < runs[j].ID
	})
}
