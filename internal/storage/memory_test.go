package storage

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryStoreRequiresInit(t *testing.T) {
	store := NewMemoryStore()
	if err := store.SaveProgram(context.Background(), sampleProgram("p1", "echo", -1)); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("expected not initialized error, got %v", err)
	}
}

func TestMemoryStoreProgramsRoundTripAndOrder(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}

	for _, p := range []struct {
		id      string
		task    string
		fitness float64
	}{
		{"p1", "echo", -2},
		{"p2", "echo", -0.5},
		{"p3", "increment", -0.1},
	} {
		if err := store.SaveProgram(ctx, sampleProgram(p.id, p.task, p.fitness)); err != nil {
			t.Fatalf("save %s: %v", p.id, err)
		}
	}

	programs, err := store.ListPrograms(ctx, "echo")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(programs) != 2 || programs[0].ID != "p2" || programs[1].ID != "p1" {
		t.Fatalf("unexpected echo programs: %+v", programs)
	}
	all, err := store.ListPrograms(ctx, "")
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 3 || all[0].ID != "p3" {
		t.Fatalf("unexpected programs: %+v", all)
	}

	got, ok, err := store.GetProgram(ctx, "p2")
	if err != nil || !ok {
		t.Fatalf("get: ok=%t err=%v", ok, err)
	}
	got.Logits[0][0] = 99
	again, _, _ := store.GetProgram(ctx, "p2")
	if again.Logits[0][0] == 99 {
		t.Fatal("expected stored logits to be isolated from callers")
	}

	if _, ok, err := store.GetProgram(ctx, "missing"); ok || err != nil {
		t.Fatalf("expected missing program, ok=%t err=%v", ok, err)
	}
}

func TestMemoryStoreRunsNewestFirstAndReset(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}

	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	if err := store.SaveRun(ctx, sampleRun("old", base)); err != nil {
		t.Fatalf("save old: %v", err)
	}
	if err := store.SaveRun(ctx, sampleRun("new", base.Add(time.Hour))); err != nil {
		t.Fatalf("save new: %v", err)
	}
	runs, err := store.ListRuns(ctx)
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if len(runs) != 2 || runs[0].ID != "new" {
		t.Fatalf("unexpected runs: %+v", runs)
	}
	run, ok, err := store.GetRun(ctx, "old")
	if err != nil || !ok || len(run.RestartFitness) != 2 {
		t.Fatalf("unexpected run: %+v ok=%t err=%v", run, ok, err)
	}

	if err := store.Reset(ctx); err != nil {
		t.Fatalf("reset: %v", err)
	}
	runs, _ = store.ListRuns(ctx)
	if len(runs) != 0 {
		t.Fatalf("expected empty store after reset, got %+v", runs)
	}
}
