package task

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"

	"fuzzybf/internal/bf"
	"fuzzybf/internal/fuzzy"
)

func TestBuiltinCases(t *testing.T) {
	inc := Increment().Cases()
	for _, c := range inc {
		if c.Want[0] != c.Input[0]+1 {
			t.Fatalf("unexpected increment case: %+v", c)
		}
	}
	double := DoubleEcho().Cases()
	if len(double[0].Want) != 2 || double[0].Want[0] != double[0].Input[0] || double[0].Want[1] != double[0].Input[0] {
		t.Fatalf("unexpected double-echo case: %+v", double[0])
	}
	for _, c := range Constant().Cases() {
		if string(c.Want) != "A" {
			t.Fatalf("unexpected constant case: %+v", c)
		}
	}
}

func TestNewStaticRejectsEmptyCases(t *testing.T) {
	if _, err := NewStatic("x", nil); !errors.Is(err, ErrInvalidTask) {
		t.Fatalf("expected invalid task, got %v", err)
	}
	if _, err := NewStatic("x", []Case{{Input: []byte{1}}}); !errors.Is(err, ErrInvalidTask) {
		t.Fatalf("expected invalid task for empty want, got %v", err)
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	names := r.Names()
	if len(names) != 4 || names[0] != "constant" || names[3] != "increment" {
		t.Fatalf("unexpected builtin names: %v", names)
	}
	if err := r.Register(Echo()); !errors.Is(err, ErrTaskExists) {
		t.Fatalf("expected duplicate error, got %v", err)
	}
	if _, err := r.Get("missing"); !errors.Is(err, ErrTaskNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	custom, _ := NewStatic("custom", []Case{{Want: []byte{1}}})
	if err := r.Register(custom); err != nil {
		t.Fatalf("register: %v", err)
	}
	if got, err := r.Get("custom"); err != nil || got.Name() != "custom" {
		t.Fatalf("get custom: %v %v", got, err)
	}
}

func TestEvaluatorPrefersSolvingProgram(t *testing.T) {
	ctx := context.Background()
	eval := Evaluator{ProgramSize: 3}

	solved := mustLogits(t, ",.", 3)
	fitness, trace, err := eval.Evaluate(ctx, Echo(), solved)
	if err != nil {
		t.Fatalf("evaluate solved: %v", err)
	}
	if fitness < -0.05 {
		t.Fatalf("expected near-zero loss for echo program, fitness=%f trace=%+v", fitness, trace)
	}
	// The halt slot has flat logits and decodes to its first op.
	if trace["program"] != ",.+" {
		t.Fatalf("unexpected decoded program: %v", trace["program"])
	}
	for _, h := range trace["halt"].([]float64) {
		if h < DefaultHaltThreshold {
			t.Fatalf("expected every case to halt, got %v", trace["halt"])
		}
	}

	wrong := mustLogits(t, ",+.", 4)
	wrongFitness, _, err := Evaluator{ProgramSize: 4}.Evaluate(ctx, Echo(), wrong)
	if err != nil {
		t.Fatalf("evaluate wrong: %v", err)
	}
	if wrongFitness >= fitness {
		t.Fatalf("expected off-by-one program to score worse: %f >= %f", wrongFitness, fitness)
	}

	incFitness, _, err := Evaluator{ProgramSize: 4}.Evaluate(ctx, Increment(), wrong)
	if err != nil {
		t.Fatalf("evaluate increment: %v", err)
	}
	if incFitness < -0.05 {
		t.Fatalf("expected increment program to solve increment, fitness=%f", incFitness)
	}
}

func TestEvaluatorAmbiguityPenalty(t *testing.T) {
	ctx := context.Background()
	uniform := make([][]float64, 3)
	for i := range uniform {
		uniform[i] = make([]float64, fuzzy.NumOps)
	}
	plain, trace, err := Evaluator{}.Evaluate(ctx, Constant(), uniform)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if amb := trace["ambiguity"].(float64); math.Abs(amb-1) > 1e-9 {
		t.Fatalf("expected full ambiguity for uniform logits, got %f", amb)
	}
	if h := trace["entropy"].(float64); math.Abs(h-math.Log(fuzzy.NumOps)) > 1e-9 {
		t.Fatalf("expected maximal entropy for uniform logits, got %f", h)
	}
	penalized, _, err := Evaluator{AmbiguityWeight: 2}.Evaluate(ctx, Constant(), uniform)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if math.Abs(float64(plain-penalized)-2) > 1e-9 {
		t.Fatalf("expected penalty of 2, got plain=%f penalized=%f", plain, penalized)
	}
}

func TestEvaluatorRejectsBadInput(t *testing.T) {
	ctx := context.Background()
	if _, _, err := (Evaluator{ProgramSize: 5}).Evaluate(ctx, Echo(), mustLogits(t, ",.", 3)); !errors.Is(err, fuzzy.ErrDimensionMismatch) {
		t.Fatalf("expected dimension mismatch, got %v", err)
	}
	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if _, _, err := (Evaluator{}).Evaluate(cancelled, Echo(), mustLogits(t, ",.", 3)); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context cancellation, got %v", err)
	}
}

func TestLoadStarlarkTask(t *testing.T) {
	reverse, err := LoadStarlark(filepath.Join("testdata", "reverse.star"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if reverse.Name() != "reverse" {
		t.Fatalf("unexpected name: %s", reverse.Name())
	}
	cases := reverse.Cases()
	if len(cases) != 3 || string(cases[1].Want) != "zyx" || cases[2].Want[0] != 2 || cases[2].Want[1] != 1 {
		t.Fatalf("unexpected cases: %+v", cases)
	}

	shift, err := LoadStarlark(filepath.Join("testdata", "shift.star"))
	if err != nil {
		t.Fatalf("load shift: %v", err)
	}
	if got := shift.Cases(); got[0].Want[0] != 'B' || got[1].Want[0] != 'b' {
		t.Fatalf("unexpected shift cases: %+v", got)
	}
}

func TestParseStarlarkRejectsMissingDeclarations(t *testing.T) {
	for _, src := range []string{
		`inputs = ["a"]
def expect(x):
    return x`,
		`name = "x"
def expect(x):
    return x`,
		`name = "x"
inputs = ["a"]`,
		`name = "x"
inputs = ["a"]
def expect(x):
    return [300]`,
		`name = (`,
	} {
		if _, err := ParseStarlark("inline.star", []byte(src)); !errors.Is(err, ErrInvalidTask) {
			t.Fatalf("%q: expected invalid task, got %v", src, err)
		}
	}
}

func mustLogits(t *testing.T, src string, slots int) [][]float64 {
	t.Helper()

	ops, err := bf.Parse(src)
	if err != nil {
		t.Fatalf("parse %q: %v", src, err)
	}
	logits, err := bf.Logits(ops, 14, slots)
	if err != nil {
		t.Fatalf("logits %q: %v", src, err)
	}
	return logits
}
