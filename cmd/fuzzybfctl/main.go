package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"fuzzybf/internal/logs"
	"fuzzybf/internal/storage"
	fuzzyapi "fuzzybf/pkg/fuzzybf"
)

func main() {
	if err := run(context.Background(), os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return usageError("missing command")
	}

	switch args[0] {
	case "init":
		return runInit(ctx, args[1:])
	case "reset":
		return runReset(ctx, args[1:])
	case "tasks":
		return runTasks(ctx, args[1:])
	case "exec":
		return runExec(ctx, args[1:])
	case "train":
		return runTrain(ctx, args[1:])
	case "programs":
		return runPrograms(ctx, args[1:])
	case "show":
		return runShow(ctx, args[1:])
	case "runs":
		return runRuns(ctx, args[1:])
	default:
		return usageError(fmt.Sprintf("unknown command %q", args[0]))
	}
}

// stringList collects a repeatable string flag.
type stringList []string

func (s *stringList) String() string {
	return strings.Join(*s, ",")
}

func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

type clientFlags struct {
	storeKind   *string
	dbPath      *string
	logLevel    *string
	logJSON     *string
	logJournal  *bool
	taskScripts stringList
}

func registerClientFlags(fs *flag.FlagSet) *clientFlags {
	cf := &clientFlags{
		storeKind:  fs.String("store", storage.DefaultStoreKind, "store backend: memory|sqlite"),
		dbPath:     fs.String("db-path", "fuzzybf.db", "sqlite database path"),
		logLevel:   fs.String("log-level", "warn", "log level: debug|info|warn|error"),
		logJSON:    fs.String("log-json", "", "append JSON log records to this file"),
		logJournal: fs.Bool("log-journal", false, "also log to the systemd journal"),
	}
	fs.Var(&cf.taskScripts, "task-script", "register a starlark task script (repeatable)")
	return cf
}

func (cf *clientFlags) open() (*fuzzyapi.Client, func(), error) {
	logger, closeLog, err := logs.New(logs.Options{
		Level:    *cf.logLevel,
		JSONPath: *cf.logJSON,
		Journal:  *cf.logJournal,
	})
	if err != nil {
		return nil, nil, err
	}
	client, err := fuzzyapi.New(fuzzyapi.Options{
		StoreKind:   *cf.storeKind,
		DBPath:      *cf.dbPath,
		Logger:      logger,
		TaskScripts: cf.taskScripts,
	})
	if err != nil {
		_ = closeLog()
		return nil, nil, err
	}
	return client, func() {
		_ = client.Close()
		_ = closeLog()
	}, nil
}

func runInit(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	cf := registerClientFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	client, done, err := cf.open()
	if err != nil {
		return err
	}
	defer done()

	if err := client.Init(ctx); err != nil {
		return err
	}
	fmt.Printf("initialized store=%s\n", *cf.storeKind)
	return nil
}

func runReset(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("reset", flag.ContinueOnError)
	cf := registerClientFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	client, done, err := cf.open()
	if err != nil {
		return err
	}
	defer done()

	if err := client.Reset(ctx); err != nil {
		return err
	}
	fmt.Printf("reset store=%s\n", *cf.storeKind)
	return nil
}

func runTasks(_ context.Context, args []string) error {
	fs := flag.NewFlagSet("tasks", flag.ContinueOnError)
	cf := registerClientFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	client, done, err := cf.open()
	if err != nil {
		return err
	}
	defer done()

	for _, name := range client.Tasks() {
		fmt.Printf("task=%s\n", name)
	}
	return nil
}

func runExec(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("exec", flag.ContinueOnError)
	cf := registerClientFlags(fs)
	source := fs.String("program", "", "program source; non-command characters are comments")
	programID := fs.String("id", "", "run a stored program instead of -program")
	input := fs.String("input", "", "input bytes")
	sharpness := fs.Float64("sharpness", 0, "logit given to each chosen op; 0 runs the program crisp")
	memory := fs.Int("memory", 0, "memory cells")
	maxLoopDepth := fs.Int("max-loop-depth", 0, "loop depth capacity")
	outputSize := fs.Int("output-size", 0, "output cells")
	maxTicks := fs.Int("max-ticks", 0, "tick limit")
	threshold := fs.Float64("halt-threshold", 0, "halt probability treated as halted")
	compare := fs.Bool("compare", false, "also run the crisp interpreter and compare")
	jsonOut := fs.Bool("json", false, "emit summary as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *source == "" && *programID == "" {
		return errors.New("exec requires -program or -id")
	}
	client, done, err := cf.open()
	if err != nil {
		return err
	}
	defer done()

	summary, err := client.Exec(ctx, fuzzyapi.ExecRequest{
		Source:        *source,
		ProgramID:     *programID,
		Input:         []byte(*input),
		Sharpness:     *sharpness,
		MemorySize:    *memory,
		MaxLoopDepth:  *maxLoopDepth,
		OutputSize:    *outputSize,
		MaxTicks:      *maxTicks,
		HaltThreshold: *threshold,
		Compare:       *compare,
	})
	if err != nil {
		return err
	}
	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(summary)
	}

	fmt.Printf("program=%s ticks=%d halt=%.6f halted=%t ambiguity=%.6f overflow_ticks=%d\n",
		summary.Program, summary.Ticks, summary.Halt, summary.Halted, summary.Ambiguity, summary.OverflowTicks)
	fmt.Printf("output=%q bytes=%v\n", summary.Output, summary.Output)
	fmt.Printf("memory=%v\n", summary.Memory)
	if summary.Crisp != nil {
		fmt.Printf("crisp_output=%q crisp_steps=%d match=%t", summary.Crisp.Output, summary.Crisp.Steps, summary.Crisp.Match)
		if summary.Crisp.Err != "" {
			fmt.Printf(" crisp_error=%q", summary.Crisp.Err)
		}
		fmt.Println()
	}
	return nil
}

func runTrain(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("train", flag.ContinueOnError)
	cf := registerClientFlags(fs)
	var configPaths stringList
	fs.Var(&configPaths, "config", "cue run config; earlier files win (repeatable)")
	overrides := registerTrainFlags(fs)
	jsonOut := fs.Bool("json", false, "emit summary as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	req, err := loadTrainRequest(configPaths, fs, overrides)
	if err != nil {
		return err
	}
	client, done, err := cf.open()
	if err != nil {
		return err
	}
	defer done()

	summary, err := client.Train(ctx, req)
	if err != nil {
		return err
	}
	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(summary)
	}

	fmt.Printf("train completed run_id=%s task=%s restarts=%d seed=%d\n", summary.RunID, summary.Task, len(summary.RestartFitness), req.Seed)
	for i, f := range summary.RestartFitness {
		fmt.Printf("restart=%d fitness=%.6f\n", i+1, f)
	}
	fmt.Printf("best_program_id=%s program=%s fitness=%.6f\n", summary.ProgramID, summary.Program, summary.Fitness)
	return nil
}

func runPrograms(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("programs", flag.ContinueOnError)
	cf := registerClientFlags(fs)
	taskName := fs.String("task", "", "only list programs for this task")
	limit := fs.Int("limit", 20, "max programs to list")
	jsonOut := fs.Bool("json", false, "emit programs list as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *limit <= 0 {
		return errors.New("limit must be > 0")
	}
	client, done, err := cf.open()
	if err != nil {
		return err
	}
	defer done()

	items, err := client.Programs(ctx, fuzzyapi.ProgramsRequest{Task: *taskName, Limit: *limit})
	if err != nil {
		return err
	}
	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(items)
	}
	if len(items) == 0 {
		fmt.Println("no programs found")
		return nil
	}
	for _, item := range items {
		fmt.Printf("id=%s task=%s fitness=%.6f program=%s run_id=%s created_at=%s\n",
			item.ID, item.Task, item.Fitness, item.Source, item.RunID, item.CreatedAtUTC)
	}
	return nil
}

func runShow(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("show", flag.ContinueOnError)
	cf := registerClientFlags(fs)
	id := fs.String("id", "", "program id")
	jsonOut := fs.Bool("json", false, "emit program as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id == "" {
		return errors.New("show requires -id")
	}
	client, done, err := cf.open()
	if err != nil {
		return err
	}
	defer done()

	item, err := client.Program(ctx, *id)
	if err != nil {
		return err
	}
	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(item)
	}
	fmt.Printf("id=%s task=%s fitness=%.6f program=%s run_id=%s created_at=%s\n",
		item.ID, item.Task, item.Fitness, item.Source, item.RunID, item.CreatedAtUTC)
	for i, row := range item.Logits {
		fmt.Printf("slot=%d logits=%s\n", i, formatRow(row))
	}
	return nil
}

func runRuns(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("runs", flag.ContinueOnError)
	cf := registerClientFlags(fs)
	limit := fs.Int("limit", 20, "max runs to list")
	jsonOut := fs.Bool("json", false, "emit runs list as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *limit <= 0 {
		return errors.New("limit must be > 0")
	}
	client, done, err := cf.open()
	if err != nil {
		return err
	}
	defer done()

	items, err := client.Runs(ctx, fuzzyapi.RunsRequest{Limit: *limit})
	if err != nil {
		return err
	}
	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(items)
	}
	if len(items) == 0 {
		fmt.Println("no runs found")
		return nil
	}
	for _, item := range items {
		fmt.Printf("run_id=%s created_at=%s task=%s seed=%d restarts=%d best_fitness=%.6f best_program_id=%s\n",
			item.RunID, item.CreatedAtUTC, item.Task, item.Seed, item.Restarts, item.BestFitness, item.BestProgramID)
	}
	return nil
}

func formatRow(row []float64) string {
	parts := make([]string, len(row))
	for i, v := range row {
		parts[i] = fmt.Sprintf("%.3f", v)
	}
	return "[" + strings.Join(parts, " ") + "]"
}

func usageError(msg string) error {
	return fmt.Errorf("%s\nusage: fuzzybfctl <init|reset|tasks|exec|train|programs|show|runs> [flags]", msg)
}
