package storage

import (
	"encoding/json"
	"errors"
	"fmt"

	"fuzzybf/internal/fuzzy"
	"fuzzybf/internal/model"
)

const (
	CurrentSchemaVersion = 1
	CurrentCodecVersion  = 1
)

var ErrVersionMismatch = errors.New("record version mismatch")

func Versioned() model.VersionedRecord {
	return model.CurrentVersion(CurrentSchemaVersion, CurrentCodecVersion)
}

func EncodeProgram(p model.Program) ([]byte, error) {
	if err := checkLogits(p.Logits); err != nil {
		return nil, fmt.Errorf("encode program %s: %w", p.ID, err)
	}
	return json.Marshal(p)
}

func DecodeProgram(data []byte) (model.Program, error) {
	var program model.Program
	if err := json.Unmarshal(data, &program); err != nil {
		return model.Program{}, err
	}
	if err := checkVersion(program.VersionedRecord); err != nil {
		return model.Program{}, err
	}
	if err := checkLogits(program.Logits); err != nil {
		return model.Program{}, err
	}
	return program, nil
}

func EncodeRun(r model.Run) ([]byte, error) {
	return json.Marshal(r)
}

func DecodeRun(data []byte) (model.Run, error) {
	var run model.Run
	if err := json.Unmarshal(data, &run); err != nil {
		return model.Run{}, err
	}
	if err := checkVersion(run.VersionedRecord); err != nil {
		return model.Run{}, err
	}
	return run, nil
}

func checkVersion(v model.VersionedRecord) error {
	if v.SchemaVersion != CurrentSchemaVersion || v.CodecVersion != CurrentCodecVersion {
		return ErrVersionMismatch
	}
	return nil
}

func checkLogits(logits [][]float64) error {
	if len(logits) < 2 {
		return fmt.Errorf("program needs at least 2 slots, got %d", len(logits))
	}
	for i, row := range logits {
		if len(row) != fuzzy.NumOps {
			return fmt.Errorf("slot %d has %d logits, want %d", i, len(row), fuzzy.NumOps)
		}
	}
	return nil
}

func cloneProgram(p model.Program) model.Program {
	logits := make([][]float64, len(p.Logits))
	for i, row := range p.Logits {
		logits[i] = append([]float64(nil), row...)
	}
	p.Logits = logits
	return p
}

func cloneRun(r model.Run) model.Run {
	r.RestartFitness = append([]float64(nil), r.RestartFitness...)
	return r
}
