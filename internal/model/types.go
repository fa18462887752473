package model

import "time"

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

// Program is a trained (or hand written) fuzzy program: one logit row per
// program slot, the last slot being the halt slot.
type Program struct {
	VersionedRecord
	ID        string      `json:"id"`
	Task      string      `json:"task"`
	Source    string      `json:"source"`
	Logits    [][]float64 `json:"logits"`
	Fitness   float64     `json:"fitness"`
	RunID     string      `json:"run_id,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
}

// Run summarizes one search over random restarts.
type Run struct {
	VersionedRecord
	ID             string    `json:"id"`
	Task           string    `json:"task"`
	Seed           int64     `json:"seed"`
	Restarts       int       `json:"restarts"`
	BestProgramID  string    `json:"best_program_id"`
	BestFitness    float64   `json:"best_fitness"`
	RestartFitness []float64 `json:"restart_fitness"`
	CreatedAt      time.Time `json:"created_at"`
}

func CurrentVersion(schema, codec int) VersionedRecord {
	return VersionedRecord{SchemaVersion: schema, CodecVersion: codec}
}
