package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"fuzzybf/internal/model"

	_ "modernc.org/sqlite"
)

type SQLiteStore struct {
	path string

	mu sync.RWMutex
	db *sql.DB
}

func NewSQLiteStore(path string) *SQLiteStore {
	return &SQLiteStore{path: path}
}

func (s *SQLiteStore) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path == "" {
		return errors.New("sqlite path is required")
	}
	if s.db != nil {
		return nil
	}

	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return err
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return err
	}

	if err := createTables(ctx, db); err != nil {
		_ = db.Close()
		return err
	}

	s.db = db
	return nil
}

func (s *SQLiteStore) SaveProgram(ctx context.Context, program model.Program) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	payload, err := EncodeProgram(program)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO programs (id, task, fitness, schema_version, codec_version, payload)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			task = excluded.task,
			fitness = excluded.fitness,
			schema_version = excluded.schema_version,
			codec_version = excluded.codec_version,
			payload = excluded.payload
	`, program.ID, program.Task, program.Fitness, program.SchemaVersion, program.CodecVersion, payload)
	return err
}

func (s *SQLiteStore) GetProgram(ctx context.Context, id string) (model.Program, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return model.Program{}, false, err
	}

	var payload []byte
	err = db.QueryRowContext(ctx, `SELECT payload FROM programs WHERE id = ?`, id).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Program{}, false, nil
		}
		return model.Program{}, false, err
	}

	program, err := DecodeProgram(payload)
	if err != nil {
		return model.Program{}, false, fmt.Errorf("decode program %s: %w", id, err)
	}
	return program, true, nil
}

func (s *SQLiteStore) ListPrograms(ctx context.Context, task string) ([]model.Program, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `
		SELECT id, payload FROM programs
		WHERE ? = '' OR task = ?
		ORDER BY fitness DESC, id ASC
	`, task, task)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Program
	for rows.Next() {
		var (
			id      string
			payload []byte
		)
		if err := rows.Scan(&id, &payload); err != nil {
			return nil, err
		}
		program, err := DecodeProgram(payload)
		if err != nil {
			return nil, fmt.Errorf("decode program %s: %w", id, err)
		}
		out = append(out, program)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) SaveRun(ctx context.Context, run model.Run) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	payload, err := EncodeRun(run)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO runs (id, created_at, schema_version, codec_version, payload)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			created_at = excluded.created_at,
			schema_version = excluded.schema_version,
			codec_version = excluded.codec_version,
			payload = excluded.payload
	`, run.ID, run.CreatedAt.UnixNano(), run.SchemaVersion, run.CodecVersion, payload)
	return err
}

func (s *SQLiteStore) GetRun(ctx context.Context, id string) (model.Run, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return model.Run{}, false, err
	}

	var payload []byte
	err = db.QueryRowContext(ctx, `SELECT payload FROM runs WHERE id = ?`, id).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Run{}, false, nil
		}
		return model.Run{}, false, err
	}

	run, err := DecodeRun(payload)
	if err != nil {
		return model.Run{}, false, fmt.Errorf("decode run %s: %w", id, err)
	}
	return run, true, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context) ([]model.Run, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `SELECT id, payload FROM runs ORDER BY created_at DESC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Run
	for rows.Next() {
		var (
			id      string
			payload []byte
		)
		if err := rows.Scan(&id, &payload); err != nil {
			return nil, err
		}
		run, err := DecodeRun(payload)
		if err != nil {
			return nil, fmt.Errorf("decode run %s: %w", id, err)
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Reset(ctx context.Context) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `DELETE FROM programs; DELETE FROM runs;`)
	return err
}

func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *SQLiteStore) getDB() (*sql.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, ErrNotInitialized
	}
	return s.db, nil
}

func createTables(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS programs (
			id TEXT PRIMARY KEY,
			task TEXT NOT NULL,
			fitness REAL NOT NULL,
			schema_version INTEGER NOT NULL,
			codec_version INTEGER NOT NULL,
			payload BLOB NOT NULL
		);
		CREATE INDEX IF NOT EXISTS programs_task ON programs (task, fitness);
		CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			created_at INTEGER NOT NULL,
			schema_version INTEGER NOT NULL,
			codec_version INTEGER NOT NULL,
			payload BLOB NOT NULL
		);
	`)
	return err
}
