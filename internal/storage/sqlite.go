//go:build sqlite

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"morphogen/internal/model"

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

func (s *SQLiteStore) SaveMorphism(ctx context.Context, morphism model.Morphism) error {
	if morphism.Name == "" {
		return ErrMissingKey
	}
	db, err := s.getDB()
	if err != nil {
		return err
	}

	payload, err := EncodeMorphism(morphism)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO morphisms (name, version, schema_version, codec_version, payload)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			version = excluded.version,
			schema_version = excluded.schema_version,
			codec_version = excluded.codec_version,
			payload = excluded.payload
	`, morphism.Name, morphism.Version, morphism.SchemaVersion, morphism.CodecVersion, payload)
	return err
}

func (s *SQLiteStore) GetMorphism(ctx context.Context, name string) (model.Morphism, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return model.Morphism{}, false, err
	}

	var payload []byte
	err = db.QueryRowContext(ctx, `SELECT payload FROM morphisms WHERE name = ?`, name).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Morphism{}, false, nil
		}
		return model.Morphism{}, false, err
	}

	morphism, err := DecodeMorphism(payload)
	if err != nil {
		return model.Morphism{}, false, fmt.Errorf("decode morphism %s: %w", name, err)
	}
	return morphism, true, nil
}

func (s *SQLiteStore) ListMorphisms(ctx context.Context) ([]model.Morphism, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `SELECT name, payload FROM morphisms ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Morphism
	for rows.Next() {
		var (
			name    string
			payload []byte
		)
		if err := rows.Scan(&name, &payload); err != nil {
			return nil, err
		}
		morphism, err := DecodeMorphism(payload)
		if err != nil {
			return nil, fmt.Errorf("decode morphism %s: %w", name, err)
		}
		out = append(out, morphism)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) DeleteMorphism(ctx context.Context, name string) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `DELETE FROM morphisms WHERE name = ?`, name)
	return err
}

func (s *SQLiteStore) SaveRegistryCounts(ctx context.Context, counts model.RegistryCounts) error {
	payload, err := EncodeRegistryCounts(counts)
	if err != nil {
		return err
	}
	return s.putBlob(ctx, "registry_counts", "registry", payload)
}

func (s *SQLiteStore) GetRegistryCounts(ctx context.Context) (model.RegistryCounts, bool, error) {
	payload, ok, err := s.getBlob(ctx, "registry_counts", "registry")
	if err != nil || !ok {
		return model.RegistryCounts{}, false, err
	}
	counts, err := DecodeRegistryCounts(payload)
	if err != nil {
		return model.RegistryCounts{}, false, fmt.Errorf("decode registry counts: %w", err)
	}
	return counts, true, nil
}

func (s *SQLiteStore) SaveSynthesisRun(ctx context.Context, run model.SynthesisRun) error {
	if run.RunID == "" {
		return ErrMissingKey
	}
	db, err := s.getDB()
	if err != nil {
		return err
	}

	payload, err := EncodeSynthesisRun(run)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO synthesis_runs (run_id, created_at_utc, payload)
		VALUES (?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			created_at_utc = excluded.created_at_utc,
			payload = excluded.payload
	`, run.RunID, run.CreatedAtUTC, payload)
	return err
}

func (s *SQLiteStore) GetSynthesisRun(ctx context.Context, runID string) (model.SynthesisRun, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return model.SynthesisRun{}, false, err
	}

	var payload []byte
	err = db.QueryRowContext(ctx, `SELECT payload FROM synthesis_runs WHERE run_id = ?`, runID).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.SynthesisRun{}, false, nil
		}
		return model.SynthesisRun{}, false, err
	}

	run, err := DecodeSynthesisRun(payload)
	if err != nil {
		return model.SynthesisRun{}, false, fmt.Errorf("decode synthesis run %s: %w", runID, err)
	}
	return run, true, nil
}

func (s *SQLiteStore) ListSynthesisRuns(ctx context.Context) ([]model.SynthesisRun, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `SELECT run_id, payload FROM synthesis_runs`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.SynthesisRun
	for rows.Next() {
		var (
			runID   string
			payload []byte
		)
		if err := rows.Scan(&runID, &payload); err != nil {
			return nil, err
		}
		run, err := DecodeSynthesisRun(payload)
		if err != nil {
			return nil, fmt.Errorf("decode synthesis run %s: %w", runID, err)
		}
		out = append(out, run)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	SortRuns(out)
	return out, nil
}

func (s *SQLiteStore) SaveFitnessHistory(ctx context.Context, runID string, history []float64) error {
	payload, err := EncodeFitnessHistory(history)
	if err != nil {
		return err
	}
	return s.putBlob(ctx, "fitness_history", runID, payload)
}

func (s *SQLiteStore) GetFitnessHistory(ctx context.Context, runID string) ([]float64, bool, error) {
	payload, ok, err := s.getBlob(ctx, "fitness_history", runID)
	if err != nil || !ok {
		return nil, false, err
	}
	history, err := DecodeFitnessHistory(payload)
	if err != nil {
		return nil, false, fmt.Errorf("decode fitness history %s: %w", runID, err)
	}
	return history, true, nil
}

func (s *SQLiteStore) SaveGenerationDiagnostics(ctx context.Context, runID string, diagnostics []model.GenerationDiagnostics) error {
	payload, err := EncodeGenerationDiagnostics(diagnostics)
	if err != nil {
		return err
	}
	return s.putBlob(ctx, "generation_diagnostics", runID, payload)
}

func (s *SQLiteStore) GetGenerationDiagnostics(ctx context.Context, runID string) ([]model.GenerationDiagnostics, bool, error) {
	payload, ok, err := s.getBlob(ctx, "generation_diagnostics", runID)
	if err != nil || !ok {
		return nil, false, err
	}
	diagnostics, err := DecodeGenerationDiagnostics(payload)
	if err != nil {
		return nil, false, fmt.Errorf("decode diagnostics %s: %w", runID, err)
	}
	return diagnostics, true, nil
}

func (s *SQLiteStore) SaveLineage(ctx context.Context, runID string, lineage []model.LineageRecord) error {
	payload, err := EncodeLineage(lineage)
	if err != nil {
		return err
	}
	return s.putBlob(ctx, "lineage", runID, payload)
}

func (s *SQLiteStore) GetLineage(ctx context.Context, runID string) ([]model.LineageRecord, bool, error) {
	payload, ok, err := s.getBlob(ctx, "lineage", runID)
	if err != nil || !ok {
		return nil, false, err
	}
	lineage, err := DecodeLineage(payload)
	if err != nil {
		return nil, false, fmt.Errorf("decode lineage %s: %w", runID, err)
	}
	return lineage, true, nil
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

// putBlob and getBlob serve the key/payload tables. table is always one of
// the constant names created in createTables.
func (s *SQLiteStore) putBlob(ctx context.Context, table, key string, payload []byte) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO `+table+` (key, payload)
		VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET
			payload = excluded.payload
	`, key, payload)
	return err
}

func (s *SQLiteStore) getBlob(ctx context.Context, table, key string) ([]byte, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, false, err
	}
	var payload []byte
	err = db.QueryRowContext(ctx, `SELECT payload FROM `+table+` WHERE key = ?`, key).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return payload, true, nil
}

func createTables(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS morphisms (
			name TEXT PRIMARY KEY,
			version INTEGER NOT NULL,
			schema_version INTEGER NOT NULL,
			codec_version INTEGER NOT NULL,
			payload BLOB NOT NULL
		);
		CREATE TABLE IF NOT EXISTS synthesis_runs (
			run_id TEXT PRIMARY KEY,
			created_at_utc TEXT NOT NULL,
			payload BLOB NOT NULL
		);
		CREATE TABLE IF NOT EXISTS registry_counts (
			key TEXT PRIMARY KEY,
			payload BLOB NOT NULL
		);
		CREATE TABLE IF NOT EXISTS fitness_history (
			key TEXT PRIMARY KEY,
			payload BLOB NOT NULL
		);
		CREATE TABLE IF NOT EXISTS generation_diagnostics (
			key TEXT PRIMARY KEY,
			payload BLOB NOT NULL
		);
		CREATE TABLE IF NOT EXISTS lineage (
			key TEXT PRIMARY KEY,
			payload BLOB NOT NULL
		);
	`)
	return err
}
