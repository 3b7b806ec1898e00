package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/san-kum/bdsim/internal/dynamo"
	"github.com/san-kum/bdsim/internal/mcmc"
)

//go:embed schema.sql
var schemaSQL string

// DatabaseFile is the name of the run database inside a data directory.
const DatabaseFile = "runs.db"

// timeLayout sorts lexically in time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

var ErrRunNotFound = errors.New("run not found")

// Store keeps finished chains in a SQLite database.
type Store struct {
	db *sql.DB
}

// RunMetadata describes one stored chain.
type RunMetadata struct {
	ID             string             `json:"id"`
	CreatedAt      time.Time          `json:"created_at"`
	Label          string             `json:"label,omitempty"`
	Scheme         string             `json:"scheme"`
	Seed           int64              `json:"seed"`
	Chain          int                `json:"chain"`
	Iterations     int                `json:"iterations"`
	AcceptanceRate float64            `json:"acceptance_rate"`
	Metrics        map[string]float64 `json:"metrics"`
	// Config is the YAML configuration the chain was run with.
	Config string `json:"config"`
}

// Open creates or opens the database at path and applies the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite has a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// OpenDir opens DatabaseFile inside dir, creating dir if needed.
func OpenDir(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	return Open(filepath.Join(dir, DatabaseFile))
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

// Save stores a chain result and its samples in one transaction. meta.ID,
// CreatedAt, Iterations, AcceptanceRate and Metrics are filled from the
// result; the completed metadata is returned.
func (s *Store) Save(ctx context.Context, meta RunMetadata, result *mcmc.Result) (*RunMetadata, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("run id: %w", err)
	}
	meta.ID = id.String()
	meta.CreatedAt = time.Now().UTC()
	meta.Iterations = result.Iterations
	meta.AcceptanceRate = result.AcceptanceRate
	meta.Metrics = result.Metrics

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, created_at, label, scheme, seed, chain, iterations, acceptance_rate, config)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		meta.ID, meta.CreatedAt.Format(timeLayout), meta.Label, meta.Scheme,
		meta.Seed, meta.Chain, meta.Iterations, meta.AcceptanceRate, meta.Config)
	if err != nil {
		return nil, fmt.Errorf("insert run: %w", err)
	}

	for name, value := range meta.Metrics {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO metrics (run_id, name, value) VALUES (?, ?, ?)`,
			meta.ID, name, nullable(value)); err != nil {
			return nil, fmt.Errorf("insert metric %s: %w", name, err)
		}
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO samples (run_id, iteration, energy, biased_energy, accepted, distance, displacement)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return nil, err
	}
	defer stmt.Close()
	for _, smp := range result.Samples {
		if _, err := stmt.ExecContext(ctx, meta.ID, smp.Iteration,
			nullable(smp.Energy), nullable(smp.BiasedEnergy), smp.Accepted,
			nullable(smp.Distance), nullable(smp.Displacement)); err != nil {
			return nil, fmt.Errorf("insert sample %d: %w", smp.Iteration, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &meta, nil
}

// List returns every run, newest first, without samples.
func (s *Store) List(ctx context.Context) ([]RunMetadata, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, created_at, label, scheme, seed, chain, iterations, acceptance_rate, config
		FROM runs ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := make([]RunMetadata, 0)
	for rows.Next() {
		meta, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *meta)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range runs {
		if runs[i].Metrics, err = s.loadMetrics(ctx, runs[i].ID); err != nil {
			return nil, err
		}
	}
	return runs, nil
}

// Load returns the run whose id is, or uniquely starts with, idOrPrefix.
func (s *Store) Load(ctx context.Context, idOrPrefix string) (*RunMetadata, error) {
	if idOrPrefix == "" {
		return nil, ErrRunNotFound
	}

	var ids []string
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM runs WHERE substr(id, 1, ?) = ? LIMIT 2`, len(idOrPrefix), idOrPrefix)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	switch len(ids) {
	case 0:
		return nil, fmt.Errorf("%s: %w", idOrPrefix, ErrRunNotFound)
	case 1:
	default:
		if ids[0] != idOrPrefix && ids[1] != idOrPrefix {
			return nil, fmt.Errorf("run id prefix %q is ambiguous", idOrPrefix)
		}
		ids[0] = idOrPrefix
	}

	meta, err := scanRun(s.db.QueryRowContext(ctx, `
		SELECT id, created_at, label, scheme, seed, chain, iterations, acceptance_rate, config
		FROM runs WHERE id = ?`, ids[0]))
	if err != nil {
		return nil, err
	}
	if meta.Metrics, err = s.loadMetrics(ctx, meta.ID); err != nil {
		return nil, err
	}
	return meta, nil
}

// LoadSamples returns the samples of a run in iteration order.
func (s *Store) LoadSamples(ctx context.Context, runID string) ([]dynamo.Sample, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT iteration, energy, biased_energy, accepted, distance, displacement
		FROM samples WHERE run_id = ? ORDER BY iteration`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	samples := make([]dynamo.Sample, 0)
	for rows.Next() {
		var smp dynamo.Sample
		var energy, bias, distance, displacement sql.NullFloat64
		if err := rows.Scan(&smp.Iteration, &energy, &bias, &smp.Accepted, &distance, &displacement); err != nil {
			return nil, err
		}
		smp.Energy = orNaN(energy)
		smp.BiasedEnergy = orNaN(bias)
		smp.Distance = orNaN(distance)
		smp.Displacement = orNaN(displacement)
		samples = append(samples, smp)
	}
	return samples, rows.Err()
}

// Delete removes a run and, through the foreign keys, its samples.
func (s *Store) Delete(ctx context.Context, runID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, runID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", runID, ErrRunNotFound)
	}
	return nil
}

func (s *Store) loadMetrics(ctx context.Context, runID string) (map[string]float64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, value FROM metrics WHERE run_id = ?`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]float64)
	for rows.Next() {
		var name string
		var value sql.NullFloat64
		if err := rows.Scan(&name, &value); err != nil {
			return nil, err
		}
		out[name] = orNaN(value)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*RunMetadata, error) {
	var meta RunMetadata
	var created string
	if err := row.Scan(&meta.ID, &created, &meta.Label, &meta.Scheme, &meta.Seed,
		&meta.Chain, &meta.Iterations, &meta.AcceptanceRate, &meta.Config); err != nil {
		return nil, err
	}
	t, err := time.Parse(timeLayout, created)
	if err != nil {
		return nil, fmt.Errorf("run %s: created_at: %w", meta.ID, err)
	}
	meta.CreatedAt = t
	return &meta, nil
}

func nullable(v float64) sql.NullFloat64 {
	return sql.NullFloat64{Float64: v, Valid: !math.IsNaN(v)}
}

func orNaN(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.NaN()
	}
	return v.Float64
}
