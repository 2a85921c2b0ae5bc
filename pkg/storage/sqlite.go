package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ergbridge/ergbridge/pkg/types"
	"github.com/levenlabs/go-lflag"
	_ "modernc.org/sqlite"
)

const dayFormat = "2006-01-02"

// SQLiteProvider implements the Database interface on a local SQLite file.
// Definitions are stored as JSON blobs keyed by their identity so schema
// changes in the definition types never require a migration.
type SQLiteProvider struct {
	path string
	db   *sql.DB
}

// configuredSQLite sets up the SQLite provider.
// It registers flags for configuration.
func configuredSQLite() *SQLiteProvider {
	path := lflag.String("sqlite-path", "ergbridge.db", "Path to the SQLite database file")

	s := &SQLiteProvider{}

	lflag.Do(func() {
		s.path = *path
	})

	return s
}

// Validate checks if the provider is properly configured.
func (s *SQLiteProvider) Validate() error {
	if s.path == "" {
		return errors.New("sqlite-path cannot be empty")
	}
	return nil
}

// Init opens the database and runs migrations.
// This must be called before using the provider methods.
func (s *SQLiteProvider) Init(ctx context.Context) error {
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", s.path+"?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL")
	if err != nil {
		return fmt.Errorf("failed to open db: %w", err)
	}
	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s.db = db
	if err := s.migrate(ctx); err != nil {
		db.Close()
		s.db = nil
		return fmt.Errorf("failed to migrate: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteProvider) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *SQLiteProvider) migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS jobs (
		entity_id TEXT PRIMARY KEY,
		definition TEXT NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS tariffs (
		name TEXT PRIMARY KEY,
		definition TEXT NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS elapsed (
		entity_id TEXT PRIMARY KEY,
		day TEXT NOT NULL,
		seconds REAL NOT NULL
	);
	`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// ListJobs returns all stored job definitions ordered by entity ID.
func (s *SQLiteProvider) ListJobs(ctx context.Context) ([]types.JobDefinition, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT definition FROM jobs ORDER BY entity_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query jobs: %w", err)
	}
	defer rows.Close()

	var jobs []types.JobDefinition
	for rows.Next() {
		var blob string
		if err := rows.Scan(&blob); err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		var job types.JobDefinition
		if err := json.Unmarshal([]byte(blob), &job); err != nil {
			return nil, fmt.Errorf("failed to decode job: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// GetJob retrieves a single job definition by entity ID.
func (s *SQLiteProvider) GetJob(ctx context.Context, entityID string) (types.JobDefinition, error) {
	var blob string
	err := s.db.QueryRowContext(ctx,
		`SELECT definition FROM jobs WHERE entity_id = ?`, entityID).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return types.JobDefinition{}, ErrJobNotFound
	}
	if err != nil {
		return types.JobDefinition{}, fmt.Errorf("failed to query job: %w", err)
	}

	var job types.JobDefinition
	if err := json.Unmarshal([]byte(blob), &job); err != nil {
		return types.JobDefinition{}, fmt.Errorf("failed to decode job: %w", err)
	}
	return job, nil
}

// UpsertJob adds or replaces a job definition.
func (s *SQLiteProvider) UpsertJob(ctx context.Context, job types.JobDefinition) error {
	blob, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to encode job: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO jobs (entity_id, definition, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(entity_id) DO UPDATE SET definition = excluded.definition, updated_at = excluded.updated_at`,
		job.EntityID, string(blob), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to upsert job: %w", err)
	}
	return nil
}

// RemoveJob deletes a job definition.
func (s *SQLiteProvider) RemoveJob(ctx context.Context, entityID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE entity_id = ?`, entityID)
	if err != nil {
		return fmt.Errorf("failed to delete job: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrJobNotFound
	}
	return nil
}

// ListTariffs returns all stored tariff definitions ordered by name.
func (s *SQLiteProvider) ListTariffs(ctx context.Context) ([]types.TariffDefinition, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT definition FROM tariffs ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query tariffs: %w", err)
	}
	defer rows.Close()

	var tariffs []types.TariffDefinition
	for rows.Next() {
		var blob string
		if err := rows.Scan(&blob); err != nil {
			return nil, fmt.Errorf("failed to scan tariff: %w", err)
		}
		var tariff types.TariffDefinition
		if err := json.Unmarshal([]byte(blob), &tariff); err != nil {
			return nil, fmt.Errorf("failed to decode tariff: %w", err)
		}
		tariffs = append(tariffs, tariff)
	}
	return tariffs, rows.Err()
}

// UpsertTariff adds or replaces a tariff definition.
func (s *SQLiteProvider) UpsertTariff(ctx context.Context, tariff types.TariffDefinition) error {
	blob, err := json.Marshal(tariff)
	if err != nil {
		return fmt.Errorf("failed to encode tariff: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO tariffs (name, definition, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET definition = excluded.definition, updated_at = excluded.updated_at`,
		tariff.Name, string(blob), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to upsert tariff: %w", err)
	}
	return nil
}

// RemoveTariff deletes a tariff definition.
func (s *SQLiteProvider) RemoveTariff(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tariffs WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("failed to delete tariff: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrTariffNotFound
	}
	return nil
}

// LoadElapsed returns the persisted elapsed snapshot and the day it was
// taken. An empty store returns the zero time and an empty map.
func (s *SQLiteProvider) LoadElapsed(ctx context.Context) (time.Time, map[string]float64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT entity_id, day, seconds FROM elapsed`)
	if err != nil {
		return time.Time{}, nil, fmt.Errorf("failed to query elapsed: %w", err)
	}
	defer rows.Close()

	var day time.Time
	elapsed := make(map[string]float64)
	for rows.Next() {
		var entity, dayStr string
		var seconds float64
		if err := rows.Scan(&entity, &dayStr, &seconds); err != nil {
			return time.Time{}, nil, fmt.Errorf("failed to scan elapsed: %w", err)
		}
		if day.IsZero() {
			day, err = time.ParseInLocation(dayFormat, dayStr, time.UTC)
			if err != nil {
				return time.Time{}, nil, fmt.Errorf("failed to parse elapsed day: %w", err)
			}
		}
		elapsed[entity] = seconds
	}
	return day, elapsed, rows.Err()
}

// SaveElapsed replaces the stored elapsed snapshot with the given counters.
func (s *SQLiteProvider) SaveElapsed(ctx context.Context, day time.Time, elapsed map[string]float64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM elapsed`); err != nil {
		return fmt.Errorf("failed to clear elapsed: %w", err)
	}
	dayStr := day.Format(dayFormat)
	for entity, seconds := range elapsed {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO elapsed (entity_id, day, seconds) VALUES (?, ?, ?)`,
			entity, dayStr, seconds); err != nil {
			return fmt.Errorf("failed to insert elapsed: %w", err)
		}
	}
	return tx.Commit()
}
