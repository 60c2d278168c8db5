// Package db persists per-request usage statistics in SQLite.
package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// RequestStat is one recorded question round trip.
type RequestStat struct {
	Provider      string
	Model         string
	QuestionChars int
	ResponseChars int
	Duration      time.Duration
	Failed        bool
}

// Totals aggregates all recorded requests.
type Totals struct {
	Requests      int64
	Failures      int64
	ResponseChars int64
}

// ProviderTotals aggregates requests for one provider.
type ProviderTotals struct {
	Provider string
	Requests int64
	Failures int64
}

// StatsStore wraps the SQLite connection holding usage statistics.
type StatsStore struct {
	conn *sql.DB
}

// Open creates or opens the stats database at the given path.
func Open(dbPath string) (*StatsStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite works best with a single connection.
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)

	s := &StatsStore{conn: conn}
	if err := s.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *StatsStore) Close() error {
	return s.conn.Close()
}

func (s *StatsStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS requests (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			provider TEXT NOT NULL,
			model TEXT DEFAULT '',
			question_chars INTEGER DEFAULT 0,
			response_chars INTEGER DEFAULT 0,
			duration_ms INTEGER DEFAULT 0,
			failed INTEGER DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_requests_provider ON requests(provider)`,
		`CREATE INDEX IF NOT EXISTS idx_requests_created ON requests(created_at)`,
	}

	for _, migration := range migrations {
		if _, err := s.conn.Exec(migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// Record inserts one request row.
func (s *StatsStore) Record(stat RequestStat) error {
	_, err := s.conn.Exec(
		`INSERT INTO requests (provider, model, question_chars, response_chars, duration_ms, failed)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		stat.Provider, stat.Model, stat.QuestionChars, stat.ResponseChars,
		stat.Duration.Milliseconds(), boolToInt(stat.Failed),
	)
	if err != nil {
		return fmt.Errorf("failed to record request: %w", err)
	}
	return nil
}

// GetTotals returns the aggregate over all recorded requests.
func (s *StatsStore) GetTotals() (*Totals, error) {
	totals := &Totals{}
	err := s.conn.QueryRow(
		`SELECT COUNT(*), COALESCE(SUM(failed), 0), COALESCE(SUM(response_chars), 0) FROM requests`,
	).Scan(&totals.Requests, &totals.Failures, &totals.ResponseChars)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate requests: %w", err)
	}
	return totals, nil
}

// PerProvider returns aggregates grouped by provider, busiest first.
func (s *StatsStore) PerProvider() ([]ProviderTotals, error) {
	rows, err := s.conn.Query(
		`SELECT provider, COUNT(*), COALESCE(SUM(failed), 0)
		 FROM requests GROUP BY provider ORDER BY COUNT(*) DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate by provider: %w", err)
	}
	defer rows.Close()

	var result []ProviderTotals
	for rows.Next() {
		var pt ProviderTotals
		if err := rows.Scan(&pt.Provider, &pt.Requests, &pt.Failures); err != nil {
			return nil, fmt.Errorf("failed to scan provider totals: %w", err)
		}
		result = append(result, pt)
	}
	return result, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
