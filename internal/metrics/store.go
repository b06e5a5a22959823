package metrics

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Mode labels the entry point that triggered an invocation.
type Mode string

const (
	ModeSearch Mode = "search"
	ModeModels Mode = "models"
	ModeHealth Mode = "health"
	ModeCLI    Mode = "cli"
)

// AllModes lists every tracked invocation mode, in reporting order.
var AllModes = []Mode{ModeSearch, ModeModels, ModeHealth, ModeCLI}

const (
	schemaSQL = `
		CREATE TABLE IF NOT EXISTS invocation_counts (
			mode TEXT NOT NULL,
			date TEXT NOT NULL,
			count INTEGER DEFAULT 0,
			PRIMARY KEY (mode, date)
		);
	`
	incrementSQL = `
		INSERT INTO invocation_counts (mode, date, count)
		VALUES (?, ?, 1)
		ON CONFLICT(mode, date) DO UPDATE SET count = count + 1;
	`
)

// Store persists per-mode, per-day invocation counts in SQLite.
type Store struct {
	db *sql.DB
}

// NewStore opens the store at its default location, creating the database
// on first use. STATS_DB_PATH overrides the location, which tests rely on.
func NewStore() (*Store, error) {
	path, err := resolveDBPath()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create stats directory: %w", err)
	}
	return NewStoreWithPath(path)
}

func resolveDBPath() (string, error) {
	if custom := os.Getenv("STATS_DB_PATH"); custom != "" {
		return custom, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(home, ".perplexica-mcp", "stats.db"), nil
}

// NewStoreWithPath opens the store at an explicit database path and ensures
// the schema exists.
func NewStoreWithPath(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}
	return &Store{db: db}, nil
}

// Increment adds one to today's counter for the given mode.
func (s *Store) Increment(mode Mode) error {
	today := time.Now().Format("2006-01-02")
	if _, err := s.db.Exec(incrementSQL, string(mode), today); err != nil {
		return fmt.Errorf("failed to increment count: %w", err)
	}
	return nil
}

// GetTotalByMode sums a mode's counters across all days.
func (s *Store) GetTotalByMode(mode Mode) (int64, error) {
	var total int64
	err := s.db.QueryRow(
		"SELECT COALESCE(SUM(count), 0) FROM invocation_counts WHERE mode = ?",
		string(mode),
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to get total for mode %s: %w", mode, err)
	}
	return total, nil
}

// GetAllTotals returns the cumulative count for every mode. Modes that have
// never been recorded appear with a zero so callers see a stable key set.
func (s *Store) GetAllTotals() (map[Mode]int64, error) {
	totals := make(map[Mode]int64, len(AllModes))
	for _, mode := range AllModes {
		totals[mode] = 0
	}

	rows, err := s.db.Query(
		"SELECT mode, COALESCE(SUM(count), 0) FROM invocation_counts GROUP BY mode",
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query totals: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var mode string
		var total int64
		if err := rows.Scan(&mode, &total); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		totals[Mode(mode)] = total
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return totals, nil
}

// GetCountByDate returns a mode's counter for one day (YYYY-MM-DD).
func (s *Store) GetCountByDate(mode Mode, date string) (int64, error) {
	var count int64
	err := s.db.QueryRow(
		"SELECT count FROM invocation_counts WHERE mode = ? AND date = ?",
		string(mode), date,
	).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get count: %w", err)
	}
	return count, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
