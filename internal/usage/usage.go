// Package usage records token and media consumption per committed
// generation in a local sqlite database.
package usage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/manavm/pixstudio/pkg/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS usage_log (
    id TEXT PRIMARY KEY,
    operation TEXT NOT NULL,
    model TEXT NOT NULL,
    input_tokens INTEGER NOT NULL DEFAULT 0,
    output_tokens INTEGER NOT NULL DEFAULT 0,
    media_count INTEGER NOT NULL DEFAULT 1,
    timestamp DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_usage_log_timestamp ON usage_log(timestamp);
CREATE INDEX IF NOT EXISTS idx_usage_log_operation ON usage_log(operation);
`

type Entry struct {
	ID         string
	Operation  string
	Model      string
	Usage      models.TokenUsage
	MediaCount int
	Timestamp  time.Time
}

type Summary struct {
	InputTokens  int
	OutputTokens int
	MediaCount   int
	EntryCount   int
}

func (s *Summary) TotalTokens() int {
	return s.InputTokens + s.OutputTokens
}

type OperationSummary struct {
	Operation    string
	InputTokens  int
	OutputTokens int
	MediaCount   int
}

// Recorder wraps the sqlite usage log.
type Recorder struct {
	db *sql.DB
}

func NewRecorder(dbPath string) (*Recorder, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &Recorder{db: db}, nil
}

func (r *Recorder) Close() error {
	return r.db.Close()
}

// Record logs one committed generation's consumption.
func (r *Recorder) Record(ctx context.Context, entry *Entry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	if entry.MediaCount == 0 {
		entry.MediaCount = 1
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO usage_log (id, operation, model, input_tokens, output_tokens, media_count, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.Operation, entry.Model,
		entry.Usage.InputTokens, entry.Usage.OutputTokens, entry.MediaCount, entry.Timestamp)
	return err
}

// Totals aggregates across the whole log.
func (r *Recorder) Totals(ctx context.Context) (*Summary, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(input_tokens), 0), COALESCE(SUM(output_tokens), 0),
		        COALESCE(SUM(media_count), 0), COUNT(*)
		 FROM usage_log`)

	var s Summary
	if err := row.Scan(&s.InputTokens, &s.OutputTokens, &s.MediaCount, &s.EntryCount); err != nil {
		return nil, err
	}
	return &s, nil
}

// ByOperation aggregates per operation, ordered by name.
func (r *Recorder) ByOperation(ctx context.Context) ([]OperationSummary, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT operation, COALESCE(SUM(input_tokens), 0), COALESCE(SUM(output_tokens), 0),
		        COALESCE(SUM(media_count), 0)
		 FROM usage_log GROUP BY operation ORDER BY operation`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var summaries []OperationSummary
	for rows.Next() {
		var s OperationSummary
		if err := rows.Scan(&s.Operation, &s.InputTokens, &s.OutputTokens, &s.MediaCount); err != nil {
			return nil, err
		}
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}

// ByDateRange aggregates entries with start <= timestamp < end.
func (r *Recorder) ByDateRange(ctx context.Context, start, end time.Time) (*Summary, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(input_tokens), 0), COALESCE(SUM(output_tokens), 0),
		        COALESCE(SUM(media_count), 0), COUNT(*)
		 FROM usage_log WHERE timestamp >= ? AND timestamp < ?`,
		start, end)

	var s Summary
	if err := row.Scan(&s.InputTokens, &s.OutputTokens, &s.MediaCount, &s.EntryCount); err != nil {
		return nil, err
	}
	return &s, nil
}
