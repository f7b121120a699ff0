package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

// SQLiteStore is the SQLite-backed result store gateway.
//
// The analyzer writing analysis_results is a separate process; this service
// only reads records and attaches generated explanation text. WAL is enabled
// so reads stay concurrent with the analyzer's writes.
type SQLiteStore struct {
	db *sql.DB
}

// Open opens (and if needed initializes) the result database at path
func Open(path string) (*SQLiteStore, error) {
	p := filepath.Clean(strings.TrimSpace(path))
	if p == "" {
		return nil, errors.New("missing db path")
	}
	if dir := filepath.Dir(p); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", p)
	if err != nil {
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	return &SQLiteStore{db: db}, nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`CREATE TABLE IF NOT EXISTS analysis_results (
			result_id    TEXT PRIMARY KEY,
			status       TEXT,
			details      TEXT,
			llm_summary  TEXT,
			message_text TEXT
		);`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

// Close closes the underlying database
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ping reports whether the database is reachable
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// GetRecord fetches one analysis result by identifier
func (s *SQLiteStore) GetRecord(ctx context.Context, id string) (*Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT result_id, status, details, llm_summary, message_text
		 FROM analysis_results WHERE result_id = ?`, id)

	var (
		rec     Record
		status  sql.NullString
		details sql.NullString
		summary sql.NullString
		message sql.NullString
	)
	if err := row.Scan(&rec.ResultID, &status, &details, &summary, &message); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get record %s: %w", id, err)
	}

	rec.Status = status.String
	rec.Summary = summary.String
	rec.MessageText = message.String

	if details.Valid && details.String != "" {
		var payload map[string]any
		// Undecodable details are treated as absent: the record exists but
		// has nothing analyzable, which the orchestrator maps to NotFound.
		if err := json.Unmarshal([]byte(details.String), &payload); err == nil {
			rec.Details = payload
		}
	}

	return &rec, nil
}

// SaveExplanation attaches generated explanation text to a record. The stored
// message text is only filled in when previously empty; the cached summary is
// last-write-wins with no concurrency check.
func (s *SQLiteStore) SaveExplanation(ctx context.Context, id, summary, message string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE analysis_results
		 SET llm_summary = ?,
		     message_text = CASE
		         WHEN message_text IS NULL OR message_text = '' THEN ?
		         ELSE message_text
		     END
		 WHERE result_id = ?`,
		summary, message, id)
	if err != nil {
		return fmt.Errorf("save explanation %s: %w", id, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("save explanation %s: %w", id, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// InsertRecord stores a new analysis result row. Used by tests and tooling;
// the analyzer normally owns this table.
func (s *SQLiteStore) InsertRecord(ctx context.Context, rec *Record) error {
	var details any
	if rec.Details != nil {
		raw, err := json.Marshal(rec.Details)
		if err != nil {
			return fmt.Errorf("insert record %s: %w", rec.ResultID, err)
		}
		details = string(raw)
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO analysis_results (result_id, status, details, llm_summary, message_text)
		 VALUES (?, ?, ?, ?, ?)`,
		rec.ResultID, rec.Status, details, rec.Summary, rec.MessageText)
	if err != nil {
		return fmt.Errorf("insert record %s: %w", rec.ResultID, err)
	}
	return nil
}
