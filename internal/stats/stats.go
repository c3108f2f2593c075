// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package stats maintains a queryable SQLite index over the learning
// session history. The JSON session log is the source of truth; the index
// is derived and can be rebuilt from it at any time.
package stats

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/regmon-engine/pkg/types"
)

const (
	sessionsFile = "learning_sessions.json"
	indexDir     = "index"
	dbFile       = "stats.db"
)

// Store manages the session statistics SQLite database.
type Store struct {
	db    *sql.DB
	kbDir string
}

// Open opens or creates the statistics database at kbDir/index/stats.db,
// creating the schema if it does not exist.
func Open(kbDir string) (*Store, error) {
	dbDir := filepath.Join(kbDir, indexDir)
	if err := os.MkdirAll(dbDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating index directory: %w", err)
	}

	dbPath := filepath.Join(dbDir, dbFile)
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{db: db, kbDir: kbDir}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			session_id TEXT PRIMARY KEY,
			timestamp TEXT NOT NULL,
			source_id TEXT NOT NULL,
			jurisdiction TEXT,
			method TEXT NOT NULL,
			success INTEGER NOT NULL,
			items_found INTEGER NOT NULL,
			extraction_time REAL NOT NULL,
			error_message TEXT,
			patterns_used TEXT,
			new_patterns TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_source_id ON sessions(source_id)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_method ON sessions(method)`,
		`CREATE TABLE IF NOT EXISTS ingest_status (
			file TEXT PRIMARY KEY,
			file_mod_time TEXT
		)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// IngestSummary holds counts from one index rebuild.
type IngestSummary struct {
	Indexed int
	Skipped bool
}

// Ingest reads the session log and rebuilds the index from it. An
// unchanged log file (by modification time) is skipped. A missing log file
// yields an empty index.
func (s *Store) Ingest(ctx context.Context, w io.Writer) (IngestSummary, error) {
	path := filepath.Join(s.kbDir, sessionsFile)

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		fmt.Fprintf(w, "no session log at %s, index left empty\n", path)
		return IngestSummary{}, nil
	}
	if err != nil {
		return IngestSummary{}, fmt.Errorf("checking session log: %w", err)
	}
	modTime := info.ModTime().UTC().Format(time.RFC3339Nano)

	var storedModTime string
	err = s.db.QueryRowContext(ctx,
		`SELECT file_mod_time FROM ingest_status WHERE file = ?`, sessionsFile,
	).Scan(&storedModTime)
	if err == nil && storedModTime == modTime {
		fmt.Fprintf(w, "skipped %s (unchanged)\n", sessionsFile)
		return IngestSummary{Skipped: true}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return IngestSummary{}, fmt.Errorf("reading session log: %w", err)
	}
	var sessions []types.LearningSession
	if err := json.Unmarshal(data, &sessions); err != nil {
		return IngestSummary{}, fmt.Errorf("parsing session log: %w", err)
	}

	if err := s.replaceSessions(ctx, sessions, modTime); err != nil {
		return IngestSummary{}, err
	}

	fmt.Fprintf(w, "indexed %d sessions from %s\n", len(sessions), sessionsFile)
	return IngestSummary{Indexed: len(sessions)}, nil
}

func (s *Store) replaceSessions(ctx context.Context, sessions []types.LearningSession, modTime string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM sessions`); err != nil {
		return fmt.Errorf("clearing old index: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO sessions
			(session_id, timestamp, source_id, jurisdiction, method, success,
			 items_found, extraction_time, error_message, patterns_used, new_patterns)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for _, sess := range sessions {
		usedJSON, _ := json.Marshal(sess.PatternsUsed)
		newJSON, _ := json.Marshal(sess.NewPatternsDiscovered)
		success := 0
		if sess.Success {
			success = 1
		}
		_, err := stmt.ExecContext(ctx,
			sess.SessionID, sess.Timestamp.UTC().Format(time.RFC3339Nano),
			sess.SourceID, sess.Jurisdiction, string(sess.ExtractionMethod),
			success, sess.ItemsFound, sess.ExtractionTime, sess.ErrorMessage,
			string(usedJSON), string(newJSON),
		)
		if err != nil {
			return fmt.Errorf("inserting session %s: %w", sess.SessionID, err)
		}
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO ingest_status (file, file_mod_time) VALUES (?, ?)
		 ON CONFLICT(file) DO UPDATE SET file_mod_time=excluded.file_mod_time`,
		sessionsFile, modTime,
	)
	if err != nil {
		return fmt.Errorf("updating ingest status: %w", err)
	}

	return tx.Commit()
}

// SourceReport aggregates the session history of one source.
type SourceReport struct {
	SourceID    string
	Sessions    int
	Successes   int
	SuccessRate float64
	AvgItems    float64
	AvgTime     float64
	LastChecked time.Time
}

// BySource returns per-source aggregates ordered by source ID.
func (s *Store) BySource(ctx context.Context) ([]SourceReport, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT source_id, COUNT(*), SUM(success),
		        AVG(items_found), AVG(extraction_time), MAX(timestamp)
		 FROM sessions GROUP BY source_id ORDER BY source_id`)
	if err != nil {
		return nil, fmt.Errorf("querying per-source stats: %w", err)
	}
	defer rows.Close()

	var reports []SourceReport
	for rows.Next() {
		var r SourceReport
		var last string
		if err := rows.Scan(&r.SourceID, &r.Sessions, &r.Successes, &r.AvgItems, &r.AvgTime, &last); err != nil {
			return nil, fmt.Errorf("scanning per-source row: %w", err)
		}
		if r.Sessions > 0 {
			r.SuccessRate = float64(r.Successes) / float64(r.Sessions)
		}
		if t, err := time.Parse(time.RFC3339Nano, last); err == nil {
			r.LastChecked = t
		}
		reports = append(reports, r)
	}
	return reports, rows.Err()
}

// MethodReport aggregates sessions by extraction method.
type MethodReport struct {
	Method    string
	Sessions  int
	Successes int
	AvgItems  float64
}

// ByMethod returns per-method aggregates ordered by session count
// descending. A healthy engine shows learned_patterns overtaking
// llm_analysis as sources are learned.
func (s *Store) ByMethod(ctx context.Context) ([]MethodReport, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT method, COUNT(*), SUM(success), AVG(items_found)
		 FROM sessions GROUP BY method ORDER BY COUNT(*) DESC, method`)
	if err != nil {
		return nil, fmt.Errorf("querying per-method stats: %w", err)
	}
	defer rows.Close()

	var reports []MethodReport
	for rows.Next() {
		var r MethodReport
		if err := rows.Scan(&r.Method, &r.Sessions, &r.Successes, &r.AvgItems); err != nil {
			return nil, fmt.Errorf("scanning per-method row: %w", err)
		}
		reports = append(reports, r)
	}
	return reports, rows.Err()
}

// WriteReport prints the per-source and per-method aggregates.
func (s *Store) WriteReport(ctx context.Context, w io.Writer) error {
	sources, err := s.BySource(ctx)
	if err != nil {
		return err
	}
	methods, err := s.ByMethod(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "Sources (%d):\n", len(sources))
	for _, r := range sources {
		fmt.Fprintf(w, "  %-24s %4d sessions  %5.1f%% success  %5.1f items/session  %6.2fs avg\n",
			r.SourceID, r.Sessions, r.SuccessRate*100, r.AvgItems, r.AvgTime)
	}
	fmt.Fprintf(w, "\nMethods:\n")
	for _, r := range methods {
		fmt.Fprintf(w, "  %-22s %4d sessions  %4d successful  %5.1f items/session\n",
			r.Method, r.Sessions, r.Successes, r.AvgItems)
	}
	return nil
}
