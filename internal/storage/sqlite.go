package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/PaulLerner/Forced-Alignment/internal/diag"
)

const (
	RunRunning   = "running"
	RunCompleted = "completed"
	RunFailed    = "failed"
)

// Artifact kinds recorded in the files table.
const (
	KindInput    = "input"
	KindBrackets = "brackets"
	KindGecko    = "gecko"
	KindRTTM     = "rttm"
	KindUEM      = "uem"
	KindAligned  = "aligned"
	KindList     = "list"
)

type Run struct {
	ID        string     `json:"id"`
	Command   string     `json:"command"`
	Serie     string     `json:"serie"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	Status    string     `json:"status"`
	Error     string     `json:"error,omitempty"`
}

type File struct {
	URI    string `json:"uri"`
	Kind   string `json:"kind"`
	Path   string `json:"path"`
	Digest string `json:"digest"`
}

// Manifest records which files every run read and wrote, with their
// digests and the consistency warnings the run produced.
type Manifest struct {
	db *sql.DB
}

func OpenManifest(dbPath string) (*Manifest, error) {
	if strings.TrimSpace(dbPath) == "" {
		dbPath = filepath.Join("data", "forced-alignment.db")
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	m := &Manifest{db: db}
	if err := m.init(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return m, nil
}

func (m *Manifest) init() error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := m.db.Exec(p); err != nil {
			return fmt.Errorf("apply pragma %q: %w", p, err)
		}
	}

	if _, err := m.db.Exec(`
		CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			command TEXT NOT NULL,
			serie TEXT NOT NULL DEFAULT '',
			started_at TEXT NOT NULL,
			ended_at TEXT,
			status TEXT NOT NULL,
			error TEXT NOT NULL DEFAULT ''
		);
	`); err != nil {
		return fmt.Errorf("create runs table: %w", err)
	}

	if _, err := m.db.Exec(`
		CREATE TABLE IF NOT EXISTS files (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			uri TEXT NOT NULL DEFAULT '',
			kind TEXT NOT NULL,
			path TEXT NOT NULL,
			digest TEXT NOT NULL,
			FOREIGN KEY(run_id) REFERENCES runs(id) ON DELETE CASCADE
		);
	`); err != nil {
		return fmt.Errorf("create files table: %w", err)
	}

	if _, err := m.db.Exec(`
		CREATE TABLE IF NOT EXISTS warnings (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			uri TEXT NOT NULL DEFAULT '',
			message TEXT NOT NULL,
			FOREIGN KEY(run_id) REFERENCES runs(id) ON DELETE CASCADE
		);
	`); err != nil {
		return fmt.Errorf("create warnings table: %w", err)
	}

	if _, err := m.db.Exec("CREATE INDEX IF NOT EXISTS idx_files_run_id ON files(run_id)"); err != nil {
		return fmt.Errorf("create files index: %w", err)
	}
	if _, err := m.db.Exec("CREATE INDEX IF NOT EXISTS idx_files_path ON files(path)"); err != nil {
		return fmt.Errorf("create files path index: %w", err)
	}
	if _, err := m.db.Exec("CREATE INDEX IF NOT EXISTS idx_warnings_run_id ON warnings(run_id)"); err != nil {
		return fmt.Errorf("create warnings index: %w", err)
	}

	return nil
}

func (m *Manifest) Close() error {
	if m == nil || m.db == nil {
		return nil
	}
	return m.db.Close()
}

func (m *Manifest) DB() *sql.DB {
	return m.db
}

// BeginRun inserts a running run and returns its id.
func (m *Manifest) BeginRun(command, serie string, startedAt time.Time) (string, error) {
	if strings.TrimSpace(command) == "" {
		return "", errors.New("run command is required")
	}

	id := uuid.NewString()
	_, err := m.db.Exec(
		`INSERT INTO runs(id, command, serie, started_at, status) VALUES(?, ?, ?, ?, ?)`,
		id,
		command,
		serie,
		startedAt.UTC().Format(time.RFC3339Nano),
		RunRunning,
	)
	if err != nil {
		return "", fmt.Errorf("begin run %s: %w", command, err)
	}
	return id, nil
}

// FinishRun marks the run completed, or failed when runErr is not nil.
func (m *Manifest) FinishRun(id string, endedAt time.Time, runErr error) error {
	status := RunCompleted
	msg := ""
	if runErr != nil {
		status = RunFailed
		msg = runErr.Error()
	}

	res, err := m.db.Exec(
		`UPDATE runs SET ended_at = ?, status = ?, error = ? WHERE id = ?`,
		endedAt.UTC().Format(time.RFC3339Nano),
		status,
		msg,
		id,
	)
	if err != nil {
		return fmt.Errorf("finish run %s: %w", id, err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finish run rows affected: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (m *Manifest) RecordFile(runID string, f File) error {
	_, err := m.db.Exec(
		`INSERT INTO files(run_id, uri, kind, path, digest) VALUES(?, ?, ?, ?, ?)`,
		runID,
		f.URI,
		f.Kind,
		f.Path,
		f.Digest,
	)
	if err != nil {
		return fmt.Errorf("record file %s for run %s: %w", f.Path, runID, err)
	}
	return nil
}

func (m *Manifest) RecordWarnings(runID string, warnings []diag.Warning) error {
	if len(warnings) == 0 {
		return nil
	}

	tx, err := m.db.Begin()
	if err != nil {
		return fmt.Errorf("begin warnings tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, w := range warnings {
		if _, err := tx.Exec(
			`INSERT INTO warnings(run_id, uri, message) VALUES(?, ?, ?)`,
			runID,
			w.URI,
			w.Message,
		); err != nil {
			return fmt.Errorf("record warning for run %s: %w", runID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit warnings for run %s: %w", runID, err)
	}
	return nil
}

func (m *Manifest) GetRun(id string) (Run, error) {
	row := m.db.QueryRow(
		`SELECT id, command, serie, started_at, ended_at, status, error FROM runs WHERE id = ?`,
		id,
	)

	var run Run
	var startedAt string
	var endedAt sql.NullString
	if err := row.Scan(&run.ID, &run.Command, &run.Serie, &startedAt, &endedAt, &run.Status, &run.Error); err != nil {
		return Run{}, fmt.Errorf("query run %s: %w", id, err)
	}

	parsedStart, err := time.Parse(time.RFC3339Nano, startedAt)
	if err != nil {
		return Run{}, fmt.Errorf("parse run %s started_at: %w", id, err)
	}
	run.StartedAt = parsedStart

	if endedAt.Valid {
		parsedEnd, err := time.Parse(time.RFC3339Nano, endedAt.String)
		if err != nil {
			return Run{}, fmt.Errorf("parse run %s ended_at: %w", id, err)
		}
		run.EndedAt = &parsedEnd
	}

	return run, nil
}

// Files lists the files of a run in the order they were recorded.
func (m *Manifest) Files(runID string) ([]File, error) {
	rows, err := m.db.Query(
		`SELECT uri, kind, path, digest FROM files WHERE run_id = ? ORDER BY id ASC`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("query files for run %s: %w", runID, err)
	}
	defer func() { _ = rows.Close() }()

	files := make([]File, 0, 16)
	for rows.Next() {
		var f File
		if err := rows.Scan(&f.URI, &f.Kind, &f.Path, &f.Digest); err != nil {
			return nil, fmt.Errorf("scan file for run %s: %w", runID, err)
		}
		files = append(files, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate file rows for run %s: %w", runID, err)
	}

	return files, nil
}

func (m *Manifest) Warnings(runID string) ([]diag.Warning, error) {
	rows, err := m.db.Query(
		`SELECT uri, message FROM warnings WHERE run_id = ? ORDER BY id ASC`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("query warnings for run %s: %w", runID, err)
	}
	defer func() { _ = rows.Close() }()

	var warnings []diag.Warning
	for rows.Next() {
		var w diag.Warning
		if err := rows.Scan(&w.URI, &w.Message); err != nil {
			return nil, fmt.Errorf("scan warning for run %s: %w", runID, err)
		}
		warnings = append(warnings, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate warning rows for run %s: %w", runID, err)
	}

	return warnings, nil
}

// LastDigest returns the most recent digest recorded for path by a
// completed run, or "" when none exists.
func (m *Manifest) LastDigest(path string) (string, error) {
	var digest string
	err := m.db.QueryRow(
		`SELECT f.digest FROM files f JOIN runs r ON r.id = f.run_id
		 WHERE f.path = ? AND r.status = ?
		 ORDER BY f.id DESC LIMIT 1`,
		path,
		RunCompleted,
	).Scan(&digest)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("query last digest of %s: %w", path, err)
	}
	return digest, nil
}
