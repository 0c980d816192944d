package journal

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"episteme/internal/term"
)

// SQLiteStore persists journal entries incrementally to a SQLite file.
// One file may hold many runs; replay loads one run's entries in step
// order.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// OpenSQLiteStore opens (creating if needed) the journal database at path.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy_timeout: %w", err)
	}
	// WAL keeps incremental appends cheap and crash-recoverable, which is
	// what makes a partial journal replayable after an aborted run.
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set journal_mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA synchronous = NORMAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set synchronous: %w", err)
	}

	s := &SQLiteStore{db: db, path: path}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	const schema = `
CREATE TABLE IF NOT EXISTS journal_entries (
    run_id       TEXT    NOT NULL,
    step_id      INTEGER NOT NULL,
    node_hash    TEXT    NOT NULL,
    chosen_index INTEGER NOT NULL,
    source       TEXT    NOT NULL,
    ts_nanos     INTEGER NOT NULL,
    entry_hash   TEXT    NOT NULL,
    PRIMARY KEY (run_id, step_id)
);
CREATE TABLE IF NOT EXISTS journal_runs (
    run_id     TEXT PRIMARY KEY,
    started_at INTEGER NOT NULL
);`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize journal schema: %w", err)
	}
	return nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error { return s.db.Close() }

// AppendEntry persists one entry. The first entry of a run also records
// the run itself.
func (s *SQLiteStore) AppendEntry(runID uuid.UUID, e Entry) error {
	if e.StepID == 0 {
		if _, err := s.db.Exec(
			`INSERT OR IGNORE INTO journal_runs (run_id, started_at) VALUES (?, ?)`,
			runID.String(), e.Timestamp.UnixNano(),
		); err != nil {
			return fmt.Errorf("record run: %w", err)
		}
	}
	_, err := s.db.Exec(
		`INSERT INTO journal_entries (run_id, step_id, node_hash, chosen_index, source, ts_nanos, entry_hash)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		runID.String(), e.StepID, string(e.NodeHash), e.ChosenIndex, string(e.Source),
		e.Timestamp.UnixNano(), string(e.Hash),
	)
	if err != nil {
		return fmt.Errorf("append entry %d: %w", e.StepID, err)
	}
	return nil
}

// LoadRun reads one run's entries in step order.
func (s *SQLiteStore) LoadRun(runID uuid.UUID) ([]Entry, error) {
	rows, err := s.db.Query(
		`SELECT step_id, node_hash, chosen_index, source, ts_nanos, entry_hash
		 FROM journal_entries WHERE run_id = ? ORDER BY step_id`,
		runID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("load run %s: %w", runID, err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var nodeHash, source, entryHash string
		var nanos int64
		if err := rows.Scan(&e.StepID, &nodeHash, &e.ChosenIndex, &source, &nanos, &entryHash); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		e.NodeHash = term.Hash(nodeHash)
		e.Source = Source(source)
		e.Timestamp = time.Unix(0, nanos).UTC()
		e.Hash = term.Hash(entryHash)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// LatestRun returns the id of the most recently started run, which is what
// the CLI replays when no run is named explicitly.
func (s *SQLiteStore) LatestRun() (uuid.UUID, error) {
	var id string
	err := s.db.QueryRow(
		`SELECT run_id FROM journal_runs ORDER BY started_at DESC, run_id DESC LIMIT 1`,
	).Scan(&id)
	if err == sql.ErrNoRows {
		return uuid.Nil, fmt.Errorf("journal %s holds no runs", s.path)
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("latest run: %w", err)
	}
	return uuid.Parse(id)
}

// LoadLatest is a convenience wrapper combining LatestRun, LoadRun, and
// chain verification into a ready-to-replay Journal.
func (s *SQLiteStore) LoadLatest() (*Journal, error) {
	runID, err := s.LatestRun()
	if err != nil {
		return nil, journalErrf(IOFailure, "%v", err)
	}
	entries, err := s.LoadRun(runID)
	if err != nil {
		return nil, journalErrf(IOFailure, "%v", err)
	}
	return FromEntries(runID, entries)
}
