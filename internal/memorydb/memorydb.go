// Package memorydb is the agent memory sidecar stored next to the
// conversation corpus: long-term semantic facts, time-stamped episodic
// events, and per-session conversation summaries in one SQLite file.
package memorydb

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SchemaVersion tracks the current database schema version.
// Bump this when adding migrations.
const SchemaVersion = 1

// FileName is the database file inside a profile directory.
const FileName = "memory.sqlite3"

// DB wraps the SQLite memory database. Thread-safe for concurrent use from
// multiple goroutines within one process; WAL mode + busy timeout keep
// occasional cross-process readers safe too.
type DB struct {
	db *sql.DB
}

// SemanticRow is one long-term fact keyed by name. Locked rows survive
// upserts: once locked, a fact stays locked until edited directly.
type SemanticRow struct {
	Key        string  `json:"key"`
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
	Locked     bool    `json:"locked"`
	UpdatedAt  int64   `json:"updated_at"`
}

// EpisodeRow is one time-stamped event with free-form entities and an
// importance weight used for search ranking.
type EpisodeRow struct {
	TS         int64   `json:"ts"`
	Title      string  `json:"title"`
	Detail     string  `json:"detail"`
	Entities   string  `json:"entities"`
	Importance float64 `json:"importance"`
}

// SummaryRow is one conversation summary covering a time span.
type SummaryRow struct {
	SessionID string `json:"session_id"`
	TSStart   int64  `json:"ts_start"`
	TSEnd     int64  `json:"ts_end"`
	Summary   string `json:"summary"`
	Tags      string `json:"tags"`
}

// Open creates or opens the memory database at dbPath with WAL mode and a
// busy timeout, then migrates the schema.
func Open(dbPath string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o700); err != nil {
		return nil, fmt.Errorf("memorydb: mkdir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("memorydb: open: %w", err)
	}

	// WAL mode: allows concurrent readers while writing
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("memorydb: wal mode: %w", err)
	}

	// Busy timeout: wait up to 5s if another process holds a lock
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("memorydb: busy timeout: %w", err)
	}

	m := &DB{db: db}
	if err := m.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return m, nil
}

// Close checkpoints WAL and closes the database.
func (m *DB) Close() error {
	_, _ = m.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return m.db.Close()
}

// migrate creates tables and indexes if they don't exist.
func (m *DB) migrate() error {
	tx, err := m.db.Begin()
	if err != nil {
		return fmt.Errorf("memorydb: begin migrate: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS metadata (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)
	`); err != nil {
		return fmt.Errorf("memorydb: create metadata: %w", err)
	}

	if _, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS semantic_memory (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			key        TEXT UNIQUE,
			value      TEXT,
			confidence REAL DEFAULT 0.8,
			locked     INTEGER DEFAULT 0,
			updated_at INTEGER
		)
	`); err != nil {
		return fmt.Errorf("memorydb: create semantic_memory: %w", err)
	}

	if _, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS episodic_memory (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			ts         INTEGER,
			title      TEXT,
			detail     TEXT,
			entities   TEXT,
			importance REAL DEFAULT 0.5
		)
	`); err != nil {
		return fmt.Errorf("memorydb: create episodic_memory: %w", err)
	}

	if _, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS conversation_summaries (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT,
			ts_start   INTEGER,
			ts_end     INTEGER,
			summary    TEXT,
			tags       TEXT
		)
	`); err != nil {
		return fmt.Errorf("memorydb: create conversation_summaries: %w", err)
	}

	for _, idx := range []string{
		"CREATE INDEX IF NOT EXISTS idx_ep_ts ON episodic_memory(ts)",
		"CREATE INDEX IF NOT EXISTS idx_ep_imp ON episodic_memory(importance)",
		"CREATE INDEX IF NOT EXISTS idx_sum_session ON conversation_summaries(session_id)",
	} {
		if _, err := tx.Exec(idx); err != nil {
			return fmt.Errorf("memorydb: create index: %w", err)
		}
	}

	if _, err := tx.Exec(`
		INSERT OR REPLACE INTO metadata (key, value) VALUES ('schema_version', ?)
	`, fmt.Sprintf("%d", SchemaVersion)); err != nil {
		return fmt.Errorf("memorydb: set schema version: %w", err)
	}

	return tx.Commit()
}

// --- Semantic ---

// UpsertSemantic inserts or updates a fact by key. A row that is already
// locked keeps its locked state regardless of the incoming value.
func (m *DB) UpsertSemantic(key, value string, confidence float64, locked bool) error {
	lockedInt := 0
	if locked {
		lockedInt = 1
	}
	_, err := m.db.Exec(`
		INSERT INTO semantic_memory (key, value, confidence, locked, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value      = excluded.value,
			confidence = excluded.confidence,
			locked     = CASE WHEN semantic_memory.locked = 1 THEN 1 ELSE excluded.locked END,
			updated_at = excluded.updated_at
	`, key, value, confidence, lockedInt, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("memorydb: upsert semantic: %w", err)
	}
	return nil
}

// SemanticTop returns the highest-priority facts: locked first, then most
// recently updated.
func (m *DB) SemanticTop(limit int) ([]SemanticRow, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := m.db.Query(`
		SELECT key, value, confidence, locked, updated_at
		FROM semantic_memory
		ORDER BY locked DESC, updated_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("memorydb: semantic top: %w", err)
	}
	defer rows.Close()

	var out []SemanticRow
	for rows.Next() {
		var r SemanticRow
		var locked int
		if err := rows.Scan(&r.Key, &r.Value, &r.Confidence, &locked, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("memorydb: scan semantic: %w", err)
		}
		r.Locked = locked != 0
		out = append(out, r)
	}
	return out, rows.Err()
}

// --- Episodic ---

// AddEpisode records one event. A zero ts means now.
func (m *DB) AddEpisode(title, detail, entities string, importance float64, ts int64) error {
	if ts == 0 {
		ts = time.Now().Unix()
	}
	_, err := m.db.Exec(`
		INSERT INTO episodic_memory (ts, title, detail, entities, importance)
		VALUES (?, ?, ?, ?, ?)
	`, ts, title, detail, entities, importance)
	if err != nil {
		return fmt.Errorf("memorydb: add episode: %w", err)
	}
	return nil
}

// SearchEpisodes finds episodes whose title, detail, or entities contain the
// query, ordered by importance then recency.
func (m *DB) SearchEpisodes(query string, limit int) ([]EpisodeRow, error) {
	if limit <= 0 {
		limit = 8
	}
	q := "%" + query + "%"
	rows, err := m.db.Query(`
		SELECT ts, title, detail, entities, importance
		FROM episodic_memory
		WHERE title LIKE ? OR detail LIKE ? OR entities LIKE ?
		ORDER BY importance DESC, ts DESC
		LIMIT ?
	`, q, q, q, limit)
	if err != nil {
		return nil, fmt.Errorf("memorydb: search episodes: %w", err)
	}
	defer rows.Close()
	return scanEpisodes(rows)
}

// RecentEpisodes returns the newest episodes regardless of importance.
func (m *DB) RecentEpisodes(limit int) ([]EpisodeRow, error) {
	if limit <= 0 {
		limit = 8
	}
	rows, err := m.db.Query(`
		SELECT ts, title, detail, entities, importance
		FROM episodic_memory
		ORDER BY ts DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("memorydb: recent episodes: %w", err)
	}
	defer rows.Close()
	return scanEpisodes(rows)
}

func scanEpisodes(rows *sql.Rows) ([]EpisodeRow, error) {
	var out []EpisodeRow
	for rows.Next() {
		var r EpisodeRow
		if err := rows.Scan(&r.TS, &r.Title, &r.Detail, &r.Entities, &r.Importance); err != nil {
			return nil, fmt.Errorf("memorydb: scan episode: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// --- Summaries ---

// AddSummary records a conversation summary for a session and time span.
func (m *DB) AddSummary(s SummaryRow) error {
	_, err := m.db.Exec(`
		INSERT INTO conversation_summaries (session_id, ts_start, ts_end, summary, tags)
		VALUES (?, ?, ?, ?, ?)
	`, s.SessionID, s.TSStart, s.TSEnd, s.Summary, s.Tags)
	if err != nil {
		return fmt.Errorf("memorydb: add summary: %w", err)
	}
	return nil
}

// SummariesForSession returns summaries for one session, newest span first.
func (m *DB) SummariesForSession(sessionID string, limit int) ([]SummaryRow, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := m.db.Query(`
		SELECT session_id, ts_start, ts_end, summary, tags
		FROM conversation_summaries
		WHERE session_id = ?
		ORDER BY ts_end DESC
		LIMIT ?
	`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("memorydb: session summaries: %w", err)
	}
	defer rows.Close()
	return scanSummaries(rows)
}

// RecentSummaries returns the newest summaries across all sessions.
func (m *DB) RecentSummaries(limit int) ([]SummaryRow, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := m.db.Query(`
		SELECT session_id, ts_start, ts_end, summary, tags
		FROM conversation_summaries
		ORDER BY ts_end DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("memorydb: recent summaries: %w", err)
	}
	defer rows.Close()
	return scanSummaries(rows)
}

func scanSummaries(rows *sql.Rows) ([]SummaryRow, error) {
	var out []SummaryRow
	for rows.Next() {
		var r SummaryRow
		if err := rows.Scan(&r.SessionID, &r.TSStart, &r.TSEnd, &r.Summary, &r.Tags); err != nil {
			return nil, fmt.Errorf("memorydb: scan summary: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
