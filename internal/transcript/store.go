// Package transcript persists processed turns to SQLite. It uses
// modernc.org/sqlite for pure-Go, CGO-free database access.
package transcript

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/nmoralez/rudder/internal/session"
	"github.com/nmoralez/rudder/internal/window"
)

//go:embed migrations/001_transcript.sql
var transcriptSchema string

// StoredTurn is a turn row read back out of the store.
type StoredTurn struct {
	SessionID       string    `json:"session_id"`
	TurnIndex       int       `json:"turn_index"`
	UserMessage     string    `json:"user_message"`
	Intent          string    `json:"intent"`
	Confidence      float64   `json:"confidence"`
	ObjectionType   string    `json:"objection_type,omitempty"`
	ObjectionTier   int       `json:"objection_tier,omitempty"`
	Frustration     int       `json:"frustration"`
	FinalAction     string    `json:"final_action"`
	FinalTransition string    `json:"final_transition,omitempty"`
	ResultingState  string    `json:"resulting_state"`
	DecisionJSON    string    `json:"decision_json"`
	CreatedAt       time.Time `json:"created_at"`
}

// Episode marker kinds, matching the fields of window.Episodes.
const (
	EpisodeFirstObjection    = "first_objection"
	EpisodeFirstBreakthrough = "first_breakthrough"
	EpisodeTurningPoint      = "turning_point"
)

// StoredEpisode is an episode marker row read back out of the store.
type StoredEpisode struct {
	SessionID string    `json:"session_id"`
	Kind      string    `json:"kind"`
	TurnIndex int       `json:"turn_index"`
	CreatedAt time.Time `json:"created_at"`
}

// StoredAnomaly is an anomaly row read back out of the store.
type StoredAnomaly struct {
	SessionID string    `json:"session_id"`
	TurnIndex int       `json:"turn_index"`
	Kind      string    `json:"kind"`
	Detail    string    `json:"detail"`
	CreatedAt time.Time `json:"created_at"`
}

// Store provides access to the transcript database. It implements
// session.Recorder; writes from concurrent sessions serialize on the single
// connection.
type Store struct {
	db *sql.DB
}

// NewStore opens (or creates) the transcript database under dataDir and
// initializes the schema.
func NewStore(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "transcript.db")

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite works best with a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	store := &Store{db: db}

	if err := store.initPragmas(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize pragmas: %w", err)
	}

	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return store, nil
}

// initPragmas configures SQLite for safe concurrent reads.
func (s *Store) initPragmas() error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",   // Write-Ahead Logging for concurrent reads
		"PRAGMA synchronous = NORMAL", // Balance safety and performance
		"PRAGMA foreign_keys = ON",    // Enforce referential integrity
		"PRAGMA busy_timeout = 5000",  // Wait 5 seconds if locked
		"PRAGMA temp_store = MEMORY",  // Keep temp tables in memory
	}

	for _, pragma := range pragmas {
		if _, err := s.db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %s: %w", pragma, err)
		}
	}

	return nil
}

// migrate runs the embedded schema. Idempotent, safe to call repeatedly.
func (s *Store) migrate() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range strings.Split(transcriptSchema, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" || strings.HasPrefix(stmt, "--") {
			continue
		}
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("execute statement: %w\nSQL: %s", err, stmt)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration: %w", err)
	}

	return nil
}

// RecordTurn persists one processed turn, its decision, any anomalies, and any
// episode markers, and bumps the session bookkeeping row. Atomic per turn.
func (s *Store) RecordTurn(ctx context.Context, rec session.TurnRecord) error {
	decisionJSON, err := json.Marshal(rec.Decision)
	if err != nil {
		return fmt.Errorf("encode decision: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sessions (id, last_turn, last_state) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET last_turn = excluded.last_turn, last_state = excluded.last_state`,
		rec.SessionID, rec.TurnIndex, rec.State)
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}

	objType := ""
	objTier := 0
	if rec.Objection.IsObjection {
		objType = rec.Objection.PrimaryType
		objTier = rec.Objection.TierUsed
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO turns (
			session_id, turn_index, user_message, intent, confidence,
			objection_type, objection_tier, frustration,
			final_action, final_transition, resulting_state, decision_json, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.SessionID, rec.TurnIndex, rec.UserMessage, rec.Intent, rec.Confidence,
		objType, objTier, rec.Frustration.Delta,
		rec.Decision.FinalAction, rec.Decision.FinalTransition, rec.State,
		string(decisionJSON), rec.Timestamp.UTC())
	if err != nil {
		return fmt.Errorf("insert turn: %w", err)
	}

	for _, a := range rec.Anomalies {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO anomalies (session_id, turn_index, kind, detail) VALUES (?, ?, ?, ?)`,
			rec.SessionID, a.TurnIndex, a.Kind, a.Detail)
		if err != nil {
			return fmt.Errorf("insert anomaly: %w", err)
		}
	}

	if err := insertEpisodes(ctx, tx, rec.SessionID, rec.Episodes); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit turn: %w", err)
	}

	return nil
}

// insertEpisodes records episode markers for a session. Markers repeat in the
// window's findings turn after turn, so inserts are keyed and idempotent.
func insertEpisodes(ctx context.Context, tx *sql.Tx, sessionID string, ep window.Episodes) error {
	const stmt = `
		INSERT INTO episodes (session_id, kind, turn_index) VALUES (?, ?, ?)
		ON CONFLICT DO NOTHING`

	if ep.FirstObjection != nil {
		if _, err := tx.ExecContext(ctx, stmt, sessionID, EpisodeFirstObjection, ep.FirstObjection.Index); err != nil {
			return fmt.Errorf("insert episode: %w", err)
		}
	}
	if ep.FirstBreakthrough != nil {
		if _, err := tx.ExecContext(ctx, stmt, sessionID, EpisodeFirstBreakthrough, ep.FirstBreakthrough.Index); err != nil {
			return fmt.Errorf("insert episode: %w", err)
		}
	}
	for _, idx := range ep.TurningPoints {
		if _, err := tx.ExecContext(ctx, stmt, sessionID, EpisodeTurningPoint, idx); err != nil {
			return fmt.Errorf("insert episode: %w", err)
		}
	}
	return nil
}

// Turns returns all stored turns for a session in order.
func (s *Store) Turns(ctx context.Context, sessionID string) ([]StoredTurn, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, turn_index, user_message, intent, confidence,
		       objection_type, objection_tier, frustration,
		       final_action, final_transition, resulting_state, decision_json, created_at
		FROM turns WHERE session_id = ? ORDER BY turn_index`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query turns: %w", err)
	}
	defer rows.Close()

	var out []StoredTurn
	for rows.Next() {
		var t StoredTurn
		err := rows.Scan(&t.SessionID, &t.TurnIndex, &t.UserMessage, &t.Intent, &t.Confidence,
			&t.ObjectionType, &t.ObjectionTier, &t.Frustration,
			&t.FinalAction, &t.FinalTransition, &t.ResultingState, &t.DecisionJSON, &t.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Anomalies returns all stored anomalies for a session in turn order.
func (s *Store) Anomalies(ctx context.Context, sessionID string) ([]StoredAnomaly, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, turn_index, kind, detail, created_at
		FROM anomalies WHERE session_id = ? ORDER BY turn_index, id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query anomalies: %w", err)
	}
	defer rows.Close()

	var out []StoredAnomaly
	for rows.Next() {
		var a StoredAnomaly
		if err := rows.Scan(&a.SessionID, &a.TurnIndex, &a.Kind, &a.Detail, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan anomaly: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Episodes returns all stored episode markers for a session in turn order.
func (s *Store) Episodes(ctx context.Context, sessionID string) ([]StoredEpisode, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, kind, turn_index, created_at
		FROM episodes WHERE session_id = ? ORDER BY turn_index, kind`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query episodes: %w", err)
	}
	defer rows.Close()

	var out []StoredEpisode
	for rows.Next() {
		var e StoredEpisode
		if err := rows.Scan(&e.SessionID, &e.Kind, &e.TurnIndex, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan episode: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// AnomalyCounts aggregates anomalies by kind for a session.
func (s *Store) AnomalyCounts(ctx context.Context, sessionID string) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT kind, COUNT(*) FROM anomalies WHERE session_id = ? GROUP BY kind`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query anomaly counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var kind string
		var n int
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, fmt.Errorf("scan anomaly count: %w", err)
		}
		counts[kind] = n
	}
	return counts, rows.Err()
}

// Health checks that the database connection is alive.
func (s *Store) Health() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var result int
	if err := s.db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	return nil
}

// Close flushes the WAL and closes the connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	if _, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: WAL checkpoint failed: %v\n", err)
	}
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// assert the Recorder contract at compile time
var _ session.Recorder = (*Store)(nil)
