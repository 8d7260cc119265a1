package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // database/sql driver

	"github.com/focusclass/focusd/internal/domain/model"
)

// Default sqlite configuration constants.
const (
	defaultDBPath      = "focusd.db"
	defaultBusyTimeout = 5 * time.Second
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	code              TEXT PRIMARY KEY,
	password          TEXT NOT NULL,
	authority_id      TEXT NOT NULL,
	authority_address TEXT NOT NULL,
	created_at        TIMESTAMP NOT NULL,
	ended_at          TIMESTAMP,
	state             TEXT NOT NULL,
	participant_count INTEGER NOT NULL DEFAULT 0,
	violation_total   INTEGER NOT NULL DEFAULT 0,
	duration_secs     INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS participants (
	id             TEXT NOT NULL,
	session_code   TEXT NOT NULL REFERENCES sessions(code),
	display_name   TEXT NOT NULL,
	remote_address TEXT NOT NULL,
	joined_at      TIMESTAMP NOT NULL,
	PRIMARY KEY (id, session_code)
);
CREATE TABLE IF NOT EXISTS violations (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	session_code     TEXT NOT NULL REFERENCES sessions(code),
	participant_id   TEXT NOT NULL,
	kind             TEXT NOT NULL,
	window_start     TIMESTAMP NOT NULL,
	window_end       TIMESTAMP NOT NULL,
	occurrence_count INTEGER NOT NULL,
	detail           TEXT
);
CREATE TABLE IF NOT EXISTS activity (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	session_code   TEXT NOT NULL REFERENCES sessions(code),
	participant_id TEXT,
	activity       TEXT NOT NULL,
	recorded_at    TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_violations_session ON violations(session_code);
CREATE INDEX IF NOT EXISTS idx_activity_session ON activity(session_code);
`

// SQLiteStore implements Gateway on a local sqlite database.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// StoreOption applies a configuration option to the SQLiteStore.
type StoreOption func(*SQLiteStore)

// WithPath sets the database file path. Use ":memory:" for tests.
func WithPath(path string) StoreOption {
	return func(s *SQLiteStore) {
		if path != "" {
			s.path = path
		}
	}
}

// NewSQLiteStore opens (creating if needed) the database and applies the
// schema.
func NewSQLiteStore(ctx context.Context, opts ...StoreOption) (*SQLiteStore, error) {
	s := &SQLiteStore{path: defaultDBPath}

	// Apply all options
	for _, opt := range opts {
		opt(s)
	}

	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOpenDatabase, err)
	}
	// modernc sqlite is single-writer; serialize access through one conn.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA busy_timeout = %d", defaultBusyTimeout.Milliseconds())); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: %v", ErrOpenDatabase, err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: schema: %v", ErrOpenDatabase, err)
	}

	s.db = db
	return s, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// RecordSession stores a newly started session.
func (s *SQLiteStore) RecordSession(ctx context.Context, sess model.Session) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (code, password, authority_id, authority_address, created_at, state)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(code) DO UPDATE SET state = excluded.state`,
		sess.Code, sess.Password, sess.AuthorityID, sess.AuthorityAddress, sess.CreatedAt, sess.State.String(),
	)
	if err != nil {
		return fmt.Errorf("record session %s: %w", sess.Code, err)
	}
	return nil
}

// RecordParticipant stores a participant that joined a session.
func (s *SQLiteStore) RecordParticipant(ctx context.Context, sessionCode string, p model.Participant) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO participants (id, session_code, display_name, remote_address, joined_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(id, session_code) DO NOTHING`,
		p.ID, sessionCode, p.DisplayName, p.RemoteAddress, p.JoinedAt,
	)
	if err != nil {
		return fmt.Errorf("record participant %s: %w", p.ID, err)
	}
	return nil
}

// RecordViolation stores one aggregated violation report.
func (s *SQLiteStore) RecordViolation(ctx context.Context, sessionCode string, r model.ViolationReport) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO violations (session_code, participant_id, kind, window_start, window_end, occurrence_count, detail)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sessionCode, r.ParticipantID, string(r.Kind), r.WindowStart, r.WindowEnd, r.OccurrenceCount, r.RepresentativeDetail,
	)
	if err != nil {
		return fmt.Errorf("record violation for %s: %w", r.ParticipantID, err)
	}
	return nil
}

// RecordActivity appends one roster/focus activity line for a session.
func (s *SQLiteStore) RecordActivity(ctx context.Context, sessionCode, participantID, activity string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO activity (session_code, participant_id, activity, recorded_at)
		 VALUES (?, ?, ?, ?)`,
		sessionCode, participantID, activity, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("record activity for %s: %w", sessionCode, err)
	}
	return nil
}

// FinalizeSession marks a session ended and stores its closing statistics.
func (s *SQLiteStore) FinalizeSession(ctx context.Context, sessionCode string, stats model.Statistics) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions
		 SET state = ?, ended_at = ?, participant_count = ?, violation_total = ?, duration_secs = ?
		 WHERE code = ?`,
		model.SessionEnded.String(), time.Now().UTC(),
		stats.ParticipantCount, stats.ViolationTotal, int(stats.DurationElapsed.Seconds()),
		sessionCode,
	)
	if err != nil {
		return fmt.Errorf("finalize session %s: %w", sessionCode, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrUnknownSession, sessionCode)
	}
	return nil
}

// SessionCount returns the number of stored sessions. Used by tests and
// the stats endpoint.
func (s *SQLiteStore) SessionCount(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count sessions: %w", err)
	}
	return n, nil
}

// ViolationCount returns the number of stored violation reports for a
// session.
func (s *SQLiteStore) ViolationCount(ctx context.Context, sessionCode string) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM violations WHERE session_code = ?`, sessionCode).Scan(&n); err != nil {
		return 0, fmt.Errorf("count violations: %w", err)
	}
	return n, nil
}
