package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/ralphswarm/conductor/internal/common/sqlite"
	"github.com/ralphswarm/conductor/internal/conductorerr"
	"github.com/ralphswarm/conductor/internal/db"
)

type sessionRow struct {
	ID            string    `db:"id"`
	SessionID     string    `db:"session_id"`
	AgentID       string    `db:"agent_id"`
	AcpSessionID  string    `db:"acp_session_id"`
	Cwd           string    `db:"cwd"`
	InitialPrompt string    `db:"initial_prompt"`
	Status        string    `db:"status"`
	Blob          string    `db:"blob"`
	CreatedAt     time.Time `db:"created_at"`
	UpdatedAt     time.Time `db:"updated_at"`
}

// Store persists session envelopes as JSON blobs in a single SQLite table.
// The default Provider (§6: "a sqlite-backed provider, default").
type Store struct {
	db *sqlx.DB
}

// Open opens (creating if necessary) the persisted-session database at path.
func Open(path string) (*Store, error) {
	conn, err := db.OpenSQLite(path)
	if err != nil {
		return nil, fmt.Errorf("open persisted session store: %w", err)
	}
	sdb := sqlx.NewDb(conn, "sqlite3")
	if _, err := sdb.Exec(sqliteSchema); err != nil {
		return nil, fmt.Errorf("migrate persisted session store: %w", err)
	}
	// acp_session_id was added after the initial schema; ensure it exists on
	// databases created before the column was introduced.
	if err := sqlite.EnsureColumn(sdb.DB, "persisted_sessions", "acp_session_id", "TEXT NOT NULL DEFAULT ''"); err != nil {
		return nil, fmt.Errorf("migrate persisted session store: %w", err)
	}
	return &Store{db: sdb}, nil
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS persisted_sessions (
	id TEXT PRIMARY KEY,
	session_id TEXT NOT NULL,
	agent_id TEXT NOT NULL,
	acp_session_id TEXT NOT NULL DEFAULT '',
	cwd TEXT NOT NULL,
	initial_prompt TEXT NOT NULL,
	status TEXT NOT NULL,
	blob TEXT NOT NULL,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);
`

// Save writes (insert-or-replace) a persisted session envelope.
func (s *Store) Save(ctx context.Context, ps *PersistedSession) (*PersistedSession, error) {
	if ps.ID == "" {
		ps.ID = uuid.New().String()
	}
	now := time.Now()
	if ps.CreatedAt.IsZero() {
		ps.CreatedAt = now
	}
	ps.UpdatedAt = now

	blob := ps.Blob
	if blob == nil {
		blob = json.RawMessage("{}")
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO persisted_sessions
			(id, session_id, agent_id, acp_session_id, cwd, initial_prompt, status, blob, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			session_id=excluded.session_id, agent_id=excluded.agent_id,
			acp_session_id=excluded.acp_session_id, cwd=excluded.cwd,
			initial_prompt=excluded.initial_prompt, status=excluded.status,
			blob=excluded.blob, updated_at=excluded.updated_at
	`, ps.ID, ps.SessionID, ps.AgentID, ps.AcpSessionID, ps.Cwd, ps.InitialPrompt, ps.Status, string(blob), ps.CreatedAt, ps.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("save persisted session: %w", err)
	}
	return ps, nil
}

// Get loads one persisted session by id.
func (s *Store) Get(ctx context.Context, id string) (*PersistedSession, error) {
	var row sessionRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM persisted_sessions WHERE id = ?`, id)
	if err == sql.ErrNoRows {
		return nil, conductorerr.WithKind(conductorerr.NotFound, fmt.Errorf("persisted session %q not found", id))
	}
	if err != nil {
		return nil, fmt.Errorf("get persisted session: %w", err)
	}
	return sqliteRowToPersisted(row), nil
}

// List returns all persisted sessions, most recently updated first.
func (s *Store) List(ctx context.Context) ([]*PersistedSession, error) {
	var rows []sessionRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT * FROM persisted_sessions ORDER BY updated_at DESC`); err != nil {
		return nil, fmt.Errorf("list persisted sessions: %w", err)
	}
	out := make([]*PersistedSession, 0, len(rows))
	for _, r := range rows {
		out = append(out, sqliteRowToPersisted(r))
	}
	return out, nil
}

// Delete removes a persisted session by id. Idempotent: deleting an
// already-absent id is not an error.
func (s *Store) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM persisted_sessions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete persisted session: %w", err)
	}
	return nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func sqliteRowToPersisted(r sessionRow) *PersistedSession {
	return &PersistedSession{
		ID:            r.ID,
		SessionID:     r.SessionID,
		AgentID:       r.AgentID,
		AcpSessionID:  r.AcpSessionID,
		Cwd:           r.Cwd,
		InitialPrompt: r.InitialPrompt,
		Status:        r.Status,
		Blob:          json.RawMessage(r.Blob),
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
}

var _ Provider = (*Store)(nil)
