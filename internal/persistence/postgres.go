package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ralphswarm/conductor/internal/common/database"
	"github.com/ralphswarm/conductor/internal/conductorerr"
	"github.com/ralphswarm/conductor/internal/config"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS persisted_sessions (
	id TEXT PRIMARY KEY,
	session_id TEXT NOT NULL,
	agent_id TEXT NOT NULL,
	acp_session_id TEXT NOT NULL DEFAULT '',
	cwd TEXT NOT NULL,
	initial_prompt TEXT NOT NULL,
	status TEXT NOT NULL,
	blob JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
`

// PostgresStore is the optional Postgres-backed Provider (§6: "an optional
// postgres-backed provider via pgx/v5 pool"), for deployments that want the
// persisted-session store to live alongside other application data rather
// than a standalone SQLite file. The pool itself is the same tuned,
// ping-verified pgxpool wrapper the rest of the conductor's Postgres-backed
// components would use.
type PostgresStore struct {
	db *database.DB
}

// OpenPostgres connects using cfg and ensures the persisted_sessions table exists.
func OpenPostgres(ctx context.Context, cfg config.DatabaseConfig) (*PostgresStore, error) {
	db, err := database.NewDB(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres persisted session store: %w", err)
	}
	if _, err := db.Exec(ctx, postgresSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate postgres persisted session store: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

// Save writes (insert-or-replace) a persisted session envelope.
func (p *PostgresStore) Save(ctx context.Context, ps *PersistedSession) (*PersistedSession, error) {
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

	_, err := p.db.Exec(ctx, `
		INSERT INTO persisted_sessions
			(id, session_id, agent_id, acp_session_id, cwd, initial_prompt, status, blob, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			session_id=excluded.session_id, agent_id=excluded.agent_id,
			acp_session_id=excluded.acp_session_id, cwd=excluded.cwd,
			initial_prompt=excluded.initial_prompt, status=excluded.status,
			blob=excluded.blob, updated_at=excluded.updated_at
	`, ps.ID, ps.SessionID, ps.AgentID, ps.AcpSessionID, ps.Cwd, ps.InitialPrompt, ps.Status, blob, ps.CreatedAt, ps.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("save persisted session: %w", err)
	}
	return ps, nil
}

// Get loads one persisted session by id.
func (p *PostgresStore) Get(ctx context.Context, id string) (*PersistedSession, error) {
	row := p.db.QueryRow(ctx, `
		SELECT id, session_id, agent_id, acp_session_id, cwd, initial_prompt, status, blob, created_at, updated_at
		FROM persisted_sessions WHERE id = $1`, id)

	ps, err := scanPersisted(row)
	if err == pgx.ErrNoRows {
		return nil, conductorerr.WithKind(conductorerr.NotFound, fmt.Errorf("persisted session %q not found", id))
	}
	if err != nil {
		return nil, fmt.Errorf("get persisted session: %w", err)
	}
	return ps, nil
}

// List returns all persisted sessions, most recently updated first.
func (p *PostgresStore) List(ctx context.Context) ([]*PersistedSession, error) {
	rows, err := p.db.Query(ctx, `
		SELECT id, session_id, agent_id, acp_session_id, cwd, initial_prompt, status, blob, created_at, updated_at
		FROM persisted_sessions ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list persisted sessions: %w", err)
	}
	defer rows.Close()

	var out []*PersistedSession
	for rows.Next() {
		ps, err := scanPersisted(rows)
		if err != nil {
			return nil, fmt.Errorf("scan persisted session: %w", err)
		}
		out = append(out, ps)
	}
	return out, rows.Err()
}

// Delete removes a persisted session by id. Idempotent.
func (p *PostgresStore) Delete(ctx context.Context, id string) error {
	if _, err := p.db.Exec(ctx, `DELETE FROM persisted_sessions WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete persisted session: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (p *PostgresStore) Close() error {
	p.db.Close()
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPersisted(row rowScanner) (*PersistedSession, error) {
	var ps PersistedSession
	var blob []byte
	if err := row.Scan(&ps.ID, &ps.SessionID, &ps.AgentID, &ps.AcpSessionID, &ps.Cwd,
		&ps.InitialPrompt, &ps.Status, &blob, &ps.CreatedAt, &ps.UpdatedAt); err != nil {
		return nil, err
	}
	ps.Blob = json.RawMessage(blob)
	return &ps, nil
}

var _ Provider = (*PostgresStore)(nil)
