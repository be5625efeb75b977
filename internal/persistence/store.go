// Package persistence is the on-disk session blob store (§1: "deliberately
// out of scope" for the supervision engine itself, consumed only through
// the Provider interface below). Persisted blobs capture a session's
// envelope — never live connections; resuming reconstructs a fresh
// supervisor against the blob's remembered AcpSessionId (§3 "Lifecycle
// rules").
package persistence

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ralphswarm/conductor/internal/config"
)

// PersistedSession is the JSON envelope written by an explicit save
// (Orchestrator.SaveSession). Prompt completion does not write one.
type PersistedSession struct {
	ID            string          `json:"id"`
	SessionID     string          `json:"session_id"`
	AgentID       string          `json:"agent_id"`
	AcpSessionID  string          `json:"acp_session_id"`
	Cwd           string          `json:"cwd"`
	InitialPrompt string          `json:"initial_prompt"`
	Status        string          `json:"status"`
	Blob          json.RawMessage `json:"blob"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Provider is the pluggable persisted-session backend (§6's "simple JSON
// blob store", upgraded to a driver-selectable store — see Config.Driver).
type Provider interface {
	Save(ctx context.Context, ps *PersistedSession) (*PersistedSession, error)
	Get(ctx context.Context, id string) (*PersistedSession, error)
	List(ctx context.Context) ([]*PersistedSession, error)
	Delete(ctx context.Context, id string) error
	Close() error
}

// Config selects and configures a Provider.
type Config struct {
	// Driver is "sqlite" (default) or "postgres".
	Driver string
	// DSN is the sqlite file path, ignored for the postgres driver.
	DSN string
	// Database carries the pool-tuning fields (host/port/credentials,
	// MaxConns/MinConns) consumed by the postgres driver only.
	Database config.DatabaseConfig
}

// Provide builds the Provider named by cfg.Driver.
func Provide(cfg Config) (Provider, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = "sqlite"
	}
	switch driver {
	case "postgres":
		return OpenPostgres(context.Background(), cfg.Database)
	default:
		dsn := cfg.DSN
		if dsn == "" {
			dsn = "./conductor-sessions.db"
		}
		return Open(dsn)
	}
}
