// Package mcpserver provides the MCP server for coordination tool exposure.
package mcpserver

import (
	"context"
	"sync"
	"time"

	"github.com/ralphswarm/conductor/internal/logging"
	"github.com/ralphswarm/conductor/internal/orchestrator"
	"go.uber.org/zap"
)

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{Port: 9090}
}

// NewWithLogger creates a new MCP server with the given configuration and logger.
func NewWithLogger(cfg Config, orch *orchestrator.Orchestrator, log *logger.Logger) *Server {
	srv := New(cfg, orch)
	srv.logger = log.WithFields(zap.String("component", "mcp-server"))
	return srv
}

// Provide starts the MCP server and returns a cleanup function to stop it.
func Provide(ctx context.Context, cfg Config, orch *orchestrator.Orchestrator, log *logger.Logger) (*Server, func() error, error) {
	srv := NewWithLogger(cfg, orch, log)
	if err := srv.Start(ctx); err != nil {
		return nil, nil, err
	}

	var stopOnce sync.Once
	cleanup := func() error {
		var stopErr error
		stopOnce.Do(func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			stopErr = srv.Stop(stopCtx)
		})
		return stopErr
	}

	return srv, cleanup, nil
}
