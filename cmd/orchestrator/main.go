// Package main is the entry point for the Swarm Conductor orchestrator
// service: it loads configuration, wires the Agent Registry, Event Bus,
// Persistence provider, and Orchestrator together, then serves the HTTP
// command surface (§6), the event gateway, and the MCP tool surface.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ralphswarm/conductor/internal/acp"
	"github.com/ralphswarm/conductor/internal/agent/registry"
	"github.com/ralphswarm/conductor/internal/common/httpmw"
	"github.com/ralphswarm/conductor/internal/config"
	"github.com/ralphswarm/conductor/internal/events"
	"github.com/ralphswarm/conductor/internal/events/bus"
	"github.com/ralphswarm/conductor/internal/eventgateway"
	"github.com/ralphswarm/conductor/internal/httpapi"
	"github.com/ralphswarm/conductor/internal/logging"
	"github.com/ralphswarm/conductor/internal/mcpserver"
	"github.com/ralphswarm/conductor/internal/orchestrator"
	"github.com/ralphswarm/conductor/internal/persistence"
	"github.com/ralphswarm/conductor/internal/prd"
	"github.com/ralphswarm/conductor/internal/tracing"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewLogger(logger.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		OutputPath: cfg.Logging.OutputPath,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetDefault(log)

	log.Info("starting swarm conductor orchestrator")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	eventBus, err := newEventBus(cfg, log)
	if err != nil {
		log.Fatal("failed to initialize event bus", zap.Error(err))
	}
	defer eventBus.Close()

	sink := events.NewBusSink(eventBus)

	reg, closeRegistry, err := registry.Provide(log)
	if err != nil {
		log.Fatal("failed to initialize agent registry", zap.Error(err))
	}
	defer closeRegistry()

	persisted, err := persistence.Provide(persistence.Config{
		Driver:   cfg.Database.Driver,
		DSN:      cfg.Database.Path,
		Database: cfg.Database,
	})
	if err != nil {
		log.Fatal("failed to initialize persistence provider", zap.Error(err))
	}
	defer persisted.Close()

	permissions := acp.NewPermissionRegistry()
	orch := orchestrator.New(reg, sink, permissions, persisted)
	prdMgr := prd.NewManager(reg, sink, permissions, cfg.Agent.WorkingDir, prd.Defaults{
		MaxIterationsPerStory: uint32(cfg.PRD.DefaultMaxIterations),
		DefaultModel:          prd.ModelID(cfg.PRD.DefaultModel),
		WorkerPoolCap:         uint32(cfg.PRD.WorkerPoolCap),
	})

	gateway, closeGateway, err := eventgateway.Provide(ctx, eventBus, log)
	if err != nil {
		log.Fatal("failed to initialize event gateway", zap.Error(err))
	}
	defer closeGateway()

	mcpSrv, closeMCP, err := mcpserver.Provide(ctx, mcpserver.DefaultConfig(), orch, log)
	if err != nil {
		log.Fatal("failed to initialize mcp server", zap.Error(err))
	}
	defer closeMCP()

	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(httpmw.RequestLogger(log, "swarm-conductor-http"))
	router.Use(httpmw.OtelTracing("swarm-conductor-http"))

	v1 := router.Group("/api/v1")
	httpapi.SetupRoutes(v1, orch, log)
	httpapi.SetupPrdRoutes(v1, prdMgr, log)
	gateway.SetupRoutes(router)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeoutDuration(),
		WriteTimeout: cfg.Server.WriteTimeoutDuration(),
	}

	go func() {
		log.Info("http command surface listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("http server failed", zap.Error(err))
		}
	}()

	log.Info("mcp tool surface listening",
		zap.String("sse", mcpSrv.SSEEndpoint()),
		zap.String("streamable_http", mcpSrv.StreamableHTTPEndpoint()))

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http server shutdown error", zap.Error(err))
	}
	if err := mcpSrv.Stop(shutdownCtx); err != nil {
		log.Error("mcp server shutdown error", zap.Error(err))
	}
	if err := tracing.Shutdown(shutdownCtx); err != nil {
		log.Error("tracing shutdown error", zap.Error(err))
	}
}

func newEventBus(cfg *config.Config, log *logger.Logger) (bus.EventBus, error) {
	if cfg.Events.Driver == "nats" {
		return bus.NewNATSEventBus(cfg.NATS, log)
	}
	return bus.NewMemoryEventBus(log), nil
}
