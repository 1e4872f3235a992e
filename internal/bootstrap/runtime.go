// Package bootstrap assembles the process-level runtime: configuration,
// database, Redis, and the HTTP/WebSocket server, plus signal-driven
// shutdown. cmd/server stays thin by delegating here.
package bootstrap

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"workroom/internal/cache"
	"workroom/internal/config"
	"workroom/internal/database"
	"workroom/internal/middleware"
	"workroom/internal/server"
)

// shutdownGrace bounds how long in-flight requests get on SIGTERM.
const shutdownGrace = 10 * time.Second

// Runtime holds the assembled process dependencies.
type Runtime struct {
	Config *config.Config
	Server *server.Server
}

// New loads configuration and wires every dependency. The database schema is
// migrated on startup; Redis is optional and absence degrades the process to
// single-instance fan-out.
func New() (*Runtime, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	middleware.InitMiddleware(cfg)

	db, err := database.Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}
	if err := database.Migrate(db); err != nil {
		return nil, fmt.Errorf("database migration failed: %w", err)
	}

	cache.InitRedis(cfg.RedisURL)

	srv, err := server.NewServerWithDeps(cfg, db, cache.GetClient())
	if err != nil {
		return nil, fmt.Errorf("server construction failed: %w", err)
	}

	return &Runtime{Config: cfg, Server: srv}, nil
}

// Run starts the server and blocks until SIGINT/SIGTERM, then drains.
func (r *Runtime) Run() error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- r.Server.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		log.Printf("Received %v, shutting down...", sig)
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	return r.Server.Shutdown(ctx)
}
