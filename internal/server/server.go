package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/qikhub/walletledger/internal/config"
	"github.com/qikhub/walletledger/internal/routes"
)

// Server wraps the Fiber application and the ledger it serves.
type Server struct {
	app  *fiber.App
	cfg  config.Config
	deps routes.Deps
}

// New instantiates the HTTP server and delegates route wiring to routes.Setup.
func New(cfg config.Config, deps routes.Deps) (*Server, error) {
	if deps.Ledger == nil {
		return nil, fmt.Errorf("ledger service is required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	deps.Cfg = cfg

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	})

	if err := routes.Setup(app, deps); err != nil {
		return nil, err
	}

	return &Server{app: app, cfg: cfg, deps: deps}, nil
}

// App exposes the underlying Fiber application, mainly for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Restore loads the most recent snapshot into the ledger before traffic is
// accepted. A missing snapshot store or snapshot starts an empty ledger.
func (s *Server) Restore(ctx context.Context) error {
	if s.deps.Snapshots == nil {
		return nil
	}
	if err := s.deps.Ledger.Load(ctx, s.deps.Snapshots); err != nil {
		return fmt.Errorf("restore ledger: %w", err)
	}
	return nil
}

// Listen starts the HTTP server.
func (s *Server) Listen() error {
	return s.app.Listen(s.cfg.Address())
}

// Shutdown drains in-flight requests and then persists the ledger so the
// next start resumes from the same state.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.app.ShutdownWithContext(ctx); err != nil {
		return err
	}
	if s.deps.Snapshots == nil {
		return nil
	}
	if err := s.deps.Ledger.Save(ctx, s.deps.Snapshots); err != nil {
		return fmt.Errorf("save ledger: %w", err)
	}
	return nil
}
