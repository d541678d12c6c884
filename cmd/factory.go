// File: cmd/factory.go
package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/guhesse/script-wf-sub000/internal/audit"
	"github.com/guhesse/script-wf-sub000/internal/browser"
	"github.com/guhesse/script-wf-sub000/internal/config"
	"github.com/guhesse/script-wf-sub000/internal/login"
	"github.com/guhesse/script-wf-sub000/internal/network"
	"github.com/guhesse/script-wf-sub000/internal/observability"
	"github.com/guhesse/script-wf-sub000/internal/progress"
	"github.com/guhesse/script-wf-sub000/internal/session"
)

// shutdownTimeout bounds the browser teardown during component shutdown.
const shutdownTimeout = 30 * time.Second

// Components holds the initialized services behind the login commands and
// centralizes their lifecycle.
type Components struct {
	Store    *session.Store
	Tracker  *progress.Tracker
	Manager  *browser.Manager
	Driver   *browser.Driver
	Prober   *network.Prober
	Recorder *audit.Recorder
	Service  *login.Service

	DBPool *pgxpool.Pool
}

// Shutdown gracefully closes all components, releasing resources in the
// correct order.
func (c *Components) Shutdown() {
	logger := observability.GetLogger()
	logger.Debug("Beginning component shutdown sequence.")

	// 1. Tear down any browser still running.
	if c.Manager != nil {
		// Use a separate context with a timeout for shutdown so it completes
		// even if the main application context was canceled.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := c.Manager.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Error during browser manager shutdown.", zap.Error(err))
		} else {
			logger.Debug("Browser manager shut down.")
		}
	}

	// 2. Close the database connection pool.
	if c.DBPool != nil {
		c.DBPool.Close()
		logger.Debug("Database connection pool closed.")
	}

	logger.Debug("All components shut down.")
}

// NewComponents handles the dependency injection for the login commands.
// The audit trail and the preflight prober are optional: without a database
// URL the recorder stays nil, without probe.enabled the prober stays nil.
func NewComponents(ctx context.Context, cfg *config.Config) (*Components, error) {
	logger := observability.GetLogger()
	components := &Components{}

	// Ensure cleanup happens if initialization fails midway.
	var initializationErr error
	defer func() {
		if initializationErr != nil {
			logger.Warn("Initialization failed, shutting down partially created components.", zap.Error(initializationErr))
			components.Shutdown()
		}
	}()

	// 1. Session store and progress tracker.
	components.Store = session.NewStore(cfg.Session.Dir, cfg.Session.MaxAge, logger)
	components.Tracker = progress.NewTracker(logger)
	logger.Debug("Session store and progress tracker initialized.")

	// 2. Browser manager and login driver.
	components.Manager = browser.NewManager(cfg.Browser, logger)
	components.Driver = browser.NewDriver(cfg, components.Manager, components.Store, components.Tracker, logger)
	logger.Debug("Browser manager and login driver initialized.")

	// 3. Preflight prober.
	if cfg.Probe.Enabled {
		components.Prober = network.NewProber(logger)
		logger.Debug("Portal prober initialized.")
	}

	// 4. Optional audit trail.
	if cfg.Audit.DatabaseURL != "" {
		dbPool, err := pgxpool.New(ctx, cfg.Audit.DatabaseURL)
		if err != nil {
			initializationErr = fmt.Errorf("failed to create database connection pool: %w", err)
			return nil, initializationErr
		}
		// Add to components immediately so the deferred Shutdown can close
		// it if later steps fail.
		components.DBPool = dbPool

		recorder, err := audit.NewRecorder(ctx, dbPool, logger)
		if err != nil {
			initializationErr = fmt.Errorf("failed to initialize audit recorder: %w", err)
			return nil, initializationErr
		}
		components.Recorder = recorder
		logger.Debug("Audit recorder initialized.")
	}

	// 5. Orchestrator. The optional collaborators must be handed over as
	// untyped nils: a typed nil *audit.Recorder inside the interface would
	// dodge the service's nil checks.
	var recorder login.AttemptRecorder
	if components.Recorder != nil {
		recorder = components.Recorder
	}
	var prober login.PortalProber
	if components.Prober != nil {
		prober = components.Prober
	}
	components.Service = login.NewService(cfg, components.Store, components.Tracker, components.Driver, prober, recorder, logger)
	logger.Debug("Login service initialized.")

	return components, nil
}
