// Package login is the orchestration layer between the public operations
// (CLI commands, request handlers) and the moving parts underneath: session
// store, progress tracker and browser driver. It owns the reuse short-circuit
// and the promotion step; the driver only ever produces partial artifacts.
package login

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/guhesse/script-wf-sub000/api/schemas"
	"github.com/guhesse/script-wf-sub000/internal/audit"
	"github.com/guhesse/script-wf-sub000/internal/config"
	"github.com/guhesse/script-wf-sub000/internal/progress"
	"github.com/guhesse/script-wf-sub000/internal/session"
)

// recordTimeout bounds the detached write of one audit record.
const recordTimeout = 5 * time.Second

// AttemptRecorder persists finished attempts for later inspection. The
// pgx-backed implementation lives in internal/audit; a nil recorder disables
// the trail.
type AttemptRecorder interface {
	RecordAttempt(ctx context.Context, rec audit.AttemptRecord) error
}

// PortalProber checks the identity portal over plain HTTP before a browser
// is paid for. Probe failures are advisory: the portal may well reject
// non-browser clients that the real flow gets past.
type PortalProber interface {
	Probe(ctx context.Context, url string) error
}

// Service exposes the public login operations.
type Service struct {
	log     *zap.Logger
	cfg     *config.Config
	store   *session.Store
	tracker *progress.Tracker
	driver  schemas.LoginDriver
	prober  PortalProber
	auditor AttemptRecorder
}

// NewService wires the orchestrator. prober and auditor may be nil.
func NewService(
	cfg *config.Config,
	store *session.Store,
	tracker *progress.Tracker,
	driver schemas.LoginDriver,
	prober PortalProber,
	auditor AttemptRecorder,
	logger *zap.Logger,
) *Service {
	return &Service{
		log:     logger.Named("login"),
		cfg:     cfg,
		store:   store,
		tracker: tracker,
		driver:  driver,
		prober:  prober,
		auditor: auditor,
	}
}

// Login runs a full, blocking login. A fresh session on disk short-circuits
// the whole flow without touching the tracker or the browser. When another
// attempt is in flight it returns progress.ErrAlreadyRunning unchanged so
// callers can map it to a conflict outcome.
func (s *Service) Login(ctx context.Context, opts *schemas.LoginOptions) (*schemas.LoginResult, error) {
	if status := s.store.CheckStatus(); status.LoggedIn {
		s.log.Info("Existing session is still valid, skipping login",
			zap.Float64("hours_age", status.HoursAge))
		return &schemas.LoginResult{
			Reused:      true,
			SessionFile: s.store.FinalPath(),
			LoggedInAt:  status.LastLogin,
			Message:     "existing session reused",
		}, nil
	}

	if err := s.tracker.Start(); err != nil {
		return nil, err
	}

	return s.runAttempt(ctx, opts)
}

// StartLogin launches a login in the background and returns the attempt ID
// for polling via GetProgress. The single-flight gate is claimed before the
// goroutine starts, so a second call while running gets
// progress.ErrAlreadyRunning immediately.
func (s *Service) StartLogin(opts *schemas.LoginOptions) (string, error) {
	if err := s.tracker.Start(); err != nil {
		return "", err
	}
	snap := s.tracker.Get()

	go func() {
		// Detached from the caller: the request that started the attempt
		// returns long before the browser is done.
		ctx := context.Background()

		if status := s.store.CheckStatus(); status.LoggedIn {
			s.log.Info("Existing session is still valid, background attempt is a no-op")
			s.tracker.Success("existing session reused")
			return
		}
		if _, err := s.runAttempt(ctx, opts); err != nil {
			s.log.Error("Background login attempt failed", zap.Error(err))
		}
	}()

	return snap.AttemptID, nil
}

// GetProgress returns the tracker snapshot for pollers.
func (s *Service) GetProgress() schemas.ProgressSnapshot {
	return s.tracker.Get()
}

// CancelLogin abandons progress tracking and reports whether an attempt was
// actually in flight. The browser automation itself is not interrupted: a
// running driver finishes invisibly against the reset tracker.
func (s *Service) CancelLogin() bool {
	wasRunning := s.tracker.IsRunning()
	s.tracker.Reset()
	if wasRunning {
		s.log.Warn("Login attempt cancelled, browser may still be running")
	}
	return wasRunning
}

// CheckLoginStatus reports whether a usable session exists on disk.
func (s *Service) CheckLoginStatus() schemas.SessionStatus {
	return s.store.CheckStatus()
}

// RequiresLogin is the inverse convenience used by guard clauses.
func (s *Service) RequiresLogin() bool {
	return !s.store.CheckStatus().LoggedIn
}

// GetSessionInfo returns the redacted summary of the stored artifact.
func (s *Service) GetSessionInfo() (*schemas.SessionSummary, error) {
	return s.store.ReadSummary()
}

// ClearSession removes the stored artifacts. Idempotent.
func (s *Service) ClearSession() error {
	return s.store.Clear()
}

// ValidateSession re-checks the stored artifact and explains the verdict.
func (s *Service) ValidateSession() (bool, string) {
	return s.store.Validate()
}

// GetSessionStats returns file-level diagnostics for the session artifacts.
func (s *Service) GetSessionStats() schemas.SessionStats {
	return s.store.Stats()
}

// runAttempt drives one claimed attempt to a terminal tracker state. The
// caller must have won tracker.Start already.
func (s *Service) runAttempt(ctx context.Context, opts *schemas.LoginOptions) (*schemas.LoginResult, error) {
	started := s.tracker.Get()

	s.probePortal(ctx)

	attempt, err := s.driver.PerformLogin(ctx, opts)
	if err != nil {
		return nil, s.failAttempt(started, attempt, fmt.Errorf("login failed: %w", err))
	}

	s.tracker.Update(schemas.PhasePersisting, "promoting session artifact")
	if err := s.store.PromotePartial(); err != nil {
		return nil, s.failAttempt(started, attempt, fmt.Errorf("login failed: %w", err))
	}

	status := s.store.CheckStatus()
	if !status.LoggedIn {
		err := fmt.Errorf("login failed: login appeared to fail, no valid session produced (%s)", status.Reason)
		return nil, s.failAttempt(started, attempt, err)
	}

	s.tracker.Success("login completed")
	s.recordAttempt(started, attempt, audit.OutcomeSuccess, "")

	s.log.Info("Login completed",
		zap.String("attempt_id", started.AttemptID),
		zap.Int("persist_count", attempt.PersistCount),
		zap.Bool("verified", attempt.Verified),
		zap.String("final_url", attempt.FinalURL))

	return &schemas.LoginResult{
		Reused:      false,
		SessionFile: s.store.FinalPath(),
		LoggedInAt:  status.LastLogin,
		Message:     "login completed",
	}, nil
}

// probePortal runs the advisory preflight check when one is configured.
func (s *Service) probePortal(ctx context.Context) {
	if s.prober == nil || !s.cfg.Probe.Enabled {
		return
	}
	probeCtx, cancel := context.WithTimeout(ctx, s.cfg.Probe.Timeout)
	defer cancel()

	if err := s.prober.Probe(probeCtx, s.cfg.Login.EntryURL); err != nil {
		s.log.Warn("Portal preflight probe failed, continuing anyway", zap.Error(err))
		return
	}
	s.log.Debug("Portal preflight probe passed", zap.String("url", s.cfg.Login.EntryURL))
}

// failAttempt moves the tracker to FAILED with the wrapped reason, records
// the attempt and hands the error back for the caller to propagate.
func (s *Service) failAttempt(started schemas.ProgressSnapshot, attempt *schemas.LoginAttempt, err error) error {
	s.tracker.Fail(err.Error())
	s.recordAttempt(started, attempt, audit.OutcomeFailure, err.Error())
	return err
}

// recordAttempt writes one row to the audit trail. Runs on a detached
// context so a cancelled caller cannot lose the record; failures are logged
// and swallowed because the trail never gates a login outcome.
func (s *Service) recordAttempt(started schemas.ProgressSnapshot, attempt *schemas.LoginAttempt, outcome, reason string) {
	if s.auditor == nil {
		return
	}

	rec := audit.AttemptRecord{
		ID:           started.AttemptID,
		StartedAt:    started.StartedAt,
		FinishedAt:   time.Now(),
		Outcome:      outcome,
		Reason:       reason,
		PhaseReached: string(s.tracker.Get().Phase),
		DurationMs:   time.Since(started.StartedAt).Milliseconds(),
	}
	if attempt != nil {
		rec.PersistCount = attempt.PersistCount
	}

	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()

	if err := s.auditor.RecordAttempt(ctx, rec); err != nil {
		s.log.Debug("Failed to record login attempt", zap.Error(err))
	}
}
