// Package progress tracks the state of the login flow for one process. A
// single Tracker instance is shared by everything that reports or reads
// progress, which is also what enforces the one-login-at-a-time rule.
package progress

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/guhesse/script-wf-sub000/api/schemas"
)

// ErrAlreadyRunning signals that a login attempt is in flight and a second
// one may not start.
var ErrAlreadyRunning = errors.New("a login attempt is already in progress")

// Tracker is the process-wide login progress state. All methods are safe for
// concurrent use. A fresh Tracker starts idle; state from a previous process
// is never recovered.
type Tracker struct {
	mu   sync.RWMutex
	log  *zap.Logger
	snap schemas.ProgressSnapshot
}

// NewTracker creates an idle tracker.
func NewTracker(logger *zap.Logger) *Tracker {
	return &Tracker{
		log: logger.Named("progress"),
		snap: schemas.ProgressSnapshot{
			Phase: schemas.PhaseIdle,
			Done:  true,
		},
	}
}

// Start claims the tracker for a new attempt. It fails with
// ErrAlreadyRunning when another attempt has not finished, making Start the
// single-flight gate for the whole login flow.
func (t *Tracker) Start() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.snap.Done {
		return ErrAlreadyRunning
	}

	now := time.Now()
	t.snap = schemas.ProgressSnapshot{
		AttemptID: uuid.NewString(),
		Phase:     schemas.PhaseStarting,
		Message:   "login attempt starting",
		StartedAt: now,
		UpdatedAt: now,
		Attempts:  0,
		Done:      false,
	}
	t.log.Info("Login attempt started", zap.String("attempt_id", t.snap.AttemptID))
	return nil
}

// Update records a phase transition with a human-readable message.
func (t *Tracker) Update(phase schemas.Phase, message string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.snap.Phase = phase
	t.snap.Message = message
	t.snap.UpdatedAt = time.Now()
	t.log.Debug("Login progress",
		zap.String("phase", string(phase)),
		zap.String("message", message))
}

// IncAttempts bumps the detection-poll counter.
func (t *Tracker) IncAttempts() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.snap.Attempts++
	t.snap.UpdatedAt = time.Now()
}

// Success finishes the attempt in the SUCCESS phase.
func (t *Tracker) Success(message string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.snap.Phase = schemas.PhaseSuccess
	t.snap.Message = message
	t.snap.Error = ""
	t.snap.Done = true
	t.snap.UpdatedAt = time.Now()
	t.log.Info("Login attempt succeeded", zap.String("attempt_id", t.snap.AttemptID))
}

// Fail finishes the attempt in the FAILED phase, keeping the reason.
func (t *Tracker) Fail(reason string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.snap.Phase = schemas.PhaseFailed
	t.snap.Error = reason
	t.snap.Done = true
	t.snap.UpdatedAt = time.Now()
	t.log.Warn("Login attempt failed",
		zap.String("attempt_id", t.snap.AttemptID),
		zap.String("reason", reason))
}

// Reset returns the tracker to idle, abandoning whatever attempt state it
// held. The next Start succeeds immediately after a Reset.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.snap.Done {
		t.log.Info("Abandoning in-flight login attempt",
			zap.String("attempt_id", t.snap.AttemptID))
	}
	t.snap = schemas.ProgressSnapshot{
		Phase: schemas.PhaseIdle,
		Done:  true,
	}
}

// Get returns a copy of the current snapshot.
func (t *Tracker) Get() schemas.ProgressSnapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.snap
}

// IsRunning reports whether an attempt is in flight.
func (t *Tracker) IsRunning() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return !t.snap.Done
}
