// Package schemas defines the shared data contracts for the script-wf
// module: the persisted session artifact, login progress reporting, and the
// interfaces the orchestrator uses to talk to the browser layer.
package schemas

import (
	"context"
	"time"
)

// -- Session Artifact Models --
// These types mirror the JSON written to loginSession.json. Field names are
// part of the on-disk contract and are consumed by external tooling, so the
// camelCase tags must not change.

// Cookie is a single browser cookie captured from the authenticated session.
type Cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires"`
	HTTPOnly bool    `json:"httpOnly"`
	Secure   bool    `json:"secure"`
	SameSite string  `json:"sameSite,omitempty"`
}

// StorageState holds the web storage contents of the authenticated origin.
type StorageState struct {
	LocalStorage   map[string]string `json:"localStorage"`
	SessionStorage map[string]string `json:"sessionStorage"`
}

// SessionArtifact is the full persisted session: cookies plus storage state,
// stamped with where and when it was captured.
type SessionArtifact struct {
	Cookies      []Cookie      `json:"cookies"`
	StorageState *StorageState `json:"storageState,omitempty"`
	CapturedAt   time.Time     `json:"capturedAt"`
	CapturedURL  string        `json:"capturedUrl,omitempty"`
}

// -- Login Progress Models --

// Phase identifies a stage of the interactive login flow. Values are stable
// strings surfaced to progress consumers.
type Phase string

const (
	PhaseIdle                      Phase = "IDLE"
	PhaseStarting                  Phase = "STARTING"
	PhaseLaunchingBrowser          Phase = "LAUNCHING_BROWSER"
	PhaseNavigating                Phase = "NAVIGATING"
	PhaseAutomaticLogin            Phase = "AUTOMATIC_LOGIN"
	PhaseWaitingSSO                Phase = "WAITING_SSO"
	PhaseWaitingDeviceConfirmation Phase = "WAITING_DEVICE_CONFIRMATION"
	PhaseDeviceConfirmed           Phase = "DEVICE_CONFIRMED"
	PhaseDetectedButton            Phase = "DETECTED_BUTTON"
	PhasePersisting                Phase = "PERSISTING"
	PhaseSuccess                   Phase = "SUCCESS"
	PhaseFailed                    Phase = "FAILED"
)

// ProgressSnapshot is a point-in-time copy of the login progress state.
// Consumers receive copies; mutating one never affects the tracker.
type ProgressSnapshot struct {
	AttemptID string    `json:"attemptId"`
	Phase     Phase     `json:"phase"`
	Message   string    `json:"message"`
	StartedAt time.Time `json:"startedAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	Attempts  int       `json:"attempts"`
	Done      bool      `json:"done"`
	Error     string    `json:"error,omitempty"`
}

// -- Login Request/Result Models --

// Credentials carries the identifiers used by the automatic fill flow.
// PrimaryPassword is optional: some tenants jump straight from the primary
// identifier to the secondary broker.
type Credentials struct {
	Email           string
	PrimaryPassword string
	BrokerPassword  string
}

// LoginOptions are the per-call knobs of a login attempt. A nil Headless
// means "no override requested" and defers to configuration.
type LoginOptions struct {
	Headless    *bool
	Credentials *Credentials
}

// LoginResult reports the outcome of a successful Login call.
type LoginResult struct {
	Reused      bool      `json:"reused"`
	SessionFile string    `json:"sessionFile"`
	LoggedInAt  time.Time `json:"loggedInAt"`
	Message     string    `json:"message"`
}

// -- Session Report Models --

// SessionStatus describes whether a usable session exists on disk. Reason is
// a human-readable explanation when LoggedIn is false, never a raw error.
type SessionStatus struct {
	LoggedIn  bool      `json:"loggedIn"`
	LastLogin time.Time `json:"lastLogin,omitempty"`
	HoursAge  float64   `json:"hoursAge,omitempty"`
	FileSize  int64     `json:"fileSize,omitempty"`
	Reason    string    `json:"reason,omitempty"`
}

// SessionSummary is a redacted view of the stored artifact: counts and
// domains only, never cookie values.
type SessionSummary struct {
	CookieCount     int       `json:"cookieCount"`
	Domains         string    `json:"domains"`
	HasStorageState bool      `json:"hasStorageState"`
	CapturedAt      time.Time `json:"capturedAt"`
}

// SessionStats combines status, summary and file-level details for
// diagnostics commands.
type SessionStats struct {
	Status         SessionStatus   `json:"status"`
	Summary        *SessionSummary `json:"summary,omitempty"`
	PartialPresent bool            `json:"partialPresent"`
	SessionFile    string          `json:"sessionFile"`
	PartialFile    string          `json:"partialFile"`
}

// -- Browser Contracts --

// BrowserPage is the minimal surface the login flow needs from a live
// browser tab. The chromedp implementation lives in internal/browser; tests
// substitute a mock.
type BrowserPage interface {
	// Navigate loads the given URL and waits for the document to be ready.
	Navigate(ctx context.Context, url string) error

	// CurrentURL returns the location of the active document.
	CurrentURL(ctx context.Context) (string, error)

	// Title returns the document title.
	Title(ctx context.Context) (string, error)

	// WaitVisible blocks until the selector matches a visible node or the
	// context expires.
	WaitVisible(ctx context.Context, selector string) error

	// Exists reports whether the selector matches at least one node right
	// now, without waiting.
	Exists(ctx context.Context, selector string) (bool, error)

	// FirstMatch probes the selectors in order and returns the first one
	// present in the document, or "" when none match.
	FirstMatch(ctx context.Context, selectors ...string) (string, error)

	// Fill focuses the selector and types the value through real key events.
	Fill(ctx context.Context, selector, value string) error

	// FillViaDOM sets the field value directly on the DOM node and fires the
	// input and change events frameworks listen for. Fallback for fields
	// that reject synthetic keystrokes.
	FillViaDOM(ctx context.Context, selector, value string) error

	// Click dispatches a click on the first node matching the selector.
	Click(ctx context.Context, selector string) error

	// HeadingTexts returns the visible text of heading-like elements,
	// used to recognize device-confirmation prompts.
	HeadingTexts(ctx context.Context) ([]string, error)

	// OuterHTML returns the serialized document for content verification.
	OuterHTML(ctx context.Context) (string, error)

	// Snapshot captures the cookies and web storage of the current session.
	Snapshot(ctx context.Context) (*SessionArtifact, error)

	// Screenshot captures the viewport as PNG bytes.
	Screenshot(ctx context.Context) ([]byte, error)

	// Close releases the tab and its browser resources.
	Close() error
}

// LoginAttempt summarizes a driver run for the orchestrator.
type LoginAttempt struct {
	PersistCount int
	FinalURL     string
	Verified     bool
	StartedAt    time.Time
	FinishedAt   time.Time
}

// LoginDriver executes one interactive login attempt end to end: navigation,
// autofill, device confirmation, settle and partial persistence. Promotion
// of the partial artifact is the orchestrator's job.
type LoginDriver interface {
	PerformLogin(ctx context.Context, opts *LoginOptions) (*LoginAttempt, error)
}
