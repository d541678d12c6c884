// Package session persists the browser session artifact on disk. The store
// works with two files: a partial artifact the login driver overwrites while
// an attempt is in flight, and the final artifact consumers read. A partial
// becomes final only through promotion, which validates before it replaces.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/guhesse/script-wf-sub000/api/schemas"
)

const (
	finalFileName   = "loginSession.json"
	partialFileName = "loginSession.partial.json"

	artifactFileMode = 0o600
	storeDirMode     = 0o755
)

var (
	// ErrNoSession signals the final artifact is absent. Expected condition,
	// not a failure.
	ErrNoSession = errors.New("no session artifact found")

	// ErrPromotionFailed signals the partial artifact could not become the
	// final one. The partial is discarded when this is returned.
	ErrPromotionFailed = errors.New("partial session promotion failed")
)

// Store is the file-backed session repository. Methods are safe for
// concurrent use in the sense that each performs a single filesystem
// operation sequence; serializing whole login attempts is the progress
// tracker's job, not the store's.
type Store struct {
	dir    string
	maxAge time.Duration
	log    *zap.Logger
}

// NewStore creates a session store rooted at dir. Artifacts older than
// maxAge are reported as stale.
func NewStore(dir string, maxAge time.Duration, logger *zap.Logger) *Store {
	return &Store{
		dir:    dir,
		maxAge: maxAge,
		log:    logger.Named("session"),
	}
}

// FinalPath returns the location of the promoted session artifact.
func (s *Store) FinalPath() string {
	return filepath.Join(s.dir, finalFileName)
}

// PartialPath returns the location of the in-flight partial artifact.
func (s *Store) PartialPath() string {
	return filepath.Join(s.dir, partialFileName)
}

// CheckStatus reports whether a usable session exists. It never returns an
// error: absence, unreadability and staleness all map to LoggedIn=false with
// a reason.
func (s *Store) CheckStatus() schemas.SessionStatus {
	info, err := os.Stat(s.FinalPath())
	if err != nil {
		if os.IsNotExist(err) {
			return schemas.SessionStatus{LoggedIn: false, Reason: "no session file"}
		}
		s.log.Warn("Session file could not be inspected", zap.Error(err))
		return schemas.SessionStatus{LoggedIn: false, Reason: fmt.Sprintf("session file not accessible: %v", err)}
	}

	age := time.Since(info.ModTime())
	status := schemas.SessionStatus{
		LastLogin: info.ModTime(),
		HoursAge:  age.Hours(),
		FileSize:  info.Size(),
	}

	if age < s.maxAge {
		status.LoggedIn = true
		return status
	}

	status.Reason = fmt.Sprintf("session expired (%.1fh old, limit %.1fh)", age.Hours(), s.maxAge.Hours())
	return status
}

// ReadSummary loads the final artifact and reduces it to counts and domains.
// Cookie values never leave this function. Returns ErrNoSession when the
// final artifact does not exist.
func (s *Store) ReadSummary() (*schemas.SessionSummary, error) {
	artifact, err := s.readArtifact(s.FinalPath())
	if err != nil {
		return nil, err
	}

	domainSet := make(map[string]struct{}, len(artifact.Cookies))
	for _, c := range artifact.Cookies {
		if c.Domain != "" {
			domainSet[c.Domain] = struct{}{}
		}
	}
	domains := make([]string, 0, len(domainSet))
	for d := range domainSet {
		domains = append(domains, d)
	}
	sort.Strings(domains)

	return &schemas.SessionSummary{
		CookieCount:     len(artifact.Cookies),
		Domains:         strings.Join(domains, ", "),
		HasStorageState: artifact.StorageState != nil,
		CapturedAt:      artifact.CapturedAt,
	}, nil
}

// Validate checks the structural integrity of the final artifact: it must
// exist, parse as JSON and carry a storageState block.
func (s *Store) Validate() (bool, string) {
	raw, err := os.ReadFile(s.FinalPath())
	if err != nil {
		if os.IsNotExist(err) {
			return false, "no session file"
		}
		return false, fmt.Sprintf("session file not readable: %v", err)
	}

	var artifact schemas.SessionArtifact
	if err := json.Unmarshal(raw, &artifact); err != nil {
		return false, fmt.Sprintf("session file is not valid JSON: %v", err)
	}
	if artifact.StorageState == nil {
		return false, "session file has no storageState"
	}
	return true, ""
}

// Clear removes the final artifact. A missing file is success, so calling
// Clear repeatedly is harmless.
func (s *Store) Clear() error {
	err := os.Remove(s.FinalPath())
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	if err == nil {
		s.log.Info("Session artifact removed", zap.String("path", s.FinalPath()))
	}
	return nil
}

// WritePartial overwrites the partial artifact with the given capture. The
// driver calls this on every settle tick; only promotion makes it visible to
// consumers.
func (s *Store) WritePartial(artifact *schemas.SessionArtifact) error {
	if artifact == nil {
		return fmt.Errorf("cannot persist a nil session artifact")
	}
	if err := os.MkdirAll(s.dir, storeDirMode); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}

	data, err := json.MarshalIndent(artifact, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode session artifact: %w", err)
	}
	if err := os.WriteFile(s.PartialPath(), data, artifactFileMode); err != nil {
		return fmt.Errorf("failed to write partial session: %w", err)
	}

	s.log.Debug("Partial session written",
		zap.Int("cookies", len(artifact.Cookies)),
		zap.String("path", s.PartialPath()))
	return nil
}

// PromotePartial validates the partial artifact and atomically moves it into
// the final location. On any validation failure the partial is deleted and
// the previous final artifact is left exactly as it was.
func (s *Store) PromotePartial() error {
	partialPath := s.PartialPath()

	// 1. Load the candidate.
	raw, err := os.ReadFile(partialPath)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: no partial artifact to promote", ErrPromotionFailed)
		}
		return fmt.Errorf("%w: partial not readable: %v", ErrPromotionFailed, err)
	}

	// 2. It must parse and carry at least one cookie, otherwise the capture
	// ran before authentication finished and is worthless.
	var artifact schemas.SessionArtifact
	if err := json.Unmarshal(raw, &artifact); err != nil {
		s.discardPartial("partial is not valid JSON")
		return fmt.Errorf("%w: partial is not valid JSON: %v", ErrPromotionFailed, err)
	}
	if len(artifact.Cookies) == 0 {
		s.discardPartial("partial has no cookies")
		return fmt.Errorf("%w: partial has no cookies", ErrPromotionFailed)
	}

	// 3. Replace the final artifact. Remove-then-rename keeps the swap
	// portable; rename itself is atomic on the same filesystem.
	if err := os.Remove(s.FinalPath()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("%w: could not remove previous session: %v", ErrPromotionFailed, err)
	}
	if err := os.Rename(partialPath, s.FinalPath()); err != nil {
		return fmt.Errorf("%w: rename failed: %v", ErrPromotionFailed, err)
	}

	s.log.Info("Session artifact promoted",
		zap.Int("cookies", len(artifact.Cookies)),
		zap.String("path", s.FinalPath()))
	return nil
}

// Stats merges status, summary and partial presence for diagnostics.
func (s *Store) Stats() schemas.SessionStats {
	stats := schemas.SessionStats{
		Status:      s.CheckStatus(),
		SessionFile: s.FinalPath(),
		PartialFile: s.PartialPath(),
	}

	if summary, err := s.ReadSummary(); err == nil {
		stats.Summary = summary
	} else if !errors.Is(err, ErrNoSession) {
		s.log.Debug("Session summary unavailable", zap.Error(err))
	}

	if _, err := os.Stat(s.PartialPath()); err == nil {
		stats.PartialPresent = true
	}
	return stats
}

// readArtifact loads and decodes an artifact file.
func (s *Store) readArtifact(path string) (*schemas.SessionArtifact, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoSession
		}
		return nil, fmt.Errorf("failed to read session artifact: %w", err)
	}

	var artifact schemas.SessionArtifact
	if err := json.Unmarshal(raw, &artifact); err != nil {
		return nil, fmt.Errorf("failed to parse session artifact: %w", err)
	}
	return &artifact, nil
}

// discardPartial deletes a partial that failed validation.
func (s *Store) discardPartial(reason string) {
	if err := os.Remove(s.PartialPath()); err != nil && !os.IsNotExist(err) {
		s.log.Warn("Failed to discard invalid partial session", zap.Error(err))
		return
	}
	s.log.Warn("Discarded invalid partial session", zap.String("reason", reason))
}
