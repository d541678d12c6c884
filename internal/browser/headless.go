package browser

import (
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/guhesse/script-wf-sub000/internal/config"
)

// headlessDebugOnce limits the resolution diagnostic to a single line per
// process, however many browser launches happen.
var headlessDebugOnce sync.Once

// ResolveHeadless decides whether the next browser launch runs headless.
// Precedence: the force-visible switch beats everything, then a per-call
// override (when overrides are allowed), then the configured default.
func ResolveHeadless(override *bool, cfg config.BrowserConfig, logger *zap.Logger) bool {
	resolved := cfg.Headless
	source := "config default"

	switch {
	case cfg.ForceVisible:
		resolved = false
		source = "force_visible"
	case override != nil && cfg.AllowOverride:
		resolved = *override
		source = "call override"
	case override != nil && !cfg.AllowOverride:
		source = "config default (override ignored)"
	}

	if cfg.DebugHeadless {
		headlessDebugOnce.Do(func() {
			logger.Info("Headless resolution",
				zap.Bool("resolved", resolved),
				zap.String("source", source),
				zap.Bool("config_default", cfg.Headless),
				zap.Bool("force_visible", cfg.ForceVisible),
				zap.Bool("allow_override", cfg.AllowOverride),
				zap.Bool("override_present", override != nil))
		})
	}

	return resolved
}

// ParseHeadlessOverride normalizes loosely-typed override values into a
// tri-state *bool. Booleans pass through; strings accept the usual spellings
// case-insensitively. Anything unrecognized means "no override".
func ParseHeadlessOverride(value interface{}) *bool {
	switch v := value.(type) {
	case nil:
		return nil
	case bool:
		return boolPtr(v)
	case *bool:
		return v
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "1", "yes":
			return boolPtr(true)
		case "false", "0", "no":
			return boolPtr(false)
		}
		return nil
	default:
		return nil
	}
}

func boolPtr(b bool) *bool { return &b }
