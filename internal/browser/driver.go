package browser

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/guhesse/script-wf-sub000/api/schemas"
	"github.com/guhesse/script-wf-sub000/internal/config"
	"github.com/guhesse/script-wf-sub000/internal/progress"
	"github.com/guhesse/script-wf-sub000/internal/session"
)

const (
	// maxProviderHops bounds how many identity-provider transitions a single
	// autofill pass will follow before handing control back to the operator.
	maxProviderHops = 3

	// promptProbePolls is how many device-wait polls may pass without a push
	// prompt before the wait concludes this attempt has no push step.
	promptProbePolls = 4

	// fieldSettleDelay gives the provider UI time to react to a fill or a
	// click before the next probe.
	fieldSettleDelay = 2 * time.Second

	// probeTimeout bounds a single selector probe.
	probeTimeout = 5 * time.Second

	// screenshotTimeout bounds the failure screenshot capture.
	screenshotTimeout = 10 * time.Second
)

// launchFunc opens a fresh browser page. Tests substitute their own.
type launchFunc func(ctx context.Context, headless bool) (schemas.BrowserPage, error)

// Driver runs one interactive login attempt end to end: it launches a
// browser, opens the identity portal, optionally fills credentials across
// the provider hop, rides out the push confirmation, and persists session
// snapshots to the partial artifact. Promoting the partial to the final
// artifact stays with the orchestrator.
type Driver struct {
	logger  *zap.Logger
	cfg     *config.Config
	launch  launchFunc
	store   *session.Store
	tracker *progress.Tracker

	// fieldDelay separates consecutive form interactions. Tests shrink it.
	fieldDelay time.Duration
}

// NewDriver wires the login driver to a browser manager, the session store
// and the shared progress tracker.
func NewDriver(cfg *config.Config, manager *Manager, store *session.Store, tracker *progress.Tracker, logger *zap.Logger) *Driver {
	return &Driver{
		logger: logger.Named("login-driver"),
		cfg:    cfg,
		launch: func(ctx context.Context, headless bool) (schemas.BrowserPage, error) {
			return manager.Launch(ctx, headless)
		},
		store:      store,
		tracker:    tracker,
		fieldDelay: fieldSettleDelay,
	}
}

var _ schemas.LoginDriver = (*Driver)(nil)

// PerformLogin executes a single attempt. The returned LoginAttempt is
// populated even on failure so the caller can record what happened. Any
// failure is reported to the progress tracker before it propagates, and the
// browser context is always closed.
func (d *Driver) PerformLogin(ctx context.Context, opts *schemas.LoginOptions) (attempt *schemas.LoginAttempt, err error) {
	attempt = &schemas.LoginAttempt{StartedAt: time.Now()}

	// 1. Launch a browser context with the resolved headless mode.
	headless := ResolveHeadless(headlessOverride(opts), d.cfg.Browser, d.logger)
	d.tracker.Update(schemas.PhaseLaunchingBrowser, "launching browser context")

	page, err := d.launch(ctx, headless)
	if err != nil {
		err = fmt.Errorf("browser launch failed: %w", err)
		d.tracker.Fail(err.Error())
		attempt.FinishedAt = time.Now()
		return attempt, err
	}
	defer func() {
		attempt.FinishedAt = time.Now()
		if err != nil {
			d.captureFailureShot(page)
			d.tracker.Fail(err.Error())
		}
		if cerr := page.Close(); cerr != nil {
			d.logger.Warn("Browser context close failed", zap.Error(cerr))
		}
	}()

	// 2. Open the identity portal entry point.
	d.tracker.Update(schemas.PhaseNavigating, "opening identity portal")
	navCtx, cancel := context.WithTimeout(ctx, d.cfg.Login.NavigationTimeout)
	err = page.Navigate(navCtx, d.cfg.Login.EntryURL)
	cancel()
	if err != nil {
		return attempt, fmt.Errorf("failed to open identity portal %s: %w", d.cfg.Login.EntryURL, err)
	}

	// 3. Fill credentials when we have them. Every misstep here degrades to
	//    manual mode: the operator can still finish the sign-in by hand.
	if creds := resolveCredentials(opts, d.cfg.Login); creds != nil {
		d.tracker.Update(schemas.PhaseAutomaticLogin, "filling credentials")
		if aerr := d.autofill(ctx, page, creds); aerr != nil {
			d.logger.Warn("Automatic login degraded to manual mode", zap.Error(aerr))
		}
	} else {
		d.logger.Info("No credentials supplied, waiting for interactive sign-in")
	}

	d.tracker.Update(schemas.PhaseWaitingSSO, "waiting for identity provider to finish")

	// 4. Ride out the push confirmation when the broker asks for one, then
	//    capture the session. A confirmed push means the portal is loading
	//    right now, so the settle loop takes over; otherwise the slower
	//    converged polling covers both manual sign-in and no-MFA tenants.
	if d.waitForDeviceConfirmation(ctx, page) {
		d.tracker.Update(schemas.PhaseDeviceConfirmed, "device confirmation received")
		err = d.settleAndPersist(ctx, page, attempt)
	} else {
		err = d.pollForTarget(ctx, page, attempt)
	}
	if err != nil {
		return attempt, err
	}

	d.logger.Info("Login attempt finished",
		zap.Int("persists", attempt.PersistCount),
		zap.Bool("verified", attempt.Verified),
		zap.String("finalUrl", attempt.FinalURL))
	return attempt, nil
}

// headlessOverride extracts the caller's headless request, if any.
func headlessOverride(opts *schemas.LoginOptions) *bool {
	if opts == nil {
		return nil
	}
	return opts.Headless
}

// resolveCredentials picks the caller's credentials when present, falling
// back to the configured ones. Nil means manual sign-in.
func resolveCredentials(opts *schemas.LoginOptions, cfg config.LoginConfig) *schemas.Credentials {
	if opts != nil && opts.Credentials != nil && opts.Credentials.Email != "" {
		return opts.Credentials
	}
	if cfg.Email != "" {
		return &schemas.Credentials{
			Email:           cfg.Email,
			PrimaryPassword: cfg.PrimaryPassword,
			BrokerPassword:  cfg.BrokerPassword,
		}
	}
	return nil
}

// -- Automatic Login --

// autofill classifies the provider currently on screen and runs its fill
// recipe. Sign-in usually hops from the primary portal to the secondary
// broker; the loop follows each transition into the matching recipe and
// stops on the first provider it has already handled or does not know.
func (d *Driver) autofill(ctx context.Context, page schemas.BrowserPage, creds *schemas.Credentials) error {
	handled := make(map[Provider]bool)

	for hop := 0; hop < maxProviderHops; hop++ {
		url, err := page.CurrentURL(ctx)
		if err != nil {
			return fmt.Errorf("could not inspect the provider URL: %w", err)
		}

		provider := classifyProvider(url)
		flow, ok := flowFor(provider)
		if !ok {
			d.logger.Info("Unknown identity provider, leaving sign-in to the operator", zap.String("url", url))
			return nil
		}
		if handled[provider] {
			return nil
		}
		handled[provider] = true

		d.logger.Info("Filling credentials",
			zap.String("provider", string(provider)),
			zap.String("url", url))
		d.runFlow(ctx, page, flow, creds)

		if err := pause(ctx, d.fieldDelay); err != nil {
			return err
		}
	}
	return nil
}

// runFlow walks one provider recipe: identifier, continue, password, submit.
// A chain that matches nothing simply skips its step; the page may already
// be past it or a human will take over.
func (d *Driver) runFlow(ctx context.Context, page schemas.BrowserPage, flow *providerFlow, creds *schemas.Credentials) {
	if creds.Email != "" {
		if d.fillChain(ctx, page, flow.identifierChain, creds.Email, "identifier") {
			d.clickChain(ctx, page, flow.continueChain, "continue")
			if err := pause(ctx, d.fieldDelay); err != nil {
				return
			}
		}
	}

	var password string
	switch flow.passwordKind {
	case passwordPrimary:
		password = creds.PrimaryPassword
	case passwordBroker:
		password = creds.BrokerPassword
	}
	if password == "" {
		// Some tenants skip the primary password entirely and go straight
		// to the broker, so an absent password is not an error.
		d.logger.Debug("No password for this provider, skipping password step",
			zap.String("provider", string(flow.provider)))
		return
	}

	if d.fillChain(ctx, page, flow.passwordChain, password, "password") {
		d.clickChain(ctx, page, flow.submitChain, "submit")
	}
}

// fillChain probes the strategies in order and fills the first match. The
// native fill is attempted first; fields that reject synthetic keystrokes
// get the DOM fallback.
func (d *Driver) fillChain(ctx context.Context, page schemas.BrowserPage, chain []fieldStrategy, value, role string) bool {
	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	selector, err := page.FirstMatch(probeCtx, selectorsOf(chain)...)
	cancel()
	if err != nil || selector == "" {
		d.logger.Debug("No field matched", zap.String("role", role), zap.Error(err))
		return false
	}

	strategy := strategyName(chain, selector)
	if err := page.Fill(ctx, selector, value); err != nil {
		d.logger.Debug("Native fill failed, using DOM fallback",
			zap.String("strategy", strategy), zap.Error(err))
		if derr := page.FillViaDOM(ctx, selector, value); derr != nil {
			d.logger.Warn("Could not fill field",
				zap.String("role", role),
				zap.String("strategy", strategy),
				zap.Error(derr))
			return false
		}
	}
	d.logger.Debug("Field filled", zap.String("role", role), zap.String("strategy", strategy))
	return true
}

// clickChain probes the strategies in order and clicks the first match.
func (d *Driver) clickChain(ctx context.Context, page schemas.BrowserPage, chain []fieldStrategy, role string) bool {
	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	selector, err := page.FirstMatch(probeCtx, selectorsOf(chain)...)
	cancel()
	if err != nil || selector == "" {
		d.logger.Debug("No button matched", zap.String("role", role), zap.Error(err))
		return false
	}

	strategy := strategyName(chain, selector)
	if err := page.Click(ctx, selector); err != nil {
		d.logger.Warn("Could not click button",
			zap.String("role", role),
			zap.String("strategy", strategy),
			zap.Error(err))
		return false
	}
	d.logger.Debug("Button clicked", zap.String("role", role), zap.String("strategy", strategy))
	return true
}

// -- Device Confirmation --

// waitForDeviceConfirmation watches the broker for a push-notification
// prompt and blocks until the prompt disappears, the page leaves the broker
// domain, or the poll budget runs out. It reports whether a confirmation was
// observed. Headings are the detection signal; when navigation tears the
// page down mid-probe the error is expected and the URL decides instead.
func (d *Driver) waitForDeviceConfirmation(ctx context.Context, page schemas.BrowserPage) bool {
	cfg := d.cfg.Login
	sawPrompt := false

	for poll := 1; poll <= cfg.PushWaitPolls; poll++ {
		headings, herr := page.HeadingTexts(ctx)
		if herr != nil {
			d.logger.Debug("Heading probe failed during device wait",
				zap.Int("poll", poll), zap.Error(herr))
		} else if phrase, ok := matchesPushPrompt(headings); ok {
			if !sawPrompt {
				sawPrompt = true
				d.tracker.Update(schemas.PhaseWaitingDeviceConfirmation,
					fmt.Sprintf("confirm the push notification on your device (%s)", phrase))
				d.logger.Info("Push confirmation prompt detected", zap.String("heading", phrase))
			}
		} else if sawPrompt {
			// Prompt gone: the device approved or the broker moved on.
			d.logger.Info("Push prompt cleared", zap.Int("poll", poll))
			return true
		} else if poll >= promptProbePolls {
			// No prompt materialized, this attempt has no push step.
			return false
		}

		if url, uerr := page.CurrentURL(ctx); uerr == nil {
			if sawPrompt && !isBrokerURL(url) {
				d.logger.Info("Left the broker during device wait", zap.String("url", url))
				return true
			}
		} else {
			d.logger.Debug("URL probe failed during device wait",
				zap.Int("poll", poll), zap.Error(uerr))
		}

		if err := pause(ctx, cfg.PushPollInterval()); err != nil {
			return false
		}
	}

	if sawPrompt {
		d.logger.Warn("Device confirmation not observed within budget, continuing with converged polling",
			zap.Int("polls", cfg.PushWaitPolls))
	}
	return false
}

// -- Post-Confirmation Settle Loop --

// settleAndPersist runs after a device confirmation, while the portal is
// still redirecting. Every tick captures a snapshot into the partial
// artifact, then checks whether the page has arrived: a destination URL, or
// a URL that stayed put for several ticks outside the broker. Arrival alone
// is not success; the page content has to verify too. When the tick budget
// runs out the freshest snapshot is kept so promotion can still be tried.
func (d *Driver) settleAndPersist(ctx context.Context, page schemas.BrowserPage, attempt *schemas.LoginAttempt) error {
	cfg := d.cfg.Login
	var (
		lastURL     string
		stableTicks int
	)

	ticks, err := repeatEvery(ctx, cfg.SettleInterval(), cfg.SettleMaxTicks, func(tickCtx context.Context, tick int) (bool, error) {
		d.tracker.IncAttempts()

		if snap, serr := page.Snapshot(tickCtx); serr != nil {
			d.logger.Debug("Snapshot failed during settle", zap.Int("tick", tick), zap.Error(serr))
		} else if werr := d.store.WritePartial(snap); werr != nil {
			d.logger.Warn("Partial write failed during settle", zap.Int("tick", tick), zap.Error(werr))
		} else {
			attempt.PersistCount++
		}

		url, uerr := page.CurrentURL(tickCtx)
		if uerr != nil {
			d.logger.Debug("URL probe failed during settle", zap.Int("tick", tick), zap.Error(uerr))
			return false, nil
		}
		if url == lastURL {
			stableTicks++
		} else {
			lastURL = url
			stableTicks = 1
		}
		attempt.FinalURL = url

		arrived := isDestinationURL(url) ||
			(stableTicks >= cfg.URLStableTicks && !isBrokerURL(url))
		if !arrived {
			return false, nil
		}
		if !d.verifyArrival(tickCtx, page) {
			d.logger.Debug("URL settled but page content not verified yet",
				zap.Int("tick", tick), zap.String("url", url))
			return false, nil
		}
		attempt.Verified = true
		return true, nil
	})
	if err != nil {
		return fmt.Errorf("settle loop aborted: %w", err)
	}

	if attempt.Verified {
		d.tracker.Update(schemas.PhaseDetectedButton, "destination portal verified")
		d.logger.Info("Destination portal verified",
			zap.Int("ticks", ticks), zap.Int("persists", attempt.PersistCount))
		return nil
	}

	// Budget exhausted before the portal verified. Keep what we captured
	// and let promotion judge it; the uncertainty is on record.
	d.logger.Warn("Settle budget exhausted without verification, keeping best available snapshot",
		zap.Int("ticks", ticks),
		zap.Int("persists", attempt.PersistCount),
		zap.String("url", attempt.FinalURL))
	if attempt.PersistCount == 0 {
		return d.bestEffortSnapshot(ctx, page, attempt)
	}
	return nil
}

// verifyArrival checks the rendered page for destination markers.
func (d *Driver) verifyArrival(ctx context.Context, page schemas.BrowserPage) bool {
	html, err := page.OuterHTML(ctx)
	if err != nil {
		d.logger.Debug("Could not read page markup for verification", zap.Error(err))
		return false
	}
	title, err := page.Title(ctx)
	if err != nil {
		title = ""
	}
	return verifyDestinationContent(html, title, d.logger).Verified
}

// -- Converged Polling --

// pollForTarget is the manual-completion path: an initial grace period with
// no action at all, then a bounded poll for the destination marker. Each
// detection persists a snapshot; by default the first persist ends the loop,
// but multi-persist keeps capturing up to the configured cap for markers
// that flicker.
func (d *Driver) pollForTarget(ctx context.Context, page schemas.BrowserPage, attempt *schemas.LoginAttempt) error {
	cfg := d.cfg.Login

	d.logger.Info("Waiting out the grace period before detection polling",
		zap.Duration("grace", cfg.GracePeriod()),
		zap.Duration("interval", cfg.PollInterval()),
		zap.Duration("budget", cfg.MaxPollDuration()))
	if err := pause(ctx, cfg.GracePeriod()); err != nil {
		return err
	}

	maxPersists := 1
	if cfg.MultiPersist && cfg.MaxPersistAttempts > 0 {
		maxPersists = cfg.MaxPersistAttempts
	}

	deadline := time.Now().Add(cfg.MaxPollDuration())
	for time.Now().Before(deadline) {
		d.tracker.IncAttempts()

		probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
		found, ferr := page.Exists(probeCtx, cfg.TargetButtonSelector)
		cancel()
		switch {
		case ferr != nil:
			d.logger.Debug("Target probe failed", zap.Error(ferr))
		case found:
			if attempt.PersistCount == 0 {
				d.tracker.Update(schemas.PhaseDetectedButton, "destination button detected")
				d.logger.Info("Destination button detected",
					zap.String("selector", cfg.TargetButtonSelector))
			}
			attempt.Verified = true
			d.tracker.Update(schemas.PhasePersisting, "persisting session snapshot")
			if d.persistSnapshot(ctx, page, attempt) && attempt.PersistCount >= maxPersists {
				if url, uerr := page.CurrentURL(ctx); uerr == nil {
					attempt.FinalURL = url
				}
				return nil
			}
		}

		if url, uerr := page.CurrentURL(ctx); uerr == nil {
			attempt.FinalURL = url
		}
		if err := pause(ctx, cfg.PollInterval()); err != nil {
			return err
		}
	}

	if attempt.PersistCount == 0 {
		d.logger.Warn("Polling budget exhausted without detection, capturing a best-effort snapshot")
		return d.bestEffortSnapshot(ctx, page, attempt)
	}
	return nil
}

// -- Persistence Helpers --

// persistSnapshot captures the live session into the partial artifact.
// Failures are logged, not fatal: the next tick retries.
func (d *Driver) persistSnapshot(ctx context.Context, page schemas.BrowserPage, attempt *schemas.LoginAttempt) bool {
	snap, err := page.Snapshot(ctx)
	if err != nil {
		d.logger.Warn("Session snapshot failed", zap.Error(err))
		return false
	}
	if err := d.store.WritePartial(snap); err != nil {
		d.logger.Warn("Partial write failed", zap.Error(err))
		return false
	}
	attempt.PersistCount++
	d.logger.Info("Session snapshot persisted",
		zap.Int("count", attempt.PersistCount),
		zap.Int("cookies", len(snap.Cookies)))
	return true
}

// bestEffortSnapshot is the last chance to leave something for promotion
// when an attempt ends with nothing persisted. If even this write fails the
// attempt has produced no session and fails.
func (d *Driver) bestEffortSnapshot(ctx context.Context, page schemas.BrowserPage, attempt *schemas.LoginAttempt) error {
	snap, err := page.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("login window expired without a captured session: %w", err)
	}
	if err := d.store.WritePartial(snap); err != nil {
		return fmt.Errorf("login window expired without a captured session: %w", err)
	}
	attempt.PersistCount++
	d.logger.Info("Best-effort session snapshot persisted", zap.Int("cookies", len(snap.Cookies)))
	return nil
}

// captureFailureShot saves a screenshot of the failed attempt into the debug
// directory. Diagnostics only, every error here is swallowed.
func (d *Driver) captureFailureShot(page schemas.BrowserPage) {
	dir := d.cfg.Browser.DebugDir
	if dir == "" {
		return
	}

	shotCtx, cancel := context.WithTimeout(context.Background(), screenshotTimeout)
	defer cancel()

	buf, err := page.Screenshot(shotCtx)
	if err != nil {
		d.logger.Debug("Failure screenshot not captured", zap.Error(err))
		return
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		d.logger.Debug("Could not create debug directory", zap.String("dir", dir), zap.Error(err))
		return
	}
	name := filepath.Join(dir, fmt.Sprintf("login-failure-%s.png", time.Now().Format("20060102-150405")))
	if err := os.WriteFile(name, buf, 0o644); err != nil {
		d.logger.Debug("Could not write failure screenshot", zap.String("path", name), zap.Error(err))
		return
	}
	d.logger.Info("Failure screenshot captured", zap.String("path", name))
}
