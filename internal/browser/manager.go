// Package browser drives a real Chrome instance through CDP for the
// interactive login flow: launching, form autofill, device-confirmation
// waits and session capture.
package browser

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/guhesse/script-wf-sub000/internal/config"
	"github.com/guhesse/script-wf-sub000/internal/humanoid"
)

// Manager owns browser process lifecycles. Each Launch starts a dedicated
// Chrome with the headless decision made for that call, which is why the
// allocator is per-launch instead of per-manager.
type Manager struct {
	logger *zap.Logger
	cfg    config.BrowserConfig
	typist *humanoid.Typist

	// Track live pages for graceful shutdown.
	mu    sync.Mutex
	pages map[string]*Page
}

// NewManager creates the browser manager.
func NewManager(cfg config.BrowserConfig, logger *zap.Logger) *Manager {
	m := &Manager{
		logger: logger.Named("browser_manager"),
		cfg:    cfg,
		pages:  make(map[string]*Page),
	}
	if cfg.Humanoid.Enabled {
		m.typist = humanoid.NewTypist(cfg.Humanoid, m.logger)
	}
	return m
}

// allocatorOptions configures the flags for the browser executable.
func (m *Manager) allocatorOptions(headless bool) []chromedp.ExecAllocatorOption {
	// Start with default options provided by ChromeDP.
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)

	if headless {
		opts = append(opts, chromedp.Headless)
	} else {
		// The defaults include headless; a visible launch must strip it.
		opts = append(opts, chromedp.Flag("headless", false))
	}

	opts = append(opts,
		// The login portal must see an ordinary interactive browser.
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),

		// Stability flags.
		chromedp.Flag("disable-background-networking", true),
		chromedp.Flag("disable-sync", true),
		chromedp.Flag("metrics-recording-only", true),
		chromedp.Flag("disable-default-apps", true),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("disable-hang-monitor", true),
		chromedp.Flag("disable-prompt-on-repost", true),
		chromedp.Flag("disable-extensions", true),

		// GPU often causes issues in headless/containerized environments.
		chromedp.Flag("disable-gpu", headless),

		chromedp.Flag("ignore-certificate-errors", m.cfg.IgnoreTLSErrors),
	)

	if m.cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(m.cfg.ExecPath))
	}

	if w, h := m.cfg.Viewport["width"], m.cfg.Viewport["height"]; w > 0 && h > 0 {
		opts = append(opts, chromedp.WindowSize(w, h))
	}

	// Raw passthrough flags from config, "name" or "name=value" form.
	for _, arg := range m.cfg.Args {
		name := strings.TrimPrefix(arg, "--")
		if name == "" {
			continue
		}
		if k, v, found := strings.Cut(name, "="); found {
			opts = append(opts, chromedp.Flag(k, v))
		} else {
			opts = append(opts, chromedp.Flag(name, true))
		}
	}

	return opts
}

// Launch starts a browser with the given headless mode and returns its
// active page. The page is tied to ctx: when ctx ends, the browser closes.
func (m *Manager) Launch(ctx context.Context, headless bool) (*Page, error) {
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, m.allocatorOptions(headless)...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(m.logger.Sugar().Debugf),
		chromedp.WithErrorf(m.logger.Sugar().Errorf),
	)

	// Materialize the browser process before handing the page out.
	if err := chromedp.Run(tabCtx, chromedp.Navigate("about:blank")); err != nil {
		tabCancel()
		allocCancel()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	p := &Page{
		id:          uuid.NewString(),
		logger:      m.logger.Named("page"),
		ctx:         tabCtx,
		cancel:      tabCancel,
		allocCancel: allocCancel,
		manager:     m,
		typist:      m.typist,
	}

	m.mu.Lock()
	m.pages[p.id] = p
	m.mu.Unlock()

	// Tie the browser lifetime to the launching context.
	go func() {
		select {
		case <-ctx.Done():
			_ = p.Close()
		case <-tabCtx.Done():
		}
	}()

	m.logger.Info("Browser launched",
		zap.String("page_id", p.id),
		zap.Bool("headless", headless))
	return p, nil
}

// unregister removes a page from the tracking map. Called by Page.Close.
func (m *Manager) unregister(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.pages, id)
}

// Shutdown closes every live browser.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.logger.Info("Shutting down browser manager...")

	m.mu.Lock()
	pagesToClose := make([]*Page, 0, len(m.pages))
	for _, p := range m.pages {
		pagesToClose = append(pagesToClose, p)
	}
	m.pages = make(map[string]*Page)
	m.mu.Unlock()

	var wg sync.WaitGroup
	for _, p := range pagesToClose {
		wg.Add(1)
		go func(p *Page) {
			defer wg.Done()
			done := make(chan struct{})
			go func() {
				_ = p.Close()
				close(done)
			}()
			select {
			case <-done:
			case <-time.After(10 * time.Second):
				m.logger.Warn("Browser close timed out", zap.String("page_id", p.id))
			case <-ctx.Done():
			}
		}(p)
	}
	wg.Wait()

	m.logger.Info("Browser manager shutdown complete.")
	return nil
}
