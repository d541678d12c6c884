package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/guhesse/script-wf-sub000/api/schemas"
	"github.com/guhesse/script-wf-sub000/internal/humanoid"
)

// Page is a live browser tab. It implements schemas.BrowserPage on top of a
// chromedp context created by the Manager.
type Page struct {
	id     string
	logger *zap.Logger

	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
	manager     *Manager
	typist      *humanoid.Typist

	closeOnce sync.Once
}

// Ensure Page satisfies the browser contract.
var _ schemas.BrowserPage = (*Page)(nil)

// run executes chromedp actions on the tab while honoring the caller's
// context: cancellation or deadline on ctx aborts the run even though the
// actions execute on the tab's own context tree.
func (p *Page) run(ctx context.Context, actions ...chromedp.Action) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(p.ctx)
	defer cancel()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-done:
		}
	}()

	if err := chromedp.Run(runCtx, actions...); err != nil {
		// Prefer the caller's error when it caused the abort.
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return err
	}
	return nil
}

// Navigate loads the URL and waits for the document body to be ready.
func (p *Page) Navigate(ctx context.Context, url string) error {
	p.logger.Debug("Navigating", zap.String("url", url))
	err := p.run(ctx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	return nil
}

// CurrentURL returns the location of the active document.
func (p *Page) CurrentURL(ctx context.Context) (string, error) {
	var loc string
	if err := p.run(ctx, chromedp.Location(&loc)); err != nil {
		return "", fmt.Errorf("failed to read current URL: %w", err)
	}
	return loc, nil
}

// Title returns the document title.
func (p *Page) Title(ctx context.Context) (string, error) {
	var title string
	if err := p.run(ctx, chromedp.Title(&title)); err != nil {
		return "", fmt.Errorf("failed to read document title: %w", err)
	}
	return title, nil
}

// WaitVisible blocks until the selector matches a visible node or ctx ends.
func (p *Page) WaitVisible(ctx context.Context, selector string) error {
	return p.run(ctx, chromedp.WaitVisible(selector, chromedp.ByQuery))
}

// Exists reports whether the selector matches right now, without waiting.
func (p *Page) Exists(ctx context.Context, selector string) (bool, error) {
	expr := fmt.Sprintf("document.querySelector(%s) !== null", jsString(selector))
	var exists bool
	if err := p.run(ctx, chromedp.Evaluate(expr, &exists)); err != nil {
		return false, fmt.Errorf("failed to probe selector %q: %w", selector, err)
	}
	return exists, nil
}

// FirstMatch probes the selectors in order and returns the first present.
func (p *Page) FirstMatch(ctx context.Context, selectors ...string) (string, error) {
	for _, sel := range selectors {
		found, err := p.Exists(ctx, sel)
		if err != nil {
			return "", err
		}
		if found {
			return sel, nil
		}
	}
	return "", nil
}

// Fill clears the field and types the value through real key events, paced
// by the humanoid typist when one is configured.
func (p *Page) Fill(ctx context.Context, selector, value string) error {
	if err := p.run(ctx, chromedp.SetValue(selector, "", chromedp.ByQuery)); err != nil {
		return fmt.Errorf("failed to clear field %q: %w", selector, err)
	}

	if p.typist != nil {
		if err := p.run(ctx, p.typist.Type(selector, value)); err != nil {
			return fmt.Errorf("failed to type into %q: %w", selector, err)
		}
		return nil
	}

	err := p.run(ctx,
		chromedp.Focus(selector, chromedp.ByQuery),
		chromedp.SendKeys(selector, value, chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("failed to type into %q: %w", selector, err)
	}
	return nil
}

// FillViaDOM sets the value directly on the node and dispatches the input
// and change events SPA frameworks subscribe to. The native value setter is
// used so controlled inputs pick the change up.
func (p *Page) FillViaDOM(ctx context.Context, selector, value string) error {
	expr := fmt.Sprintf(`(() => {
	const el = document.querySelector(%s);
	if (!el) { return false; }
	const proto = el instanceof HTMLTextAreaElement ? HTMLTextAreaElement.prototype : HTMLInputElement.prototype;
	const setter = Object.getOwnPropertyDescriptor(proto, 'value').set;
	setter.call(el, %s);
	el.dispatchEvent(new Event('input', { bubbles: true }));
	el.dispatchEvent(new Event('change', { bubbles: true }));
	return true;
})()`, jsString(selector), jsString(value))

	var ok bool
	if err := p.run(ctx, chromedp.Evaluate(expr, &ok)); err != nil {
		return fmt.Errorf("failed to set field %q via DOM: %w", selector, err)
	}
	if !ok {
		return fmt.Errorf("no element matches selector %q", selector)
	}
	return nil
}

// Click dispatches a click on the first node matching the selector.
func (p *Page) Click(ctx context.Context, selector string) error {
	if err := p.run(ctx, chromedp.Click(selector, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("failed to click %q: %w", selector, err)
	}
	return nil
}

// headingTextsJS collects visible heading-like text, used to recognize the
// device-confirmation prompt.
const headingTextsJS = `Array.from(document.querySelectorAll('h1, h2, h3, [role="heading"]'))
	.map(el => (el.innerText || el.textContent || '').trim())
	.filter(t => t.length > 0)`

// HeadingTexts returns the text of heading-like elements on the page.
func (p *Page) HeadingTexts(ctx context.Context) ([]string, error) {
	var headings []string
	if err := p.run(ctx, chromedp.Evaluate(headingTextsJS, &headings)); err != nil {
		return nil, fmt.Errorf("failed to collect headings: %w", err)
	}
	return headings, nil
}

// OuterHTML returns the serialized document.
func (p *Page) OuterHTML(ctx context.Context) (string, error) {
	var dom string
	if err := p.run(ctx, chromedp.OuterHTML("html", &dom, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("failed to serialize document: %w", err)
	}
	return dom, nil
}

// storageDumpJS reads both web storage areas. Opaque origins throw on
// storage access, so the dump degrades to empty maps instead of failing the
// whole snapshot.
const storageDumpJS = `(() => {
	const dump = (s) => {
		const out = {};
		try {
			for (let i = 0; i < s.length; i++) {
				const k = s.key(i);
				out[k] = s.getItem(k);
			}
		} catch (e) {}
		return out;
	};
	let local = {}, session = {};
	try { local = dump(window.localStorage); } catch (e) {}
	try { session = dump(window.sessionStorage); } catch (e) {}
	return { localStorage: local, sessionStorage: session };
})()`

// Snapshot captures cookies and web storage of the current session.
func (p *Page) Snapshot(ctx context.Context) (*schemas.SessionArtifact, error) {
	var loc string
	var cookies []*network.Cookie
	var storage struct {
		LocalStorage   map[string]string `json:"localStorage"`
		SessionStorage map[string]string `json:"sessionStorage"`
	}

	snapshotTask := chromedp.Tasks{
		chromedp.Location(&loc),
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			cookies, err = network.GetCookies().Do(ctx)
			return err
		}),
		chromedp.Evaluate(storageDumpJS, &storage),
	}

	if err := p.run(ctx, snapshotTask); err != nil {
		return nil, fmt.Errorf("failed to capture session snapshot: %w", err)
	}

	artifact := &schemas.SessionArtifact{
		Cookies:     make([]schemas.Cookie, 0, len(cookies)),
		CapturedAt:  time.Now(),
		CapturedURL: loc,
	}
	for _, c := range cookies {
		artifact.Cookies = append(artifact.Cookies, schemas.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  c.Expires,
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
			SameSite: string(c.SameSite),
		})
	}

	if storage.LocalStorage == nil {
		storage.LocalStorage = map[string]string{}
	}
	if storage.SessionStorage == nil {
		storage.SessionStorage = map[string]string{}
	}
	artifact.StorageState = &schemas.StorageState{
		LocalStorage:   storage.LocalStorage,
		SessionStorage: storage.SessionStorage,
	}

	p.logger.Debug("Session snapshot captured",
		zap.Int("cookies", len(artifact.Cookies)),
		zap.Int("local_storage_keys", len(storage.LocalStorage)),
		zap.String("url", loc))
	return artifact, nil
}

// Screenshot captures the viewport as PNG bytes.
func (p *Page) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	err := p.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		buf, err = page.CaptureScreenshot().
			WithFormat(page.CaptureScreenshotFormatPng).
			Do(ctx)
		return err
	}))
	if err != nil {
		return nil, fmt.Errorf("failed to capture screenshot: %w", err)
	}
	return buf, nil
}

// Close releases the tab and its browser process. Safe to call repeatedly.
func (p *Page) Close() error {
	p.closeOnce.Do(func() {
		p.logger.Debug("Closing page", zap.String("page_id", p.id))
		p.cancel()
		p.allocCancel()
		if p.manager != nil {
			p.manager.unregister(p.id)
		}
	})
	return nil
}

// jsString renders s as a JavaScript string literal.
func jsString(s string) string {
	b, err := json.Marshal(s)
	if err != nil {
		return `""`
	}
	return string(b)
}
