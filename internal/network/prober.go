package network

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"
)

// probeBodyLimit caps how much of the portal page the prober reads. The
// probe needs proof of life, not the page.
const probeBodyLimit = 64 << 10

const probeUserAgent = "Mozilla/5.0 (compatible; script-wf-probe)"

// Prober checks that the identity portal answers plain HTTP at all. Any
// status below 500 counts as reachable: anonymous clients are expected to
// be bounced to SSO or rejected outright, and either answer proves the
// portal is up.
type Prober struct {
	client *Client
	log    *zap.Logger
}

// NewProber builds a prober on the default tuned client.
func NewProber(logger *zap.Logger) *Prober {
	cfg := NewDefaultClientConfig()
	cfg.Logger = logger

	return &Prober{
		client: NewClient(cfg),
		log:    logger.Named("probe"),
	}
}

// Probe issues one GET against the portal URL.
func (p *Prober) Probe(ctx context.Context, rawURL string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("invalid probe URL %q: %w", rawURL, err)
	}
	req.Header.Set("User-Agent", probeUserAgent)

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("portal unreachable: %w", err)
	}
	defer resp.Body.Close()

	read, _ := io.Copy(io.Discard, io.LimitReader(resp.Body, probeBodyLimit))

	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("portal returned %s", resp.Status)
	}

	p.log.Debug("Portal probe finished",
		zap.Int("status", resp.StatusCode),
		zap.String("proto", resp.Proto),
		zap.Int64("body_bytes", read))
	return nil
}
