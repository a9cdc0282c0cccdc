package archive

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/snapshill/internal/snapshot"
)

// Throttle serializes calls against one host.
type Throttle interface {
	Wait(ctx context.Context, url string) error
}

// MegalodonConfig controls the megalodon.jp backend.
type MegalodonConfig struct {
	Enabled        bool
	DecideEndpoint string
}

// Megalodon submits to megalodon.jp. Success is a redirect away from the
// decide endpoint; the snapshot URL cannot be predicted, so the final URL is used.
type Megalodon struct {
	cfg      MegalodonConfig
	client   *Client
	throttle Throttle
	logger   *zap.Logger
}

// NewMegalodon builds the megalodon.jp backend. throttle may be nil.
func NewMegalodon(cfg MegalodonConfig, client *Client, throttle Throttle, logger *zap.Logger) *Megalodon {
	if cfg.DecideEndpoint == "" {
		cfg.DecideEndpoint = "http://megalodon.jp/pc/get_simple/decide"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Megalodon{cfg: cfg, client: client, throttle: throttle, logger: logger}
}

// Name implements snapshot.Archiver.
func (m *Megalodon) Name() string { return "megalodon.jp" }

// ErrorLink returns the manual submission link for url.
func (m *Megalodon) ErrorLink(url string) string {
	return m.cfg.DecideEndpoint + "?url=" + url
}

// Submit implements snapshot.Archiver. When the backend is disabled every
// link is reported as not applicable without a network call.
func (m *Megalodon) Submit(ctx context.Context, url string) snapshot.Outcome {
	errorLink := m.ErrorLink(url)
	if !m.cfg.Enabled {
		return snapshot.NotApplicable(m.Name(), errorLink)
	}
	if m.throttle != nil {
		if err := m.throttle.Wait(ctx, m.cfg.DecideEndpoint); err != nil {
			m.logger.Warn("megalodon.jp throttle wait aborted", zap.String("url", url), zap.Error(err))
			return snapshot.Failed(m.Name(), errorLink)
		}
	}
	resp, err := m.client.PostForm(ctx, m.cfg.DecideEndpoint, map[string]string{"url": url})
	if err != nil {
		m.logger.Warn("megalodon.jp submit failed", zap.String("url", url), zap.Error(err))
		return snapshot.Failed(m.Name(), errorLink)
	}
	if resp.URL == "" || resp.URL == m.cfg.DecideEndpoint {
		return snapshot.Failed(m.Name(), errorLink)
	}
	return snapshot.Archived(m.Name(), resp.URL, errorLink)
}
