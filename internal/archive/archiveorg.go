package archive

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/snapshill/internal/snapshot"
)

// archiveOrgFormat is the timestamp layout of Wayback Machine snapshot URLs.
const archiveOrgFormat = "20060102150405"

// WaybackConfig points the Wayback backend at its endpoints.
type WaybackConfig struct {
	SaveEndpoint string
	ArchiveRoot  string
}

// Wayback archives through the Internet Archive's save endpoint. The
// snapshot URL is synthesized from the time the save call returned.
type Wayback struct {
	cfg    WaybackConfig
	client *Client
	clock  snapshot.Clock
	logger *zap.Logger
}

// NewWayback builds the archive.org backend.
func NewWayback(cfg WaybackConfig, client *Client, clock snapshot.Clock, logger *zap.Logger) *Wayback {
	if cfg.SaveEndpoint == "" {
		cfg.SaveEndpoint = "https://web.archive.org/save/"
	}
	if cfg.ArchiveRoot == "" {
		cfg.ArchiveRoot = "https://web.archive.org/"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Wayback{cfg: cfg, client: client, clock: clock, logger: logger}
}

// Name implements snapshot.Archiver.
func (w *Wayback) Name() string { return "archive.org" }

// ErrorLink returns the manual save link for url.
func (w *Wayback) ErrorLink(url string) string {
	return w.cfg.SaveEndpoint + url
}

// Submit implements snapshot.Archiver. A 403 means the site refused
// archival (robots exclusion) and is reported as not applicable.
func (w *Wayback) Submit(ctx context.Context, url string) snapshot.Outcome {
	errorLink := w.ErrorLink(url)
	if _, err := w.client.Get(ctx, w.cfg.SaveEndpoint+url); err != nil {
		if statusCode(err) == http.StatusForbidden {
			w.logger.Debug("archive.org declined url", zap.String("url", url))
			return snapshot.NotApplicable(w.Name(), errorLink)
		}
		w.logger.Warn("archive.org submit failed", zap.String("url", url), zap.Error(err))
		return snapshot.Failed(w.Name(), errorLink)
	}
	ts := w.clock.Now().UTC().Format(archiveOrgFormat)
	return snapshot.Archived(w.Name(), strings.TrimRight(w.cfg.ArchiveRoot, "/")+"/"+ts+"/"+url, errorLink)
}
