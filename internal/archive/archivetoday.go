package archive

import (
	"context"
	"net/url"
	"regexp"

	"go.uber.org/zap"

	"github.com/JakeFAU/snapshill/internal/snapshot"
)

var archiveTodayLink = regexp.MustCompile(`https?://archive\.(?:fo|vn|today|is|li|md|ph)/[0-z]{1,6}`)

// ArchiveTodayConfig points the archive.today backend at its endpoints.
type ArchiveTodayConfig struct {
	SubmitEndpoint string
	ErrorEndpoint  string
}

// ArchiveToday submits to archive.today, which answers with a page that
// embeds the short snapshot link instead of redirecting to it.
type ArchiveToday struct {
	cfg    ArchiveTodayConfig
	client *Client
	logger *zap.Logger
}

// NewArchiveToday builds the archive.today backend. client should be built
// with InsecureSkipVerify set.
func NewArchiveToday(cfg ArchiveTodayConfig, client *Client, logger *zap.Logger) *ArchiveToday {
	if cfg.SubmitEndpoint == "" {
		cfg.SubmitEndpoint = "https://archive.today/submit/"
	}
	if cfg.ErrorEndpoint == "" {
		cfg.ErrorEndpoint = "https://archive.today/"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ArchiveToday{cfg: cfg, client: client, logger: logger}
}

// Name implements snapshot.Archiver.
func (a *ArchiveToday) Name() string { return "archive.today" }

// ErrorLink returns the manual submission link for target.
func (a *ArchiveToday) ErrorLink(target string) string {
	return a.cfg.ErrorEndpoint + "?url=" + url.QueryEscape(target) + "&run=1"
}

// Submit implements snapshot.Archiver.
func (a *ArchiveToday) Submit(ctx context.Context, target string) snapshot.Outcome {
	errorLink := a.ErrorLink(target)
	resp, err := a.client.PostForm(ctx, a.cfg.SubmitEndpoint, map[string]string{"url": target})
	if err != nil {
		a.logger.Warn("archive.today submit failed", zap.String("url", target), zap.Error(err))
		return snapshot.Failed(a.Name(), errorLink)
	}
	found := archiveTodayLink.Find(resp.Body)
	if found == nil {
		a.logger.Warn("archive.today response had no snapshot link", zap.String("url", target))
		return snapshot.Failed(a.Name(), errorLink)
	}
	return snapshot.Archived(a.Name(), string(found), errorLink)
}
