package archive

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/JakeFAU/snapshill/internal/snapshot"
)

// Known mirror names accepted by NewMirror.
const (
	MirrorRemoveddit = "removeddit"
	MirrorSnew       = "snew"
)

var mirrorRoots = map[string]struct {
	name string
	root string
}{
	MirrorRemoveddit: {name: "removeddit.com", root: "https://www.removeddit.com"},
	MirrorSnew:       {name: "snew.github.io", root: "https://snew.github.io"},
}

// Mirror serves a feed-site page through a read-only viewer by swapping the
// host. It performs no network call and cannot fail.
type Mirror struct {
	name string
	root *url.URL
}

// NewMirror builds a known mirror by key.
func NewMirror(key string) (*Mirror, error) {
	m, ok := mirrorRoots[strings.ToLower(key)]
	if !ok {
		return nil, fmt.Errorf("unknown mirror %q", key)
	}
	return NewCustomMirror(m.name, m.root)
}

// NewCustomMirror builds a mirror for an arbitrary root URL.
func NewCustomMirror(name, root string) (*Mirror, error) {
	u, err := url.Parse(strings.TrimRight(root, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse mirror root: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("mirror root %q must be absolute", root)
	}
	return &Mirror{name: name, root: u}, nil
}

// Name implements snapshot.Archiver.
func (m *Mirror) Name() string { return m.name }

// ErrorLink is the mirror's front page.
func (m *Mirror) ErrorLink(string) string {
	return m.root.String() + "/"
}

// Submit implements snapshot.Archiver.
func (m *Mirror) Submit(_ context.Context, target string) snapshot.Outcome {
	errorLink := m.ErrorLink(target)
	u, err := url.Parse(target)
	if err != nil {
		return snapshot.Archived(m.name, m.root.String(), errorLink)
	}
	u.Scheme = m.root.Scheme
	u.Host = m.root.Host
	return snapshot.Archived(m.name, u.String(), errorLink)
}
