package snapshot

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

var (
	relativeProfilePrefix = regexp.MustCompile(`^/?(u|user|r)/`)
	bareProfilePath       = regexp.MustCompile(`^/(u|user|r)/[^/]+/?$`)
)

// Normalizer rewrites links that point at the feed site into one canonical
// form. Links to any other host pass through untouched.
type Normalizer struct {
	domain    string
	canonical *url.URL
	variants  *regexp.Regexp
}

// NewNormalizer builds a Normalizer for the feed site domain (e.g. "reddit.com")
// and the canonical base every variant host is rewritten to.
func NewNormalizer(domain, canonicalBase string) (*Normalizer, error) {
	domain = strings.ToLower(strings.TrimSpace(domain))
	if domain == "" {
		return nil, fmt.Errorf("site domain is required")
	}
	base, err := url.Parse(strings.TrimRight(canonicalBase, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse canonical base: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("canonical base %q must be absolute", canonicalBase)
	}
	base.Host = strings.ToLower(base.Host)
	n := &Normalizer{
		domain:    domain,
		canonical: base,
		variants: regexp.MustCompile(
			`^(?:[a-z]{2}(?:-[a-z]{2})?|beta|i|m|np|pay|ssl|www|old|new|alpha)\.` +
				regexp.QuoteMeta(domain) + `$`,
		),
	}
	if !n.isSiteHost(base.Hostname()) {
		return nil, fmt.Errorf("canonical base %q is not a host of %s", canonicalBase, domain)
	}
	return n, nil
}

// CanonicalHost returns the host every site link is rewritten to.
func (n *Normalizer) CanonicalHost() string {
	return n.canonical.Host
}

// Normalize expands relative profile/category links and rewrites regional,
// mobile and legacy hosts of the feed site to the canonical host. It is
// idempotent.
func (n *Normalizer) Normalize(raw string) string {
	raw = strings.TrimSpace(raw)
	if relativeProfilePrefix.MatchString(raw) {
		raw = n.canonical.String() + "/" + strings.TrimPrefix(raw, "/")
	}
	u, err := url.Parse(raw)
	if err != nil || !n.isSiteHost(u.Hostname()) {
		return raw
	}
	u.Scheme = n.canonical.Scheme
	u.Host = n.canonical.Host
	return u.String()
}

// IsSiteURL reports whether the link targets the feed site once normalized.
func (n *Normalizer) IsSiteURL(raw string) bool {
	u, err := url.Parse(n.Normalize(raw))
	if err != nil {
		return false
	}
	return u.Host == n.canonical.Host
}

// IsProfileOrCategory reports whether the link is a bare user or subreddit
// page on the feed site. Such pages change constantly and are never archived.
func (n *Normalizer) IsProfileOrCategory(raw string) bool {
	u, err := url.Parse(n.Normalize(raw))
	if err != nil || u.Host != n.canonical.Host {
		return false
	}
	return bareProfilePath.MatchString(u.Path)
}

func (n *Normalizer) isSiteHost(host string) bool {
	host = strings.ToLower(host)
	return host == n.domain || n.variants.MatchString(host)
}
