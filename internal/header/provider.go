// Package header loads the rotating header text shown above snapshot
// listings. Texts live on wiki pages named extxt/<scope> in a settings
// scope; the "all" scope overrides every other scope while it has text.
package header

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"regexp"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/snapshill/internal/snapshot"
)

// AllScope is the scope whose text takes precedence over per-scope text.
const AllScope = "all"

const (
	pagePrefix     = "extxt/"
	ignoreSentinel = "!ignore"
)

// ErrNotReady is returned by Get before the first successful Refresh.
var ErrNotReady = errors.New("header provider not ready")

var variantSeparator = regexp.MustCompile(`\r?\n-{3,}\r?\n`)

// Scopes lists and leaves the scopes the account participates in.
type Scopes interface {
	Subreddits(ctx context.Context) ([]snapshot.Subreddit, error)
	Unsubscribe(ctx context.Context, name string) error
}

// Provider caches header variants per scope.
type Provider struct {
	scopes        Scopes
	wiki          snapshot.WikiReader
	settingsScope string
	logger        *zap.Logger
	pick          func(n int) int

	mu       sync.RWMutex
	ready    bool
	variants map[string][]string
}

// Option customizes a Provider.
type Option func(*Provider)

// WithPicker replaces the random variant picker. pick(n) must return a value in [0, n).
func WithPicker(pick func(n int) int) Option {
	return func(p *Provider) { p.pick = pick }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(p *Provider) { p.logger = logger }
}

// NewProvider builds a Provider reading wiki pages from settingsScope.
func NewProvider(scopes Scopes, wiki snapshot.WikiReader, settingsScope string, opts ...Option) *Provider {
	p := &Provider{
		scopes:        scopes,
		wiki:          wiki,
		settingsScope: settingsScope,
		logger:        zap.NewNop(),
		pick:          rand.IntN,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Refresh reloads the variants for "all" and every subscribed scope, leaving
// scopes the account is banned from. The previous cache stays in place if
// the scope list cannot be loaded.
func (p *Provider) Refresh(ctx context.Context) error {
	subs, err := p.scopes.Subreddits(ctx)
	if err != nil {
		return fmt.Errorf("list scopes: %w", err)
	}

	next := map[string][]string{
		AllScope: p.load(ctx, AllScope),
	}
	for _, sub := range subs {
		name := strings.ToLower(sub.Name)
		if sub.Banned {
			p.logger.Info("leaving banned scope", zap.String("scope", sub.Name))
			if err := p.scopes.Unsubscribe(ctx, sub.Name); err != nil {
				p.logger.Warn("unsubscribe failed", zap.String("scope", sub.Name), zap.Error(err))
			}
			continue
		}
		if name == AllScope {
			continue
		}
		next[name] = p.load(ctx, name)
	}

	p.mu.Lock()
	p.variants = next
	p.ready = true
	p.mu.Unlock()
	p.logger.Info("headers refreshed", zap.Int("scopes", len(next)))
	return nil
}

// Ready reports whether Refresh has succeeded at least once.
func (p *Provider) Ready() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.ready
}

// Get picks one header variant for scope. It returns "" when neither the
// "all" scope nor scope has text.
func (p *Provider) Get(scope string) (string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.ready {
		return "", ErrNotReady
	}
	variants := p.variants[AllScope]
	if len(variants) == 0 {
		variants = p.variants[strings.ToLower(scope)]
	}
	if len(variants) == 0 {
		return "", nil
	}
	return variants[p.pick(len(variants))], nil
}

func (p *Provider) load(ctx context.Context, scope string) []string {
	text, err := p.wiki.WikiPage(ctx, p.settingsScope, pagePrefix+scope)
	if err != nil {
		if !errors.Is(err, snapshot.ErrNotFound) {
			p.logger.Warn("header page unavailable", zap.String("scope", scope), zap.Error(err))
		}
		return nil
	}
	return ParseVariants(text)
}

// ParseVariants splits wiki text into header variants. Text beginning with
// the !ignore sentinel yields no variants.
func ParseVariants(text string) []string {
	if strings.HasPrefix(text, ignoreSentinel) {
		return nil
	}
	var out []string
	for _, v := range variantSeparator.Split(text, -1) {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
