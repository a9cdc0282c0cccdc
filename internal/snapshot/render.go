package snapshot

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Rendering limits and fixed texts.
const (
	DefaultMaxCommentLength  = 9999
	DefaultMaxOverflowLength = 39999

	ResubmitHint   = "could not auto-archive; click to resubmit it!"
	listHeading    = "Snapshots:"
	separator      = "\n\n"
	defaultInfo    = "/r/SnapshillBot"
	defaultContact = `/message/compose?to=\/r\/SnapshillBot`
)

// RenderConfig controls the footer links and mention escaping.
type RenderConfig struct {
	Info             string
	Contact          string
	EscapeMentionsIn []string
}

// Renderer turns archived posts into reply markdown.
type Renderer struct {
	footer       string
	escapeScopes map[string]struct{}
}

// NewRenderer builds a Renderer, filling empty footer links with the defaults.
func NewRenderer(cfg RenderConfig) *Renderer {
	if cfg.Info == "" {
		cfg.Info = defaultInfo
	}
	if cfg.Contact == "" {
		cfg.Contact = defaultContact
	}
	scopes := make(map[string]struct{}, len(cfg.EscapeMentionsIn))
	for _, s := range cfg.EscapeMentionsIn {
		scopes[strings.ToLower(s)] = struct{}{}
	}
	return &Renderer{
		footer: fmt.Sprintf(
			"*I am just a simple bot, __not__ a moderator of this subreddit* | [*bot subreddit*](%s) | [*contact the maintainers*](%s)",
			cfg.Info, cfg.Contact,
		),
		escapeScopes: scopes,
	}
}

// Footer returns the bot attribution line.
func (r *Renderer) Footer() string {
	return r.footer
}

// Render builds the full reply for post. Links and their outcomes appear in
// construction and registration order; an empty header is left out.
func (r *Renderer) Render(header string, post Post) string {
	parts := make([]string, 0, len(post.Links)+3)
	if header != "" {
		parts = append(parts, header)
	}
	parts = append(parts, listHeading)

	_, escape := r.escapeScopes[strings.ToLower(post.Subreddit)]
	for i, link := range post.Links {
		title := link.Title
		if escape {
			title = strings.ReplaceAll(title, "u/", `u\/`)
		}
		parts = append(parts, fmt.Sprintf("%d. %s - %s", i+1, title, strings.Join(fragments(link.Outcomes), ", ")))
	}
	parts = append(parts, r.footer)
	return strings.Join(parts, separator)
}

// OverflowPointer is the short reply left on a post whose snapshots were
// moved to a separate submission.
func (r *Renderer) OverflowPointer(submissionURL string) string {
	return "Wow, that's a lot of links! The snapshots can be [found here.](" + submissionURL + ")" +
		separator + r.footer
}

// OverflowTitle is the title of the overflow submission for permalink.
func OverflowTitle(permalink string) string {
	return "Archives for " + permalink
}

// OverflowBackReply links the overflow submission back to the original post.
func OverflowBackReply(permalink string) string {
	return "The original submission can be found here:" + separator + permalink
}

// TruncateBytes cuts s to at most max bytes without splitting a UTF-8 sequence.
func TruncateBytes(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

func fragments(outcomes []Outcome) []string {
	out := make([]string, 0, len(outcomes))
	for _, o := range outcomes {
		switch o.Kind {
		case OutcomeArchived:
			out = append(out, fmt.Sprintf("[%s](%s)", o.Backend, o.URL))
		case OutcomeFailed:
			out = append(out, fmt.Sprintf(`[_%s\*_](%s "%s")`, o.Backend, o.ErrorLink, ResubmitHint))
		}
	}
	return out
}
