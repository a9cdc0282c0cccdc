package snapshot

import (
	"fmt"
	"unicode/utf8"
)

// ThisPostTitle labels the primary link of a self post, which archives the post itself.
const ThisPostTitle = "This Post"

// DefaultTitleMaxLength is the number of characters kept from a link title.
const DefaultTitleMaxLength = 35

// Builder turns feed items into Posts with normalized, deduplicated Links.
type Builder struct {
	normalizer *Normalizer
	titleMax   int
}

// NewBuilder creates a Builder. A non-positive titleMax selects DefaultTitleMaxLength.
func NewBuilder(normalizer *Normalizer, titleMax int) *Builder {
	if titleMax <= 0 {
		titleMax = DefaultTitleMaxLength
	}
	return &Builder{normalizer: normalizer, titleMax: titleMax}
}

// Build constructs the Post for item. The primary link is never filtered;
// self-text anchors are skipped when they are bare profile/category pages or
// repeat a URL already present in the post.
func (b *Builder) Build(item FeedItem) (Post, error) {
	post := Post{
		ID:        item.ID,
		Permalink: item.Permalink,
		Title:     item.Title,
		Subreddit: item.Subreddit,
		IsSelf:    item.IsSelf,
		BodyHTML:  item.SelfTextHTML,
	}

	title := item.Title
	if item.IsSelf {
		title = ThisPostTitle
	}
	primary := b.newLink(item.URL, title)
	post.Links = append(post.Links, primary)

	if !item.IsSelf || item.SelfTextHTML == "" {
		return post, nil
	}

	anchors, err := ExtractAnchors(item.SelfTextHTML)
	if err != nil {
		return Post{}, fmt.Errorf("extract anchors for %s: %w", item.ID, err)
	}
	seen := map[string]struct{}{primary.URL: {}}
	for _, a := range anchors {
		normalized := b.normalizer.Normalize(a.Href)
		if b.normalizer.IsProfileOrCategory(normalized) {
			continue
		}
		if _, dup := seen[normalized]; dup {
			continue
		}
		seen[normalized] = struct{}{}
		post.Links = append(post.Links, b.newLink(a.Href, a.Text))
	}
	return post, nil
}

func (b *Builder) newLink(raw, title string) Link {
	normalized := b.normalizer.Normalize(raw)
	return Link{
		RawURL:     raw,
		URL:        normalized,
		Title:      TruncateTitle(title, b.titleMax),
		RedditLike: b.normalizer.IsSiteURL(normalized),
	}
}

// TruncateTitle keeps the first max characters of title and marks the cut with "...".
func TruncateTitle(title string, max int) string {
	if utf8.RuneCountInString(title) <= max {
		return title
	}
	return string([]rune(title)[:max]) + "..."
}
