package snapshot

import (
	"fmt"
	"html"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Anchor is one hyperlink found in self-text markup.
type Anchor struct {
	Href string
	Text string
}

// ExtractAnchors returns the anchors of body in document order. Bodies that
// arrive entity-escaped (legacy API responses) are unescaped first.
func ExtractAnchors(body string) ([]Anchor, error) {
	if body == "" {
		return nil, nil
	}
	if !strings.Contains(body, "<") && strings.Contains(body, "&lt;") {
		body = html.UnescapeString(body)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse self text: %w", err)
	}
	var anchors []Anchor
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" {
			return
		}
		text := strings.TrimSpace(s.Text())
		if text == "" {
			text = href
		}
		anchors = append(anchors, Anchor{Href: href, Text: text})
	})
	return anchors, nil
}
