package reddit

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/JakeFAU/snapshill/internal/snapshot"
)

const subscriptionPageSize = 100

type listing[T any] struct {
	Data struct {
		After    string `json:"after"`
		Children []struct {
			Kind string `json:"kind"`
			Data T      `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

type link struct {
	Name         string `json:"name"`
	Permalink    string `json:"permalink"`
	Title        string `json:"title"`
	URL          string `json:"url"`
	Subreddit    string `json:"subreddit"`
	IsSelf       bool   `json:"is_self"`
	SelfTextHTML string `json:"selftext_html"`
}

type subreddit struct {
	DisplayName  string `json:"display_name"`
	UserIsBanned bool   `json:"user_is_banned"`
}

type apiResponse[T any] struct {
	JSON struct {
		Errors [][]any `json:"errors"`
		Data   T       `json:"data"`
	} `json:"json"`
}

type commentData struct {
	Things []struct {
		Data struct {
			Name string `json:"name"`
		} `json:"data"`
	} `json:"things"`
}

type submitData struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

type wikiPage struct {
	Data struct {
		ContentMD string `json:"content_md"`
	} `json:"data"`
}

// FetchNew implements snapshot.Feed. Items come back newest first.
func (c *Client) FetchNew(ctx context.Context, limit int) ([]snapshot.FeedItem, error) {
	var out listing[link]
	query := url.Values{"limit": {strconv.Itoa(limit)}}
	if err := c.get(ctx, "new", "/new", query, &out); err != nil {
		return nil, err
	}
	items := make([]snapshot.FeedItem, 0, len(out.Data.Children))
	for _, child := range out.Data.Children {
		if child.Kind != "t3" {
			continue
		}
		d := child.Data
		items = append(items, snapshot.FeedItem{
			ID:           d.Name,
			Permalink:    c.cfg.PermalinkBase + d.Permalink,
			Title:        d.Title,
			URL:          d.URL,
			Subreddit:    d.Subreddit,
			IsSelf:       d.IsSelf,
			SelfTextHTML: d.SelfTextHTML,
		})
	}
	return items, nil
}

// Subreddits implements snapshot.Feed, following pagination to the end.
func (c *Client) Subreddits(ctx context.Context) ([]snapshot.Subreddit, error) {
	var (
		subs  []snapshot.Subreddit
		after string
	)
	for {
		query := url.Values{"limit": {strconv.Itoa(subscriptionPageSize)}}
		if after != "" {
			query.Set("after", after)
		}
		var page listing[subreddit]
		if err := c.get(ctx, "subreddits", "/subreddits/mine/subscriber", query, &page); err != nil {
			return nil, err
		}
		for _, child := range page.Data.Children {
			subs = append(subs, snapshot.Subreddit{
				Name:   child.Data.DisplayName,
				Banned: child.Data.UserIsBanned,
			})
		}
		if page.Data.After == "" || len(page.Data.Children) == 0 {
			return subs, nil
		}
		after = page.Data.After
	}
}

// Unsubscribe implements snapshot.Feed.
func (c *Client) Unsubscribe(ctx context.Context, name string) error {
	form := url.Values{"action": {"unsub"}, "sr_name": {name}}
	return c.post(ctx, "unsubscribe", "/api/subscribe", form, nil)
}

// Reply implements snapshot.Feed and returns the new comment's fullname.
func (c *Client) Reply(ctx context.Context, parentID, text string) (string, error) {
	var out apiResponse[commentData]
	form := url.Values{"api_type": {"json"}, "thing_id": {parentID}, "text": {text}}
	if err := c.post(ctx, "comment", "/api/comment", form, &out); err != nil {
		return "", err
	}
	if err := apiErrors("comment", out.JSON.Errors); err != nil {
		return "", err
	}
	if len(out.JSON.Data.Things) == 0 || out.JSON.Data.Things[0].Data.Name == "" {
		return "", fmt.Errorf("%w: comment: response carried no comment", ErrAPI)
	}
	return out.JSON.Data.Things[0].Data.Name, nil
}

// Submit implements snapshot.Feed by creating a self post in destination.
func (c *Client) Submit(ctx context.Context, destination, title, text string) (snapshot.Submission, error) {
	var out apiResponse[submitData]
	form := url.Values{
		"api_type": {"json"},
		"kind":     {"self"},
		"sr":       {destination},
		"title":    {title},
		"text":     {text},
	}
	if err := c.post(ctx, "submit", "/api/submit", form, &out); err != nil {
		return snapshot.Submission{}, err
	}
	if err := apiErrors("submit", out.JSON.Errors); err != nil {
		return snapshot.Submission{}, err
	}
	if out.JSON.Data.Name == "" {
		return snapshot.Submission{}, fmt.Errorf("%w: submit: response carried no submission", ErrAPI)
	}
	return snapshot.Submission{ID: out.JSON.Data.Name, URL: out.JSON.Data.URL}, nil
}

// WikiPage implements snapshot.WikiReader. Missing and private pages both
// report snapshot.ErrNotFound.
func (c *Client) WikiPage(ctx context.Context, scope, page string) (string, error) {
	var out wikiPage
	path := "/r/" + url.PathEscape(scope) + "/wiki/" + page
	err := c.get(ctx, "wiki", path, nil, &out)
	var se *StatusError
	if errors.As(err, &se) && (se.Code == http.StatusNotFound || se.Code == http.StatusForbidden) {
		return "", fmt.Errorf("wiki %s/%s: %w", scope, page, snapshot.ErrNotFound)
	}
	if err != nil {
		return "", err
	}
	return out.Data.ContentMD, nil
}

func apiErrors(op string, errs [][]any) error {
	if len(errs) == 0 {
		return nil
	}
	msgs := make([]string, 0, len(errs))
	for _, e := range errs {
		parts := make([]string, 0, len(e))
		for _, p := range e {
			parts = append(parts, fmt.Sprint(p))
		}
		msgs = append(msgs, strings.Join(parts, " "))
	}
	return fmt.Errorf("%w: %s: %s", ErrAPI, op, strings.Join(msgs, "; "))
}
