// Package archive implements the archive backends a link is submitted to and
// the ordered registry that decides which backends apply to which link.
package archive

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
)

// DefaultUserAgent identifies the bot to archive services.
const DefaultUserAgent = "Archives to archive.is and archive.org (/r/SnapshillBot) v1.4"

// StatusError reports a non-success HTTP status from an archive service.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d (%s)", e.Code, http.StatusText(e.Code))
}

// ClientConfig controls the HTTP behavior shared by the backends.
type ClientConfig struct {
	UserAgent string
	Timeout   time.Duration
	// InsecureSkipVerify disables certificate checks. Only archive.today needs it.
	InsecureSkipVerify bool
}

// Client issues one-shot requests to an archive service through a Colly collector.
type Client struct {
	base *colly.Collector
}

type response struct {
	URL        string
	StatusCode int
	Body       []byte
}

type collectorHooks interface {
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// NewClient builds a Client.
func NewClient(cfg ClientConfig) *Client {
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	c := colly.NewCollector(
		colly.AllowURLRevisit(),
		colly.UserAgent(cfg.UserAgent),
	)
	c.WithTransport(newHTTPTransport(cfg.InsecureSkipVerify))
	c.SetRequestTimeout(cfg.Timeout)
	return &Client{base: c}
}

// Get fetches target and follows redirects.
func (c *Client) Get(ctx context.Context, target string) (response, error) {
	return c.do(ctx, target, func(col *colly.Collector) error {
		return col.Visit(target)
	})
}

// PostForm submits form to target and follows redirects.
func (c *Client) PostForm(ctx context.Context, target string, form map[string]string) (response, error) {
	return c.do(ctx, target, func(col *colly.Collector) error {
		return col.Post(target, form)
	})
}

func (c *Client) do(ctx context.Context, target string, visit func(*colly.Collector) error) (response, error) {
	var (
		result   response
		fetchErr error
	)
	collector := c.base.Clone()
	configureHooks(collector, &result, &fetchErr)

	done := make(chan error, 1)
	go func() {
		done <- visit(collector)
	}()

	select {
	case <-ctx.Done():
		return response{}, fmt.Errorf("request %s canceled: %w", target, ctx.Err())
	case err := <-done:
		if fetchErr != nil {
			return result, fetchErr
		}
		if err != nil {
			return result, fmt.Errorf("request %s: %w", target, err)
		}
		return result, nil
	}
}

func configureHooks(hooks collectorHooks, result *response, fetchErr *error) {
	hooks.OnResponse(func(r *colly.Response) {
		*result = response{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Body:       append([]byte(nil), r.Body...),
		}
	})
	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode != 0 {
			*result = response{StatusCode: r.StatusCode, Body: append([]byte(nil), r.Body...)}
			if r.Request != nil && r.Request.URL != nil {
				result.URL = r.Request.URL.String()
			}
			*fetchErr = &StatusError{Code: r.StatusCode}
			return
		}
		*fetchErr = err
	})
}

func statusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code
	}
	return 0
}

func newHTTPTransport(insecure bool) *http.Transport {
	t := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
	if insecure {
		t.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // archive.today serves mismatched certificates
	}
	return t
}
