// Package reddit is a small client for the parts of the Reddit OAuth API
// the bot uses: the front-page new listing, subscriptions, wiki pages,
// comments and self-post submissions.
package reddit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/JakeFAU/snapshill/internal/metrics"
	"github.com/JakeFAU/snapshill/internal/snapshot"
)

// ErrAPI is wrapped by every error the API reports about a request.
var ErrAPI = errors.New("reddit api error")

const maxBodyBytes = 4 << 20

// Config holds credentials and endpoints.
type Config struct {
	Username          string
	Password          string
	ClientID          string
	ClientSecret      string
	UserAgent         string
	APIBase           string
	TokenURL          string
	PermalinkBase     string
	RequestsPerMinute int
}

func (c *Config) applyDefaults() {
	if c.APIBase == "" {
		c.APIBase = "https://oauth.reddit.com"
	}
	if c.TokenURL == "" {
		c.TokenURL = "https://www.reddit.com/api/v1/access_token"
	}
	if c.PermalinkBase == "" {
		c.PermalinkBase = "https://www.reddit.com"
	}
	c.APIBase = strings.TrimRight(c.APIBase, "/")
	c.PermalinkBase = strings.TrimRight(c.PermalinkBase, "/")
}

// Client implements snapshot.Feed and snapshot.WikiReader.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

// New builds a Client that authenticates with the password grant. Tokens are
// requested lazily and renewed when they expire.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*Client, error) {
	if cfg.Username == "" || cfg.Password == "" {
		return nil, fmt.Errorf("reddit username and password are required")
	}
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("reddit client id is required")
	}
	cfg.applyDefaults()

	base := &http.Client{
		Timeout:   30 * time.Second,
		Transport: &userAgentTransport{agent: cfg.UserAgent, next: http.DefaultTransport},
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, base)
	oauthCfg := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint: oauth2.Endpoint{
			TokenURL:  cfg.TokenURL,
			AuthStyle: oauth2.AuthStyleInHeader,
		},
	}
	src := oauth2.ReuseTokenSource(nil, &passwordSource{
		ctx:      ctx,
		cfg:      oauthCfg,
		username: cfg.Username,
		password: cfg.Password,
	})
	return NewWithHTTPClient(oauth2.NewClient(ctx, src), cfg, logger), nil
}

// NewWithHTTPClient builds a Client on an already authenticated HTTP client.
func NewWithHTTPClient(httpClient *http.Client, cfg Config, logger *zap.Logger) *Client {
	cfg.applyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	limit := rate.Inf
	if cfg.RequestsPerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(cfg.RequestsPerMinute))
	}
	return &Client{
		cfg:     cfg,
		http:    httpClient,
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger,
	}
}

type passwordSource struct {
	ctx      context.Context
	cfg      *oauth2.Config
	username string
	password string
}

func (p *passwordSource) Token() (*oauth2.Token, error) {
	tok, err := p.cfg.PasswordCredentialsToken(p.ctx, p.username, p.password)
	if err != nil {
		return nil, fmt.Errorf("password grant: %w", err)
	}
	return tok, nil
}

type userAgentTransport struct {
	agent string
	next  http.RoundTripper
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.agent == "" {
		return t.next.RoundTrip(req)
	}
	clone := req.Clone(req.Context())
	clone.Header.Set("User-Agent", t.agent)
	return t.next.RoundTrip(clone)
}

func (c *Client) get(ctx context.Context, op, path string, query url.Values, out any) error {
	if query == nil {
		query = url.Values{}
	}
	query.Set("raw_json", "1")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.APIBase+path+"?"+query.Encode(), nil)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", op, err)
	}
	return c.do(op, req, out)
}

func (c *Client) post(ctx context.Context, op, path string, form url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.APIBase+path, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("%s: build request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(op, req, out)
}

func (c *Client) do(op string, req *http.Request, out any) error {
	if err := c.limiter.Wait(req.Context()); err != nil {
		return fmt.Errorf("%s: rate limit: %w", op, err)
	}
	if c.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", c.cfg.UserAgent)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		metrics.ObserveFeedRequest(op, 0)
		return fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			c.logger.Debug("close response body", zap.String("op", op), zap.Error(cerr))
		}
	}()
	metrics.ObserveFeedRequest(op, resp.StatusCode)

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("%s: read body: %w", op, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Op: op, Code: resp.StatusCode}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}

// StatusError reports a non-2xx response. It wraps ErrAPI.
type StatusError struct {
	Op   string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d", e.Op, e.Code)
}

func (e *StatusError) Unwrap() error { return ErrAPI }

var _ snapshot.Feed = (*Client)(nil)
var _ snapshot.WikiReader = (*Client)(nil)
