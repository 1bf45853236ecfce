package kyobo

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"github.com/listenupapp/kyobo-metadata/internal/errors"
	"github.com/listenupapp/kyobo-metadata/internal/logger"
	"github.com/listenupapp/kyobo-metadata/internal/ratelimit"
)

const (
	// HTTP client settings
	defaultTimeout     = 15 * time.Second
	defaultMaxRetries  = 3
	defaultBaseDelay   = time.Second
	defaultMaxDelay    = 4 * time.Second
	defaultMinInterval = time.Second
	healthCheckTimeout = 5 * time.Second

	maxBodySize = 5 << 20

	defaultAccept  = "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"
	acceptLanguage = "ko-KR,ko;q=0.9,en-US;q=0.8,en;q=0.7"
)

// defaultUserAgents are rotated per request.
var defaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:125.0) Gecko/20100101 Firefox/125.0",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
}

// ClientConfig configures retrieval.
type ClientConfig struct {
	Timeout     time.Duration // per attempt
	MaxRetries  int           // attempts including the first
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	MinInterval time.Duration // process-wide gap between requests
	UserAgents  []string
	Endpoints   Endpoints
}

// Client is a rate-limited, retrying HTTP client for the bookstore.
// One Client should be shared by every caller in the process so the
// request gate applies globally.
type Client struct {
	http      *http.Client
	limiter   *ratelimit.Limiter
	ownsLimit bool
	logger    *slog.Logger
	cfg       ClientConfig
	agents    []string
	nextAgent atomic.Uint64
	sleep     func(context.Context, time.Duration) error
}

// ClientOption customizes a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.http = hc }
}

// WithLimiter shares an existing request gate. The client will not stop it on Close.
func WithLimiter(l *ratelimit.Limiter) ClientOption {
	return func(c *Client) {
		c.limiter = l
		c.ownsLimit = false
	}
}

// WithSleeper replaces the backoff sleep. The function must return early
// with an error when ctx is done.
func WithSleeper(sleep func(context.Context, time.Duration) error) ClientOption {
	return func(c *Client) { c.sleep = sleep }
}

// NewClient creates a client. Zero config fields take the defaults.
func NewClient(cfg ClientConfig, log *slog.Logger, opts ...ClientOption) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = defaultBaseDelay
	}
	if cfg.MaxDelay < cfg.BaseDelay {
		cfg.MaxDelay = max(defaultMaxDelay, cfg.BaseDelay)
	}
	if cfg.MinInterval < 0 {
		cfg.MinInterval = defaultMinInterval
	}
	if cfg.Endpoints == (Endpoints{}) {
		cfg.Endpoints = DefaultEndpoints()
	}

	agents := cfg.UserAgents
	if len(agents) == 0 {
		agents = defaultUserAgents
	}

	c := &Client{
		http: &http.Client{
			// Per-attempt deadlines come from the request context.
			Timeout: 0,
		},
		limiter:   ratelimit.New(cfg.MinInterval),
		ownsLimit: true,
		logger:    logger.Component(log, "http-client"),
		cfg:       cfg,
		agents:    agents,
		sleep:     sleepContext,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Close releases resources held by the client.
func (c *Client) Close() {
	if c.ownsLimit {
		c.limiter.Stop()
	}
}

// Endpoints returns the endpoints the client was configured with.
func (c *Client) Endpoints() Endpoints {
	return c.cfg.Endpoints
}

// RequestOption customizes a single request.
type RequestOption func(*requestOptions)

type requestOptions struct {
	timeout time.Duration
	referer string
	accept  string
	headers map[string]string
}

// WithTimeout overrides the per-attempt timeout.
func WithTimeout(d time.Duration) RequestOption {
	return func(o *requestOptions) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithReferer sets the Referer header.
func WithReferer(ref string) RequestOption {
	return func(o *requestOptions) { o.referer = ref }
}

// WithAccept overrides the Accept header.
func WithAccept(accept string) RequestOption {
	return func(o *requestOptions) { o.accept = accept }
}

// WithHeader adds an arbitrary request header.
func WithHeader(key, value string) RequestOption {
	return func(o *requestOptions) {
		if o.headers == nil {
			o.headers = make(map[string]string)
		}
		o.headers[key] = value
	}
}

// Get fetches rawURL and returns the body as text. Non-text responses are rejected.
func (c *Client) Get(ctx context.Context, rawURL string, opts ...RequestOption) (string, error) {
	body, _, err := c.fetch(ctx, rawURL, true, opts)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// GetBytes fetches rawURL and returns the raw body with its detected MIME type.
func (c *Client) GetBytes(ctx context.Context, rawURL string, opts ...RequestOption) ([]byte, string, error) {
	return c.fetch(ctx, rawURL, false, opts)
}

// HealthCheck performs one lightweight request to the site root. It never
// returns an error; false means the caller should run in offline mode.
func (c *Client) HealthCheck(ctx context.Context) bool {
	ro := c.requestOptions([]RequestOption{WithTimeout(min(c.cfg.Timeout, healthCheckTimeout))})

	if err := c.limiter.Wait(ctx); err != nil {
		c.logger.Warn("health check skipped", "error", err)
		return false
	}
	if _, _, err := c.attempt(ctx, c.cfg.Endpoints.Home, true, ro); err != nil {
		c.logger.Warn("health check failed", "url", c.cfg.Endpoints.Home, "error", err)
		return false
	}
	c.logger.Debug("health check ok", "url", c.cfg.Endpoints.Home)
	return true
}

func (c *Client) requestOptions(opts []RequestOption) requestOptions {
	ro := requestOptions{timeout: c.cfg.Timeout, accept: defaultAccept}
	for _, opt := range opts {
		opt(&ro)
	}
	return ro
}

// fetch runs the retry loop. Each attempt waits on the shared gate first.
func (c *Client) fetch(ctx context.Context, rawURL string, wantText bool, opts []RequestOption) ([]byte, string, error) {
	ro := c.requestOptions(opts)

	var lastErr error
	for attempt := 1; attempt <= c.cfg.MaxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, "", errors.Wrap(err, errors.CodeNetwork, "request canceled while rate limited").WithSource(rawURL)
		}

		start := time.Now()
		body, ctype, err := c.attempt(ctx, rawURL, wantText, ro)
		if err == nil {
			c.logger.Debug("fetched",
				"url", rawURL,
				"attempt", attempt,
				"bytes", len(body),
				"duration", time.Since(start),
			)
			return body, ctype, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return nil, "", errors.Wrap(ctx.Err(), errors.CodeNetwork, "request canceled").WithSource(rawURL)
		}
		if !errors.IsRetryable(err) {
			c.logger.Debug("not retrying", "url", rawURL, "attempt", attempt, "error", err)
			break
		}
		if attempt == c.cfg.MaxRetries {
			break
		}

		delay := c.backoff(attempt)
		c.logger.Warn("request failed, retrying",
			"url", rawURL,
			"attempt", attempt,
			"delay", delay,
			"error", err,
		)
		if err := c.sleep(ctx, delay); err != nil {
			return nil, "", errors.Wrap(err, errors.CodeNetwork, "request canceled during backoff").WithSource(rawURL)
		}
	}
	return nil, "", lastErr
}

// backoff returns BaseDelay·2^(attempt-1) capped at MaxDelay.
func (c *Client) backoff(attempt int) time.Duration {
	d := c.cfg.BaseDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= c.cfg.MaxDelay {
			return c.cfg.MaxDelay
		}
	}
	return min(d, c.cfg.MaxDelay)
}

// attempt performs one request bounded by the per-attempt timeout.
func (c *Client) attempt(ctx context.Context, rawURL string, wantText bool, ro requestOptions) ([]byte, string, error) {
	actx, cancel := context.WithTimeout(ctx, ro.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(actx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", errors.Wrap(err, errors.CodeValidation, "invalid request url").WithSource(rawURL)
	}

	req.Header.Set("User-Agent", c.userAgent())
	req.Header.Set("Accept", ro.accept)
	req.Header.Set("Accept-Language", acceptLanguage)
	if ro.referer != "" {
		req.Header.Set("Referer", ro.referer)
	}
	for k, v := range ro.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, "", c.transportError(ctx, actx, rawURL, ro.timeout, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize+1))
	if err != nil {
		return nil, "", c.transportError(ctx, actx, rawURL, ro.timeout, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, "", errors.NetworkStatus(resp.StatusCode, "unexpected status "+http.StatusText(resp.StatusCode)).WithSource(rawURL)
	}
	if len(body) > maxBodySize {
		return nil, "", errors.Parsef(rawURL, "response exceeds %d bytes", maxBodySize)
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return nil, "", errors.NetworkStatus(resp.StatusCode, "empty response body").WithSource(rawURL)
	}

	ctype := contentType(resp.Header.Get("Content-Type"), body)
	if wantText && !isText(ctype) {
		return nil, "", errors.Parsef(rawURL, "expected a text document, got %s", ctype)
	}
	return body, ctype, nil
}

func (c *Client) transportError(parent, attemptCtx context.Context, rawURL string, timeout time.Duration, err error) error {
	if parent.Err() == nil && attemptCtx.Err() == context.DeadlineExceeded {
		return errors.Timeout(fmt.Sprintf("no response within %s", timeout)).WithCause(err).WithSource(rawURL)
	}
	return errors.Wrap(err, errors.CodeNetwork, "request failed").WithSource(rawURL)
}

func (c *Client) userAgent() string {
	n := c.nextAgent.Add(1) - 1
	return c.agents[n%uint64(len(c.agents))]
}

// contentType prefers the declared media type and sniffs the body when the
// server sends none.
func contentType(header string, body []byte) string {
	if header != "" {
		if mt, _, err := mime.ParseMediaType(header); err == nil {
			return mt
		}
	}
	return mimetype.Detect(body).String()
}

func isText(ctype string) bool {
	mt, _, err := mime.ParseMediaType(ctype)
	if err != nil {
		mt = ctype
	}
	switch {
	case strings.HasPrefix(mt, "text/"):
		return true
	case mt == "application/json", mt == "application/ld+json",
		mt == "application/xhtml+xml", mt == "application/xml",
		mt == "application/javascript":
		return true
	}
	for m := mimetype.Lookup(mt); m != nil; m = m.Parent() {
		if m.Is("text/plain") {
			return true
		}
	}
	return false
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
