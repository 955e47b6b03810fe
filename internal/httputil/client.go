// Package httputil provides the upstream JSON fetcher and HTTP response helpers.
package httputil

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"

	"github.com/R3E-Network/feed_layer/internal/feederr"
	"github.com/R3E-Network/feed_layer/pkg/logger"
)

const (
	defaultTimeout      = 10 * time.Second
	defaultMaxBodyBytes = 8 << 20
	errorBodyBytes      = 4 << 10
)

// ClientConfig configures the JSON client.
type ClientConfig struct {
	HTTPClient *http.Client
	Timeout    time.Duration
	// RateLimit is requests per second allowed per upstream host; zero disables limiting.
	RateLimit    float64
	Burst        int
	MaxBodyBytes int64
	UserAgent    string
}

// Client fetches JSON documents over HTTP and classifies failures.
type Client struct {
	httpClient   *http.Client
	timeout      time.Duration
	maxBodyBytes int64
	userAgent    string
	log          *logger.Logger

	limit    rate.Limit
	burst    int
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

var _ Fetcher = (*Client)(nil)

// NewClient creates a JSON client.
func NewClient(cfg ClientConfig, log *logger.Logger) *Client {
	if log == nil {
		log = logger.NewDefault("httputil")
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = defaultMaxBodyBytes
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Client{
		httpClient:   httpClient,
		timeout:      timeout,
		maxBodyBytes: maxBody,
		userAgent:    cfg.UserAgent,
		log:          log,
		limit:        rate.Limit(cfg.RateLimit),
		burst:        burst,
		limiters:     make(map[string]*rate.Limiter),
	}
}

func (c *Client) limiter(host string) *rate.Limiter {
	if c.limit <= 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.limiters[host]
	if !ok {
		l = rate.NewLimiter(c.limit, c.burst)
		c.limiters[host] = l
	}
	return l
}

// GetJSON performs a GET and parses the response body as JSON.
func (c *Client) GetJSON(ctx context.Context, rawURL string, opts FetchOptions) (gjson.Result, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return gjson.Result{}, feederr.NewFetchError(feederr.FetchNetwork, rawURL, fmt.Errorf("invalid url: %v", err))
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = c.timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if l := c.limiter(parsed.Host); l != nil {
		if err := l.Wait(ctx); err != nil {
			return gjson.Result{}, feederr.NewFetchError(feederr.FetchTimeout, redact(parsed), err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return gjson.Result{}, feederr.NewFetchError(feederr.FetchNetwork, redact(parsed), err)
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	for k, v := range opts.Headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		kind := feederr.FetchNetwork
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			kind = feederr.FetchTimeout
		}
		return gjson.Result{}, feederr.NewFetchError(kind, redact(parsed), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, truncated, _ := ReadAllWithLimit(resp.Body, errorBodyBytes)
		msg := strings.TrimSpace(string(body))
		if truncated {
			msg += "...(truncated)"
		}
		return gjson.Result{}, feederr.StatusError(redact(parsed), resp.StatusCode, msg)
	}

	body, err := ReadAllStrict(resp.Body, c.maxBodyBytes)
	if err != nil {
		kind := feederr.FetchDecode
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			kind = feederr.FetchTimeout
		}
		return gjson.Result{}, feederr.NewFetchError(kind, redact(parsed), err)
	}
	if !gjson.ValidBytes(body) {
		return gjson.Result{}, feederr.NewFetchError(feederr.FetchDecode, redact(parsed), errors.New("response is not valid JSON"))
	}
	c.log.WithField("url", redact(parsed)).Debug("upstream fetch ok")
	return gjson.ParseBytes(body), nil
}

// redact drops query values that commonly carry credentials.
func redact(u *url.URL) string {
	q := u.Query()
	changed := false
	for key := range q {
		switch strings.ToLower(key) {
		case "apikey", "api-key", "api_key", "key", "token":
			q.Set(key, "***")
			changed = true
		}
	}
	if !changed {
		return u.String()
	}
	out := *u
	out.RawQuery = q.Encode()
	return out.String()
}
