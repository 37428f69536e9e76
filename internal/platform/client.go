// Package platform reads supplementary yield figures from platform HTTP APIs.
package platform

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"vaultScope/internal/observability"
)

const (
	defaultTimeout = 15 * time.Second
	metricsSource  = "platform"
)

var (
	// ErrPathNotFound is returned when the response has no value at the path.
	ErrPathNotFound = errors.New("path not found in response")
	// ErrNotNumeric is returned when a rate value cannot be parsed as a number.
	ErrNotNumeric = errors.New("value is not numeric")
)

// RateSource describes where an external rate lives.
type RateSource struct {
	URL    string
	Method string
	Body   string
	// Path is a gjson path such as "data.smaApr".
	Path string
	// Divisor scales the raw value, e.g. 100 for percentages. Zero means 1.
	Divisor decimal.Decimal
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithCacheTTL caches GET responses for ttl. Zero disables caching.
func WithCacheTTL(ttl time.Duration) Option {
	return func(c *Client) {
		c.ttl = ttl
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics records request outcomes.
func WithMetrics(metrics *observability.Metrics) Option {
	return func(c *Client) {
		c.metrics = metrics
	}
}

// Client fetches JSON documents and extracts values by path.
type Client struct {
	httpClient *http.Client
	cache      *ristretto.Cache
	ttl        time.Duration
	logger     *zap.Logger
	metrics    *observability.Metrics
}

// NewClient creates a platform client.
func NewClient(opts ...Option) (*Client, error) {
	c := &Client{
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.ttl > 0 {
		cache, err := ristretto.NewCache(&ristretto.Config{
			NumCounters: 1e4,
			MaxCost:     32 << 20,
			BufferItems: 64,
		})
		if err != nil {
			return nil, fmt.Errorf("create response cache: %w", err)
		}
		c.cache = cache
	}
	return c, nil
}

// Close releases the response cache.
func (c *Client) Close() {
	if c.cache != nil {
		c.cache.Close()
	}
}

// Get fetches url and returns the value at path. Responses are served from
// the cache while fresh.
func (c *Client) Get(ctx context.Context, url, path string) (gjson.Result, error) {
	body, err := c.cachedGet(ctx, url)
	if err != nil {
		return gjson.Result{}, err
	}
	return extract(body, path)
}

// Post sends body as JSON to url and returns the value at path.
func (c *Client) Post(ctx context.Context, url, body, path string) (gjson.Result, error) {
	resp, err := c.do(ctx, http.MethodPost, url, []byte(body))
	if err != nil {
		return gjson.Result{}, err
	}
	return extract(resp, path)
}

// Rate resolves a numeric rate from src, divided by src.Divisor.
func (c *Client) Rate(ctx context.Context, src RateSource) (decimal.Decimal, error) {
	var (
		res gjson.Result
		err error
	)
	if strings.EqualFold(src.Method, http.MethodPost) {
		res, err = c.Post(ctx, src.URL, src.Body, src.Path)
	} else {
		res, err = c.Get(ctx, src.URL, src.Path)
	}
	if err != nil {
		return decimal.Zero, err
	}

	value, err := numeric(res)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s at %s: %w", src.URL, src.Path, err)
	}
	if src.Divisor.IsZero() {
		return value, nil
	}
	return value.DivRound(src.Divisor, 18), nil
}

func (c *Client) cachedGet(ctx context.Context, url string) ([]byte, error) {
	if c.cache != nil {
		if cached, ok := c.cache.Get(url); ok {
			if body, ok := cached.([]byte); ok {
				return body, nil
			}
		}
	}

	body, err := c.do(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	if c.cache != nil {
		c.cache.SetWithTTL(url, body, int64(len(body)), c.ttl)
		c.cache.Wait()
	}
	return body, nil
}

func (c *Client) do(ctx context.Context, method, url string, payload []byte) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	body, err := c.roundTrip(req)
	c.metrics.ObserveExternal(metricsSource, err)
	if err != nil {
		c.logger.Debug("platform request failed",
			zap.String("method", method),
			zap.String("url", url),
			zap.Error(err),
		)
		return nil, err
	}
	return body, nil
}

func (c *Client) roundTrip(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", req.URL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("fetch %s: status %d", req.URL, resp.StatusCode)
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("fetch %s: invalid json", req.URL)
	}
	return body, nil
}

func extract(body []byte, path string) (gjson.Result, error) {
	if path == "" {
		return gjson.ParseBytes(body), nil
	}
	res := gjson.GetBytes(body, path)
	if !res.Exists() {
		return gjson.Result{}, fmt.Errorf("%w: %s", ErrPathNotFound, path)
	}
	return res, nil
}

func numeric(res gjson.Result) (decimal.Decimal, error) {
	var raw string
	switch res.Type {
	case gjson.Number:
		raw = res.Raw
	case gjson.String:
		raw = strings.TrimSpace(res.Str)
	default:
		return decimal.Zero, fmt.Errorf("%w: %s", ErrNotNumeric, res.Type)
	}
	value, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrNotNumeric, raw)
	}
	return value, nil
}
