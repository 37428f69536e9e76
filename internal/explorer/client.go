// Package explorer reads token transfer history from an Etherscan-style block
// explorer, rotating API keys when one is rejected.
package explorer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/tidwall/gjson"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"vaultScope/internal/observability"
)

const (
	defaultTimeout   = 15 * time.Second
	metricsSource    = "explorer"
	statusOK         = "1"
	messageOK        = "OK"
	messageNoResults = "No transactions found"
)

// ErrAllKeysFailed is returned when every key was tried without success.
var ErrAllKeysFailed = errors.New("explorer request failed with every key")

// Transfer is one ERC-20 transfer event.
type Transfer struct {
	BlockNumber uint64
	Timestamp   time.Time
	Hash        common.Hash
	Token       common.Address
	From        common.Address
	To          common.Address
	Value       *big.Int
	Decimals    uint8
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithChainID adds the chainid parameter used by multichain explorer endpoints.
func WithChainID(chainID uint64) Option {
	return func(c *Client) {
		c.chainID = chainID
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

// Client queries the explorer API.
type Client struct {
	baseURL    string
	keys       []string
	next       uint32
	chainID    uint64
	httpClient *http.Client
	logger     *zap.Logger
	metrics    *observability.Metrics
}

// NewClient creates an explorer client. Empty keys are ignored.
func NewClient(baseURL string, keys []string, opts ...Option) *Client {
	filtered := make([]string, 0, len(keys))
	for _, key := range keys {
		if key = strings.TrimSpace(key); key != "" {
			filtered = append(filtered, key)
		}
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		keys:       filtered,
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// TokenTransfers returns the ERC-20 transfers involving address in block.
func (c *Client) TokenTransfers(ctx context.Context, address common.Address, block uint64) ([]Transfer, error) {
	params := url.Values{}
	params.Set("module", "account")
	params.Set("action", "tokentx")
	params.Set("address", address.Hex())
	params.Set("startblock", strconv.FormatUint(block, 10))
	params.Set("endblock", strconv.FormatUint(block, 10))
	params.Set("sort", "asc")

	result, err := c.query(ctx, params)
	if err != nil {
		return nil, err
	}
	return parseTransfers(result)
}

// query runs the request with each key in turn, starting from the last key
// that worked, and returns the result field of the first accepted response.
func (c *Client) query(ctx context.Context, params url.Values) (gjson.Result, error) {
	if c.chainID != 0 {
		params.Set("chainid", strconv.FormatUint(c.chainID, 10))
	}

	attempts := len(c.keys)
	if attempts == 0 {
		res, err := c.attempt(ctx, params)
		c.metrics.ObserveExternal(metricsSource, err)
		if err != nil {
			return gjson.Result{}, fmt.Errorf("%w: %v", ErrAllKeysFailed, err)
		}
		return res, nil
	}

	start := int(atomic.LoadUint32(&c.next))
	var errs error
	for i := 0; i < attempts; i++ {
		if err := ctx.Err(); err != nil {
			return gjson.Result{}, err
		}
		idx := (start + i) % attempts
		params.Set("apikey", c.keys[idx])

		res, err := c.attempt(ctx, params)
		c.metrics.ObserveExternal(metricsSource, err)
		if err == nil {
			atomic.StoreUint32(&c.next, uint32(idx))
			return res, nil
		}
		c.logger.Debug("explorer key rejected, rotating",
			zap.Int("key_index", idx),
			zap.Error(err),
		)
		errs = multierr.Append(errs, fmt.Errorf("key %d: %w", idx, err))
	}
	atomic.StoreUint32(&c.next, uint32((start+1)%attempts))
	return gjson.Result{}, fmt.Errorf("%w: %v", ErrAllKeysFailed, errs)
}

func (c *Client) attempt(ctx context.Context, params url.Values) (gjson.Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return gjson.Result{}, fmt.Errorf("status %d", resp.StatusCode)
	}
	if !gjson.ValidBytes(body) {
		return gjson.Result{}, fmt.Errorf("invalid json")
	}

	doc := gjson.ParseBytes(body)
	status := doc.Get("status").String()
	message := doc.Get("message").String()
	if status == statusOK || message == messageOK || message == messageNoResults {
		return doc.Get("result"), nil
	}
	return gjson.Result{}, fmt.Errorf("explorer error %s: %s", message, doc.Get("result").String())
}

func parseTransfers(result gjson.Result) ([]Transfer, error) {
	if !result.IsArray() {
		return nil, nil
	}
	var (
		transfers []Transfer
		parseErr  error
	)
	result.ForEach(func(_, item gjson.Result) bool {
		value, ok := new(big.Int).SetString(item.Get("value").String(), 10)
		if !ok {
			parseErr = fmt.Errorf("transfer %s: invalid value %q", item.Get("hash").String(), item.Get("value").String())
			return false
		}
		transfers = append(transfers, Transfer{
			BlockNumber: item.Get("blockNumber").Uint(),
			Timestamp:   time.Unix(item.Get("timeStamp").Int(), 0).UTC(),
			Hash:        common.HexToHash(item.Get("hash").String()),
			Token:       common.HexToAddress(item.Get("contractAddress").String()),
			From:        common.HexToAddress(item.Get("from").String()),
			To:          common.HexToAddress(item.Get("to").String()),
			Value:       value,
			Decimals:    uint8(item.Get("tokenDecimal").Uint()),
		})
		return true
	})
	if parseErr != nil {
		return nil, parseErr
	}
	return transfers, nil
}
