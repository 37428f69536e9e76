package platform

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vaultScope/internal/observability"
)

func TestRateFromGetPath(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		_, _ = io.WriteString(w, `{"data":{"smaApr":"3.25","nested":[{"apr":1.5}]}}`)
	}))
	defer srv.Close()

	client, err := NewClient()
	require.NoError(t, err)
	defer client.Close()

	rate, err := client.Rate(context.Background(), RateSource{
		URL:     srv.URL,
		Path:    "data.smaApr",
		Divisor: decimal.NewFromInt(100),
	})
	require.NoError(t, err)
	assert.True(t, rate.Equal(decimal.RequireFromString("0.0325")), "got %s", rate)

	raw, err := client.Rate(context.Background(), RateSource{URL: srv.URL, Path: "data.nested.0.apr"})
	require.NoError(t, err)
	assert.True(t, raw.Equal(decimal.RequireFromString("1.5")))
}

func TestRateFromPost(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"query":"apr"}`, string(body))
		_, _ = io.WriteString(w, `{"result":{"apr":0.042}}`)
	}))
	defer srv.Close()

	client, err := NewClient()
	require.NoError(t, err)

	rate, err := client.Rate(context.Background(), RateSource{
		URL:    srv.URL,
		Method: "post",
		Body:   `{"query":"apr"}`,
		Path:   "result.apr",
	})
	require.NoError(t, err)
	assert.True(t, rate.Equal(decimal.RequireFromString("0.042")))
}

func TestRateRejectsMissingAndNonNumeric(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"a":"NaN","b":{"c":1},"d":null}`)
	}))
	defer srv.Close()

	client, err := NewClient()
	require.NoError(t, err)
	ctx := context.Background()

	_, err = client.Rate(ctx, RateSource{URL: srv.URL, Path: "missing"})
	assert.ErrorIs(t, err, ErrPathNotFound)

	_, err = client.Rate(ctx, RateSource{URL: srv.URL, Path: "a"})
	assert.ErrorIs(t, err, ErrNotNumeric)

	_, err = client.Rate(ctx, RateSource{URL: srv.URL, Path: "b"})
	assert.ErrorIs(t, err, ErrNotNumeric)

	_, err = client.Rate(ctx, RateSource{URL: srv.URL, Path: "d"})
	assert.ErrorIs(t, err, ErrNotNumeric)
}

func TestGetFailsOnBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer srv.Close()

	metrics := observability.NewMetrics("test")
	client, err := NewClient(WithMetrics(metrics))
	require.NoError(t, err)

	_, err = client.Get(context.Background(), srv.URL, "x")
	assert.Error(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.ExternalRequests.WithLabelValues("platform", "error")))
}

func TestGetServesFromCacheWhileFresh(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		_, _ = io.WriteString(w, `{"apr":7}`)
	}))
	defer srv.Close()

	client, err := NewClient(WithCacheTTL(time.Minute))
	require.NoError(t, err)
	defer client.Close()

	for i := 0; i < 3; i++ {
		res, err := client.Get(context.Background(), srv.URL, "apr")
		require.NoError(t, err)
		assert.Equal(t, int64(7), res.Int())
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestGetWithoutCacheAlwaysFetches(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		_, _ = io.WriteString(w, `{"apr":7}`)
	}))
	defer srv.Close()

	client, err := NewClient()
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err := client.Get(context.Background(), srv.URL, "apr")
		require.NoError(t, err)
	}
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
}
