// Package tempo implements the client for the upstream tabular statistics
// API: rate-limited chunk requests and parsing of the delimited table
// responses.
package tempo

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"

	"github.com/insdata/temposync/internal/config"
	"github.com/insdata/temposync/internal/domain/model"
	"github.com/insdata/temposync/internal/support/exception"
	"github.com/insdata/temposync/internal/support/logger"
)

// Client fetches chunk tables from the upstream API. All requests flow
// through a shared limiter enforcing the configured minimum interval, so the
// sync never hammers the source regardless of worker concurrency.
type Client struct {
	http    *resty.Client
	limiter *rate.Limiter
}

// NewClient builds a Client from the tempo configuration.
func NewClient(cfg config.TempoConfig) *Client {
	interval := time.Duration(cfg.MinRequestIntervalMillis) * time.Millisecond
	if interval <= 0 {
		interval = 750 * time.Millisecond
	}

	http := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(time.Duration(cfg.RequestTimeoutSeconds) * time.Second).
		SetRetryCount(cfg.MaxRetries).
		SetRetryWaitTime(time.Duration(cfg.RetryWaitMillis) * time.Millisecond).
		SetRetryMaxWaitTime(30 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() >= 500 || r.StatusCode() == 429
		})

	return &Client{
		http:    http,
		limiter: rate.NewLimiter(rate.Every(interval), 1),
	}
}

// EncodeQuery serializes a chunk selection into the request encoding: item
// ids comma-joined per dimension, dimensions colon-joined in index order.
func EncodeQuery(selection []model.DimensionSelection) string {
	parts := make([]string, len(selection))
	for i, sel := range selection {
		parts[i] = strings.Join(sel.ItemIDs, ",")
	}
	return strings.Join(parts, ":")
}

// FetchTable requests one chunk's table and parses it. Transport failures,
// 5xx responses and timeouts come back retryable; a non-retryable error means
// the request itself is rejected upstream.
func (c *Client) FetchTable(ctx context.Context, ds *model.Dataset, chunk *model.SyncChunk) (*Table, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, exception.New("tempo", "rate limiter interrupted", err, false)
	}

	started := time.Now()
	resp, err := c.http.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"matrixName": ds.Code,
			"encQuery":   EncodeQuery(chunk.Selection),
			"lang":       "ro",
			"matMaxDim":  fmt.Sprintf("%d", len(ds.Dimensions)),
		}).
		Post("/pivot")
	if err != nil {
		return nil, exception.New("tempo", fmt.Sprintf("request failed for dataset %s", ds.Code), err, true)
	}

	logger.Debugf("Fetched %s chunk %.12s: status=%d bytes=%d in %s",
		ds.Code, chunk.Hash, resp.StatusCode(), len(resp.Body()), time.Since(started).Round(time.Millisecond))

	if resp.StatusCode() >= 500 || resp.StatusCode() == 429 {
		return nil, exception.New("tempo",
			fmt.Sprintf("upstream returned %d for dataset %s", resp.StatusCode(), ds.Code), nil, true)
	}
	if resp.StatusCode() != 200 {
		return nil, exception.New("tempo",
			fmt.Sprintf("upstream returned %d for dataset %s", resp.StatusCode(), ds.Code), nil, false)
	}

	return ParseTable(string(resp.Body()), len(ds.Dimensions))
}
