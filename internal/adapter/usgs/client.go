package usgs

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/couchcryptid/quakemap/internal/domain"
	"github.com/couchcryptid/quakemap/internal/observability"
)

// Feed labels used in metrics and logs.
const (
	feedEarthquakes = "earthquakes"
	feedPlates      = "plates"
)

// maxBodyBytes caps a feed download. The monthly summary is well under this.
const maxBodyBytes = 64 << 20

// Client implements domain.FeedSource over HTTP.
type Client struct {
	httpClient  *http.Client
	feedBaseURL string
	platesURL   string
	maxBody     int64
	metrics     *observability.Metrics
	logger      *slog.Logger

	// Plate boundaries rarely change, so they are fetched conditionally.
	mu           sync.Mutex
	platesBody   []byte
	etag         string
	lastModified string
}

// NewClient creates a USGS feed client. Every request is bounded by timeout.
func NewClient(feedBaseURL, platesURL string, timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		feedBaseURL: feedBaseURL,
		platesURL:   platesURL,
		maxBody:     maxBodyBytes,
		metrics:     metrics,
		logger:      logger,
	}
}

// FetchEarthquakes downloads the summary feed for the window.
func (c *Client) FetchEarthquakes(ctx context.Context, window domain.TimeWindow) ([]byte, error) {
	u := fmt.Sprintf("%s/%s", c.feedBaseURL, window.FeedFile())
	body, _, err := c.get(ctx, feedEarthquakes, u, nil)
	return body, err
}

// FetchPlates downloads the plate boundary document, reusing the last body
// when the server answers 304 Not Modified.
func (c *Client) FetchPlates(ctx context.Context) ([]byte, error) {
	c.mu.Lock()
	headers := map[string]string{}
	if c.platesBody != nil {
		if c.etag != "" {
			headers["If-None-Match"] = c.etag
		}
		if c.lastModified != "" {
			headers["If-Modified-Since"] = c.lastModified
		}
	}
	c.mu.Unlock()

	body, resp, err := c.get(ctx, feedPlates, c.platesURL, headers)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if resp.StatusCode == http.StatusNotModified {
		if c.platesBody == nil {
			return nil, fmt.Errorf("%w: %s: 304 Not Modified without a cached body", domain.ErrNetwork, feedPlates)
		}
		return c.platesBody, nil
	}
	c.platesBody = body
	c.etag = resp.Header.Get("ETag")
	c.lastModified = resp.Header.Get("Last-Modified")
	return body, nil
}

func (c *Client) get(ctx context.Context, feed, fullURL string, headers map[string]string) ([]byte, *http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/geo+json, application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	c.metrics.FeedDuration.WithLabelValues(feed).Observe(time.Since(start).Seconds())
	if err != nil {
		c.metrics.FeedRequests.WithLabelValues(feed, "error").Inc()
		return nil, nil, fmt.Errorf("%w: %s request: %w", domain.ErrNetwork, feed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified {
		c.metrics.FeedRequests.WithLabelValues(feed, "not_modified").Inc()
		return nil, resp, nil
	}
	if resp.StatusCode != http.StatusOK {
		c.metrics.FeedRequests.WithLabelValues(feed, "error").Inc()
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, nil, fmt.Errorf("%w: %s feed status %d: %s", domain.ErrNetwork, feed, resp.StatusCode, snippet)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	if err != nil {
		c.metrics.FeedRequests.WithLabelValues(feed, "error").Inc()
		return nil, nil, fmt.Errorf("%w: read %s body: %w", domain.ErrNetwork, feed, err)
	}
	if int64(len(body)) > c.maxBody {
		c.metrics.FeedRequests.WithLabelValues(feed, "error").Inc()
		return nil, nil, fmt.Errorf("%w: %s feed exceeds %d bytes", domain.ErrNetwork, feed, c.maxBody)
	}

	c.metrics.FeedRequests.WithLabelValues(feed, "success").Inc()
	c.logger.Debug("feed fetched", "feed", feed, "url", fullURL, "bytes", len(body))
	return body, resp, nil
}
