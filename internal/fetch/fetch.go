// Package fetch downloads attachment images over HTTP.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dmitrijs2005/esimrouter/internal/common"
	"github.com/dmitrijs2005/esimrouter/internal/logging"
)

// DefaultMaxBytes caps a single download.
const DefaultMaxBytes = 25 << 20

// Client fetches URLs with retries on transport errors and 5xx responses.
// Every returned error wraps common.ErrFetch.
type Client struct {
	client     *http.Client
	maxRetries int
	maxBytes   int64
	backoff    func(attempt int) time.Duration
	log        logging.Logger
}

func NewClient(timeout time.Duration, maxRetries int, log logging.Logger) *Client {
	return &Client{
		client:     &http.Client{Timeout: timeout},
		maxRetries: maxRetries,
		maxBytes:   DefaultMaxBytes,
		backoff:    func(attempt int) time.Duration { return time.Duration(attempt) * time.Second },
		log:        log,
	}
}

// Fetch returns the body of a successful GET of url.
func (c *Client) Fetch(ctx context.Context, url string) ([]byte, error) {
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(c.backoff(attempt)):
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %w", common.ErrFetch, ctx.Err())
			}
			c.log.Debug(ctx, "fetch: retrying", "url", url, "attempt", attempt, "error", lastErr)
		}

		data, retry, err := c.once(ctx, url)
		if err == nil {
			return data, nil
		}
		lastErr = err
		if !retry {
			break
		}
	}

	return nil, fmt.Errorf("%w: %s: %w", common.ErrFetch, url, lastErr)
}

func (c *Client) once(ctx context.Context, url string) (data []byte, retry bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, ctx.Err() == nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return nil, true, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, false, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	data, err = io.ReadAll(io.LimitReader(resp.Body, c.maxBytes+1))
	if err != nil {
		return nil, true, fmt.Errorf("read body: %w", err)
	}
	if int64(len(data)) > c.maxBytes {
		return nil, false, fmt.Errorf("body exceeds %d bytes", c.maxBytes)
	}
	return data, false, nil
}
