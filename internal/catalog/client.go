package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"stockcount/internal/config"
)

const maxFeedAttempts = 5

// Client downloads the catalog text feed published by the head office.
type Client struct {
	cfg        config.Config
	httpClient *http.Client
	limiter    *rate.Limiter
	sleep      func(ctx context.Context, d time.Duration) error
}

func NewClient(cfg config.Config) *Client {
	rps := cfg.CatalogFeedRPS
	if rps <= 0 {
		rps = 1
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: time.Duration(cfg.CatalogFeedTimeoutMs) * time.Millisecond},
		limiter:    rate.NewLimiter(rate.Limit(rps), 1),
		sleep:      sleepContext,
	}
}

// FetchCatalog returns the raw `code;barcode;description;...` feed body.
func (c *Client) FetchCatalog(ctx context.Context) ([]byte, error) {
	if strings.TrimSpace(c.cfg.CatalogFeedURL) == "" {
		return nil, errors.New("missing CATALOG_FEED_URL")
	}

	var lastErr error
	for attempt := 1; attempt <= maxFeedAttempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.CatalogFeedURL, nil)
		if err != nil {
			return nil, err
		}
		if token := strings.TrimSpace(c.cfg.CatalogFeedToken); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		req.Header.Set("Accept", "text/plain, text/csv, */*")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			lastErr = readErr
			continue
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			if isRetryableStatus(resp.StatusCode) && attempt < maxFeedAttempts {
				backoff := time.Duration(250*(1<<(attempt-1))+rand.Intn(100)) * time.Millisecond
				if err := c.sleep(ctx, backoff); err != nil {
					return nil, err
				}
				lastErr = fmt.Errorf("catalog feed status %d", resp.StatusCode)
				continue
			}
			return nil, fmt.Errorf("catalog feed error: status=%d body=%s", resp.StatusCode, truncateBody(body))
		}
		return body, nil
	}

	if lastErr == nil {
		lastErr = errors.New("catalog feed request failed")
	}
	return nil, lastErr
}

func isRetryableStatus(status int) bool {
	switch status {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

func truncateBody(body []byte) string {
	const max = 512
	if len(body) > max {
		return string(body[:max]) + "..."
	}
	return string(body)
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
