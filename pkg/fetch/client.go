// Package fetch downloads raw image bytes for candidate URLs.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"imgharvest/pkg/config"
	errs "imgharvest/pkg/errors"
	"imgharvest/pkg/logger"
	"imgharvest/pkg/retry"
)

// Client is an HTTP client for thumbnail downloads.
// Every failure it returns is a *errors.Error of TypeFetch.
type Client struct {
	httpClient *http.Client
	headers    map[string]string
	maxBytes   int64
	retry      *retry.Config
	logger     logger.Logger
}

// NewClient creates a client from the fetch section of the config
func NewClient(cfg config.FetchConfig, log logger.Logger) *Client {
	if log == nil {
		log = logger.GetLogger()
	}
	log = log.WithField("component", "fetch")

	headers := map[string]string{
		"Accept":          "image/avif,image/webp,image/apng,image/*,*/*;q=0.8",
		"Accept-Language": "en-US,en;q=0.9",
	}
	if cfg.UserAgent != "" {
		headers["User-Agent"] = cfg.UserAgent
	}

	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		headers:    headers,
		maxBytes:   cfg.MaxImageBytes,
		retry: &retry.Config{
			MaxAttempts: attempts,
			Backoff:     &retry.ExponentialBackoff{BaseDelay: cfg.RetryDelay, MaxDelay: 10 * cfg.RetryDelay, Multiplier: 2},
			RetryIf:     retry.DefaultRetryIf,
			Logger:      log,
		},
		logger: log,
	}
}

// SetHTTPClient replaces the underlying transport, mainly for tests
func (c *Client) SetHTTPClient(hc *http.Client) {
	c.httpClient = hc
}

// SetHeader sets a custom header for every request
func (c *Client) SetHeader(key, value string) {
	c.headers[key] = value
}

// Fetch downloads url, retrying transient failures
func (c *Client) Fetch(ctx context.Context, url string) ([]byte, error) {
	return retry.DoWithResult(ctx, func(ctx context.Context) ([]byte, error) {
		return c.fetchOnce(ctx, url)
	}, c.retry)
}

func (c *Client) fetchOnce(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &errs.Error{Type: errs.TypeFetch, Message: "invalid image URL", Code: http.StatusBadRequest, Err: err}
	}
	for key, value := range c.headers {
		req.Header.Set(key, value)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.DebugWithFields("image request failed", map[string]interface{}{
			"url":      url,
			"error":    err.Error(),
			"duration": time.Since(start),
		})
		return nil, errs.Wrap(errs.TypeFetch, "network error", err)
	}
	defer resp.Body.Close()

	if err := checkResponseStatus(resp); err != nil {
		return nil, err
	}

	body := io.Reader(resp.Body)
	if c.maxBytes > 0 {
		body = io.LimitReader(resp.Body, c.maxBytes+1)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, errs.Wrap(errs.TypeFetch, "failed to read image body", err)
	}
	if c.maxBytes > 0 && int64(len(data)) > c.maxBytes {
		return nil, &errs.Error{
			Type:    errs.TypeFetch,
			Message: fmt.Sprintf("image larger than %d bytes", c.maxBytes),
			Code:    http.StatusRequestEntityTooLarge,
		}
	}

	c.logger.DebugWithFields("image downloaded", map[string]interface{}{
		"url":      url,
		"size":     len(data),
		"duration": time.Since(start),
	})
	return data, nil
}

// checkResponseStatus maps non-2xx responses to fetch errors carrying the status
func checkResponseStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	var msg string
	switch resp.StatusCode {
	case http.StatusNotFound, http.StatusGone:
		msg = "image not found"
	case http.StatusUnauthorized, http.StatusForbidden:
		msg = "access denied"
	case http.StatusTooManyRequests:
		msg = "too many requests"
	default:
		if resp.StatusCode >= 500 {
			msg = "server error"
		} else {
			msg = fmt.Sprintf("unexpected status code: %d", resp.StatusCode)
		}
	}
	return &errs.Error{Type: errs.TypeFetch, Message: msg, Code: resp.StatusCode}
}
