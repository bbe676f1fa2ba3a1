package bangumi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
)

const userAgent = "sorabane/bangusync (https://github.com/sorabane/bangusync)"

var (
	// ErrUnauthorized is returned on a 401 from the catalog. It is fatal for
	// the account's subsequent syncs until the token is reconfigured.
	ErrUnauthorized = errors.New("bangumi: unauthorized")

	// ErrNotFound is returned on a 404 from the catalog.
	ErrNotFound = errors.New("bangumi: not found")
)

// transientError marks a response worth retrying (429/5xx/network failure).
type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// IsTransient reports whether an error came from a retryable catalog failure.
func IsTransient(err error) bool {
	var t *transientError
	return errors.As(err, &t)
}

// Client handles communication with the Bangumi API. Episode listings and
// search results are memoized with a short TTL since the same subject is hit
// repeatedly during a sync burst.
type Client struct {
	baseURL    string
	httpClient *http.Client
	cache      *cache.Cache
	logger     *logrus.Logger
	maxRetries uint64
}

// NewClient creates a new Bangumi API client.
func NewClient(baseURL string, logger *logrus.Logger) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		cache:      cache.New(10*time.Minute, 30*time.Minute),
		logger:     logger,
		maxRetries: 3,
	}
}

// doRequest performs one authenticated HTTP request against the API. It
// classifies failures; retry policy is applied by doRequestWithRetry.
func (c *Client) doRequest(ctx context.Context, method, path, token string, body interface{}, result interface{}) error {
	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewBuffer(jsonData)
	}

	fullURL := c.baseURL + path
	c.logger.WithFields(logrus.Fields{
		"method": method,
		"url":    fullURL,
	}).Debug("Making Bangumi API request")

	req, err := http.NewRequestWithContext(ctx, method, fullURL, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &transientError{fmt.Errorf("request failed: %w", err)}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return ErrUnauthorized
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		bodyBytes, _ := io.ReadAll(resp.Body)
		return &transientError{fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(bodyBytes))}
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		bodyBytes, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}

// doRequestWithRetry retries transient failures with capped exponential
// backoff. Auth and client errors are returned immediately.
func (c *Client) doRequestWithRetry(ctx context.Context, method, path, token string, body interface{}, result interface{}) error {
	operation := func() error {
		err := c.doRequest(ctx, method, path, token, body, result)
		if err != nil && !IsTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	policy := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), c.maxRetries)
	err := backoff.Retry(operation, backoff.WithContext(policy, ctx))
	if err != nil && IsTransient(err) {
		c.logger.WithError(err).WithField("path", path).Error("Bangumi request failed after retries")
	}
	return err
}
