package trakt

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
)

const (
	defaultBaseURL = "https://api.trakt.tv"
	apiVersion     = "2"

	// historyPageSize is the number of history entries fetched per page.
	historyPageSize = 100
)

// ErrUnauthorized means the access token was rejected. It is not retried; the
// account is flagged disconnected until the user re-authorizes.
var ErrUnauthorized = errors.New("trakt: unauthorized")

type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// Client talks to the Trakt API. Tokens live in the database, not in the
// client: every call takes the access token of the account it acts for.
type Client struct {
	baseURL      string
	clientID     string
	clientSecret string
	redirectURL  string
	httpClient   *http.Client
	logger       *logrus.Logger
	maxRetries   uint64
}

// NewClient creates a Trakt API client for the registered application.
func NewClient(clientID, clientSecret, redirectURL string, logger *logrus.Logger) *Client {
	return &Client{
		baseURL:      defaultBaseURL,
		clientID:     clientID,
		clientSecret: clientSecret,
		redirectURL:  redirectURL,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		logger:       logger,
		maxRetries:   3,
	}
}

// Enabled reports whether application credentials are configured at all.
func (c *Client) Enabled() bool {
	return c.clientID != "" && c.clientSecret != ""
}

// HistoryShow is the show part of a history entry.
type HistoryShow struct {
	Title string `json:"title"`
	Year  int    `json:"year"`
}

// HistoryEpisode is the episode part of a history entry.
type HistoryEpisode struct {
	Season     int    `json:"season"`
	Number     int    `json:"number"`
	Title      string `json:"title"`
	FirstAired string `json:"first_aired"`
}

// HistoryItem is one entry of a user's watch history.
type HistoryItem struct {
	ID        int64          `json:"id"`
	WatchedAt time.Time      `json:"watched_at"`
	Type      string         `json:"type"` // "episode" or "movie"
	Episode   HistoryEpisode `json:"episode"`
	Show      HistoryShow    `json:"show"`
}

// HistoryPage is one fetched page plus the pagination envelope.
type HistoryPage struct {
	Items     []HistoryItem
	Page      int
	PageCount int
}

// History fetches one page of the account's watch history, newest entries
// first. Movie entries come back too and are skipped downstream. startAt
// bounds the query when non-zero.
func (c *Client) History(ctx context.Context, accessToken string, startAt time.Time, page int) (*HistoryPage, error) {
	query := url.Values{}
	query.Set("page", strconv.Itoa(page))
	query.Set("limit", strconv.Itoa(historyPageSize))
	query.Set("extended", "full")
	if !startAt.IsZero() {
		query.Set("start_at", startAt.UTC().Format(time.RFC3339))
	}

	path := "/sync/history?" + query.Encode()

	var items []HistoryItem
	header, err := c.doRequestWithRetry(ctx, http.MethodGet, path, accessToken, nil, &items)
	if err != nil {
		return nil, err
	}

	pageCount, _ := strconv.Atoi(header.Get("X-Pagination-Page-Count"))
	if pageCount < 1 {
		pageCount = 1
	}
	return &HistoryPage{Items: items, Page: page, PageCount: pageCount}, nil
}

// doRequestWithRetry wraps doRequest in exponential backoff for transient
// failures. Auth failures and client errors bail out immediately.
func (c *Client) doRequestWithRetry(ctx context.Context, method, path, accessToken string, body, result interface{}) (http.Header, error) {
	var header http.Header
	operation := func() error {
		h, err := c.doRequest(ctx, method, path, accessToken, body, result)
		if err != nil {
			if IsTransient(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		header = h
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), c.maxRetries), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return nil, err
	}
	return header, nil
}

func (c *Client) doRequest(ctx context.Context, method, path, accessToken string, body, result interface{}) (http.Header, error) {
	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewBuffer(jsonData)
	}

	fullURL := c.baseURL + path
	c.logger.WithFields(logrus.Fields{
		"method": method,
		"url":    fullURL,
	}).Debug("Making Trakt API request")

	req, err := http.NewRequestWithContext(ctx, method, fullURL, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("trakt-api-version", apiVersion)
	req.Header.Set("trakt-api-key", c.clientID)
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &transientError{err: fmt.Errorf("request failed: %w", err)}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, ErrUnauthorized
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, &transientError{err: fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(bodyBytes))}
	default:
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return nil, fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return resp.Header, nil
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	var te *transientError
	return errors.As(err, &te)
}
