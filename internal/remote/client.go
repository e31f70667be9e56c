// Package remote wraps the authoritative backend's REST endpoints.
//
// The client is stateless: it attaches a bearer token per request, retries
// transient failures with exponential backoff, and never writes to the local
// store. Remote records are inputs to the conflict resolver, nothing more.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/fintrackapp/fintrack/internal/model"
)

// TokenFunc supplies the bearer token for a request. Returning an error
// aborts the request without retrying.
type TokenFunc func(ctx context.Context) (string, error)

// StatusError is a non-2xx response from the backend.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("remote returned %d: %s", e.Code, e.Body)
}

// retryable reports whether the status is worth retrying. Client errors are
// permanent; the server won't change its mind about a 400.
func (e *StatusError) retryable() bool {
	return e.Code >= 500 || e.Code == http.StatusTooManyRequests
}

// Config holds configuration for the remote client.
type Config struct {
	// BaseURL is the backend root, e.g. "https://api.fintrack.app/v1".
	BaseURL string

	// Token supplies the bearer token per request.
	Token TokenFunc

	// HTTPClient is the transport (default: 15s timeout client).
	HTTPClient *http.Client

	// MaxTries bounds retry attempts per call (default: 3).
	MaxTries uint

	// Logger for request activity (default: stderr logger).
	Logger *log.Logger
}

// Client is a stateless HTTP client for the per-entity REST endpoints.
type Client struct {
	baseURL  string
	token    TokenFunc
	http     *http.Client
	maxTries uint
	logger   *log.Logger
}

// NewClient creates a remote client.
func NewClient(config *Config) (*Client, error) {
	if config == nil || config.BaseURL == "" {
		return nil, fmt.Errorf("base URL cannot be empty")
	}
	if config.Token == nil {
		return nil, fmt.Errorf("token func cannot be nil")
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	maxTries := config.MaxTries
	if maxTries == 0 {
		maxTries = 3
	}
	logger := config.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[remote] ", log.LstdFlags)
	}

	return &Client{
		baseURL:  config.BaseURL,
		token:    config.Token,
		http:     httpClient,
		maxTries: maxTries,
		logger:   logger,
	}, nil
}

// List fetches the authenticated principal's collection for a table, ordered
// by updated_at descending. The principal scoping is server-side, keyed off
// the bearer token.
func (c *Client) List(ctx context.Context, table model.Table) ([]Record, error) {
	body, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/%s?order=updated_at.desc", table), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", table, err)
	}

	var records []Record
	if err := json.Unmarshal(body, &records); err != nil {
		return nil, fmt.Errorf("failed to decode %s list: %w", table, err)
	}
	return records, nil
}

// Create persists a new record and returns the authoritative copy, including
// the server-assigned id.
func (c *Client) Create(ctx context.Context, table model.Table, payload json.RawMessage) (*Record, error) {
	body, err := c.do(ctx, http.MethodPost, fmt.Sprintf("/%s", table), payload)
	if err != nil {
		return nil, fmt.Errorf("failed to create in %s: %w", table, err)
	}
	return decodeRecord(body)
}

// Update patches an existing record by its remote identifier.
func (c *Client) Update(ctx context.Context, table model.Table, cloudID string, payload json.RawMessage) (*Record, error) {
	body, err := c.do(ctx, http.MethodPatch, fmt.Sprintf("/%s/%s", table, cloudID), payload)
	if err != nil {
		return nil, fmt.Errorf("failed to update %s/%s: %w", table, cloudID, err)
	}
	return decodeRecord(body)
}

// Delete removes a record by its remote identifier. A 404 is treated as
// success; the record is gone either way.
func (c *Client) Delete(ctx context.Context, table model.Table, cloudID string) error {
	_, err := c.do(ctx, http.MethodDelete, fmt.Sprintf("/%s/%s", table, cloudID), nil)
	var statusErr *StatusError
	if errors.As(err, &statusErr) && statusErr.Code == http.StatusNotFound {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to delete %s/%s: %w", table, cloudID, err)
	}
	return nil
}

// do performs one HTTP call with bounded retry. Transient failures (network
// errors, 5xx, 429) are retried with exponential backoff; everything else is
// surfaced immediately.
func (c *Client) do(ctx context.Context, method, path string, payload json.RawMessage) ([]byte, error) {
	operation := func() ([]byte, error) {
		body, err := c.doOnce(ctx, method, path, payload)
		if statusErr, ok := err.(*StatusError); ok && !statusErr.retryable() {
			return nil, backoff.Permanent(err)
		}
		return body, err
	}

	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(c.maxTries))
}

func (c *Client) doOnce(ctx context.Context, method, path string, payload json.RawMessage) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("failed to build request: %w", err))
	}

	token, err := c.token(ctx)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("failed to get token: %w", err))
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Printf("%s %s failed: %v", method, path, err)
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		statusErr := &StatusError{Code: resp.StatusCode, Body: string(body)}
		if statusErr.retryable() {
			c.logger.Printf("%s %s returned %d, will retry", method, path, resp.StatusCode)
		}
		return nil, statusErr
	}

	return body, nil
}
