// Package convert calls an external document conversion service to turn
// word-processor documents into PDF renditions the gateway accepts.
package convert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

// DefaultBudget bounds the total time spent on one conversion, retries
// included. Conversion is best-effort; callers fall back on failure.
const DefaultBudget = 30 * time.Second

// Client converts documents via an external HTTP service.
type Client struct {
	httpClient *http.Client
	endpoint   string
	budget     time.Duration
	logger     zerolog.Logger
}

// NewClient creates a converter client. An empty endpoint disables
// conversion; ToPDF then fails immediately and callers degrade.
func NewClient(endpoint string, budget time.Duration, logger zerolog.Logger) *Client {
	if budget <= 0 {
		budget = DefaultBudget
	}
	return &Client{
		httpClient: &http.Client{Timeout: budget},
		endpoint:   strings.TrimSuffix(endpoint, "/"),
		budget:     budget,
		logger:     logger.With().Str("component", "converter").Logger(),
	}
}

// Enabled reports whether a converter endpoint is configured.
func (c *Client) Enabled() bool {
	return c != nil && c.endpoint != ""
}

type convertRequest struct {
	URL      string `json:"url"`
	Filename string `json:"filename,omitempty"`
}

type convertResponse struct {
	URL string `json:"url"`
}

// ToPDF converts the document at the given locator and returns the locator
// of the PDF rendition. Retries transient failures with exponential backoff
// inside the client's time budget.
func (c *Client) ToPDF(ctx context.Context, locator, filename string) (string, error) {
	if !c.Enabled() {
		return "", fmt.Errorf("converter: no endpoint configured")
	}

	payload, err := json.Marshal(convertRequest{URL: locator, Filename: filename})
	if err != nil {
		return "", fmt.Errorf("converter: marshal request: %w", err)
	}

	// Create backoff configuration
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = 500 * time.Millisecond
	eb.Multiplier = 2.0
	eb.MaxInterval = 5 * time.Second
	eb.MaxElapsedTime = c.budget
	eb.RandomizationFactor = 0.2
	eb.Reset()

	// Limit max retries
	b := backoff.WithMaxRetries(eb, 3)

	var pdfLocator string
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("converter: create request: %w", err))
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("converter: request failed: %w", err)
		}
		defer resp.Body.Close() //nolint:errcheck // Body close error can be ignored

		if resp.StatusCode >= 400 {
			// Don't retry on 4xx errors (except 429)
			if resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
				return backoff.Permanent(fmt.Errorf("converter: service rejected document: %s", resp.Status))
			}

			c.logger.Warn().Str("status", resp.Status).Str("filename", filename).Msg("Converter error, retrying")
			return fmt.Errorf("converter: service error: %s", resp.Status)
		}

		var out convertResponse
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return fmt.Errorf("converter: decode response: %w", err)
		}
		if out.URL == "" {
			return backoff.Permanent(fmt.Errorf("converter: empty locator in response"))
		}

		pdfLocator = out.URL
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return "", err
	}

	return pdfLocator, nil
}
