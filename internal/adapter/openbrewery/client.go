package openbrewery

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/couchcryptid/brewery-data-etl/internal/domain"
)

// maxErrorBody caps how much of a failed response is kept for logs and errors.
const maxErrorBody = 1024

// StatusError is returned when the API answers with a non-200 status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("open brewery API error: status %d: %s", e.StatusCode, e.Body)
}

// Client fetches brewery records from the Open Brewery DB API.
type Client struct {
	url        string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a client for url. Every request is bounded by timeout.
func NewClient(url string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		url: url,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// FetchBreweries issues a single GET and returns the decoded records.
// A non-200 response yields a *StatusError.
func (c *Client) FetchBreweries(ctx context.Context) ([]domain.Record, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("brewery request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		c.logger.Error("unexpected error when retrieving API data",
			"status_code", resp.StatusCode,
			"body", string(body),
		)
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()

	var records []domain.Record
	if err := dec.Decode(&records); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	c.logger.Info("api data retrieved",
		"status_code", resp.StatusCode,
		"records", len(records),
	)
	return records, nil
}
