// Package datasource fetches for-sale listings from the RapidAPI Zillow
// search endpoint and maps them onto models.Property.
package datasource

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/srrmlwn/dealflowanalyzer.ai/pkg/models"
)

// PropertySource yields listings for a search. *Zillow implements it.
type PropertySource interface {
	// Search fetches one page of results.
	Search(ctx context.Context, params SearchParams) (*SearchPage, error)

	// SearchBuybox fetches every page for the buybox's criteria.
	SearchBuybox(ctx context.Context, b models.Buybox) ([]models.Property, error)
}

// --- Sentinel errors ---

// ErrRateLimited is returned when the API answers 429.
var ErrRateLimited = errors.New("rate limited by listing API")

// ErrUnauthorized is returned when the API rejects the key.
var ErrUnauthorized = errors.New("invalid listing API key")

// ErrNotConfigured is returned when no API key is set. It wraps
// models.ErrConfiguration.
var ErrNotConfigured = fmt.Errorf("%w: listing API key is not set", models.ErrConfiguration)

// ErrHTTP wraps an HTTP error with status code.
type ErrHTTP struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *ErrHTTP) Error() string {
	return fmt.Sprintf("HTTP %d %s: %s", e.StatusCode, e.Status, e.Body)
}

// classify maps well-known statuses onto sentinel errors.
func classify(err error) error {
	var he *ErrHTTP
	if !errors.As(err, &he) {
		return err
	}
	switch he.StatusCode {
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %v", ErrRateLimited, err)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	return err
}

// --- Shared HTTP client helpers ---

// DefaultTimeout bounds a single listing request.
const DefaultTimeout = 30 * time.Second

// doGet performs a GET request with the given headers and returns the
// response body. The caller closes it.
func doGet(ctx context.Context, client *http.Client, url string, headers map[string]string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP GET %s: %w", req.URL.Path, err)
	}

	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, &ErrHTTP{
			StatusCode: resp.StatusCode,
			Status:     http.StatusText(resp.StatusCode),
			Body:       string(body),
		}
	}
	return resp.Body, nil
}
