// Package feed provides the quote transports for the monitoring loop: a
// REST client against a quote aggregator API and a WebSocket push feed.
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/quantrend/dexarb/internal/crypto"
	"github.com/quantrend/dexarb/internal/domain"
)

const (
	// requestTimeout bounds a single quote request.
	requestTimeout = 10 * time.Second

	// transientRetries is how many times a transient failure is retried
	// within one FetchQuote call before the error is surfaced.
	transientRetries = 2

	// retryBackoff is the pause between transient retries.
	retryBackoff = 250 * time.Millisecond
)

// Client fetches venue quotes from an aggregator REST API. One aggregator
// serves all venues; the venue is a path segment on the quote endpoint.
type Client struct {
	baseURL    string
	httpClient *http.Client
	auth       *crypto.HMACAuth
	logger     *slog.Logger
}

// NewClient creates a quote client for the given API root,
// e.g. "https://quotes.example.com".
func NewClient(logger *slog.Logger, baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: requestTimeout,
		},
		logger: logger.With(slog.String("component", "feed")),
	}
}

// SetAuth attaches HMAC credentials. Without them requests go out unsigned,
// which public aggregator tiers accept at lower rate limits.
func (c *Client) SetAuth(auth *crypto.HMACAuth) { c.auth = auth }

// quoteResponse is the aggregator's wire format for a single quote.
type quoteResponse struct {
	Venue     string  `json:"venue"`
	Price     float64 `json:"price"`
	Timestamp int64   `json:"timestamp"` // unix milliseconds
}

// FetchQuote returns the current price of pair.Base denominated in
// pair.Quote on the given venue. Transient failures (network errors, 5xx,
// 429) are retried a couple of times and then surfaced wrapping
// ErrTransientFetch or ErrRateLimited so the polling loop can defer to the
// next tick.
func (c *Client) FetchQuote(ctx context.Context, venue domain.Venue, pair domain.TokenPair) (domain.PricePoint, error) {
	path := "/v1/quote/" + url.PathEscape(venue.ID)
	query := url.Values{
		"base":  {strings.ToLower(pair.Base.Address.Hex())},
		"quote": {strings.ToLower(pair.Quote.Address.Hex())},
	}

	var lastErr error
	for attempt := 0; attempt <= transientRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return domain.PricePoint{}, ctx.Err()
			case <-time.After(retryBackoff * time.Duration(attempt)):
			}
		}

		body, err := c.get(ctx, path, query)
		if err != nil {
			lastErr = err
			if isTransient(err) {
				c.logger.Debug("quote fetch retrying",
					slog.String("venue", venue.ID),
					slog.String("pair", pair.Key()),
					slog.Int("attempt", attempt+1),
					slog.String("error", err.Error()))
				continue
			}
			return domain.PricePoint{}, fmt.Errorf("feed: quote %s on %s: %w", pair.String(), venue.ID, err)
		}

		var q quoteResponse
		if err := json.Unmarshal(body, &q); err != nil {
			return domain.PricePoint{}, fmt.Errorf("feed: decode quote: %w", err)
		}
		if q.Price <= 0 {
			return domain.PricePoint{}, fmt.Errorf("feed: aggregator returned non-positive price %v for %s on %s", q.Price, pair.String(), venue.ID)
		}

		ts := time.UnixMilli(q.Timestamp).UTC()
		if q.Timestamp == 0 {
			ts = time.Now().UTC()
		}

		return domain.PricePoint{
			Price:     q.Price,
			Timestamp: ts,
			VenueID:   venue.ID,
		}, nil
	}

	return domain.PricePoint{}, fmt.Errorf("feed: quote %s on %s: %w", pair.String(), venue.ID, lastErr)
}

// get issues a GET against the aggregator and returns the raw body.
func (c *Client) get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	if c.auth != nil {
		for k, v := range c.auth.Headers(http.MethodGet, path, "") {
			req.Header.Set(k, v)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrTransientFetch, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", domain.ErrTransientFetch, err)
	}

	if err := checkHTTPStatus(resp.StatusCode, body); err != nil {
		return nil, err
	}

	return body, nil
}

// checkHTTPStatus maps non-2xx status codes to domain errors.
func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	bodyStr := string(body)
	switch {
	case statusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, bodyStr)
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, bodyStr)
	case statusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, bodyStr)
	case statusCode >= 500:
		return fmt.Errorf("%w: HTTP %d: %s", domain.ErrTransientFetch, statusCode, bodyStr)
	default:
		return fmt.Errorf("HTTP %d: %s", statusCode, bodyStr)
	}
}

// isTransient reports whether the polling loop should retry the request.
func isTransient(err error) bool {
	return errors.Is(err, domain.ErrTransientFetch) || errors.Is(err, domain.ErrRateLimited)
}
