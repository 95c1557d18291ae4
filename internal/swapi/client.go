// Package swapi reads paginated collections from the Star Wars API and maps
// its records into catalog models.
package swapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/http"
	"strings"
	"time"

	"github.com/avast/retry-go"
	"github.com/rs/zerolog"
)

const DefaultBaseURL = "https://swapi.dev/api/"

// Upstream collection names.
const (
	People    = "people"
	Films     = "films"
	Starships = "starships"
)

// Client walks SWAPI collections page by page.
type Client struct {
	BaseURL  string
	HTTP     *http.Client
	Attempts uint          // tries per page, including the first
	Delay    time.Duration // base delay between tries
	Log      zerolog.Logger
}

func NewClient(baseURL string, log zerolog.Logger) *Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		BaseURL:  baseURL,
		HTTP:     &http.Client{Timeout: 15 * time.Second},
		Attempts: 3,
		Delay:    500 * time.Millisecond,
		Log:      log,
	}
}

// StatusError is returned when upstream answers with a non-2xx status.
type StatusError struct {
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("swapi: GET %s: status %d: %s", e.URL, e.StatusCode, e.Body)
}

type page struct {
	Results []json.RawMessage `json:"results"`
	Next    *string           `json:"next"`
}

// CollectionURL returns the first page URL of a collection.
func (c *Client) CollectionURL(collection string) string {
	return strings.TrimRight(c.BaseURL, "/") + "/" + strings.Trim(collection, "/") + "/"
}

// Records lazily yields the raw records of a collection, requesting the next
// page only once the current one is consumed. With limit > 0 at most limit
// records are yielded and no page beyond the one that fills the quota is
// requested.
//
// A page that cannot be fetched or decoded ends the sequence with a single
// (nil, err) pair; records yielded before it remain valid. A failing first
// page therefore yields nothing but the error.
func (c *Client) Records(ctx context.Context, collection string, limit int) iter.Seq2[json.RawMessage, error] {
	return func(yield func(json.RawMessage, error) bool) {
		next := c.CollectionURL(collection)
		seen := make(map[string]struct{})
		count := 0

		for next != "" {
			if limit > 0 && count >= limit {
				return
			}
			if _, dup := seen[next]; dup {
				c.Log.Warn().Str("url", next).Msg("pagination loops back to a visited page; stopping")
				return
			}
			seen[next] = struct{}{}

			p, err := c.fetchPage(ctx, next)
			if err != nil {
				yield(nil, fmt.Errorf("fetch %s page %d: %w", collection, len(seen), err))
				return
			}

			results := p.Results
			if limit > 0 && len(results) > limit-count {
				results = results[:limit-count]
			}
			for _, rec := range results {
				count++
				if !yield(rec, nil) {
					return
				}
			}

			next = ""
			if p.Next != nil {
				next = strings.TrimSpace(*p.Next)
			}
		}
	}
}

// FetchAll collects Records into a slice. The returned records are always
// usable; a non-nil error only says that pagination stopped early.
func (c *Client) FetchAll(ctx context.Context, collection string, limit int) ([]json.RawMessage, error) {
	var out []json.RawMessage
	for rec, err := range c.Records(ctx, collection, limit) {
		if err != nil {
			return out, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (c *Client) fetchPage(ctx context.Context, url string) (*page, error) {
	attempts := c.Attempts
	if attempts == 0 {
		attempts = 1
	}

	var p *page
	err := retry.Do(
		func() error {
			var err error
			p, err = c.getPage(ctx, url)
			return err
		},
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(c.Delay),
		retry.LastErrorOnly(true),
		retry.RetryIf(retryable),
		retry.OnRetry(func(n uint, err error) {
			c.Log.Debug().Err(err).Uint("attempt", n+1).Str("url", url).Msg("retrying page")
		}),
	)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (c *Client) getPage(ctx context.Context, url string) (*page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &StatusError{URL: url, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var p page
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return nil, &decodeError{err: err}
	}
	if p.Results == nil {
		return nil, &decodeError{err: errors.New(`missing "results"`)}
	}
	return &p, nil
}

type decodeError struct{ err error }

func (e *decodeError) Error() string { return "decode page: " + e.err.Error() }
func (e *decodeError) Unwrap() error { return e.err }

// retryable reports whether a page error is worth another try: transport
// failures, 5xx and 429. Bad bodies and other statuses are final.
func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var de *decodeError
	if errors.As(err, &de) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode >= 500 || se.StatusCode == http.StatusTooManyRequests
	}
	return true
}
