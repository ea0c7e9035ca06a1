// Package api talks to the link-aggregator server: paged listings and the
// vote, hide and delete mutations.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/abelbrown/threadline/internal/feed"
	"github.com/abelbrown/threadline/internal/logging"
	"github.com/abelbrown/threadline/internal/pagination"
)

// DefaultPageSize is sent as limit when a source does not set one.
const DefaultPageSize = 20

// ErrRejected is returned when the server answers a hide or delete with
// success=false.
var ErrRejected = errors.New("server rejected the request")

// StatusError is a non-retryable HTTP failure.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server error (status %d): %s", e.Status, e.Body)
}

// Client is an authenticated, rate-limited server client.
type Client struct {
	baseURL  string
	token    string
	client   *http.Client
	limiter  *rate.Limiter
	backoffs []time.Duration
}

// NewClient creates a client for baseURL. rps <= 0 disables rate limiting.
func NewClient(baseURL, token string, rps float64) *Client {
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		token:    token,
		client:   &http.Client{Timeout: 30 * time.Second},
		limiter:  rate.NewLimiter(limit, 1),
		backoffs: []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second},
	}
}

// Source describes one listing endpoint.
type Source struct {
	Endpoint string
	Sort     string
	Filters  map[string]string
	Limit    int
}

// ID is the feed id this source maps to.
func (s Source) ID() string {
	return feed.NewID(s.Endpoint, s.Sort, s.Filters)
}

func (c *Client) listURL(src Source, cursor string) string {
	q := url.Values{}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	limit := src.Limit
	if limit <= 0 {
		limit = DefaultPageSize
	}
	q.Set("limit", strconv.Itoa(limit))
	if src.Sort != "" {
		q.Set("sort", src.Sort)
	}
	keys := make([]string, 0, len(src.Filters))
	for k := range src.Filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		q.Set(k, src.Filters[k])
	}
	return c.baseURL + "/" + strings.TrimLeft(src.Endpoint, "/") + "?" + q.Encode()
}

// Fetcher returns the page loader for src.
func (c *Client) Fetcher(src Source) pagination.Fetcher {
	return func(ctx context.Context, cursor string) (feed.Page, error) {
		body, err := c.do(ctx, http.MethodGet, c.listURL(src, cursor), nil)
		if err != nil {
			return feed.Page{}, err
		}
		return decodePage(body)
	}
}

// CastVote sets the caller's vote on item and returns the server's copy.
func (c *Client) CastVote(ctx context.Context, item feed.Item, score feed.VoteState) (feed.Item, error) {
	body, err := c.post(ctx, "/vote", voteRequest{
		Type:  string(item.Type),
		ID:    item.Payload.ServerID(),
		Score: int(score),
	})
	if err != nil {
		return feed.Item{}, err
	}
	var resp wireEntry
	if err := json.Unmarshal(body, &resp); err != nil {
		return feed.Item{}, fmt.Errorf("parse vote response: %w", err)
	}
	it, err := resp.decode()
	if err != nil {
		return feed.Item{}, err
	}
	if it.Key != item.Key {
		return feed.Item{}, fmt.Errorf("vote response for %s, expected %s", it.Key, item.Key)
	}
	return it, nil
}

// Hide hides item for the caller.
func (c *Client) Hide(ctx context.Context, item feed.Item) error {
	return c.flag(ctx, "/hide", flagRequest{Type: string(item.Type), ID: item.Payload.ServerID(), Hidden: true})
}

// Delete deletes item.
func (c *Client) Delete(ctx context.Context, item feed.Item) error {
	return c.flag(ctx, "/delete", flagRequest{Type: string(item.Type), ID: item.Payload.ServerID(), Deleted: true})
}

func (c *Client) flag(ctx context.Context, path string, req flagRequest) error {
	body, err := c.post(ctx, path, req)
	if err != nil {
		return err
	}
	var resp successResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("parse %s response: %w", path, err)
	}
	if !resp.Success {
		return ErrRejected
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, v any) ([]byte, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	return c.do(ctx, http.MethodPost, c.baseURL+path, payload)
}

// do waits on the limiter and runs the request, retrying up to three
// times on transport errors, 429 and 5xx with 1s/2s/4s backoff. Retry-After
// on 429 replaces the backoff, capped at 30s.
func (c *Client) do(ctx context.Context, method, target string, payload []byte) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	maxRetries := len(c.backoffs)
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		var rd io.Reader
		if payload != nil {
			rd = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, target, rd)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		req.Header.Set("Accept", "application/json")
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}

		delay := time.Duration(0)
		if attempt < maxRetries {
			delay = c.backoffs[attempt]
		}

		resp, err := c.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("request cancelled: %w", ctx.Err())
			}
			lastErr = fmt.Errorf("request failed: %w", err)
			if err := c.wait(ctx, attempt, delay); err != nil {
				return nil, err
			}
			continue
		}

		body, readErr := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
		resp.Body.Close()
		if readErr != nil {
			lastErr = fmt.Errorf("read response: %w", readErr)
			if err := c.wait(ctx, attempt, delay); err != nil {
				return nil, err
			}
			continue
		}

		if resp.StatusCode == http.StatusOK {
			return body, nil
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			lastErr = &StatusError{Status: resp.StatusCode, Body: string(body)}
			if resp.StatusCode == http.StatusTooManyRequests {
				if ra := resp.Header.Get("Retry-After"); ra != "" {
					if seconds, parseErr := strconv.Atoi(ra); parseErr == nil && seconds > 0 {
						delay = min(time.Duration(seconds)*time.Second, 30*time.Second)
					}
				}
			}
			logging.Debug("retrying request", "method", method, "url", target, "status", resp.StatusCode, "attempt", attempt+1)
			if err := c.wait(ctx, attempt, delay); err != nil {
				return nil, err
			}
			continue
		}

		return nil, &StatusError{Status: resp.StatusCode, Body: string(body)}
	}

	return nil, fmt.Errorf("request failed after %d retries: %w", maxRetries, lastErr)
}

func (c *Client) wait(ctx context.Context, attempt int, delay time.Duration) error {
	if attempt >= len(c.backoffs) {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(delay):
		return nil
	}
}
