// Package pagination drives first-page and next-page fetches against the
// feed store.
//
// # Guarantees
//
//   - At most one next-page request per feed id is outstanding. The flag
//     lives on the store entry, so it holds across view remounts.
//   - Every response is checked against the generation captured at
//     dispatch. Responses for a replaced or invalidated feed are dropped
//     without touching the store and without surfacing an error.
//   - Failures leave items and cursor untouched and come back as
//     *FetchError for the caller to show and retry.
package pagination

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/abelbrown/threadline/internal/feed"
	"github.com/abelbrown/threadline/internal/feedstore"
	"github.com/abelbrown/threadline/internal/logging"
)

// maxConcurrentPreloads bounds Preload's fan-out.
const maxConcurrentPreloads = 4

// Fetcher loads the page starting at cursor ("" for the first page).
type Fetcher func(ctx context.Context, cursor string) (feed.Page, error)

// Outcome says what a fetch call did.
type Outcome int

const (
	// OutcomeApplied means a response was written to the store.
	OutcomeApplied Outcome = iota
	// OutcomeCached means the feed was already loaded and no request was made.
	OutcomeCached
	// OutcomeInFlight means another next-page request owns the feed.
	OutcomeInFlight
	// OutcomeExhausted means the current generation has no more pages.
	OutcomeExhausted
	// OutcomeNotLoaded means a next page was asked for before any first page.
	OutcomeNotLoaded
	// OutcomeStale means the response arrived for a superseded generation.
	OutcomeStale
)

func (o Outcome) String() string {
	switch o {
	case OutcomeApplied:
		return "applied"
	case OutcomeCached:
		return "cached"
	case OutcomeInFlight:
		return "in-flight"
	case OutcomeExhausted:
		return "exhausted"
	case OutcomeNotLoaded:
		return "not-loaded"
	case OutcomeStale:
		return "stale"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// Result describes a completed call.
type Result struct {
	Outcome    Outcome
	Added      int
	Exhausted  bool
	Generation uint64
}

// FetchError is a failed page request. The feed is unchanged.
type FetchError struct {
	FeedID string
	Cursor string
	Err    error
}

func (e *FetchError) Error() string {
	if e.Cursor == "" {
		return fmt.Sprintf("fetch first page of %s: %v", e.FeedID, e.Err)
	}
	return fmt.Sprintf("fetch next page of %s: %v", e.FeedID, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Controller orchestrates fetches for every feed in one store.
type Controller struct {
	store *feedstore.Store
	first singleflight.Group
}

// New creates a controller over store.
func New(store *feedstore.Store) *Controller {
	return &Controller{store: store}
}

// Store returns the underlying feed store.
func (c *Controller) Store() *feedstore.Store {
	return c.store
}

type firstPageOptions struct {
	force bool
}

// FirstPageOption tunes FetchFirstPage.
type FirstPageOption func(*firstPageOptions)

// Force skips the cache-reuse check and always replaces from the network.
func Force() FirstPageOption {
	return func(o *firstPageOptions) { o.force = true }
}

// FetchFirstPage replaces the feed with its first page. A feed that is
// already loaded is reused without a request unless Force is given.
// Concurrent calls for one id share a single request, which runs detached
// from any one caller's cancellation; a cancelled caller stops waiting.
func (c *Controller) FetchFirstPage(ctx context.Context, feedID string, fetch Fetcher, opts ...FirstPageOption) (Result, error) {
	var o firstPageOptions
	for _, opt := range opts {
		opt(&o)
	}

	if !o.force {
		if f, ok := c.store.Get(feedID); ok && f.Loaded {
			return Result{Outcome: OutcomeCached, Exhausted: f.Exhausted(), Generation: f.Generation}, nil
		}
	}

	// A forced call never joins a request started before it, but later
	// unforced callers join the forced one.
	if o.force {
		c.first.Forget(feedID)
	}
	shared := context.WithoutCancel(ctx)
	ch := c.first.DoChan(feedID, func() (any, error) {
		return c.fetchFirst(shared, feedID, fetch)
	})
	select {
	case r := <-ch:
		if r.Err != nil {
			return Result{}, r.Err
		}
		return r.Val.(Result), nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

func (c *Controller) fetchFirst(ctx context.Context, feedID string, fetch Fetcher) (Result, error) {
	gen := c.store.Generation(feedID)
	start := time.Now()
	logging.Debug("fetch first page", "feed", feedID, "generation", gen)

	page, err := fetch(ctx, "")
	if err != nil {
		logging.Warn("first page failed", "feed", feedID, "error", err)
		return Result{}, &FetchError{FeedID: feedID, Err: err}
	}

	applied, added := c.store.PutIfGeneration(feedID, gen, page.Items, page.Next, true)
	if !applied {
		logging.Debug("discarding stale first page", "feed", feedID, "generation", gen)
		return Result{Outcome: OutcomeStale, Generation: gen}, nil
	}

	logging.Debug("first page applied", "feed", feedID, "items", added, "next", page.Next, "took", time.Since(start))
	return Result{
		Outcome:    OutcomeApplied,
		Added:      added,
		Exhausted:  page.Next == "",
		Generation: gen + 1,
	}, nil
}

// FetchNextPage appends the page after the stored cursor. Calls made while
// a request for the same feed is outstanding return OutcomeInFlight and do
// nothing.
func (c *Controller) FetchNextPage(ctx context.Context, feedID string, fetch Fetcher) (Result, error) {
	cursor, gen, status := c.store.BeginNextPage(feedID)
	switch status {
	case feedstore.NextInFlight:
		return Result{Outcome: OutcomeInFlight, Generation: gen}, nil
	case feedstore.NextExhausted:
		return Result{Outcome: OutcomeExhausted, Exhausted: true, Generation: gen}, nil
	case feedstore.NextNotLoaded:
		return Result{Outcome: OutcomeNotLoaded, Generation: gen}, nil
	}

	logging.Debug("fetch next page", "feed", feedID, "cursor", cursor, "generation", gen)
	page, err := fetch(ctx, cursor)
	if err != nil {
		c.store.FinishNextPage(feedID, gen, nil)
		logging.Warn("next page failed", "feed", feedID, "cursor", cursor, "error", err)
		return Result{Generation: gen}, &FetchError{FeedID: feedID, Cursor: cursor, Err: err}
	}

	applied, added := c.store.FinishNextPage(feedID, gen, &page)
	if !applied {
		logging.Debug("discarding stale next page", "feed", feedID, "generation", gen)
		return Result{Outcome: OutcomeStale, Generation: gen}, nil
	}
	return Result{
		Outcome:    OutcomeApplied,
		Added:      added,
		Exhausted:  page.Next == "",
		Generation: gen,
	}, nil
}

// Reload invalidates the feed and fetches its first page again.
func (c *Controller) Reload(ctx context.Context, feedID string, fetch Fetcher) (Result, error) {
	c.store.Invalidate(feedID)
	return c.FetchFirstPage(ctx, feedID, fetch, Force())
}

// Request pairs a feed id with its fetcher for Preload.
type Request struct {
	FeedID string
	Fetch  Fetcher
}

// Preload loads the first page of every request concurrently. A failing
// feed does not stop the others; their errors are joined.
func (c *Controller) Preload(ctx context.Context, reqs []Request) error {
	var g errgroup.Group
	g.SetLimit(maxConcurrentPreloads)

	errs := make([]error, len(reqs))
	for i, req := range reqs {
		g.Go(func() error {
			if ctx.Err() != nil {
				errs[i] = ctx.Err()
				return nil
			}
			_, errs[i] = c.FetchFirstPage(ctx, req.FeedID, req.Fetch)
			return nil
		})
	}
	_ = g.Wait()

	return errors.Join(errs...)
}
