// Package fetch turns RSS and Atom feeds into single-page post feeds.
//
// A syndication feed has no cursor, so every fetch returns the whole
// document as one page with an empty next cursor and the feed is exhausted
// after its first page.
package fetch

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/mmcdole/gofeed"

	"github.com/abelbrown/threadline/internal/feed"
	"github.com/abelbrown/threadline/internal/logging"
	"github.com/abelbrown/threadline/internal/pagination"
)

const userAgent = "threadline/" + logging.Version

// Source is one syndication feed.
type Source struct {
	Name string
	URL  string
}

// ID is the feed id for the source.
func (s Source) ID() string {
	return feed.NewID(s.URL, "", nil)
}

// Fetcher downloads and parses syndication feeds.
type Fetcher struct {
	client *http.Client
}

// NewFetcher creates a Fetcher with the given HTTP client timeout.
func NewFetcher(timeout time.Duration) *Fetcher {
	return &Fetcher{
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// For adapts src to the pagination controller. A non-empty cursor never
// happens for a well-behaved caller and yields an empty exhausted page.
func (f *Fetcher) For(src Source) pagination.Fetcher {
	return func(ctx context.Context, cursor string) (feed.Page, error) {
		if cursor != "" {
			return feed.Page{}, nil
		}
		items, err := f.Fetch(ctx, src)
		if err != nil {
			return feed.Page{}, err
		}
		return feed.Page{Items: items}, nil
	}
}

// Fetch retrieves every entry of src as a post item.
func (f *Fetcher) Fetch(ctx context.Context, src Source) ([]feed.Item, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP error: %s", resp.Status)
	}

	parsed, err := gofeed.NewParser().Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed: %w", err)
	}

	now := time.Now()
	items := make([]feed.Item, 0, len(parsed.Items))
	for _, entry := range parsed.Items {
		items = append(items, feed.NewItem(convertEntry(entry, src, now)))
	}
	logging.Debug("rss fetched", "source", src.Name, "items", len(items))
	return items, nil
}

func convertEntry(entry *gofeed.Item, src Source, fetchTime time.Time) feed.Post {
	published := fetchTime
	if entry.PublishedParsed != nil {
		published = *entry.PublishedParsed
	} else if entry.UpdatedParsed != nil {
		published = *entry.UpdatedParsed
	}

	author := ""
	if entry.Author != nil {
		author = entry.Author.Name
	}

	body := entry.Description
	if body == "" && entry.Content != "" {
		body = truncate(entry.Content, 500)
	}

	link := entry.Link
	if link == "" && len(entry.Enclosures) > 0 {
		link = entry.Enclosures[0].URL
	}

	return feed.Post{
		ID:        entryID(entry),
		Title:     entry.Title,
		URL:       link,
		Body:      body,
		Kind:      feed.KindOf("", link),
		Community: src.Name,
		Author:    author,
		Published: published,
	}
}

// entryID derives a stable positive id from the GUID, link, or title and
// date, in that order.
func entryID(entry *gofeed.Item) int64 {
	key := entry.GUID
	if key == "" {
		key = entry.Link
	}
	if key == "" {
		key = entry.Title
		if entry.PublishedParsed != nil {
			key += entry.PublishedParsed.String()
		}
	}
	id := int64(xxhash.Sum64String(key) >> 1)
	if id == 0 {
		id = 1
	}
	return id
}

// truncate shortens a string to maxLen runes, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}
