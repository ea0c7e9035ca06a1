package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/abelbrown/threadline/internal/feed"
	"github.com/abelbrown/threadline/internal/feedstore"
	"github.com/abelbrown/threadline/internal/pagination"
)

const testRSS = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
  <channel>
    <title>Test Feed</title>
    <item>
      <title>Article 1</title>
      <link>http://example.com/article1</link>
      <description>First article</description>
      <pubDate>Mon, 01 Jan 2024 12:00:00 GMT</pubDate>
    </item>
    <item>
      <title>Chart</title>
      <link>http://example.com/chart.png</link>
      <pubDate>Mon, 01 Jan 2024 11:00:00 GMT</pubDate>
    </item>
  </channel>
</rss>`

func rssServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server
}

func TestFetchConvertsEntries(t *testing.T) {
	server := rssServer(t, testRSS)
	items, err := NewFetcher(5*time.Second).Fetch(context.Background(), Source{Name: "Test Feed", URL: server.URL})
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}

	first := items[0].Payload.(feed.Post)
	if first.Title != "Article 1" || first.URL != "http://example.com/article1" {
		t.Errorf("unexpected post %+v", first)
	}
	if first.Community != "Test Feed" {
		t.Errorf("community = %q", first.Community)
	}
	if first.Kind != feed.PostLink {
		t.Errorf("kind = %q, want link", first.Kind)
	}
	if items[1].Payload.(feed.Post).Kind != feed.PostImage {
		t.Error("image link not classified as image")
	}
	if first.Published.Year() != 2024 {
		t.Errorf("published = %v", first.Published)
	}
}

func TestFetchErrors(t *testing.T) {
	notFound := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer notFound.Close()

	f := NewFetcher(time.Second)
	for name, url := range map[string]string{
		"404":     notFound.URL,
		"invalid": rssServer(t, "not valid xml").URL,
		"refused": "http://127.0.0.1:1/feed",
	} {
		if _, err := f.Fetch(context.Background(), Source{Name: name, URL: url}); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestEntryIDDeterministic(t *testing.T) {
	server := rssServer(t, testRSS)
	f := NewFetcher(time.Second)
	src := Source{Name: "Test", URL: server.URL}

	a, _ := f.Fetch(context.Background(), src)
	b, _ := f.Fetch(context.Background(), src)
	if a[0].Key != b[0].Key {
		t.Error("keys should be deterministic for the same link")
	}
	if a[0].Key == a[1].Key {
		t.Error("different entries share a key")
	}
}

func TestForIsSinglePage(t *testing.T) {
	server := rssServer(t, testRSS)
	src := Source{Name: "Test", URL: server.URL}

	store := feedstore.New()
	defer store.Close()
	ctl := pagination.New(store)
	fetcher := NewFetcher(time.Second).For(src)

	res, err := ctl.FetchFirstPage(context.Background(), src.ID(), fetcher)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Exhausted {
		t.Error("rss feed should be exhausted after one page")
	}
	res, _ = ctl.FetchNextPage(context.Background(), src.ID(), fetcher)
	if res.Outcome != pagination.OutcomeExhausted {
		t.Errorf("next page outcome = %v", res.Outcome)
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		input    string
		maxLen   int
		expected string
	}{
		{"hello", 10, "hello"},
		{"hello world", 8, "hello..."},
		{"hi", 2, "hi"},
		{"hi", 1, "h"},
		{"", 5, ""},
	}

	for _, tc := range tests {
		result := truncate(tc.input, tc.maxLen)
		if result != tc.expected {
			t.Errorf("truncate(%q, %d) = %q, want %q", tc.input, tc.maxLen, result, tc.expected)
		}
	}
}
