package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/abelbrown/threadline/internal/feed"
	"github.com/abelbrown/threadline/internal/optimistic"
)

var _ optimistic.Server = (*Client)(nil)

func testClient(url string) *Client {
	c := NewClient(url, "test-token", 0)
	c.backoffs = []time.Duration{time.Millisecond, time.Millisecond, time.Millisecond}
	return c
}

const mixedPage = `{
  "items": [
    {"type": "post", "item": {"id": 1, "title": "Hello", "url": "https://example.com/a.png", "upvotes": 5, "downvotes": 1, "my_vote": 1}},
    {"type": "comment", "item": {"id": 1, "post_id": 1, "body": "first"}},
    {"type": "video", "item": {"id": 9}},
    {"type": "community", "item": {"name": "golang"}},
    {"type": "list", "item": {"id": 3, "name": "saved", "count": 2}}
  ],
  "next": "c1"
}`

func TestFetcherDecodesMixedPage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if req.URL.Path != "/c/golang" {
			t.Errorf("path = %q", req.URL.Path)
		}
		q := req.URL.Query()
		if q.Get("cursor") != "" || q.Get("limit") != "20" || q.Get("sort") != "hot" || q.Get("type") != "all" {
			t.Errorf("query = %v", q)
		}
		if got := req.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("Authorization = %q", got)
		}
		w.Write([]byte(mixedPage))
	}))
	defer server.Close()

	src := Source{Endpoint: "/c/golang", Sort: "hot", Filters: map[string]string{"type": "all"}}
	page, err := testClient(server.URL).Fetcher(src)(context.Background(), "")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}

	if len(page.Items) != 3 {
		t.Fatalf("items = %d, want 3 (bad rows skipped)", len(page.Items))
	}
	if page.Items[0].Key == page.Items[1].Key {
		t.Error("post and comment with id 1 collided")
	}
	post := page.Items[0].Payload.(feed.Post)
	if post.Kind != feed.PostImage {
		t.Errorf("kind = %q, want image", post.Kind)
	}
	if post.Votes != (feed.Votes{Up: 5, Down: 1, Mine: feed.VoteUp}) {
		t.Errorf("votes = %+v", post.Votes)
	}
	if page.Next != "c1" {
		t.Errorf("next = %q", page.Next)
	}
}

func TestFetcherNullCursor(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if req.URL.Query().Get("cursor") != "c1" {
			t.Errorf("cursor = %q", req.URL.Query().Get("cursor"))
		}
		w.Write([]byte(`{"items": [], "next": null}`))
	}))
	defer server.Close()

	page, err := testClient(server.URL).Fetcher(Source{Endpoint: "home"})(context.Background(), "c1")
	if err != nil {
		t.Fatal(err)
	}
	if page.Next != "" {
		t.Errorf("null cursor decoded as %q", page.Next)
	}
}

func TestRetryOn429(t *testing.T) {
	var calls int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if atomic.AddInt64(&calls, 1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{"items": [], "next": null}`))
	}))
	defer server.Close()

	if _, err := testClient(server.URL).Fetcher(Source{Endpoint: "home"})(context.Background(), ""); err != nil {
		t.Fatal(err)
	}
	if n := atomic.LoadInt64(&calls); n != 2 {
		t.Errorf("calls = %d, want 2", n)
	}
}

func TestRetryGivesUpOn500(t *testing.T) {
	var calls int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		atomic.AddInt64(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	_, err := testClient(server.URL).Fetcher(Source{Endpoint: "home"})(context.Background(), "")
	var se *StatusError
	if !errors.As(err, &se) || se.Status != http.StatusBadGateway {
		t.Errorf("err = %v", err)
	}
	if n := atomic.LoadInt64(&calls); n != 4 {
		t.Errorf("calls = %d, want 4", n)
	}
}

func TestNoRetryOn400(t *testing.T) {
	var calls int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		atomic.AddInt64(&calls, 1)
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte("banned"))
	}))
	defer server.Close()

	_, err := testClient(server.URL).Fetcher(Source{Endpoint: "home"})(context.Background(), "")
	var se *StatusError
	if !errors.As(err, &se) || se.Status != http.StatusForbidden || se.Body != "banned" {
		t.Errorf("err = %v", err)
	}
	if n := atomic.LoadInt64(&calls); n != 1 {
		t.Errorf("calls = %d, want 1", n)
	}
}

func TestCastVote(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodPost || req.URL.Path != "/vote" {
			t.Errorf("%s %s", req.Method, req.URL.Path)
		}
		var body voteRequest
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if body != (voteRequest{Type: "post", ID: 7, Score: -1}) {
			t.Errorf("body = %+v", body)
		}
		w.Write([]byte(`{"type": "post", "item": {"id": 7, "upvotes": 3, "downvotes": 4, "my_vote": -1}}`))
	}))
	defer server.Close()

	item := feed.NewItem(feed.Post{ID: 7})
	got, err := testClient(server.URL).CastVote(context.Background(), item, feed.VoteDown)
	if err != nil {
		t.Fatal(err)
	}
	if v, _ := got.Votes(); v != (feed.Votes{Up: 3, Down: 4, Mine: feed.VoteDown}) {
		t.Errorf("votes = %+v", v)
	}
}

func TestHideAndDelete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		var body flagRequest
		json.NewDecoder(req.Body).Decode(&body)
		switch req.URL.Path {
		case "/hide":
			if !body.Hidden {
				t.Error("hide without hidden=true")
			}
			w.Write([]byte(`{"success": true}`))
		case "/delete":
			if !body.Deleted {
				t.Error("delete without deleted=true")
			}
			w.Write([]byte(`{"success": false}`))
		}
	}))
	defer server.Close()

	c := testClient(server.URL)
	item := feed.NewItem(feed.Comment{ID: 2})
	if err := c.Hide(context.Background(), item); err != nil {
		t.Errorf("hide: %v", err)
	}
	if err := c.Delete(context.Background(), item); !errors.Is(err, ErrRejected) {
		t.Errorf("delete err = %v, want ErrRejected", err)
	}
}

func TestFetcherDrivesController(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Write([]byte(mixedPage))
	}))
	defer server.Close()

	c := testClient(server.URL)
	src := Source{Endpoint: "home"}

	ctl := newController(t)
	if _, err := ctl.FetchFirstPage(context.Background(), src.ID(), c.Fetcher(src)); err != nil {
		t.Fatal(err)
	}
	f, _ := ctl.Store().Get(src.ID())
	if len(f.Items) != 3 || f.Next != "c1" {
		t.Errorf("feed = %d items, next %q", len(f.Items), f.Next)
	}
}

func TestRateLimiterHonoursContext(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", "", 0.001)
	c.limiter.Allow() // drain the single token

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := c.Fetcher(Source{Endpoint: "home"})(ctx, ""); err == nil {
		t.Error("expected limiter error")
	}
}
