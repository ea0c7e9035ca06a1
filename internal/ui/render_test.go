package ui

import (
	"strings"
	"testing"
	"time"

	"github.com/mattn/go-runewidth"

	"github.com/abelbrown/threadline/internal/config"
	"github.com/abelbrown/threadline/internal/feed"
)

func TestRowsHeightFollowsLayout(t *testing.T) {
	it := feed.NewItem(feed.Post{ID: 1, Title: "Hello", Kind: feed.PostText})

	compact := rowOptions{layout: config.LayoutCompact, width: 80}
	if got := len(compact.rows(it)); got != compact.height() || got != 1 {
		t.Errorf("compact rows = %d", got)
	}
	expanded := rowOptions{layout: config.LayoutExpanded, width: 80}
	if got := len(expanded.rows(it)); got != expanded.height() || got != 3 {
		t.Errorf("expanded rows = %d", got)
	}
}

func TestScoreHonoursHideDownvotes(t *testing.T) {
	it := feed.NewItem(feed.Comment{ID: 1, Votes: feed.Votes{Up: 10, Down: 4}})

	if s := (rowOptions{}).score(it); !strings.Contains(s, "6") {
		t.Errorf("score = %q, want 6", s)
	}
	if s := (rowOptions{hideDownvotes: true}).score(it); !strings.Contains(s, "10") {
		t.Errorf("score with hidden downvotes = %q, want 10", s)
	}
	if s := (rowOptions{}).score(feed.NewItem(feed.List{ID: 1})); strings.TrimSpace(s) != "" {
		t.Errorf("list has a score: %q", s)
	}
}

func TestDescribeByKind(t *testing.T) {
	now := time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		p    feed.Payload
		head string
		meta string
	}{
		{"image", feed.Post{ID: 1, Title: "Cat", Kind: feed.PostImage}, "[img] Cat", "0 comments"},
		{"link", feed.Post{ID: 2, Title: "Go 2", Kind: feed.PostLink, URL: "https://www.go.dev/blog"}, "Go 2 (go.dev)", "0 comments"},
		{"text", feed.Post{ID: 3, Title: "Ask", Kind: feed.PostText, Community: "golang", Comments: 4, Published: now.Add(-2 * time.Hour)}, "Ask", "c/golang · 4 comments · 2h ago"},
		{"comment", feed.Comment{ID: 4, PostID: 3, Author: "rob", Body: "yes\nand more", Depth: 1}, "  rob: yes", "  on post:3"},
		{"community", feed.Community{ID: 5, Name: "golang", Title: "The Go language", Subscribers: 12}, "c/golang · The Go language", "12 subscribers"},
		{"notification", feed.Notification{ID: 6, Kind: feed.NotifyReply, Author: "ken", Body: "hi"}, "● reply from ken: hi", ""},
		{"list", feed.List{ID: 7, Name: "later", Count: 3}, "later", "3 items"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			head, meta := describe(tt.p, now)
			if head != tt.head {
				t.Errorf("head = %q, want %q", head, tt.head)
			}
			if meta != tt.meta {
				t.Errorf("meta = %q, want %q", meta, tt.meta)
			}
		})
	}
}

func TestRowsTruncateWideText(t *testing.T) {
	o := rowOptions{layout: config.LayoutCompact, width: scoreWidth + 10}
	it := feed.NewItem(feed.Post{ID: 1, Title: "日本語のタイトルです", Kind: feed.PostText})

	line := o.rows(it)[0]
	if w := runewidth.StringWidth(line); w > 10 {
		t.Errorf("width = %d, want <= 10 (%q)", w, line)
	}
	if !strings.HasSuffix(line, "…") {
		t.Errorf("truncated line %q has no ellipsis", line)
	}
}

func TestAgo(t *testing.T) {
	now := time.Now()
	tests := map[time.Duration]string{
		10 * time.Second: "just now",
		5 * time.Minute:  "5m ago",
		3 * time.Hour:    "3h ago",
		50 * time.Hour:   "2d ago",
	}
	for d, want := range tests {
		if got := ago(now.Add(-d), now); got != want {
			t.Errorf("ago(%v) = %q, want %q", d, got, want)
		}
	}
}
