package ui

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/mattn/go-runewidth"

	"github.com/abelbrown/threadline/internal/config"
	"github.com/abelbrown/threadline/internal/feed"
)

// scoreWidth is the fixed column taken by the score gutter.
const scoreWidth = 7

// rowOptions are the display settings that shape an item's rows.
type rowOptions struct {
	layout        config.Layout
	hideDownvotes bool
	width         int
	now           time.Time
}

// rows renders it as plain text lines. The count is the item's height and
// depends only on the layout.
func (o rowOptions) rows(it feed.Item) []string {
	head, meta := describe(it.Payload, o.now)
	text := o.width - scoreWidth
	if text < 1 {
		text = 1
	}
	lines := []string{runewidth.Truncate(head, text, "…")}
	if o.layout == config.LayoutExpanded {
		lines = append(lines, runewidth.Truncate(meta, text, "…"), "")
	}
	return lines
}

// height is how many rows it takes.
func (o rowOptions) height() int {
	if o.layout == config.LayoutExpanded {
		return 3
	}
	return 1
}

// score renders the gutter. Non-votable items get blank space.
func (o rowOptions) score(it feed.Item) string {
	v, ok := it.Votes()
	if !ok {
		return strings.Repeat(" ", scoreWidth)
	}
	s := fmt.Sprintf("%s%5d ", arrow(v.Mine), v.Score(o.hideDownvotes))
	switch v.Mine {
	case feed.VoteUp:
		return ScoreUp.Render(s)
	case feed.VoteDown:
		return ScoreDown.Render(s)
	default:
		return ScoreNeutral.Render(s)
	}
}

func arrow(s feed.VoteState) string {
	switch s {
	case feed.VoteUp:
		return "▲"
	case feed.VoteDown:
		return "▼"
	default:
		return " "
	}
}

// describe returns the headline and the metadata line for a payload.
func describe(p feed.Payload, now time.Time) (head, meta string) {
	switch p := p.(type) {
	case feed.Post:
		head = p.Title
		switch p.Kind {
		case feed.PostImage:
			head = "[img] " + head
		case feed.PostLink:
			if h := host(p.URL); h != "" {
				head += " (" + h + ")"
			}
		case feed.PostText:
		}
		var parts []string
		if p.Community != "" {
			parts = append(parts, "c/"+p.Community)
		}
		if p.Author != "" {
			parts = append(parts, p.Author)
		}
		parts = append(parts, fmt.Sprintf("%d comments", p.Comments))
		if !p.Published.IsZero() {
			parts = append(parts, ago(p.Published, now))
		}
		meta = strings.Join(parts, " · ")
	case feed.Comment:
		indent := strings.Repeat("  ", p.Depth)
		head = indent + p.Author + ": " + firstLine(p.Body)
		meta = indent + fmt.Sprintf("on post:%d", p.PostID)
		if !p.Published.IsZero() {
			meta += " · " + ago(p.Published, now)
		}
	case feed.Community:
		head = "c/" + p.Name
		if p.Title != "" {
			head += " · " + p.Title
		}
		meta = fmt.Sprintf("%d subscribers", p.Subscribers)
	case feed.Notification:
		mark := " "
		if !p.Read {
			mark = "●"
		}
		head = fmt.Sprintf("%s %s from %s: %s", mark, p.Kind, p.Author, firstLine(p.Body))
		if !p.Published.IsZero() {
			meta = ago(p.Published, now)
		}
	case feed.List:
		head = p.Name
		meta = fmt.Sprintf("%d items", p.Count)
	}
	return head, meta
}

func host(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(u.Host, "www.")
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// ago formats t relative to now, coarsely.
func ago(t, now time.Time) string {
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}
