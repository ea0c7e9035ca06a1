// Package feed defines the values the feed engine moves around: items with
// their type-tagged payloads, feed snapshots, pages and vote arithmetic.
//
// Everything here is a plain value. Snapshots handed out by the store share
// no mutable state with it, so views can hold them across renders.
package feed

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Type tags the payload carried by an Item.
type Type string

const (
	TypePost         Type = "post"
	TypeComment      Type = "comment"
	TypeCommunity    Type = "community"
	TypeNotification Type = "notification"
	TypeList         Type = "list"
)

// ParseType validates a wire type tag.
func ParseType(s string) (Type, error) {
	switch t := Type(s); t {
	case TypePost, TypeComment, TypeCommunity, TypeNotification, TypeList:
		return t, nil
	}
	return "", fmt.Errorf("unknown item type %q", s)
}

// Payload is the sum type of content an Item can carry. The set of
// implementations is closed: Post, Comment, Community, Notification, List.
type Payload interface {
	Type() Type
	// ServerID is the stable identity assigned by the server.
	ServerID() int64
	sealed()
}

// Key builds the feed-unique key for a payload.
func Key(p Payload) string {
	return string(p.Type()) + ":" + strconv.FormatInt(p.ServerID(), 10)
}

// Item wraps one payload with the identity used for dedup and the last
// measured render height. Height 0 means the item was never measured.
type Item struct {
	Key     string
	Type    Type
	Payload Payload
	Height  float64
}

// NewItem wraps p, deriving Key and Type from it.
func NewItem(p Payload) Item {
	return Item{Key: Key(p), Type: p.Type(), Payload: p}
}

// Measured reports whether a render height has been recorded.
func (i Item) Measured() bool {
	return i.Height > 0
}

// Votes returns the item's vote tallies. Only posts and comments are votable.
func (i Item) Votes() (Votes, bool) {
	switch p := i.Payload.(type) {
	case Post:
		return p.Votes, true
	case Comment:
		return p.Votes, true
	case Community, Notification, List:
		return Votes{}, false
	}
	return Votes{}, false
}

// WithVotes returns a copy of the item carrying v. Non-votable items are
// returned unchanged.
func (i Item) WithVotes(v Votes) Item {
	switch p := i.Payload.(type) {
	case Post:
		p.Votes = v
		i.Payload = p
	case Comment:
		p.Votes = v
		i.Payload = p
	case Community, Notification, List:
	}
	return i
}

// PostKind is the single dispatch point for how a post presents itself.
type PostKind string

const (
	PostText  PostKind = "text"
	PostLink  PostKind = "link"
	PostImage PostKind = "image"
)

var imageExts = []string{".jpg", ".jpeg", ".png", ".gif", ".webp"}

// KindOf classifies a post the server sent without a kind. Every renderer
// goes through Post.Kind; nothing else inspects URLs to decide layout.
func KindOf(kind, url string) PostKind {
	switch k := PostKind(kind); k {
	case PostText, PostLink, PostImage:
		return k
	}
	if url == "" {
		return PostText
	}
	lower := strings.ToLower(url)
	if i := strings.IndexAny(lower, "?#"); i >= 0 {
		lower = lower[:i]
	}
	for _, ext := range imageExts {
		if strings.HasSuffix(lower, ext) {
			return PostImage
		}
	}
	return PostLink
}

// Post is a top-level submission.
type Post struct {
	ID        int64
	Title     string
	URL       string
	Body      string
	Kind      PostKind
	Community string
	Author    string
	Comments  int
	Published time.Time
	Votes     Votes
}

func (Post) Type() Type { return TypePost }
func (p Post) ServerID() int64 { return p.ID }
func (Post) sealed() {}

// Comment is a reply on a post.
type Comment struct {
	ID        int64
	PostID    int64
	Author    string
	Body      string
	Depth     int
	Published time.Time
	Votes     Votes
}

func (Comment) Type() Type { return TypeComment }
func (c Comment) ServerID() int64 { return c.ID }
func (Comment) sealed() {}

// Community is a directory listing entry.
type Community struct {
	ID          int64
	Name        string
	Title       string
	Subscribers int
}

func (Community) Type() Type { return TypeCommunity }
func (c Community) ServerID() int64 { return c.ID }
func (Community) sealed() {}

// NotificationKind distinguishes inbox entries.
type NotificationKind string

const (
	NotifyReply   NotificationKind = "reply"
	NotifyMention NotificationKind = "mention"
	NotifyMessage NotificationKind = "message"
)

// Notification is an inbox entry.
type Notification struct {
	ID        int64
	Kind      NotificationKind
	Author    string
	Body      string
	Read      bool
	Published time.Time
}

func (Notification) Type() Type { return TypeNotification }
func (n Notification) ServerID() int64 { return n.ID }
func (Notification) sealed() {}

// List is a saved list.
type List struct {
	ID    int64
	Name  string
	Count int
}

func (List) Type() Type { return TypeList }
func (l List) ServerID() int64 { return l.ID }
func (List) sealed() {}

// Title returns the one-line label for an item, dispatching over every
// payload type.
func Title(p Payload) string {
	switch p := p.(type) {
	case Post:
		return p.Title
	case Comment:
		return p.Body
	case Community:
		if p.Title != "" {
			return p.Title
		}
		return p.Name
	case Notification:
		return p.Body
	case List:
		return p.Name
	}
	return ""
}
