package api

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/abelbrown/threadline/internal/feed"
	"github.com/abelbrown/threadline/internal/logging"
)

type pageResponse struct {
	Items []wireEntry `json:"items"`
	Next  *string     `json:"next"`
}

// wireEntry is one {"type","item"} element.
type wireEntry struct {
	Type string          `json:"type"`
	Item json.RawMessage `json:"item"`
}

type wireVotes struct {
	Upvotes   int `json:"upvotes"`
	Downvotes int `json:"downvotes"`
	MyVote    int `json:"my_vote"`
}

func (w wireVotes) votes() feed.Votes {
	mine := feed.VoteNone
	switch {
	case w.MyVote > 0:
		mine = feed.VoteUp
	case w.MyVote < 0:
		mine = feed.VoteDown
	}
	return feed.Votes{Up: w.Upvotes, Down: w.Downvotes, Mine: mine}
}

type wirePost struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	URL       string    `json:"url"`
	Body      string    `json:"body"`
	Kind      string    `json:"kind"`
	Community string    `json:"community"`
	Author    string    `json:"author"`
	Comments  int       `json:"comments"`
	Published time.Time `json:"published"`
	wireVotes
}

type wireComment struct {
	ID        int64     `json:"id"`
	PostID    int64     `json:"post_id"`
	Author    string    `json:"author"`
	Body      string    `json:"body"`
	Depth     int       `json:"depth"`
	Published time.Time `json:"published"`
	wireVotes
}

type wireCommunity struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Title       string `json:"title"`
	Subscribers int    `json:"subscribers"`
}

type wireNotification struct {
	ID        int64     `json:"id"`
	Kind      string    `json:"kind"`
	Author    string    `json:"author"`
	Body      string    `json:"body"`
	Read      bool      `json:"read"`
	Published time.Time `json:"published"`
}

type wireList struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func (e wireEntry) decode() (feed.Item, error) {
	typ, err := feed.ParseType(e.Type)
	if err != nil {
		return feed.Item{}, err
	}

	var p feed.Payload
	switch typ {
	case feed.TypePost:
		var w wirePost
		if err := json.Unmarshal(e.Item, &w); err != nil {
			return feed.Item{}, fmt.Errorf("decode post: %w", err)
		}
		p = feed.Post{
			ID: w.ID, Title: w.Title, URL: w.URL, Body: w.Body,
			Kind:      feed.KindOf(w.Kind, w.URL),
			Community: w.Community, Author: w.Author, Comments: w.Comments,
			Published: w.Published, Votes: w.votes(),
		}
	case feed.TypeComment:
		var w wireComment
		if err := json.Unmarshal(e.Item, &w); err != nil {
			return feed.Item{}, fmt.Errorf("decode comment: %w", err)
		}
		p = feed.Comment{
			ID: w.ID, PostID: w.PostID, Author: w.Author, Body: w.Body,
			Depth: w.Depth, Published: w.Published, Votes: w.votes(),
		}
	case feed.TypeCommunity:
		var w wireCommunity
		if err := json.Unmarshal(e.Item, &w); err != nil {
			return feed.Item{}, fmt.Errorf("decode community: %w", err)
		}
		p = feed.Community{ID: w.ID, Name: w.Name, Title: w.Title, Subscribers: w.Subscribers}
	case feed.TypeNotification:
		var w wireNotification
		if err := json.Unmarshal(e.Item, &w); err != nil {
			return feed.Item{}, fmt.Errorf("decode notification: %w", err)
		}
		p = feed.Notification{
			ID: w.ID, Kind: feed.NotificationKind(w.Kind), Author: w.Author,
			Body: w.Body, Read: w.Read, Published: w.Published,
		}
	case feed.TypeList:
		var w wireList
		if err := json.Unmarshal(e.Item, &w); err != nil {
			return feed.Item{}, fmt.Errorf("decode list: %w", err)
		}
		p = feed.List{ID: w.ID, Name: w.Name, Count: w.Count}
	}

	if p.ServerID() == 0 {
		return feed.Item{}, fmt.Errorf("%s without id", typ)
	}
	return feed.NewItem(p), nil
}

// decodePage converts a listing response. Entries of unknown type or
// without an id are skipped so one bad row does not lose the page.
func decodePage(body []byte) (feed.Page, error) {
	var resp pageResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return feed.Page{}, fmt.Errorf("parse page: %w", err)
	}
	page := feed.Page{Items: make([]feed.Item, 0, len(resp.Items))}
	for i, e := range resp.Items {
		it, err := e.decode()
		if err != nil {
			logging.Warn("skipping listing entry", "index", i, "error", err)
			continue
		}
		page.Items = append(page.Items, it)
	}
	if resp.Next != nil {
		page.Next = *resp.Next
	}
	return page, nil
}

type voteRequest struct {
	Type  string `json:"type"`
	ID    int64  `json:"id"`
	Score int    `json:"score"`
}

type flagRequest struct {
	Type    string `json:"type"`
	ID      int64  `json:"id"`
	Hidden  bool   `json:"hidden,omitempty"`
	Deleted bool   `json:"deleted,omitempty"`
}

type successResponse struct {
	Success bool `json:"success"`
}
