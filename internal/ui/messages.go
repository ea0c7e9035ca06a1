// Package ui provides the Bubble Tea terminal client for threadline.
package ui

import (
	"github.com/abelbrown/threadline/internal/optimistic"
	"github.com/abelbrown/threadline/internal/pagination"
)

// FirstPageLoaded is sent when a first-page fetch, reload or sort change
// finishes.
type FirstPageLoaded struct {
	FeedID string
	Result pagination.Result
	Err    error
}

// NextPageLoaded is sent when a next-page fetch finishes.
type NextPageLoaded struct {
	FeedID string
	Result pagination.Result
	Err    error
}

// PreloadComplete is sent once every configured tab had its first page
// requested at startup.
type PreloadComplete struct {
	Err error
}

// MutationSent is sent when a vote, hide or delete round-trip finishes.
// Commit or rollback already happened; Err is only for the notice.
type MutationSent struct {
	Key   string
	Class optimistic.Class
	Err   error
}

// frameMsg advances the scroll spring by one frame.
type frameMsg struct{}
