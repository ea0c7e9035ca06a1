// Package viewport tracks which items of a feed view are visible and how
// tall they rendered, so the view can be torn down and rebuilt at the same
// position.
//
// Visibility arrives as explicit entered/left events from the renderer. The
// set is only written to the store when the view navigates away, not on
// every scroll tick.
package viewport

import (
	"sort"

	"github.com/abelbrown/threadline/internal/feed"
	"github.com/abelbrown/threadline/internal/feedstore"
	"github.com/abelbrown/threadline/internal/logging"
)

// Tracker belongs to one mounted feed view. It is not safe for concurrent
// use; the view's update loop owns it.
type Tracker struct {
	store   *feedstore.Store
	feedID  string
	visible map[string]struct{}
	left    bool
}

// New returns a tracker for feedID.
func New(store *feedstore.Store, feedID string) *Tracker {
	return &Tracker{
		store:   store,
		feedID:  feedID,
		visible: make(map[string]struct{}),
	}
}

// FeedID returns the tracked feed.
func (t *Tracker) FeedID() string { return t.feedID }

// OnItemMeasured records the rendered height of key.
func (t *Tracker) OnItemMeasured(key string, height float64) {
	t.store.UpdateItemHeight(t.feedID, key, height)
}

// ItemEntered marks key as inside the viewport.
func (t *Tracker) ItemEntered(key string) {
	t.visible[key] = struct{}{}
}

// ItemLeft marks key as outside the viewport.
func (t *Tracker) ItemLeft(key string) {
	delete(t.visible, key)
}

// SetVisible replaces the visible set, emitting entered/left for the
// difference.
func (t *Tracker) SetVisible(keys []string) {
	next := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		next[k] = struct{}{}
	}
	for k := range t.visible {
		if _, ok := next[k]; !ok {
			t.ItemLeft(k)
		}
	}
	for k := range next {
		t.ItemEntered(k)
	}
}

// Visible returns the currently visible keys, sorted.
func (t *Tracker) Visible() []string {
	keys := make([]string, 0, len(t.visible))
	for k := range t.visible {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// OnVisibilityChange writes keys as the feed's visibility snapshot.
func (t *Tracker) OnVisibilityChange(keys []string) {
	t.store.SetInViewKeys(t.feedID, keys)
}

// NavigateAway snapshots the visible set into the store. Only the first
// call after mounting has an effect.
func (t *Tracker) NavigateAway() []string {
	if t.left {
		return nil
	}
	t.left = true
	keys := t.Visible()
	t.OnVisibilityChange(keys)
	logging.Debug("viewport snapshot", "feed", t.feedID, "visible", len(keys))
	return keys
}

// Restore computes where a remounted view should start, from the store.
func (t *Tracker) Restore() (Anchor, bool) {
	f, ok := t.store.Get(t.feedID)
	if !ok {
		return Anchor{}, false
	}
	return Restore(f)
}

// Anchor is the item a restored view should align to its top edge.
type Anchor struct {
	Key   string
	Index int

	// Measured is set when Offset was computed from recorded heights of
	// the anchor and every item before it. Otherwise the view aligns to
	// the item's own top by index.
	Measured bool
	Offset   float64
}

// Restore finds the earliest item in feed order that was in view at the
// last snapshot. Unmeasured heights are never estimated.
func Restore(f feed.Feed) (Anchor, bool) {
	if len(f.InViewKeys) == 0 {
		return Anchor{}, false
	}
	var offset float64
	measured := true
	for i, it := range f.Items {
		if f.InView(it.Key) {
			a := Anchor{Key: it.Key, Index: i}
			if measured && it.Measured() {
				a.Measured = true
				a.Offset = offset
			}
			return a, true
		}
		if it.Measured() {
			offset += it.Height
		} else {
			measured = false
		}
	}
	return Anchor{}, false
}
