package ui

import (
	"math"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/harmonica"

	"github.com/abelbrown/threadline/internal/feed"
	"github.com/abelbrown/threadline/internal/feedstore"
	"github.com/abelbrown/threadline/internal/logging"
	"github.com/abelbrown/threadline/internal/scroll"
	"github.com/abelbrown/threadline/internal/viewport"
)

const fps = 60

// FeedView is one mounted feed. Switching tabs discards it and builds a
// new one; everything that must survive lives in the feed store.
type FeedView struct {
	feedID  string
	store   *feedstore.Store
	tracker *viewport.Tracker
	trigger *scroll.Trigger
	opts    rowOptions

	snap      feed.Feed
	cursor    int
	cursorKey string
	restored  bool
	gen       uint64

	// Row layout from the last refresh: tops[i] is the first row of item i.
	tops  []int
	total int

	height int

	spring    harmonica.Spring
	scrollPos float64
	velocity  float64
	target    float64
	animating bool
}

func newFeedView(store *feedstore.Store, feedID string, cfg scroll.Config, opts rowOptions) *FeedView {
	return &FeedView{
		feedID:  feedID,
		store:   store,
		tracker: viewport.New(store, feedID),
		trigger: scroll.New(cfg),
		opts:    opts,
		spring:  harmonica.NewSpring(harmonica.FPS(fps), 6.0, 0.8),
	}
}

// FeedID returns the feed this view shows.
func (v *FeedView) FeedID() string { return v.feedID }

// Cursor returns the selected index.
func (v *FeedView) Cursor() int { return v.cursor }

// Top returns the first visible row.
func (v *FeedView) Top() int { return int(math.Round(v.scrollPos)) }

// Trigger exposes the paging state machine.
func (v *FeedView) Trigger() *scroll.Trigger { return v.trigger }

// Selected returns the item under the cursor.
func (v *FeedView) Selected() (feed.Item, bool) {
	if v.cursor < 0 || v.cursor >= len(v.snap.Items) {
		return feed.Item{}, false
	}
	return v.snap.Items[v.cursor], true
}

func (v *FeedView) setSize(width, height int) {
	v.opts.width = width
	v.height = max(height, 1)
}

// unmount snapshots visibility into the store. A view that never showed
// its feed leaves the previous snapshot alone.
func (v *FeedView) unmount() {
	if v.restored {
		v.tracker.NavigateAway()
	}
}

// refresh pulls a fresh snapshot and lays it out. It reports whether the
// sentinel asked for the next page.
func (v *FeedView) refresh() bool {
	f, ok := v.store.Get(v.feedID)
	if !ok {
		f = feed.Feed{ID: v.feedID}
	}
	v.snap = f
	v.trigger.Sync(f)

	if i := f.IndexOf(v.cursorKey); i >= 0 {
		v.cursor = i
	}
	v.cursor = min(v.cursor, len(f.Items)-1)
	v.cursor = max(v.cursor, 0)

	v.measure()

	switch {
	case !f.Loaded:
	case !v.restored:
		v.restored = true
		v.gen = f.Generation
		v.restore()
	case f.Generation != v.gen:
		// Replaced under us: start from the top.
		v.gen = f.Generation
		v.cursor = 0
		v.jump(0)
	}

	if it, ok := v.Selected(); ok {
		v.cursorKey = it.Key
	}
	return v.layout()
}

// measure computes row positions and records any height that changed.
func (v *FeedView) measure() {
	h := v.opts.height()
	v.tops = v.tops[:0]
	row := 0
	for _, it := range v.snap.Items {
		v.tops = append(v.tops, row)
		if it.Height != float64(h) {
			v.tracker.OnItemMeasured(it.Key, float64(h))
		}
		row += h
	}
	// One row for the sentinel.
	v.total = row + 1
}

// restore positions a freshly mounted view at the anchor the store
// remembers, without animating.
func (v *FeedView) restore() {
	a, ok := v.tracker.Restore()
	if !ok || a.Index >= len(v.tops) {
		return
	}
	v.cursor = a.Index
	top := float64(v.tops[a.Index])
	if a.Measured {
		top = a.Offset
	}
	v.jump(top)
	logging.Debug("restored position", "feed", v.feedID, "anchor", a.Key, "measured", a.Measured)
}

// jump moves the viewport with no spring.
func (v *FeedView) jump(top float64) {
	v.target = v.clamp(top)
	v.scrollPos = v.target
	v.velocity = 0
	v.animating = false
}

func (v *FeedView) clamp(top float64) float64 {
	return max(0, min(top, float64(v.total-v.height)))
}

// layout reports which items are on screen to the tracker and checks the
// sentinel distance.
func (v *FeedView) layout() bool {
	top := v.Top()
	bottom := top + v.height
	h := v.opts.height()

	var visible []string
	for i, it := range v.snap.Items {
		if v.tops[i]+h > top && v.tops[i] < bottom {
			visible = append(visible, it.Key)
		}
	}
	v.tracker.SetVisible(visible)

	if !v.snap.Loaded {
		return false
	}
	return v.trigger.SentinelVisible(max(v.total-bottom, 0))
}

// move shifts the cursor and scrolls it into view. It returns a frame
// command when an animation starts.
func (v *FeedView) move(delta int) tea.Cmd {
	if len(v.snap.Items) == 0 {
		return nil
	}
	v.cursor = max(0, min(v.cursor+delta, len(v.snap.Items)-1))
	v.cursorKey = v.snap.Items[v.cursor].Key

	h := float64(v.opts.height())
	itemTop := float64(v.tops[v.cursor])
	target := v.target
	switch {
	case itemTop < target:
		target = itemTop
	case itemTop+h > target+float64(v.height):
		target = itemTop + h - float64(v.height)
	}
	// Keep the sentinel reachable from the last item.
	if v.cursor == len(v.snap.Items)-1 {
		target = float64(v.total - v.height)
	}
	v.target = v.clamp(target)
	return v.animate()
}

func (v *FeedView) animate() tea.Cmd {
	if v.animating || v.scrollPos == v.target {
		return nil
	}
	v.animating = true
	return frame()
}

func frame() tea.Cmd {
	return tea.Tick(time.Second/fps, func(time.Time) tea.Msg { return frameMsg{} })
}

// step advances the spring one frame and reports whether it is still
// moving.
func (v *FeedView) step() bool {
	v.scrollPos, v.velocity = v.spring.Update(v.scrollPos, v.velocity, v.target)
	if math.Abs(v.scrollPos-v.target) < 0.01 && math.Abs(v.velocity) < 0.01 {
		v.scrollPos = v.target
		v.velocity = 0
		v.animating = false
	}
	return v.animating
}

// View renders exactly height rows. spin is the spinner frame for the
// loading sentinel.
func (v *FeedView) View(spin string) string {
	top := v.Top()
	bottom := top + v.height
	h := v.opts.height()

	out := make([]string, 0, v.height)
	for i, it := range v.snap.Items {
		if v.tops[i]+h <= top {
			continue
		}
		if v.tops[i] >= bottom {
			break
		}
		for j, line := range v.opts.rows(it) {
			row := v.tops[i] + j
			if row < top || row >= bottom {
				continue
			}
			gutter := strings.Repeat(" ", scoreWidth)
			if j == 0 {
				gutter = v.opts.score(it)
			}
			switch {
			case i == v.cursor && j == 0:
				line = SelectedItem.Render(line)
			case j == 0:
				line = NormalItem.Render(line)
			default:
				line = MetaText.Render(line)
			}
			out = append(out, gutter+line)
		}
	}
	if v.total-1 >= top && v.total-1 < bottom {
		out = append(out, Sentinel.Render(v.sentinel(spin)))
	}
	for len(out) < v.height {
		out = append(out, "")
	}
	return strings.Join(out, "\n")
}

func (v *FeedView) sentinel(spin string) string {
	if !v.snap.Loaded {
		return spin + " loading"
	}
	switch v.trigger.State() {
	case scroll.Fetching:
		return spin + " loading more"
	case scroll.Exhausted:
		if len(v.snap.Items) == 0 {
			return "nothing here"
		}
		return "end of feed"
	case scroll.Idle:
		if v.trigger.Manual() {
			return "press m to load more"
		}
		if v.trigger.Disarmed() {
			return "press m to retry"
		}
	}
	return ""
}
