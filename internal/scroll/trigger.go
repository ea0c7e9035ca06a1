// Package scroll decides when a feed view should ask for its next page.
package scroll

import (
	"fmt"

	"github.com/abelbrown/threadline/internal/feed"
)

// DefaultPrefetchMargin is how many rows before the end of the list the
// sentinel counts as visible.
const DefaultPrefetchMargin = 5

// State of the trigger.
type State int

const (
	Idle State = iota
	Fetching
	Exhausted
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Fetching:
		return "fetching"
	case Exhausted:
		return "exhausted"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Config tunes a trigger.
type Config struct {
	// Manual disables proximity triggering; only LoadMore starts a fetch.
	Manual bool

	// PrefetchMargin is the distance from the sentinel, in rows, at which
	// an automatic fetch starts.
	PrefetchMargin int
}

// Trigger is the per-view state machine:
//
//	Idle -> Fetching -> Idle | Exhausted
//	Fetching -> Idle on failure
//
// Exhausted holds until the feed's generation changes. After a failure the
// sentinel stays disarmed until it leaves the prefetch margin, so a feed
// whose server is down is not retried without the user scrolling back into
// range or asking with LoadMore.
type Trigger struct {
	cfg      Config
	state    State
	gen      uint64
	disarmed bool
}

// New returns an idle trigger.
func New(cfg Config) *Trigger {
	if cfg.PrefetchMargin <= 0 {
		cfg.PrefetchMargin = DefaultPrefetchMargin
	}
	return &Trigger{cfg: cfg}
}

func (t *Trigger) State() State { return t.state }
func (t *Trigger) Generation() uint64 { return t.gen }
func (t *Trigger) Manual() bool { return t.cfg.Manual }

// Sync re-derives state from a store snapshot. A changed generation resets
// to Idle; a feed with a request in flight reads as Fetching and an
// exhausted feed as Exhausted.
func (t *Trigger) Sync(f feed.Feed) State {
	if f.Generation != t.gen {
		t.Reset(f.Generation)
	}
	switch {
	case f.FetchingNext:
		t.state = Fetching
	case f.Exhausted():
		t.state = Exhausted
	case t.state == Exhausted:
		t.state = Idle
	}
	return t.state
}

// SentinelVisible reports the sentinel is remaining rows below the bottom
// of the viewport. It returns true when the caller should fetch now.
func (t *Trigger) SentinelVisible(remaining int) bool {
	if remaining > t.cfg.PrefetchMargin {
		t.disarmed = false
		return false
	}
	if t.cfg.Manual || t.state != Idle || t.disarmed {
		return false
	}
	t.state = Fetching
	return true
}

// LoadMore is the explicit user action. It works in both modes.
func (t *Trigger) LoadMore() bool {
	if t.state != Idle {
		return false
	}
	t.disarmed = false
	t.state = Fetching
	return true
}

// Succeeded records a completed fetch for generation gen. Results for an
// older generation are ignored.
func (t *Trigger) Succeeded(gen uint64, exhausted bool) {
	if gen != t.gen || t.state != Fetching {
		return
	}
	if exhausted {
		t.state = Exhausted
		return
	}
	t.state = Idle
}

// Failed returns a fetching trigger to Idle and disarms the sentinel.
func (t *Trigger) Failed(gen uint64) {
	if gen != t.gen || t.state != Fetching {
		return
	}
	t.state = Idle
	t.disarmed = true
}

// Disarmed reports whether a failure is holding back automatic fetches.
func (t *Trigger) Disarmed() bool { return t.disarmed }

// Reset moves to Idle for a new generation.
func (t *Trigger) Reset(gen uint64) {
	t.gen = gen
	t.state = Idle
	t.disarmed = false
}
