// Package feedstore is the process-wide cache of feeds.
//
// # Single writer
//
// The map of feeds is owned by one goroutine. Every operation, read or
// write, is sent to it as a command and the caller blocks until the command
// has run, so mutations for a feed id apply atomically and in the order they
// were dispatched. There are no locks around feed state.
//
// # Snapshots
//
// Get returns a deep enough copy that callers can keep it across renders:
// the item slice and in-view set are fresh, and payloads are value types.
package feedstore

import (
	"errors"
	"maps"
	"slices"
	"sync"

	"github.com/abelbrown/threadline/internal/feed"
)

// ErrClosed is returned by operations issued after Close.
var ErrClosed = errors.New("feed store closed")

// NextStatus is the answer to a next-page check-and-set.
type NextStatus int

const (
	NextStarted NextStatus = iota
	NextInFlight
	NextExhausted
	NextNotLoaded
)

// Snapshot records where an item sat in one feed before a key-wide mutation.
type Snapshot struct {
	FeedID     string
	Generation uint64
	Index      int
	Item       feed.Item
}

type entry struct {
	id         string
	items      []feed.Item
	index      map[string]int
	next       string
	loaded     bool
	inView     map[string]struct{}
	generation uint64
	heights    map[string]float64

	nextInFlight bool
}

func newEntry(id string) *entry {
	return &entry{
		id:      id,
		index:   make(map[string]int),
		inView:  make(map[string]struct{}),
		heights: make(map[string]float64),
	}
}

// Store is the keyed feed cache. The zero value is not usable; call New.
type Store struct {
	cmds chan func(map[string]*entry)
	quit chan struct{}
	done chan struct{}

	closeOnce sync.Once
}

// New starts the store's command loop.
func New() *Store {
	s := &Store{
		cmds: make(chan func(map[string]*entry)),
		quit: make(chan struct{}),
		done: make(chan struct{}),
	}
	go s.loop()
	return s
}

func (s *Store) loop() {
	defer close(s.done)
	feeds := make(map[string]*entry)
	for {
		select {
		case cmd := <-s.cmds:
			cmd(feeds)
		case <-s.quit:
			return
		}
	}
}

// do runs fn on the store goroutine and waits for it.
func (s *Store) do(fn func(map[string]*entry)) error {
	finished := make(chan struct{})
	cmd := func(m map[string]*entry) {
		defer close(finished)
		fn(m)
	}
	select {
	case s.cmds <- cmd:
	case <-s.done:
		return ErrClosed
	}
	<-finished
	return nil
}

// Close stops the command loop. The cache normally lives for the whole
// process; Close exists so tests can assert the goroutine exits.
func (s *Store) Close() {
	s.closeOnce.Do(func() { close(s.quit) })
	<-s.done
}

func ensure(m map[string]*entry, id string) *entry {
	e, ok := m[id]
	if !ok {
		e = newEntry(id)
		m[id] = e
	}
	return e
}

func (e *entry) snapshot() feed.Feed {
	items := make([]feed.Item, len(e.items))
	for i, it := range e.items {
		it.Height = e.heights[it.Key]
		items[i] = it
	}
	inView := make(map[string]struct{}, len(e.inView))
	for k := range e.inView {
		inView[k] = struct{}{}
	}
	return feed.Feed{
		ID:           e.id,
		Items:        items,
		Next:         e.next,
		Loaded:       e.loaded,
		InViewKeys:   inView,
		Generation:   e.generation,
		FetchingNext: e.nextInFlight,
	}
}

func (e *entry) reindex() {
	e.index = make(map[string]int, len(e.items))
	for i, it := range e.items {
		e.index[it.Key] = i
	}
}

// put merges or replaces and returns how many items were added.
func (e *entry) put(items []feed.Item, next string, replace bool) int {
	if replace {
		e.items = e.items[:0:0]
		e.index = make(map[string]int, len(items))
		e.generation++
		e.loaded = true
	}
	added := 0
	for _, it := range items {
		if _, dup := e.index[it.Key]; dup {
			continue
		}
		if it.Height > 0 {
			e.heights[it.Key] = it.Height
		}
		it.Height = 0
		e.index[it.Key] = len(e.items)
		e.items = append(e.items, it)
		added++
	}
	e.next = next
	return added
}

// Get returns a snapshot of the feed, or false if no entry exists.
func (s *Store) Get(feedID string) (feed.Feed, bool) {
	var (
		f  feed.Feed
		ok bool
	)
	_ = s.do(func(m map[string]*entry) {
		if e, found := m[feedID]; found {
			f, ok = e.snapshot(), true
		}
	})
	return f, ok
}

// Put stores a page. With replace false, items whose key is already present
// are dropped and the rest appended; the cursor is always updated. With
// replace true the items and cursor are overwritten and the generation
// increments.
func (s *Store) Put(feedID string, items []feed.Item, next string, replace bool) int {
	added := 0
	_ = s.do(func(m map[string]*entry) {
		added = ensure(m, feedID).put(items, next, replace)
	})
	return added
}

// PutIfGeneration is Put guarded by a generation captured earlier. It
// reports false, changing nothing, when the feed has moved on.
func (s *Store) PutIfGeneration(feedID string, gen uint64, items []feed.Item, next string, replace bool) (bool, int) {
	applied, added := false, 0
	_ = s.do(func(m map[string]*entry) {
		e := ensure(m, feedID)
		if e.generation != gen {
			return
		}
		applied, added = true, e.put(items, next, replace)
	})
	return applied, added
}

// UpdateItemHeight records a measured height. Last write wins.
func (s *Store) UpdateItemHeight(feedID, key string, height float64) {
	if height <= 0 {
		return
	}
	_ = s.do(func(m map[string]*entry) {
		ensure(m, feedID).heights[key] = height
	})
}

// SetInViewKeys replaces the feed's visibility snapshot.
func (s *Store) SetInViewKeys(feedID string, keys []string) {
	_ = s.do(func(m map[string]*entry) {
		e := ensure(m, feedID)
		e.inView = make(map[string]struct{}, len(keys))
		for _, k := range keys {
			e.inView[k] = struct{}{}
		}
	})
}

// Invalidate drops items and cursor and bumps the generation so in-flight
// responses for the old contents are discarded. It does not fetch. The
// in-view snapshot is kept, as it is across a replace.
func (s *Store) Invalidate(feedID string) {
	_ = s.do(func(m map[string]*entry) {
		e := ensure(m, feedID)
		e.items = nil
		e.index = make(map[string]int)
		e.next = ""
		e.loaded = false
		e.generation++
	})
}

// Generation returns the current generation, creating the entry if needed
// so that a later invalidation is observable.
func (s *Store) Generation(feedID string) uint64 {
	var gen uint64
	_ = s.do(func(m map[string]*entry) {
		gen = ensure(m, feedID).generation
	})
	return gen
}

// BeginNextPage atomically checks and sets the in-flight flag. On
// NextStarted it returns the cursor to request and the generation to check
// the response against.
func (s *Store) BeginNextPage(feedID string) (string, uint64, NextStatus) {
	var (
		cursor string
		gen    uint64
		status = NextNotLoaded
	)
	err := s.do(func(m map[string]*entry) {
		e := ensure(m, feedID)
		gen = e.generation
		switch {
		case e.nextInFlight:
			status = NextInFlight
		case !e.loaded:
			status = NextNotLoaded
		case e.next == "":
			status = NextExhausted
		default:
			e.nextInFlight = true
			cursor = e.next
			status = NextStarted
		}
	})
	if err != nil {
		return "", 0, NextNotLoaded
	}
	return cursor, gen, status
}

// FinishNextPage clears the in-flight flag and, if page is non-nil and the
// generation still matches, merges it. It reports whether the page was
// applied and how many items were new.
func (s *Store) FinishNextPage(feedID string, gen uint64, page *feed.Page) (bool, int) {
	applied, added := false, 0
	_ = s.do(func(m map[string]*entry) {
		e := ensure(m, feedID)
		e.nextInFlight = false
		if page == nil || e.generation != gen {
			return
		}
		applied, added = true, e.put(page.Items, page.Next, false)
	})
	return applied, added
}

// FindItem returns a cached copy of key. When several feeds hold it, the
// copy in preferred (if given and present) wins, then feeds in id order.
func (s *Store) FindItem(key string, preferred ...string) (feed.Item, bool) {
	var (
		it feed.Item
		ok bool
	)
	_ = s.do(func(m map[string]*entry) {
		ids := slices.Sorted(maps.Keys(m))
		for _, id := range slices.Concat(preferred, ids) {
			e, exists := m[id]
			if !exists {
				continue
			}
			if i, found := e.index[key]; found {
				it, ok = e.items[i], true
				it.Height = e.heights[key]
				return
			}
		}
	})
	return it, ok
}

// UpdateItem applies fn to every cached copy of key and returns the prior
// copies.
func (s *Store) UpdateItem(key string, fn func(feed.Item) feed.Item) []Snapshot {
	var snaps []Snapshot
	_ = s.do(func(m map[string]*entry) {
		for _, e := range m {
			i, found := e.index[key]
			if !found {
				continue
			}
			prior := e.items[i]
			snaps = append(snaps, Snapshot{FeedID: e.id, Generation: e.generation, Index: i, Item: prior})
			next := fn(prior)
			next.Key, next.Type, next.Height = prior.Key, prior.Type, 0
			e.items[i] = next
		}
	})
	return snaps
}

// RemoveItem deletes key from every feed and returns where it was.
func (s *Store) RemoveItem(key string) []Snapshot {
	var snaps []Snapshot
	_ = s.do(func(m map[string]*entry) {
		for _, e := range m {
			i, found := e.index[key]
			if !found {
				continue
			}
			snaps = append(snaps, Snapshot{FeedID: e.id, Generation: e.generation, Index: i, Item: e.items[i]})
			e.items = append(e.items[:i:i], e.items[i+1:]...)
			delete(e.inView, key)
			e.reindex()
		}
	})
	return snaps
}

// Restore writes fn(current, prior) back into each snapshotted feed whose
// generation is unchanged and which still holds the key.
func (s *Store) Restore(snaps []Snapshot, fn func(current, prior feed.Item) feed.Item) {
	_ = s.do(func(m map[string]*entry) {
		for _, sn := range snaps {
			e, ok := m[sn.FeedID]
			if !ok || e.generation != sn.Generation {
				continue
			}
			i, found := e.index[sn.Item.Key]
			if !found {
				continue
			}
			e.items[i] = fn(e.items[i], sn.Item)
		}
	})
}

// Reinsert puts removed items back at their recorded index. Feeds that were
// replaced or invalidated since, or that already hold the key again, are
// skipped.
func (s *Store) Reinsert(snaps []Snapshot) {
	_ = s.do(func(m map[string]*entry) {
		for _, sn := range snaps {
			e, ok := m[sn.FeedID]
			if !ok || e.generation != sn.Generation {
				continue
			}
			if _, dup := e.index[sn.Item.Key]; dup {
				continue
			}
			at := min(sn.Index, len(e.items))
			e.items = append(e.items[:at:at], append([]feed.Item{sn.Item}, e.items[at:]...)...)
			e.reindex()
		}
	})
}
