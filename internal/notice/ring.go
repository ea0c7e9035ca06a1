// Package notice keeps the transient, dismissable messages shown at the
// bottom of the screen: fetch failures, rolled-back mutations and the like.
package notice

import (
	"fmt"
	"sync"
	"time"
)

// DefaultSize is the default ring capacity.
const DefaultSize = 16

// DefaultTTL is how long a notice stays active unless dismissed.
const DefaultTTL = 6 * time.Second

// Level of a notice.
type Level int

const (
	Info Level = iota
	Error
)

// Notice is one message.
type Notice struct {
	ID        uint64
	Level     Level
	Text      string
	At        time.Time
	Dismissed bool
}

// Ring is a fixed-size circular buffer of notices. Goroutine-safe.
type Ring struct {
	mu     sync.Mutex
	buf    []Notice
	size   int
	head   int // next write position
	count  int
	nextID uint64
	ttl    time.Duration
}

// NewRing creates a ring with the given capacity and time to live.
func NewRing(size int, ttl time.Duration) *Ring {
	if size <= 0 {
		size = DefaultSize
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Ring{buf: make([]Notice, size), size: size, ttl: ttl}
}

// Push adds a notice, overwriting the oldest if full, and returns its id.
func (r *Ring) Push(level Level, text string, at time.Time) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	r.buf[r.head] = Notice{ID: r.nextID, Level: level, Text: text, At: at}
	r.head = (r.head + 1) % r.size
	if r.count < r.size {
		r.count++
	}
	return r.nextID
}

// Errorf pushes an error notice.
func (r *Ring) Errorf(at time.Time, format string, args ...any) uint64 {
	return r.Push(Error, fmt.Sprintf(format, args...), at)
}

// each visits buffered notices oldest first. Caller holds mu.
func (r *Ring) each(fn func(*Notice)) {
	start := 0
	if r.count >= r.size {
		start = r.head
	}
	for i := 0; i < r.count; i++ {
		fn(&r.buf[(start+i)%r.size])
	}
}

// Active returns undismissed notices younger than the ttl, oldest first.
func (r *Ring) Active(now time.Time) []Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Notice
	r.each(func(n *Notice) {
		if !n.Dismissed && now.Sub(n.At) < r.ttl {
			out = append(out, *n)
		}
	})
	return out
}

// Latest returns the newest active notice.
func (r *Ring) Latest(now time.Time) (Notice, bool) {
	active := r.Active(now)
	if len(active) == 0 {
		return Notice{}, false
	}
	return active[len(active)-1], true
}

// Dismiss hides the notice with id. Unknown or evicted ids are ignored.
func (r *Ring) Dismiss(id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.each(func(n *Notice) {
		if n.ID == id {
			n.Dismissed = true
		}
	})
}

// Len returns the number of buffered notices, dismissed or not.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}
