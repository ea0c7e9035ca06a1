package feed

// Page is one response from a fetcher. Next is the opaque cursor for the
// following page; "" means the server has no more.
type Page struct {
	Items []Item
	Next  string
}

// Feed is a read-only snapshot of one cached feed.
type Feed struct {
	ID    string
	Items []Item
	Next  string

	// Loaded is set by the first successful full replace and cleared by
	// invalidation.
	Loaded bool

	// InViewKeys is the visibility snapshot taken when the view last
	// navigated away.
	InViewKeys map[string]struct{}

	// Generation increments on every full replace or invalidation.
	Generation uint64

	// FetchingNext mirrors the store's in-flight flag for next-page fetches.
	FetchingNext bool
}

// Exhausted reports that the current generation has no further pages.
func (f Feed) Exhausted() bool {
	return f.Loaded && f.Next == ""
}

// IndexOf returns the position of key, or -1.
func (f Feed) IndexOf(key string) int {
	for i, it := range f.Items {
		if it.Key == key {
			return i
		}
	}
	return -1
}

// InView reports whether key was visible at the last snapshot.
func (f Feed) InView(key string) bool {
	_, ok := f.InViewKeys[key]
	return ok
}
