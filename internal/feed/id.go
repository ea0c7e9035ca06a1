package feed

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// NewID derives a feed id from everything that selects its contents. The
// same endpoint, sort and filters always produce the same id regardless of
// map iteration order, so revisiting a route finds the cached entry.
func NewID(endpoint, sort string, filters map[string]string) string {
	q := url.Values{}
	for k, v := range filters {
		q.Set(k, v)
	}
	if sort != "" {
		q.Set("sort", sort)
	}

	h := xxhash.New()
	h.WriteString(strings.TrimRight(endpoint, "/"))
	h.WriteString("?")
	// Encode sorts by key.
	h.WriteString(q.Encode())

	return fmt.Sprintf("%s#%016x", strings.Trim(endpoint, "/"), h.Sum64())
}
