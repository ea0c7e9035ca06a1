package api

import (
	"testing"

	"github.com/abelbrown/threadline/internal/feedstore"
	"github.com/abelbrown/threadline/internal/pagination"
)

func newController(t *testing.T) *pagination.Controller {
	t.Helper()
	s := feedstore.New()
	t.Cleanup(s.Close)
	return pagination.New(s)
}
