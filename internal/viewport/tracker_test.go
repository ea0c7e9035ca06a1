package viewport

import (
	"fmt"
	"testing"

	"github.com/abelbrown/threadline/internal/feed"
	"github.com/abelbrown/threadline/internal/feedstore"
)

func loadPosts(t *testing.T, n int) *feedstore.Store {
	t.Helper()
	s := feedstore.New()
	t.Cleanup(s.Close)
	items := make([]feed.Item, n)
	for i := range items {
		items[i] = feed.NewItem(feed.Post{ID: int64(i + 1), Title: fmt.Sprintf("post %d", i+1)})
	}
	s.Put("home", items, "c1", true)
	return s
}

func TestRestoreScenarioReturnToSeventhItem(t *testing.T) {
	s := loadPosts(t, 20)

	tr := New(s, "home")
	for i := 1; i <= 20; i++ {
		tr.OnItemMeasured(fmt.Sprintf("post:%d", i), 3)
	}
	tr.SetVisible([]string{"post:7", "post:8", "post:9"})
	tr.SetVisible([]string{"post:8", "post:9", "post:7"})
	tr.NavigateAway()

	before, _ := s.Get("home")

	remount := New(s, "home")
	a, ok := remount.Restore()
	if !ok {
		t.Fatal("expected an anchor")
	}
	if a.Key != "post:7" || a.Index != 6 {
		t.Errorf("anchor = %+v, want post:7 at 6", a)
	}
	if !a.Measured || a.Offset != 18 {
		t.Errorf("offset = %v (measured %v), want 18", a.Offset, a.Measured)
	}

	after, _ := s.Get("home")
	if after.Generation != before.Generation || len(after.Items) != 20 {
		t.Error("restore must not touch the loaded page")
	}
}

func TestRestoreEarliestInFeedOrder(t *testing.T) {
	s := loadPosts(t, 10)
	s.SetInViewKeys("home", []string{"post:9", "post:4", "post:5"})

	f, _ := s.Get("home")
	a, ok := Restore(f)
	if !ok || a.Key != "post:4" {
		t.Errorf("anchor = %+v, want post:4", a)
	}
}

func TestRestoreWithoutHeightsAlignsByIndex(t *testing.T) {
	s := loadPosts(t, 10)
	s.UpdateItemHeight("home", "post:1", 2)
	// post:2 never measured
	s.UpdateItemHeight("home", "post:3", 2)
	s.SetInViewKeys("home", []string{"post:3"})

	f, _ := s.Get("home")
	a, _ := Restore(f)
	if a.Measured || a.Offset != 0 {
		t.Errorf("offset guessed across an unmeasured item: %+v", a)
	}
	if a.Index != 2 {
		t.Errorf("index = %d, want 2", a.Index)
	}
}

func TestRestoreUnmeasuredAnchor(t *testing.T) {
	s := loadPosts(t, 5)
	s.SetInViewKeys("home", []string{"post:1"})

	f, _ := s.Get("home")
	a, ok := Restore(f)
	if !ok || a.Measured {
		t.Errorf("unmeasured anchor reported measured: %+v", a)
	}
}

func TestRestoreNothingInView(t *testing.T) {
	s := loadPosts(t, 5)
	f, _ := s.Get("home")
	if _, ok := Restore(f); ok {
		t.Error("expected no anchor for empty snapshot")
	}

	s.SetInViewKeys("home", []string{"post:99"})
	f, _ = s.Get("home")
	if _, ok := Restore(f); ok {
		t.Error("expected no anchor when in-view keys are gone")
	}
}

func TestNavigateAwayOnlyOnce(t *testing.T) {
	s := loadPosts(t, 5)
	tr := New(s, "home")

	tr.ItemEntered("post:2")
	tr.NavigateAway()
	tr.ItemEntered("post:5")
	tr.ItemLeft("post:2")
	if got := tr.NavigateAway(); got != nil {
		t.Errorf("second navigate away wrote %v", got)
	}

	f, _ := s.Get("home")
	if !f.InView("post:2") || f.InView("post:5") {
		t.Errorf("snapshot = %v", f.InViewKeys)
	}
}

func TestEnteredLeft(t *testing.T) {
	tr := New(loadPosts(t, 3), "home")
	tr.ItemEntered("post:1")
	tr.ItemEntered("post:2")
	tr.ItemLeft("post:1")
	if got := tr.Visible(); len(got) != 1 || got[0] != "post:2" {
		t.Errorf("visible = %v", got)
	}
}
