package notice

import (
	"sync"
	"testing"
	"time"
)

var t0 = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestPushAndActive(t *testing.T) {
	r := NewRing(8, time.Minute)
	for i := 0; i < 3; i++ {
		r.Push(Info, "hello", t0.Add(time.Duration(i)*time.Second))
	}

	active := r.Active(t0.Add(5 * time.Second))
	if len(active) != 3 {
		t.Fatalf("active = %d, want 3", len(active))
	}
	if active[0].ID != 1 || active[2].ID != 3 {
		t.Errorf("order = %d..%d", active[0].ID, active[2].ID)
	}
}

func TestWrapAroundEvictsOldest(t *testing.T) {
	r := NewRing(4, time.Minute)
	for i := 0; i < 8; i++ {
		r.Push(Info, "n", t0)
	}

	active := r.Active(t0)
	if len(active) != 4 || active[0].ID != 5 {
		t.Errorf("expected ids 5..8, got %d notices starting at %d", len(active), active[0].ID)
	}
	if r.Len() != 4 {
		t.Errorf("Len = %d", r.Len())
	}
}

func TestExpiry(t *testing.T) {
	r := NewRing(4, 5*time.Second)
	r.Push(Error, "old", t0)
	r.Push(Error, "new", t0.Add(4*time.Second))

	n, ok := r.Latest(t0.Add(6 * time.Second))
	if !ok || n.Text != "new" {
		t.Errorf("latest = %+v, %v", n, ok)
	}
	if got := r.Active(t0.Add(6 * time.Second)); len(got) != 1 {
		t.Errorf("active = %d, want 1", len(got))
	}
	if _, ok := r.Latest(t0.Add(time.Hour)); ok {
		t.Error("expired notice still active")
	}
}

func TestDismiss(t *testing.T) {
	r := NewRing(4, time.Minute)
	a := r.Errorf(t0, "load failed: %s", "timeout")
	r.Push(Info, "b", t0)

	r.Dismiss(a)
	r.Dismiss(999)
	active := r.Active(t0)
	if len(active) != 1 || active[0].Text != "b" {
		t.Errorf("active = %+v", active)
	}
}

func TestConcurrentPush(t *testing.T) {
	r := NewRing(16, time.Minute)
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				r.Push(Info, "x", t0)
			}
		}()
	}
	wg.Wait()

	if n, _ := r.Latest(t0); n.ID != 400 {
		t.Errorf("latest id = %d, want 400", n.ID)
	}
}
