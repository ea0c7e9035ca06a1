package feed

// VoteState is the caller's own vote on an item.
type VoteState int

const (
	VoteNone VoteState = 0
	VoteUp   VoteState = 1
	VoteDown VoteState = -1
)

func (s VoteState) String() string {
	switch s {
	case VoteUp:
		return "up"
	case VoteDown:
		return "down"
	default:
		return "none"
	}
}

// VoteAction is what the user pressed.
type VoteAction int

const (
	ActionUp VoteAction = iota
	ActionDown
)

// Votes holds raw tallies plus the caller's vote. Display preferences never
// change these numbers; see Score.
type Votes struct {
	Up   int
	Down int
	Mine VoteState
}

// Apply runs the three-state vote machine:
//
//	none + up   -> up    (+1 up)
//	none + down -> down  (+1 down)
//	up   + up   -> none  (-1 up)
//	up   + down -> down  (-1 up, +1 down)
//	down + down -> none  (-1 down)
//	down + up   -> up    (-1 down, +1 up)
func (v Votes) Apply(a VoteAction) Votes {
	switch {
	case a == ActionUp && v.Mine == VoteUp:
		v.Up--
		v.Mine = VoteNone
	case a == ActionUp:
		if v.Mine == VoteDown {
			v.Down--
		}
		v.Up++
		v.Mine = VoteUp
	case a == ActionDown && v.Mine == VoteDown:
		v.Down--
		v.Mine = VoteNone
	case a == ActionDown:
		if v.Mine == VoteUp {
			v.Up--
		}
		v.Down++
		v.Mine = VoteDown
	}
	return v
}

// Score is the rendered aggregate. With hideDownvotes only upvotes count.
func (v Votes) Score(hideDownvotes bool) int {
	if hideDownvotes {
		return v.Up
	}
	return v.Up - v.Down
}
