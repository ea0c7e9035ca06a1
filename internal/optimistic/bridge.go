// Package optimistic applies user mutations (vote, hide, delete) to the
// feed cache before the server confirms them, and commits or rolls them
// back once it answers.
//
// Every mutation returns a Token. Exactly one of Commit or Rollback must be
// called for it. Only one mutation per item and class may be outstanding; a
// repeat while one is pending is refused with ErrPending rather than
// stacked on top.
package optimistic

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/abelbrown/threadline/internal/feed"
	"github.com/abelbrown/threadline/internal/feedstore"
	"github.com/abelbrown/threadline/internal/logging"
)

var (
	// ErrPending means a mutation of the same class is already outstanding
	// for the item.
	ErrPending = errors.New("mutation already pending")
	// ErrResolved means the token was already committed or rolled back.
	ErrResolved = errors.New("mutation already resolved")
	// ErrNotFound means no cached feed holds the item.
	ErrNotFound = errors.New("item not in any feed")
	// ErrNotVotable is returned for votes on communities, lists and
	// notifications.
	ErrNotVotable = errors.New("item cannot be voted on")
)

// Class groups mutations that touch the same fields.
type Class int

const (
	ClassVote Class = iota
	ClassHide
	ClassDelete
)

func (c Class) String() string {
	switch c {
	case ClassVote:
		return "vote"
	case ClassHide:
		return "hide"
	case ClassDelete:
		return "delete"
	}
	return fmt.Sprintf("class(%d)", int(c))
}

func (c Class) removes() bool {
	return c == ClassHide || c == ClassDelete
}

// Token is the handle for one outstanding mutation.
type Token struct {
	key    string
	class  Class
	prior  feed.Item
	intent feed.VoteState
	snaps  []feedstore.Snapshot

	resolved bool
}

func (t *Token) Key() string { return t.key }
func (t *Token) Class() Class { return t.class }

// priorVotes is the tally feedID held before the mutation.
func (t *Token) priorVotes(feedID string) feed.Votes {
	for _, sn := range t.snaps {
		if sn.FeedID == feedID {
			v, _ := sn.Item.Votes()
			return v
		}
	}
	v, _ := t.prior.Votes()
	return v
}

type pendingKey struct {
	key   string
	class Class
}

// Bridge owns the bookkeeping of outstanding mutations. It is safe for
// concurrent use; resolution usually happens on a network goroutine.
type Bridge struct {
	store *feedstore.Store

	mu      sync.Mutex
	pending map[pendingKey]*Token
}

// New returns a bridge over store.
func New(store *feedstore.Store) *Bridge {
	return &Bridge{store: store, pending: make(map[pendingKey]*Token)}
}

// Pending reports whether a mutation of class is outstanding for key.
func (b *Bridge) Pending(key string, class Class) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.pending[pendingKey{key, class}]
	return ok
}

// Apply rewrites every cached copy of key with transform. For hide and
// delete, transform is ignored and the item is removed from every feed.
func (b *Bridge) Apply(key string, class Class, transform func(feed.Item) feed.Item) (*Token, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	prior, ok := b.store.FindItem(key)
	if !ok {
		return nil, ErrNotFound
	}
	return b.applyLocked(prior, class, 0, transform)
}

func (b *Bridge) applyLocked(prior feed.Item, class Class, intent feed.VoteState, transform func(feed.Item) feed.Item) (*Token, error) {
	key := prior.Key
	pk := pendingKey{key, class}
	if _, busy := b.pending[pk]; busy {
		return nil, ErrPending
	}

	tok := &Token{key: key, class: class, prior: prior, intent: intent}
	if class.removes() {
		tok.snaps = b.store.RemoveItem(key)
	} else {
		tok.snaps = b.store.UpdateItem(key, transform)
	}
	b.pending[pk] = tok
	logging.Debug("optimistic apply", "key", key, "class", class, "feeds", len(tok.snaps))
	return tok, nil
}

// ApplyVote runs the vote state machine on key. The intent sent to the
// server is computed from the copy in feedID, the feed the user voted in.
func (b *Bridge) ApplyVote(feedID, key string, action feed.VoteAction) (*Token, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	it, ok := b.store.FindItem(key, feedID)
	if !ok {
		return nil, ErrNotFound
	}
	v, votable := it.Votes()
	if !votable {
		return nil, ErrNotVotable
	}
	intent := v.Apply(action).Mine
	return b.applyLocked(it, ClassVote, intent, func(cur feed.Item) feed.Item {
		cv, _ := cur.Votes()
		return cur.WithVotes(cv.Apply(action))
	})
}

// ApplyRemoval hides or deletes key.
func (b *Bridge) ApplyRemoval(key string, class Class) (*Token, error) {
	if !class.removes() {
		return nil, fmt.Errorf("%v is not a removal", class)
	}
	return b.Apply(key, class, nil)
}

// resolveLocked marks tok done.
func (b *Bridge) resolveLocked(tok *Token) error {
	if tok.resolved {
		return ErrResolved
	}
	tok.resolved = true
	pk := pendingKey{tok.key, tok.class}
	if b.pending[pk] == tok {
		delete(b.pending, pk)
	}
	return nil
}

// patchRemovedLocked rewrites the copies a pending hide or delete of key
// would put back on rollback. A vote that resolves while its item is
// removed lands there instead of in the store.
func (b *Bridge) patchRemovedLocked(key string, fn func(sn *feedstore.Snapshot)) {
	for _, class := range []Class{ClassHide, ClassDelete} {
		rm, ok := b.pending[pendingKey{key, class}]
		if !ok {
			continue
		}
		for i := range rm.snaps {
			fn(&rm.snaps[i])
		}
	}
}

// Commit accepts the server's answer. For votes, authoritative (when not
// nil) replaces every cached copy of the item, including copies held back
// by a pending removal. Removals stay removed.
func (b *Bridge) Commit(tok *Token, authoritative *feed.Item) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.resolveLocked(tok); err != nil {
		return err
	}
	if authoritative != nil && !tok.class.removes() {
		a := *authoritative
		b.patchRemovedLocked(tok.key, func(sn *feedstore.Snapshot) {
			next := a
			next.Key, next.Type, next.Height = sn.Item.Key, sn.Item.Type, sn.Item.Height
			sn.Item = next
		})
		b.store.UpdateItem(tok.key, func(feed.Item) feed.Item { return a })
	}
	logging.Debug("optimistic commit", "key", tok.key, "class", tok.class)
	return nil
}

// Rollback restores the pre-mutation item in every feed whose generation
// is unchanged. Removed items go back at their original index.
func (b *Bridge) Rollback(tok *Token) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.resolveLocked(tok); err != nil {
		return err
	}
	if tok.class.removes() {
		b.store.Reinsert(tok.snaps)
	} else {
		b.patchRemovedLocked(tok.key, func(sn *feedstore.Snapshot) {
			sn.Item = sn.Item.WithVotes(tok.priorVotes(sn.FeedID))
		})
		b.store.Restore(tok.snaps, func(_, prior feed.Item) feed.Item { return prior })
	}
	logging.Info("optimistic rollback", "key", tok.key, "class", tok.class)
	return nil
}

// Server is the mutation side of the remote API.
type Server interface {
	CastVote(ctx context.Context, item feed.Item, score feed.VoteState) (feed.Item, error)
	Hide(ctx context.Context, item feed.Item) error
	Delete(ctx context.Context, item feed.Item) error
}

// MutationError is a mutation the server refused or never answered. The
// local change has been rolled back.
type MutationError struct {
	Key   string
	Class Class
	Err   error
}

func (e *MutationError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Class, e.Key, e.Err)
}

func (e *MutationError) Unwrap() error { return e.Err }

// Send performs the server call for tok and then commits or rolls back.
func (b *Bridge) Send(ctx context.Context, srv Server, tok *Token) error {
	var err error
	switch tok.class {
	case ClassVote:
		var it feed.Item
		it, err = srv.CastVote(ctx, tok.prior, tok.intent)
		if err == nil {
			return b.Commit(tok, &it)
		}
	case ClassHide:
		if err = srv.Hide(ctx, tok.prior); err == nil {
			return b.Commit(tok, nil)
		}
	case ClassDelete:
		if err = srv.Delete(ctx, tok.prior); err == nil {
			return b.Commit(tok, nil)
		}
	default:
		err = fmt.Errorf("unknown mutation class %v", tok.class)
	}

	if rbErr := b.Rollback(tok); rbErr != nil {
		return rbErr
	}
	return &MutationError{Key: tok.key, Class: tok.class, Err: err}
}
