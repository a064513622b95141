package db

import (
	"context"
	"slices"

	"github.com/roach88/lunadb/internal/doc"
)

// Subscriber receives the notification of a fired watch.
type Subscriber interface {
	Notify(payload doc.Object)
}

// SubscriberFunc adapts a function to Subscriber.
type SubscriberFunc func(payload doc.Object)

// Notify implements Subscriber.
func (f SubscriberFunc) Notify(payload doc.Object) { f(payload) }

// WatchEntry is a pending subscription: a query that has not matched yet.
type WatchEntry struct {
	Token      string
	Caller     string
	Query      Query
	Subscriber Subscriber
}

// watchRegistry holds pending entries and the outbox of fired ones.
// The store-wide change hook is installed while entries are pending.
type watchRegistry struct {
	entries []*WatchEntry
	outbox  []*WatchEntry
	remove  func()
}

func (w *watchRegistry) clear() {
	w.entries = nil
	w.outbox = nil
	w.uninstall()
}

func (w *watchRegistry) uninstall() {
	if w.remove != nil {
		w.remove()
		w.remove = nil
	}
}

// cancel removes every pending entry registered under token.
func (w *watchRegistry) cancel(token string) bool {
	before := len(w.entries)
	w.entries = slices.DeleteFunc(slices.Clone(w.entries), func(e *WatchEntry) bool {
		return e.Token == token
	})
	if len(w.entries) == 0 {
		w.uninstall()
	}
	return len(w.entries) < before
}

func (w *watchRegistry) cancelCaller(caller string) {
	w.entries = slices.DeleteFunc(slices.Clone(w.entries), func(e *WatchEntry) bool {
		return e.Caller == caller
	})
	if len(w.entries) == 0 {
		w.uninstall()
	}
}

// Watch evaluates q for caller exactly like Find. It reports fired when
// the result is already non-empty. Otherwise, when subscribe is set, it
// registers a pending entry under token that fires once, on the first
// committed write after which q matches. Several entries may share a
// token; each fires on its own and CancelWatch drops them all.
func (s *Store) Watch(ctx context.Context, caller, token string, q Query, subscribe bool, sub Subscriber) (fired bool, err error) {
	docs, err := s.match(ctx, caller, q, ModeFind)
	if err != nil {
		return false, err
	}
	if len(docs) > 0 {
		return true, nil
	}
	if !subscribe {
		return false, nil
	}

	if s.watches.remove == nil {
		s.watches.remove = s.tree.OnChange(s.reevaluate)
	}
	s.watches.entries = append(s.watches.entries, &WatchEntry{
		Token:      token,
		Caller:     caller,
		Query:      q,
		Subscriber: sub,
	})
	s.logger.Debug("watch registered", "token", token, "caller", caller, "kind", q.From)
	return false, nil
}

// reevaluate is the change hook: it runs every pending query again, each
// for its own caller, and moves the ones that now match to the outbox.
// An entry whose query fails keeps waiting.
func (s *Store) reevaluate(ctx context.Context) {
	snapshot := slices.Clone(s.watches.entries)
	pending := make([]*WatchEntry, 0, len(snapshot))
	for _, e := range snapshot {
		docs, err := s.match(ctx, e.Caller, e.Query, ModeFind)
		if err != nil {
			s.logger.Debug("watch re-evaluation failed", "token", e.Token, "error", err)
			pending = append(pending, e)
			continue
		}
		if len(docs) == 0 {
			pending = append(pending, e)
			continue
		}
		s.logger.Debug("watch fired", "token", e.Token, "caller", e.Caller, "kind", e.Query.From)
		s.watches.outbox = append(s.watches.outbox, e)
	}

	s.watches.entries = pending
	if len(pending) == 0 {
		s.watches.uninstall()
	}
}

// CancelWatch removes the pending entries registered under token.
// It reports false when none is pending.
func (s *Store) CancelWatch(token string) bool {
	return s.watches.cancel(token)
}

// PendingWatches returns the number of entries waiting to fire.
func (s *Store) PendingWatches() int {
	return len(s.watches.entries)
}

// DrainFired returns the entries fired since the last call, in firing
// order, and empties the outbox. Delivering them is up to the caller.
func (s *Store) DrainFired() []*WatchEntry {
	fired := s.watches.outbox
	s.watches.outbox = nil
	return fired
}
