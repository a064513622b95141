// Package db implements the lunadb document-store engine.
//
// A Store owns every piece of engine state: the kind registry with its
// access-control lists, the documents of each kind, the id index mapping a
// document id back to its kind, the global revision counter and the set of
// pending watches. All of it is persisted in one kv.Tree:
//
//	<kind>.owner                 owning caller id
//	<kind>.private               removed with its owner when true
//	<kind>.accessible.<callerId> granted operations
//	<kind>.data.<id>             document body
//	mappingIdKind.<id>           kind of document <id>
//	revId                        last revision handed out
//
// Each path element is a separate Tree segment, so kind names and caller ids
// keep their dots.
//
// # Atomicity
//
// Every mutating operation validates its whole input first and then commits
// document bodies, id index entries and the revision counter in a single
// Tree batch. A rejected call leaves no trace: no id is allocated and the
// revision counter does not move.
//
// # Concurrency
//
// A Store is not safe for concurrent use. lunadb runs every call on one
// goroutine (see service.Loop); watch re-evaluation happens on that same
// goroutine from the Tree's change hook.
package db
