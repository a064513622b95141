package db

import (
	"context"
	"fmt"

	"github.com/roach88/lunadb/internal/doc"
	"github.com/roach88/lunadb/internal/kv"
)

// Reserved document fields.
const (
	FieldID   = "_id"
	FieldKind = "_kind"
	FieldRev  = "_rev"
)

// Written identifies a stored document revision.
type Written struct {
	ID  string
	Rev int64
}

// kindOf looks up the kind of document id in the id index.
func (s *Store) kindOf(ctx context.Context, id string) (string, bool, error) {
	v, ok, err := s.tree.Get(ctx, indexPath(id))
	if err != nil {
		return "", false, fmt.Errorf("index %s: %w", id, err)
	}
	kind, isStr := v.(doc.String)
	if !ok || !isStr {
		return "", false, nil
	}
	return string(kind), true, nil
}

// Put stores objects as new documents of the kinds named by their _kind.
//
// Every object is validated before anything is written: a missing _kind is
// ErrKindNotSpecified, an unregistered kind is ErrNotRegistered and a kind
// caller cannot create in is ErrPermissionDenied. On success each document
// gets a fresh id and its own revision, and all of them are committed in
// one batch.
func (s *Store) Put(ctx context.Context, caller string, objects []doc.Object) ([]Written, error) {
	kinds := make([]string, len(objects))
	checked := map[string]bool{}
	for i, obj := range objects {
		kind, _ := obj.Str(FieldKind)
		if kind == "" {
			return nil, kindErr("", ErrKindNotSpecified)
		}
		kinds[i] = kind
		if checked[kind] {
			continue
		}
		exists, err := s.KindExists(ctx, kind)
		if err != nil {
			return nil, err
		}
		if !exists {
			return nil, kindErr(kind, ErrNotRegistered)
		}
		allowed, err := s.Check(ctx, OpCreate, kind, caller)
		if err != nil {
			return nil, err
		}
		if !allowed {
			return nil, kindErr(kind, ErrPermissionDenied)
		}
		checked[kind] = true
	}

	written := make([]Written, 0, len(objects))
	err := s.mutate(ctx, func(tx *kv.Txn, revs *revisions) error {
		for i, obj := range objects {
			id := s.ids.Generate()
			rev := revs.next()
			body := obj.Merge(doc.Object{
				FieldID:  doc.String(id),
				FieldRev: doc.Int(rev),
			})
			if err := tx.Set(documentPath(kinds[i], id), body); err != nil {
				return err
			}
			if err := tx.Set(indexPath(id), doc.String(kinds[i])); err != nil {
				return err
			}
			written = append(written, Written{ID: id, Rev: rev})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("put: %w", err)
	}
	return written, nil
}

// Get returns document id if caller may read its kind. Unknown and
// unreadable ids are both reported as not found.
func (s *Store) Get(ctx context.Context, caller, id string) (doc.Object, bool, error) {
	kind, ok, err := s.kindOf(ctx, id)
	if err != nil || !ok {
		return nil, false, err
	}
	readable, err := s.Check(ctx, OpRead, kind, caller)
	if err != nil || !readable {
		return nil, false, err
	}

	v, ok, err := s.tree.Get(ctx, documentPath(kind, id))
	if err != nil {
		return nil, false, fmt.Errorf("get %s: %w", id, err)
	}
	body, isObj := v.(doc.Object)
	if !ok || !isObj {
		return nil, false, nil
	}
	return body, true, nil
}

// patchFields drops the fields a merge may not change.
func patchFields(patch doc.Object) doc.Object {
	return patch.Without(FieldID, FieldKind, FieldRev)
}

// stamp merges patch into body with the next revision and stages the
// result in tx.
func stamp(tx *kv.Txn, revs *revisions, kind, id string, body, patch doc.Object) (doc.Object, int64, error) {
	rev := revs.next()
	updated := body.Merge(patchFields(patch))
	updated[FieldRev] = doc.Int(rev)
	if err := tx.Set(documentPath(kind, id), updated); err != nil {
		return nil, 0, err
	}
	return updated, rev, nil
}

// UpdateDocument merges patch into document id of kind with a new
// revision. It reports false, writing nothing, if the document is absent.
func (s *Store) UpdateDocument(ctx context.Context, kind, id string, patch doc.Object) (Written, bool, error) {
	v, ok, err := s.tree.Get(ctx, documentPath(kind, id))
	if err != nil {
		return Written{}, false, fmt.Errorf("update %s: %w", id, err)
	}
	body, isObj := v.(doc.Object)
	if !ok || !isObj {
		return Written{}, false, nil
	}

	var rev int64
	err = s.mutate(ctx, func(tx *kv.Txn, revs *revisions) error {
		_, rev, err = stamp(tx, revs, kind, id, body, patch)
		return err
	})
	if err != nil {
		return Written{}, false, fmt.Errorf("update %s: %w", id, err)
	}
	return Written{ID: id, Rev: rev}, true, nil
}

// MergeObjects applies each object as a patch to the document named by its
// _id. All objects are checked first: a missing, unknown or unreadable _id
// is ErrNotFound and a document whose kind caller cannot update is
// ErrPermissionDenied. Either way nothing is written. An _id listed twice
// is patched twice, in order.
func (s *Store) MergeObjects(ctx context.Context, caller string, objects []doc.Object) ([]Written, error) {
	type target struct {
		id, kind string
	}
	targets := make([]target, len(objects))
	bodies := map[string]doc.Object{}
	for i, obj := range objects {
		id, _ := obj.Str(FieldID)
		if id == "" {
			return nil, fmt.Errorf("merge object %d: %w", i, ErrNotFound)
		}
		body, ok, err := s.Get(ctx, caller, id)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("merge %s: %w", id, ErrNotFound)
		}
		kind, _, err := s.kindOf(ctx, id)
		if err != nil {
			return nil, err
		}
		allowed, err := s.Check(ctx, OpUpdate, kind, caller)
		if err != nil {
			return nil, err
		}
		if !allowed {
			return nil, kindErr(kind, ErrPermissionDenied)
		}
		targets[i] = target{id: id, kind: kind}
		bodies[id] = body
	}

	written := make([]Written, 0, len(objects))
	err := s.mutate(ctx, func(tx *kv.Txn, revs *revisions) error {
		for i, t := range targets {
			updated, rev, err := stamp(tx, revs, t.kind, t.id, bodies[t.id], objects[i])
			if err != nil {
				return err
			}
			bodies[t.id] = updated
			written = append(written, Written{ID: t.id, Rev: rev})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("merge: %w", err)
	}
	return written, nil
}

// MergeQuery applies patch to every document matching q, evaluated in
// search mode. caller must be able to read the kind and, when anything
// matches, update it. It returns the number of documents updated.
func (s *Store) MergeQuery(ctx context.Context, caller string, q Query, patch doc.Object) (int, error) {
	docs, err := s.match(ctx, caller, q, ModeSearch)
	if err != nil {
		return 0, err
	}
	if len(docs) == 0 {
		return 0, nil
	}
	allowed, err := s.Check(ctx, OpUpdate, q.From, caller)
	if err != nil {
		return 0, err
	}
	if !allowed {
		return 0, kindErr(q.From, ErrPermissionDenied)
	}

	err = s.mutate(ctx, func(tx *kv.Txn, revs *revisions) error {
		for _, d := range docs {
			id, _ := d.Str(FieldID)
			if _, _, err := stamp(tx, revs, q.From, id, d, patch); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("merge: %w", err)
	}
	return len(docs), nil
}

// DeleteIDs removes each listed document caller may delete and returns the
// ids actually removed, in request order. Unknown ids and ids in kinds
// caller cannot delete from are skipped.
func (s *Store) DeleteIDs(ctx context.Context, caller string, docIDs []string) ([]string, error) {
	type target struct {
		id, kind string
	}
	var targets []target
	seen := map[string]bool{}
	for _, id := range docIDs {
		if seen[id] {
			continue
		}
		seen[id] = true
		kind, ok, err := s.kindOf(ctx, id)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		allowed, err := s.Check(ctx, OpDelete, kind, caller)
		if err != nil {
			return nil, err
		}
		if allowed {
			targets = append(targets, target{id: id, kind: kind})
		}
	}
	if len(targets) == 0 {
		return []string{}, nil
	}

	err := s.tree.Update(ctx, func(tx *kv.Txn) error {
		for _, t := range targets {
			if err := tx.Delete(documentPath(t.kind, t.id)); err != nil {
				return err
			}
			if err := tx.Delete(indexPath(t.id)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("delete: %w", err)
	}

	removed := make([]string, len(targets))
	for i, t := range targets {
		removed[i] = t.id
	}
	return removed, nil
}

// DeleteQuery removes every document matching q, evaluated in search mode,
// that caller may delete. It returns how many were removed.
func (s *Store) DeleteQuery(ctx context.Context, caller string, q Query) (int, error) {
	docs, err := s.match(ctx, caller, q, ModeSearch)
	if err != nil {
		return 0, err
	}
	docIDs := make([]string, 0, len(docs))
	for _, d := range docs {
		if id, ok := d.Str(FieldID); ok {
			docIDs = append(docIDs, id)
		}
	}
	removed, err := s.DeleteIDs(ctx, caller, docIDs)
	if err != nil {
		return 0, err
	}
	return len(removed), nil
}
