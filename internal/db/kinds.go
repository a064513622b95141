package db

import (
	"context"
	"fmt"
	"slices"

	"github.com/roach88/lunadb/internal/doc"
	"github.com/roach88/lunadb/internal/kv"
)

// Operation is a permission a kind's ACL can grant.
type Operation string

// Operations in canonical order.
const (
	OpRead   Operation = "read"
	OpCreate Operation = "create"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// AllOperations lists every Operation; a kind's owner holds all of them.
var AllOperations = []Operation{OpRead, OpCreate, OpUpdate, OpDelete}

// ParseOperation recognises a permission name.
func ParseOperation(s string) (Operation, bool) {
	for _, op := range AllOperations {
		if string(op) == s {
			return op, true
		}
	}
	return "", false
}

// Kind is a registered document namespace.
type Kind struct {
	Name    string
	Owner   string
	Private bool
	ACL     map[string][]Operation
}

func ownerPath(kind string) kv.Path { return kv.P(kind, "owner") }
func privatePath(kind string) kv.Path { return kv.P(kind, "private") }
func aclPath(kind string) kv.Path { return kv.P(kind, "accessible") }
func grantPath(kind, caller string) kv.Path { return kv.P(kind, "accessible", caller) }
func dataPath(kind string) kv.Path { return kv.P(kind, "data") }
func documentPath(kind, id string) kv.Path { return kv.P(kind, "data", id) }
func indexPath(id string) kv.Path { return kv.P(indexKey, id) }

// KindExists reports whether name is a registered kind.
func (s *Store) KindExists(ctx context.Context, name string) (bool, error) {
	if name == "" || IsReserved(name) {
		return false, nil
	}
	ok, err := s.tree.Has(ctx, kv.P(name))
	if err != nil {
		return false, fmt.Errorf("kind %s: %w", name, err)
	}
	return ok, nil
}

// CreateKind registers name with owner holding every operation.
// It returns false, and changes nothing, if name is already registered.
func (s *Store) CreateKind(ctx context.Context, name, owner string, private bool) (bool, error) {
	if IsReserved(name) {
		return false, kindErr(name, ErrReservedKind)
	}
	exists, err := s.KindExists(ctx, name)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}

	err = s.tree.Update(ctx, func(tx *kv.Txn) error {
		if err := tx.Set(ownerPath(name), doc.String(owner)); err != nil {
			return err
		}
		if err := tx.Set(privatePath(name), doc.Bool(private)); err != nil {
			return err
		}
		return tx.Set(grantPath(name, owner), operationsValue(AllOperations))
	})
	if err != nil {
		return false, fmt.Errorf("create kind %s: %w", name, err)
	}
	s.logger.Debug("kind created", "kind", name, "owner", owner, "private", private)
	return true, nil
}

// Kind loads the registry entry of name.
func (s *Store) Kind(ctx context.Context, name string) (*Kind, error) {
	exists, err := s.KindExists(ctx, name)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, kindErr(name, ErrNotRegistered)
	}

	k := &Kind{Name: name, ACL: map[string][]Operation{}}
	if v, ok, err := s.tree.Get(ctx, ownerPath(name)); err != nil {
		return nil, fmt.Errorf("kind %s owner: %w", name, err)
	} else if ok {
		owner, _ := v.(doc.String)
		k.Owner = string(owner)
	}
	if v, ok, err := s.tree.Get(ctx, privatePath(name)); err != nil {
		return nil, fmt.Errorf("kind %s private: %w", name, err)
	} else if ok {
		private, _ := v.(doc.Bool)
		k.Private = bool(private)
	}

	v, ok, err := s.tree.Get(ctx, aclPath(name))
	if err != nil {
		return nil, fmt.Errorf("kind %s acl: %w", name, err)
	}
	if acl, isObj := v.(doc.Object); ok && isObj {
		for caller, ops := range acl {
			k.ACL[caller] = parseOperations(ops)
		}
	}
	return k, nil
}

// Kinds returns the names of every registered kind in key order.
func (s *Store) Kinds(ctx context.Context) ([]string, error) {
	names, err := s.tree.Children(ctx, kv.P())
	if err != nil {
		return nil, fmt.Errorf("list kinds: %w", err)
	}
	return slices.DeleteFunc(names, IsReserved), nil
}

// Check is the permission guard: it reports whether caller holds op on
// kind. An unregistered kind, a caller missing from the ACL and a missing
// operation are all a plain false; use KindExists to tell them apart.
func (s *Store) Check(ctx context.Context, op Operation, kind, caller string) (bool, error) {
	if kind == "" || IsReserved(kind) {
		return false, nil
	}
	v, ok, err := s.tree.Get(ctx, grantPath(kind, caller))
	if err != nil {
		return false, fmt.Errorf("check %s on %s: %w", op, kind, err)
	}
	if !ok {
		return false, nil
	}
	return slices.Contains(parseOperations(v), op), nil
}

// GrantPermissions adds ops to target's ACL entry on kind. The grantor
// must hold update on kind. Granted operations are never duplicated.
func (s *Store) GrantPermissions(ctx context.Context, grantor, kind, target string, ops []Operation) error {
	allowed, err := s.Check(ctx, OpUpdate, kind, grantor)
	if err != nil {
		return err
	}
	if !allowed {
		return kindErr(kind, ErrPermissionDenied)
	}

	v, _, err := s.tree.Get(ctx, grantPath(kind, target))
	if err != nil {
		return fmt.Errorf("grant on %s: %w", kind, err)
	}
	granted := parseOperations(v)
	for _, op := range ops {
		if !slices.Contains(granted, op) {
			granted = append(granted, op)
		}
	}

	if err := s.tree.Set(ctx, grantPath(kind, target), operationsValue(granted)); err != nil {
		return fmt.Errorf("grant on %s: %w", kind, err)
	}
	s.logger.Debug("permissions granted", "kind", kind, "caller", target, "ops", granted)
	return nil
}

// DeleteKind removes kind with every document and id index entry.
// caller must hold delete on it.
func (s *Store) DeleteKind(ctx context.Context, caller, kind string) error {
	exists, err := s.KindExists(ctx, kind)
	if err != nil {
		return err
	}
	if !exists {
		return kindErr(kind, ErrNotRegistered)
	}
	allowed, err := s.Check(ctx, OpDelete, kind, caller)
	if err != nil {
		return err
	}
	if !allowed {
		return kindErr(kind, ErrPermissionDenied)
	}
	return s.dropKind(ctx, kind)
}

func (s *Store) dropKind(ctx context.Context, kind string) error {
	docIDs, err := s.tree.Children(ctx, dataPath(kind))
	if err != nil {
		return fmt.Errorf("drop kind %s: %w", kind, err)
	}
	err = s.tree.Update(ctx, func(tx *kv.Txn) error {
		for _, id := range docIDs {
			if err := tx.Delete(indexPath(id)); err != nil {
				return err
			}
		}
		return tx.Delete(kv.P(kind))
	})
	if err != nil {
		return fmt.Errorf("drop kind %s: %w", kind, err)
	}
	s.logger.Debug("kind deleted", "kind", kind, "documents", len(docIDs))
	return nil
}

// RemoveCaller deletes every private kind owned by caller, with their
// documents, and cancels caller's pending watches. It returns the names of
// the deleted kinds.
func (s *Store) RemoveCaller(ctx context.Context, caller string) ([]string, error) {
	s.watches.cancelCaller(caller)

	names, err := s.Kinds(ctx)
	if err != nil {
		return nil, err
	}

	var removed []string
	for _, name := range names {
		k, err := s.Kind(ctx, name)
		if err != nil {
			return removed, err
		}
		if !k.Private || k.Owner != caller {
			continue
		}
		if err := s.dropKind(ctx, name); err != nil {
			return removed, err
		}
		removed = append(removed, name)
	}
	return removed, nil
}

func operationsValue(ops []Operation) doc.Array {
	out := make(doc.Array, len(ops))
	for i, op := range ops {
		out[i] = doc.String(op)
	}
	return out
}

func parseOperations(v doc.Value) []Operation {
	arr, _ := v.(doc.Array)
	out := make([]Operation, 0, len(arr))
	for _, elem := range arr {
		if s, ok := elem.(doc.String); ok {
			if op, known := ParseOperation(string(s)); known {
				out = append(out, op)
			}
		}
	}
	return out
}
