package kv

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/lunadb/internal/doc"
)

// DefaultNamespace is the root segment every Tree path lives under unless
// another namespace is configured.
const DefaultNamespace = "db8"

// ChangeFunc is invoked after every committed write.
type ChangeFunc func(ctx context.Context)

type hook struct {
	fn      ChangeFunc
	removed bool
}

// Tree is a hierarchical key-value store over a flat Backend.
//
// Get reassembles objects from their leaves; Set replaces a whole sub-tree;
// Delete removes one. Batches of writes go through Update and commit
// atomically with a single change notification.
type Tree struct {
	backend Backend
	root    Path
	hooks   []*hook
	logger  *slog.Logger
}

// TreeOption configures a Tree.
type TreeOption func(*Tree)

// WithLogger sets the logger used for hook diagnostics.
func WithLogger(l *slog.Logger) TreeOption {
	return func(t *Tree) {
		t.logger = l
	}
}

// NewTree creates a Tree rooted at namespace on backend.
// An empty namespace selects DefaultNamespace.
func NewTree(backend Backend, namespace string, opts ...TreeOption) *Tree {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	t := &Tree{
		backend: backend,
		root:    P(namespace),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Backend returns the underlying flat store.
func (t *Tree) Backend() Backend {
	return t.backend
}

// Namespace returns the root segment of the tree.
func (t *Tree) Namespace() string {
	return t.root[0]
}

func (t *Tree) key(p Path) []byte {
	return encodePath(t.root.Child(p...))
}

// Get returns the value at p. Objects are reassembled from every leaf below p.
// ok is false if nothing is stored at or below p.
func (t *Tree) Get(ctx context.Context, p Path) (doc.Value, bool, error) {
	key := t.key(p)

	raw, ok, err := t.backend.Get(ctx, key)
	if err != nil {
		return nil, false, fmt.Errorf("get %s: %w", p, err)
	}
	if ok {
		v, err := doc.Parse(raw)
		if err != nil {
			return nil, false, fmt.Errorf("get %s: decode leaf: %w", p, err)
		}
		return v, true, nil
	}

	var (
		obj   doc.Object
		found bool
	)
	err = t.backend.Scan(ctx, key, func(k, v []byte) error {
		rest, err := decodeSegments(k[len(key):])
		if err != nil {
			return err
		}
		if len(rest) == 0 {
			return nil
		}
		leaf, err := doc.Parse(v)
		if err != nil {
			return fmt.Errorf("decode leaf %s: %w", p.Child(rest...), err)
		}
		if obj == nil {
			obj = doc.Object{}
		}
		insertLeaf(obj, rest, leaf)
		found = true
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("get %s: %w", p, err)
	}
	if !found {
		return nil, false, nil
	}
	return obj, true, nil
}

// insertLeaf stores leaf at rest below obj, creating intermediate objects.
func insertLeaf(obj doc.Object, rest Path, leaf doc.Value) {
	cur := obj
	for _, seg := range rest[:len(rest)-1] {
		next, ok := cur[seg].(doc.Object)
		if !ok {
			next = doc.Object{}
			cur[seg] = next
		}
		cur = next
	}
	last := rest[len(rest)-1]
	if existing, ok := cur[last].(doc.Object); ok && len(existing) > 0 {
		// A sub-tree already occupies this slot; leaves never shadow it.
		return
	}
	cur[last] = leaf
}

// Has reports whether anything is stored at or below p.
func (t *Tree) Has(ctx context.Context, p Path) (bool, error) {
	key := t.key(p)
	found := false
	err := t.backend.Scan(ctx, key, func(_, _ []byte) error {
		found = true
		return errStopScan
	})
	if err != nil && err != errStopScan {
		return false, fmt.Errorf("has %s: %w", p, err)
	}
	return found, nil
}

// errStopScan ends a scan early without reporting a failure.
var errStopScan = fmt.Errorf("stop scan")

// Children returns the names of the direct children of p in key order.
func (t *Tree) Children(ctx context.Context, p Path) ([]string, error) {
	key := t.key(p)
	var (
		names []string
		last  string
	)
	err := t.backend.Scan(ctx, key, func(k, _ []byte) error {
		rest, err := decodeSegments(k[len(key):])
		if err != nil {
			return err
		}
		if len(rest) == 0 {
			return nil
		}
		if len(names) == 0 || rest[0] != last {
			names = append(names, rest[0])
			last = rest[0]
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("children %s: %w", p, err)
	}
	return names, nil
}

// Set replaces everything at and below p with v.
func (t *Tree) Set(ctx context.Context, p Path, v doc.Value) error {
	return t.Update(ctx, func(tx *Txn) error {
		return tx.Set(p, v)
	})
}

// Delete removes everything at and below p.
func (t *Tree) Delete(ctx context.Context, p Path) error {
	return t.Update(ctx, func(tx *Txn) error {
		return tx.Delete(p)
	})
}

// Reset removes the whole namespace.
func (t *Tree) Reset(ctx context.Context) error {
	return t.Delete(ctx, P())
}

// Update runs fn with a write transaction and commits its writes as one
// atomic batch. If fn returns an error nothing is written.
// Change hooks run after a successful commit of a non-empty batch.
func (t *Tree) Update(ctx context.Context, fn func(tx *Txn) error) error {
	tx := &Txn{
		tree:    t,
		ctx:     ctx,
		overlay: make(map[string][]byte),
	}
	if err := fn(tx); err != nil {
		return err
	}
	if len(tx.order) == 0 {
		return nil
	}

	batch := &Batch{}
	for _, k := range tx.order {
		if v := tx.overlay[k]; v != nil {
			batch.Put([]byte(k), v)
		} else {
			batch.Delete([]byte(k))
		}
	}
	if err := t.backend.Write(ctx, batch); err != nil {
		return fmt.Errorf("commit %d ops: %w", batch.Len(), err)
	}

	t.notify(ctx)
	return nil
}

// OnChange installs fn as a change hook and returns a function that
// uninstalls it. Uninstalling twice is a no-op.
func (t *Tree) OnChange(fn ChangeFunc) (remove func()) {
	h := &hook{fn: fn}
	t.hooks = append(t.hooks, h)
	return func() {
		if h.removed {
			return
		}
		h.removed = true
		for i, cur := range t.hooks {
			if cur == h {
				t.hooks = append(t.hooks[:i:i], t.hooks[i+1:]...)
				break
			}
		}
	}
}

// HookCount returns the number of installed change hooks.
func (t *Tree) HookCount() int {
	return len(t.hooks)
}

func (t *Tree) notify(ctx context.Context) {
	if len(t.hooks) == 0 {
		return
	}
	snapshot := make([]*hook, len(t.hooks))
	copy(snapshot, t.hooks)
	t.logger.Debug("tree changed", "namespace", t.Namespace(), "hooks", len(snapshot))
	for _, h := range snapshot {
		if h.removed {
			continue
		}
		h.fn(ctx)
	}
}

// Txn collects writes for a single atomic commit.
// A Txn is only valid inside the Update callback that created it.
type Txn struct {
	tree    *Tree
	ctx     context.Context
	overlay map[string][]byte // encoded key -> value; nil marks a delete
	order   []string          // first-touch order of overlay keys
}

func (tx *Txn) put(key []byte, value []byte) {
	k := string(key)
	if _, seen := tx.overlay[k]; !seen {
		tx.order = append(tx.order, k)
	}
	tx.overlay[k] = value
}

func (tx *Txn) del(key []byte) {
	k := string(key)
	if _, seen := tx.overlay[k]; !seen {
		tx.order = append(tx.order, k)
	}
	tx.overlay[k] = nil
}

// Set replaces everything at and below p with v.
// Leaves stored at ancestors of p are removed so p becomes reachable.
func (tx *Txn) Set(p Path, v doc.Value) error {
	if err := tx.Delete(p); err != nil {
		return err
	}
	full := tx.tree.root.Child(p...)
	for i := 1; i < len(full); i++ {
		ancestor := encodePath(full[:i])
		if pending, seen := tx.overlay[string(ancestor)]; seen {
			if pending != nil {
				tx.del(ancestor)
			}
			continue
		}
		_, ok, err := tx.tree.backend.Get(tx.ctx, ancestor)
		if err != nil {
			return fmt.Errorf("set %s: %w", p, err)
		}
		if ok {
			tx.del(ancestor)
		}
	}
	return tx.write(p, v)
}

func (tx *Txn) write(p Path, v doc.Value) error {
	if obj, ok := v.(doc.Object); ok && len(obj) > 0 {
		for _, k := range obj.SortedKeys() {
			if err := tx.write(p.Child(k), obj[k]); err != nil {
				return err
			}
		}
		return nil
	}
	raw, err := doc.Marshal(v)
	if err != nil {
		return fmt.Errorf("set %s: %w", p, err)
	}
	tx.put(tx.tree.key(p), raw)
	return nil
}

// Delete removes everything at and below p, including writes made earlier
// in this transaction.
func (tx *Txn) Delete(p Path) error {
	prefix := tx.tree.key(p)
	var keys [][]byte
	err := tx.tree.backend.Scan(tx.ctx, prefix, func(k, _ []byte) error {
		keys = append(keys, bytes.Clone(k))
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete %s: %w", p, err)
	}
	for _, k := range keys {
		tx.del(k)
	}
	for _, k := range tx.order {
		if tx.overlay[k] != nil && bytes.HasPrefix([]byte(k), prefix) {
			tx.overlay[k] = nil
		}
	}
	return nil
}
