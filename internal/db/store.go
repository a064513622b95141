package db

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/lunadb/internal/doc"
	"github.com/roach88/lunadb/internal/ids"
	"github.com/roach88/lunadb/internal/kv"
)

// Reserved top-level segments. They can never be kind names.
const (
	revisionKey = "revId"
	indexKey    = "mappingIdKind"
)

// IsReserved reports whether name collides with engine bookkeeping.
func IsReserved(name string) bool {
	return name == revisionKey || name == indexKey
}

// Store is the document-store engine. See the package documentation.
type Store struct {
	tree    *kv.Tree
	ids     ids.Generator
	rev     *Revision
	watches watchRegistry
	logger  *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithIDGenerator sets the generator document and reserved ids come from.
// The default generates ULIDs.
func WithIDGenerator(g ids.Generator) Option {
	return func(s *Store) {
		s.ids = g
	}
}

// WithLogger sets the logger used for diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		s.logger = l
	}
}

// Open creates a Store on tree, resuming the revision counter persisted
// there.
func Open(ctx context.Context, tree *kv.Tree, opts ...Option) (*Store, error) {
	s := &Store{
		tree:   tree,
		ids:    ids.ULID{},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	last, err := s.loadRevision(ctx)
	if err != nil {
		return nil, err
	}
	s.rev = NewRevisionAt(last)
	return s, nil
}

func (s *Store) loadRevision(ctx context.Context) (int64, error) {
	v, ok, err := s.tree.Get(ctx, kv.P(revisionKey))
	if err != nil {
		return 0, fmt.Errorf("load revision: %w", err)
	}
	if !ok {
		return 0, nil
	}
	n, isInt := v.(doc.Int)
	if !isInt {
		return 0, fmt.Errorf("load revision: %s is %s, want integer", revisionKey, doc.TypeName(v))
	}
	return int64(n), nil
}

// Tree returns the tree the store persists to.
func (s *Store) Tree() *kv.Tree {
	return s.tree
}

// Revision returns the last committed revision.
func (s *Store) Revision() int64 {
	return s.rev.Current()
}

// Reset wipes every kind, document and pending watch, and restarts the
// revision counter at zero.
func (s *Store) Reset(ctx context.Context) error {
	s.watches.clear()
	if err := s.tree.Reset(ctx); err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	s.rev.commit(0)
	return nil
}

// MaxReserveIDs is the largest count a single ReserveIDs call accepts.
const MaxReserveIDs = 1000

// ReserveIDs allocates n fresh ids without storing anything. A negative n
// yields none; n above MaxReserveIDs fails with ErrTooManyIDs.
func (s *Store) ReserveIDs(n int64) ([]string, error) {
	if n > MaxReserveIDs {
		return nil, fmt.Errorf("reserve %d: %w (max %d)", n, ErrTooManyIDs, MaxReserveIDs)
	}
	out := make([]string, 0, max(n, 0))
	for i := int64(0); i < n; i++ {
		out = append(out, s.ids.Generate())
	}
	return out, nil
}

// mutate runs fn in one tree transaction with tentative revisions and
// commits the counter after the batch is durable.
func (s *Store) mutate(ctx context.Context, fn func(tx *kv.Txn, revs *revisions) error) error {
	revs := s.rev.begin()
	start := revs.last
	err := s.tree.Update(ctx, func(tx *kv.Txn) error {
		if err := fn(tx, revs); err != nil {
			return err
		}
		if revs.last != start {
			return tx.Set(kv.P(revisionKey), doc.Int(revs.last))
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.rev.commit(revs.last)
	return nil
}
