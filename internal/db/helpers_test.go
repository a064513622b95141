package db

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/lunadb/internal/doc"
	"github.com/roach88/lunadb/internal/ids"
	"github.com/roach88/lunadb/internal/kv"
)

const notes = "com.example.notes"

// createTestStore opens a store on a fresh in-memory backend whose ids are
// X1, X2, ...
func createTestStore(t *testing.T) *Store {
	t.Helper()
	backend, err := kv.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s, err := Open(context.Background(), kv.NewTree(backend, "", kv.WithLogger(logger)),
		WithIDGenerator(ids.NewSequence("X")),
		WithLogger(logger),
	)
	require.NoError(t, err)
	return s
}

// createNotes registers the notes kind owned by app.A.
func createNotes(t *testing.T, s *Store) {
	t.Helper()
	created, err := s.CreateKind(context.Background(), notes, "app.A", false)
	require.NoError(t, err)
	require.True(t, created)
}

func putNote(t *testing.T, s *Store, caller string, fields doc.Object) Written {
	t.Helper()
	obj := fields.Merge(doc.Object{FieldKind: doc.String(notes)})
	written, err := s.Put(context.Background(), caller, []doc.Object{obj})
	require.NoError(t, err)
	require.Len(t, written, 1)
	return written[0]
}

func where(clauses ...Clause) Query {
	return Query{From: notes, Where: clauses}
}
