package db

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/lunadb/internal/doc"
)

func textIs(s string) Query {
	return where(Clause{Prop: "text", Op: OpEq, Val: doc.String(s)})
}

func TestWatch_AlreadySatisfied(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	createNotes(t, s)
	putNote(t, s, "app.A", doc.Object{"text": doc.String("hi")})

	fired, err := s.Watch(ctx, "app.A", "t1", textIs("hi"), true, nil)
	require.NoError(t, err)
	assert.True(t, fired)
	assert.Equal(t, 0, s.PendingWatches())
	assert.Equal(t, 0, s.Tree().HookCount())

	putNote(t, s, "app.A", doc.Object{"text": doc.String("hi")})
	assert.Empty(t, s.DrainFired(), "an immediate fire must not notify again")
}

func TestWatch_NoSubscribe(t *testing.T) {
	s := createTestStore(t)
	createNotes(t, s)

	fired, err := s.Watch(context.Background(), "app.A", "t1", textIs("hi"), false, nil)
	require.NoError(t, err)
	assert.False(t, fired)
	assert.Equal(t, 0, s.PendingWatches())
}

func TestWatch_FiresOnceOnFirstMatchingWrite(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	createNotes(t, s)

	fired, err := s.Watch(ctx, "app.A", "t1", textIs("hi"), true, nil)
	require.NoError(t, err)
	assert.False(t, fired)
	assert.Equal(t, 1, s.PendingWatches())
	assert.Equal(t, 1, s.Tree().HookCount())

	// Unrelated write keeps the entry pending
	putNote(t, s, "app.A", doc.Object{"text": doc.String("other")})
	assert.Empty(t, s.DrainFired())
	assert.Equal(t, 1, s.PendingWatches())

	putNote(t, s, "app.A", doc.Object{"text": doc.String("hi")})
	drained := s.DrainFired()
	require.Len(t, drained, 1)
	assert.Equal(t, "t1", drained[0].Token)
	assert.Equal(t, 0, s.PendingWatches())
	assert.Equal(t, 0, s.Tree().HookCount(), "hook is uninstalled once nothing is pending")

	putNote(t, s, "app.A", doc.Object{"text": doc.String("hi")})
	assert.Empty(t, s.DrainFired())
}

func TestWatch_EachEntryUsesItsOwnCaller(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	createNotes(t, s)
	require.NoError(t, s.GrantPermissions(ctx, "app.A", notes, "app.B", []Operation{OpRead}))

	_, err := s.Watch(ctx, "app.B", "b", textIs("hi"), true, nil)
	require.NoError(t, err)
	_, err = s.Watch(ctx, "app.A", "a", textIs("later"), true, nil)
	require.NoError(t, err)

	// app.B loses read before the matching write
	require.NoError(t, s.DeleteKind(ctx, "app.A", notes))
	createNotes(t, s)
	putNote(t, s, "app.A", doc.Object{"text": doc.String("hi")})
	putNote(t, s, "app.A", doc.Object{"text": doc.String("later")})

	drained := s.DrainFired()
	require.Len(t, drained, 1)
	assert.Equal(t, "a", drained[0].Token)
	assert.Equal(t, 1, s.PendingWatches(), "failing re-evaluation keeps the entry pending")

	require.NoError(t, s.GrantPermissions(ctx, "app.A", notes, "app.B", []Operation{OpRead}))
	drained = s.DrainFired()
	require.Len(t, drained, 1)
	assert.Equal(t, "b", drained[0].Token)
}

func TestWatch_SeveralFireInOneWrite(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	createNotes(t, s)

	for _, tok := range []string{"t1", "t2", "t3"} {
		_, err := s.Watch(ctx, "app.A", tok, textIs("hi"), true, nil)
		require.NoError(t, err)
	}
	_, err := s.Watch(ctx, "app.A", "t4", textIs("bye"), true, nil)
	require.NoError(t, err)

	putNote(t, s, "app.A", doc.Object{"text": doc.String("hi")})

	var tokens []string
	for _, e := range s.DrainFired() {
		tokens = append(tokens, e.Token)
	}
	assert.Equal(t, []string{"t1", "t2", "t3"}, tokens)
	assert.Equal(t, 1, s.PendingWatches())
}

func TestCancelWatch(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	createNotes(t, s)

	_, err := s.Watch(ctx, "app.A", "t1", textIs("hi"), true, nil)
	require.NoError(t, err)

	assert.False(t, s.CancelWatch("unknown"))
	assert.True(t, s.CancelWatch("t1"))
	assert.False(t, s.CancelWatch("t1"))
	assert.Equal(t, 0, s.Tree().HookCount())

	putNote(t, s, "app.A", doc.Object{"text": doc.String("hi")})
	assert.Empty(t, s.DrainFired(), "cancelled entry never fires")
}

func TestWatch_SameTokenKeepsEveryEntry(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	createNotes(t, s)

	_, err := s.Watch(ctx, "app.A", "t1", textIs("hi"), true, nil)
	require.NoError(t, err)
	_, err = s.Watch(ctx, "app.A", "t1", textIs("bye"), true, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, s.PendingWatches())
	assert.Equal(t, 1, s.Tree().HookCount())

	putNote(t, s, "app.A", doc.Object{"text": doc.String("hi")})
	fired := s.DrainFired()
	require.Len(t, fired, 1)
	assert.Equal(t, textIs("hi"), fired[0].Query)
	assert.Equal(t, 1, s.PendingWatches())

	putNote(t, s, "app.A", doc.Object{"text": doc.String("bye")})
	fired = s.DrainFired()
	require.Len(t, fired, 1)
	assert.Equal(t, textIs("bye"), fired[0].Query)
	assert.Equal(t, 0, s.PendingWatches())
	assert.Equal(t, 0, s.Tree().HookCount())
}

func TestCancelWatch_DropsEveryEntryOfToken(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	createNotes(t, s)

	for _, q := range []Query{textIs("a"), textIs("b")} {
		_, err := s.Watch(ctx, "app.A", "t1", q, true, nil)
		require.NoError(t, err)
	}
	_, err := s.Watch(ctx, "app.A", "t2", textIs("c"), true, nil)
	require.NoError(t, err)

	assert.True(t, s.CancelWatch("t1"))
	assert.Equal(t, 1, s.PendingWatches())
	assert.False(t, s.CancelWatch("t1"))

	assert.True(t, s.CancelWatch("t2"))
	assert.Equal(t, 0, s.Tree().HookCount())
}

func TestWatch_Errors(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	createNotes(t, s)

	_, err := s.Watch(ctx, "app.A", "t", Query{From: "com.unknown"}, true, nil)
	assert.ErrorIs(t, err, ErrNotRegistered)

	_, err = s.Watch(ctx, "app.B", "t", Query{From: notes}, true, nil)
	assert.ErrorIs(t, err, ErrPermissionDenied)

	_, err = s.Watch(ctx, "app.A", "t", where(Clause{Prop: "text", Op: OpSearch, Val: doc.String("h")}), true, nil)
	assert.ErrorIs(t, err, ErrSearchOperator)

	assert.Equal(t, 0, s.PendingWatches())
}

func TestRemoveCaller_CancelsWatches(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	createNotes(t, s)

	_, err := s.Watch(ctx, "app.A", "t1", textIs("hi"), true, nil)
	require.NoError(t, err)

	_, err = s.RemoveCaller(ctx, "app.A")
	require.NoError(t, err)
	assert.Equal(t, 0, s.PendingWatches())
	assert.Equal(t, 0, s.Tree().HookCount())
}
