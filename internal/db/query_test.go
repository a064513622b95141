package db

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/lunadb/internal/doc"
)

func seedNotes(t *testing.T) *Store {
	t.Helper()
	s := createTestStore(t)
	createNotes(t, s)
	putNote(t, s, "app.A", doc.Object{"text": doc.String("hello"), "n": doc.Int(3), "title": doc.String("Café")})
	putNote(t, s, "app.A", doc.Object{"text": doc.String("help"), "n": doc.Int(1), "title": doc.String("cafe")})
	putNote(t, s, "app.A", doc.Object{"text": doc.String("world"), "n": doc.Float(2.5)})
	return s
}

func idsOf(docs []doc.Object) []string {
	out := make([]string, len(docs))
	for i, d := range docs {
		s, _ := d.Str("_id")
		out[i] = s
	}
	return out
}

func TestFind_Operators(t *testing.T) {
	s := seedNotes(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		clause Clause
		want   []string
	}{
		{"eq", Clause{Prop: "text", Op: OpEq, Val: doc.String("help")}, []string{"X2"}},
		{"eq number across int and float", Clause{Prop: "n", Op: OpEq, Val: doc.Float(3)}, []string{"X1"}},
		{"ne includes missing", Clause{Prop: "title", Op: OpNe, Val: doc.String("cafe")}, []string{"X1", "X3"}},
		{"lt", Clause{Prop: "n", Op: OpLt, Val: doc.Int(3)}, []string{"X2", "X3"}},
		{"le", Clause{Prop: "n", Op: OpLe, Val: doc.Float(2.5)}, []string{"X2", "X3"}},
		{"gt", Clause{Prop: "n", Op: OpGt, Val: doc.Int(1)}, []string{"X1", "X3"}},
		{"ge", Clause{Prop: "n", Op: OpGe, Val: doc.Int(3)}, []string{"X1"}},
		{"incomparable types never match", Clause{Prop: "text", Op: OpGt, Val: doc.Int(0)}, []string{}},
		{"missing field never orders", Clause{Prop: "nope", Op: OpLt, Val: doc.Int(10)}, []string{}},
		{"prefix", Clause{Prop: "text", Op: OpPrefix, Val: doc.String("hel")}, []string{"X1", "X2"}},
		{"prefix needs strings", Clause{Prop: "n", Op: OpPrefix, Val: doc.String("3")}, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			docs, err := s.Find(ctx, "app.A", where(tt.clause), ModeFind)
			require.NoError(t, err)
			assert.Equal(t, tt.want, idsOf(docs))
		})
	}
}

func TestFind_Conjunction(t *testing.T) {
	s := seedNotes(t)

	docs, err := s.Find(context.Background(), "app.A", where(
		Clause{Prop: "text", Op: OpPrefix, Val: doc.String("hel")},
		Clause{Prop: "n", Op: OpGt, Val: doc.Int(2)},
	), ModeFind)
	require.NoError(t, err)
	assert.Equal(t, []string{"X1"}, idsOf(docs))
}

func TestFind_SearchOperatorOnlyInSearch(t *testing.T) {
	s := seedNotes(t)
	ctx := context.Background()
	q := where(Clause{Prop: "text", Op: OpSearch, Val: doc.String("h")})

	_, err := s.Find(ctx, "app.A", q, ModeFind)
	require.ErrorIs(t, err, ErrSearchOperator)

	docs, err := s.Find(ctx, "app.A", q, ModeSearch)
	require.NoError(t, err)
	assert.Equal(t, []string{"X1", "X2"}, idsOf(docs))
}

func TestFind_SentinelAlwaysRejected(t *testing.T) {
	s := seedNotes(t)
	ctx := context.Background()

	clauseSets := [][]Clause{
		{{Prop: "text", Op: OpSentinel, Val: doc.String("h")}},
		{{Prop: "text", Op: OpEq, Val: doc.String("hello")}, {Prop: "n", Op: OpSentinel, Val: doc.Int(1)}},
		// The sentinel outranks a search operator outside search
		{{Prop: "text", Op: OpSearch, Val: doc.String("h")}, {Prop: "n", Op: OpSentinel, Val: doc.Int(1)}},
	}
	for _, clauses := range clauseSets {
		for _, mode := range []Mode{ModeFind, ModeSearch} {
			_, err := s.Find(ctx, "app.A", Query{From: notes, Where: clauses}, mode)
			assert.ErrorIs(t, err, ErrInvalidOperator)
		}
	}

	// Unknown operators are rejected the same way
	_, err := s.Find(ctx, "app.A", where(Clause{Prop: "text", Op: "~", Val: doc.String("h")}), ModeSearch)
	assert.ErrorIs(t, err, ErrInvalidOperator)
}

func TestFind_OperatorsValidatedOnEmptyKind(t *testing.T) {
	s := createTestStore(t)
	createNotes(t, s)

	_, err := s.Find(context.Background(), "app.A", where(Clause{Prop: "a", Op: OpSentinel}), ModeSearch)
	assert.ErrorIs(t, err, ErrInvalidOperator)
}

func TestFind_KindAndPermission(t *testing.T) {
	s := seedNotes(t)
	ctx := context.Background()

	_, err := s.Find(ctx, "app.A", Query{From: "com.unknown"}, ModeFind)
	require.ErrorIs(t, err, ErrNotRegistered)
	assert.Equal(t, "com.unknown", ErrorKind(err))

	_, err = s.Find(ctx, "app.B", Query{From: notes}, ModeFind)
	require.ErrorIs(t, err, ErrPermissionDenied)
}

func TestFind_SelectProjectsAfterFiltering(t *testing.T) {
	s := seedNotes(t)

	q := where(Clause{Prop: "n", Op: OpGt, Val: doc.Int(2)})
	q.Select = []string{"_id", "title"}

	docs, err := s.Find(context.Background(), "app.A", q, ModeFind)
	require.NoError(t, err)
	assert.Equal(t, []doc.Object{
		{"_id": doc.String("X1"), "title": doc.String("Café")},
		{"_id": doc.String("X3")},
	}, docs)
}

func TestFind_OrderByDescLimit(t *testing.T) {
	s := seedNotes(t)
	ctx := context.Background()

	docs, err := s.Find(ctx, "app.A", Query{From: notes, OrderBy: "n"}, ModeFind)
	require.NoError(t, err)
	assert.Equal(t, []string{"X2", "X3", "X1"}, idsOf(docs))

	docs, err = s.Find(ctx, "app.A", Query{From: notes, OrderBy: "n", Desc: true, Limit: 2}, ModeFind)
	require.NoError(t, err)
	assert.Equal(t, []string{"X1", "X3"}, idsOf(docs))

	// Documents without the field sort last
	docs, err = s.Find(ctx, "app.A", Query{From: notes, OrderBy: "title"}, ModeFind)
	require.NoError(t, err)
	assert.Equal(t, []string{"X1", "X2", "X3"}, idsOf(docs))
}

func TestFind_Collate(t *testing.T) {
	s := seedNotes(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		op      string
		val     string
		collate string
		want    []string
	}{
		{"exact by default", OpEq, "cafe", "", []string{"X2"}},
		{"primary ignores case and accents", OpEq, "CAFE", CollatePrimary, []string{"X1", "X2"}},
		{"secondary keeps accents", OpEq, "CAFE", CollateSecondary, []string{"X2"}},
		{"tertiary keeps case", OpEq, "Cafe", CollateTertiary, []string{}},
		{"primary prefix", OpPrefix, "CA", CollatePrimary, []string{"X1", "X2"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			docs, err := s.Find(ctx, "app.A", where(Clause{
				Prop: "title", Op: tt.op, Val: doc.String(tt.val), Collate: tt.collate,
			}), ModeFind)
			require.NoError(t, err)
			assert.Equal(t, tt.want, idsOf(docs))
		})
	}

	_, err := s.Find(ctx, "app.A", where(Clause{Prop: "title", Op: OpEq, Val: doc.String("x"), Collate: "quaternary"}), ModeFind)
	assert.ErrorIs(t, err, ErrInvalidOperator)
}

func TestParseQuery(t *testing.T) {
	obj, err := doc.ParseObject([]byte(`{
		"from": "com.example.notes",
		"filter": [{"prop": "text", "op": "%", "val": "h", "collate": "primary"}, {"prop": "gone", "op": "="}],
		"select": ["text", 3],
		"orderBy": "n",
		"desc": true,
		"limit": 10
	}`))
	require.NoError(t, err)

	q, err := ParseQuery(obj)
	require.NoError(t, err)
	assert.Equal(t, Query{
		From: notes,
		Where: []Clause{
			{Prop: "text", Op: OpPrefix, Val: doc.String("h"), Collate: CollatePrimary},
			{Prop: "gone", Op: OpEq, Val: doc.Null{}},
		},
		Select:  []string{"text"},
		OrderBy: "n",
		Desc:    true,
		Limit:   10,
	}, q)

	_, err = ParseQuery(doc.Object{"from": doc.String(notes), "where": doc.String("x")})
	assert.ErrorIs(t, err, ErrInvalidOperator)

	_, err = ParseQuery(doc.Object{"from": doc.String(notes), "where": doc.Array{doc.Int(1)}})
	assert.ErrorIs(t, err, ErrInvalidOperator)
}
