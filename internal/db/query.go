package db

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/roach88/lunadb/internal/doc"
)

// Mode selects which operators a query may use.
type Mode int

const (
	// ModeFind rejects the search-only operator "?".
	ModeFind Mode = iota
	// ModeSearch allows every operator.
	ModeSearch
)

// Query operators.
const (
	OpEq       = "="
	OpNe       = "!="
	OpLt       = "<"
	OpLe       = "<="
	OpGt       = ">"
	OpGe       = ">="
	OpPrefix   = "%"
	OpSearch   = "?"
	OpSentinel = "%%"
)

// Collation strengths accepted in a clause.
const (
	CollateDefault   = "default"
	CollatePrimary   = "primary"
	CollateSecondary = "secondary"
	CollateTertiary  = "tertiary"
)

// Clause is one filter condition: the document's Prop compared to Val.
type Clause struct {
	Prop    string
	Op      string
	Val     doc.Value
	Collate string
}

// Query selects documents of one kind.
// A document matches when every clause holds.
type Query struct {
	From    string
	Where   []Clause
	Select  []string
	OrderBy string
	Desc    bool
	Limit   int
}

// ParseQuery decodes a query object. The clause list is read from "where",
// or from "filter" when "where" is absent.
// Malformed clauses are reported as ErrInvalidOperator.
func ParseQuery(obj doc.Object) (Query, error) {
	q := Query{}
	q.From, _ = obj.Str("from")
	q.OrderBy, _ = obj.Str("orderBy")
	q.Desc = obj.Flag("desc")
	if n, ok := obj.Num("limit"); ok && n > 0 {
		q.Limit = int(n)
	}

	if sel, ok := obj.Arr("select"); ok {
		for _, f := range sel {
			if name, isStr := f.(doc.String); isStr {
				q.Select = append(q.Select, string(name))
			}
		}
	}

	raw, ok := obj["where"]
	if !ok {
		raw, ok = obj["filter"]
	}
	if !ok {
		return q, nil
	}
	clauses, isArr := raw.(doc.Array)
	if !isArr {
		return q, fmt.Errorf("%w: where is %s", ErrInvalidOperator, doc.TypeName(raw))
	}
	for i, c := range clauses {
		co, isObj := c.(doc.Object)
		if !isObj {
			return q, fmt.Errorf("%w: clause %d is %s", ErrInvalidOperator, i, doc.TypeName(c))
		}
		clause := Clause{Val: doc.Null{}}
		clause.Prop, _ = co.Str("prop")
		clause.Op, _ = co.Str("op")
		clause.Collate, _ = co.Str("collate")
		if v, has := co["val"]; has {
			clause.Val = v
		}
		q.Where = append(q.Where, clause)
	}
	return q, nil
}

// predicate is a compiled clause.
type predicate struct {
	Clause
	collator *collate.Collator
}

// compile validates every clause before any document is visited.
// "%%" and unknown operators or collations are ErrInvalidOperator and take
// precedence over "?" outside search mode.
func compile(where []Clause, mode Mode) ([]predicate, error) {
	preds := make([]predicate, 0, len(where))
	search := false
	for _, c := range where {
		switch c.Op {
		case OpEq, OpNe, OpLt, OpLe, OpGt, OpGe, OpPrefix:
		case OpSearch:
			search = true
		default:
			return nil, fmt.Errorf("%w: %q", ErrInvalidOperator, c.Op)
		}
		col, err := newCollator(c.Collate)
		if err != nil {
			return nil, err
		}
		preds = append(preds, predicate{Clause: c, collator: col})
	}
	if search && mode != ModeSearch {
		return nil, ErrSearchOperator
	}
	return preds, nil
}

func newCollator(strength string) (*collate.Collator, error) {
	switch strength {
	case "", CollateDefault:
		return nil, nil
	case CollatePrimary:
		return collate.New(language.Und, collate.Loose), nil
	case CollateSecondary:
		return collate.New(language.Und, collate.IgnoreCase, collate.IgnoreWidth), nil
	case CollateTertiary:
		return collate.New(language.Und), nil
	default:
		return nil, fmt.Errorf("%w: collate %q", ErrInvalidOperator, strength)
	}
}

// matches evaluates the clause against one document.
func (p *predicate) matches(d doc.Object) bool {
	v, ok := d[p.Prop]
	switch p.Op {
	case OpEq:
		return ok && p.equal(v)
	case OpNe:
		return !ok || !p.equal(v)
	case OpLt, OpLe, OpGt, OpGe:
		if !ok {
			return false
		}
		c, comparable := p.compare(v)
		if !comparable {
			return false
		}
		switch p.Op {
		case OpLt:
			return c < 0
		case OpLe:
			return c <= 0
		case OpGt:
			return c > 0
		default:
			return c >= 0
		}
	case OpPrefix, OpSearch:
		s, isStr := v.(doc.String)
		prefix, valStr := p.Val.(doc.String)
		return ok && isStr && valStr && p.hasPrefix(string(s), string(prefix))
	}
	return false
}

func (p *predicate) equal(v doc.Value) bool {
	if p.collator != nil {
		if a, b, ok := bothStrings(v, p.Val); ok {
			return p.collator.CompareString(a, b) == 0
		}
	}
	return doc.Equal(v, p.Val)
}

func (p *predicate) compare(v doc.Value) (int, bool) {
	if p.collator != nil {
		if a, b, ok := bothStrings(v, p.Val); ok {
			return p.collator.CompareString(a, b), true
		}
	}
	return doc.Compare(v, p.Val)
}

func (p *predicate) hasPrefix(s, prefix string) bool {
	if p.collator == nil {
		return strings.HasPrefix(s, prefix)
	}
	// Collation may fold several runes into one, so try every rune boundary.
	for i := range s {
		if p.collator.CompareString(s[:i], prefix) == 0 {
			return true
		}
	}
	return p.collator.CompareString(s, prefix) == 0
}

func bothStrings(a, b doc.Value) (string, string, bool) {
	as, aok := a.(doc.String)
	bs, bok := b.(doc.String)
	return string(as), string(bs), aok && bok
}

// Find evaluates q for caller. The kind must be registered and readable by
// caller. Results are in document id order unless q.OrderBy is set, and
// projected to q.Select when present.
func (s *Store) Find(ctx context.Context, caller string, q Query, mode Mode) ([]doc.Object, error) {
	docs, err := s.match(ctx, caller, q, mode)
	if err != nil {
		return nil, err
	}
	if len(q.Select) > 0 {
		for i, d := range docs {
			docs[i] = d.Pick(q.Select)
		}
	}
	return docs, nil
}

// match returns the full bodies of every document of q.From passing q.
func (s *Store) match(ctx context.Context, caller string, q Query, mode Mode) ([]doc.Object, error) {
	exists, err := s.KindExists(ctx, q.From)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, kindErr(q.From, ErrNotRegistered)
	}
	readable, err := s.Check(ctx, OpRead, q.From, caller)
	if err != nil {
		return nil, err
	}
	if !readable {
		return nil, kindErr(q.From, ErrPermissionDenied)
	}

	preds, err := compile(q.Where, mode)
	if err != nil {
		return nil, err
	}

	all, err := s.documents(ctx, q.From)
	if err != nil {
		return nil, err
	}

	out := make([]doc.Object, 0, len(all))
	for _, d := range all {
		pass := true
		for i := range preds {
			if !preds[i].matches(d) {
				pass = false
				break
			}
		}
		if pass {
			out = append(out, d)
		}
	}

	if q.OrderBy != "" {
		orderBy(out, q.OrderBy)
	}
	if q.Desc {
		slices.Reverse(out)
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

// documents loads every body of kind in id order.
func (s *Store) documents(ctx context.Context, kind string) ([]doc.Object, error) {
	v, ok, err := s.tree.Get(ctx, dataPath(kind))
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", kind, err)
	}
	if !ok {
		return nil, nil
	}
	data, isObj := v.(doc.Object)
	if !isObj {
		return nil, fmt.Errorf("scan %s: data is %s", kind, doc.TypeName(v))
	}

	out := make([]doc.Object, 0, len(data))
	for _, id := range data.SortedKeys() {
		if body, isObj := data[id].(doc.Object); isObj {
			out = append(out, body)
		}
	}
	return out, nil
}

// orderBy sorts docs by field, stable so ties keep id order. Documents
// without the field, or with a value of another type, sort last.
func orderBy(docs []doc.Object, field string) {
	slices.SortStableFunc(docs, func(a, b doc.Object) int {
		av, aok := a[field]
		bv, bok := b[field]
		switch {
		case !aok && !bok:
			return 0
		case !aok:
			return 1
		case !bok:
			return -1
		}
		if c, ok := doc.Compare(av, bv); ok {
			return c
		}
		return strings.Compare(doc.TypeName(av), doc.TypeName(bv))
	})
}
