package harness

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/lunadb/internal/db"
	"github.com/roach88/lunadb/internal/doc"
	"github.com/roach88/lunadb/internal/identity"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Trace    []TraceEvent
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nTrace:\n")
		for _, event := range e.Trace {
			switch event.Type {
			case EventCall:
				fmt.Fprintf(&buf, "  [%d] %s %s\n", event.Seq, event.Step, marshalOrError(event.Response))
			case EventNotify:
				fmt.Fprintf(&buf, "  [%d] %s notified\n", event.Seq, event.Step)
			case EventRemoveCaller:
				fmt.Fprintf(&buf, "  [%d] %s %v\n", event.Seq, event.Step, event.Removed)
			}
		}
	}
	return buf.String()
}

func marshalOrError(v doc.Value) string {
	data, err := doc.Marshal(v)
	if err != nil {
		return fmt.Sprintf("<%v>", err)
	}
	return string(data)
}

// Mismatch compares actual against the subset expected and returns the
// path of the first difference, or "" when actual matches. Objects match
// when every expected key is present and matches; arrays must have the
// same length and match element by element; scalars compare with
// doc.Equal.
func Mismatch(expected, actual doc.Value) string {
	return mismatch("$", expected, actual)
}

func mismatch(path string, expected, actual doc.Value) string {
	switch want := expected.(type) {
	case doc.Object:
		got, ok := actual.(doc.Object)
		if !ok {
			return path
		}
		for _, k := range want.SortedKeys() {
			v, ok := got[k]
			if !ok {
				return path + "." + k
			}
			if p := mismatch(path+"."+k, want[k], v); p != "" {
				return p
			}
		}
		return ""
	case doc.Array:
		got, ok := actual.(doc.Array)
		if !ok || len(got) != len(want) {
			return path
		}
		for i := range want {
			if p := mismatch(fmt.Sprintf("%s[%d]", path, i), want[i], got[i]); p != "" {
				return p
			}
		}
		return ""
	default:
		if !doc.Equal(expected, actual) {
			return path
		}
		return ""
	}
}

// AssertionContext is the state assertions are evaluated against.
type AssertionContext struct {
	Store *db.Store
	Ctx   context.Context
}

func assertNotified(result *Result, a Assertion) error {
	got := result.Notifications(a.Step)
	if got != a.Count {
		return &AssertionError{
			Type:     AssertNotified,
			Expected: fmt.Sprintf("%d notifications for %s", a.Count, a.Step),
			Actual:   fmt.Sprintf("%d notifications", got),
			Trace:    result.Trace,
		}
	}
	return nil
}

func assertPendingWatches(actx *AssertionContext, a Assertion) error {
	got := actx.Store.PendingWatches()
	if got != a.Count {
		return &AssertionError{
			Type:     AssertPendingWatches,
			Expected: fmt.Sprintf("%d pending watches", a.Count),
			Actual:   fmt.Sprintf("%d pending watches", got),
		}
	}
	return nil
}

func assertRevision(actx *AssertionContext, a Assertion) error {
	got := actx.Store.Revision()
	if got != int64(a.Count) {
		return &AssertionError{
			Type:     AssertRevision,
			Expected: fmt.Sprintf("revision %d", a.Count),
			Actual:   fmt.Sprintf("revision %d", got),
		}
	}
	return nil
}

func assertDocument(actx *AssertionContext, a Assertion) error {
	caller, err := identity.DottedToken{}.AppID(a.Token)
	if err != nil {
		return fmt.Errorf("document %s: %w", a.ID, err)
	}
	got, found, err := actx.Store.Get(actx.Ctx, caller, a.ID)
	if err != nil {
		return fmt.Errorf("document %s: %w", a.ID, err)
	}

	if a.Absent {
		if found {
			return &AssertionError{
				Type:     AssertDocument,
				Expected: fmt.Sprintf("%s not readable by %s", a.ID, caller),
				Actual:   marshalOrError(got),
			}
		}
		return nil
	}

	if !found {
		return &AssertionError{
			Type:     AssertDocument,
			Expected: fmt.Sprintf("%s readable by %s", a.ID, caller),
			Actual:   "not found",
		}
	}
	want, err := doc.FromAny(a.Expect)
	if err != nil {
		return fmt.Errorf("document %s: expect: %w", a.ID, err)
	}
	if p := Mismatch(want, got); p != "" {
		return &AssertionError{
			Type:     AssertDocument,
			Expected: fmt.Sprintf("%s matching %s", a.ID, marshalOrError(want)),
			Actual:   fmt.Sprintf("%s (differs at %s)", marshalOrError(got), p),
		}
	}
	return nil
}

// EvaluateAssertions runs every assertion and returns the failure
// messages. It does not stop at the first failure.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errs []string
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertNotified:
			err = assertNotified(result, a)
		case AssertPendingWatches:
			err = assertPendingWatches(actx, a)
		case AssertRevision:
			err = assertRevision(actx, a)
		case AssertDocument:
			err = assertDocument(actx, a)
		default:
			err = fmt.Errorf("unknown assertion type: %s", a.Type)
		}
		if err != nil {
			errs = append(errs, fmt.Sprintf("assertion %d (%s): %v", i, a.Type, err))
		}
	}
	return errs
}
