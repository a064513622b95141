package harness

import (
	"github.com/roach88/lunadb/internal/doc"
)

// Trace event types.
const (
	EventCall         = "call"
	EventNotify       = "notify"
	EventRemoveCaller = "remove_caller"
)

// TraceEvent is one entry of a scenario transcript.
type TraceEvent struct {
	Seq  int    `json:"seq"`
	Type string `json:"type"`
	// Step is the label of the step that produced the event. Notifications
	// carry the label of the step that registered the watch.
	Step     string     `json:"step"`
	Method   string     `json:"method,omitempty"`
	Token    string     `json:"token,omitempty"`
	Params   doc.Value  `json:"params,omitempty"`
	Response doc.Object `json:"response,omitempty"`
	Caller   string     `json:"caller,omitempty"`
	Removed  []string   `json:"removed,omitempty"`
}

func (e TraceEvent) object() doc.Object {
	obj := doc.Object{
		"seq":  doc.Int(e.Seq),
		"type": doc.String(e.Type),
		"step": doc.String(e.Step),
	}
	if e.Method != "" {
		obj["method"] = doc.String(e.Method)
	}
	if e.Token != "" {
		obj["token"] = doc.String(e.Token)
	}
	if e.Params != nil {
		obj["params"] = e.Params
	}
	if e.Response != nil {
		obj["response"] = e.Response
	}
	if e.Type == EventRemoveCaller {
		removed := make(doc.Array, len(e.Removed))
		for i, k := range e.Removed {
			removed[i] = doc.String(k)
		}
		obj["caller"] = doc.String(e.Caller)
		obj["removed"] = removed
	}
	return obj
}

// Result is the outcome of a scenario.
type Result struct {
	// Pass is true when every expect clause and assertion held.
	Pass bool `json:"pass"`

	Trace  []TraceEvent `json:"trace"`
	Errors []string     `json:"errors,omitempty"`
}

// NewResult creates a passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError records a failure.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

func (r *Result) record(e TraceEvent) {
	e.Seq = len(r.Trace) + 1
	r.Trace = append(r.Trace, e)
}

// Notifications returns how many notifications the watch of step received.
func (r *Result) Notifications(step string) int {
	n := 0
	for _, e := range r.Trace {
		if e.Type == EventNotify && e.Step == step {
			n++
		}
	}
	return n
}
