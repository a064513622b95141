package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/lunadb/internal/db"
	"github.com/roach88/lunadb/internal/doc"
	"github.com/roach88/lunadb/internal/ids"
	"github.com/roach88/lunadb/internal/kv"
	"github.com/roach88/lunadb/internal/service"
)

// Harness executes one scenario.
type Harness struct {
	svc    *service.Service
	store  *db.Store
	result *Result
}

// Run executes scenario against a fresh in-memory store and returns the
// transcript together with every expect and assertion failure.
//
// The returned error reports infrastructure problems only; failing
// expectations are recorded in the result.
func Run(scenario *Scenario) (*Result, error) {
	ctx := context.Background()

	backend, err := kv.OpenMemory()
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer backend.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store, err := db.Open(ctx, kv.NewTree(backend, "", kv.WithLogger(logger)),
		db.WithIDGenerator(ids.NewSequence("X")),
		db.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	h := &Harness{
		svc:    service.New(store, service.WithLogger(logger)),
		store:  store,
		result: NewResult(),
	}

	for i, step := range scenario.Steps {
		if err := h.executeStep(ctx, i, step); err != nil {
			return nil, fmt.Errorf("steps[%d]: %w", i, err)
		}
	}

	actx := &AssertionContext{Store: store, Ctx: ctx}
	for _, msg := range EvaluateAssertions(h.result, scenario.Assertions, actx) {
		h.result.AddError(msg)
	}
	return h.result, nil
}

// stepSubscriber records the notifications of the watch opened by a step.
type stepSubscriber struct {
	result *Result
	step   string
}

func (s *stepSubscriber) Notify(payload doc.Object) {
	s.result.record(TraceEvent{Type: EventNotify, Step: s.step, Response: payload})
}

func (h *Harness) executeStep(ctx context.Context, i int, step Step) error {
	label := step.label(i)

	if step.RemoveCaller != "" {
		removed, err := h.svc.RemoveCaller(ctx, step.RemoveCaller)
		if err != nil {
			return fmt.Errorf("remove caller %s: %w", step.RemoveCaller, err)
		}
		if removed == nil {
			removed = []string{}
		}
		h.result.record(TraceEvent{Type: EventRemoveCaller, Step: label, Caller: step.RemoveCaller, Removed: removed})
		h.svc.Flush()
		return nil
	}

	params, raw, err := stepParams(step)
	if err != nil {
		return err
	}
	req := &service.Request{
		Category:     step.Category,
		Method:       step.Call,
		Params:       raw,
		Token:        step.Token,
		Subscription: step.Subscription,
		Cancel:       step.Cancel,
		Subscriber:   &stepSubscriber{result: h.result, step: label},
	}

	resp := h.svc.Handle(ctx, req)
	h.result.record(TraceEvent{
		Type:     EventCall,
		Step:     label,
		Method:   step.Call,
		Token:    step.Token,
		Params:   params,
		Response: resp,
	})
	h.svc.Flush()

	if step.Expect == nil {
		return nil
	}
	want, err := doc.FromAny(step.Expect)
	if err != nil {
		return fmt.Errorf("expect: %w", err)
	}
	if p := Mismatch(want, resp); p != "" {
		h.result.AddError(fmt.Sprintf("step %s: expected response matching %s, got %s (differs at %s)",
			label, marshalOrError(want), marshalOrError(resp), p))
	}
	return nil
}

// stepParams returns the params of step both as a value for the trace and
// as the raw bytes sent to the service.
func stepParams(step Step) (doc.Value, []byte, error) {
	if step.RawParams != "" {
		return doc.String(step.RawParams), []byte(step.RawParams), nil
	}
	var params doc.Value = doc.Object{}
	if step.Params != nil {
		v, err := doc.FromAny(step.Params)
		if err != nil {
			return nil, nil, fmt.Errorf("params: %w", err)
		}
		params = v
	}
	raw, err := doc.Marshal(params)
	if err != nil {
		return nil, nil, fmt.Errorf("params: %w", err)
	}
	return params, raw, nil
}
