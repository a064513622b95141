package service

import (
	"context"

	"github.com/roach88/lunadb/internal/doc"
)

// batch runs operations in order with the batch's own token. The first
// failing sub-response is returned as the whole result; the effects of the
// operations before it stay applied.
func (s *Service) batch(ctx context.Context, c *call) Response {
	ops, ok := c.params.Arr("operations")
	if !ok {
		return errRequired("operations").Response()
	}

	responses := make(doc.Array, 0, len(ops))
	for _, v := range ops {
		resp := s.batchOperation(ctx, c, v)
		if !ReturnValue(resp) {
			return resp
		}
		responses = append(responses, resp)
	}
	return success(doc.Object{"responses": responses})
}

func (s *Service) batchOperation(ctx context.Context, c *call, v doc.Value) Response {
	op, _ := v.(doc.Object)
	name, _ := op.Str("method")
	if name == "" {
		return errBatchKey("method").Response()
	}
	if !present(op, "params") {
		return errBatchKey("params").Response()
	}
	params, ok := op.Obj("params")
	if !ok {
		return errJSON.Response()
	}
	m, ok := ParseMethod(name)
	if !ok {
		return errUnknownMethod("", name).Response()
	}

	sub := &Request{
		Method:       name,
		Token:        c.req.Token,
		Subscription: c.req.Subscription,
		Subscriber:   c.req.Subscriber,
	}
	return s.dispatch(ctx, &call{req: sub, method: m, params: params})
}
