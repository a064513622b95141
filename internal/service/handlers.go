package service

import (
	"context"
	"errors"

	"github.com/roach88/lunadb/internal/db"
	"github.com/roach88/lunadb/internal/doc"
)

// inputError reports whether err is a condition caused by the call's
// params rather than by the backend.
func inputError(err error) bool {
	for _, cond := range []error{
		db.ErrNotRegistered,
		db.ErrPermissionDenied,
		db.ErrKindNotSpecified,
		db.ErrInvalidOperator,
		db.ErrSearchOperator,
		db.ErrNotFound,
		db.ErrReservedKind,
	} {
		if errors.Is(err, cond) {
			return true
		}
	}
	return false
}

// present reports whether key holds a value other than null.
func present(obj doc.Object, key string) bool {
	v, ok := obj[key]
	if !ok {
		return false
	}
	_, isNull := v.(doc.Null)
	return !isNull
}

func writtenArray(ws []db.Written) doc.Array {
	out := make(doc.Array, len(ws))
	for i, w := range ws {
		out[i] = doc.Object{"id": doc.String(w.ID), "rev": doc.Int(w.Rev)}
	}
	return out
}

func objectArray(objs []doc.Object) doc.Array {
	out := make(doc.Array, len(objs))
	for i, o := range objs {
		out[i] = o
	}
	return out
}

func (s *Service) putKind(ctx context.Context, c *call) Response {
	name, _ := c.params.Str("id")
	if name == "" {
		return errRequired("id").Response()
	}
	owner, _ := c.params.Str("owner")
	if owner == "" {
		return errRequired("owner").Response()
	}
	if owner != c.caller {
		return errPermissionDenied.Response()
	}

	created, err := s.store.CreateKind(ctx, name, owner, c.params.Flag("private"))
	switch {
	case errors.Is(err, db.ErrReservedKind):
		return errReservedKind(name).Response()
	case err != nil:
		return s.failure(c, err)
	}
	if !created {
		s.logger.Debug("kind already registered", "kind", name)
	}
	return success(nil)
}

func (s *Service) put(ctx context.Context, c *call) Response {
	arr, ok := c.params.Arr("objects")
	if !ok {
		return errRequired("objects").Response()
	}
	objects := make([]doc.Object, 0, len(arr))
	for _, v := range arr {
		obj, isObj := v.(doc.Object)
		if !isObj {
			return errKindNotSpecified.Response()
		}
		objects = append(objects, obj)
	}

	written, err := s.store.Put(ctx, c.caller, objects)
	switch {
	case errors.Is(err, db.ErrKindNotSpecified):
		return errKindNotSpecified.Response()
	case errors.Is(err, db.ErrNotRegistered):
		return notRegistered(CodeKindNotReg, db.ErrorKind(err)).Response()
	case errors.Is(err, db.ErrPermissionDenied):
		return errPermissionDenied.Response()
	case err != nil:
		return s.failure(c, err)
	}
	return success(doc.Object{"results": writtenArray(written)})
}

func (s *Service) get(ctx context.Context, c *call) Response {
	arr, ok := c.params.Arr("ids")
	if !ok {
		return errRequired("ids").Response()
	}
	results := doc.Array{}
	for _, v := range arr {
		id, isStr := v.(doc.String)
		if !isStr {
			continue
		}
		body, found, err := s.store.Get(ctx, c.caller, string(id))
		if err != nil {
			return s.failure(c, err)
		}
		if found {
			results = append(results, body)
		}
	}
	return success(doc.Object{"results": results})
}

// queryFailure maps the errors of find, search and watch.
func (s *Service) queryFailure(c *call, err error) Response {
	switch {
	case errors.Is(err, db.ErrInvalidOperator):
		return errInvalidEnum(c.caller, enumPathQuery).Response()
	case errors.Is(err, db.ErrSearchOperator):
		return errSearchOperator.Response()
	case errors.Is(err, db.ErrNotRegistered):
		return notRegistered(CodeNotRegistered, db.ErrorKind(err)).Response()
	case errors.Is(err, db.ErrPermissionDenied):
		return errPermissionDenied.Response()
	default:
		return s.failure(c, err)
	}
}

func (s *Service) find(ctx context.Context, c *call) Response {
	return s.query(ctx, c, db.ModeFind)
}

func (s *Service) search(ctx context.Context, c *call) Response {
	return s.query(ctx, c, db.ModeSearch)
}

func (s *Service) query(ctx context.Context, c *call, mode db.Mode) Response {
	qo, ok := c.params.Obj("query")
	if !ok {
		return errRequired("query").Response()
	}
	q, err := db.ParseQuery(qo)
	if err != nil {
		return s.queryFailure(c, err)
	}
	docs, err := s.store.Find(ctx, c.caller, q, mode)
	if err != nil {
		return s.queryFailure(c, err)
	}

	payload := doc.Object{"results": objectArray(docs)}
	if mode == db.ModeSearch || c.params.Flag("count") {
		payload["count"] = doc.Int(len(docs))
	}
	return success(payload)
}

func (s *Service) del(ctx context.Context, c *call) Response {
	if arr, ok := c.params.Arr("ids"); ok {
		docIDs := make([]string, 0, len(arr))
		for _, v := range arr {
			if id, isStr := v.(doc.String); isStr {
				docIDs = append(docIDs, string(id))
			}
		}
		deleted, err := s.store.DeleteIDs(ctx, c.caller, docIDs)
		if err != nil {
			return s.failure(c, err)
		}
		results := make(doc.Array, len(deleted))
		for i, id := range deleted {
			results[i] = doc.Object{"id": doc.String(id)}
		}
		return success(doc.Object{"results": results})
	}

	qo, ok := c.params.Obj("query")
	if !ok {
		return errEmptyDelete.Response()
	}
	q, err := db.ParseQuery(qo)
	if err != nil {
		return errNoIndex.Response()
	}
	n, err := s.store.DeleteQuery(ctx, c.caller, q)
	switch {
	case err != nil && !inputError(err):
		return s.failure(c, err)
	case err != nil, n <= 0:
		s.logger.Debug("query deleted nothing", "kind", q.From, "error", err)
		return errNoIndex.Response()
	}
	return success(doc.Object{"count": doc.Int(n)})
}

func (s *Service) delKind(ctx context.Context, c *call) Response {
	name, _ := c.params.Str("id")
	err := s.store.DeleteKind(ctx, c.caller, name)
	switch {
	case errors.Is(err, db.ErrNotRegistered):
		return notRegistered(CodeNotRegistered, name).Response()
	case errors.Is(err, db.ErrPermissionDenied):
		return errAccessDenied.Response()
	case err != nil:
		return s.failure(c, err)
	}
	return success(nil)
}

func (s *Service) merge(ctx context.Context, c *call) Response {
	hasObjects := present(c.params, "objects")
	hasQuery := present(c.params, "query")
	switch {
	case hasObjects && hasQuery:
		return errMergeBoth.Response()
	case !hasObjects && !hasQuery:
		return errMergeNeither.Response()
	case hasObjects:
		return s.mergeObjects(ctx, c)
	default:
		return s.mergeQuery(ctx, c)
	}
}

func (s *Service) mergeObjects(ctx context.Context, c *call) Response {
	arr, ok := c.params.Arr("objects")
	if !ok {
		return errKindNotSpecified.Response()
	}
	objects := make([]doc.Object, 0, len(arr))
	for _, v := range arr {
		obj, isObj := v.(doc.Object)
		if !isObj {
			return errKindNotSpecified.Response()
		}
		objects = append(objects, obj)
	}

	written, err := s.store.MergeObjects(ctx, c.caller, objects)
	switch {
	case errors.Is(err, db.ErrNotFound):
		return errKindNotSpecified.Response()
	case errors.Is(err, db.ErrPermissionDenied):
		return errPermissionDenied.Response()
	case err != nil:
		return s.failure(c, err)
	}
	return success(doc.Object{"results": writtenArray(written)})
}

func (s *Service) mergeQuery(ctx context.Context, c *call) Response {
	qo, ok := c.params.Obj("query")
	if !ok {
		return errRequired("query").Response()
	}
	props, ok := c.params.Obj("props")
	if !ok {
		return errRequired("props").Response()
	}

	q, err := db.ParseQuery(qo)
	if err != nil {
		return errInvalidEnum(c.caller, enumPathOperations).Response()
	}
	n, err := s.store.MergeQuery(ctx, c.caller, q, props)
	switch {
	case errors.Is(err, db.ErrInvalidOperator):
		return errInvalidEnum(c.caller, enumPathOperations).Response()
	case errors.Is(err, db.ErrSearchOperator):
		// Merge matches in search mode, so this only guards the mapping.
		return errSearchOperator.Response()
	case errors.Is(err, db.ErrNotRegistered):
		return notRegistered(CodeNotRegistered, q.From).Response()
	case errors.Is(err, db.ErrPermissionDenied):
		return errPermissionDenied.Response()
	case err != nil:
		return s.failure(c, err)
	}
	return success(doc.Object{"count": doc.Int(n)})
}

// grantedOperations reads the operations of a permission entry, given
// either as an object keyed by operation or as a list. Unknown names are
// dropped.
func grantedOperations(v doc.Value) []db.Operation {
	var names []string
	switch ops := v.(type) {
	case doc.Object:
		names = ops.SortedKeys()
	case doc.Array:
		for _, elem := range ops {
			if name, ok := elem.(doc.String); ok {
				names = append(names, string(name))
			}
		}
	}

	out := make([]db.Operation, 0, len(names))
	for _, name := range names {
		if op, ok := db.ParseOperation(name); ok {
			out = append(out, op)
		}
	}
	return out
}

func (s *Service) putPermissions(ctx context.Context, c *call) Response {
	arr, ok := c.params.Arr("permissions")
	if !ok {
		return errRequired("permissions").Response()
	}
	for _, v := range arr {
		entry, isObj := v.(doc.Object)
		if !isObj {
			return errAccessDenied.Response()
		}
		kind, _ := entry.Str("object")
		target, _ := entry.Str("caller")
		err := s.store.GrantPermissions(ctx, c.caller, kind, target, grantedOperations(entry["operations"]))
		switch {
		case errors.Is(err, db.ErrPermissionDenied), errors.Is(err, db.ErrNotRegistered):
			return errAccessDenied.Response()
		case err != nil:
			return s.failure(c, err)
		}
	}
	return success(nil)
}

func (s *Service) reserveIDs(_ context.Context, c *call) Response {
	n, ok := c.params.Num("count")
	if !ok {
		return errRequired("count").Response()
	}
	reserved, err := s.store.ReserveIDs(n)
	if errors.Is(err, db.ErrTooManyIDs) {
		return errTooManyIDs.Response()
	}
	if err != nil {
		return s.failure(c, err)
	}
	out := make(doc.Array, len(reserved))
	for i, id := range reserved {
		out[i] = doc.String(id)
	}
	return success(doc.Object{"ids": out})
}

func (s *Service) watch(ctx context.Context, c *call) Response {
	qo, ok := c.params.Obj("query")
	if !ok {
		return errRequired("query").Response()
	}
	q, err := db.ParseQuery(qo)
	if err != nil {
		return s.queryFailure(c, err)
	}

	subscribe := c.params.Flag("subscribe")
	fired, err := s.store.Watch(ctx, c.caller, c.req.subscriptionToken(), q, subscribe, c.req.Subscriber)
	if err != nil {
		return s.queryFailure(c, err)
	}
	if fired {
		return success(doc.Object{"fired": doc.Bool(true), "subscribe": doc.Bool(subscribe)})
	}
	return success(nil)
}
