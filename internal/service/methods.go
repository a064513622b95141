package service

import (
	"context"
	"fmt"
)

// Method enumerates the operations a Service answers.
type Method int

const (
	MethodBatch Method = iota
	MethodDel
	MethodDelKind
	MethodFind
	MethodGet
	MethodMerge
	MethodPut
	MethodPutKind
	MethodPutPermissions
	MethodReserveIDs
	MethodSearch
	MethodWatch

	numMethods
)

// handlerFunc runs one method against already parsed params.
type handlerFunc func(s *Service, ctx context.Context, c *call) Response

type methodInfo struct {
	name string
	// anonymous methods run without resolving the caller's identity
	anonymous bool
	handle    handlerFunc
}

// methods is indexed by Method. Its length is fixed by numMethods, so a
// new Method without an entry leaves a nil handler that init rejects.
// It is filled in init because batch dispatches through it.
var methods [numMethods]methodInfo

var methodsByName = make(map[string]Method, numMethods)

func init() {
	methods = [numMethods]methodInfo{
		MethodBatch:          {name: "batch", anonymous: true, handle: (*Service).batch},
		MethodDel:            {name: "del", handle: (*Service).del},
		MethodDelKind:        {name: "delKind", handle: (*Service).delKind},
		MethodFind:           {name: "find", handle: (*Service).find},
		MethodGet:            {name: "get", handle: (*Service).get},
		MethodMerge:          {name: "merge", handle: (*Service).merge},
		MethodPut:            {name: "put", handle: (*Service).put},
		MethodPutKind:        {name: "putKind", handle: (*Service).putKind},
		MethodPutPermissions: {name: "putPermissions", handle: (*Service).putPermissions},
		MethodReserveIDs:     {name: "reserveIds", anonymous: true, handle: (*Service).reserveIDs},
		MethodSearch:         {name: "search", handle: (*Service).search},
		MethodWatch:          {name: "watch", handle: (*Service).watch},
	}

	for m, info := range methods {
		if info.name == "" || info.handle == nil {
			panic(fmt.Sprintf("service: method %d has no handler", m))
		}
		methodsByName[info.name] = Method(m)
	}
}

// ParseMethod looks up a method by its wire name.
func ParseMethod(name string) (Method, bool) {
	m, ok := methodsByName[name]
	return m, ok
}

// String returns the wire name of m.
func (m Method) String() string {
	if m < 0 || m >= numMethods {
		return fmt.Sprintf("Method(%d)", int(m))
	}
	return methods[m].name
}

// Methods returns every method in declaration order.
func Methods() []Method {
	out := make([]Method, numMethods)
	for i := range out {
		out[i] = Method(i)
	}
	return out
}
