// Package harness runs call scenarios against a fresh in-memory lunadb
// service.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: notes_watch
//	description: "A watch fires once on the first matching put"
//	steps:
//	  - call: putKind
//	    token: app.A.1
//	    params: { id: com.example.notes, owner: app.A }
//	    expect: { returnValue: true }
//	  - name: watch
//	    call: watch
//	    token: app.A.1
//	    params: { subscribe: true, query: { from: com.example.notes } }
//	  - call: put
//	    token: app.A.1
//	    params: { objects: [ { _kind: com.example.notes } ] }
//	  - remove_caller: app.A
//	assertions:
//	  - type: notified
//	    step: watch
//	    count: 1
//	  - type: pending_watches
//	    count: 0
//
// A step either calls a method, cancels a subscription (cancel: true with
// a token or subscription) or removes a caller. expect is a subset match
// against the response: objects match when every expected key matches,
// arrays match element by element.
//
// # Assertion Types
//
//   - notified: the subscriber of step received exactly count notifications
//   - pending_watches: the store holds count pending watches
//   - document: document id, read as token, matches expect (absent: true
//     asserts it cannot be read)
//   - revision: the store revision equals count
//
// # Determinism
//
// Document ids come from a fixed sequence (X1, X2, ...) so the trace of a
// scenario is identical across runs and can be compared with a golden
// transcript.
package harness
