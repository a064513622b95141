// Package ids provides the opaque id generators lunadb allocates document
// ids, reserved ids and subscription tokens from.
package ids

import (
	"strconv"
	"sync"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// Generator produces opaque, unique ids.
type Generator interface {
	Generate() string
}

// ULID generates lexicographically sortable ULIDs.
// It is the default for document ids.
//
// Thread-safety: ulid.Make uses a per-process monotonic entropy source
// guarded by a mutex, so ULID is safe for concurrent use.
type ULID struct{}

// Generate returns a new 26-character ULID.
func (ULID) Generate() string {
	return ulid.Make().String()
}

// UUIDv7 generates time-sortable UUIDv7 values.
// The server uses it for connection-scoped subscription tokens.
type UUIDv7 struct{}

// Generate returns a hyphenated UUIDv7.
//
// Panics if UUID generation fails (should never happen in practice).
func (UUIDv7) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// Sequence returns prefix followed by 1, 2, 3, ...
//
// This enables deterministic test execution and golden transcript
// comparison: a scenario run against a fresh store always sees the same ids.
//
// Thread-safety: Sequence is safe for concurrent use via internal mutex.
type Sequence struct {
	mu     sync.Mutex
	prefix string
	next   int64
}

// NewSequence creates a generator that starts at prefix+"1".
//
// Example:
//
//	gen := NewSequence("X")
//	gen.Generate() // "X1"
//	gen.Generate() // "X2"
func NewSequence(prefix string) *Sequence {
	return &Sequence{prefix: prefix, next: 1}
}

// Generate returns the next id in the sequence.
func (g *Sequence) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	id := g.prefix + strconv.FormatInt(g.next, 10)
	g.next++
	return id
}
