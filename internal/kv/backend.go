package kv

import "context"

// Backend is a flat, ordered byte-keyed store.
//
// Implementations must apply a Batch atomically: either every operation
// becomes visible or none does.
type Backend interface {
	// Get returns the value stored under key. ok is false if absent.
	Get(ctx context.Context, key []byte) (value []byte, ok bool, err error)

	// Scan calls fn for every key that starts with prefix, in ascending
	// key order. key and value are only valid for the duration of fn.
	// Returning an error from fn stops the scan and is returned.
	Scan(ctx context.Context, prefix []byte, fn func(key, value []byte) error) error

	// Write applies all operations of b atomically.
	Write(ctx context.Context, b *Batch) error

	// Close releases the backend.
	Close() error
}

// Op is a single batch operation.
type Op struct {
	Key    []byte
	Value  []byte
	Delete bool
}

// Batch is an ordered list of puts and deletes.
type Batch struct {
	ops []Op
}

// Put appends a put of key=value.
func (b *Batch) Put(key, value []byte) {
	b.ops = append(b.ops, Op{Key: key, Value: value})
}

// Delete appends a delete of key.
func (b *Batch) Delete(key []byte) {
	b.ops = append(b.ops, Op{Key: key, Delete: true})
}

// Ops returns the operations in order.
func (b *Batch) Ops() []Op {
	return b.ops
}

// Len returns the number of operations.
func (b *Batch) Len() int {
	return len(b.ops)
}
