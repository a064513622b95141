package db

import "sync/atomic"

// Revision is the global revision counter stamped onto documents.
//
// Every document write takes the next value. The counter is persisted at
// revId in the same batch as the documents it stamped; the in-memory value
// only moves once that batch has committed, so a failed write never
// consumes a revision.
type Revision struct {
	seq atomic.Int64
}

// NewRevisionAt creates a counter whose last handed-out value is start.
func NewRevisionAt(start int64) *Revision {
	r := &Revision{}
	r.seq.Store(start)
	return r
}

// Current returns the last committed revision.
func (r *Revision) Current() int64 {
	return r.seq.Load()
}

// commit records last as the newest handed-out revision.
func (r *Revision) commit(last int64) {
	r.seq.Store(last)
}

// revisions hands out tentative revisions within one write.
type revisions struct {
	last int64
}

func (r *Revision) begin() *revisions {
	return &revisions{last: r.Current()}
}

// next returns the next tentative revision.
func (rs *revisions) next() int64 {
	rs.last++
	return rs.last
}
