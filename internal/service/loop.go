package service

import (
	"context"
	"errors"
	"sync"
)

// ErrLoopClosed is returned when work is submitted to a closed Loop.
var ErrLoopClosed = errors.New("service loop closed")

// Task runs on the loop goroutine with exclusive access to the Service.
type Task func(ctx context.Context, s *Service)

// taskQueue is a thread-safe FIFO of tasks.
//
// The queue is unbounded so a transport never blocks while the loop is
// busy. It signals through a channel of size 1 so Run can wait on it
// together with ctx.Done().
type taskQueue struct {
	mu     sync.Mutex
	tasks  []Task
	closed bool
	signal chan struct{}
}

func newTaskQueue() *taskQueue {
	return &taskQueue{
		tasks:  make([]Task, 0, 64),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue adds t to the back of the queue.
// Returns false if the queue is closed.
func (q *taskQueue) Enqueue(t Task) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.tasks = append(q.tasks, t)

	// Coalesce signals
	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// TryDequeue removes the front task without blocking.
func (q *taskQueue) TryDequeue() (Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.tasks) == 0 {
		return nil, false
	}
	t := q.tasks[0]
	q.tasks[0] = nil
	if len(q.tasks) == 1 {
		q.tasks = q.tasks[:0]
	} else {
		q.tasks = q.tasks[1:]
	}
	return t, true
}

// Wait returns a channel that signals when tasks may be available.
// It is closed once the queue is closed.
func (q *taskQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the number of queued tasks.
func (q *taskQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

func (q *taskQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}

// Loop serializes all access to a Service on one goroutine.
//
// Submit and Do are safe from any goroutine. Run must be called from
// exactly one goroutine; every request's reply is sent before the
// notifications it caused are flushed.
type Loop struct {
	svc   *Service
	queue *taskQueue
}

// NewLoop creates a loop over svc. Nothing runs until Run is called.
func NewLoop(svc *Service) *Loop {
	return &Loop{svc: svc, queue: newTaskQueue()}
}

// Do queues t. Returns false if the loop is closed.
func (l *Loop) Do(t Task) bool {
	return l.queue.Enqueue(t)
}

// Submit queues req. reply receives the response on the loop goroutine,
// and must not block for long.
func (l *Loop) Submit(req *Request, reply func(Response)) bool {
	return l.Do(func(ctx context.Context, s *Service) {
		resp := s.Handle(ctx, req)
		if reply != nil {
			reply(resp)
		}
		s.Flush()
	})
}

// Call submits req and waits for its response.
func (l *Loop) Call(ctx context.Context, req *Request) (Response, error) {
	done := make(chan Response, 1)
	if !l.Submit(req, func(resp Response) { done <- resp }) {
		return nil, ErrLoopClosed
	}
	select {
	case resp := <-done:
		return resp, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Pending returns the number of queued tasks.
func (l *Loop) Pending() int {
	return l.queue.Len()
}

// Close stops accepting tasks. Run drains what is queued and returns.
func (l *Loop) Close() {
	l.queue.Close()
}

// Run processes tasks in FIFO order until ctx is cancelled or the loop
// is closed and drained.
func (l *Loop) Run(ctx context.Context) error {
	l.svc.logger.Info("service loop starting")
	defer l.svc.logger.Info("service loop stopped")

	for {
		if t, ok := l.queue.TryDequeue(); ok {
			t(ctx, l.svc)
			continue
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, open := <-l.queue.Wait():
			if !open && l.queue.Len() == 0 {
				return nil
			}
		}
	}
}
