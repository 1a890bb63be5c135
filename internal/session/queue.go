package session

import (
	"context"
	"sync"
)

// QueuedCall is a deferred data-layer write. Method is kept for
// observability and tests; Apply performs the live call.
type QueuedCall struct {
	Method string
	Apply  func(ctx context.Context) error
}

// WriteQueue buffers data-layer writes issued before the first user message
// of a session. Covered methods: create/update/delete step and
// create/delete element. The buffer preserves arrival order; a session that
// ends without a user message discards it with no durable trace.
type WriteQueue struct {
	mu    sync.Mutex
	calls []QueuedCall
}

func NewWriteQueue() *WriteQueue {
	return &WriteQueue{}
}

func (q *WriteQueue) Enqueue(method string, apply func(ctx context.Context) error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.calls = append(q.calls, QueuedCall{Method: method, Apply: apply})
}

func (q *WriteQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.calls)
}

// Methods returns the buffered method names in arrival order.
func (q *WriteQueue) Methods() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]string, 0, len(q.calls))
	for _, c := range q.calls {
		out = append(out, c.Method)
	}
	return out
}

// Drain applies every buffered call in arrival order and empties the
// buffer. The first failing call aborts the drain; the remainder is kept
// so a retry can resume where it stopped.
func (q *WriteQueue) Drain(ctx context.Context) error {
	for {
		q.mu.Lock()
		if len(q.calls) == 0 {
			q.mu.Unlock()
			return nil
		}
		next := q.calls[0]
		q.mu.Unlock()

		if err := next.Apply(ctx); err != nil {
			return err
		}

		q.mu.Lock()
		q.calls = q.calls[1:]
		q.mu.Unlock()
	}
}

// Discard drops the buffer and reports how many writes never happened.
func (q *WriteQueue) Discard() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.calls)
	q.calls = nil
	return n
}
