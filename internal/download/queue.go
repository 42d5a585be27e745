package download

import "sync"

// taskQueue is an unbounded FIFO shared by producers and the worker pool.
// Push never blocks; Pop blocks until a task is available or the queue is
// closed. Close stops handing out tasks immediately and returns whatever was
// still pending so the caller can cancel it; in-flight tasks are unaffected.
type taskQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []*Task
	closed bool
}

func newTaskQueue() *taskQueue {
	q := &taskQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push appends a task. Returns false if the queue has been closed.
func (q *taskQueue) Push(t *Task) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	q.items = append(q.items, t)
	q.cond.Signal()
	return true
}

// Pop removes and returns the oldest task, blocking while the queue is empty.
// The second return is false once the queue is closed.
func (q *taskQueue) Pop() (*Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 && !q.closed {
		q.cond.Wait()
	}
	if q.closed {
		return nil, false
	}
	t := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	return t, true
}

// Close marks the queue closed, wakes all blocked Pop calls and returns the
// tasks that were still queued. Safe to call more than once; later calls
// return nil.
func (q *taskQueue) Close() []*Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	q.closed = true
	pending := q.items
	q.items = nil
	q.cond.Broadcast()
	return pending
}

// Len reports the number of queued tasks.
func (q *taskQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
