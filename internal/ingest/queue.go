// Package ingest processes uploaded files in the background: download,
// extract, chunk, and index into the vector store.
package ingest

import "sync"

// Queue is an in-memory FIFO of file ids awaiting processing. Enqueue never
// blocks. The queue is not durable; the worker's startup sweep re-enqueues
// any unprocessed files after a restart.
type Queue struct {
	mu    sync.Mutex
	items []int64
}

// NewQueue creates an empty Queue.
func NewQueue() *Queue {
	return &Queue{}
}

// Enqueue appends a file id.
func (q *Queue) Enqueue(fileID int64) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, fileID)
}

// TryDequeue pops the oldest file id, or returns false when the queue is empty.
func (q *Queue) TryDequeue() (int64, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return 0, false
	}
	id := q.items[0]
	q.items = q.items[1:]
	return id, true
}

// Len reports the number of queued file ids.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
