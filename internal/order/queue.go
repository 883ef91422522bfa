package order

import "context"

// Queue buffers targets before execution.
type Queue struct {
	ch chan Target
}

func NewQueue(size int) *Queue {
	if size <= 0 {
		size = 100
	}
	return &Queue{ch: make(chan Target, size)}
}

// Enqueue never blocks; it reports false when the buffer is full.
func (q *Queue) Enqueue(t Target) bool {
	select {
	case q.ch <- t:
		return true
	default:
		return false
	}
}

func (q *Queue) Len() int {
	return len(q.ch)
}

func (q *Queue) Close() {
	close(q.ch)
}

// Drain consumes targets with a handler until context is canceled or the
// queue is closed.
func (q *Queue) Drain(ctx context.Context, handler func(Target)) {
	for {
		select {
		case <-ctx.Done():
			return
		case t, ok := <-q.ch:
			if !ok {
				return
			}
			handler(t)
		}
	}
}
