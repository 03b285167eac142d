package protocol

import (
	"io"
	"sync"
)

// queueWriter decouples a sender from its reader. Write copies p onto an
// unbounded queue and returns at once; a goroutine drains the queue into
// the underlying writer in order.
type queueWriter struct {
	w io.WriteCloser

	mu      sync.Mutex
	cond    *sync.Cond
	pending [][]byte
	closed  bool
	err     error
}

func newQueueWriter(w io.WriteCloser) *queueWriter {
	q := &queueWriter{w: w}
	q.cond = sync.NewCond(&q.mu)
	go q.drain()
	return q
}

func (q *queueWriter) Write(p []byte) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return 0, q.err
	}
	if q.closed {
		return 0, io.ErrClosedPipe
	}
	q.pending = append(q.pending, append([]byte(nil), p...))
	q.cond.Signal()
	return len(p), nil
}

func (q *queueWriter) drain() {
	for {
		q.mu.Lock()
		for len(q.pending) == 0 && !q.closed && q.err == nil {
			q.cond.Wait()
		}
		if q.err != nil || (q.closed && len(q.pending) == 0) {
			q.mu.Unlock()
			q.w.Close()
			return
		}
		batch := q.pending
		q.pending = nil
		q.mu.Unlock()

		for _, b := range batch {
			if _, err := q.w.Write(b); err != nil {
				q.abort(err)
				break
			}
		}
	}
}

// Close stops accepting writes. Queued data is still delivered before the
// underlying writer is closed.
func (q *queueWriter) Close() error {
	q.mu.Lock()
	q.closed = true
	q.cond.Broadcast()
	q.mu.Unlock()
	return nil
}

// abort drops queued data; later writes fail with err.
func (q *queueWriter) abort(err error) {
	q.mu.Lock()
	if q.err == nil {
		q.err = err
	}
	q.pending = nil
	q.cond.Broadcast()
	q.mu.Unlock()
}
