package entity

import "sync"

// RingBuffer keeps the last Cap bytes written to it. Used to retain the
// tail of a server process's stdout/stderr for diagnostics without
// unbounded growth.
type RingBuffer struct {
	mu  sync.Mutex
	cap int
	buf []byte
}

// NewRingBuffer returns a RingBuffer retaining at most capacity bytes.
func NewRingBuffer(capacity int) *RingBuffer {
	return &RingBuffer{cap: capacity}
}

// Write implements io.Writer. It never fails.
func (r *RingBuffer) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.buf = append(r.buf, p...)
	if len(r.buf) > r.cap {
		r.buf = r.buf[len(r.buf)-r.cap:]
	}
	return len(p), nil
}

// String returns the retained tail.
func (r *RingBuffer) String() string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return string(r.buf)
}
