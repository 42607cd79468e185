package logging

import (
	"os"
	"sync"
)

// RingBuffer is a thread-safe circular byte buffer.
// It implements io.Writer and silently overwrites old data when full.
type RingBuffer struct {
	mu     sync.Mutex
	buf    []byte
	start  int // offset of the oldest byte
	length int // bytes currently held
}

// NewRingBuffer creates a ring buffer with the given capacity in bytes.
func NewRingBuffer(size int) *RingBuffer {
	if size <= 0 {
		size = 10 * 1024 * 1024 // 10MB default
	}
	return &RingBuffer{buf: make([]byte, size)}
}

// Write implements io.Writer. Data wraps around when the buffer is full.
func (rb *RingBuffer) Write(p []byte) (int, error) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	n := len(p)
	size := len(rb.buf)
	if n >= size {
		// Larger than the whole buffer: keep only the tail.
		copy(rb.buf, p[n-size:])
		rb.start = 0
		rb.length = size
		return n, nil
	}

	end := (rb.start + rb.length) % size
	first := copy(rb.buf[end:], p)
	if first < n {
		copy(rb.buf, p[first:])
	}

	rb.length += n
	if rb.length > size {
		// Oldest bytes were overwritten; advance start past them.
		rb.start = (rb.start + rb.length - size) % size
		rb.length = size
	}
	return n, nil
}

// Bytes returns the buffer contents in chronological order.
func (rb *RingBuffer) Bytes() []byte {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	out := make([]byte, rb.length)
	first := copy(out, rb.buf[rb.start:min(rb.start+rb.length, len(rb.buf))])
	if first < rb.length {
		copy(out[first:], rb.buf[:rb.length-first])
	}
	return out
}

// DumpToFile writes the ring buffer contents to a file in chronological order.
func (rb *RingBuffer) DumpToFile(path string) error {
	return os.WriteFile(path, rb.Bytes(), 0o644)
}
