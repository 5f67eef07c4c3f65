// Package pool implements the fixed-size array of BGRA frame buffers
// shared between the frame grabber and the JPEG encoder.
//
// Ownership never overlaps: a buffer is either being written by the
// grabber, pending read by the encoder, or idle. The transfer of read
// permission from grabber to encoder is not a lock — it rides on the
// release/acquire pair already performed by the SPSC ring that carries
// the buffer's index, exactly as for any other ring payload. The pool
// itself holds no mutex.
package pool

import "fmt"

// FramePool is a fixed array of N BGRA buffers, each sized w*h*4 bytes,
// top-down, 8 bits per channel. N must be a power of two; the default is 4.
type FramePool struct {
	buffers [][]byte
	width   int
	height  int
}

// New allocates a pool of n buffers of the given frame dimensions. n must
// be a power of two and at least 1.
func New(width, height, n int) (*FramePool, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("pool: invalid frame dimensions %dx%d", width, height)
	}
	if n <= 0 || n&(n-1) != 0 {
		return nil, fmt.Errorf("pool: buffer count must be a power of two, got %d", n)
	}
	size := width * height * 4
	buffers := make([][]byte, n)
	for i := range buffers {
		buffers[i] = make([]byte, size)
	}
	return &FramePool{buffers: buffers, width: width, height: height}, nil
}

// N returns the number of buffers in the pool.
func (p *FramePool) N() int {
	return len(p.buffers)
}

// FrameSize returns the byte size of a single buffer (width*height*4).
func (p *FramePool) FrameSize() int {
	return p.width * p.height * 4
}

// Buffer returns the backing slice for index i. The caller must already
// hold the appropriate permission for i (write permission while it is the
// grabber's current write_ix; read permission after popping i from the
// capture ring) — the pool performs no locking or bounds-based ownership
// tracking of its own.
func (p *FramePool) Buffer(i int) []byte {
	return p.buffers[i%len(p.buffers)]
}
