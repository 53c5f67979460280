package transfer

import (
	"bytes"
	"io"
)

// Buffer is an upload payload. The backing slice is never modified after
// creation; reads advance a cursor over it.
type Buffer struct {
	data []byte
	off  int
}

// NewBuffer returns a Buffer of size bytes, all set to filler. Negative sizes
// are treated as zero.
func NewBuffer(size int, filler byte) *Buffer {
	if size < 0 {
		size = 0
	}
	return &Buffer{data: bytes.Repeat([]byte{filler}, size)}
}

// Read copies the next unread bytes into p.
func (b *Buffer) Read(p []byte) (int, error) {
	if b.off >= len(b.data) {
		return 0, io.EOF
	}
	n := copy(p, b.data[b.off:])
	b.off += n
	return n, nil
}

// Size returns the total size of the payload.
func (b *Buffer) Size() int {
	return len(b.data)
}

// Len returns the number of bytes not read yet.
func (b *Buffer) Len() int {
	return len(b.data) - b.off
}
