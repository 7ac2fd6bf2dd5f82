package session

import "latchd/internal/security"

// MaxBufferBytes bounds the password accumulator. Chunks that would
// push the total past this ceiling are dropped, not buffered, so a
// held-down key or injected event stream cannot exhaust memory.
const MaxBufferBytes = 100 * 1024

// Buffer is the password accumulator: an ordered sequence of opaque
// byte chunks, one per completed key composition.
type Buffer struct {
	chunks [][]byte
	size   int
}

// Push appends a copy of chunk. It reports whether the chunk was
// buffered; a chunk that would exceed the ceiling is silently dropped.
func (b *Buffer) Push(chunk []byte) bool {
	if len(chunk) == 0 {
		return false
	}
	if b.size+len(chunk) > MaxBufferBytes {
		return false
	}

	c := make([]byte, len(chunk))
	copy(c, chunk)
	b.chunks = append(b.chunks, c)
	b.size += len(c)
	return true
}

// Pop removes the last chunk (one backspace, one composition). Popping
// an empty buffer is a no-op.
func (b *Buffer) Pop() {
	if len(b.chunks) == 0 {
		return
	}

	last := b.chunks[len(b.chunks)-1]
	security.Wipe(last)
	b.size -= len(last)
	b.chunks = b.chunks[:len(b.chunks)-1]
}

// Clear wipes and discards every chunk.
func (b *Buffer) Clear() {
	for _, c := range b.chunks {
		security.Wipe(c)
	}
	b.chunks = nil
	b.size = 0
}

// Bytes returns the concatenated buffer contents. The caller owns the
// returned slice and must wipe it after use.
func (b *Buffer) Bytes() []byte {
	out := make([]byte, 0, b.size)
	for _, c := range b.chunks {
		out = append(out, c...)
	}
	return out
}

// Len returns the total byte length.
func (b *Buffer) Len() int {
	return b.size
}

// Chunks returns the number of buffered compositions.
func (b *Buffer) Chunks() int {
	return len(b.chunks)
}
