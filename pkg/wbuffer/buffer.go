// Package wbuffer implements a length-capped byte region with an append
// cursor, and slicing that aliases the parent's backing storage rather than
// copying it.
//
// This mirrors the origin's UwBuffer: callers own the backing array, a
// Buffer tracks how much of it is in use, and a Slice is a borrowed view
// that must not outlive the Buffer it was taken from.
package wbuffer

import "github.com/mahmed8003/esp8266-weave-test/pkg/status"

// Buffer wraps a caller-owned byte slice and tracks how much of it has been
// written (used). Appending past capacity fails rather than growing: the
// device core never allocates on the data path.
type Buffer struct {
	backing []byte
	used    int
}

// New wraps backing (capacity = len(backing), initially empty).
func New(backing []byte) *Buffer {
	return &Buffer{backing: backing}
}

// NewWithUsed wraps backing and marks the first `used` bytes as already
// written, for constructing a Buffer around data that arrived from the wire.
func NewWithUsed(backing []byte, used int) *Buffer {
	if used < 0 || used > len(backing) {
		used = len(backing)
	}
	return &Buffer{backing: backing, used: used}
}

// Cap returns the backing capacity.
func (b *Buffer) Cap() int { return len(b.backing) }

// Len returns the used length.
func (b *Buffer) Len() int { return b.used }

// Remaining returns the capacity not yet used.
func (b *Buffer) Remaining() int { return len(b.backing) - b.used }

// Bytes returns the used prefix of the backing storage. The returned slice
// aliases the Buffer; callers must not retain it past the Buffer's lifetime.
func (b *Buffer) Bytes() []byte { return b.backing[:b.used] }

// Reset marks the buffer empty without touching the backing storage.
func (b *Buffer) Reset() { b.used = 0 }

// Append writes data at the current cursor and advances it. Returns
// status.ValueEncodingOutOfSpace if data does not fit in the remaining
// capacity; the buffer is left unchanged on failure.
func (b *Buffer) Append(data []byte) status.Status {
	if len(data) > b.Remaining() {
		return status.ValueEncodingOutOfSpace
	}
	n := copy(b.backing[b.used:], data)
	b.used += n
	return status.Success
}

// AppendByte appends a single byte.
func (b *Buffer) AppendByte(v byte) status.Status {
	return b.Append([]byte{v})
}

// Slice returns an aliasing view over backing[off:off+n] of the used
// region. It shares memory with b: writes through the returned Buffer
// mutate b's backing array. The slice must not be used after b is reused
// for a new message (Reset/re-wrap).
func (b *Buffer) Slice(off, n int) (*Buffer, status.Status) {
	if off < 0 || n < 0 || off+n > b.used {
		return nil, status.ValueInvalidInput
	}
	return &Buffer{backing: b.backing[off : off+n], used: n}, status.Success
}

// SliceRemaining returns an aliasing Buffer over the unused tail of the
// backing storage, for a callee to append into directly.
func (b *Buffer) SliceRemaining() *Buffer {
	return &Buffer{backing: b.backing[b.used:]}
}

// Commit advances b's used cursor by n, for when a callee wrote directly
// into the slice returned by SliceRemaining.
func (b *Buffer) Commit(n int) status.Status {
	if n < 0 || n > b.Remaining() {
		return status.ValueEncodingOutOfSpace
	}
	b.used += n
	return status.Success
}
