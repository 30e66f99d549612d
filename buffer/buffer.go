// Package buffer provides Buffer, a pooled byte region with a single owner.
//
// The reactor hands inbound bytes to the handler as a slice that is only
// valid for the duration of the read callback. Copy takes those bytes into a
// pooled Buffer; Move hands the region to a new owner and revokes the old
// holder's right to release it, so every region is returned to the pool
// exactly once.
package buffer

import (
	"errors"

	"github.com/valyala/bytebufferpool"
)

// ErrNotOwned is returned when a Buffer that was already moved or released
// is released again.
var ErrNotOwned = errors.New("buffer: not owned")

var pool bytebufferpool.Pool

// Buffer owns one pooled byte region. The zero value owns nothing.
type Buffer struct {
	bb *bytebufferpool.ByteBuffer
}

// Copy acquires a pooled region and copies p into it. The caller owns the
// returned Buffer and must either Move or Release it.
func Copy(p []byte) *Buffer {
	bb := pool.Get()
	_, _ = bb.Write(p)
	return &Buffer{bb: bb}
}

// Bytes returns the buffered bytes, or nil once the Buffer no longer owns
// a region. The slice is valid until the region is released.
func (b *Buffer) Bytes() []byte {
	if b == nil || b.bb == nil {
		return nil
	}

	return b.bb.B
}

// Len returns the number of buffered bytes.
func (b *Buffer) Len() int {
	return len(b.Bytes())
}

// Owned reports whether b still holds a region.
func (b *Buffer) Owned() bool {
	return b != nil && b.bb != nil
}

// Move transfers the region to a new Buffer. Afterwards b owns nothing:
// Bytes returns nil and Release returns ErrNotOwned. Moving a Buffer that
// owns nothing returns a Buffer that owns nothing.
func (b *Buffer) Move() *Buffer {
	if b == nil {
		return &Buffer{}
	}

	moved := &Buffer{bb: b.bb}
	b.bb = nil
	return moved
}

// Release returns the region to the pool.
//
// Returns:
//   - ErrNotOwned if the region was already moved or released
func (b *Buffer) Release() error {
	if !b.Owned() {
		return ErrNotOwned
	}

	pool.Put(b.bb)
	b.bb = nil
	return nil
}
