// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package twk

// Buffer is a growable byte container with a write cursor ("pointer")
// kept distinct from its capacity. It holds TGZF blocks and their
// inflated payloads, and supports random-access overwrite of bytes
// already written (PutAt) -- the pattern grailbio's bgzf.Writer uses
// a bytes.Buffer for (see encoding/bgzf/writer.go's tryCompress, which
// pokes w.compressed.Bytes()[offset+4:] directly). bytes.Buffer does
// not expose that kind of overwrite once bytes have been written, so
// this type keeps its own slice instead of wrapping one. This
// package's Deflate does not backpatch: it computes the block size
// before writing the header.
type Buffer struct {
	data    []byte
	pointer int // next byte to be written; also the length of valid data
}

// NewBuffer returns a Buffer with the given initial capacity.
func NewBuffer(capacity int) *Buffer {
	return &Buffer{data: make([]byte, capacity)}
}

// Len returns the number of valid bytes currently held.
func (b *Buffer) Len() int { return b.pointer }

// Cap returns the current capacity.
func (b *Buffer) Cap() int { return len(b.data) }

// Bytes returns the valid prefix of the buffer. The returned slice
// aliases the buffer's storage and is invalidated by any subsequent
// Resize or Write call.
func (b *Buffer) Bytes() []byte { return b.data[:b.pointer] }

// Reset sets the cursor to 0 without releasing capacity.
func (b *Buffer) Reset() { b.pointer = 0 }

// Resize grows the buffer's capacity to at least n, geometrically, and
// preserves the data already written. Callers that hold a slice from
// a prior Bytes() call must re-obtain it after Resize: the backing
// array may have been reallocated.
func (b *Buffer) Resize(n int) {
	if cap(b.data) >= n {
		b.data = b.data[:cap(b.data)]
		return
	}
	newcap := cap(b.data)
	if newcap == 0 {
		newcap = 64
	}
	for newcap < n {
		newcap *= 2
	}
	grown := make([]byte, newcap)
	copy(grown, b.data[:b.pointer])
	b.data = grown
}

// Write appends p to the buffer, growing it as needed, and advances
// the cursor. It always returns len(p), nil -- matching io.Writer.
func (b *Buffer) Write(p []byte) (int, error) {
	b.Resize(b.pointer + len(p))
	copy(b.data[b.pointer:], p)
	b.pointer += len(p)
	return len(p), nil
}

// WriteByte appends a single byte.
func (b *Buffer) WriteByte(c byte) error {
	_, err := b.Write([]byte{c})
	return err
}

// PutAt overwrites the bytes at [offset, offset+len(p)) with p. The
// region must already be within the written prefix ([0, Len())), e.g.
// to backpatch a header field once a later length becomes known.
func (b *Buffer) PutAt(offset int, p []byte) {
	copy(b.data[offset:offset+len(p)], p)
}

// At returns the byte at the given offset within the written prefix.
func (b *Buffer) At(offset int) byte { return b.data[offset] }
