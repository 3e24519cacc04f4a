// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package twk

import (
	"encoding/binary"
	"fmt"
)

// FileMagic and FooterMagic are the bit-exact constants from spec §6.
var (
	FileMagic   = [4]byte{'T', 'W', 'K', 0}
	FooterMagic = [4]byte{'T', 'W', 'K', 'E'}
)

// FormatVersion is the TWK file format version this package reads and
// writes.
const FormatVersion = 1

// Contig is one entry of the header's contig table (spec §6).
type Contig struct {
	ID      uint32
	Name    string
	Length  uint32
	NBlocks uint32
}

// FileHeader carries the sample list, contig table, and free-text
// literals recorded at TWK file start (spec §3, §6). The Header state
// machine's isSorted/isPartialSorted bits described in spec §3 are, in
// this implementation, carried in the Index block's flags byte (see
// totempole.go's marshalIndex/unmarshalIndex) rather than duplicated
// here -- an Open Question resolution recorded in DESIGN.md.
type FileHeader struct {
	NSamples uint64
	Contigs  []Contig
	Literals string
	Samples  []string
}

// ContigID resolves a contig name to its ID. ok is false if no such
// contig is registered, the UnknownContig condition from spec §4.4.
func (h *FileHeader) ContigID(name string) (id uint32, ok bool) {
	for _, c := range h.Contigs {
		if c.Name == name {
			return c.ID, true
		}
	}
	return 0, false
}

// AddContig registers a new contig, assigning it the next sequential
// ID, and returns that ID.
func (h *FileHeader) AddContig(name string, length uint32) uint32 {
	id := uint32(len(h.Contigs))
	h.Contigs = append(h.Contigs, Contig{ID: id, Name: name, Length: length})
	return id
}

func putLPString(w *Buffer, s string) {
	var n [4]byte
	binary.LittleEndian.PutUint32(n[:], uint32(len(s)))
	w.Write(n[:])
	w.Write([]byte(s))
}

func getLPString(b []byte, off int) (string, int, error) {
	if off+4 > len(b) {
		return "", 0, fmt.Errorf("%w: truncated length-prefixed string", ErrFormat)
	}
	n := int(binary.LittleEndian.Uint32(b[off : off+4]))
	off += 4
	if off+n > len(b) {
		return "", 0, fmt.Errorf("%w: truncated length-prefixed string body", ErrFormat)
	}
	return string(b[off : off+n]), off + n, nil
}

// marshalHeader serializes h's body (everything after the TGZF
// wrapper), matching spec §6's byte layout.
func marshalHeader(h *FileHeader) []byte {
	w := NewBuffer(256)
	var n8 [8]byte
	binary.LittleEndian.PutUint64(n8[:], h.NSamples)
	w.Write(n8[:])

	var n4 [4]byte
	binary.LittleEndian.PutUint32(n4[:], uint32(len(h.Contigs)))
	w.Write(n4[:])
	for _, c := range h.Contigs {
		binary.LittleEndian.PutUint32(n4[:], c.ID)
		w.Write(n4[:])
		putLPString(w, c.Name)
		binary.LittleEndian.PutUint32(n4[:], c.Length)
		w.Write(n4[:])
		binary.LittleEndian.PutUint32(n4[:], c.NBlocks)
		w.Write(n4[:])
	}

	putLPString(w, h.Literals)

	for _, s := range h.Samples {
		putLPString(w, s)
	}

	return w.Bytes()
}

func unmarshalHeader(b []byte) (*FileHeader, error) {
	if len(b) < 12 {
		return nil, fmt.Errorf("%w: truncated header", ErrFormat)
	}
	h := &FileHeader{}
	off := 0
	h.NSamples = binary.LittleEndian.Uint64(b[off : off+8])
	off += 8
	nContigs := binary.LittleEndian.Uint32(b[off : off+4])
	off += 4
	h.Contigs = make([]Contig, nContigs)
	for i := range h.Contigs {
		if off+4 > len(b) {
			return nil, fmt.Errorf("%w: truncated contig table", ErrFormat)
		}
		id := binary.LittleEndian.Uint32(b[off : off+4])
		off += 4
		name, next, err := getLPString(b, off)
		if err != nil {
			return nil, err
		}
		off = next
		if off+8 > len(b) {
			return nil, fmt.Errorf("%w: truncated contig table", ErrFormat)
		}
		length := binary.LittleEndian.Uint32(b[off : off+4])
		off += 4
		nblocks := binary.LittleEndian.Uint32(b[off : off+4])
		off += 4
		h.Contigs[i] = Contig{ID: id, Name: name, Length: length, NBlocks: nblocks}
	}

	lit, next, err := getLPString(b, off)
	if err != nil {
		return nil, err
	}
	h.Literals = lit
	off = next

	h.Samples = make([]string, 0, h.NSamples)
	for off < len(b) {
		s, next, err := getLPString(b, off)
		if err != nil {
			return nil, err
		}
		h.Samples = append(h.Samples, s)
		off = next
	}
	if uint64(len(h.Samples)) != h.NSamples {
		return nil, fmt.Errorf("%w: header declares %d samples, found %d names", ErrFormat, h.NSamples, len(h.Samples))
	}
	return h, nil
}
