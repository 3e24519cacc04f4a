// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package twk

import (
	"encoding/binary"
	"fmt"
)

// totempoleEntrySize is the fixed on-disk size of a TotempoleEntry:
// 3 u32 + 2 u64 + 2 u32 (spec §3).
const totempoleEntrySize = 4 + 4 + 4 + 8 + 8 + 4 + 4

// TotempoleEntry describes one data block: its contig/position range
// and its byte span in the file (spec §3).
type TotempoleEntry struct {
	ContigID        uint32
	MinPosition     uint32
	MaxPosition     uint32
	ByteOffset      uint64
	ByteOffsetEnd   uint64
	UncompressedSize uint32
	NVariants       uint32
}

func (e TotempoleEntry) marshal() [totempoleEntrySize]byte {
	var b [totempoleEntrySize]byte
	binary.LittleEndian.PutUint32(b[0:4], e.ContigID)
	binary.LittleEndian.PutUint32(b[4:8], e.MinPosition)
	binary.LittleEndian.PutUint32(b[8:12], e.MaxPosition)
	binary.LittleEndian.PutUint64(b[12:20], e.ByteOffset)
	binary.LittleEndian.PutUint64(b[20:28], e.ByteOffsetEnd)
	binary.LittleEndian.PutUint32(b[28:32], e.UncompressedSize)
	binary.LittleEndian.PutUint32(b[32:36], e.NVariants)
	return b
}

func unmarshalTotempoleEntry(b []byte) TotempoleEntry {
	return TotempoleEntry{
		ContigID:         binary.LittleEndian.Uint32(b[0:4]),
		MinPosition:      binary.LittleEndian.Uint32(b[4:8]),
		MaxPosition:      binary.LittleEndian.Uint32(b[8:12]),
		ByteOffset:       binary.LittleEndian.Uint64(b[12:20]),
		ByteOffsetEnd:    binary.LittleEndian.Uint64(b[20:28]),
		UncompressedSize: binary.LittleEndian.Uint32(b[28:32]),
		NVariants:        binary.LittleEndian.Uint32(b[32:36]),
	}
}

// Index (the "Totempole") is the ordered sequence of block descriptors
// serialized at file end (spec §4.3). The Index exclusively owns its
// entry slice; readers hold a shared reference for the file's
// lifetime.
type Index struct {
	entries []TotempoleEntry

	// sorted/partialSorted are the controller bits carried in the
	// index block's flags byte (see marshalIndex); at most one is
	// true (spec §3 Header state machine).
	sorted        bool
	partialSorted bool
}

// Append adds a new block descriptor. Used only by the ingest/sort
// writer path.
func (idx *Index) Append(e TotempoleEntry) { idx.entries = append(idx.entries, e) }

// At returns the i'th entry.
func (idx *Index) At(i int) TotempoleEntry { return idx.entries[i] }

// Size returns the number of entries.
func (idx *Index) Size() int { return len(idx.entries) }

// TotalBytes returns the sum of on-disk byte spans across all entries.
func (idx *Index) TotalBytes() uint64 {
	var total uint64
	for _, e := range idx.entries {
		total += e.ByteOffsetEnd - e.ByteOffset
	}
	return total
}

func (idx *Index) IsSorted() bool        { return idx.sorted }
func (idx *Index) IsPartialSorted() bool { return idx.partialSorted }

// Validate checks the index monotonicity invariant from spec §4.3:
// entry[i].byte_offset < entry[i].byte_offset_end <= entry[i+1].byte_offset.
func (idx *Index) Validate() error {
	for i, e := range idx.entries {
		if e.ByteOffset >= e.ByteOffsetEnd {
			return fmt.Errorf("%w: totempole entry %d: byte_offset %d >= byte_offset_end %d", ErrFormat, i, e.ByteOffset, e.ByteOffsetEnd)
		}
		if i+1 < len(idx.entries) && e.ByteOffsetEnd > idx.entries[i+1].ByteOffset {
			return fmt.Errorf("%w: totempole entry %d overlaps entry %d", ErrFormat, i, i+1)
		}
	}
	return nil
}

// Index controller bits (spec §6: "an 8-byte footer controller: flags
// isSorted, isPartialSorted"), carried in the index block's own header
// byte rather than the file footer -- the index is TGZF-deflated as a
// single self-contained block, so its sort-state bits travel with it
// across the OpenForAppend/Open/sort/merge read paths without needing
// a separate footer field.
const (
	indexFlagSorted        byte = 1 << 0
	indexFlagPartialSorted byte = 1 << 1
)

// indexHeaderSize is the index block's fixed preamble: u32 n_entries +
// 1 byte of controller flags.
const indexHeaderSize = 4 + 1

// marshalIndex serializes the index body: u32 n_entries, a controller
// flags byte, then the entries themselves, ready to be TGZF-deflated
// by the caller.
func marshalIndex(idx *Index) []byte {
	out := make([]byte, indexHeaderSize, indexHeaderSize+len(idx.entries)*totempoleEntrySize)
	binary.LittleEndian.PutUint32(out[0:4], uint32(len(idx.entries)))
	var flags byte
	if idx.sorted {
		flags |= indexFlagSorted
	}
	if idx.partialSorted {
		flags |= indexFlagPartialSorted
	}
	out[4] = flags
	for _, e := range idx.entries {
		b := e.marshal()
		out = append(out, b[:]...)
	}
	return out
}

func unmarshalIndex(b []byte) (*Index, error) {
	if len(b) < indexHeaderSize {
		return nil, fmt.Errorf("%w: truncated index", ErrFormat)
	}
	n := binary.LittleEndian.Uint32(b[0:4])
	flags := b[4]
	want := indexHeaderSize + int(n)*totempoleEntrySize
	if len(b) != want {
		return nil, fmt.Errorf("%w: index size %d != expected %d", ErrFormat, len(b), want)
	}
	idx := &Index{
		entries:       make([]TotempoleEntry, n),
		sorted:        flags&indexFlagSorted != 0,
		partialSorted: flags&indexFlagPartialSorted != 0,
	}
	for i := 0; i < int(n); i++ {
		off := indexHeaderSize + i*totempoleEntrySize
		idx.entries[i] = unmarshalTotempoleEntry(b[off : off+totempoleEntrySize])
	}
	return idx, nil
}
