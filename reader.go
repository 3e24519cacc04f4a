// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package twk

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

// Reader provides random-access read access to a closed TWK file:
// its header, its Totempole index, and per-block variant iteration
// (spec §4.6 "Random access").
type Reader struct {
	r    io.ReadSeeker
	Header *FileHeader
	Index  *Index
	width  Width

	dataEnd int64
}

// Open validates the file magic and footer, loads the header and
// index, and returns a Reader positioned for random access.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrIO, err)
	}
	rd, err := NewReader(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	return rd, nil
}

// NewReader builds a Reader over an already-open seekable stream,
// e.g. for callers that manage the underlying file's lifetime
// themselves.
func NewReader(r io.ReadSeeker) (*Reader, error) {
	ra, ok := r.(io.ReaderAt)
	if !ok {
		return nil, fmt.Errorf("%w: reader must support ReadAt", ErrInvalidParameter)
	}
	size, err := streamSize(r)
	if err != nil {
		return nil, err
	}

	magic := make([]byte, len(FileMagic))
	if _, err := ra.ReadAt(magic, 0); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrIO, err)
	}
	if string(magic) != string(FileMagic[:]) {
		return nil, fmt.Errorf("%w: bad file magic", ErrFormat)
	}

	headerOffset, indexOffset, err := readFooterAt(ra, size)
	if err != nil {
		return nil, err
	}

	hdrStream, err := NewBlockStream(r, int64(headerOffset), int64(indexOffset))
	if err != nil {
		return nil, err
	}
	if err := hdrStream.nextBlock(0); err != nil {
		return nil, fmt.Errorf("%w: reading header block: %s", ErrIO, err)
	}
	header, err := unmarshalHeader(hdrStream.payload.Bytes())
	if err != nil {
		return nil, err
	}

	idxStream, err := NewBlockStream(r, int64(indexOffset), size-footerSize)
	if err != nil {
		return nil, err
	}
	if err := idxStream.nextBlock(0); err != nil {
		return nil, fmt.Errorf("%w: reading index block: %s", ErrIO, err)
	}
	index, err := unmarshalIndex(idxStream.payload.Bytes())
	if err != nil {
		return nil, err
	}
	if err := index.Validate(); err != nil {
		return nil, err
	}

	width, err := SelectWidth(header.NSamples)
	if err != nil {
		return nil, err
	}

	return &Reader{r: r, Header: header, Index: index, width: width, dataEnd: int64(headerOffset)}, nil
}

func streamSize(r io.ReadSeeker) (int64, error) {
	cur, err := r.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, err
	}
	end, err := r.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, err
	}
	if _, err := r.Seek(cur, io.SeekStart); err != nil {
		return 0, err
	}
	return end, nil
}

// Close releases the underlying file, if the Reader owns one (i.e.
// was returned by Open rather than NewReader).
func (rd *Reader) Close() error {
	if c, ok := rd.r.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Block is one decoded data block: its variant metadata and the raw
// genotype stream, sliceable per variant via Genotypes.
type Block struct {
	Metas    []VariantMeta
	genoData []byte
	offsets  []int // byte offset of each variant's genotype stream within genoData
	width    Width
}

// Genotypes returns a GenotypeView over the i'th variant's packed run
// words.
func (b *Block) Genotypes(i int) GenotypeView {
	start := b.offsets[i]
	end := len(b.genoData)
	if i+1 < len(b.offsets) {
		end = b.offsets[i+1]
	}
	return NewGenotypeView(b.width, b.genoData[start:end])
}

// ReadBlock performs a random-access read of the blockID'th Totempole
// entry, decompressing and parsing it into a Block (spec §4.6).
func (rd *Reader) ReadBlock(blockID int) (*Block, error) {
	if blockID < 0 || blockID >= rd.Index.Size() {
		return nil, fmt.Errorf("%w: block id %d out of range", ErrInvalidParameter, blockID)
	}
	entry := rd.Index.At(blockID)
	span := entry.ByteOffsetEnd - entry.ByteOffset
	raw := make([]byte, span)
	if _, err := rd.r.Seek(int64(entry.ByteOffset), io.SeekStart); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrIO, err)
	}
	if _, err := io.ReadFull(rd.r, raw); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrIO, err)
	}

	payload := NewBuffer(int(entry.UncompressedSize))
	if _, err := Inflate(raw, payload); err != nil {
		return nil, err
	}
	body := payload.Bytes()
	if len(body) < 4 {
		return nil, fmt.Errorf("%w: truncated block body", ErrFormat)
	}
	nVariants := int(binary.LittleEndian.Uint32(body[0:4]))
	off := 4

	blk := &Block{width: rd.width, Metas: make([]VariantMeta, nVariants), offsets: make([]int, nVariants)}
	for i := 0; i < nVariants; i++ {
		if off+metaEntrySize > len(body) {
			return nil, fmt.Errorf("%w: truncated meta entry %d", ErrFormat, i)
		}
		blk.Metas[i] = unmarshalVariantMeta(body[off : off+metaEntrySize])
		off += metaEntrySize
	}

	genoStart := off
	for i, m := range blk.Metas {
		blk.offsets[i] = off - genoStart
		off += int(m.Runs) * rd.width.Bytes()
	}
	if off > len(body) {
		return nil, fmt.Errorf("%w: genotype stream runs past block body", ErrFormat)
	}
	blk.genoData = body[genoStart:off]
	return blk, nil
}

// Blocks returns an iterator-friendly slice of block IDs in file
// order; callers needing a specific contig range should filter via
// Index entries directly.
func (rd *Reader) Blocks() []int {
	ids := make([]int, rd.Index.Size())
	for i := range ids {
		ids[i] = i
	}
	return ids
}
