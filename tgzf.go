// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package twk

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"

	"github.com/klauspost/compress/flate"
)

// TGZF is a block-gzip variant: a vanilla DEFLATE member wrapped in a
// gzip-compatible header that carries an extra subfield recording the
// total on-disk size of the block (BSIZE), the same framing BAM/BCF's
// BGZF uses. The header/extra-subfield layout and the EOF terminator
// below are grounded on the two independent Go BGZF implementations in
// the retrieval pack (biogo/hts's bgzf.Reader and grailbio/bio's
// bgzf.Writer); the subfield bytes ('B','C', SLEN=2, BSIZE) are lifted
// directly from grailbio's bgzfExtraPrefix/bgzfExtra constants, which
// in turn implement the SAM/BAM spec's BGZF appendix -- TGZF reuses
// that framing bit-for-bit (spec §6).
const (
	tgzfHeaderLen  = 18
	tgzfTrailerLen = 8
	// MaxBlockSize is the largest a single TGZF block's on-disk
	// footprint may be: 64 KiB, so that BSIZE (a little-endian u16
	// byte-count-minus-one) never overflows. maxPayloadEstimate is that
	// bound minus header and trailer overhead.
	MaxBlockSize       = 65536
	maxPayloadEstimate = MaxBlockSize - tgzfHeaderLen - tgzfTrailerLen
)

var tgzfMagic = [4]byte{0x1f, 0x8b, 0x08, 0x04}

// extraPrefix is the gzip Extra subfield prefix: SI1='B', SI2='C',
// SLEN=2 (little-endian u16), leaving two bytes for BSIZE itself.
var extraPrefix = [4]byte{'B', 'C', 2, 0}

// eofBlock is the canonical empty-payload TGZF/BGZF block that
// terminates a well-formed file (spec §3, §6). Bytes taken verbatim
// from the BGZF EOF marker used throughout the retrieval pack (e.g.
// grailbio/bio's bgzf.terminator).
var eofBlock = []byte{
	0x1f, 0x8b, 0x08, 0x04, 0x00, 0x00, 0x00, 0x00, 0x00, 0xff, 0x06, 0x00, 0x42, 0x43,
	0x02, 0x00, 0x1b, 0x00, 0x03, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
}

// EOFBlock returns the 28-byte TGZF end-of-file marker.
func EOFBlock() []byte {
	out := make([]byte, len(eofBlock))
	copy(out, eofBlock)
	return out
}

// blockHeader is the parsed form of a TGZF block's fixed 18-byte header.
type blockHeader struct {
	BSIZE uint16 // total on-disk block size - 1
}

// parseHeader validates and decodes the 18-byte TGZF header starting
// at the front of buf. It does not consult the trailer.
func parseHeader(buf []byte) (blockHeader, error) {
	if len(buf) < tgzfHeaderLen {
		return blockHeader{}, fmt.Errorf("%w: short header (%d bytes)", ErrCorruptBlock, len(buf))
	}
	if !bytes.Equal(buf[0:4], tgzfMagic[:]) {
		return blockHeader{}, fmt.Errorf("%w: bad magic", ErrCorruptBlock)
	}
	// buf[4:10] is MTIME+XFL+OS, unexamined.
	xlen := binary.LittleEndian.Uint16(buf[10:12])
	if xlen != 6 {
		return blockHeader{}, fmt.Errorf("%w: extra length %d != 6", ErrCorruptBlock, xlen)
	}
	if !bytes.Equal(buf[12:16], extraPrefix[:]) {
		return blockHeader{}, fmt.Errorf("%w: bad extra subfield", ErrCorruptBlock)
	}
	bsize := binary.LittleEndian.Uint16(buf[16:18])
	if int(bsize)+1 > MaxBlockSize {
		return blockHeader{}, fmt.Errorf("%w: BSIZE %d out of range", ErrCorruptBlock, bsize)
	}
	return blockHeader{BSIZE: bsize}, nil
}

func writeHeader(w *Buffer, bsize uint16) {
	w.Write(tgzfMagic[:])
	w.Write([]byte{0, 0, 0, 0, 0, 0xff}) // MTIME(4)=0, XFL=0, OS=0xff (unknown)
	w.Write([]byte{6, 0})                // XLEN little-endian
	w.Write(extraPrefix[:])
	var bs [2]byte
	binary.LittleEndian.PutUint16(bs[:], bsize)
	w.Write(bs[:])
}

// Deflate compresses input into a single TGZF block. The caller is
// responsible for chunking inputs whose compressed form might exceed
// MaxBlockSize -- per spec §4.2, callers split at a safe uncompressed
// size (ingest flushes at ingestBlockTarget, 60000 bytes) before
// calling Deflate.
func Deflate(input []byte) (*Buffer, error) {
	var payload bytes.Buffer
	fw, err := flate.NewWriter(&payload, flate.DefaultCompression)
	if err != nil {
		return nil, err
	}
	if _, err := fw.Write(input); err != nil {
		return nil, err
	}
	if err := fw.Close(); err != nil {
		return nil, err
	}

	total := tgzfHeaderLen + payload.Len() + tgzfTrailerLen
	if total > MaxBlockSize {
		return nil, fmt.Errorf("%w: deflated block %d bytes exceeds %d", ErrCorruptBlock, total, MaxBlockSize)
	}

	out := NewBuffer(total)
	writeHeader(out, uint16(total-1))
	out.Write(payload.Bytes())

	crc := crc32.ChecksumIEEE(input)
	var trailer [8]byte
	binary.LittleEndian.PutUint32(trailer[0:4], crc)
	binary.LittleEndian.PutUint32(trailer[4:8], uint32(len(input)))
	out.Write(trailer[:])

	return out, nil
}

// DeflateChunks splits input into maxPayloadEstimate-sized
// (uncompressed) chunks and deflates each into its own TGZF block, returning them in
// order.
func DeflateChunks(input []byte) ([]*Buffer, error) {
	var blocks []*Buffer
	for len(input) > 0 {
		n := maxPayloadEstimate
		if n > len(input) {
			n = len(input)
		}
		blk, err := Deflate(input[:n])
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, blk)
		input = input[n:]
	}
	if len(blocks) == 0 {
		blk, err := Deflate(nil)
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, blk)
	}
	return blocks, nil
}

// Inflate decodes a single validated TGZF block (header + payload +
// trailer, exactly as produced by Deflate) into output, returning the
// decompressed byte count. It fails with ErrCorruptBlock on any header
// or trailer mismatch per spec §4.2.
func Inflate(block []byte, output *Buffer) (int, error) {
	hdr, err := parseHeader(block)
	if err != nil {
		return 0, err
	}
	total := int(hdr.BSIZE) + 1
	if len(block) < total {
		return 0, fmt.Errorf("%w: truncated block (have %d, want %d)", ErrCorruptBlock, len(block), total)
	}
	payload := block[tgzfHeaderLen : total-tgzfTrailerLen]
	trailer := block[total-tgzfTrailerLen : total]
	wantCRC := binary.LittleEndian.Uint32(trailer[0:4])
	wantISIZE := binary.LittleEndian.Uint32(trailer[4:8])

	fr := flate.NewReader(bytes.NewReader(payload))
	defer fr.Close()
	output.Reset()
	output.Resize(int(wantISIZE))
	n, err := io.ReadFull(fr, output.data[:wantISIZE])
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return 0, fmt.Errorf("%w: %s", ErrCorruptBlock, err)
	}
	output.pointer = n

	if uint32(n) != wantISIZE {
		return 0, fmt.Errorf("%w: ISIZE mismatch (got %d, want %d)", ErrCorruptBlock, n, wantISIZE)
	}
	if crc32.ChecksumIEEE(output.Bytes()) != wantCRC {
		return 0, fmt.Errorf("%w: CRC32 mismatch", ErrCorruptBlock)
	}
	return n, nil
}

// IsEOFBlock reports whether block is the canonical empty-payload TGZF
// terminator.
func IsEOFBlock(block []byte) bool {
	return len(block) >= len(eofBlock) && bytes.Equal(block[:len(eofBlock)], eofBlock)
}
