// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package twk

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat/distuv"
)

// DefaultMissingnessCutoff is the fraction of missing calls above
// which a variant is dropped during ingest (spec §4.4).
const DefaultMissingnessCutoff = 0.20

// ingestBlockTarget is the uncompressed byte threshold at which the
// writer flushes its pending block (spec §6: "block flush at a
// 65536-byte uncompressed limit"). It is kept comfortably under
// MaxBlockSize so a single Deflate call, even on poorly-compressible
// RLE data, stays within one TGZF block.
const ingestBlockTarget = 60000

// variantSource is satisfied by both VCFReader and BCFReader, letting
// Writer.Ingest accept either without caring which text/binary format
// produced the records.
type variantSource interface {
	Next() (*VCFRecord, error)
}

// footerSize covers headerOffset, indexOffset, and FooterMagic. The
// header is written after the data region (its contig table is only
// known once ingest has seen every record), so the footer -- not a
// fixed offset -- is what locates both the header and index blocks.
const footerSize = 8 + 8 + 4

func writeFooter(w io.Writer, headerOffset, indexOffset uint64) error {
	var b [footerSize]byte
	binary.LittleEndian.PutUint64(b[0:8], headerOffset)
	binary.LittleEndian.PutUint64(b[8:16], indexOffset)
	copy(b[16:20], FooterMagic[:])
	_, err := w.Write(b[:])
	return err
}

func readFooterAt(r io.ReaderAt, fileSize int64) (headerOffset, indexOffset uint64, err error) {
	if fileSize < footerSize {
		return 0, 0, fmt.Errorf("%w: file too small for footer", ErrFormat)
	}
	var b [footerSize]byte
	if _, err := r.ReadAt(b[:], fileSize-footerSize); err != nil {
		return 0, 0, fmt.Errorf("%w: reading footer: %s", ErrIO, err)
	}
	if string(b[16:20]) != string(FooterMagic[:]) {
		return 0, 0, fmt.Errorf("%w: bad footer magic", ErrFormat)
	}
	return binary.LittleEndian.Uint64(b[0:8]), binary.LittleEndian.Uint64(b[8:16]), nil
}

// Writer ingests VCF/BCF records into a TWK file, enforcing the
// ordering, simplicity, and missingness filters from spec §4.4 and
// packing surviving variants into RLE-encoded, TGZF-compressed blocks.
type Writer struct {
	f      *os.File
	offset int64

	header FileHeader
	index  Index
	width  Width
	ctx    RuntimeContext

	MissingnessCutoff float64

	metaBuf *Buffer
	genoBuf *Buffer
	nPend   int

	blockContig         uint32
	blockMin, blockMax  uint32
	haveBlockCoords     bool

	haveLast     bool
	lastContigID uint32
	lastPos      uint32

	log *logrus.Entry
}

// Create starts a new TWK file at path for the given sample list.
func Create(path string, samples []string, ctx RuntimeContext) (*Writer, error) {
	if len(samples) < MinVCFSamples {
		return nil, fmt.Errorf("%w: need at least %d samples, got %d", ErrInvalidParameter, MinVCFSamples, len(samples))
	}
	width, err := SelectWidth(uint64(len(samples)))
	if err != nil {
		return nil, err
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrIO, err)
	}

	w := &Writer{
		f:                 f,
		header:            FileHeader{NSamples: uint64(len(samples)), Samples: samples, Literals: versionLiteral(ctx)},
		width:             width,
		ctx:               ctx,
		MissingnessCutoff: DefaultMissingnessCutoff,
		metaBuf:           NewBuffer(4096),
		genoBuf:           NewBuffer(4096),
		log:               logrus.WithField("component", "ingest"),
	}
	if _, err := f.Write(FileMagic[:]); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrIO, err)
	}
	w.offset = int64(len(FileMagic))
	return w, nil
}

// OpenForAppend reopens an existing TWK file and positions it to
// resume ingest (the Header state machine's "extend" transition, spec
// §3): the existing sample layout and RLE width are reused, new data
// blocks are appended where the old header block used to start, and
// the header/index/footer are rewritten at close.
func OpenForAppend(path string, ctx RuntimeContext) (*Writer, error) {
	rf, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrIO, err)
	}
	fi, err := rf.Stat()
	if err != nil {
		rf.Close()
		return nil, err
	}
	headerOffset, indexOffset, err := readFooterAt(rf, fi.Size())
	if err != nil {
		rf.Close()
		return nil, err
	}

	magic := make([]byte, len(FileMagic))
	if _, err := rf.ReadAt(magic, 0); err != nil {
		rf.Close()
		return nil, fmt.Errorf("%w: %s", ErrIO, err)
	}
	if string(magic) != string(FileMagic[:]) {
		rf.Close()
		return nil, fmt.Errorf("%w: bad file magic", ErrFormat)
	}

	hdrStream, err := NewBlockStream(rf, int64(headerOffset), int64(indexOffset))
	if err != nil {
		rf.Close()
		return nil, err
	}
	if err := hdrStream.nextBlock(0); err != nil {
		rf.Close()
		return nil, fmt.Errorf("%w: reading header block: %s", ErrIO, err)
	}
	header, err := unmarshalHeader(hdrStream.payload.Bytes())
	if err != nil {
		rf.Close()
		return nil, err
	}

	idxStream, err := NewBlockStream(rf, int64(indexOffset), fi.Size()-footerSize)
	if err != nil {
		rf.Close()
		return nil, err
	}
	if err := idxStream.nextBlock(0); err != nil {
		rf.Close()
		return nil, fmt.Errorf("%w: reading index block: %s", ErrIO, err)
	}
	index, err := unmarshalIndex(idxStream.payload.Bytes())
	if err != nil {
		rf.Close()
		return nil, err
	}
	if index.sorted || index.partialSorted {
		rf.Close()
		return nil, fmt.Errorf("%w: cannot extend a sorted or partially sorted file", ErrState)
	}
	rf.Close()

	width, err := SelectWidth(header.NSamples)
	if err != nil {
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrIO, err)
	}
	// headerOffset is where the old header/index/footer tail began;
	// new data blocks overwrite that tail, and a fresh header/index/
	// footer are appended once Close runs again.
	dataStart := int64(headerOffset)
	if err := f.Truncate(dataStart); err != nil {
		f.Close()
		return nil, err
	}
	if _, err := f.Seek(dataStart, io.SeekStart); err != nil {
		f.Close()
		return nil, err
	}

	w := &Writer{
		f:                 f,
		offset:            dataStart,
		header:            *header,
		index:             *index,
		width:             width,
		ctx:               ctx,
		MissingnessCutoff: DefaultMissingnessCutoff,
		metaBuf:           NewBuffer(4096),
		genoBuf:           NewBuffer(4096),
		log:               logrus.WithField("component", "ingest"),
	}
	if n := w.index.Size(); n > 0 {
		last := w.index.At(n - 1)
		w.haveLast = true
		w.lastContigID = last.ContigID
		w.lastPos = last.MaxPosition
	}
	return w, nil
}

// versionLiteral renders a RuntimeContext's Version into the header's
// free-text literals field, later echoed into VCF output as a
// "##twk_version=" meta line (spec §9's RuntimeContext threading).
func versionLiteral(ctx RuntimeContext) string {
	if ctx.Version == "" {
		return ""
	}
	return "##twk_version=" + ctx.Version
}

func (w *Writer) write(p []byte) error {
	n, err := w.f.Write(p)
	w.offset += int64(n)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrIO, err)
	}
	return nil
}

// Ingest consumes every record from src until io.EOF, applying the
// ordering, simplicity, and missingness filters and packing survivors
// into blocks.
func (w *Writer) Ingest(src variantSource) (kept, dropped uint64, err error) {
	for {
		rec, err := src.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return kept, dropped, err
		}
		ok, err := w.ingestOne(rec)
		if err != nil {
			return kept, dropped, err
		}
		if ok {
			kept++
		} else {
			dropped++
		}
	}
	return kept, dropped, nil
}

func (w *Writer) ingestOne(rec *VCFRecord) (bool, error) {
	if len(rec.GTs) != len(w.header.Samples) {
		return false, fmt.Errorf("%w: record has %d genotype calls, file has %d samples", ErrFormat, len(rec.GTs), len(w.header.Samples))
	}
	// Auto-registering rather than rejecting with ErrUnknownContig
	// (spec §4.4 step 2) is a deliberate divergence for textual VCF
	// input, which has no mandatory pre-declared contig dictionary the
	// way BCF's header does; see DESIGN.md's Open Questions.
	contigID, ok := w.header.ContigID(rec.Chrom)
	if !ok {
		contigID = w.header.AddContig(rec.Chrom, 0)
	}

	if w.haveLast {
		switch {
		case contigID == w.lastContigID && rec.Pos < w.lastPos:
			return false, fmt.Errorf("%w: %s:%d precedes %s:%d", ErrPositionNotSorted, rec.Chrom, rec.Pos, rec.Chrom, w.lastPos)
		case contigID == w.lastContigID && rec.Pos == w.lastPos:
			if !w.ctx.Silent {
				w.log.Warnf("dropping duplicate position %s:%d", rec.Chrom, rec.Pos)
			}
			return false, nil
		case contigID < w.lastContigID:
			return false, fmt.Errorf("%w: contig %s out of order", ErrContigNotSorted, rec.Chrom)
		}
	}
	w.haveLast, w.lastContigID, w.lastPos = true, contigID, rec.Pos

	if !rec.Simple {
		return false, nil
	}
	if rec.MissingFraction() > w.MissingnessCutoff {
		if !w.ctx.Silent {
			w.log.Warnf("dropping %s:%d: missingness %.3f above cutoff %.3f", rec.Chrom, rec.Pos, rec.MissingFraction(), w.MissingnessCutoff)
		}
		return false, nil
	}

	if w.haveBlockCoords && contigID != w.blockContig {
		if err := w.flush(); err != nil {
			return false, err
		}
	}

	enc := NewGenotypeEncoder(w.width, NewBuffer(len(rec.GTs)/2+1))
	for _, g := range rec.GTs {
		if err := enc.Add(g); err != nil {
			return false, err
		}
	}
	runs, total, err := enc.Finish()
	if err != nil {
		return false, err
	}
	if int(total) != len(rec.GTs) {
		return false, fmt.Errorf("%w: RLE encoder packed %d of %d samples", ErrInvalidParameter, total, len(rec.GTs))
	}

	maf, hwep := computeMAFAndHWE(rec.GTs)
	controller := CtrlBiallelicSNP
	if rec.Missing > 0 {
		controller |= CtrlMissingPresent
	}
	meta := VariantMeta{Position: rec.Pos, Ref: rec.Ref, Alt: rec.Alt, MAF: maf, HWEP: hwep, Runs: runs, Controller: controller}
	mb, err := meta.marshal()
	if err != nil {
		return false, err
	}

	w.metaBuf.Write(mb[:])
	w.genoBuf.Write(enc.out.Bytes())
	w.nPend++

	if !w.haveBlockCoords {
		w.blockContig, w.blockMin, w.blockMax = contigID, rec.Pos, rec.Pos
		w.haveBlockCoords = true
	} else {
		if rec.Pos < w.blockMin {
			w.blockMin = rec.Pos
		}
		if rec.Pos > w.blockMax {
			w.blockMax = rec.Pos
		}
	}

	if w.metaBuf.Len()+w.genoBuf.Len()+4 >= ingestBlockTarget {
		if err := w.flush(); err != nil {
			return false, err
		}
	}
	return true, nil
}

// flush deflates the pending block, appends it to the file, and
// records its Totempole entry. A no-op when nothing is pending.
func (w *Writer) flush() error {
	if w.nPend == 0 {
		return nil
	}
	raw := NewBuffer(4 + w.metaBuf.Len() + w.genoBuf.Len())
	var n4 [4]byte
	binary.LittleEndian.PutUint32(n4[:], uint32(w.nPend))
	raw.Write(n4[:])
	raw.Write(w.metaBuf.Bytes())
	raw.Write(w.genoBuf.Bytes())

	block, err := Deflate(raw.Bytes())
	if err != nil {
		return err
	}
	start := w.offset
	if err := w.write(block.Bytes()); err != nil {
		return err
	}

	w.index.Append(TotempoleEntry{
		ContigID:         w.blockContig,
		MinPosition:      w.blockMin,
		MaxPosition:      w.blockMax,
		ByteOffset:       uint64(start),
		ByteOffsetEnd:    uint64(w.offset),
		UncompressedSize: uint32(raw.Len()),
		NVariants:        uint32(w.nPend),
	})

	w.metaBuf.Reset()
	w.genoBuf.Reset()
	w.nPend = 0
	w.haveBlockCoords = false
	return nil
}

// Close flushes any pending block, then writes the header, index, and
// footer, completing the file per spec §6's layout.
func (w *Writer) Close() error {
	if err := w.flush(); err != nil {
		w.f.Close()
		return err
	}
	// Header and index are written after the data region -- the
	// contig table isn't final until every record has been seen -- so
	// their offsets are recorded in the footer rather than at a fixed
	// file position (spec §6 footer layout).
	headerOffset := w.offset
	hdrBlock, err := Deflate(marshalHeader(&w.header))
	if err != nil {
		w.f.Close()
		return err
	}
	if err := w.write(hdrBlock.Bytes()); err != nil {
		w.f.Close()
		return err
	}

	indexOffset := w.offset
	idxBlock, err := Deflate(marshalIndex(&w.index))
	if err != nil {
		w.f.Close()
		return err
	}
	if err := w.write(idxBlock.Bytes()); err != nil {
		w.f.Close()
		return err
	}
	if err := w.write(EOFBlock()); err != nil {
		w.f.Close()
		return err
	}
	if err := writeFooter(w.f, uint64(headerOffset), uint64(indexOffset)); err != nil {
		w.f.Close()
		return err
	}
	w.offset += footerSize
	return w.f.Close()
}

// computeMAFAndHWE derives a variant's minor allele frequency and its
// Hardy-Weinberg-equilibrium exact-ish chi-square p-value from its
// called genotypes, grounded on the chi-square goodness-of-fit kernel
// the teacher's (now removed) chisquare.go implemented by hand; here
// the test statistic itself is computed directly and its p-value comes
// from gonum's chi-squared distribution (spec's "LD statistics" family,
// SPEC_FULL.md §3).
func computeMAFAndHWE(gts []Genotype) (maf float32, hwep float32) {
	var nAA, nAa, naa int
	for _, g := range gts {
		if g.A == AlleleMissing || g.B == AlleleMissing {
			continue
		}
		switch {
		case g.A == AlleleRef && g.B == AlleleRef:
			nAA++
		case g.A == AlleleAlt && g.B == AlleleAlt:
			naa++
		default:
			nAa++
		}
	}
	nCalled := nAA + nAa + naa
	if nCalled == 0 {
		return 0, 1
	}
	n := float64(nCalled)
	nRef := float64(2*nAA + nAa)
	nAlt := float64(2*naa + nAa)
	p := nRef / (nRef + nAlt)
	q := nAlt / (nRef + nAlt)
	minor := p
	if q < p {
		minor = q
	}

	eAA, eAa, eaa := p*p*n, 2*p*q*n, q*q*n
	chisq := chiSqTerm(float64(nAA), eAA) + chiSqTerm(float64(nAa), eAa) + chiSqTerm(float64(naa), eaa)
	dist := distuv.ChiSquared{K: 1}
	pval := 1 - dist.CDF(chisq)
	if math.IsNaN(pval) {
		pval = 1
	}
	return float32(minor), float32(pval)
}

func chiSqTerm(obs, exp float64) float64 {
	if exp == 0 {
		return 0
	}
	d := obs - exp
	return d * d / exp
}
