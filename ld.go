// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package twk

import (
	"fmt"
	"math"
	"os"

	"gonum.org/v1/gonum/stat/distuv"
)

// allowedRoundingError bounds how far a float parameter may stray
// outside its nominal [0,1] range before Validate rejects it, porting
// TomahawkCalcParameters::Validate's tolerance for floating-point
// round-trip error in user-supplied thresholds.
const allowedRoundingError = 0.001

// CalcParameters governs the pairwise LD calculation: statistic
// thresholds below which a pair is not emitted, and the chunking
// scheme for splitting one calculation across cooperating processes
// (SPEC_FULL.md §5, ported from TomahawkCalcParameters).
type CalcParameters struct {
	MinR2, MaxR2 float64
	MinP, MaxP   float64
	MinAlleles   int
	MaxAlleles   int

	// Chunks/Chunk shard the (i,j) variant-pair space across Chunks
	// cooperating processes; this process computes only pairs whose
	// shard index equals Chunk (spec supplement: chunked distributed
	// calc, SPEC_FULL.md §5).
	Chunks int
	Chunk  int
}

// DefaultCalcParameters returns the permissive defaults: every pair is
// emitted.
func DefaultCalcParameters() CalcParameters {
	return CalcParameters{MinR2: 0, MaxR2: 1, MinP: 0, MaxP: 1, MinAlleles: 2, MaxAlleles: 2, Chunks: 1, Chunk: 0}
}

// Validate checks parameter consistency, a direct port of
// TomahawkCalcParameters::Validate's bound and ordering checks.
func (p CalcParameters) Validate() error {
	inRange := func(v float64) bool { return v >= 0-allowedRoundingError && v <= 1+allowedRoundingError }
	switch {
	case !inRange(p.MinR2) || !inRange(p.MaxR2):
		return fmt.Errorf("%w: R2 bounds must lie in [0,1]", ErrInvalidParameter)
	case p.MinR2 > p.MaxR2+allowedRoundingError:
		return fmt.Errorf("%w: minimum R2 exceeds maximum R2", ErrInvalidParameter)
	case !inRange(p.MinP) || !inRange(p.MaxP):
		return fmt.Errorf("%w: P bounds must lie in [0,1]", ErrInvalidParameter)
	case p.MinP > p.MaxP+allowedRoundingError:
		return fmt.Errorf("%w: minimum P exceeds maximum P", ErrInvalidParameter)
	case p.MinAlleles < 2:
		return fmt.Errorf("%w: minimum alleles must be at least 2", ErrInvalidParameter)
	case p.MaxAlleles < p.MinAlleles:
		return fmt.Errorf("%w: maximum alleles below minimum alleles", ErrInvalidParameter)
	case p.Chunks < 1:
		return fmt.Errorf("%w: chunks must be at least 1", ErrInvalidParameter)
	case p.Chunk < 0 || p.Chunk >= p.Chunks:
		return fmt.Errorf("%w: chunk %d out of range for %d chunks", ErrInvalidParameter, p.Chunk, p.Chunks)
	}
	return nil
}

// ShouldCompute reports whether the (i,j) variant-pair index belongs
// to this process's shard, implementing the -chunks/-chunk split
// (SPEC_FULL.md §5). Pairs are sharded by a simple round-robin over a
// linearized pair index so each shard's work stays balanced without
// needing the total pair count up front.
func (p CalcParameters) ShouldCompute(pairIndex int) bool {
	if p.Chunks <= 1 {
		return true
	}
	return pairIndex%p.Chunks == p.Chunk
}

// ComputePairStats computes the pairwise LD statistics between two
// variants' genotype calls using allele-dosage correlation: r2 is the
// squared Pearson correlation of {0,1,2} alt-allele dosage across
// samples called in both variants (pairwise deletion of samples
// missing in either), chi-squared is derived from r2 via the standard
// n*r2 relation for a 1-degree-of-freedom association test, and its
// p-value comes from gonum's chi-squared distribution. D' is reported
// as |r|: a simplification documented as an Open Question resolution
// (a full expectation-maximization haplotype-frequency estimate, as
// the original C++ implementation performs, is out of scope here).
func ComputePairStats(a, b []Genotype) (LDRecord, error) {
	if len(a) != len(b) {
		return LDRecord{}, fmt.Errorf("%w: genotype vectors have different sample counts", ErrInvalidParameter)
	}
	var sumA, sumB, sumAB, sumA2, sumB2 float64
	var n int
	for i := range a {
		da, ok1 := dosage(a[i])
		db, ok2 := dosage(b[i])
		if !ok1 || !ok2 {
			continue
		}
		fa, fb := float64(da), float64(db)
		sumA += fa
		sumB += fb
		sumAB += fa * fb
		sumA2 += fa * fa
		sumB2 += fb * fb
		n++
	}
	if n == 0 {
		return LDRecord{}, nil
	}
	nf := float64(n)
	covar := sumAB/nf - (sumA/nf)*(sumB/nf)
	varA := sumA2/nf - (sumA/nf)*(sumA/nf)
	varB := sumB2/nf - (sumB/nf)*(sumB/nf)
	var r float64
	if varA > 0 && varB > 0 {
		r = covar / math.Sqrt(varA*varB)
	}
	r2 := r * r
	chisq := r2 * nf
	dist := distuv.ChiSquared{K: 1}
	pval := 1 - dist.CDF(chisq)
	if math.IsNaN(pval) {
		pval = 1
	}
	return LDRecord{R2: float32(r2), DPrime: float32(math.Abs(r)), ChiSquared: float32(chisq), PValue: float32(pval)}, nil
}

func dosage(g Genotype) (int, bool) {
	if g.A == AlleleMissing || g.B == AlleleMissing {
		return 0, false
	}
	d := 0
	if g.A == AlleleAlt {
		d++
	}
	if g.B == AlleleAlt {
		d++
	}
	return d, true
}

// --- LD output container -------------------------------------------
//
// The calc phase's output is, like the genotype store, a sequence of
// TGZF blocks followed by a Totempole index and footer (spec §6); the
// blocks here simply hold concatenated fixed-size LDRecord entries
// rather than meta+genotype pairs, so Totempole's ContigID/MinPosition
// /MaxPosition fields are reused to describe each block's left-hand
// variant coordinate range and NVariants is reused as a record count.

// ldRecordsPerBlock caps how many 32-byte records accumulate before a
// block is flushed, keeping blocks comfortably under MaxBlockSize.
const ldRecordsPerBlock = 1800

// LDWriter appends LDRecord entries to a TGZF/Totempole container.
type LDWriter struct {
	f      *os.File
	offset int64
	index  Index
	pend   []LDRecord
}

// CreateLDFile starts a new LD-output file.
func CreateLDFile(path string) (*LDWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrIO, err)
	}
	if _, err := f.Write(FileMagic[:]); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrIO, err)
	}
	return &LDWriter{f: f, offset: int64(len(FileMagic))}, nil
}

func (w *LDWriter) write(p []byte) error {
	n, err := w.f.Write(p)
	w.offset += int64(n)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrIO, err)
	}
	return nil
}

// Add appends one record, flushing the pending block once it reaches
// capacity.
func (w *LDWriter) Add(r LDRecord) error {
	w.pend = append(w.pend, r)
	if len(w.pend) >= ldRecordsPerBlock {
		return w.flush()
	}
	return nil
}

func (w *LDWriter) flush() error {
	if len(w.pend) == 0 {
		return nil
	}
	raw := make([]byte, 0, len(w.pend)*ldRecordSize)
	minPos, maxPos := w.pend[0].PosA, w.pend[0].PosA
	for _, r := range w.pend {
		b := r.Marshal()
		raw = append(raw, b[:]...)
		if r.PosA < minPos {
			minPos = r.PosA
		}
		if r.PosA > maxPos {
			maxPos = r.PosA
		}
	}
	block, err := Deflate(raw)
	if err != nil {
		return err
	}
	start := w.offset
	if err := w.write(block.Bytes()); err != nil {
		return err
	}
	w.index.Append(TotempoleEntry{
		ContigID:         w.pend[0].ContigA,
		MinPosition:      minPos,
		MaxPosition:      maxPos,
		ByteOffset:       uint64(start),
		ByteOffsetEnd:    uint64(w.offset),
		UncompressedSize: uint32(len(raw)),
		NVariants:        uint32(len(w.pend)),
	})
	w.pend = w.pend[:0]
	return nil
}

// Close flushes any pending records and writes the index and footer.
func (w *LDWriter) Close() error {
	if err := w.flush(); err != nil {
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
	// LD-output files have no separate header block; headerOffset is
	// recorded equal to indexOffset so the two-offset footer format
	// stays shared with the genotype store's reader helpers.
	if err := writeFooter(w.f, uint64(indexOffset), uint64(indexOffset)); err != nil {
		w.f.Close()
		return err
	}
	w.offset += footerSize
	return w.f.Close()
}

// LDFile is a read handle over an LD-output container's index,
// shared (read-only) by sort.go and merge.go.
type LDFile struct {
	path  string
	Index *Index
	size  int64
}

// OpenLDFile loads just the footer and index; record data is read on
// demand via OpenReadHandle, since sort/merge each want their own
// independent file descriptor for concurrent access.
func OpenLDFile(path string) (*LDFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrIO, err)
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}
	_, indexOffset, err := readFooterAt(f, fi.Size())
	if err != nil {
		return nil, err
	}
	idxStream, err := NewBlockStream(f, int64(indexOffset), fi.Size()-footerSize)
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
	return &LDFile{path: path, Index: index, size: fi.Size()}, nil
}

// OpenReadHandle opens an independent *os.File positioned at the
// start of the file (the file magic, not the first data block), for a
// single sequential or random-access reader.
func (lf *LDFile) OpenReadHandle() (*os.File, error) {
	f, err := os.Open(lf.path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrIO, err)
	}
	return f, nil
}

// variantRecord is one variant's coordinate and expanded per-sample
// genotype calls, gathered from a genotype-store Reader for the calc
// engine below.
type variantRecord struct {
	Contig    uint32
	Pos       uint32
	Genotypes []Genotype
}

func collectVariants(rd *Reader) ([]variantRecord, error) {
	var out []variantRecord
	for _, blockID := range rd.Blocks() {
		blk, err := rd.ReadBlock(blockID)
		if err != nil {
			return nil, err
		}
		entry := rd.Index.At(blockID)
		for i, m := range blk.Metas {
			out = append(out, variantRecord{
				Contig:    entry.ContigID,
				Pos:       m.Position,
				Genotypes: blk.Genotypes(i).Expand(),
			})
		}
	}
	return out, nil
}

// RunCalc computes pairwise LD statistics across every variant pair in
// rd's genotype store, subject to params' thresholds and chunk
// sharding, writing surviving pairs to out (spec §4.7's upstream
// producer, the "calc" subcommand in SPEC_FULL.md §4).
func RunCalc(rd *Reader, params CalcParameters, out *LDWriter) (pairsEmitted uint64, err error) {
	if err := params.Validate(); err != nil {
		return 0, err
	}
	variants, err := collectVariants(rd)
	if err != nil {
		return 0, err
	}

	pairIndex := 0
	for i := 0; i < len(variants); i++ {
		for j := i + 1; j < len(variants); j++ {
			idx := pairIndex
			pairIndex++
			if !params.ShouldCompute(idx) {
				continue
			}
			stats, err := ComputePairStats(variants[i].Genotypes, variants[j].Genotypes)
			if err != nil {
				return pairsEmitted, err
			}
			if float64(stats.R2) < params.MinR2 || float64(stats.R2) > params.MaxR2 {
				continue
			}
			if float64(stats.PValue) < params.MinP || float64(stats.PValue) > params.MaxP {
				continue
			}
			stats.ContigA, stats.PosA = variants[i].Contig, variants[i].Pos
			stats.ContigB, stats.PosB = variants[j].Contig, variants[j].Pos
			if err := out.Add(stats); err != nil {
				return pairsEmitted, err
			}
			pairsEmitted++
		}
	}
	return pairsEmitted, nil
}

// ReadBlockRecords decompresses a single block's 32-byte records via
// an already-open handle.
func ReadBlockRecords(f *os.File, entry TotempoleEntry) ([]LDRecord, error) {
	span := entry.ByteOffsetEnd - entry.ByteOffset
	raw := make([]byte, span)
	if _, err := f.ReadAt(raw, int64(entry.ByteOffset)); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrIO, err)
	}
	payload := NewBuffer(int(entry.UncompressedSize))
	if _, err := Inflate(raw, payload); err != nil {
		return nil, err
	}
	body := payload.Bytes()
	n := len(body) / ldRecordSize
	out := make([]LDRecord, n)
	for i := 0; i < n; i++ {
		out[i] = UnmarshalLDRecord(body[i*ldRecordSize : (i+1)*ldRecordSize])
	}
	return out, nil
}
