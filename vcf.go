// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package twk

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// MinVCFSamples is the smallest sample count ingest will accept (spec
// §4.4: "a VCF header declaring fewer than two samples is rejected").
const MinVCFSamples = 2

// VCFHeader is the textual preamble of a VCF stream: its meta-
// information lines verbatim, plus the sample names parsed off the
// #CHROM line.
type VCFHeader struct {
	Meta    []string
	Samples []string
}

// VCFRecord is one parsed, filtered data line.
type VCFRecord struct {
	Chrom   string
	Pos     uint32
	Ref     byte
	Alt     byte
	Simple  bool // true iff Ref/Alt are both single {A,C,G,T} bases
	GTs     []Genotype
	Missing int // count of samples with a missing allele call
}

// MissingFraction returns Missing as a fraction of len(GTs).
func (r *VCFRecord) MissingFraction() float64 {
	if len(r.GTs) == 0 {
		return 0
	}
	return float64(r.Missing) / float64(len(r.GTs))
}

// VCFReader scans a textual VCF stream line by line, enforcing the
// contig/position ordering invariant as it goes (spec §4.4).
type VCFReader struct {
	sc         *bufio.Scanner
	Header     VCFHeader
	gtFieldIdx int

	haveLast   bool
	lastChrom  string
	lastPos    uint32
	seenChroms map[string]bool
}

// NewVCFReader consumes the header block (meta lines and #CHROM line)
// and returns a reader positioned at the first data line.
func NewVCFReader(r io.Reader) (*VCFReader, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	vr := &VCFReader{sc: sc, seenChroms: make(map[string]bool)}
	for sc.Scan() {
		line := sc.Text()
		switch {
		case strings.HasPrefix(line, "##"):
			vr.Header.Meta = append(vr.Header.Meta, line)
		case strings.HasPrefix(line, "#CHROM"):
			cols := strings.Split(line, "\t")
			if len(cols) <= 9 {
				vr.Header.Samples = nil
			} else {
				vr.Header.Samples = cols[9:]
			}
			if len(vr.Header.Samples) < MinVCFSamples {
				return nil, fmt.Errorf("%w: VCF declares %d samples, need at least %d", ErrFormat, len(vr.Header.Samples), MinVCFSamples)
			}
			return vr, nil
		default:
			return nil, fmt.Errorf("%w: unexpected line before #CHROM: %q", ErrFormat, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("%w: VCF stream has no #CHROM header line", ErrFormat)
}

// Next parses and returns the next data line, or io.EOF once the
// stream is exhausted. It enforces that CHROM/POS never regress
// within a contig and that a contig, once left, is never revisited
// (spec §4.4 ordering invariant).
func (vr *VCFReader) Next() (*VCFRecord, error) {
	if !vr.sc.Scan() {
		if err := vr.sc.Err(); err != nil {
			return nil, err
		}
		return nil, io.EOF
	}
	line := vr.sc.Text()
	if line == "" {
		return vr.Next()
	}
	cols := strings.Split(line, "\t")
	if len(cols) < 9+len(vr.Header.Samples) {
		return nil, fmt.Errorf("%w: data line has %d columns, want >= %d", ErrFormat, len(cols), 9+len(vr.Header.Samples))
	}

	pos64, err := strconv.ParseUint(cols[1], 10, 32)
	if err != nil {
		return nil, fmt.Errorf("%w: bad POS %q: %s", ErrFormat, cols[1], err)
	}
	pos := uint32(pos64)
	chrom := cols[0]

	if vr.haveLast {
		switch {
		case chrom == vr.lastChrom && pos < vr.lastPos:
			return nil, fmt.Errorf("%w: %s:%d precedes %s:%d", ErrPositionNotSorted, chrom, pos, vr.lastChrom, vr.lastPos)
		case chrom != vr.lastChrom && vr.seenContig(chrom):
			return nil, fmt.Errorf("%w: contig %s revisited after %s", ErrContigNotSorted, chrom, vr.lastChrom)
		}
	}
	vr.haveLast, vr.lastChrom, vr.lastPos = true, chrom, pos
	vr.seenChroms[chrom] = true

	rec := &VCFRecord{Chrom: chrom, Pos: pos}
	refField, altField := cols[3], cols[4]
	if len(refField) == 1 && len(altField) == 1 {
		if _, ok := baseCode(refField[0]); ok {
			if _, ok := baseCode(altField[0]); ok {
				rec.Simple = true
				rec.Ref, rec.Alt = refField[0], altField[0]
			}
		}
	}

	format := strings.Split(cols[8], ":")
	gtIdx := -1
	for i, k := range format {
		if k == "GT" {
			gtIdx = i
			break
		}
	}
	if gtIdx < 0 {
		return nil, fmt.Errorf("%w: FORMAT column has no GT subfield", ErrFormat)
	}

	samples := cols[9:]
	rec.GTs = make([]Genotype, len(samples))
	for i, s := range samples {
		sub := strings.Split(s, ":")
		if gtIdx >= len(sub) {
			return nil, fmt.Errorf("%w: sample %d missing GT subfield", ErrFormat, i)
		}
		g, missing, err := parseGT(sub[gtIdx])
		if err != nil {
			return nil, err
		}
		rec.GTs[i] = g
		if missing {
			rec.Missing++
		}
	}
	return rec, nil
}

// seenContig reports whether chrom has already appeared as the active
// contig at some earlier point in the stream, catching the case where
// a contig is left and then revisited (spec §4.4 ordering invariant).
func (vr *VCFReader) seenContig(chrom string) bool { return vr.seenChroms[chrom] }

func parseGT(s string) (Genotype, bool, error) {
	sep := byte('/')
	if strings.ContainsRune(s, '|') {
		sep = '|'
	}
	parts := strings.SplitN(s, string(sep), 2)
	if len(parts) != 2 {
		// haploid call (e.g. chrY, chrM): treat the second allele as a
		// repeat of the first.
		parts = []string{s, s}
	}
	a, missingA, err := parseAllele(parts[0])
	if err != nil {
		return Genotype{}, false, err
	}
	b, missingB, err := parseAllele(parts[1])
	if err != nil {
		return Genotype{}, false, err
	}
	return Genotype{A: a, B: b, Phase: sep == '|'}, missingA || missingB, nil
}

func parseAllele(s string) (uint8, bool, error) {
	if s == "." {
		return AlleleMissing, true, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false, fmt.Errorf("%w: bad allele %q", ErrFormat, s)
	}
	switch n {
	case 0:
		return AlleleRef, false, nil
	case 1:
		return AlleleAlt, false, nil
	default:
		// Multi-allelic call collapsed to alt; the caller's Simple flag
		// (single-character REF/ALT) is what actually governs whether
		// this variant is ingested at all.
		return AlleleAlt, false, nil
	}
}
