// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package twk

import (
	"encoding/binary"
	"fmt"
)

// Width is the machine word size chosen for a file's RLE run words
// (spec §3, §4.5): the smallest of {8,16,32,64} bits whose run-length
// field (width-5 bits) can represent the sample count. This replaces
// the C++ original's compile-time template dispatch with a runtime
// tagged value, per the design note in spec §9 ("Polymorphism over
// RLE word-width").
type Width uint8

const (
	W8  Width = 8
	W16 Width = 16
	W32 Width = 32
	W64 Width = 64
)

func (w Width) Bytes() int { return int(w) / 8 }

// runLengthBits returns the number of bits available for the run
// length field at this width: 2 (allele A) + 2 (allele B) + 1 (phase)
// are fixed, the rest is run length.
func (w Width) runLengthBits() uint { return uint(w) - 5 }

func (w Width) maxRunLength() uint64 { return uint64(1)<<w.runLengthBits() - 1 }

// SelectWidth picks the smallest width able to represent a run
// spanning all n samples (spec §4.5, §8 "Width minimality").
func SelectWidth(n uint64) (Width, error) {
	for _, w := range []Width{W8, W16, W32, W64} {
		if n <= w.maxRunLength() {
			return w, nil
		}
	}
	return 0, fmt.Errorf("%w: %d samples exceeds the largest representable run length", ErrInvalidParameter, n)
}

// Allele codes packed into a run word (spec §3).
const (
	AlleleRef     uint8 = 0
	AlleleAlt     uint8 = 1
	AlleleMissing uint8 = 2
)

// Genotype is one sample's packed triplet: two allele calls and a
// phase bit.
type Genotype struct {
	A, B  uint8
	Phase bool
}

func (g Genotype) equal(o Genotype) bool { return g.A == o.A && g.B == o.B && g.Phase == o.Phase }

// RunWord is the decoded form of one machine word from the genotype
// stream: a genotype triplet plus the number of consecutive samples
// it covers.
type RunWord struct {
	Genotype
	RunLength uint64
}

func packWord(w Width, g Genotype, runLength uint64) []byte {
	var bits uint64
	if g.Phase {
		bits |= 1
	}
	bits |= uint64(g.B) << 1
	bits |= uint64(g.A) << 3
	bits |= runLength << 5

	buf := make([]byte, w.Bytes())
	switch w {
	case W8:
		buf[0] = byte(bits)
	case W16:
		binary.LittleEndian.PutUint16(buf, uint16(bits))
	case W32:
		binary.LittleEndian.PutUint32(buf, uint32(bits))
	case W64:
		binary.LittleEndian.PutUint64(buf, bits)
	}
	return buf
}

func unpackWord(w Width, raw []byte) RunWord {
	var bits uint64
	switch w {
	case W8:
		bits = uint64(raw[0])
	case W16:
		bits = uint64(binary.LittleEndian.Uint16(raw))
	case W32:
		bits = uint64(binary.LittleEndian.Uint32(raw))
	case W64:
		bits = binary.LittleEndian.Uint64(raw)
	}
	return RunWord{
		Genotype: Genotype{
			Phase: bits&1 != 0,
			B:     uint8((bits >> 1) & 3),
			A:     uint8((bits >> 3) & 3),
		},
		RunLength: bits >> 5,
	}
}

// GenotypeEncoder packs one variant's per-sample genotypes into RLE
// run words, extending the current run while consecutive samples
// match and emitting a new word on every mismatch (spec §4.4 step 6).
type GenotypeEncoder struct {
	width   Width
	out     *Buffer
	started bool
	cur     Genotype
	curLen  uint64
	runs    uint32
	total   uint64
}

func NewGenotypeEncoder(width Width, out *Buffer) *GenotypeEncoder {
	return &GenotypeEncoder{width: width, out: out}
}

// Add extends the current run or starts a new one with g.
func (e *GenotypeEncoder) Add(g Genotype) error {
	e.total++
	if !e.started {
		e.started = true
		e.cur, e.curLen = g, 1
		return nil
	}
	if g.equal(e.cur) {
		e.curLen++
		return nil
	}
	if err := e.flushRun(); err != nil {
		return err
	}
	e.cur, e.curLen = g, 1
	return nil
}

func (e *GenotypeEncoder) flushRun() error {
	if e.curLen > e.width.maxRunLength() {
		return fmt.Errorf("%w: run length %d exceeds width %d capacity", ErrInvalidParameter, e.curLen, e.width)
	}
	e.out.Write(packWord(e.width, e.cur, e.curLen))
	e.runs++
	return nil
}

// Finish flushes the final pending run and returns the number of runs
// emitted and the total number of samples packed (the invariant
// requires total == n_samples, spec §8 "RLE completeness").
func (e *GenotypeEncoder) Finish() (runs uint32, total uint64, err error) {
	if e.started {
		if err = e.flushRun(); err != nil {
			return 0, 0, err
		}
	}
	return e.runs, e.total, nil
}

// GenotypeView is a read-only, typed view over a variant's run words
// within a decoded genotype stream buffer, dispatching on the file's
// width at access time (spec §4.6).
type GenotypeView struct {
	width Width
	raw   []byte
}

func NewGenotypeView(width Width, raw []byte) GenotypeView {
	return GenotypeView{width: width, raw: raw}
}

// NumRuns returns how many run words this view holds.
func (v GenotypeView) NumRuns() int { return len(v.raw) / v.width.Bytes() }

// Run decodes the i'th run word.
func (v GenotypeView) Run(i int) RunWord {
	n := v.width.Bytes()
	return unpackWord(v.width, v.raw[i*n:(i+1)*n])
}

// Expand materializes the per-sample genotype sequence this view
// encodes, for consumers (e.g. VCF re-emission) that need per-sample
// values rather than runs.
func (v GenotypeView) Expand() []Genotype {
	var out []Genotype
	for i := 0; i < v.NumRuns(); i++ {
		r := v.Run(i)
		for j := uint64(0); j < r.RunLength; j++ {
			out = append(out, r.Genotype)
		}
	}
	return out
}
