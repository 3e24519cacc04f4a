// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package twk

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Controller bits for a VariantMeta entry (spec §3).
const (
	CtrlPhased         uint8 = 1 << 0
	CtrlBiallelicSNP   uint8 = 1 << 1
	CtrlMissingPresent uint8 = 1 << 2
)

// metaEntrySize is the fixed on-disk size of a VariantMeta: u32 + u8 +
// u8 + f32 + f32 + u32 + u8 (spec §3).
const metaEntrySize = 4 + 1 + 1 + 4 + 4 + 4 + 1

// baseCode maps {A,C,G,T} to the 2-bit code used on disk; simple
// variants (spec's "Simple variant" definition) are restricted to
// these four bases.
func baseCode(b byte) (uint8, bool) {
	switch b {
	case 'A':
		return 0, true
	case 'C':
		return 1, true
	case 'G':
		return 2, true
	case 'T':
		return 3, true
	}
	return 0, false
}

func codeBase(c uint8) byte {
	return "ACGT"[c&3]
}

// VariantMeta is one variant's entry in a block's meta stream (spec
// §3). Ref/Alt are kept as their original base letters; only the low
// two bits of each on-disk byte are meaningful, the remaining bits are
// reserved (spec: "ref: u8 (2 bits packed + flags)").
type VariantMeta struct {
	Position   uint32
	Ref        byte
	Alt        byte
	MAF        float32
	HWEP       float32
	Runs       uint32
	Controller uint8
}

func (m VariantMeta) marshal() ([metaEntrySize]byte, error) {
	var b [metaEntrySize]byte
	refCode, ok := baseCode(m.Ref)
	if !ok {
		return b, fmt.Errorf("%w: non-simple ref base %q", ErrInvalidParameter, m.Ref)
	}
	altCode, ok := baseCode(m.Alt)
	if !ok {
		return b, fmt.Errorf("%w: non-simple alt base %q", ErrInvalidParameter, m.Alt)
	}
	binary.LittleEndian.PutUint32(b[0:4], m.Position)
	b[4] = refCode
	b[5] = altCode
	binary.LittleEndian.PutUint32(b[6:10], math.Float32bits(m.MAF))
	binary.LittleEndian.PutUint32(b[10:14], math.Float32bits(m.HWEP))
	binary.LittleEndian.PutUint32(b[14:18], m.Runs)
	b[18] = m.Controller
	return b, nil
}

func unmarshalVariantMeta(b []byte) VariantMeta {
	return VariantMeta{
		Position:   binary.LittleEndian.Uint32(b[0:4]),
		Ref:        codeBase(b[4]),
		Alt:        codeBase(b[5]),
		MAF:        math.Float32frombits(binary.LittleEndian.Uint32(b[6:10])),
		HWEP:       math.Float32frombits(binary.LittleEndian.Uint32(b[10:14])),
		Runs:       binary.LittleEndian.Uint32(b[14:18]),
		Controller: b[18],
	}
}

// ldRecordSize is the fixed on-disk size of an LDRecord (spec §4.7:
// "two variant coordinates + computed statistics, 32 bytes").
const ldRecordSize = 32

// LDRecord is the record type the external sort and merge phases
// operate on: a pair of variant coordinates plus their computed LD
// statistics.
type LDRecord struct {
	ContigA, PosA uint32
	ContigB, PosB uint32
	R2            float32
	DPrime        float32
	ChiSquared    float32
	PValue        float32
}

func (r LDRecord) Marshal() [ldRecordSize]byte {
	var b [ldRecordSize]byte
	binary.LittleEndian.PutUint32(b[0:4], r.ContigA)
	binary.LittleEndian.PutUint32(b[4:8], r.PosA)
	binary.LittleEndian.PutUint32(b[8:12], r.ContigB)
	binary.LittleEndian.PutUint32(b[12:16], r.PosB)
	binary.LittleEndian.PutUint32(b[16:20], math.Float32bits(r.R2))
	binary.LittleEndian.PutUint32(b[20:24], math.Float32bits(r.DPrime))
	binary.LittleEndian.PutUint32(b[24:28], math.Float32bits(r.ChiSquared))
	binary.LittleEndian.PutUint32(b[28:32], math.Float32bits(r.PValue))
	return b
}

func UnmarshalLDRecord(b []byte) LDRecord {
	return LDRecord{
		ContigA:    binary.LittleEndian.Uint32(b[0:4]),
		PosA:       binary.LittleEndian.Uint32(b[4:8]),
		ContigB:    binary.LittleEndian.Uint32(b[8:12]),
		PosB:       binary.LittleEndian.Uint32(b[12:16]),
		R2:         math.Float32frombits(binary.LittleEndian.Uint32(b[16:20])),
		DPrime:     math.Float32frombits(binary.LittleEndian.Uint32(b[20:24])),
		ChiSquared: math.Float32frombits(binary.LittleEndian.Uint32(b[24:28])),
		PValue:     math.Float32frombits(binary.LittleEndian.Uint32(b[28:32])),
	}
}

// CompareLDRecords implements the record's total order (spec §4.7):
// contig-major, then left-coordinate position, then right-coordinate
// contig and position. It is total and deterministic -- never compare
// by address (design note, spec §9) -- and is exposed as a plain
// function so the merge phase's priority queue can take it as a value
// rather than close over package state.
func CompareLDRecords(a, b LDRecord) int {
	switch {
	case a.ContigA != b.ContigA:
		return cmpU32(a.ContigA, b.ContigA)
	case a.PosA != b.PosA:
		return cmpU32(a.PosA, b.PosA)
	case a.ContigB != b.ContigB:
		return cmpU32(a.ContigB, b.ContigB)
	default:
		return cmpU32(a.PosB, b.PosB)
	}
}

func cmpU32(a, b uint32) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
