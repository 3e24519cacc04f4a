// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package twk

import (
	"bytes"
	"encoding/binary"

	"gopkg.in/check.v1"
)

type bcfSuite struct{}

var _ = check.Suite(&bcfSuite{})

// buildBCFStream hand-assembles a minimal, valid BCF 2.2 byte stream
// (magic, text header, one record with a GT FORMAT field) wrapped in a
// single TGZF/BGZF block followed by the canonical EOF marker, so the
// decoder can be exercised without a real bcftools-produced fixture.
func buildBCFStream(c *check.C) []byte {
	header := "##fileformat=VCFv4.2\n" +
		"##contig=<ID=chr1,length=1000>\n" +
		"##FORMAT=<ID=GT,Number=1,Type=String,Description=\"Genotype\">\n" +
		"#CHROM\tPOS\tID\tREF\tALT\tQUAL\tFILTER\tINFO\tFORMAT\ts1\ts2\n"

	var shared bytes.Buffer
	putU32 := func(v uint32) { var b [4]byte; binary.LittleEndian.PutUint32(b[:], v); shared.Write(b[:]) }
	putU32(0)                  // chrom index
	putU32(uint32(int32(99)))  // pos0 (0-based) -> Pos == 100
	putU32(1)                  // rlen, unused
	putU32(0)                  // qual, unused
	putU32(uint32(2)<<16 | 0)  // n_allele << 16 | n_info
	putU32(uint32(1)<<24 | 2)  // n_fmt << 24 | n_sample
	shared.WriteByte(0x07)     // variant ID: typed string, count 0
	shared.WriteByte(0x17)     // allele 0: typed string, count 1
	shared.WriteByte('A')
	shared.WriteByte(0x17) // allele 1: typed string, count 1
	shared.WriteByte('G')
	shared.WriteByte(0x00) // FILTER: count 0

	var indiv bytes.Buffer
	indiv.WriteByte(0x11) // FORMAT key: type int8, count 1
	indiv.WriteByte(0)    // key id 0 == "GT" (first and only FORMAT line)
	indiv.WriteByte(0x21) // FORMAT value: type int8, count 2
	// sample s1 = 0/1, sample s2 = 1/1, unphased BCF-encoded as (allele+1)<<1.
	indiv.Write([]byte{2, 4, 4, 4})

	var body bytes.Buffer
	body.Write(bcfMagic[:])
	var lText [4]byte
	binary.LittleEndian.PutUint32(lText[:], uint32(len(header)))
	body.Write(lText[:])
	body.WriteString(header)

	var recLen [8]byte
	binary.LittleEndian.PutUint32(recLen[0:4], uint32(shared.Len()))
	binary.LittleEndian.PutUint32(recLen[4:8], uint32(indiv.Len()))
	body.Write(recLen[:])
	body.Write(shared.Bytes())
	body.Write(indiv.Bytes())

	block, err := Deflate(body.Bytes())
	c.Assert(err, check.IsNil)

	var out bytes.Buffer
	out.Write(block.Bytes())
	out.Write(EOFBlock())
	return out.Bytes()
}

func (s *bcfSuite) TestBCFReaderDecodesOneRecord(c *check.C) {
	br, err := NewBCFReader(bytes.NewReader(buildBCFStream(c)))
	c.Assert(err, check.IsNil)
	c.Check(br.Header.Samples, check.DeepEquals, []string{"s1", "s2"})
	c.Check(br.Contigs, check.DeepEquals, []string{"chr1"})

	rec, err := br.Next()
	c.Assert(err, check.IsNil)
	c.Check(rec.Chrom, check.Equals, "chr1")
	c.Check(rec.Pos, check.Equals, uint32(100))
	c.Check(rec.Simple, check.Equals, true)
	c.Check(rec.Ref, check.Equals, byte('A'))
	c.Check(rec.Alt, check.Equals, byte('G'))
	c.Check(rec.GTs, check.DeepEquals, []Genotype{
		{A: AlleleRef, B: AlleleAlt},
		{A: AlleleAlt, B: AlleleAlt},
	})
	c.Check(rec.Missing, check.Equals, 0)

	_, err = br.Next()
	c.Check(err, check.NotNil) // EOF marker consumed; no second record
}

func (s *bcfSuite) TestBCFReaderRejectsBadMagic(c *check.C) {
	// A stream whose decompressed bytes don't start with "BCF\x02\x02"
	// must be rejected before any record decoding is attempted.
	garbage, err := Deflate([]byte("NOTBCF!!"))
	c.Assert(err, check.IsNil)
	var buf bytes.Buffer
	buf.Write(garbage.Bytes())
	buf.Write(EOFBlock())
	_, err = NewBCFReader(bytes.NewReader(buf.Bytes()))
	c.Check(err, check.NotNil)
}
