// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package twk

import (
	"strings"

	"gopkg.in/check.v1"
)

type ingestSuite struct{}

var _ = check.Suite(&ingestSuite{})

const testVCF = `##fileformat=VCFv4.2
##contig=<ID=chr1,length=1000000>
#CHROM	POS	ID	REF	ALT	QUAL	FILTER	INFO	FORMAT	s1	s2	s3
chr1	100	.	A	G	.	.	.	GT	0/0	0/1	1/1
chr1	200	.	C	T	.	.	.	GT	0/0	0/0	0/1
chr1	200	.	G	A	.	.	.	GT	0/0	0/0	0/0
chr1	300	.	A	T	.	.	.	GT	./.	./.	./.
chr1	400	.	A	GG	.	.	.	GT	0/0	0/1	1/1
`

func (s *ingestSuite) ingestFixture(c *check.C) string {
	vr, err := NewVCFReader(strings.NewReader(testVCF))
	c.Assert(err, check.IsNil)

	path := c.MkDir() + "/test.twk"
	w, err := Create(path, vr.Header.Samples, DefaultContext())
	c.Assert(err, check.IsNil)

	kept, dropped, err := w.Ingest(vr)
	c.Assert(err, check.IsNil)
	c.Check(kept, check.Equals, uint64(2))    // pos 100 and the first record at pos 200
	c.Check(dropped, check.Equals, uint64(3)) // duplicate pos 200, all-missing pos 300, non-simple pos 400

	c.Assert(w.Close(), check.IsNil)
	return path
}

func (s *ingestSuite) TestIngestFiltersAndPacks(c *check.C) {
	path := s.ingestFixture(c)

	rd, err := Open(path)
	c.Assert(err, check.IsNil)
	defer rd.Close()

	c.Check(rd.Header.NSamples, check.Equals, uint64(3))
	c.Check(rd.Index.Size() >= 1, check.Equals, true)

	var positions []uint32
	for _, id := range rd.Blocks() {
		blk, err := rd.ReadBlock(id)
		c.Assert(err, check.IsNil)
		for _, m := range blk.Metas {
			positions = append(positions, m.Position)
		}
	}
	c.Check(positions, check.DeepEquals, []uint32{100, 200})
}

func (s *ingestSuite) TestIngestRejectsOutOfOrderPosition(c *check.C) {
	vcf := `##fileformat=VCFv4.2
#CHROM	POS	ID	REF	ALT	QUAL	FILTER	INFO	FORMAT	s1	s2
chr1	200	.	A	G	.	.	.	GT	0/0	0/1
chr1	100	.	A	G	.	.	.	GT	0/0	0/1
`
	vr, err := NewVCFReader(strings.NewReader(vcf))
	c.Assert(err, check.IsNil)
	w, err := Create(c.MkDir()+"/test.twk", vr.Header.Samples, DefaultContext())
	c.Assert(err, check.IsNil)
	_, _, err = w.Ingest(vr)
	c.Check(err, check.NotNil)
}

func (s *ingestSuite) TestOpenForAppendExtendsFile(c *check.C) {
	path := s.ingestFixture(c)

	vr, err := NewVCFReader(strings.NewReader(`##fileformat=VCFv4.2
#CHROM	POS	ID	REF	ALT	QUAL	FILTER	INFO	FORMAT	s1	s2	s3
chr1	500	.	A	G	.	.	.	GT	0/0	0/1	1/1
`))
	c.Assert(err, check.IsNil)

	w, err := OpenForAppend(path, DefaultContext())
	c.Assert(err, check.IsNil)
	kept, _, err := w.Ingest(vr)
	c.Assert(err, check.IsNil)
	c.Check(kept, check.Equals, uint64(1))
	c.Assert(w.Close(), check.IsNil)

	rd, err := Open(path)
	c.Assert(err, check.IsNil)
	defer rd.Close()

	var positions []uint32
	for _, id := range rd.Blocks() {
		blk, err := rd.ReadBlock(id)
		c.Assert(err, check.IsNil)
		for _, m := range blk.Metas {
			positions = append(positions, m.Position)
		}
	}
	c.Check(positions, check.DeepEquals, []uint32{100, 200, 500})
}

func (s *ingestSuite) TestRejectsTooFewSamples(c *check.C) {
	_, err := Create(c.MkDir()+"/test.twk", []string{"only-one"}, DefaultContext())
	c.Check(err, check.NotNil)
}
