// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package twk

import "gopkg.in/check.v1"

type totempoleSuite struct{}

var _ = check.Suite(&totempoleSuite{})

func (s *totempoleSuite) TestMarshalRoundTrip(c *check.C) {
	e := TotempoleEntry{
		ContigID: 3, MinPosition: 100, MaxPosition: 9000,
		ByteOffset: 1024, ByteOffsetEnd: 2048,
		UncompressedSize: 60000, NVariants: 42,
	}
	b := e.marshal()
	c.Check(unmarshalTotempoleEntry(b[:]), check.DeepEquals, e)
}

func (s *totempoleSuite) TestIndexMarshalRoundTrip(c *check.C) {
	idx := &Index{}
	idx.Append(TotempoleEntry{ContigID: 0, ByteOffset: 0, ByteOffsetEnd: 100, NVariants: 5})
	idx.Append(TotempoleEntry{ContigID: 0, ByteOffset: 100, ByteOffsetEnd: 250, NVariants: 7})

	b := marshalIndex(idx)
	got, err := unmarshalIndex(b)
	c.Assert(err, check.IsNil)
	c.Check(got.Size(), check.Equals, 2)
	c.Check(got.At(0), check.DeepEquals, idx.At(0))
	c.Check(got.At(1), check.DeepEquals, idx.At(1))
}

func (s *totempoleSuite) TestValidateAcceptsMonotonicEntries(c *check.C) {
	idx := &Index{}
	idx.Append(TotempoleEntry{ByteOffset: 0, ByteOffsetEnd: 100})
	idx.Append(TotempoleEntry{ByteOffset: 100, ByteOffsetEnd: 200})
	c.Check(idx.Validate(), check.IsNil)
}

func (s *totempoleSuite) TestValidateRejectsOverlap(c *check.C) {
	idx := &Index{}
	idx.Append(TotempoleEntry{ByteOffset: 0, ByteOffsetEnd: 150})
	idx.Append(TotempoleEntry{ByteOffset: 100, ByteOffsetEnd: 200})
	c.Check(idx.Validate(), check.NotNil)
}

func (s *totempoleSuite) TestValidateRejectsEmptySpan(c *check.C) {
	idx := &Index{}
	idx.Append(TotempoleEntry{ByteOffset: 100, ByteOffsetEnd: 100})
	c.Check(idx.Validate(), check.NotNil)
}

func (s *totempoleSuite) TestTotalBytes(c *check.C) {
	idx := &Index{}
	idx.Append(TotempoleEntry{ByteOffset: 0, ByteOffsetEnd: 100})
	idx.Append(TotempoleEntry{ByteOffset: 100, ByteOffsetEnd: 340})
	c.Check(idx.TotalBytes(), check.Equals, uint64(340))
}
