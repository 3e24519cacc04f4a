// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package twk

import "gopkg.in/check.v1"

type headerSuite struct{}

var _ = check.Suite(&headerSuite{})

func (s *headerSuite) TestMarshalRoundTrip(c *check.C) {
	h := &FileHeader{
		NSamples: 2,
		Contigs: []Contig{
			{ID: 0, Name: "chr1", Length: 1000, NBlocks: 3},
			{ID: 1, Name: "chr2", Length: 2000, NBlocks: 1},
		},
		Literals: "##twk_version=dev",
		Samples:  []string{"sample-a", "sample-b"},
	}
	got, err := unmarshalHeader(marshalHeader(h))
	c.Assert(err, check.IsNil)
	c.Check(got, check.DeepEquals, h)
}

func (s *headerSuite) TestMarshalRoundTripEmpty(c *check.C) {
	h := &FileHeader{Samples: []string{}}
	b := marshalHeader(h)
	got, err := unmarshalHeader(b)
	c.Assert(err, check.IsNil)
	c.Check(len(got.Samples), check.Equals, 0)
	c.Check(len(got.Contigs), check.Equals, 0)
}

func (s *headerSuite) TestContigIDLookup(c *check.C) {
	h := &FileHeader{}
	id := h.AddContig("chr1", 1000)
	c.Check(id, check.Equals, uint32(0))
	id2 := h.AddContig("chr2", 2000)
	c.Check(id2, check.Equals, uint32(1))

	got, ok := h.ContigID("chr2")
	c.Check(ok, check.Equals, true)
	c.Check(got, check.Equals, uint32(1))

	_, ok = h.ContigID("chr3")
	c.Check(ok, check.Equals, false)
}

func (s *headerSuite) TestUnmarshalRejectsSampleCountMismatch(c *check.C) {
	h := &FileHeader{NSamples: 3, Samples: []string{"only-one"}}
	b := marshalHeader(h)
	_, err := unmarshalHeader(b)
	c.Check(err, check.NotNil)
}
