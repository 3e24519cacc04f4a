// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package twk

import (
	"bytes"

	"gopkg.in/check.v1"
)

type tgzfSuite struct{}

var _ = check.Suite(&tgzfSuite{})

func (s *tgzfSuite) TestDeflateInflateRoundTrip(c *check.C) {
	for _, input := range [][]byte{
		nil,
		[]byte("a"),
		bytes.Repeat([]byte("ACGT"), 10000),
	} {
		blk, err := Deflate(input)
		c.Assert(err, check.IsNil)

		var out Buffer
		n, err := Inflate(blk.Bytes(), &out)
		c.Assert(err, check.IsNil)
		c.Check(n, check.Equals, len(input))
		c.Check(out.Bytes(), check.DeepEquals, input)
	}
}

func (s *tgzfSuite) TestInflateRejectsBadMagic(c *check.C) {
	blk, err := Deflate([]byte("payload"))
	c.Assert(err, check.IsNil)
	corrupt := append([]byte(nil), blk.Bytes()...)
	corrupt[0] ^= 0xff

	var out Buffer
	_, err = Inflate(corrupt, &out)
	c.Check(err, check.NotNil)
	c.Check(corrupt[0] != blk.Bytes()[0], check.Equals, true)
}

func (s *tgzfSuite) TestInflateDetectsCRCFlip(c *check.C) {
	blk, err := Deflate([]byte("some test payload that compresses"))
	c.Assert(err, check.IsNil)
	corrupt := append([]byte(nil), blk.Bytes()...)
	// Flip a bit inside the deflate payload, past the header.
	corrupt[20] ^= 0x01

	var out Buffer
	_, err = Inflate(corrupt, &out)
	c.Check(err, check.NotNil)
}

func (s *tgzfSuite) TestEOFBlockRecognized(c *check.C) {
	c.Check(IsEOFBlock(EOFBlock()), check.Equals, true)
	blk, _ := Deflate([]byte("not eof"))
	c.Check(IsEOFBlock(blk.Bytes()), check.Equals, false)
}

func (s *tgzfSuite) TestDeflateChunksSplitsAndCoversAll(c *check.C) {
	input := bytes.Repeat([]byte{0x42}, maxPayloadEstimate*3+17)
	blocks, err := DeflateChunks(input)
	c.Assert(err, check.IsNil)
	c.Check(len(blocks) >= 4, check.Equals, true)

	var reassembled []byte
	for _, b := range blocks {
		var out Buffer
		_, err := Inflate(b.Bytes(), &out)
		c.Assert(err, check.IsNil)
		reassembled = append(reassembled, out.Bytes()...)
	}
	c.Check(reassembled, check.DeepEquals, input)
}

func (s *tgzfSuite) TestDeflateChunksEmptyInputProducesOneBlock(c *check.C) {
	blocks, err := DeflateChunks(nil)
	c.Assert(err, check.IsNil)
	c.Check(len(blocks), check.Equals, 1)
}
