// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package twk

import "gopkg.in/check.v1"

type sortSuite struct{}

var _ = check.Suite(&sortSuite{})

func unsortedLDFixture(c *check.C) string {
	path := c.MkDir() + "/unsorted.twk"
	w, err := CreateLDFile(path)
	c.Assert(err, check.IsNil)
	// Deliberately out of order, and spread across more than one block.
	positions := []uint32{50, 10, 90, 30, 70, 20, 5, 99, 1, 60}
	for _, p := range positions {
		c.Assert(w.Add(LDRecord{ContigA: 0, PosA: p, ContigB: 0, PosB: p}), check.IsNil)
	}
	c.Assert(w.Close(), check.IsNil)
	return path
}

func (s *sortSuite) TestPartitionBySizeCoversEveryBlock(c *check.C) {
	path := unsortedLDFixture(c)
	lf, err := OpenLDFile(path)
	c.Assert(err, check.IsNil)

	parts := partitionBySize(lf.Index, 4)
	seen := map[int]bool{}
	for _, p := range parts {
		for _, id := range p {
			c.Check(seen[id], check.Equals, false)
			seen[id] = true
		}
	}
	c.Check(len(seen), check.Equals, lf.Index.Size())
}

func (s *sortSuite) TestSortPartitionedMarksPartialSorted(c *check.C) {
	path := unsortedLDFixture(c)
	outPath := c.MkDir() + "/sorted.twk"
	c.Assert(SortPartitioned(path, outPath, 2), check.IsNil)

	lf, err := OpenLDFile(outPath)
	c.Assert(err, check.IsNil)
	c.Check(lf.Index.IsPartialSorted(), check.Equals, true)
	c.Check(lf.Index.IsSorted(), check.Equals, false)
}

func (s *sortSuite) TestSortPartitionedRejectsAlreadySortedInput(c *check.C) {
	path := unsortedLDFixture(c)
	stage1 := c.MkDir() + "/partial.twk"
	c.Assert(SortPartitioned(path, stage1, 2), check.IsNil)

	err := SortPartitioned(stage1, c.MkDir()+"/again.twk", 2)
	c.Check(err, check.NotNil)
}

func (s *sortSuite) TestFullSortThenMergeProducesTotalOrder(c *check.C) {
	path := unsortedLDFixture(c)
	partial := c.MkDir() + "/partial.twk"
	c.Assert(SortPartitioned(path, partial, 3), check.IsNil)

	final := c.MkDir() + "/final.twk"
	c.Assert(MergeSorted(partial, final), check.IsNil)

	lf, err := OpenLDFile(final)
	c.Assert(err, check.IsNil)
	c.Check(lf.Index.IsSorted(), check.Equals, true)

	h, err := lf.OpenReadHandle()
	c.Assert(err, check.IsNil)
	defer h.Close()

	var all []LDRecord
	for i := 0; i < lf.Index.Size(); i++ {
		recs, err := ReadBlockRecords(h, lf.Index.At(i))
		c.Assert(err, check.IsNil)
		all = append(all, recs...)
	}
	c.Check(len(all), check.Equals, 10)
	for i := 1; i < len(all); i++ {
		c.Check(CompareLDRecords(all[i-1], all[i]) <= 0, check.Equals, true)
	}
}
