// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package twk

import "gopkg.in/check.v1"

type variantSuite struct{}

var _ = check.Suite(&variantSuite{})

func (s *variantSuite) TestVariantMetaRoundTrip(c *check.C) {
	m := VariantMeta{
		Position: 123456, Ref: 'A', Alt: 'G',
		MAF: 0.25, HWEP: 0.73, Runs: 4, Controller: CtrlBiallelicSNP | CtrlPhased,
	}
	b, err := m.marshal()
	c.Assert(err, check.IsNil)
	c.Check(unmarshalVariantMeta(b[:]), check.DeepEquals, m)
}

func (s *variantSuite) TestVariantMetaRejectsNonSimpleBase(c *check.C) {
	m := VariantMeta{Ref: 'N', Alt: 'G'}
	_, err := m.marshal()
	c.Check(err, check.NotNil)
}

func (s *variantSuite) TestLDRecordRoundTrip(c *check.C) {
	r := LDRecord{ContigA: 1, PosA: 100, ContigB: 1, PosB: 200, R2: 0.5, DPrime: 0.9, ChiSquared: 12.3, PValue: 0.001}
	b := r.Marshal()
	c.Check(UnmarshalLDRecord(b[:]), check.DeepEquals, r)
}

func (s *variantSuite) TestCompareLDRecordsTotalOrder(c *check.C) {
	a := LDRecord{ContigA: 0, PosA: 10, ContigB: 0, PosB: 20}
	b := LDRecord{ContigA: 0, PosA: 10, ContigB: 0, PosB: 30}
	cc := LDRecord{ContigA: 0, PosA: 20, ContigB: 0, PosB: 5}
	d := LDRecord{ContigA: 1, PosA: 0, ContigB: 0, PosB: 0}

	c.Check(CompareLDRecords(a, b) < 0, check.Equals, true)
	c.Check(CompareLDRecords(b, cc) < 0, check.Equals, true)
	c.Check(CompareLDRecords(cc, d) < 0, check.Equals, true)
	c.Check(CompareLDRecords(a, a), check.Equals, 0)
	c.Check(CompareLDRecords(b, a) > 0, check.Equals, true)
}
