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

// WriteVCF re-emits every variant in rd's genotype store as a textual
// VCF stream, the "view" subcommand's engine (spec §4.6, grounded on
// the teacher's removed export.go VCF-line construction). Phase is
// rendered when the stored genotype carries it; genotypes packed
// without phase information are emitted unphased ("/").
func WriteVCF(w io.Writer, rd *Reader) error {
	bw := bufio.NewWriter(w)

	fmt.Fprintln(bw, "##fileformat=VCFv4.2")
	fmt.Fprintf(bw, "##source=twk v%d\n", FormatVersion)
	if rd.Header.Literals != "" {
		fmt.Fprintln(bw, rd.Header.Literals)
	}
	for _, c := range rd.Header.Contigs {
		fmt.Fprintf(bw, "##contig=<ID=%s,length=%d>\n", c.Name, c.Length)
	}
	fmt.Fprintln(bw, `##FORMAT=<ID=GT,Number=1,Type=String,Description="Genotype">`)

	header := []string{"#CHROM", "POS", "ID", "REF", "ALT", "QUAL", "FILTER", "INFO", "FORMAT"}
	header = append(header, rd.Header.Samples...)
	fmt.Fprintln(bw, strings.Join(header, "\t"))

	contigName := func(id uint32) string {
		for _, c := range rd.Header.Contigs {
			if c.ID == id {
				return c.Name
			}
		}
		return "."
	}

	for _, blockID := range rd.Blocks() {
		blk, err := rd.ReadBlock(blockID)
		if err != nil {
			return err
		}
		entry := rd.Index.At(blockID)
		chrom := contigName(entry.ContigID)

		for i, m := range blk.Metas {
			gts := blk.Genotypes(i).Expand()
			if len(gts) != len(rd.Header.Samples) {
				return fmt.Errorf("%w: block %d variant %d has %d genotypes, want %d", ErrFormat, blockID, i, len(gts), len(rd.Header.Samples))
			}

			maf := fmt.Sprintf("MAF=%.6g;HWE=%.6g", m.MAF, m.HWEP)
			row := []string{
				chrom,
				strconv.FormatUint(uint64(m.Position), 10),
				".",
				string(m.Ref),
				string(m.Alt),
				".",
				"PASS",
				maf,
				"GT",
			}
			for _, g := range gts {
				row = append(row, formatGT(g))
			}
			fmt.Fprintln(bw, strings.Join(row, "\t"))
		}
	}
	return bw.Flush()
}

func formatGT(g Genotype) string {
	sep := "/"
	if g.Phase {
		sep = "|"
	}
	a, b := alleleString(g.A), alleleString(g.B)
	return a + sep + b
}

func alleleString(a uint8) string {
	switch a {
	case AlleleRef:
		return "0"
	case AlleleAlt:
		return "1"
	default:
		return "."
	}
}

// WriteLDTable renders a sequence of LDRecord values as a tab-
// delimited table, the calc/sort/merge pipeline's plain-text output
// form. contigName resolves a contig ID to its name; pass nil to
// print raw numeric IDs.
func WriteLDTable(w io.Writer, contigName func(uint32) string, records []LDRecord) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, strings.Join([]string{"CHR_A", "POS_A", "CHR_B", "POS_B", "R2", "DPRIME", "CHISQ", "P"}, "\t"))
	name := func(id uint32) string {
		if contigName == nil {
			return strconv.FormatUint(uint64(id), 10)
		}
		return contigName(id)
	}
	for _, r := range records {
		fmt.Fprintf(bw, "%s\t%d\t%s\t%d\t%.6g\t%.6g\t%.6g\t%.6g\n",
			name(r.ContigA), r.PosA, name(r.ContigB), r.PosB, r.R2, r.DPrime, r.ChiSquared, r.PValue)
	}
	return bw.Flush()
}
