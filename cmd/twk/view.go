// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/twkgo/twk"
)

type viewCmd struct{}

func (c *viewCmd) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet(prog, flag.ContinueOnError)
	fs.SetOutput(stderr)
	in := fs.String("i", "", "input path (required)")
	out := fs.String("o", "-", "output path, or - for stdout")
	ld := fs.Bool("ld", false, "treat input as an LD-pair file rather than a genotype store")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *in == "" {
		fmt.Fprintln(stderr, "twk view: -i is required")
		return 2
	}

	var w io.Writer = stdout
	if *out != "-" {
		f, err := os.Create(*out)
		if err != nil {
			logrus.WithError(err).Error("creating output")
			return 1
		}
		defer f.Close()
		w = f
	}

	if *ld {
		return viewLD(*in, w)
	}
	return viewGenotypeStore(*in, w)
}

func viewGenotypeStore(path string, w io.Writer) int {
	rd, err := twk.Open(path)
	if err != nil {
		logrus.WithError(err).Error("opening genotype store")
		return 1
	}
	defer rd.Close()
	if err := twk.WriteVCF(w, rd); err != nil {
		logrus.WithError(err).Error("writing VCF")
		return 1
	}
	return 0
}

func viewLD(path string, w io.Writer) int {
	lf, err := twk.OpenLDFile(path)
	if err != nil {
		logrus.WithError(err).Error("opening LD file")
		return 1
	}
	h, err := lf.OpenReadHandle()
	if err != nil {
		logrus.WithError(err).Error("opening LD file")
		return 1
	}
	defer h.Close()

	var all []twk.LDRecord
	for i := 0; i < lf.Index.Size(); i++ {
		recs, err := twk.ReadBlockRecords(h, lf.Index.At(i))
		if err != nil {
			logrus.WithError(err).Error("reading LD block")
			return 1
		}
		all = append(all, recs...)
	}
	if err := twk.WriteLDTable(w, nil, all); err != nil {
		logrus.WithError(err).Error("writing LD table")
		return 1
	}
	return 0
}
