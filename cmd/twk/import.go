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

type importCmd struct{}

func (c *importCmd) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet(prog, flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		in        = fs.String("i", "-", "input VCF/BCF path, or - for stdin")
		out       = fs.String("o", "", "output TWK path (required)")
		bcf       = fs.Bool("bcf", false, "treat input as BCF rather than VCF")
		extend    = fs.Bool("extend", false, "append to an existing TWK file at -o")
		missing   = fs.Float64("missing", twk.DefaultMissingnessCutoff, "drop variants with missingness above this fraction")
	)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *out == "" {
		fmt.Fprintln(stderr, "twk import: -o is required")
		return 2
	}

	var r io.Reader = stdin
	if *in != "-" {
		f, err := os.Open(*in)
		if err != nil {
			logrus.WithError(err).Error("opening input")
			return 1
		}
		defer f.Close()
		r = f
	}

	var src interface {
		Next() (*twk.VCFRecord, error)
	}
	if *bcf {
		bs, err := twk.NewBCFReader(r)
		if err != nil {
			logrus.WithError(err).Error("reading BCF header")
			return 1
		}
		src = bs
	} else {
		vs, err := twk.NewVCFReader(r)
		if err != nil {
			logrus.WithError(err).Error("reading VCF header")
			return 1
		}
		src = vs
	}

	var w *twk.Writer
	var err error
	ctx := twk.DefaultContext()
	if *extend {
		w, err = twk.OpenForAppend(*out, ctx)
	} else {
		samples := vcfSamples(src)
		w, err = twk.Create(*out, samples, ctx)
	}
	if err != nil {
		logrus.WithError(err).Error("opening output")
		return 1
	}
	w.MissingnessCutoff = *missing

	kept, dropped, err := w.Ingest(src)
	if err != nil {
		logrus.WithError(err).Error("ingest failed")
		w.Close()
		return 1
	}
	if err := w.Close(); err != nil {
		logrus.WithError(err).Error("closing output")
		return 1
	}
	logrus.Infof("ingested %d variants, dropped %d", kept, dropped)
	return 0
}

// vcfSamples extracts the sample list from whichever reader type src
// actually is, since VCFReader and BCFReader expose it on different
// concrete types but the same VCFHeader shape.
func vcfSamples(src interface{ Next() (*twk.VCFRecord, error) }) []string {
	switch v := src.(type) {
	case *twk.VCFReader:
		return v.Header.Samples
	case *twk.BCFReader:
		return v.Header.Samples
	}
	return nil
}
