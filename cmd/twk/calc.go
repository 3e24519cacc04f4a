// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package main

import (
	"flag"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
	"github.com/twkgo/twk"
)

type calcCmd struct{}

func (c *calcCmd) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet(prog, flag.ContinueOnError)
	fs.SetOutput(stderr)
	in := fs.String("i", "", "input TWK genotype store (required)")
	out := fs.String("o", "", "output LD-pair path (required)")
	minR2 := fs.Float64("minR2", 0, "drop pairs below this R2")
	maxR2 := fs.Float64("maxR2", 1, "drop pairs above this R2")
	minP := fs.Float64("minP", 0, "drop pairs below this p-value")
	maxP := fs.Float64("maxP", 1, "drop pairs above this p-value")
	chunks := fs.Int("chunks", 1, "shard the variant-pair space across this many cooperating processes")
	chunk := fs.Int("chunk", 0, "this process's shard index in [0,chunks)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *in == "" || *out == "" {
		fmt.Fprintln(stderr, "twk calc: -i and -o are required")
		return 2
	}

	params := twk.CalcParameters{MinR2: *minR2, MaxR2: *maxR2, MinP: *minP, MaxP: *maxP, MinAlleles: 2, MaxAlleles: 2, Chunks: *chunks, Chunk: *chunk}
	if err := params.Validate(); err != nil {
		logrus.WithError(err).Error("invalid parameters")
		return 2
	}

	rd, err := twk.Open(*in)
	if err != nil {
		logrus.WithError(err).Error("opening genotype store")
		return 1
	}
	defer rd.Close()

	w, err := twk.CreateLDFile(*out)
	if err != nil {
		logrus.WithError(err).Error("creating output")
		return 1
	}

	n, err := twk.RunCalc(rd, params, w)
	if err != nil {
		logrus.WithError(err).Error("calc failed")
		w.Close()
		return 1
	}
	if err := w.Close(); err != nil {
		logrus.WithError(err).Error("closing output")
		return 1
	}
	logrus.Infof("emitted %d variant pairs", n)
	return 0
}
