// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package main

import (
	"flag"
	"fmt"
	"io"
	"runtime"

	"github.com/sirupsen/logrus"
	"github.com/twkgo/twk"
)

type sortCmd struct{}

func (c *sortCmd) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet(prog, flag.ContinueOnError)
	fs.SetOutput(stderr)
	in := fs.String("i", "", "input LD-output path (required)")
	out := fs.String("o", "", "output path for the partially-sorted result (required)")
	threads := fs.Int("threads", runtime.NumCPU(), "worker goroutines for the in-memory partition sort")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *in == "" || *out == "" {
		fmt.Fprintln(stderr, "twk sort: -i and -o are required")
		return 2
	}
	if err := twk.SortPartitioned(*in, *out, *threads); err != nil {
		logrus.WithError(err).Error("sort failed")
		return 1
	}
	return 0
}
