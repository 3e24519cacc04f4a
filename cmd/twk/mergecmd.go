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

type mergeCmd struct{}

func (c *mergeCmd) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet(prog, flag.ContinueOnError)
	fs.SetOutput(stderr)
	in := fs.String("i", "", "input partially-sorted path (required, from twk sort)")
	out := fs.String("o", "", "output path for the fully-sorted result (required)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *in == "" || *out == "" {
		fmt.Fprintln(stderr, "twk merge: -i and -o are required")
		return 2
	}
	if err := twk.MergeSorted(*in, *out); err != nil {
		logrus.WithError(err).Error("merge failed")
		return 1
	}
	return 0
}
