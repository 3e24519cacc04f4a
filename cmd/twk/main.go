// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

// Command twk stores, sorts, and computes linkage disequilibrium over
// biallelic SNP genotypes.
package main

import (
	"os"
	"runtime/debug"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
)

var handler = multiCmd{
	"version":   versionHandler,
	"-version":  versionHandler,
	"--version": versionHandler,

	"import": &importCmd{},
	"sort":   &sortCmd{},
	"merge":  &mergeCmd{},
	"calc":   &calcCmd{},
	"view":   &viewCmd{},
}

func init() {
	if os.Getenv("GOGC") == "" {
		debug.SetGCPercent(30)
	}
}

func main() {
	if !isatty.IsTerminal(os.Stderr.Fd()) {
		logrus.StandardLogger().Formatter = &logrus.TextFormatter{DisableTimestamp: true}
	}
	if len(os.Args) >= 2 && !strings.HasSuffix(os.Args[1], "version") {
		logrus.Debugf("twk starting: %v", os.Args)
	}
	os.Exit(handler.RunCommand(os.Args[0], os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}
