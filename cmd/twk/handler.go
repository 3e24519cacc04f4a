// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package main

import (
	"fmt"
	"io"
)

// Handler is the subcommand contract the teacher's cmd.go built on top
// of git.arvados.org/arvados.git/lib/cmd; that module is an
// Arvados-internal dependency with no public home outside the
// Arvados monorepo, so it is reimplemented locally here rather than
// imported (SPEC_FULL.md §3).
type Handler interface {
	RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int
}

// HandlerFunc adapts a plain function to Handler.
type HandlerFunc func(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int

func (f HandlerFunc) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	return f(prog, args, stdin, stdout, stderr)
}

// multiCmd dispatches to a named sub-Handler by args[0], mirroring the
// teacher's cmd.Multi.
type multiCmd map[string]Handler

func (m multiCmd) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintf(stderr, "usage: %s <command> [args]\n", prog)
		m.listCommands(stderr)
		return 2
	}
	h, ok := m[args[0]]
	if !ok {
		fmt.Fprintf(stderr, "%s: unknown command %q\n", prog, args[0])
		m.listCommands(stderr)
		return 2
	}
	return h.RunCommand(prog+" "+args[0], args[1:], stdin, stdout, stderr)
}

func (m multiCmd) listCommands(stderr io.Writer) {
	fmt.Fprintln(stderr, "available commands:")
	for name := range m {
		fmt.Fprintf(stderr, "  %s\n", name)
	}
}

var versionHandler = HandlerFunc(func(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fmt.Fprintf(stdout, "%s\n", prog)
	return 0
})
