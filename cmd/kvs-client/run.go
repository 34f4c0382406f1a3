package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/kvs/internal/client"
	"github.com/calvinalkan/kvs/internal/engine"
)

// Run parses args, issues one request, and returns the process exit code.
//
// get on a missing key prints "Key not found" to stdout and exits 0: a
// successful lookup that found nothing is not a client error. rm on a
// missing key prints to stderr and exits 1: the caller asked to delete
// something specific and that precondition failed.
func Run(out, errOut io.Writer, args []string) int {
	flags := flag.NewFlagSet("kvs-client", flag.ContinueOnError)
	flags.SetOutput(&strings.Builder{})

	addr := flags.String("addr", "127.0.0.1:4000", "server address")

	if err := flags.Parse(args[1:]); err != nil {
		fprintln(errOut, "error:", err)

		return 1
	}

	rest := flags.Args()
	if len(rest) == 0 {
		fprintln(errOut, "usage: kvs-client [--addr HOST:PORT] <set|get|rm> ...")

		return 1
	}

	c, err := client.New(*addr)
	if err != nil {
		fprintln(errOut, "error:", err)

		return 1
	}
	defer func() { _ = c.Close() }()

	switch rest[0] {
	case "set":
		return runSet(c, out, errOut, rest[1:])
	case "get":
		return runGet(c, out, errOut, rest[1:])
	case "rm":
		return runRemove(c, out, errOut, rest[1:])
	default:
		fprintln(errOut, "error: unknown command:", rest[0])

		return 1
	}
}

func runSet(c *client.Client, out, errOut io.Writer, args []string) int {
	if len(args) != 2 {
		fprintln(errOut, "usage: kvs-client set <key> <value>")

		return 1
	}

	if err := c.Set(args[0], args[1]); err != nil {
		fprintln(errOut, "error:", err)

		return 1
	}

	return 0
}

func runGet(c *client.Client, out, errOut io.Writer, args []string) int {
	if len(args) != 1 {
		fprintln(errOut, "usage: kvs-client get <key>")

		return 1
	}

	value, found, err := c.Get(args[0])
	if err != nil {
		fprintln(errOut, "error:", err)

		return 1
	}

	if !found {
		fprintln(out, "Key not found")

		return 0
	}

	fprintln(out, value)

	return 0
}

func runRemove(c *client.Client, out, errOut io.Writer, args []string) int {
	if len(args) != 1 {
		fprintln(errOut, "usage: kvs-client rm <key>")

		return 1
	}

	err := c.Remove(args[0])
	if err != nil {
		if errors.Is(err, engine.ErrKeyNotFound) {
			fprintln(errOut, "Key not found")
		} else {
			fprintln(errOut, "error:", err)
		}

		return 1
	}

	return 0
}

func fprintln(w io.Writer, a ...any) {
	_, _ = fmt.Fprintln(w, a...)
}
