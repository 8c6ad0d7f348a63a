// Command dindin manages dated entries and their recurring series from the
// command line.
//
// Usage:
//
//	dindin period    -date 2026-03-25 -cutoff 25
//	dindin dashboard
//	dindin generate  -desc Gym -amount 89,90 -start 2026-01-31 -count 12
//	dindin edit      -id <entry> -series <series> -scope future -amount 99,90
//	dindin delete    -id <entry> -series <series> -scope all
//	dindin delete    -ids a,b,c -scope single
//	dindin list      [-series <series>]
//	dindin card      -id nubank -name Nubank -closing 25
//	dindin profile   -id me -start 5
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"dindin/internal/cli"
	"dindin/internal/core"
	applog "dindin/internal/log"
)

const (
	exitOK = iota
	exitError
	exitInvalidInput
	exitNotFound
	exitPartialBatch
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(applog.ComponentCLI)
	os.Exit(run(context.Background(), logger, os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, logger *applog.Logger, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		usage(stderr)
		return exitInvalidInput
	}
	name, rest := args[0], args[1:]

	// period needs no storage
	if name == "period" {
		return exitCode(stderr, runPeriod(rest, stdout))
	}

	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(stderr, "unknown command %q\n", name)
		usage(stderr)
		return exitInvalidInput
	}

	cfg := cli.LoadAndValidateConfig(logger)
	res := cli.InitBackend(ctx, logger, cfg)
	defer func() {
		if err := res.Cleanup(); err != nil {
			logger.Error("Cleanup failed", applog.FieldError, err)
		}
	}()

	a := &app{svc: res.Service, out: stdout, ownerID: cfg.DefaultOwnerID}
	return exitCode(stderr, cmd(ctx, a, rest))
}

func exitCode(stderr io.Writer, err error) int {
	if err == nil {
		return exitOK
	}
	fmt.Fprintln(stderr, "error:", err)
	// A partial batch may wrap the store's not-found or invalid-input
	// cause; the batch outcome decides the code.
	switch {
	case errors.Is(err, core.ErrPartialBatch):
		return exitPartialBatch
	case errors.Is(err, core.ErrInvalidInput):
		return exitInvalidInput
	case errors.Is(err, core.ErrNotFound):
		return exitNotFound
	default:
		return exitError
	}
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "usage: dindin <period|dashboard|generate|edit|delete|list|card|profile> [flags]")
}
