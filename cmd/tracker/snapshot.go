package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/subcommands"

	"github.com/portfolio-tracker/internal/render"
	"github.com/portfolio-tracker/internal/types"
)

type snapshotCmd struct {
	json bool
}

func (*snapshotCmd) Name() string     { return "snapshot" }
func (*snapshotCmd) Synopsis() string { return "run one refresh cycle and print the portfolio" }
func (*snapshotCmd) Usage() string {
	return `tracker snapshot [-json]

  Fetches every position once and prints the result. Exits non-zero when
  no position could be resolved.
`
}

func (c *snapshotCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.json, "json", false, "print the cycle result as JSON")
}

func (c *snapshotCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	defer a.Close()

	result := a.service.RunCycle(ctx)
	if c.json {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return subcommands.ExitFailure
		}
	} else {
		fmt.Println(render.Portfolio(result, render.DefaultStyles()))
	}

	if result.Status == types.CycleStatusFailed {
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}
