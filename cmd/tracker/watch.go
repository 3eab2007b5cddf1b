package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/subcommands"

	"github.com/portfolio-tracker/internal/models"
	"github.com/portfolio-tracker/internal/render"
	"github.com/portfolio-tracker/internal/service"
)

type watchCmd struct {
	interval time.Duration
	clear    bool
}

func (*watchCmd) Name() string     { return "watch" }
func (*watchCmd) Synopsis() string { return "refresh the portfolio on an interval in the terminal" }
func (*watchCmd) Usage() string {
	return `tracker watch [-interval 60s] [-clear]

  Runs refresh cycles until interrupted. The interval is clamped to 30s..300s.
`
}

func (c *watchCmd) SetFlags(f *flag.FlagSet) {
	f.DurationVar(&c.interval, "interval", 0, "refresh interval (defaults to REFRESH_INTERVAL)")
	f.BoolVar(&c.clear, "clear", true, "clear the screen before each render")
}

func (c *watchCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, os.Stderr, service.WithRefreshInterval(c.interval))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	defer a.Close()

	styles := render.DefaultStyles()
	err = a.service.Run(ctx, func(result *models.CycleResult) {
		if c.clear {
			fmt.Print("\033[H\033[2J")
		}
		fmt.Println(render.Portfolio(result, styles))
		fmt.Println(styles.Muted.Render(fmt.Sprintf("next refresh in %s, Ctrl+C to quit", a.service.RefreshInterval())))
	})
	if err != nil && ctx.Err() == nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}
