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
)

type serveCmd struct {
	auto bool
}

func (*serveCmd) Name() string     { return "serve" }
func (*serveCmd) Synopsis() string { return "run the portfolio HTTP API" }
func (*serveCmd) Usage() string {
	return `tracker serve [-auto]

  Serves the latest cycle over HTTP. With -auto (or AUTO_REFRESH=true) a
  background loop refreshes the portfolio every REFRESH_INTERVAL.
`
}

func (c *serveCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.auto, "auto", false, "refresh in the background at REFRESH_INTERVAL")
}

func (c *serveCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, os.Stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	defer a.Close()
	logger := a.logger

	if c.auto || a.cfg.Refresh.Auto {
		go func() {
			err := a.service.Run(ctx, func(result *models.CycleResult) {
				logger.WithCycle(result.CycleID).WithField("status", string(result.Status)).Info(result.Summary)
			})
			if err != nil && ctx.Err() == nil {
				logger.WithError(err).Error("Auto refresh stopped")
			}
		}()
		logger.WithField("interval", a.service.RefreshInterval().String()).Info("Auto refresh enabled")
	}

	server := a.server()
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()
	logger.WithFields(map[string]interface{}{
		"host": a.cfg.Server.Host,
		"port": a.cfg.Server.Port,
	}).Info("Server started successfully")

	select {
	case err := <-errCh:
		if err != nil {
			logger.WithError(err).Error("Server failed")
			return subcommands.ExitFailure
		}
		return subcommands.ExitSuccess
	case <-ctx.Done():
	}

	logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
		return subcommands.ExitFailure
	}
	logger.Info("Server exited")
	return subcommands.ExitSuccess
}
