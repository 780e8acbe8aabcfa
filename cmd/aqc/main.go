// Main package for the aqc command line tool.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/archivetools/aqc/cmd/aqc/commands"
	"github.com/archivetools/aqc/internal/constants"
)

func main() {
	slog.SetLogLoggerLevel(constants.DefaultLogLevel)

	a, err := commands.New()
	if err != nil {
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx, a))
}

type app interface {
	Run() error
	UsageError() bool
	SetContext(context.Context)
}

func run(ctx context.Context, a app) int {
	a.SetContext(ctx)
	if err := a.Run(); err != nil {
		slog.Error(err.Error())

		if a.UsageError() {
			return 2
		}
		return 1
	}

	return 0
}
