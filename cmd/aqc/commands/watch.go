package commands

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/archivetools/aqc/internal/watcher"
	"github.com/spf13/cobra"
)

func installWatchCmd(app *App) {
	watchCmd := &cobra.Command{
		Use:   "watch DIR",
		Short: "Watch a dropbox folder and check settled deliveries",
		Long: `Watch a dropbox folder and check settled deliveries.

Each top-level subdirectory is treated as one delivery. A delivery is checked
once no filesystem activity has been seen under it for the settle period.
Runs until interrupted.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.watchRun(cmd, args[0])
		},
	}

	watchCmd.Flags().DurationVar(&app.config.Watch.Settle, "settle", watcher.DefaultSettle, "quiet period before a delivery is checked")
	watchCmd.Flags().StringVar(&app.config.Check.Policy, "policy", "", "path to a YAML policy file")

	app.cmd.AddCommand(watchCmd)
}

func (a App) watchRun(cmd *cobra.Command, dir string) error {
	l := slog.Default()

	w, err := watcher.New(l, watcher.Config{
		Dir:        dir,
		PolicyPath: a.config.Check.Policy,
		Operator:   a.operatorName(l),
		Settle:     a.config.Watch.Settle,
	})
	if err != nil {
		return err
	}

	reports, err := w.Watch(cmd.Context())
	if err != nil {
		return err
	}

	for r := range reports {
		if r.Err != nil {
			fmt.Printf("%s  %s: %v\n", time.Now().Format(time.TimeOnly), r.Delivery, r.Err)
			continue
		}
		fmt.Printf("%s  %s: %s (%s)\n", time.Now().Format(time.TimeOnly), r.Delivery, r.Overall, r.ManifestPath)
	}
	return nil
}
