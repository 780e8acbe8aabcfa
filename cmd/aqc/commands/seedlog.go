package commands

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/archivetools/aqc/internal/seedlog"
	"github.com/spf13/cobra"
)

func installSeedlogCmd(app *App) {
	seedlogCmd := &cobra.Command{
		Use:   "seedlog",
		Short: "Maintain the crawl seed log",
		Long: `Maintain the crawl seed log.

The seed log is a CSV journal of crawl seeds, the issue observed for each,
and the follow-up action. Appends are serialized with a file lock so
concurrent operators cannot corrupt the log.`,
	}

	seedlogCmd.PersistentFlags().StringVar(&app.config.Seedlog.File, "log", "seed_log.csv", "path to the seed log CSV file")

	addCmd := &cobra.Command{
		Use:   "add [SEED...]",
		Short: "Append seeds to the log",
		Long: `Append seeds to the log.

Seeds come from the arguments, or from a file via --from-file (use "-" for
stdin, one seed per line, blank lines and #-comments skipped). Seeds already
logged with the same action are skipped.`,
		Args: cobra.ArbitraryArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			action, err := seedlog.NormalizeIssue(app.config.Seedlog.Action)
			if err != nil {
				app.cmd.SilenceUsage = false
				return fmt.Errorf("action must be one of: %s", strings.Join(seedlog.Issues, ", "))
			}
			app.config.Seedlog.Action = action
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.seedlogAddRun(cmd, args)
		},
	}
	addCmd.Flags().StringVarP(&app.config.Seedlog.Action, "action", "a", "other", "issue observed for the seeds, by name or number (see 'seedlog issues')")
	addCmd.Flags().StringVar(&app.config.Seedlog.Next, "next", "", "follow-up action")
	addCmd.Flags().StringVar(&app.config.Seedlog.Note, "note", "", "free-form note")
	addCmd.Flags().String("from-file", "", `read seeds from a file ("-" for stdin)`)
	addCmd.Flags().BoolVar(&app.config.Seedlog.DryRun, "dry-run", false, "preview appends without writing")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "Print the seed log entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.seedlogListRun(cmd)
		},
	}

	issuesCmd := &cobra.Command{
		Use:   "issues",
		Short: "Print the issue vocabulary",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			for i, issue := range seedlog.Issues {
				fmt.Printf("%d. %s\n", i+1, issue)
			}
		},
	}

	seedlogCmd.AddCommand(addCmd, listCmd, issuesCmd)
	app.cmd.AddCommand(seedlogCmd)
}

func (a App) newSeedLog(cmd *cobra.Command) (*seedlog.Log, error) {
	path, err := cmd.Flags().GetString("log")
	if err != nil {
		path = "seed_log.csv"
	}

	var opts []seedlog.Options
	if a.config.Seedlog.DryRun {
		opts = append(opts, seedlog.WithDryRun())
	}
	return seedlog.New(slog.Default(), path, opts...)
}

func (a App) seedlogAddRun(cmd *cobra.Command, args []string) error {
	seeds := args

	if from, err := cmd.Flags().GetString("from-file"); err == nil && from != "" {
		r := os.Stdin
		if from != "-" {
			f, err := os.Open(from)
			if err != nil {
				return fmt.Errorf("could not open seed file: %w", err)
			}
			defer func() { _ = f.Close() }()
			r = f
		}
		parsed, err := seedlog.ParseSeeds(r)
		if err != nil {
			return err
		}
		seeds = append(seeds, parsed...)
	}

	if len(seeds) == 0 {
		a.cmd.SilenceUsage = false
		return fmt.Errorf("no seeds provided")
	}

	sl, err := a.newSeedLog(cmd)
	if err != nil {
		return err
	}

	entries := make([]seedlog.Entry, 0, len(seeds))
	for _, s := range seeds {
		entries = append(entries, seedlog.Entry{
			Seed:   s,
			Action: a.config.Seedlog.Action,
			Next:   a.config.Seedlog.Next,
			Note:   a.config.Seedlog.Note,
		})
	}

	return sl.AddAll(entries)
}

func (a App) seedlogListRun(cmd *cobra.Command) error {
	sl, err := a.newSeedLog(cmd)
	if err != nil {
		return err
	}

	entries, err := sl.Entries()
	if err != nil {
		return err
	}

	for _, e := range entries {
		fmt.Printf("%s\t%s\t%s\t%s\t%s\n", e.Seed, e.Date, e.Action, e.Next, e.Note)
	}
	return nil
}
