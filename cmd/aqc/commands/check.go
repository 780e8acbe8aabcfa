package commands

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/archivetools/aqc/internal/batch"
	"github.com/archivetools/aqc/internal/manifest"
	"github.com/archivetools/aqc/internal/operator"
	"github.com/archivetools/aqc/internal/validator"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// ErrCheckFailed is returned when a checked delivery does not pass.
var ErrCheckFailed = errors.New("delivery did not pass quality control")

func installCheckCmd(app *App) {
	checkCmd := &cobra.Command{
		Use:   "check [DIR]",
		Short: "Check a delivery against fixity and policy rules",
		Long: `Check a delivery against fixity and policy rules.

Scans the delivery, validates every asset, and writes an immutable batch
manifest into the delivery's log folder. The command exits non-zero when the
batch fails; with --strict, warnings fail the batch too.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) > 0 {
				dir = args[0]
			}
			return app.checkRun(dir)
		},
	}

	checkCmd.Flags().StringVar(&app.config.Check.Policy, "policy", "", "path to a YAML policy file")
	checkCmd.Flags().BoolVar(&app.config.Check.Strict, "strict", false, "treat warnings as failures")

	app.cmd.AddCommand(checkCmd)
}

func (a App) checkRun(dir string) error {
	l := slog.Default()

	b, path, err := batch.Run(l, batch.Config{
		Dir:        dir,
		PolicyPath: a.config.Check.Policy,
		Operator:   a.operatorName(l),
	})
	if err != nil {
		return err
	}

	printBatchSummary(b, path)

	if b.Overall == manifest.OverallFail {
		return ErrCheckFailed
	}
	if a.config.Check.Strict && b.Counts[validator.StatusWarn] > 0 {
		return fmt.Errorf("%w: %d warnings in strict mode", ErrCheckFailed, b.Counts[validator.StatusWarn])
	}
	return nil
}

// operatorName resolves the configured operator through its profile, so
// manifests record display names when one is registered.
func (a App) operatorName(l *slog.Logger) string {
	if a.config.Operator == "" {
		return ""
	}
	return operator.New(l, a.config.ProfilesDir).DisplayName(a.config.Operator)
}

var (
	passColor = color.New(color.FgGreen, color.Bold)
	warnColor = color.New(color.FgYellow)
	failColor = color.New(color.FgRed, color.Bold)
)

func printBatchSummary(b manifest.Batch, path string) {
	fmt.Printf("Checked %d assets in %s\n", len(b.Assets), b.Root)
	fmt.Printf("  %s %d  %s %d  %s %d  %s %d\n",
		passColor.Sprint("pass"), b.Counts[validator.StatusPass],
		warnColor.Sprint("warn"), b.Counts[validator.StatusWarn],
		failColor.Sprint("fail"), b.Counts[validator.StatusFail],
		failColor.Sprint("error"), b.Counts[validator.StatusError],
	)

	for _, a := range b.Assets {
		for _, r := range a.Results {
			switch r.Status {
			case validator.StatusFail, validator.StatusError:
				failColor.Printf("  %s: %s", a.RelPath, r.Rule)
				fmt.Printf(" %s\n", r.Detail)
			case validator.StatusWarn:
				warnColor.Printf("  %s: %s", a.RelPath, r.Rule)
				fmt.Printf(" %s\n", r.Detail)
			}
		}
	}

	verdict := passColor.Sprint(b.Overall)
	if b.Overall == manifest.OverallFail {
		verdict = failColor.Sprint(b.Overall)
	}
	fmt.Printf("Overall: %s (manifest: %s)\n", verdict, path)
}
