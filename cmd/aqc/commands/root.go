// Package commands contains the commands of the aqc command line tool.
package commands

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/archivetools/aqc/internal/cli"
	"github.com/archivetools/aqc/internal/constants"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// App represents the application.
type App struct {
	cmd    *cobra.Command
	viper  *viper.Viper
	config appConfig
}

// appConfig holds the configuration for the application.
type appConfig struct {
	Verbosity int
	JSONLogs  bool `mapstructure:"json-logs"`
	Operator  string

	ProfilesDir string `mapstructure:"profiles-dir"`

	Check struct {
		Policy string
		Strict bool
	}
	Fixity struct {
		Algorithm     string
		ProgressEvery int `mapstructure:"progress-every"`
	}
	Copy struct {
		AllowExisting bool `mapstructure:"allow-existing"`
	}
	Package struct {
		DryRun     bool `mapstructure:"dry-run"`
		Filemap    bool
		Technician string
		Identifier string
		Title      string
		DateStart  string `mapstructure:"date-start"`
		DateEnd    string `mapstructure:"date-end"`
		Access     string
	}
	Seedlog struct {
		File   string
		Action string
		Next   string
		Note   string
		DryRun bool `mapstructure:"dry-run"`
	}
	Watch struct {
		Settle time.Duration
	}
}

// New registers commands and returns a new App.
func New() (*App, error) {
	a := App{}

	a.cmd = &cobra.Command{
		Use:   fmt.Sprintf("%s [COMMAND]", constants.CmdName),
		Short: "Quality control for digitized media packages",
		Long: `Quality control for digitized and born-digital media packages.

Checks deliveries against fixity and policy rules, generates checksum
manifests, performs verified copies, and prepares submission packages.`,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Command parsing has been successful. Returns to not print usage anymore.
			a.cmd.SilenceUsage = true
			cli.SetVerbosity(a.config.Verbosity) // Set verbosity before loading config
			if err := cli.InitViperConfig(constants.CmdName, a.cmd, a.viper); err != nil {
				return err
			}
			if err := a.viper.Unmarshal(&a.config); err != nil {
				return fmt.Errorf("unable to strictly decode configuration into struct: %w", err)
			}
			slog.Debug("Got app config", "config", a.config)

			cli.SetSlog(a.config.Verbosity, a.config.JSONLogs)
			return nil
		},
	}
	a.viper = viper.New()

	installRootCmd(&a)
	cli.InstallConfigFlag(a.cmd)

	if err := a.viper.BindPFlags(a.cmd.PersistentFlags()); err != nil {
		return nil, err
	}

	installCheckCmd(&a)
	installManifestCmd(&a)
	installCopyCmd(&a)
	installPackageCmd(&a)
	installSeedlogCmd(&a)
	installWatchCmd(&a)
	installOperatorCmd(&a)
	installVersionCmd(&a)

	return &a, nil
}

func installRootCmd(app *App) {
	cmd := app.cmd

	cmd.PersistentFlags().CountVarP(&app.config.Verbosity, "verbose", "v", "issue INFO (-v), DEBUG (-vv)")
	cmd.PersistentFlags().BoolVar(&app.config.JSONLogs, "json-logs", false, "emit logs as JSON on stderr")
	cmd.PersistentFlags().StringVar(&app.config.Operator, "operator", "", "operator name recorded in manifests and receipts")
	cmd.PersistentFlags().StringVar(&app.config.ProfilesDir, "profiles-dir",
		filepath.Join(constants.DefaultConfigPath, "operators"), "directory holding operator profiles")
}

// Run executes the command and associated process, returning an error if any.
func (a App) Run() error {
	return a.cmd.Execute()
}

// SetContext sets the context commands run under, so signals cancel
// long-running operations.
func (a *App) SetContext(ctx context.Context) {
	a.cmd.SetContext(ctx)
}

// UsageError returns if the error is a command parsing or runtime one.
func (a App) UsageError() bool {
	return !a.cmd.SilenceUsage
}

// RootCmd returns a copy of the root command, for tests and documentation generation.
func (a App) RootCmd() cobra.Command {
	return *a.cmd
}
