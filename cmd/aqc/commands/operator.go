package commands

import (
	"fmt"
	"log/slog"

	"github.com/archivetools/aqc/internal/operator"
	"github.com/spf13/cobra"
)

func installOperatorCmd(app *App) {
	operatorCmd := &cobra.Command{
		Use:   "operator",
		Short: "Manage operator profiles",
		Long: `Manage operator profiles.

A profile records a technician's display name and timezone, so manifests and
receipts carry a proper name instead of a login.`,
	}

	var displayName, timezone string
	setCmd := &cobra.Command{
		Use:   "set NAME",
		Short: "Create or replace an operator profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m := operator.New(slog.Default(), app.config.ProfilesDir)
			return m.Set(args[0], operator.Profile{
				DisplayName: displayName,
				Timezone:    timezone,
			})
		},
	}
	setCmd.Flags().StringVar(&displayName, "display-name", "", "display name recorded in manifests; defaults to NAME")
	setCmd.Flags().StringVar(&timezone, "timezone", "", "IANA timezone of the technician")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List registered operators",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m := operator.New(slog.Default(), app.config.ProfilesDir)
			names, err := m.List()
			if err != nil {
				return err
			}
			for _, n := range names {
				fmt.Printf("%s: %s\n", n, m.DisplayName(n))
			}
			return nil
		},
	}

	operatorCmd.AddCommand(setCmd, listCmd)
	app.cmd.AddCommand(operatorCmd)
}
