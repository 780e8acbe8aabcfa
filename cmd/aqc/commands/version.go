package commands

import (
	"fmt"

	"github.com/archivetools/aqc/internal/constants"
	"github.com/spf13/cobra"
)

func installVersionCmd(app *App) {
	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Returns the version of the tool",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s\t%s\n", constants.CmdName, constants.Version)
		},
	}

	app.cmd.AddCommand(versionCmd)
}
