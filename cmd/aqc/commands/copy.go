package commands

import (
	"fmt"
	"log/slog"

	"github.com/archivetools/aqc/internal/copier"
	"github.com/spf13/cobra"
)

func installCopyCmd(app *App) {
	copyCmd := &cobra.Command{
		Use:   "copy SOURCE DEST_PARENT",
		Short: "Copy a delivery with checksum verification",
		Long: `Copy a delivery with checksum verification.

Hashes the source, copies it under the destination parent, hashes the copy,
and compares the two. The verdict manifest is written into the destination's
log folder. The source is never modified. The command exits non-zero when
verification fails.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.copyRun(cmd, args[0], args[1])
		},
	}

	copyCmd.Flags().BoolVar(&app.config.Copy.AllowExisting, "allow-existing", false, "permit copying into an existing destination")
	copyCmd.Flags().StringVar(&app.config.Fixity.Algorithm, "algorithm", "", "digest algorithm (sha256, sha1, md5)")

	app.cmd.AddCommand(copyCmd)
}

func (a App) copyRun(cmd *cobra.Command, source, destParent string) error {
	l := slog.Default()

	m, err := copier.Run(cmd.Context(), l, copier.Config{
		Source:        source,
		DestParent:    destParent,
		Operator:      a.operatorName(l),
		Algorithm:     a.config.Fixity.Algorithm,
		AllowExisting: a.config.Copy.AllowExisting,
	})
	if err != nil {
		return err
	}

	fmt.Printf("Copied %d files to %s\n", m.FileCount, m.Destination)
	fmt.Printf("Verification: %s\n", m.Result)
	return nil
}
