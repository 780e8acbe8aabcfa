package commands

import (
	"fmt"
	"log/slog"

	"github.com/archivetools/aqc/internal/fixity"
	"github.com/spf13/cobra"
)

func installManifestCmd(app *App) {
	manifestCmd := &cobra.Command{
		Use:   "manifest [DIR]",
		Short: "Generate the checksum manifest for a package",
		Long: `Generate the checksum manifest for a package.

Hashes every file under the package root and writes a checksum list, a JSON
package manifest, and a plain-text transfer receipt into it. Unreadable files
are recorded with an error marker and leave the manifest marked incomplete.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) > 0 {
				dir = args[0]
			}
			return app.manifestRun(cmd, dir)
		},
	}

	manifestCmd.Flags().StringVar(&app.config.Fixity.Algorithm, "algorithm", "", "digest algorithm (sha256, sha1, md5)")
	manifestCmd.Flags().IntVar(&app.config.Fixity.ProgressEvery, "progress-every", 0, "log progress every N files")

	app.cmd.AddCommand(manifestCmd)
}

func (a App) manifestRun(cmd *cobra.Command, dir string) error {
	l := slog.Default()

	res, err := fixity.Run(cmd.Context(), l, fixity.Config{
		Dir:           dir,
		Operator:      a.operatorName(l),
		Algorithm:     a.config.Fixity.Algorithm,
		ProgressEvery: a.config.Fixity.ProgressEvery,
	})
	if err != nil {
		return err
	}

	fmt.Printf("Hashed %d files\n", res.Manifest.FileCount)
	fmt.Printf("Checksums: %s\n", res.ChecksumsPath)
	fmt.Printf("Manifest:  %s\n", res.ManifestPath)
	fmt.Printf("Receipt:   %s\n", res.ReceiptPath)
	if !res.Manifest.Complete {
		return fmt.Errorf("some files could not be hashed, manifest is incomplete")
	}
	return nil
}
