package commands

import (
	"log/slog"

	"github.com/archivetools/aqc/internal/packager"
	"github.com/spf13/cobra"
)

func installPackageCmd(app *App) {
	packageCmd := &cobra.Command{
		Use:   "package DIR",
		Short: "Rearrange a package into the submission layout",
		Long: `Rearrange a package into the submission layout.

Moves originals under data/objects, legacy documentation under
data/submissionDocumentation, writes data/metadata/metadata.csv, and
generates a METS structural map. Use --dry-run to preview the moves.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.packageRun(args[0])
		},
	}

	packageCmd.Flags().BoolVar(&app.config.Package.DryRun, "dry-run", false, "preview moves and writes without touching the filesystem")
	packageCmd.Flags().BoolVar(&app.config.Package.Filemap, "filemap", false, "also write data/metadata/filemap.csv recording original locations")
	packageCmd.Flags().StringVar(&app.config.Package.Technician, "technician", "", "technician recorded in metadata and METS")
	packageCmd.Flags().StringVar(&app.config.Package.Identifier, "identifier", "", "package identifier")
	packageCmd.Flags().StringVar(&app.config.Package.Title, "title", "", "package title; defaults to the package name")
	packageCmd.Flags().StringVar(&app.config.Package.DateStart, "date-start", "", "event start date (YYYY-MM-DD)")
	packageCmd.Flags().StringVar(&app.config.Package.DateEnd, "date-end", "", "event end date (YYYY-MM-DD)")
	packageCmd.Flags().StringVar(&app.config.Package.Access, "access", "", "conditions governing access")

	app.cmd.AddCommand(packageCmd)
}

func (a App) packageRun(dir string) error {
	l := slog.Default()

	technician := a.config.Package.Technician
	if technician == "" {
		technician = a.operatorName(l)
	}

	p, err := packager.New(l, packager.Config{
		Dir:          dir,
		DryRun:       a.config.Package.DryRun,
		WriteFilemap: a.config.Package.Filemap,
		Meta: packager.Metadata{
			Technician:                technician,
			Identifier:                a.config.Package.Identifier,
			Title:                     a.config.Package.Title,
			EventDateStart:            a.config.Package.DateStart,
			EventDateEnd:              a.config.Package.DateEnd,
			ConditionsGoverningAccess: a.config.Package.Access,
		},
	})
	if err != nil {
		return err
	}

	return p.Run()
}
