// Package packager rearranges a reviewed package into the SIP layout expected
// by downstream preservation systems: originals under data/objects/, legacy
// documentation under data/submissionDocumentation/, descriptive metadata in
// data/metadata/metadata.csv, and a METS structural map at the package root.
package packager

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/archivetools/aqc/internal/fileutils"
	"github.com/ubuntu/decorate"
)

// Metadata is the minimal descriptive record of a package.
type Metadata struct {
	PackageName               string
	Technician                string
	Identifier                string
	Title                     string
	EventDateStart            string
	EventDateEnd              string
	ConditionsGoverningAccess string
}

var metadataFields = []string{
	"packageName", "technician", "identifier", "title",
	"eventDateStart", "eventDateEnd", "conditionsGoverningAccess",
}

var filemapHeaders = []string{"filename", "relative_path", "original_path"}

// Top-level names never moved into data/objects.
var preserved = map[string]bool{
	"data": true, "metadata": true, ".git": true, ".gitignore": true,
}

// Extensions that legitimately live under metadata/; anything else found
// there is treated as a misplaced original.
var metadataExts = map[string]bool{
	".csv": true, ".xml": true, ".json": true, ".md": true, ".txt": true,
}

// Config represents the data needed to package one directory.
type Config struct {
	Dir          string
	DryRun       bool // preview moves and writes without touching the filesystem
	WriteFilemap bool // also write data/metadata/filemap.csv
	Meta         Metadata
}

// Sanitize checks that the Config is properly configured and makes Dir absolute.
func (c *Config) Sanitize(l *slog.Logger) error {
	if c.Dir == "" {
		return errors.New("package directory must be provided")
	}

	dir, err := filepath.Abs(c.Dir)
	if err != nil {
		return fmt.Errorf("could not resolve package directory: %v", err)
	}
	c.Dir = dir

	fi, err := os.Stat(c.Dir)
	if err != nil {
		return fmt.Errorf("could not read package directory: %w", err)
	}
	if !fi.IsDir() {
		return fmt.Errorf("%s is not a directory", c.Dir)
	}

	if c.Meta.PackageName == "" {
		c.Meta.PackageName = filepath.Base(c.Dir)
	}
	if c.Meta.Title == "" {
		c.Meta.Title = c.Meta.PackageName
	}

	return nil
}

// FilemapRow records where an object came from before packaging.
type FilemapRow struct {
	Filename     string
	RelativePath string
	OriginalPath string
}

// Packager performs the SIP rearrangement for one package.
type Packager struct {
	config Config

	objectsDir    string
	metadataDir   string
	submissionDir string

	filemap []FilemapRow

	log *slog.Logger
}

// New returns a Packager for the given config. Sanitizes the config.
func New(l *slog.Logger, c Config) (*Packager, error) {
	if err := c.Sanitize(l); err != nil {
		return nil, err
	}

	dataRoot := filepath.Join(c.Dir, "data")
	return &Packager{
		config:        c,
		objectsDir:    filepath.Join(dataRoot, "objects"),
		metadataDir:   filepath.Join(dataRoot, "metadata"),
		submissionDir: filepath.Join(dataRoot, "submissionDocumentation"),
		log:           l,
	}, nil
}

// Run performs the packaging. With DryRun set, every move and write is logged
// but nothing on disk changes.
func (p *Packager) Run() (err error) {
	defer decorate.OnError(&err, "packaging of %s failed", p.config.Dir)

	for _, d := range []string{p.objectsDir, p.metadataDir, p.submissionDir} {
		if err := p.ensureDir(d); err != nil {
			return err
		}
	}

	if err := p.moveLegacyFolders(); err != nil {
		return err
	}
	if err := p.moveObjects(); err != nil {
		return err
	}

	meta, err := p.resolveMetadata()
	if err != nil {
		return err
	}
	if err := p.writeMetadataCSV(meta); err != nil {
		return err
	}

	if p.config.WriteFilemap {
		if err := p.writeFilemapCSV(); err != nil {
			return err
		}
	}

	objects, err := p.gatherObjects()
	if err != nil {
		return err
	}
	if len(objects) == 0 {
		p.log.Warn("No object files found under data/objects, METS not generated")
		return nil
	}

	return p.writeMETS(objects, meta)
}

func (p *Packager) ensureDir(dir string) error {
	if p.config.DryRun {
		p.log.Info("[dry-run] Would create directory", "dir", dir)
		return nil
	}
	return os.MkdirAll(dir, 0755)
}

// moveLegacyFolders relocates `*_legacy_*` folders into submissionDocumentation.
func (p *Packager) moveLegacyFolders() error {
	candidates, err := p.findLegacyFolders()
	if err != nil {
		return err
	}

	for _, dir := range candidates {
		if err := p.move(dir, filepath.Join(p.submissionDir, filepath.Base(dir))); err != nil {
			return err
		}
	}
	return nil
}

func (p *Packager) findLegacyFolders() ([]string, error) {
	var found []string
	roots := []string{p.config.Dir, filepath.Join(p.config.Dir, "data"), filepath.Join(p.config.Dir, "metadata")}
	for _, root := range roots {
		entries, err := os.ReadDir(root)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}
		for _, e := range entries {
			if e.IsDir() && strings.Contains(strings.ToLower(e.Name()), "_legacy_") {
				found = append(found, filepath.Join(root, e.Name()))
			}
		}
	}
	return found, nil
}

// moveObjects relocates top-level content into data/objects, leaving the
// canonical folders in place and rescuing misplaced originals from metadata/.
func (p *Packager) moveObjects() error {
	entries, err := os.ReadDir(p.config.Dir)
	if err != nil {
		return err
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	slices.Sort(names)

	for _, name := range names {
		src := filepath.Join(p.config.Dir, name)

		if name == "metadata" {
			if err := p.rescueFromMetadata(src); err != nil {
				return err
			}
			continue
		}
		if preserved[name] {
			p.log.Debug("Preserving top-level entry", "name", name)
			continue
		}

		if err := p.move(src, filepath.Join(p.objectsDir, name)); err != nil {
			return err
		}
	}
	return nil
}

// rescueFromMetadata moves likely originals (non-text files) out of a
// top-level metadata folder into data/objects.
func (p *Packager) rescueFromMetadata(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	for _, e := range entries {
		if e.IsDir() || metadataExts[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		p.log.Info("Moving likely original out of metadata folder", "file", e.Name())
		if err := p.move(filepath.Join(dir, e.Name()), filepath.Join(p.objectsDir, e.Name())); err != nil {
			return err
		}
	}
	return nil
}

// move relocates src to dst, recording a filemap row. Move is by rename with
// a copy-and-delete fallback for cross-device destinations.
func (p *Packager) move(src, dst string) error {
	rel, err := filepath.Rel(p.config.Dir, dst)
	if err != nil {
		rel = dst
	}
	row := FilemapRow{
		Filename:     filepath.Base(dst),
		RelativePath: filepath.ToSlash(rel),
		OriginalPath: src,
	}

	if p.config.DryRun {
		p.log.Info("[dry-run] Would move", "from", src, "to", dst)
		p.filemap = append(p.filemap, row)
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}

	p.log.Info("Moving", "from", src, "to", dst)
	if err := os.Rename(src, dst); err != nil {
		p.log.Warn("Rename failed, falling back to copy", "from", src, "to", dst, "error", err)
		if err := copyThenDelete(src, dst); err != nil {
			return fmt.Errorf("could not move %s: %w", src, err)
		}
	}

	p.filemap = append(p.filemap, row)
	return nil
}

func copyThenDelete(src, dst string) error {
	fi, err := os.Stat(src)
	if err != nil {
		return err
	}

	if !fi.IsDir() {
		if err := fileutils.CopyFile(src, dst); err != nil {
			return err
		}
		return os.Remove(src)
	}

	err = filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0755)
		}
		return fileutils.CopyFile(path, target)
	})
	if err != nil {
		return err
	}
	return os.RemoveAll(src)
}

// resolveMetadata reuses an existing data/metadata/metadata.csv when present,
// otherwise the configured metadata.
func (p *Packager) resolveMetadata() (Metadata, error) {
	path := filepath.Join(p.metadataDir, "metadata.csv")
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return p.config.Meta, nil
		}
		return Metadata{}, err
	}
	defer func() { _ = f.Close() }()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		p.log.Warn("Could not read existing metadata.csv, using configured metadata", "error", err)
		return p.config.Meta, nil
	}
	row, err := r.Read()
	if err != nil {
		p.log.Warn("Existing metadata.csv has no data row, using configured metadata", "error", err)
		return p.config.Meta, nil
	}

	byField := make(map[string]string, len(header))
	for i, h := range header {
		if i < len(row) {
			byField[h] = row[i]
		}
	}

	p.log.Info("Reusing existing metadata.csv")
	return Metadata{
		PackageName:               byField["packageName"],
		Technician:                byField["technician"],
		Identifier:                byField["identifier"],
		Title:                     byField["title"],
		EventDateStart:            byField["eventDateStart"],
		EventDateEnd:              byField["eventDateEnd"],
		ConditionsGoverningAccess: byField["conditionsGoverningAccess"],
	}, nil
}

func (p *Packager) writeMetadataCSV(meta Metadata) error {
	rows := [][]string{metadataFields, {
		meta.PackageName, meta.Technician, meta.Identifier, meta.Title,
		meta.EventDateStart, meta.EventDateEnd, meta.ConditionsGoverningAccess,
	}}
	return p.writeCSV(filepath.Join(p.metadataDir, "metadata.csv"), rows)
}

func (p *Packager) writeFilemapCSV() error {
	rows := [][]string{filemapHeaders}
	for _, fm := range p.filemap {
		rows = append(rows, []string{fm.Filename, fm.RelativePath, fm.OriginalPath})
	}
	return p.writeCSV(filepath.Join(p.metadataDir, "filemap.csv"), rows)
}

func (p *Packager) writeCSV(path string, rows [][]string) error {
	if p.config.DryRun {
		p.log.Info("[dry-run] Would write CSV", "file", path, "rows", len(rows)-1)
		return nil
	}

	var sb strings.Builder
	w := csv.NewWriter(&sb)
	if err := w.WriteAll(rows); err != nil {
		return fmt.Errorf("could not encode %s: %v", path, err)
	}

	if err := fileutils.AtomicWrite(path, []byte(sb.String())); err != nil {
		return fmt.Errorf("could not write %s: %v", path, err)
	}
	p.log.Info("Wrote CSV", "file", path, "rows", len(rows)-1)
	return nil
}

// gatherObjects returns the package-relative paths of all files under
// data/objects, sorted.
func (p *Packager) gatherObjects() ([]string, error) {
	var objects []string
	err := filepath.WalkDir(p.objectsDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) && path == p.objectsDir {
				return filepath.SkipAll
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(p.config.Dir, path)
		if err != nil {
			return err
		}
		objects = append(objects, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, err
	}

	slices.Sort(objects)

	// Dry runs never move anything, so report what would end up in objects.
	if p.config.DryRun {
		for _, fm := range p.filemap {
			if strings.HasPrefix(fm.RelativePath, "data/objects/") {
				objects = append(objects, fm.RelativePath)
			}
		}
		slices.Sort(objects)
		objects = slices.Compact(objects)
	}

	return objects, nil
}
